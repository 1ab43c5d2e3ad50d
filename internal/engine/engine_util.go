package engine

var (
	DefaultCameraPos    = Vec3{X: 0, Y: 20, Z: 100}
	DefaultCameraTarget = Vec3{X: 0, Y: 0, Z: 0}
)

func NewState() State {
	return State{
		CameraPos:    DefaultCameraPos,
		CameraTarget: DefaultCameraTarget,
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
