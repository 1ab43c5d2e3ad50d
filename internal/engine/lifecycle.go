package engine

// Join returns what a newly connected player is told, in order: its own id
// with the current pose, the pose again as a camera update, then the
// connected notice to the whole room (the joiner included).
func Join(s State, playerID string) []Event {
	return []Event{
		{
			Type:         EvtYourInfo,
			To:           playerID,
			PlayerID:     playerID,
			CameraPos:    s.CameraPos,
			CameraTarget: s.CameraTarget,
		},
		cameraUpdate(s, playerID),
		{Type: EvtPlayerConnected, PlayerID: playerID},
	}
}

// Leave releases the lock if the leaving player held it, so LockOwner never
// names a connection that is gone.
func Leave(s State, playerID string) ([]Event, State) {
	events, newState, _ := releaseControl(s, playerID)
	events = append(events, Event{Type: EvtPlayerDisconnected, PlayerID: playerID})
	return events, newState
}
