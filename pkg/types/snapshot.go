package types

// RoomSnapshot is the body of GET /rooms/{code}.
type RoomSnapshot struct {
	Code         string   `json:"code"`
	Players      []string `json:"players"`
	LockOwner    string   `json:"lock_owner,omitempty"`
	CameraPos    Vector3  `json:"camera_pos"`
	CameraTarget Vector3  `json:"camera_target"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}
