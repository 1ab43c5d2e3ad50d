package engine

import (
	"errors"
)

var ErrUnsupportedCommand = errors.New("unsupported command")

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// State is the authoritative camera pose of a room plus who may move it.
// An empty LockOwner means nobody holds the lock.
type State struct {
	CameraPos    Vec3
	CameraTarget Vec3
	LockOwner    string
}

func (s State) Locked() bool { return s.LockOwner != "" }

type Cursor struct {
	PosX       float64
	PosY       float64
	IsDragging bool
}

type CommandType string

const (
	CmdRequestControl CommandType = "RequestControl"
	CmdReleaseControl CommandType = "ReleaseControl"
	CmdMove           CommandType = "Move"
	CmdPing           CommandType = "Ping"
)

/*
	CmdRequestControl -> EvtPlayerLocked (all)      when unlocked
	                  -> EvtLockDenied (requester)  when someone else holds it
	                  -> nothing                    when the requester already holds it
	CmdReleaseControl -> EvtLockReleased (all)      only from the owner
	CmdMove           -> EvtCameraUpdate (all)      owner dragging only
	                  -> EvtCursorMoved (all)       always
	CmdPing           -> nothing; the room refreshes the sender's last action
*/

type Command struct {
	Type         CommandType
	PlayerID     string
	Cursor       Cursor
	CameraPos    Vec3
	CameraTarget Vec3
}

type EventType string

const (
	EvtYourInfo           EventType = "YourInfo"
	EvtCameraUpdate       EventType = "CameraUpdate"
	EvtPlayerLocked       EventType = "PlayerLocked"
	EvtLockReleased       EventType = "LockReleased"
	EvtLockDenied         EventType = "LockDenied"
	EvtCursorMoved        EventType = "CursorMoved"
	EvtPlayerConnected    EventType = "PlayerConnected"
	EvtPlayerDisconnected EventType = "PlayerDisconnected"
	EvtAreYouThere        EventType = "AreYouThere"
)

// Event is an outbound notice. To names the single recipient; empty means
// every connection in the room.
type Event struct {
	Type         EventType
	To           string
	PlayerID     string
	CameraPos    Vec3
	CameraTarget Vec3
	Cursor       Cursor
}

func (e Event) Broadcast() bool { return e.To == "" }

func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdRequestControl:
		return requestControl(s, cmd.PlayerID)

	case CmdReleaseControl:
		return releaseControl(s, cmd.PlayerID)

	case CmdMove:
		newState := s
		var events []Event

		if s.LockOwner == cmd.PlayerID && cmd.Cursor.IsDragging {
			newState.CameraPos = cmd.CameraPos
			newState.CameraTarget = cmd.CameraTarget
			events = append(events, cameraUpdate(newState, ""))
		}

		// Cursors are advisory, everybody sees everybody's.
		events = append(events, Event{
			Type:     EvtCursorMoved,
			PlayerID: cmd.PlayerID,
			Cursor:   cmd.Cursor,
		})
		return events, newState, nil

	case CmdPing:
		return nil, s, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func requestControl(s State, requester string) ([]Event, State, error) {
	switch s.LockOwner {
	case "":
		newState := s
		newState.LockOwner = requester
		return []Event{{Type: EvtPlayerLocked, PlayerID: requester}}, newState, nil
	case requester:
		return nil, s, nil
	default:
		return []Event{{Type: EvtLockDenied, To: requester}}, s, nil
	}
}

func releaseControl(s State, releaser string) ([]Event, State, error) {
	if releaser == "" || s.LockOwner != releaser {
		return nil, s, nil
	}
	newState := s
	newState.LockOwner = ""
	return []Event{{Type: EvtLockReleased, PlayerID: releaser}}, newState, nil
}

func cameraUpdate(s State, to string) Event {
	return Event{
		Type:         EvtCameraUpdate,
		To:           to,
		CameraPos:    s.CameraPos,
		CameraTarget: s.CameraTarget,
	}
}
