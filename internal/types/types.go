package types

import (
	"strconv"

	"github.com/RyanHarrigan/multiplayer-model/internal/engine"
)

// Tags travel as the numeric values of the original client enums, so the
// order of these constants is part of the wire format.
type ClientTag int

const (
	ClientRequestCameraResponse ClientTag = iota // never handled by the server
	ClientRequestMouseControl
	ClientMouseLockReleased
	ClientMousePosUpdate
	ClientIAmHere
)

var clientTagNames = map[ClientTag]string{
	ClientRequestCameraResponse: "REQUEST_CAMERA_RESPONSE",
	ClientRequestMouseControl:   "REQUEST_MOUSE_CONTROL",
	ClientMouseLockReleased:     "MOUSE_LOCK_RELEASED",
	ClientMousePosUpdate:        "MOUSE_POS_UPDATE",
	ClientIAmHere:               "I_AM_HERE",
}

func (t ClientTag) String() string {
	if name, ok := clientTagNames[t]; ok {
		return name
	}
	return "ClientTag(" + strconv.Itoa(int(t)) + ")"
}

type ServerTag int

const (
	ServerYourInfo ServerTag = iota
	ServerCameraUpdate
	ServerMousePlayerLocked
	ServerMouseLockReleased
	ServerMousePosUpdate
	ServerPlayerConnected
	ServerPlayerDisconnected
	ServerAreYouThere
	ServerMouseLockDenied
)

var serverTagNames = map[ServerTag]string{
	ServerYourInfo:           "YOUR_INFO",
	ServerCameraUpdate:       "CAMERA_UPDATE",
	ServerMousePlayerLocked:  "MOUSE_PLAYER_LOCKED",
	ServerMouseLockReleased:  "MOUSE_LOCK_RELEASED",
	ServerMousePosUpdate:     "MOUSE_POS_UPDATE",
	ServerPlayerConnected:    "PLAYER_CONNECTED",
	ServerPlayerDisconnected: "PLAYER_DISCONNECTED",
	ServerAreYouThere:        "ARE_YOU_THERE",
	ServerMouseLockDenied:    "MOUSE_LOCK_DENIED",
}

func (t ServerTag) String() string {
	if name, ok := serverTagNames[t]; ok {
		return name
	}
	return "ServerTag(" + strconv.Itoa(int(t)) + ")"
}

// ClientMessage is one of RequestControl, ReleaseControl, MousePosUpdate or IAmHere.
type ClientMessage interface {
	Tag() ClientTag
}

type RequestControl struct{}

type ReleaseControl struct{}

type IAmHere struct{}

type MousePosUpdate struct {
	PosX         float64     `json:"posX"`
	PosY         float64     `json:"posY"`
	IsDragging   bool        `json:"isDragging"`
	CameraPos    engine.Vec3 `json:"cameraPos"`
	CameraTarget engine.Vec3 `json:"cameraTarget"`
}

func (RequestControl) Tag() ClientTag { return ClientRequestMouseControl }
func (ReleaseControl) Tag() ClientTag { return ClientMouseLockReleased }
func (MousePosUpdate) Tag() ClientTag { return ClientMousePosUpdate }
func (IAmHere) Tag() ClientTag        { return ClientIAmHere }

type ServerMessage struct {
	Name         ServerTag    `json:"name"`
	PlayerID     string       `json:"playerId,omitempty"`
	CameraPos    *engine.Vec3 `json:"cameraPos,omitempty"`
	CameraTarget *engine.Vec3 `json:"cameraTarget,omitempty"`
	PosX         *float64     `json:"posX,omitempty"`
	PosY         *float64     `json:"posY,omitempty"`
	IsDragging   *bool        `json:"isDragging,omitempty"`
	Access       string       `json:"access,omitempty"` // "denied" on MOUSE_LOCK_DENIED
}
