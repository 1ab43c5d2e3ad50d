package types

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/coder/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/RyanHarrigan/multiplayer-model/internal/engine"
)

var ErrNotText = errors.New("message must be text")
var ErrParse = errors.New("malformed envelope")
var ErrUnknownTag = errors.New("unknown message tag")
var ErrInvalidPayload = errors.New("invalid payload")

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[ClientTag]string{
	ClientRequestMouseControl: "envelope.schema.json",
	ClientMouseLockReleased:   "envelope.schema.json",
	ClientMousePosUpdate:      "mouse_pos_update.schema.json",
	ClientIAmHere:             "envelope.schema.json",
}

var payloadSchemas = mustCompileSchemas()

func mustCompileSchemas() map[ClientTag]*jsonschema.Schema {
	c := jsonschema.NewCompiler()
	compiled := make(map[string]*jsonschema.Schema)
	out := make(map[ClientTag]*jsonschema.Schema, len(schemaFiles))

	for tag, file := range schemaFiles {
		if s, ok := compiled[file]; ok {
			out[tag] = s
			continue
		}
		b, err := schemaFS.ReadFile("schemas/" + file)
		if err != nil {
			panic(fmt.Sprintf("read schema %s: %v", file, err))
		}
		url := "mem:///schemas/" + file
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			panic(fmt.Sprintf("add schema %s: %v", file, err))
		}
		s, err := c.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("compile schema %s: %v", file, err))
		}
		compiled[file] = s
		out[tag] = s
	}
	return out
}

// Decode turns one websocket frame into a client message. Errors wrap one of
// ErrNotText, ErrParse, ErrUnknownTag or ErrInvalidPayload.
func Decode(typ websocket.MessageType, raw []byte) (ClientMessage, error) {
	if typ != websocket.MessageText {
		return nil, ErrNotText
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: envelope is not an object", ErrParse)
	}
	nameVal, ok := obj["name"]
	if !ok {
		return nil, fmt.Errorf("%w: missing name", ErrParse)
	}
	tag, err := parseClientTag(nameVal)
	if err != nil {
		return nil, err
	}

	schema, ok := payloadSchemas[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnknownTag, tag)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, tag, err)
	}

	switch tag {
	case ClientRequestMouseControl:
		return RequestControl{}, nil
	case ClientMouseLockReleased:
		return ReleaseControl{}, nil
	case ClientIAmHere:
		return IAmHere{}, nil
	case ClientMousePosUpdate:
		var m MousePosUpdate
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, tag, err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownTag, tag)
	}
}

// parseClientTag accepts the numeric tag or its symbolic name.
func parseClientTag(v any) (ClientTag, error) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < 0 || n > math.MaxInt32 {
			return 0, fmt.Errorf("%w: %v", ErrUnknownTag, n)
		}
		return ClientTag(int(n)), nil
	case string:
		for tag, name := range clientTagNames {
			if strings.EqualFold(name, n) {
				return tag, nil
			}
		}
		return 0, fmt.Errorf("%w: %q", ErrUnknownTag, n)
	default:
		return 0, fmt.Errorf("%w: name must be a number or string", ErrParse)
	}
}

// Encode never fails: every ServerMessage built from decoded JSON is
// representable as JSON again.
func Encode(m ServerMessage) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		return []byte(fmt.Sprintf(`{"name":%d}`, m.Name))
	}
	return b
}

func FromEvent(ev engine.Event) (ServerMessage, bool) {
	switch ev.Type {
	case engine.EvtYourInfo:
		return ServerMessage{
			Name:         ServerYourInfo,
			PlayerID:     ev.PlayerID,
			CameraPos:    vec(ev.CameraPos),
			CameraTarget: vec(ev.CameraTarget),
		}, true
	case engine.EvtCameraUpdate:
		return ServerMessage{
			Name:         ServerCameraUpdate,
			CameraPos:    vec(ev.CameraPos),
			CameraTarget: vec(ev.CameraTarget),
		}, true
	case engine.EvtPlayerLocked:
		return ServerMessage{Name: ServerMousePlayerLocked, PlayerID: ev.PlayerID}, true
	case engine.EvtLockReleased:
		return ServerMessage{Name: ServerMouseLockReleased, PlayerID: ev.PlayerID}, true
	case engine.EvtLockDenied:
		return ServerMessage{Name: ServerMouseLockDenied, Access: "denied"}, true
	case engine.EvtCursorMoved:
		posX, posY, dragging := ev.Cursor.PosX, ev.Cursor.PosY, ev.Cursor.IsDragging
		return ServerMessage{
			Name:       ServerMousePosUpdate,
			PlayerID:   ev.PlayerID,
			PosX:       &posX,
			PosY:       &posY,
			IsDragging: &dragging,
		}, true
	case engine.EvtPlayerConnected:
		return ServerMessage{Name: ServerPlayerConnected, PlayerID: ev.PlayerID}, true
	case engine.EvtPlayerDisconnected:
		return ServerMessage{Name: ServerPlayerDisconnected, PlayerID: ev.PlayerID}, true
	case engine.EvtAreYouThere:
		return ServerMessage{Name: ServerAreYouThere}, true
	default:
		return ServerMessage{}, false
	}
}

func vec(v engine.Vec3) *engine.Vec3 { return &v }
