package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RyanHarrigan/multiplayer-model/internal/engine"
	"github.com/RyanHarrigan/multiplayer-model/internal/hub"
	"github.com/RyanHarrigan/multiplayer-model/internal/room"
	"github.com/RyanHarrigan/multiplayer-model/internal/types"
)

type Options struct {
	OriginPatterns []string
	OutboxSize     int
	WriteTimeout   time.Duration
	Logger         *zap.Logger
}

// Handler upgrades /parties/main/{code} and attaches the connection to that
// room, creating the room if nobody has joined it yet.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		clog := log.With(zap.String("room", code), zap.String("player", clientID))

		// The room is only looked up once the upgrade succeeded, so plain
		// requests never create one.
		rm, out, first, ok := joinRoom(r.Context(), h, code, clientID, opts.OutboxSize)
		if !ok {
			conn.Close(websocket.StatusTryAgainLater, "room unavailable")
			return
		}
		defer rm.Send(room.Leave{ClientID: clientID})
		clog.Info("connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, first, out, opts.WriteTimeout, clog)

		// Reader loop
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("disconnected")
				default:
					clog.Debug("read ended", zap.Error(err))
				}
				return
			}

			msg, err := types.Decode(typ, data)
			switch {
			case errors.Is(err, types.ErrUnknownTag):
				continue
			case err != nil:
				clog.Debug("dropping message", zap.Error(err))
				continue
			}

			cmd, ok := toEngineCommand(msg)
			if !ok {
				continue
			}
			if !rm.Send(room.FromClient{ClientID: clientID, Cmd: cmd}) {
				conn.Close(websocket.StatusGoingAway, "room closed")
				return
			}
		}
	}
}

const joinAttempts = 3

// joinRoom registers clientID with the room for code and waits for the first
// event. A room that stops between lookup and join (emptied and reclaimed)
// closes the outbox or finishes without answering; then a fresh room is
// looked up.
func joinRoom(ctx context.Context, h *hub.Hub, code, clientID string, size int) (*room.Room, chan engine.Event, engine.Event, bool) {
	for i := 0; i < joinAttempts; i++ {
		rm := h.Ensure(ctx, code)
		if rm == nil {
			return nil, nil, engine.Event{}, false
		}

		out := make(chan engine.Event, size)
		if !rm.Send(room.Join{ClientID: clientID, Outbox: out}) {
			continue
		}
		select {
		case ev, ok := <-out:
			if ok {
				return rm, out, ev, true
			}
		case <-rm.Done():
		case <-ctx.Done():
			return nil, nil, engine.Event{}, false
		}
	}
	return nil, nil, engine.Event{}, false
}

func writeLoop(ctx context.Context, conn *websocket.Conn, first engine.Event, out <-chan engine.Event, timeout time.Duration, log *zap.Logger) {
	write := func(ev engine.Event) {
		msg, ok := types.FromEvent(ev)
		if !ok {
			log.Warn("no wire form for event", zap.String("event", string(ev.Type)))
			return
		}
		wctx, cancel := context.WithTimeout(ctx, timeout)
		// delivery is best effort; a broken socket surfaces on the read side
		_ = conn.Write(wctx, websocket.MessageText, types.Encode(msg))
		cancel()
	}

	write(first)
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				// The room closed our outbox: we were dropped, or the room stopped.
				if ctx.Err() == nil {
					log.Info("removed by room")
					conn.Close(websocket.StatusPolicyViolation, "removed from room")
				}
				return
			}
			write(ev)
		case <-ctx.Done():
			return
		}
	}
}

func toEngineCommand(m types.ClientMessage) (engine.Command, bool) {
	switch msg := m.(type) {
	case types.RequestControl:
		return engine.Command{Type: engine.CmdRequestControl}, true
	case types.ReleaseControl:
		return engine.Command{Type: engine.CmdReleaseControl}, true
	case types.IAmHere:
		return engine.Command{Type: engine.CmdPing}, true
	case types.MousePosUpdate:
		return engine.Command{
			Type: engine.CmdMove,
			Cursor: engine.Cursor{
				PosX:       msg.PosX,
				PosY:       msg.PosY,
				IsDragging: msg.IsDragging,
			},
			CameraPos:    msg.CameraPos,
			CameraTarget: msg.CameraTarget,
		}, true
	default:
		return engine.Command{}, false
	}
}
