package hub

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/RyanHarrigan/multiplayer-model/internal/room"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom replies nil if the code is already taken.
type CreateRoom struct {
	Code  string
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type EnsureRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom stops the room and disconnects whoever is in it.
type RemoveRoom struct {
	Code  string
	Reply chan bool // optional
}

// RoomEmpty is sent by a room that just lost its last client. The room is
// only removed if it is still registered and still empty.
type RoomEmpty struct {
	Room *room.Room
}

type ListRooms struct {
	Reply chan []string
}

type ShutdownHub struct{}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   room.Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (RoomEmpty) isHubMsg()   {}
func (ListRooms) isHubMsg()   {}
func (ShutdownHub) isHubMsg() {}

// NewHub starts the registry. Every room it creates gets opts, with OnEmpty
// pointed back at the hub.
func NewHub(parent context.Context, opts room.Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	opts.OnEmpty = h.roomEmpty
	h.opts = opts

	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

// roomEmpty runs on the room's goroutine, which must never wait on the hub.
func (h *Hub) roomEmpty(rm *room.Room) {
	go func() {
		select {
		case h.inbox <- RoomEmpty{Room: rm}:
		case <-h.done:
		}
	}()
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if h.rooms[msg.Code] != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.create(msg.Code)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.create(msg.Code)

			case RemoveRoom:
				rm := h.rooms[msg.Code]
				if rm != nil {
					rm.Send(room.Shutdown{})
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code))
				}
				if msg.Reply != nil {
					msg.Reply <- rm != nil
				}

			case RoomEmpty:
				h.reclaim(msg.Room)

			case ListRooms:
				codes := make([]string, 0, len(h.rooms))
				for code := range h.rooms {
					codes = append(codes, code)
				}
				sort.Strings(codes)
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(code string) *room.Room {
	rm := room.NewRoom(h.ctx, code, h.opts)
	h.rooms[code] = rm
	h.log.Info("room created", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
	return rm
}

// reclaim asks the room to stop if it is still empty. While the hub waits no
// Ensure can hand the room out, and a Join already queued ahead of the
// question keeps the room alive.
func (h *Hub) reclaim(rm *room.Room) {
	code := rm.Code()
	if h.rooms[code] != rm {
		return
	}

	reply := make(chan bool, 1)
	closed := true
	if rm.Send(room.CloseIfEmpty{Reply: reply}) {
		select {
		case closed = <-reply:
		case <-rm.Done():
		}
	}
	if !closed {
		return
	}
	delete(h.rooms, code)
	h.log.Info("empty room reclaimed", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		rm.Send(room.Shutdown{})
	}
	clear(h.rooms)
	h.cancel()
}

// request sends m and waits for the reply unless the hub is gone.
func request[T any](ctx context.Context, h *Hub, m HubMsg, reply chan T) (T, bool) {
	var zero T
	select {
	case h.inbox <- m:
	case <-h.done:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-h.done:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// Get returns nil if no room has that code.
func (h *Hub) Get(ctx context.Context, code string) *room.Room {
	reply := make(chan *room.Room, 1)
	rm, _ := request(ctx, h, GetRoom{Code: code, Reply: reply}, reply)
	return rm
}

// Create returns a nil room with ok true when the code is taken; ok is false
// only if the hub is gone.
func (h *Hub) Create(ctx context.Context, code string) (*room.Room, bool) {
	reply := make(chan *room.Room, 1)
	return request(ctx, h, CreateRoom{Code: code, Reply: reply}, reply)
}

func (h *Hub) Ensure(ctx context.Context, code string) *room.Room {
	reply := make(chan *room.Room, 1)
	rm, _ := request(ctx, h, EnsureRoom{Code: code, Reply: reply}, reply)
	return rm
}

func (h *Hub) Remove(ctx context.Context, code string) bool {
	reply := make(chan bool, 1)
	removed, _ := request(ctx, h, RemoveRoom{Code: code, Reply: reply}, reply)
	return removed
}

func (h *Hub) List(ctx context.Context) []string {
	reply := make(chan []string, 1)
	codes, _ := request(ctx, h, ListRooms{Reply: reply}, reply)
	return codes
}
