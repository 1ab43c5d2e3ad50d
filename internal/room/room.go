package room

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/RyanHarrigan/multiplayer-model/internal/engine"
)

type Msg interface{ isRoomMsg() }

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

type Join struct {
	ClientID string
	Outbox   chan engine.Event // closed by the room when the client is removed
}

func (Join) isRoomMsg() {}

type Leave struct{ ClientID string }

func (Leave) isRoomMsg() {}

// Sweep runs the idle check immediately instead of waiting for the ticker.
type Sweep struct{}

func (Sweep) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// CloseIfEmpty stops the room only if nobody is in it when the message is
// handled. Reply receives whether it stopped.
type CloseIfEmpty struct {
	Reply chan bool
}

func (CloseIfEmpty) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type View struct {
	Code       string
	NumClients int
	Players    []string
	State      engine.State
}

type Options struct {
	NudgeAfter time.Duration // idle time before ARE_YOU_THERE; 0 disables
	DropAfter  time.Duration // idle time before disconnect; 0 disables
	SweepEvery time.Duration // 0 disables the ticker, Sweep still works
	Now        func() time.Time
	Logger     *zap.Logger

	// OnEmpty is called from the room goroutine when the last client leaves,
	// and by the sweeper once a room nobody joined has sat empty for
	// DropAfter. It must not block.
	OnEmpty func(*Room)
}

type client struct {
	outbox     chan engine.Event
	lastAction time.Time
	nudged     bool
}

type Room struct {
	code    string
	inbox   chan Msg
	state   engine.State
	clients map[string]*client
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	// zero while anyone is connected
	emptySince time.Time
}

func NewRoom(parent context.Context, code string, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := &Room{
		code:       code,
		inbox:      make(chan Msg, 64),
		state:      engine.NewState(),
		clients:    make(map[string]*client),
		opts:       opts,
		log:        log.With(zap.String("room", code)),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		emptySince: opts.Now(),
	}

	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.done)

	var tick <-chan time.Time
	if r.opts.SweepEvery > 0 {
		t := time.NewTicker(r.opts.SweepEvery)
		defer t.Stop()
		tick = t.C
	}

	r.log.Info("room started")
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case <-tick:
			r.sweep()

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				if _, ok := r.clients[msg.ClientID]; ok {
					r.log.Warn("duplicate join ignored", zap.String("player", msg.ClientID))
					break
				}
				r.clients[msg.ClientID] = &client{outbox: msg.Outbox, lastAction: r.opts.Now()}
				r.emptySince = time.Time{}
				r.log.Debug("player joined", zap.String("player", msg.ClientID), zap.Int("clients", len(r.clients)))
				r.dispatch(engine.Join(r.state, msg.ClientID))

			case Leave:
				r.disconnect(msg.ClientID)

			case FromClient:
				r.apply(msg)

			case Sweep:
				r.sweep()

			case GetState:
				msg.Reply <- r.view()

			case CloseIfEmpty:
				if len(r.clients) > 0 {
					msg.Reply <- false
					break
				}
				msg.Reply <- true
				r.shutdown()
				return

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) apply(msg FromClient) {
	c, ok := r.clients[msg.ClientID]
	if !ok {
		// already dropped; whatever it sent no longer counts
		return
	}

	cmd := msg.Cmd
	cmd.PlayerID = msg.ClientID
	if cmd.Type == engine.CmdMove || cmd.Type == engine.CmdPing {
		c.lastAction = r.opts.Now()
		c.nudged = false
	}

	events, newState, err := engine.Apply(r.state, cmd)
	if err != nil {
		if errors.Is(err, engine.ErrUnsupportedCommand) {
			r.log.Debug("command ignored", zap.String("player", msg.ClientID), zap.String("cmd", string(cmd.Type)))
		}
		return
	}
	r.state = newState
	r.dispatch(events)
}

func (r *Room) sweep() {
	now := r.opts.Now()
	var nudge, drop []string

	for id, c := range r.clients {
		idle := now.Sub(c.lastAction)
		switch {
		case r.opts.DropAfter > 0 && idle >= r.opts.DropAfter:
			drop = append(drop, id)
		case r.opts.NudgeAfter > 0 && idle >= r.opts.NudgeAfter && !c.nudged:
			c.nudged = true
			nudge = append(nudge, id)
		}
	}

	for _, id := range nudge {
		r.dispatch([]engine.Event{{Type: engine.EvtAreYouThere, To: id}})
	}
	for _, id := range drop {
		r.log.Info("dropping idle client", zap.String("player", id))
		r.disconnect(id)
	}

	if len(r.clients) == 0 && !r.emptySince.IsZero() && r.opts.DropAfter > 0 &&
		now.Sub(r.emptySince) >= r.opts.DropAfter {
		r.notifyEmpty()
	}
}

// disconnect removes a client that is still registered and tells the rest of
// the room. Unknown ids are ignored.
func (r *Room) disconnect(id string) {
	c, ok := r.clients[id]
	if !ok {
		return
	}
	close(c.outbox)
	delete(r.clients, id)
	r.leave(id)
}

func (r *Room) leave(id string) {
	events, newState := engine.Leave(r.state, id)
	if r.state.LockOwner == id {
		r.log.Info("lock released on leave", zap.String("player", id))
	}
	r.state = newState
	r.log.Debug("player left", zap.String("player", id), zap.Int("clients", len(r.clients)))
	r.dispatch(events)

	if len(r.clients) == 0 && r.emptySince.IsZero() {
		r.emptySince = r.opts.Now()
		r.notifyEmpty()
	}
}

func (r *Room) notifyEmpty() {
	if r.opts.OnEmpty != nil {
		r.opts.OnEmpty(r)
	}
}

func (r *Room) dispatch(events []engine.Event) {
	var dropped []string

	for _, ev := range events {
		if !ev.Broadcast() {
			if c, ok := r.clients[ev.To]; ok && !r.deliver(ev.To, c, ev) {
				dropped = append(dropped, ev.To)
			}
			continue
		}
		for id, c := range r.clients {
			if !r.deliver(id, c, ev) {
				dropped = append(dropped, id)
			}
		}
	}

	for _, id := range dropped {
		r.log.Info("dropping slow client", zap.String("player", id))
		r.leave(id)
	}
}

func (r *Room) deliver(id string, c *client, ev engine.Event) bool {
	select {
	case c.outbox <- ev:
		return true
	default:
		// Client is slow/full - drop them.
		close(c.outbox)
		delete(r.clients, id)
		return false
	}
}

func (r *Room) view() View {
	players := make([]string, 0, len(r.clients))
	for id := range r.clients {
		players = append(players, id)
	}
	sort.Strings(players)
	return View{
		Code:       r.code,
		NumClients: len(r.clients),
		Players:    players,
		State:      r.state,
	}
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		close(c.outbox) // Tell client no more events
		delete(r.clients, id)
	}
	r.cancel()
	r.drain()
	r.log.Info("room stopped")
}

// drain empties the inbox after the loop has stopped so a Join that slipped in
// late still gets its outbox closed.
func (r *Room) drain() {
	for {
		select {
		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				close(msg.Outbox)
			case CloseIfEmpty:
				msg.Reply <- true
			}
		default:
			return
		}
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Send delivers m unless the room has already stopped.
func (r *Room) Send(m Msg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

// Snapshot asks the room for its current view. ok is false if the room has
// stopped or ctx ends first.
func (r *Room) Snapshot(ctx context.Context) (View, bool) {
	reply := make(chan View, 1)
	if !r.Send(GetState{Reply: reply}) {
		return View{}, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-r.done:
		return View{}, false
	case <-ctx.Done():
		return View{}, false
	}
}

func (r *Room) Code() string { return r.code }

func (r *Room) Done() <-chan struct{} { return r.done }
