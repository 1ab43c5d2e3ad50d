package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanHarrigan/multiplayer-model/internal/engine"
)

// helper: receive one event with a timeout so tests never hang
func recvEvent(t *testing.T, ch <-chan engine.Event, within time.Duration) engine.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return engine.Event{} // unreachable
	}
}

func recvNoEvent(t *testing.T, ch <-chan engine.Event, within time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no event within %v, but got: %+v", within, ev)
	case <-time.After(within):
	}
}

func recvClosed(t *testing.T, ch <-chan engine.Event, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox was not closed within %v", within)
		}
	}
}

func recvView(t *testing.T, r *Room) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, ok := r.Snapshot(ctx)
	require.True(t, ok, "room did not answer GetState")
	return v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRoom(t *testing.T, opts Options) *Room {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRoom(ctx, "TEST01", opts)
}

func joinClient(t *testing.T, r *Room, id string, size int) chan engine.Event {
	t.Helper()
	out := make(chan engine.Event, size)
	require.True(t, r.Send(Join{ClientID: id, Outbox: out}))
	return out
}

func drain(t *testing.T, ch <-chan engine.Event, n int) []engine.Event {
	t.Helper()
	events := make([]engine.Event, 0, n)
	for i := 0; i < n; i++ {
		events = append(events, recvEvent(t, ch, 200*time.Millisecond))
	}
	return events
}

func dragTo(pos, target engine.Vec3) engine.Command {
	return engine.Command{
		Type:         engine.CmdMove,
		Cursor:       engine.Cursor{PosX: 10, PosY: 20, IsDragging: true},
		CameraPos:    pos,
		CameraTarget: target,
	}
}

func TestRoom_Scenario(t *testing.T) {
	r := newTestRoom(t, Options{})

	// A connects
	a := joinClient(t, r, "A", 16)
	got := drain(t, a, 3)
	assert.Equal(t, engine.Event{Type: engine.EvtYourInfo, To: "A", PlayerID: "A",
		CameraPos: engine.Vec3{X: 0, Y: 20, Z: 100}, CameraTarget: engine.Vec3{}}, got[0])
	assert.Equal(t, engine.Event{Type: engine.EvtCameraUpdate, To: "A",
		CameraPos: engine.Vec3{X: 0, Y: 20, Z: 100}, CameraTarget: engine.Vec3{}}, got[1])
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerConnected, PlayerID: "A"}, got[2])

	// A takes the lock
	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdRequestControl}})
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerLocked, PlayerID: "A"}, recvEvent(t, a, 200*time.Millisecond))

	// B connects and is denied
	b := joinClient(t, r, "B", 16)
	drain(t, b, 3)
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerConnected, PlayerID: "B"}, recvEvent(t, a, 200*time.Millisecond))

	r.Send(FromClient{ClientID: "B", Cmd: engine.Command{Type: engine.CmdRequestControl}})
	assert.Equal(t, engine.Event{Type: engine.EvtLockDenied, To: "B"}, recvEvent(t, b, 200*time.Millisecond))
	recvNoEvent(t, a, 50*time.Millisecond)
	assert.Equal(t, "A", recvView(t, r).State.LockOwner)

	// A drags
	pos, target := engine.Vec3{X: 1, Y: 2, Z: 3}, engine.Vec3{X: 4, Y: 5, Z: 6}
	r.Send(FromClient{ClientID: "A", Cmd: dragTo(pos, target)})
	for _, ch := range []chan engine.Event{a, b} {
		cam := recvEvent(t, ch, 200*time.Millisecond)
		assert.Equal(t, engine.EvtCameraUpdate, cam.Type)
		assert.Equal(t, pos, cam.CameraPos)
		assert.Equal(t, target, cam.CameraTarget)
		cursor := recvEvent(t, ch, 200*time.Millisecond)
		assert.Equal(t, engine.EvtCursorMoved, cursor.Type)
		assert.Equal(t, "A", cursor.PlayerID)
	}
	v := recvView(t, r)
	assert.Equal(t, pos, v.State.CameraPos)
	assert.Equal(t, target, v.State.CameraTarget)

	// A releases
	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdReleaseControl}})
	for _, ch := range []chan engine.Event{a, b} {
		assert.Equal(t, engine.Event{Type: engine.EvtLockReleased, PlayerID: "A"}, recvEvent(t, ch, 200*time.Millisecond))
	}
	assert.False(t, recvView(t, r).State.Locked())
}

func TestRoom_NonOwnerDragOnlyMovesCursor(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := joinClient(t, r, "A", 16)
	b := joinClient(t, r, "B", 16)
	drain(t, a, 4)
	drain(t, b, 3)

	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdRequestControl}})
	drain(t, a, 1)
	drain(t, b, 1)

	r.Send(FromClient{ClientID: "B", Cmd: dragTo(engine.Vec3{X: 7}, engine.Vec3{Y: 7})})
	ev := recvEvent(t, a, 200*time.Millisecond)
	assert.Equal(t, engine.EvtCursorMoved, ev.Type)
	assert.Equal(t, "B", ev.PlayerID)
	recvNoEvent(t, a, 50*time.Millisecond)

	assert.Equal(t, engine.NewState().CameraPos, recvView(t, r).State.CameraPos)
}

func TestRoom_PlayerIDComesFromConnection(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)

	// a forged player id in the command is overwritten by the sender's id
	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdRequestControl, PlayerID: "Z"}})
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerLocked, PlayerID: "A"}, recvEvent(t, a, 200*time.Millisecond))
}

func TestRoom_DuplicateJoinIgnored(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)

	other := joinClient(t, r, "A", 16)
	recvNoEvent(t, other, 50*time.Millisecond)
	recvNoEvent(t, a, 50*time.Millisecond)
	assert.Equal(t, 1, recvView(t, r).NumClients)
}

func TestRoom_OwnerLeaveReleasesLock(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := joinClient(t, r, "A", 16)
	b := joinClient(t, r, "B", 16)
	drain(t, a, 4)
	drain(t, b, 3)

	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdRequestControl}})
	drain(t, a, 1)
	drain(t, b, 1)

	r.Send(Leave{ClientID: "A"})
	assert.Equal(t, engine.Event{Type: engine.EvtLockReleased, PlayerID: "A"}, recvEvent(t, b, 200*time.Millisecond))
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerDisconnected, PlayerID: "A"}, recvEvent(t, b, 200*time.Millisecond))
	recvClosed(t, a, 200*time.Millisecond)

	v := recvView(t, r)
	assert.False(t, v.State.Locked())
	assert.Equal(t, []string{"B"}, v.Players)

	// a second Leave for the same id is a no-op
	r.Send(Leave{ClientID: "A"})
	recvNoEvent(t, b, 50*time.Millisecond)
}

func TestRoom_DropSlowClient(t *testing.T) {
	r := newTestRoom(t, Options{})

	// room for exactly join (3) + locked (1)
	a := joinClient(t, r, "A", 4)
	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdRequestControl}})

	b := joinClient(t, r, "B", 16)
	got := drain(t, b, 5)
	assert.Equal(t, engine.EvtPlayerConnected, got[2].Type)
	assert.Equal(t, engine.Event{Type: engine.EvtLockReleased, PlayerID: "A"}, got[3])
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerDisconnected, PlayerID: "A"}, got[4])

	v := recvView(t, r)
	assert.Equal(t, 1, v.NumClients)
	assert.False(t, v.State.Locked())

	assert.Len(t, drain(t, a, 4), 4)
	recvClosed(t, a, 200*time.Millisecond)
}

func TestRoom_IdleSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRoom(t, Options{
		NudgeAfter: 5 * time.Second,
		DropAfter:  30 * time.Second,
		Now:        clock.Now,
	})

	a := joinClient(t, r, "A", 16)
	b := joinClient(t, r, "B", 16)
	drain(t, a, 4)
	drain(t, b, 3)

	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdRequestControl}})
	drain(t, a, 1)
	drain(t, b, 1)

	clock.Advance(6 * time.Second)
	r.Send(FromClient{ClientID: "B", Cmd: engine.Command{Type: engine.CmdPing}})
	r.Send(Sweep{})
	assert.Equal(t, engine.Event{Type: engine.EvtAreYouThere, To: "A"}, recvEvent(t, a, 200*time.Millisecond))
	recvNoEvent(t, b, 50*time.Millisecond)

	// nudged once only
	r.Send(Sweep{})
	recvNoEvent(t, a, 50*time.Millisecond)

	clock.Advance(25 * time.Second)
	r.Send(Sweep{})
	// B has been quiet for 25s by now; nudges go out before drops
	assert.Equal(t, engine.Event{Type: engine.EvtAreYouThere, To: "B"}, recvEvent(t, b, 200*time.Millisecond))
	assert.Equal(t, engine.Event{Type: engine.EvtLockReleased, PlayerID: "A"}, recvEvent(t, b, 200*time.Millisecond))
	assert.Equal(t, engine.Event{Type: engine.EvtPlayerDisconnected, PlayerID: "A"}, recvEvent(t, b, 200*time.Millisecond))
	recvClosed(t, a, 200*time.Millisecond)

	v := recvView(t, r)
	assert.Equal(t, []string{"B"}, v.Players)
	assert.False(t, v.State.Locked())
}

func TestRoom_ActivityClearsNudge(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRoom(t, Options{NudgeAfter: 5 * time.Second, Now: clock.Now})

	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)

	clock.Advance(5 * time.Second)
	r.Send(Sweep{})
	assert.Equal(t, engine.EvtAreYouThere, recvEvent(t, a, 200*time.Millisecond).Type)

	r.Send(FromClient{ClientID: "A", Cmd: engine.Command{Type: engine.CmdPing}})
	clock.Advance(5 * time.Second)
	r.Send(Sweep{})
	assert.Equal(t, engine.EvtAreYouThere, recvEvent(t, a, 200*time.Millisecond).Type)
}

func TestRoom_Shutdown_ClosesOutboxes(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)

	r.Send(Shutdown{})
	recvClosed(t, a, 200*time.Millisecond)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("room did not stop")
	}
	assert.False(t, r.Send(Leave{ClientID: "A"}))
	_, ok := r.Snapshot(context.Background())
	assert.False(t, ok)
}

func TestRoom_ParentCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRoom(ctx, "TEST02", Options{})
	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)

	cancel()
	recvClosed(t, a, 200*time.Millisecond)
}

func TestRoom_SweepTickerRunsWithoutSweepMessages(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	r := newTestRoom(t, Options{
		NudgeAfter: 5 * time.Second,
		SweepEvery: 10 * time.Millisecond,
		Now:        clock.Now,
	})

	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)
	recvNoEvent(t, a, 50*time.Millisecond)

	clock.Advance(6 * time.Second)
	assert.Equal(t, engine.Event{Type: engine.EvtAreYouThere, To: "A"}, recvEvent(t, a, 500*time.Millisecond))
}

func TestRoom_OnEmptyAfterLastLeave(t *testing.T) {
	emptied := make(chan *Room, 4)
	r := newTestRoom(t, Options{OnEmpty: func(r *Room) { emptied <- r }})

	a := joinClient(t, r, "A", 16)
	b := joinClient(t, r, "B", 16)
	drain(t, a, 4)
	drain(t, b, 3)

	r.Send(Leave{ClientID: "A"})
	recvClosed(t, a, 200*time.Millisecond)
	select {
	case <-emptied:
		t.Fatalf("room reported empty while B is still connected")
	case <-time.After(50 * time.Millisecond):
	}

	r.Send(Leave{ClientID: "B"})
	select {
	case got := <-emptied:
		assert.Same(t, r, got)
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty not called after the last leave")
	}
}

func TestRoom_OnEmptyForRoomNobodyJoined(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	emptied := make(chan *Room, 4)
	r := newTestRoom(t, Options{
		DropAfter: 30 * time.Second,
		Now:       clock.Now,
		OnEmpty:   func(r *Room) { emptied <- r },
	})

	clock.Advance(10 * time.Second)
	r.Send(Sweep{})
	recvView(t, r) // sweep has run
	assert.Empty(t, emptied)

	clock.Advance(20 * time.Second)
	r.Send(Sweep{})
	select {
	case got := <-emptied:
		assert.Same(t, r, got)
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty not called for an unused room")
	}
}

func TestRoom_CloseIfEmpty(t *testing.T) {
	r := newTestRoom(t, Options{})
	a := joinClient(t, r, "A", 16)
	drain(t, a, 3)

	reply := make(chan bool, 1)
	require.True(t, r.Send(CloseIfEmpty{Reply: reply}))
	assert.False(t, <-reply)
	assert.Equal(t, []string{"A"}, recvView(t, r).Players)

	r.Send(Leave{ClientID: "A"})
	require.True(t, r.Send(CloseIfEmpty{Reply: reply}))
	assert.True(t, <-reply)
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("empty room did not stop")
	}
}

func TestRoom_JoinQueuedBehindShutdownIsClosed(t *testing.T) {
	r := newTestRoom(t, Options{})

	// Hold the loop on an unbuffered reply so the next messages queue up
	// behind Shutdown.
	reply := make(chan View)
	require.True(t, r.Send(GetState{Reply: reply}))
	late := make(chan engine.Event, 16)
	closeReply := make(chan bool, 1)
	r.Inbox() <- Shutdown{}
	r.Inbox() <- Join{ClientID: "LATE", Outbox: late}
	r.Inbox() <- CloseIfEmpty{Reply: closeReply}
	<-reply

	recvClosed(t, late, time.Second)
	assert.True(t, <-closeReply)
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("room did not stop")
	}
}
