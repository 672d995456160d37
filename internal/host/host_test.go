package host

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"tombalago/internal/game"
	"tombalago/internal/protocol"
	"tombalago/internal/transport/mem"
)

var testTopics = protocol.TopicsFor("tombala", "ABC123")

func hostedRoom(betPrice int) *game.Room {
	room := game.NewRoom("ABC123", betPrice)
	_, _ = room.BeginWaiting()
	hostP := &game.Participant{
		ID:            "host",
		Name:          "host",
		Role:          game.RoleHost,
		MarkedNumbers: game.NumberSet{},
		SheetCount:    1,
		Sheets:        []game.Sheet{rowSheet(5, 12, 23, 34, 45)},
		PlayStatus:    game.PlayActive,
		IsReady:       true,
	}
	room.Players = append(room.Players, hostP)
	return room
}

func rowSheet(nums ...int) game.Sheet {
	s := game.Sheet{ID: "s1"}
	for _, n := range nums {
		col := (n - 1) / 10
		if col > 8 {
			col = 8
		}
		s.Rows[0][col] = n
	}
	return s
}

// snapshotRecorder subscribes like a follower and hands out decoded snapshots.
func snapshotRecorder(t *testing.T, bus *mem.Bus) <-chan *game.Room {
	t.Helper()
	out := make(chan *game.Room, 64)
	conn := bus.Conn()
	_, err := conn.Subscribe(context.Background(), testTopics.Host, func(_ string, payload []byte) {
		room, err := protocol.DecodeSnapshot(payload)
		if err != nil {
			t.Errorf("decode snapshot: %v", err)
			return
		}
		out <- room
	})
	require.NoError(t, err)
	return out
}

func recvSnapshot(t *testing.T, ch <-chan *game.Room, within time.Duration) *game.Room {
	t.Helper()
	select {
	case snap := <-ch:
		return snap
	case <-time.After(within):
		t.Fatalf("timed out waiting for snapshot")
		return nil
	}
}

func recvNoSnapshot(t *testing.T, ch <-chan *game.Room, within time.Duration) {
	t.Helper()
	select {
	case s := <-ch:
		t.Fatalf("expected no snapshot within %v, got status=%s called=%v", within, s.Status, s.CalledNumbers)
	case <-time.After(within):
	}
}

func sendCommand(t *testing.T, bus *mem.Bus, cmd game.Command) {
	t.Helper()
	payload, err := protocol.EncodeCommand(cmd)
	require.NoError(t, err)
	conn := bus.Conn()
	require.NoError(t, conn.Publish(context.Background(), testTopics.Client, payload, false))
}

func newTestSession(t *testing.T, bus *mem.Bus, room *game.Room, clock clockwork.Clock) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s, err := New(ctx, bus.Conn(), testTopics, room, Options{
		Clock:        clock,
		Rng:          rand.New(rand.NewSource(1)),
		DrawInterval: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Inbox() <- Shutdown{} })
	return s
}

func TestSession_PublishesInitialRetainedSnapshot(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	_ = newTestSession(t, bus, hostedRoom(100), clockwork.NewFakeClock())

	first := recvSnapshot(t, snaps, time.Second)
	require.Equal(t, game.StatusWaiting, first.Status)
	require.Equal(t, "ABC123", first.Code)
	require.Len(t, first.Players, 1)
}

func TestSession_AppliesGuestJoinAndBroadcasts(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	_ = newTestSession(t, bus, hostedRoom(100), clockwork.NewFakeClock())
	_ = recvSnapshot(t, snaps, time.Second)

	sendCommand(t, bus, game.JoinRequest{Participant: game.Participant{
		ID: "g1", Name: "guest", MarkedNumbers: game.NumberSet{}, PlayStatus: game.PlayActive,
	}})

	next := recvSnapshot(t, snaps, time.Second)
	require.Len(t, next.Players, 2)
	require.NotNil(t, next.Player("g1"))
}

func TestSession_DrawTimerTicksWhilePlaying(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	clock := clockwork.NewFakeClock()
	s := newTestSession(t, bus, hostedRoom(100), clock)
	_ = recvSnapshot(t, snaps, time.Second)

	s.Inbox() <- StartRound{}
	started := recvSnapshot(t, snaps, time.Second)
	require.Equal(t, game.StatusPlaying, started.Status)
	require.Empty(t, started.CalledNumbers)

	// The loop arms the timer on entering playing; wait for it, then fire.
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)

	drawn := recvSnapshot(t, snaps, time.Second)
	require.Len(t, drawn.CalledNumbers, 1)
	require.NotNil(t, drawn.CurrentNumber)
	require.Equal(t, drawn.CalledNumbers[0], *drawn.CurrentNumber)
	require.NotEmpty(t, drawn.Commentary, "commentary folded into the draw snapshot")

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)
	second := recvSnapshot(t, snaps, time.Second)
	require.Len(t, second.CalledNumbers, 2)
	require.NotEqual(t, second.CalledNumbers[0], second.CalledNumbers[1])
}

func TestSession_ReadyFlowOverTransport(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	clock := clockwork.NewFakeClock()
	s := newTestSession(t, bus, hostedRoom(10000), clock)
	_ = recvSnapshot(t, snaps, time.Second)

	sendCommand(t, bus, game.JoinRequest{Participant: game.Participant{
		ID: "g1", Name: "guest", MarkedNumbers: game.NumberSet{},
		Sheets: []game.Sheet{rowSheet(7, 18, 29, 31, 48)}, SheetCount: 1, PlayStatus: game.PlayActive,
	}})
	_ = recvSnapshot(t, snaps, time.Second)
	ready := true
	sendCommand(t, bus, game.PlayerUpdate{ParticipantID: "g1", IsReady: &ready})
	joined := recvSnapshot(t, snaps, time.Second)
	require.True(t, joined.Player("g1").IsReady)

	s.Inbox() <- StartRound{}
	started := recvSnapshot(t, snaps, time.Second)
	require.Equal(t, game.StatusPlaying, started.Status)
	require.Equal(t, 20000, started.Pot)
}

func TestSession_FullWinFlowPaysPotAndStopsDraws(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	clock := clockwork.NewFakeClock()
	room := hostedRoom(10000)
	guest := &game.Participant{
		ID: "g1", Name: "guest", Role: game.RoleGuest,
		MarkedNumbers: game.NumberSet{}, SheetCount: 1,
		Sheets:     []game.Sheet{rowSheet(7, 18, 29, 31, 48)},
		PlayStatus: game.PlayActive, IsReady: true,
	}
	room.Players = append(room.Players, guest)
	s := newTestSession(t, bus, room, clock)
	_ = recvSnapshot(t, snaps, time.Second)

	s.Inbox() <- StartRound{}
	started := recvSnapshot(t, snaps, time.Second)
	require.Equal(t, 20000, started.Pot)

	// Draw until the guest's whole row is out, marking along the way.
	marked := game.NumberSet{}
	need := game.NewNumberSet(7, 18, 29, 31, 48)
	deadline := time.Now().Add(10 * time.Second)
	for len(marked) < len(need) {
		require.True(t, time.Now().Before(deadline), "row never completed")
		require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
		clock.Advance(time.Second)
		snap := recvSnapshot(t, snaps, time.Second)
		n := *snap.CurrentNumber
		if need.Has(n) {
			marked.Add(n)
		}
	}

	sendCommand(t, bus, game.MarkUpdate{ParticipantID: "g1", MarkedNumbers: marked.Clone(), OneAway: false})
	_ = recvSnapshot(t, snaps, time.Second)
	sendCommand(t, bus, game.BingoClaim{ParticipantID: "g1", MarkedNumbers: marked.Clone()})

	ended := recvSnapshot(t, snaps, time.Second)
	require.Equal(t, game.StatusEnded, ended.Status)
	require.Equal(t, "g1", ended.Winner.ID)
	require.Equal(t, 0, ended.Pot)
	require.Equal(t, 10000, ended.Player("g1").Balance, "staked 10000, won 20000")
	require.ElementsMatch(t, []int{7, 18, 29, 31, 48}, ended.WinningNumbers)

	// Any timer must be gone with the round; no more draws can land.
	clock.Advance(5 * time.Second)
	recvNoSnapshot(t, snaps, 150*time.Millisecond)
}

func TestSession_DrainedPoolStopsDrawTimer(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	clock := clockwork.NewFakeClock()
	room := hostedRoom(100)
	room.Status = game.StatusPlaying
	for n := 1; n < game.MaxNumber; n++ {
		room.CalledNumbers = append(room.CalledNumbers, n)
	}
	_ = newTestSession(t, bus, room, clock)
	_ = recvSnapshot(t, snaps, time.Second)

	// Any state change while playing arms the timer for the final ball.
	sendCommand(t, bus, game.MarkUpdate{ParticipantID: "host", MarkedNumbers: game.NewNumberSet(5)})
	_ = recvSnapshot(t, snaps, time.Second)

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)
	last := recvSnapshot(t, snaps, time.Second)
	require.Len(t, last.CalledNumbers, game.MaxNumber)
	require.Equal(t, game.MaxNumber, *last.CurrentNumber, "only 90 was left in the bag")

	// The bag is empty: the tick must not leave a timer armed.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer waitCancel()
	require.Error(t, clock.BlockUntilContext(waitCtx, 1), "timer re-armed on a drained pool")
	clock.Advance(5 * time.Second)
	recvNoSnapshot(t, snaps, 150*time.Millisecond)
}

func TestSession_AnswersAfterTransportClose(t *testing.T) {
	bus := mem.NewBus(true)
	conn := bus.Conn()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s, err := New(ctx, conn, testTopics, hostedRoom(100), Options{
		Clock: clockwork.NewFakeClock(),
		Rng:   rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Inbox() <- Shutdown{} })

	// Closing the transport closes its notifications channel; the loop must
	// keep serving its inbox afterwards.
	require.NoError(t, conn.Close())

	reply := make(chan *game.Room, 1)
	s.Inbox() <- GetView{Reply: reply}
	select {
	case view := <-reply:
		require.Equal(t, "ABC123", view.Code)
	case <-time.After(time.Second):
		t.Fatal("loop stopped answering after transport close")
	}
}

func TestSession_ResendsSnapshotOnPeerJoinedWithoutRetention(t *testing.T) {
	bus := mem.NewBus(false)
	hostConn := bus.Conn()
	snaps := make(chan *game.Room, 16)
	_, err := hostConn.Subscribe(context.Background(), testTopics.Host, func(_ string, payload []byte) {
		room, derr := protocol.DecodeSnapshot(payload)
		if derr == nil {
			snaps <- room
		}
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s, err := New(ctx, hostConn, testTopics, hostedRoom(100), Options{
		Clock: clockwork.NewFakeClock(),
		Rng:   rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Inbox() <- Shutdown{} })
	_ = recvSnapshot(t, snaps, time.Second)

	// A new peer attaching to the bus must trigger a fresh snapshot even
	// though nothing in the room changed.
	_ = bus.Conn()
	resent := recvSnapshot(t, snaps, time.Second)
	require.Equal(t, "ABC123", resent.Code)
}

func TestSession_InvalidCommandsLeaveStateUntouched(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	s := newTestSession(t, bus, hostedRoom(100), clockwork.NewFakeClock())
	_ = recvSnapshot(t, snaps, time.Second)

	// Unknown participant, malformed payload, duplicate join: all dropped
	// without a broadcast.
	sendCommand(t, bus, game.BingoClaim{ParticipantID: "ghost"})
	conn := bus.Conn()
	require.NoError(t, conn.Publish(context.Background(), testTopics.Client, []byte(`{"type":"NOPE"}`), false))
	sendCommand(t, bus, game.JoinRequest{Participant: game.Participant{ID: "host"}})
	recvNoSnapshot(t, snaps, 150*time.Millisecond)

	reply := make(chan *game.Room, 1)
	s.Inbox() <- GetView{Reply: reply}
	view := <-reply
	require.Len(t, view.Players, 1)
}

func TestSession_KickIsCanonicalStateChange(t *testing.T) {
	bus := mem.NewBus(true)
	snaps := snapshotRecorder(t, bus)
	s := newTestSession(t, bus, hostedRoom(100), clockwork.NewFakeClock())
	_ = recvSnapshot(t, snaps, time.Second)

	sendCommand(t, bus, game.JoinRequest{Participant: game.Participant{ID: "g1", MarkedNumbers: game.NumberSet{}}})
	_ = recvSnapshot(t, snaps, time.Second)

	s.Inbox() <- Kick{ParticipantID: "g1"}
	next := recvSnapshot(t, snaps, time.Second)
	require.Nil(t, next.Player("g1"))
}
