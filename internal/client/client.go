package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"tombalago/internal/game"
	"tombalago/internal/protocol"
	"tombalago/internal/transport"
)

// ErrRoomUnreachable is surfaced when no snapshot arrives within the join
// window: the room does not exist, or its host is gone.
var ErrRoomUnreachable = errors.New("room not found or unreachable")

const DefaultJoinTimeout = 15 * time.Second

// Session is one follower's connection to a room. Each session runs fully
// decoupled from every other follower; the only shared thing is the topic.
type Session struct {
	tr     transport.Transport
	topics protocol.Topics
	selfID string
	unsub  func()

	mu      sync.Mutex
	engine  *Engine
	oneAway bool
	closed  bool

	updates chan *game.Room
}

// Join subscribes to the room, announces the participant, and waits for the
// first snapshot up to timeout. No snapshot means the room is unreachable and
// the attempt is torn down.
func Join(ctx context.Context, tr transport.Transport, topics protocol.Topics, p game.Participant, timeout time.Duration) (*Session, error) {
	s, firstSnap, err := attach(ctx, tr, topics, p.ID)
	if err != nil {
		return nil, err
	}

	cmd := game.JoinRequest{Participant: p}
	if err := s.send(ctx, cmd); err != nil {
		s.teardown()
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	select {
	case <-firstSnap:
		return s, nil
	case <-time.After(timeout):
		s.teardown()
		return nil, ErrRoomUnreachable
	case <-ctx.Done():
		s.teardown()
		return nil, ctx.Err()
	}
}

// Attach is the host-UI variant of Join: the participant already sits in the
// canonical roster, so no JoinRequest is sent and no wait is needed.
func Attach(ctx context.Context, tr transport.Transport, topics protocol.Topics, selfID string) (*Session, error) {
	s, _, err := attach(ctx, tr, topics, selfID)
	return s, err
}

func attach(ctx context.Context, tr transport.Transport, topics protocol.Topics, selfID string) (*Session, <-chan struct{}, error) {
	s := &Session{
		tr:      tr,
		topics:  topics,
		selfID:  selfID,
		engine:  NewEngine(selfID),
		updates: make(chan *game.Room, 8),
	}

	firstSnap := make(chan struct{})
	var once sync.Once

	unsub, err := tr.Subscribe(ctx, topics.Host, func(_ string, payload []byte) {
		snap, err := protocol.DecodeSnapshot(payload)
		if err != nil {
			zap.L().Warn("client.bad_snapshot", zap.Error(err))
			return
		}
		once.Do(func() { close(firstSnap) })
		s.onSnapshot(snap)
	})
	if err != nil {
		return nil, nil, err
	}
	s.unsub = unsub
	return s, firstSnap, nil
}

func (s *Session) onSnapshot(snap *game.Room) {
	s.mu.Lock()
	view := s.engine.Apply(snap)
	s.mu.Unlock()

	// Drop the oldest pending view rather than block the transport.
	select {
	case s.updates <- view:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- view:
		default:
		}
	}
}

// Updates delivers reconciled views as snapshots arrive. Slow consumers see
// only the freshest view, never a stalled channel.
func (s *Session) Updates() <-chan *game.Room { return s.updates }

// SelfID returns the participant id this session joined with.
func (s *Session) SelfID() string { return s.selfID }

// View returns the current reconciled view, nil before the first snapshot.
func (s *Session) View() *game.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.View()
}

// ToggleMark flips a number locally and sends a MarkUpdate only when the
// derived one-away flag changed value, bounding command traffic. The host's
// copy of the exact marks may lag behind the local overlay.
func (s *Session) ToggleMark(ctx context.Context, n int) error {
	s.mu.Lock()
	flag := s.engine.ToggleMark(n)
	changed := flag != s.oneAway
	s.oneAway = flag
	var marks game.NumberSet
	if changed {
		marks = s.engine.Marked().Clone()
	}
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return s.send(ctx, game.MarkUpdate{
		ParticipantID: s.selfID,
		MarkedNumbers: marks,
		OneAway:       flag,
	})
}

// Claim sends a win claim carrying the client's current marks; the host
// arbitrates against its own called numbers only.
func (s *Session) Claim(ctx context.Context) error {
	s.mu.Lock()
	marks := s.engine.Marked().Clone()
	s.mu.Unlock()
	return s.send(ctx, game.BingoClaim{ParticipantID: s.selfID, MarkedNumbers: marks})
}

func (s *Session) SetReady(ctx context.Context, ready bool) error {
	return s.send(ctx, game.PlayerUpdate{ParticipantID: s.selfID, IsReady: &ready})
}

func (s *Session) Rename(ctx context.Context, name string) error {
	return s.send(ctx, game.PlayerUpdate{ParticipantID: s.selfID, Name: &name})
}

// ReplaceSheets swaps the whole sheet set, only possible before readiness.
func (s *Session) ReplaceSheets(ctx context.Context, sheets []game.Sheet) error {
	count := len(sheets)
	return s.send(ctx, game.PlayerUpdate{ParticipantID: s.selfID, Sheets: sheets, SheetCount: &count})
}

// Leave announces departure and tears the session down.
func (s *Session) Leave(ctx context.Context) error {
	err := s.send(ctx, game.PlayerLeave{ParticipantID: s.selfID})
	s.teardown()
	return err
}

func (s *Session) send(ctx context.Context, cmd game.Command) error {
	payload, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return s.tr.Publish(ctx, s.topics.Client, payload, false)
}

func (s *Session) teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	if s.unsub != nil {
		s.unsub()
	}
}
