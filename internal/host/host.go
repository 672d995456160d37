// Package host runs the authoritative side of a room: one goroutine owns the
// canonical aggregate, consumes guest commands in strict receipt order, drives
// the draw timer, and publishes retained snapshots. Nobody else ever writes
// the room.
package host

import (
	"context"
	"math/rand"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"tombalago/internal/commentary"
	"tombalago/internal/game"
	"tombalago/internal/protocol"
	"tombalago/internal/transport"
)

const commentaryTimeout = 2 * time.Second

// Msg is the host actor's inbox vocabulary.
type Msg interface{ isHostMsg() }

// StartRound moves waiting -> playing: stakes are collected and the draw
// timer armed.
type StartRound struct{}

// ResetRound returns an ended room to waiting.
type ResetRound struct{}

// Kick removes a participant; removal is an ordinary canonical state change.
type Kick struct{ ParticipantID string }

type Shutdown struct{}

// GetView asks the loop for a race-free copy of the room.
type GetView struct{ Reply chan *game.Room }

type fromGuest struct{ cmd game.Command }

func (StartRound) isHostMsg() {}
func (ResetRound) isHostMsg() {}
func (Kick) isHostMsg()       {}
func (Shutdown) isHostMsg()   {}
func (GetView) isHostMsg()    {}
func (fromGuest) isHostMsg()  {}

type Options struct {
	Clock        clockwork.Clock
	Rng          *rand.Rand
	DrawInterval time.Duration
	Commentator  commentary.Source
}

type Session struct {
	inbox     chan Msg
	tr        transport.Transport
	topics    protocol.Topics
	room      *game.Room
	clock     clockwork.Clock
	rng       *rand.Rand
	drawEvery time.Duration
	comments  commentary.Source
	drawTimer clockwork.Timer
	unsub     func()
	ctx       context.Context
	cancel    context.CancelFunc
}

// New wires the session onto the transport and starts the command loop. The
// supplied room must already contain the host participant; it is owned by the
// loop from here on.
func New(parent context.Context, tr transport.Transport, topics protocol.Topics, room *game.Room, opts Options) (*Session, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.DrawInterval <= 0 {
		opts.DrawInterval = 5 * time.Second
	}
	if opts.Commentator == nil {
		opts.Commentator = commentary.NewCanned(opts.Rng)
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:     make(chan Msg, 64),
		tr:        tr,
		topics:    topics,
		room:      room,
		clock:     opts.Clock,
		rng:       opts.Rng,
		drawEvery: opts.DrawInterval,
		comments:  opts.Commentator,
		ctx:       ctx,
		cancel:    cancel,
	}

	unsub, err := tr.Subscribe(ctx, topics.Client, func(_ string, payload []byte) {
		cmd, err := protocol.DecodeCommand(payload)
		if err != nil {
			// Malformed commands never reach the aggregate.
			zap.L().Warn("host.drop_command", zap.Error(err))
			return
		}
		select {
		case s.inbox <- fromGuest{cmd: cmd}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}
	s.unsub = unsub

	go s.loop()
	return s, nil
}

func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Code returns the room code; it never changes after creation.
func (s *Session) Code() string { return s.room.Code }

func (s *Session) loop() {
	s.publishSnapshot()
	notifs := s.tr.Notifications()

	for {
		var timerCh <-chan time.Time
		if s.drawTimer != nil {
			timerCh = s.drawTimer.Chan()
		}

		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-timerCh:
			s.drawTimer = nil
			s.handleDrawTick()

		case n, ok := <-notifs:
			if !ok {
				// Transport closed under us; stop selecting on it.
				notifs = nil
				continue
			}
			s.handleNotification(n)

		case m := <-s.inbox:
			switch msg := m.(type) {
			case fromGuest:
				s.applyAndBroadcast(msg.cmd)

			case StartRound:
				events, err := s.room.StartRound()
				if err != nil {
					zap.L().Warn("host.start_round", zap.Error(err))
					break
				}
				s.afterChange(events)

			case ResetRound:
				events, err := s.room.Reset()
				if err != nil {
					zap.L().Warn("host.reset", zap.Error(err))
					break
				}
				s.afterChange(events)

			case Kick:
				s.applyAndBroadcast(game.PlayerLeave{ParticipantID: msg.ParticipantID})

			case GetView:
				msg.Reply <- s.viewCopy()

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Session) applyAndBroadcast(cmd game.Command) {
	events, err := s.room.Apply(cmd)
	if err != nil {
		// Contextually invalid commands are dropped without touching state.
		zap.L().Warn("host.drop_command",
			zap.String("sender", cmd.Sender()),
			zap.Error(err))
		return
	}
	s.afterChange(events)
}

func (s *Session) afterChange(events []game.Event) {
	if len(events) == 0 {
		return
	}
	s.syncDrawTimer()
	s.publishSnapshot()
}

// syncDrawTimer keeps exactly one armed timer while playing and none
// otherwise. Every exit from playing, win included, lands here so a dangling
// timer cannot outlive the round. A drained pool parks the timer too; there
// is nothing left to draw.
func (s *Session) syncDrawTimer() {
	playing := s.room.Status == game.StatusPlaying &&
		len(s.room.CalledNumbers) < game.MaxNumber
	switch {
	case playing && s.drawTimer == nil:
		s.drawTimer = s.clock.NewTimer(s.drawEvery)
	case !playing && s.drawTimer != nil:
		stopAndDrainTimer(s.drawTimer)
		s.drawTimer = nil
	}
}

func (s *Session) handleDrawTick() {
	evt, ok := s.room.Draw(s.rng)
	if !ok {
		// Pool drained or no longer playing; nothing to re-arm.
		s.syncDrawTimer()
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, commentaryTimeout)
	line, err := s.comments.Line(ctx, evt.Number, game.MaxNumber-len(s.room.CalledNumbers))
	cancel()
	if err != nil {
		zap.L().Warn("host.commentary", zap.Error(err))
	} else {
		s.room.Commentary = line
	}

	s.syncDrawTimer()
	s.publishSnapshot()
}

func (s *Session) handleNotification(n transport.Notification) {
	switch n.Kind {
	case transport.PeerJoined:
		// Retention fallback: a transport with no last value relies on us
		// to greet new peers with the current snapshot.
		if !s.tr.SupportsRetained() {
			s.publishSnapshot()
		}
	case transport.ConnectionLost:
		zap.L().Error("host.transport_lost", zap.String("detail", n.Detail))
	}
}

func (s *Session) publishSnapshot() {
	payload, err := protocol.EncodeSnapshot(s.room)
	if err != nil {
		zap.L().Error("host.encode_snapshot", zap.Error(err))
		return
	}
	if err := s.tr.Publish(s.ctx, s.topics.Host, payload, true); err != nil {
		zap.L().Warn("host.publish_snapshot", zap.Error(err))
	}
}

// viewCopy round-trips through the wire codec: cheap, and guaranteed to match
// exactly what followers decode.
func (s *Session) viewCopy() *game.Room {
	payload, err := protocol.EncodeSnapshot(s.room)
	if err != nil {
		return nil
	}
	room, err := protocol.DecodeSnapshot(payload)
	if err != nil {
		return nil
	}
	return room
}

func (s *Session) shutdown() {
	if s.drawTimer != nil {
		stopAndDrainTimer(s.drawTimer)
		s.drawTimer = nil
	}
	if s.unsub != nil {
		s.unsub()
	}
	s.cancel()
}

// stopAndDrainTimer follows the time.Timer.Stop contract so a fired-but-
// unread tick cannot leak into the next round.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
