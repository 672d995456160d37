// Package session handles room lifecycle: code generation, creating a room as
// host, joining one as guest, and leaving. There is no host migration; when
// the host goes, the room goes with it.
package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand"
	"time"

	"github.com/google/uuid"

	"tombalago/internal/client"
	"tombalago/internal/game"
	"tombalago/internal/game/ticket"
	"tombalago/internal/host"
	"tombalago/internal/protocol"
	"tombalago/internal/transport"
)

// GenerateCode returns a short shareable room code.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// HostHandle bundles the authoritative session with the host's own follower
// view; the host UI reconciles snapshots exactly like any guest.
type HostHandle struct {
	Code   string
	SelfID string
	Host   *host.Session
	UI     *client.Session
}

// Create opens a new room on the transport and assumes the host role. The
// code is passed in because some transports are dialed per room.
func Create(ctx context.Context, tr transport.Transport, prefix, code, name string, sheetCount, betPrice int, opts host.Options) (*HostHandle, error) {
	if code == "" {
		return nil, fmt.Errorf("empty room code")
	}
	topics := protocol.TopicsFor(prefix, code)

	rng := opts.Rng
	if rng == nil {
		rng = mrand.New(mrand.NewSource(time.Now().UnixNano()))
		opts.Rng = rng
	}

	p := NewParticipant(rng, name, sheetCount)
	p.Role = game.RoleHost

	room := game.NewRoom(code, betPrice)
	if _, err := room.BeginWaiting(); err != nil {
		return nil, err
	}
	room.Players = append(room.Players, &p)

	h, err := host.New(ctx, tr, topics, room, opts)
	if err != nil {
		return nil, err
	}

	ui, err := client.Attach(ctx, tr, topics, p.ID)
	if err != nil {
		h.Inbox() <- host.Shutdown{}
		return nil, err
	}

	return &HostHandle{Code: code, SelfID: p.ID, Host: h, UI: ui}, nil
}

// Join connects to an existing room as guest. A timeout without any snapshot
// tears the attempt down and reports the room unreachable.
func Join(ctx context.Context, tr transport.Transport, prefix, code, name string, sheetCount int, timeout time.Duration) (*client.Session, error) {
	topics := protocol.TopicsFor(prefix, code)
	rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))
	p := NewParticipant(rng, name, sheetCount)
	return client.Join(ctx, tr, topics, p, timeout)
}

// NewParticipant builds a fresh connection-scoped participant with generated
// sheets. The id lives and dies with this connection.
func NewParticipant(rng *mrand.Rand, name string, sheetCount int) game.Participant {
	if sheetCount < 1 {
		sheetCount = 1
	}
	return game.Participant{
		ID:            uuid.NewString(),
		Name:          name,
		Role:          game.RoleGuest,
		Sheets:        ticket.NewN(rng, sheetCount),
		MarkedNumbers: game.NumberSet{},
		SheetCount:    sheetCount,
		PlayStatus:    game.PlayActive,
	}
}
