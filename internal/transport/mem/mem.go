// Package mem is an in-process transport: a bus shared by every conn in the
// same process. It can run with or without retained last values, which makes
// it handy for exercising both the broker-style path and the
// peer-joined/resend fallback without any network.
package mem

import (
	"context"
	"sync"

	"tombalago/internal/transport"
)

type Bus struct {
	retainedMode bool

	mu       sync.Mutex
	retained map[string][]byte
	subs     map[string]map[int]subEntry
	conns    []*Conn
	nextID   int
}

type subEntry struct {
	conn *Conn
	h    transport.Handler
}

// NewBus creates a bus. retained controls whether the bus keeps last values
// natively; with false, conns report SupportsRetained false and every new
// conn raises PeerJoined on the others.
func NewBus(retained bool) *Bus {
	return &Bus{
		retainedMode: retained,
		retained:     make(map[string][]byte),
		subs:         make(map[string]map[int]subEntry),
	}
}

// Conn attaches one peer to the bus.
func (b *Bus) Conn() *Conn {
	c := &Conn{bus: b, notify: make(chan transport.Notification, 8)}
	b.mu.Lock()
	others := append([]*Conn(nil), b.conns...)
	b.conns = append(b.conns, c)
	b.mu.Unlock()

	if !b.retainedMode {
		for _, o := range others {
			o.notifyPeerJoined()
		}
	}
	return c
}

type Conn struct {
	bus    *Bus
	notify chan transport.Notification

	mu     sync.Mutex
	closed bool
}

func (c *Conn) SupportsRetained() bool { return c.bus.retainedMode }

func (c *Conn) Notifications() <-chan transport.Notification { return c.notify }

func (c *Conn) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	b := c.bus
	b.mu.Lock()
	if retain && b.retainedMode {
		stored := append([]byte(nil), payload...)
		b.retained[topic] = stored
	}
	entries := make([]subEntry, 0, len(b.subs[topic]))
	for _, e := range b.subs[topic] {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	for _, e := range entries {
		e.h(topic, payload)
	}
	return nil
}

func (c *Conn) Subscribe(_ context.Context, topic string, h transport.Handler) (func(), error) {
	b := c.bus
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[int]subEntry)
	}
	b.subs[topic][id] = subEntry{conn: c, h: h}
	var last []byte
	if b.retainedMode {
		last = b.retained[topic]
	}
	b.mu.Unlock()

	if last != nil {
		h(topic, last)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[topic], id)
			b.mu.Unlock()
		})
	}, nil
}

func (c *Conn) notifyPeerJoined() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.notify <- transport.Notification{Kind: transport.PeerJoined}:
	default:
	}
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	b := c.bus
	b.mu.Lock()
	for topic, entries := range b.subs {
		for id, e := range entries {
			if e.conn == c {
				delete(b.subs[topic], id)
			}
		}
	}
	for i, o := range b.conns {
		if o == c {
			b.conns = append(b.conns[:i], b.conns[i+1:]...)
			break
		}
	}
	b.mu.Unlock()

	close(c.notify)
	return nil
}
