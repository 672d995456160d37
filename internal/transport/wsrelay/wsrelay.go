// Package wsrelay carries room traffic over a dumb websocket relay, the
// broker-less variant for deployments without Redis. The relay only fans
// frames out to the other peers of a room: there is no retained last value,
// so it reports SupportsRetained false and surfaces peer-joined notifications
// for the host's snapshot-resend fallback.
package wsrelay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tombalago/internal/transport"
)

// Frame is the single envelope exchanged with the relay.
type Frame struct {
	Kind    string          `json:"kind"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	KindPublish    = "pub"
	KindPeerJoined = "peer-joined"
)

const writeWait = 10 * time.Second

type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	notify  chan transport.Notification

	mu     sync.Mutex
	closed bool
	nextID int
	subs   map[string]map[int]transport.Handler
}

// Dial attaches to one room on the relay, retrying with backoff. url is the
// relay's ws endpoint including the room query, e.g.
// ws://relay:8086/ws?room=ABC123.
func Dial(ctx context.Context, url string) (*Client, error) {
	var conn *websocket.Conn
	err := transport.WithBackoff(ctx, "relay dial", func() error {
		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(ctx, url, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("relay dial %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		notify: make(chan transport.Notification, 4),
		subs:   make(map[string]map[int]transport.Handler),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) SupportsRetained() bool { return false }

func (c *Client) Notifications() <-chan transport.Notification { return c.notify }

func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	// retain is accepted and ignored: the relay keeps nothing, which is
	// exactly why peer-joined notifications exist.
	_ = retain
	if err := c.writeFrame(Frame{Kind: KindPublish, Topic: topic, Payload: payload}); err != nil {
		return err
	}
	// The relay fans out to the other peers only. Deliver to subscribers on
	// this connection here, so one client can carry both sides of a room the
	// same way the broker's loopback does.
	c.dispatch(topic, payload)
	return nil
}

func (c *Client) Subscribe(ctx context.Context, topic string, h transport.Handler) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("relay subscribe %s: client closed", topic)
	}
	id := c.nextID
	c.nextID++
	if c.subs[topic] == nil {
		c.subs[topic] = make(map[int]transport.Handler)
	}
	c.subs[topic][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[topic], id)
		})
	}, nil
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.connectionLost(err)
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			zap.L().Warn("wsrelay.bad_frame", zap.Error(err))
			continue
		}
		switch f.Kind {
		case KindPublish:
			c.dispatch(f.Topic, f.Payload)
		case KindPeerJoined:
			c.notifyKind(transport.PeerJoined, "")
		}
	}
}

func (c *Client) dispatch(topic string, payload []byte) {
	c.mu.Lock()
	handlers := make([]transport.Handler, 0, len(c.subs[topic]))
	for _, h := range c.subs[topic] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

func (c *Client) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *Client) notifyKind(kind transport.NotificationKind, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.notify <- transport.Notification{Kind: kind, Detail: detail}:
	default:
	}
}

func (c *Client) connectionLost(err error) {
	zap.L().Warn("wsrelay.connection_lost", zap.Error(err))
	c.notifyKind(transport.ConnectionLost, err.Error())
}

func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.notify)
	return c.conn.Close()
}
