// Package transport abstracts the store-and-forward channel the room runs
// over. Ordering holds only per (sender, topic); nothing is guaranteed across
// topics. Implementations retry transient failures with backoff and only
// surface an error once retries are exhausted.
package transport

import "context"

// Handler receives every message published to a subscribed topic, including a
// retained last value replayed at subscribe time when the transport has one.
type Handler func(topic string, payload []byte)

type NotificationKind string

const (
	// PeerJoined fires on transports without native retention when a new
	// peer attaches to the room; the host answers it by resending the
	// current snapshot.
	PeerJoined NotificationKind = "peer-joined"
	// ConnectionLost fires when the underlying connection dies for good.
	ConnectionLost NotificationKind = "connection-lost"
)

type Notification struct {
	Kind   NotificationKind
	Detail string
}

type Transport interface {
	// Publish sends payload on topic. With retain, the payload also becomes
	// the topic's last value for future subscribers, where supported.
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error

	// Subscribe registers h for topic and returns an unsubscribe func. If
	// the transport retains a last value for topic, h sees it first.
	Subscribe(ctx context.Context, topic string, h Handler) (func(), error)

	// SupportsRetained reports native last-value semantics. When false the
	// host must emulate them by resending snapshots on PeerJoined.
	SupportsRetained() bool

	// Notifications delivers connection lifecycle events. The channel is
	// closed when the transport shuts down.
	Notifications() <-chan Notification

	Close() error
}
