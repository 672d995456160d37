// Package relay is the dumb fanout side of the wsrelay transport: it forwards
// every published frame to the other peers of a room and tells a room when a
// new peer attaches, so the host can resend its snapshot. It retains nothing
// and understands nothing about the game.
package relay

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Hub keeps peer sets per room code.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub() *Hub { return &Hub{rooms: map[string]*room{}} }

// Join registers c with the room, creating it on first join.
func (h *Hub) Join(code string, c *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[code]
	if r == nil {
		r = newRoom()
		h.rooms[code] = r
	}
	r.add(c)
}

// Leave drops c and deletes the room once its last peer is gone, so a
// long-lived relay does not accumulate dead room entries.
func (h *Hub) Leave(code string, c *peerConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[code]
	if r == nil {
		return
	}
	if r.remove(c) == 0 {
		delete(h.rooms, code)
	}
}

// Fanout delivers msg to every peer of the room except the sender.
func (h *Hub) Fanout(code string, sender *peerConn, msg []byte) {
	h.mu.Lock()
	r := h.rooms[code]
	h.mu.Unlock()
	if r != nil {
		r.fanout(sender, msg)
	}
}

type room struct {
	mu    sync.RWMutex
	conns map[*peerConn]struct{}
}

func newRoom() *room { return &room{conns: map[*peerConn]struct{}{}} }

func (r *room) add(c *peerConn) {
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
}

// remove reports how many peers stay behind.
func (r *room) remove(c *peerConn) int {
	r.mu.Lock()
	delete(r.conns, c)
	remaining := len(r.conns)
	r.mu.Unlock()
	c.rawConn.Close()
	return remaining
}

func (r *room) fanout(sender *peerConn, msg []byte) {
	// Take a quick snapshot of the current connections
	r.mu.RLock()
	conns := make([]*peerConn, 0, len(r.conns))
	for c := range r.conns {
		if c != sender {
			conns = append(conns, c)
		}
	}
	r.mu.RUnlock()

	// Do the I/O outside the lock
	var failed []*peerConn
	for _, c := range conns {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.remove(c)
	}
}
