package chat

import (
	"sync"

	"webchat/internal/logger"
)

// sendBuffer is the per-subscriber outbound queue depth. A subscriber
// whose buffer fills is evicted rather than allowed to stall everyone
// else.
const sendBuffer = 256

type subscriber struct {
	id     string
	send   chan []byte
	closed bool
}

// Hub fans events out to connected clients: to everyone (Broadcast),
// to everyone but the sender (BroadcastExcept), or to a single
// connection (SendTo). Subscribers are keyed by connection id and
// receive frames on a buffered channel that the connection's write
// pump drains.
//
// Lock discipline: every send into a subscriber channel happens under
// the read lock, after re-checking that the subscriber is still
// registered. Channels are closed only after the subscriber has been
// removed and flagged under the write lock, so a close can never race
// a send.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	log  *logger.Logger
}

func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]*subscriber),
		log:  logger.New("hub"),
	}
}

// Subscribe registers a connection and returns the channel its write
// pump should drain. The channel is closed on Unsubscribe or eviction.
func (h *Hub) Subscribe(connID string) <-chan []byte {
	sub := &subscriber{id: connID, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.subs[connID] = sub
	count := len(h.subs)
	h.mu.Unlock()
	h.log.Debug("subscribed %s (%d connected)", connID, count)
	return sub.send
}

// Unsubscribe removes a connection and closes its channel. Idempotent.
func (h *Hub) Unsubscribe(connID string) {
	h.remove(connID, "unsubscribed")
}

// Broadcast delivers a frame to every open connection, including the
// sender.
func (h *Hub) Broadcast(frame []byte) {
	h.fanOut(frame, "")
}

// BroadcastExcept delivers a frame to every open connection except the
// named one. Used for typing indicators.
func (h *Hub) BroadcastExcept(senderID string, frame []byte) {
	h.fanOut(frame, senderID)
}

// SendTo delivers a frame to a single connection. Returns false when
// the connection is gone or its buffer is full.
func (h *Hub) SendTo(connID string, frame []byte) bool {
	h.mu.RLock()
	sub, ok := h.subs[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !h.trySend(sub, frame) {
		h.remove(connID, "evicted (send buffer full)")
		return false
	}
	return true
}

func (h *Hub) fanOut(frame []byte, skipID string) {
	h.mu.RLock()
	targets := make([]*subscriber, 0, len(h.subs))
	for id, sub := range h.subs {
		if id == skipID {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.RUnlock()

	var stalled []string
	for _, sub := range targets {
		if !h.trySend(sub, frame) {
			stalled = append(stalled, sub.id)
		}
	}
	for _, id := range stalled {
		h.remove(id, "evicted (send buffer full)")
	}
}

// trySend queues a frame for one subscriber. The read lock is held
// across the send itself: removal flags the subscriber and deletes it
// under the write lock before closing the channel, so the re-check
// here guarantees the channel is still open. The recover is a last
// resort only.
func (h *Hub) trySend(sub *subscriber, frame []byte) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from send to %s: %v", sub.id, r)
			sent = false
		}
	}()

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.subs[sub.id]; !ok || sub.closed {
		return false
	}
	select {
	case sub.send <- frame:
		return true
	default:
		return false
	}
}

// remove drops a subscriber and closes its channel. The closed flag is
// set while the write lock is held, so no sender holding the read lock
// can still be inside a send when the close below runs.
func (h *Hub) remove(connID, reason string) {
	h.mu.Lock()
	sub, ok := h.subs[connID]
	if ok {
		delete(h.subs, connID)
		sub.closed = true
	}
	count := len(h.subs)
	h.mu.Unlock()
	if ok {
		close(sub.send)
		h.log.Debug("%s %s (%d connected)", reason, connID, count)
	}
}
