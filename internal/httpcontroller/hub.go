package httpcontroller

import (
	"sync"

	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// Transports served by the hub
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// DefaultSubscriberBuffer is the per-subscriber queue length.
const DefaultSubscriberBuffer = 64

// Message is what live subscribers receive.
type Message struct {
	Type    string          `json:"type"` // final, partial or session_end
	Caption *events.Caption `json:"caption,omitempty"`
	End     *EndMessage     `json:"end,omitempty"`
}

// EndMessage is the wire form of events.SessionEnd.
type EndMessage struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	Error     string `json:"error,omitempty"`
	Captions  uint64 `json:"captions"`
}

// Subscription is a live feed of hub messages. C is closed when the
// subscription is cancelled or the hub closes.
type Subscription struct {
	C <-chan Message

	id        uint64
	transport string
	ch        chan Message
}

// Hub fans captions out to live HTTP subscribers. Sends never block: a
// subscriber whose buffer is full loses the message, whatever its type.
// Finals and session_end are dropped like partials; clients that must not
// miss a final reconcile through GET /api/v1/captions or the history API.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	dropped uint64
	metrics *metrics.OutputMetrics
}

// NewHub creates a hub; buffer < 1 uses DefaultSubscriberBuffer.
func NewHub(buffer int, m *metrics.OutputMetrics) *Hub {
	if buffer < 1 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:    make(map[uint64]*Subscription),
		buffer:  buffer,
		metrics: m,
	}
}

// Name implements events.Consumer
func (h *Hub) Name() string { return "http-hub" }

// HandleCaption queues c for every subscriber with room for it.
func (h *Hub) HandleCaption(c events.Caption) error {
	h.broadcast(Message{Type: c.Kind(), Caption: &c})
	return nil
}

// HandleSessionEnd queues a session_end message. Like captions, it is
// lost for a subscriber whose buffer is full.
func (h *Hub) HandleSessionEnd(e events.SessionEnd) error {
	h.broadcast(Message{Type: "session_end", End: &EndMessage{
		SessionID: e.SessionID,
		Reason:    string(e.Reason),
		Error:     e.Error(),
		Captions:  e.Captions,
	}})
	return nil
}

func (h *Hub) broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		select {
		case sub.ch <- msg:
		default:
			h.dropped++
			if h.metrics != nil {
				h.metrics.RecordDropped(sub.transport)
			}
		}
	}
}

// Subscribe registers a subscriber. It returns nil after Close.
func (h *Hub) Subscribe(transport string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.nextID++
	ch := make(chan Message, h.buffer)
	sub := &Subscription{C: ch, id: h.nextID, transport: transport, ch: ch}
	h.subs[sub.id] = sub
	h.updateGauge(transport)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
	h.updateGauge(sub.transport)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
		h.updateGauge(sub.transport)
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many messages slow subscribers lost.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// updateGauge must be called with mu held.
func (h *Hub) updateGauge(transport string) {
	if h.metrics == nil {
		return
	}
	n := 0
	for _, sub := range h.subs {
		if sub.transport == transport {
			n++
		}
	}
	h.metrics.SetSubscribers(transport, n)
}
