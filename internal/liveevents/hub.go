// Package liveevents fans order and kitchen status changes out to connected
// POS and KDS clients. Events carry a monotonic cursor so a reconnecting
// client can resume strictly after the last event it saw.
package liveevents

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBufferSize       = 256
	DefaultSubscriberBuffer = 16
)

const (
	TypeOrderCreated   = "order.created"
	TypeOrderUpdated   = "order.updated"
	TypeOrderPaid      = "order.paid"
	TypeOrderCompleted = "order.completed"
	TypeOrderCancelled = "order.cancelled"
)

// Event is one order lifecycle notification. Cursor is "<unixnano>-<seq>"
// where seq is a process-wide monotonic counter that alone decides
// ordering; the timestamp part is informational.
type Event struct {
	Cursor     string `json:"cursor"`
	Type       string `json:"type"`
	OrderID    string `json:"order_id"`
	OrderNo    string `json:"order_no"`
	Status     string `json:"status"`
	OccurredAt string `json:"occurred_at"`
}

type cursor struct {
	ts  int64
	seq uint64
}

func parseCursor(raw string) (cursor, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return cursor{}, false
	}
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return cursor{}, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return cursor{}, false
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return cursor{}, false
	}
	return cursor{ts: ts, seq: seq}, true
}

// after orders by the monotonic sequence number; the timestamp is a
// tiebreaker for cursors minted by an earlier process. A wall-clock step
// back therefore cannot hide a newer event from a resuming client.
func (c cursor) after(other cursor) bool {
	if c.seq != other.seq {
		return c.seq > other.seq
	}
	return c.ts > other.ts
}

type Hub struct {
	mu               sync.Mutex
	buffer           []Event
	subs             map[uint64]chan Event
	nextSubID        uint64
	nextSeq          uint64
	bufferSize       int
	subscriberBuffer int
}

type Subscription struct {
	hub  *Hub
	id   uint64
	ch   chan Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		subs:             make(map[uint64]chan Event),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish stamps the event's cursor and delivers it to all subscribers.
// Slow subscribers are skipped rather than blocking the publisher.
func (h *Hub) Publish(event Event) Event {
	if h == nil {
		return event
	}
	now := time.Now().UTC()

	h.mu.Lock()
	h.nextSeq++
	event.Cursor = fmt.Sprintf("%d-%d", now.UnixNano(), h.nextSeq)
	if event.OccurredAt == "" {
		event.OccurredAt = now.Format(time.RFC3339Nano)
	}
	h.buffer = append(h.buffer, event)
	if len(h.buffer) > h.bufferSize {
		h.buffer = h.buffer[len(h.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(h.subs))
	for _, ch := range h.subs {
		subs = append(subs, ch)
	}
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
	return event
}

// Subscribe registers a listener and returns the buffered events strictly
// after the supplied cursor. An empty or unparsable cursor replays the whole
// retained buffer.
func (h *Hub) Subscribe(afterCursor string) (*Subscription, []Event) {
	after, ok := parseCursor(afterCursor)

	h.mu.Lock()
	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, h.subscriberBuffer)
	h.subs[id] = ch

	backlog := make([]Event, 0, len(h.buffer))
	for _, event := range h.buffer {
		if ok {
			c, parsed := parseCursor(event.Cursor)
			if parsed && !c.after(after) {
				continue
			}
		}
		backlog = append(backlog, event)
	}
	h.mu.Unlock()

	return &Subscription{hub: h, id: id, ch: ch}, backlog
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
	})
}
