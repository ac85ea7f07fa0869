package liveevents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishStampsMonotonicCursors(t *testing.T) {
	hub := NewHub()

	first := hub.Publish(Event{Type: TypeOrderCreated, OrderID: "1"})
	second := hub.Publish(Event{Type: TypeOrderUpdated, OrderID: "1"})

	c1, ok := parseCursor(first.Cursor)
	require.True(t, ok)
	c2, ok := parseCursor(second.Cursor)
	require.True(t, ok)
	assert.True(t, c2.after(c1))
}

func TestCursorOrderSurvivesClockStepBack(t *testing.T) {
	// the sequence decides ordering even when the wall clock regresses
	// between two publishes
	older := cursor{ts: 2000, seq: 1}
	newer := cursor{ts: 1000, seq: 2}

	assert.True(t, newer.after(older))
	assert.False(t, older.after(newer))
}

func TestSubscribeResumesStrictlyAfterCursor(t *testing.T) {
	hub := NewHub()

	hub.Publish(Event{Type: TypeOrderCreated, OrderID: "1"})
	marker := hub.Publish(Event{Type: TypeOrderUpdated, OrderID: "1"})
	hub.Publish(Event{Type: TypeOrderPaid, OrderID: "1"})
	hub.Publish(Event{Type: TypeOrderCompleted, OrderID: "1"})

	sub, backlog := hub.Subscribe(marker.Cursor)
	defer sub.Close()

	require.Len(t, backlog, 2)
	assert.Equal(t, TypeOrderPaid, backlog[0].Type)
	assert.Equal(t, TypeOrderCompleted, backlog[1].Type)

	// a live publish reaches the subscriber
	hub.Publish(Event{Type: TypeOrderCancelled, OrderID: "2"})
	event := <-sub.Events()
	assert.Equal(t, TypeOrderCancelled, event.Type)
}

func TestSubscribeWithoutCursorReplaysBuffer(t *testing.T) {
	hub := NewHub()
	hub.Publish(Event{Type: TypeOrderCreated, OrderID: "1"})
	hub.Publish(Event{Type: TypeOrderUpdated, OrderID: "1"})

	sub, backlog := hub.Subscribe("")
	defer sub.Close()
	assert.Len(t, backlog, 2)
}

func TestDuplicateCursorNeverRedelivered(t *testing.T) {
	hub := NewHub()
	first := hub.Publish(Event{Type: TypeOrderCreated, OrderID: "1"})

	sub, backlog := hub.Subscribe(first.Cursor)
	defer sub.Close()
	assert.Empty(t, backlog)
}
