package wsbroadcast

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriberEnqueueDropsOldestNotNewest(t *testing.T) {
	sub := &subscriber{wake: make(chan struct{}, 1), done: make(chan struct{})}
	for i := 0; i < queueDepth+5; i++ {
		sub.enqueue(Frame{Type: "batch-update", Data: i})
	}
	frames := sub.drain()
	require.Len(t, frames, 1) // all coalesce into one batch-update
	require.Equal(t, queueDepth+4, frames[0].Data)
}

func TestSubscriberDrainCoalescesBatchUpdates(t *testing.T) {
	sub := &subscriber{wake: make(chan struct{}, 1), done: make(chan struct{})}
	sub.enqueue(Frame{Type: "batch-update", Data: 1})
	sub.enqueue(Frame{Type: "batch-update", Data: 2})
	sub.enqueue(Frame{Type: "search-complete", Data: "ok"})
	sub.enqueue(Frame{Type: "batch-update", Data: 3})

	frames := sub.drain()
	require.Len(t, frames, 3)
	require.Equal(t, "batch-update", frames[0].Type)
	require.Equal(t, 2, frames[0].Data)
	require.Equal(t, "search-complete", frames[1].Type)
	require.Equal(t, "batch-update", frames[2].Type)
	require.Equal(t, 3, frames[2].Data)
}

func TestSubscriberDrainEmptyReturnsNil(t *testing.T) {
	sub := &subscriber{wake: make(chan struct{}, 1), done: make(chan struct{})}
	require.Nil(t, sub.drain())
}
