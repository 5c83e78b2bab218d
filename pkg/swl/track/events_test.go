package track

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(Event{State: StatePolling, JobID: "job-1"})

	evt := <-a
	assert.Equal(t, "job-1", evt.JobID)
	evt = <-b
	assert.Equal(t, "job-1", evt.JobID)
}

func TestHubDropsWhenSubscriberIsSlow(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	// More events than the channel buffers; Publish must never block.
	for i := 0; i < 50; i++ {
		h.Publish(Event{State: StatePolling})
	}
	assert.Equal(t, cap(ch), len(ch))
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()

	h.Unsubscribe(ch)
	_, open := <-ch
	require.False(t, open, "unsubscribed channel should be closed")

	// A second unsubscribe of the same channel is a no-op.
	h.Unsubscribe(ch)
	h.Publish(Event{State: StateIdle})
}
