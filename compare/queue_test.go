package compare

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	q.Put(Batch{{PKHash: "a"}})
	q.Put(Batch{{PKHash: "b"}})
	q.Put(Batch{{PKHash: "c"}})

	for _, want := range []string{"a", "b", "c"} {
		b, ok := q.Poll(time.Second)
		require.True(t, ok)
		require.Len(t, b, 1)
		assert.Equal(t, want, b[0].PKHash)
	}
	assert.True(t, q.Empty())
}

func TestQueuePollTimeout(t *testing.T) {
	q := NewQueue(1)
	start := time.Now()
	b, ok := q.Poll(20 * time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, b)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestQueueBackpressure(t *testing.T) {
	q := NewQueue(1)
	q.Put(Batch{{PKHash: "first"}})

	blocked := make(chan struct{})
	go func() {
		q.Put(Batch{{PKHash: "second"}}) // blocks until the first is polled
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("Put returned while the queue was full")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Poll(time.Second)
	require.True(t, ok)

	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after a poll freed capacity")
	}
}

func TestQueueSentinel(t *testing.T) {
	q := NewQueue(2)
	q.Put(Batch{})
	b, ok := q.Poll(time.Second)
	require.True(t, ok)
	assert.Empty(t, b)
}
