package port

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/lansim/internal/core"
)

func TestChannelTakeEmpty(t *testing.T) {
	c := NewChannel()

	pkt, ok := c.Take()
	assert.False(t, ok)
	assert.Nil(t, pkt)
	assert.False(t, c.Pending())
}

func TestChannelPutTake(t *testing.T) {
	c := NewChannel()

	require.NoError(t, c.Put(context.Background(), []byte("one")))
	assert.True(t, c.Pending())

	pkt, ok := c.Take()
	require.True(t, ok)
	assert.Equal(t, []byte("one"), pkt)
	assert.False(t, c.Pending())

	_, ok = c.Take()
	assert.False(t, ok)
}

func TestChannelTakeReturnsCopy(t *testing.T) {
	c := NewChannel()
	orig := []byte("abc")
	require.NoError(t, c.Put(context.Background(), orig))

	pkt, ok := c.Take()
	require.True(t, ok)
	orig[0] = 'x'
	assert.Equal(t, []byte("abc"), pkt)
}

func TestChannelSecondPutWaitsForDrain(t *testing.T) {
	c := NewChannel()
	require.NoError(t, c.Put(context.Background(), []byte("first")))

	done := make(chan error, 1)
	go func() {
		done <- c.Put(context.Background(), []byte("second"))
	}()

	select {
	case <-done:
		t.Fatal("second Put completed while the slot was occupied")
	case <-time.After(50 * time.Millisecond):
	}

	pkt, ok := c.Take()
	require.True(t, ok)
	assert.Equal(t, []byte("first"), pkt)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second Put did not complete after drain")
	}

	pkt, ok = c.Take()
	require.True(t, ok)
	assert.Equal(t, []byte("second"), pkt)
}

func TestChannelConcurrentPutsSerialized(t *testing.T) {
	c := NewChannel()
	const writers = 8

	var completed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, c.Put(context.Background(), []byte{byte(i)}))
			completed.Add(1)
		}(i)
	}

	seen := make(map[byte]bool)
	for taken := 0; taken < writers; {
		// Puts can never run more than one ahead of takes.
		assert.LessOrEqual(t, int(completed.Load()), taken+1)
		if pkt, ok := c.Take(); ok {
			require.Len(t, pkt, 1)
			seen[pkt[0]] = true
			taken++
			continue
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	assert.Len(t, seen, writers)
	assert.False(t, c.Pending())
}

func TestChannelPutInterrupted(t *testing.T) {
	c := NewChannel()
	require.NoError(t, c.Put(context.Background(), []byte("blocker")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Put(ctx, []byte("late"))
	assert.ErrorIs(t, err, core.ErrInterrupted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pkt, ok := c.Take()
	require.True(t, ok)
	assert.Equal(t, []byte("blocker"), pkt)
	assert.False(t, c.Pending())
}

func TestChannelPutCancelledWithFreeSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A free slot is always filled, whatever the state of ctx.
	for i := 0; i < 200; i++ {
		c := NewChannel()
		require.NoError(t, c.Put(ctx, []byte("go")))
		assert.True(t, c.Pending())
	}

	// Once Put has to wait, a cancelled ctx always interrupts it.
	c := NewChannel()
	require.NoError(t, c.Put(context.Background(), []byte("first")))
	for i := 0; i < 200; i++ {
		err := c.Put(ctx, []byte("second"))
		require.ErrorIs(t, err, core.ErrInterrupted)
		assert.ErrorIs(t, err, context.Canceled)
	}
	pkt, ok := c.Take()
	require.True(t, ok)
	assert.Equal(t, []byte("first"), pkt)
}
