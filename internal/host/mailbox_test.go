package host

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/lansim/internal/core"
)

func TestMailboxEmpty(t *testing.T) {
	m := NewMailbox()
	_, ok := m.Take(7)
	assert.False(t, ok)
	assert.False(t, m.Pending(7))
	assert.Equal(t, 0, m.Len())
}

func TestMailboxCardinality(t *testing.T) {
	m := NewMailbox()
	const senders = 6

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, m.Put(context.Background(), 5, []byte{byte(i)}))
		}(i)
	}

	got := 0
	deadline := time.After(2 * time.Second)
	for got < senders {
		// Never more than one pending payload for the port.
		require.LessOrEqual(t, m.Len(), 1)
		if _, ok := m.Take(5); ok {
			got++
			continue
		}
		select {
		case <-deadline:
			t.Fatalf("only %d of %d payloads arrived", got, senders)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	wg.Wait()
	assert.False(t, m.Pending(5))
}

func TestMailboxPutCancelledWithFreeSlot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMailbox()
	for p := uint16(0); p < 200; p++ {
		require.NoError(t, m.Put(ctx, p, []byte{byte(p)}))
	}
	assert.Equal(t, 200, m.Len())

	for i := 0; i < 200; i++ {
		err := m.Put(ctx, 0, []byte("late"))
		require.ErrorIs(t, err, core.ErrInterrupted)
	}
	payload, ok := m.Take(0)
	require.True(t, ok)
	assert.Equal(t, []byte{0}, payload)
}
