package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxLatestWins(t *testing.T) {
	mb := NewMailbox[int]()

	mb.Put(1)
	mb.Put(2)
	mb.Put(3)

	v, err := mb.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, ok := mb.TryGet()
	assert.False(t, ok, "mailbox should be empty after Get")
}

func TestMailboxGetBlocksUntilPut(t *testing.T) {
	mb := NewMailbox[Wake]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		mb.Put(NewWake("tick"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	w, err := mb.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tick", w.Reason)
}

func TestMailboxGetHonorsContext(t *testing.T) {
	mb := NewMailbox[int]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := mb.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFlagLevelTriggered(t *testing.T) {
	f := NewFlag()
	assert.False(t, f.IsSet())

	f.Set()
	assert.True(t, f.IsSet())

	// Wait returns immediately while the flag stays set
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := f.Wait(ctx)
		cancel()
		require.NoError(t, err)
	}

	f.Clear()
	assert.False(t, f.IsSet())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.Wait(ctx), context.DeadlineExceeded)
}

func TestFlagSetReleasesWaiter(t *testing.T) {
	f := NewFlag()
	done := make(chan error, 1)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		done <- f.Wait(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	f.Set()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Set")
	}
}

func TestFlagSetIdempotent(t *testing.T) {
	f := NewFlag()
	f.Set()
	f.Set()
	assert.True(t, f.IsSet())
	f.Clear()
	f.Clear()
	assert.False(t, f.IsSet())
}
