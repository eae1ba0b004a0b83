package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
)

func TestOperationQueue_DequeueInSubmissionOrder(t *testing.T) {
	q := NewOperationQueue(1)

	first := q.Enqueue(alice, &chain.MintNFT{Name: "a"})
	second := q.Enqueue(bob, &chain.MintNFT{Name: "b"})
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, 2, q.Size())

	block, ops := q.DequeueAll()
	require.Equal(t, uint64(1), block)
	require.Equal(t, []*PendingOperation{first, second}, ops)
	require.Equal(t, 0, q.Size())
}

func TestOperationQueue_EmptyBlocksDoNotAdvance(t *testing.T) {
	q := NewOperationQueue(5)

	block, ops := q.DequeueAll()
	require.Equal(t, uint64(5), block)
	require.Empty(t, ops)
	require.Equal(t, uint64(5), q.CurrentBlockNumber())

	q.Enqueue(alice, &chain.UnlistNFT{TokenID: 1})
	block, _ = q.DequeueAll()
	require.Equal(t, uint64(5), block)
	require.Equal(t, uint64(6), q.CurrentBlockNumber())
}

func TestOperationQueue_StartsAtBlockOne(t *testing.T) {
	require.Equal(t, uint64(1), NewOperationQueue(0).CurrentBlockNumber())
}

func TestOperationQueue_Close(t *testing.T) {
	q := NewOperationQueue(1)
	pending := q.Enqueue(alice, &chain.MintNFT{Name: "a"})

	rest := q.Close()
	require.Equal(t, []*PendingOperation{pending}, rest)
	require.Nil(t, q.Enqueue(alice, &chain.MintNFT{Name: "b"}))
	require.Equal(t, 0, q.Size())
}

func TestPendingOperation_Wait(t *testing.T) {
	q := NewOperationQueue(1)

	t.Run("completed", func(t *testing.T) {
		p := q.Enqueue(alice, &chain.MintNFT{Name: "a"})
		want := &chain.Receipt{ID: p.ID, Status: chain.StatusOK}
		go p.complete(want, nil)

		got, err := p.Wait(context.Background())
		require.NoError(t, err)
		require.Same(t, want, got)
		<-p.Done()
	})

	t.Run("context done", func(t *testing.T) {
		p := q.Enqueue(alice, &chain.MintNFT{Name: "b"})
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := p.Wait(ctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
