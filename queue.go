package main

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
)

// PendingOperation is an operation waiting for the block processor.
type PendingOperation struct {
	ID        string
	Caller    common.Address
	Op        chain.Operation
	Submitted time.Time

	done    chan struct{}
	receipt *chain.Receipt
	err     error
}

// complete records the outcome and wakes any waiter. It must be called once.
func (p *PendingOperation) complete(r *chain.Receipt, err error) {
	p.receipt, p.err = r, err
	close(p.done)
}

// Wait blocks until the operation was executed or ctx is done. Giving up
// on ctx does not withdraw the operation.
func (p *PendingOperation) Wait(ctx context.Context) (*chain.Receipt, error) {
	select {
	case <-p.done:
		return p.receipt, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the operation was executed.
func (p *PendingOperation) Done() <-chan struct{} {
	return p.done
}

// OperationQueue manages the queue of pending operations. Submission order
// is execution order.
type OperationQueue struct {
	mu                 sync.Mutex
	queue              []*PendingOperation
	currentBlockNumber uint64
	closed             bool
}

// NewOperationQueue starts numbering blocks at startBlock.
func NewOperationQueue(startBlock uint64) *OperationQueue {
	if startBlock == 0 {
		startBlock = 1
	}
	return &OperationQueue{currentBlockNumber: startBlock}
}

// Enqueue adds an operation to the queue. It returns nil once the queue is
// closed.
func (q *OperationQueue) Enqueue(caller common.Address, op chain.Operation) *PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	p := &PendingOperation{
		ID:        uuid.NewString(),
		Caller:    caller,
		Op:        op,
		Submitted: time.Now(),
		done:      make(chan struct{}),
	}
	q.queue = append(q.queue, p)
	return p
}

// DequeueAll removes all pending operations and returns them with the block
// number they belong to. The block number only advances for non-empty blocks.
func (q *OperationQueue) DequeueAll() (uint64, []*PendingOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()

	block := q.currentBlockNumber
	ops := make([]*PendingOperation, len(q.queue))
	copy(ops, q.queue)
	q.queue = q.queue[:0]
	if len(ops) > 0 {
		q.currentBlockNumber++
	}
	return block, ops
}

// Close rejects further operations and returns those still queued.
func (q *OperationQueue) Close() []*PendingOperation {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	rest := q.queue
	q.queue = nil
	return rest
}

// Size returns the current queue size
func (q *OperationQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// CurrentBlockNumber returns the number the next block will get.
func (q *OperationQueue) CurrentBlockNumber() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentBlockNumber
}
