package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
)

// ErrShuttingDown is reported to operations still queued at shutdown.
var ErrShuttingDown = errors.New("ledger is shutting down")

// BlockStats counts what one block executed.
type BlockStats struct {
	Block     uint64
	Mints     int
	Transfers int
	Lists     int
	Unlists   int
	Purchases int
	Funds     int
	Failures  int
	Duration  time.Duration
}

// Total returns the number of executed operations.
func (s BlockStats) Total() int {
	return s.Mints + s.Transfers + s.Lists + s.Unlists + s.Purchases + s.Funds
}

func (s *BlockStats) count(r *chain.Receipt) {
	if !r.OK() {
		s.Failures++
	}
	switch r.Operation {
	case chain.OpMintNFT:
		s.Mints++
	case chain.OpTransferNFT:
		s.Transfers++
	case chain.OpListNFT:
		s.Lists++
	case chain.OpUnlistNFT:
		s.Unlists++
	case chain.OpPurchaseNFT:
		s.Purchases++
	case chain.OpFundAccount:
		s.Funds++
	}
}

// BlockProcessor drains the queue on every tick and executes the operations
// in submission order. It is the only writer of the ledger.
type BlockProcessor struct {
	app      *chain.App
	queue    *OperationQueue
	interval time.Duration
	logger   *slog.Logger
	tracer   trace.Tracer

	mu sync.Mutex // serializes processBlock
}

// NewBlockProcessor creates a processor ticking every interval. A nil tracer
// disables block spans.
func NewBlockProcessor(app *chain.App, queue *OperationQueue, interval time.Duration, logger *slog.Logger, tracer trace.Tracer) *BlockProcessor {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	return &BlockProcessor{
		app:      app,
		queue:    queue,
		interval: interval,
		logger:   logger.With(componentKey, componentBlock),
		tracer:   tracer,
	}
}

// Run processes blocks until ctx is cancelled. On shutdown the last queued
// operations are executed in a final block and nothing submitted afterwards
// is accepted.
func (p *BlockProcessor) Run(ctx context.Context) error {
	p.logger.Info("starting block processor",
		"interval", p.interval.String(),
		"startBlock", p.queue.CurrentBlockNumber(),
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.drain()
			p.logger.Info("block processor stopped")
			return nil
		case <-ticker.C:
			p.safeProcessBlock(context.Background())
		}
	}
}

// drain executes what is left and fails anything enqueued concurrently.
func (p *BlockProcessor) drain() {
	p.safeProcessBlock(context.Background())
	for _, op := range p.queue.Close() {
		op.complete(nil, ErrShuttingDown)
	}
}

// safeProcessBlock keeps a panic in one block from stopping the ticker.
func (p *BlockProcessor) safeProcessBlock(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic in processBlock", "panic", fmt.Sprint(r))
		}
	}()
	p.processBlock(ctx)
}

// processBlock executes all pending operations as one block.
func (p *BlockProcessor) processBlock(ctx context.Context) BlockStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	block, pending := p.queue.DequeueAll()
	stats := BlockStats{Block: block}
	if len(pending) == 0 {
		return stats
	}

	ctx, span := p.tracer.Start(ctx, "chain.block",
		trace.WithAttributes(
			attribute.Int64(chain.AttrBlock, int64(block)),
			attribute.Int("block.operations", len(pending)),
		),
	)
	defer span.End()

	p.logger.Debug("processing block", "block", block, "operations", len(pending))

	for i, op := range pending {
		// Guard against a panicking operation leaving its waiter blocked.
		receipt, err := func() (r *chain.Receipt, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("panic executing %s: %v", op.Op.Type(), rec)
				}
			}()
			return p.app.Deliver(ctx, chain.Envelope{
				ID:      op.ID,
				Caller:  op.Caller,
				Block:   block,
				TxIndex: uint32(i),
			}, op.Op)
		}()
		if err != nil {
			p.logger.Error("failed to deliver operation", "block", block, "tx", i, "id", op.ID, "error", err)
			stats.Failures++
			op.complete(nil, err)
			continue
		}
		stats.count(receipt)
		op.complete(receipt, nil)
	}

	stats.Duration = time.Since(start)
	p.logger.Info("block batch processed",
		"firstBlock", block,
		"lastBlock", block,
		"mints", stats.Mints,
		"transfers", stats.Transfers,
		"lists", stats.Lists,
		"unlists", stats.Unlists,
		"purchases", stats.Purchases,
		"funds", stats.Funds,
		"failures", stats.Failures,
		"processingTime", stats.Duration.Milliseconds(),
	)
	logSlow(p.logger, "BLOCK", fmt.Sprintf("block %d", block), stats.Duration, slowBlockThreshold,
		"operations", len(pending))

	return stats
}
