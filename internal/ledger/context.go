// Package ledger holds the execution context shared by every keeper and the
// error taxonomy operations report.
package ledger

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// Context is the single atomic unit an operation runs in. Every keeper call
// made with the same Context reads and writes through the same transaction,
// so either all of its effects are committed or none are.
type Context struct {
	context.Context

	Caller  common.Address
	Block   uint64
	TxIndex uint32
	Store   *store.Tx
	Logger  *slog.Logger
}

// NewContext binds an operation to its caller, position in the chain and
// open transaction.
func NewContext(ctx context.Context, tx *store.Tx, caller common.Address, block uint64, txIndex uint32, logger *slog.Logger) Context {
	if logger == nil {
		logger = slog.Default()
	}
	return Context{
		Context: ctx,
		Caller:  caller,
		Block:   block,
		TxIndex: txIndex,
		Store:   tx,
		Logger:  logger,
	}
}

// WithCaller returns a copy of c acting on behalf of caller.
func (c Context) WithCaller(caller common.Address) Context {
	c.Caller = caller
	return c
}

// ModuleLogger returns the context logger tagged with a module name.
func (c Context) ModuleLogger(module string) *slog.Logger {
	return c.Logger.With("module", "x/"+module, "block", c.Block, "tx", c.TxIndex)
}
