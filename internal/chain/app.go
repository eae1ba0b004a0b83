// Package chain wires the keepers into an application that executes
// operations one at a time, each in its own atomic unit, and records a
// receipt for every one of them.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/bank"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// Span attribute keys.
const (
	AttrOperation = "ledger.operation"
	AttrCaller    = "ledger.caller"
	AttrBlock     = "ledger.block"
	AttrTxIndex   = "ledger.tx_index"
	AttrErrorCode = "ledger.error_code"
)

// Config configures an App.
type Config struct {
	Marketplace marketplace.Params
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

// App owns the keepers and the database they write to.
type App struct {
	db     *store.DB
	logger *slog.Logger
	tracer trace.Tracer

	Registry *registry.Keeper
	Bank     bank.Keeper
	Market   marketplace.Keeper
}

// NewApp wires the registry, bank and marketplace keepers. The marketplace
// is installed as the registry's ownership hook.
func NewApp(db *store.DB, cfg Config) *App {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}

	registryKeeper := registry.NewKeeper()
	bankKeeper := bank.NewKeeper()
	marketKeeper := marketplace.NewKeeper(cfg.Marketplace, registryKeeper, bankKeeper)
	registryKeeper.SetHooks(marketKeeper)

	return &App{
		db:       db,
		logger:   logger,
		tracer:   tracer,
		Registry: registryKeeper,
		Bank:     bankKeeper,
		Market:   marketKeeper,
	}
}

// DB returns the underlying database.
func (a *App) DB() *store.DB {
	return a.db
}

// Envelope places an operation in the chain.
type Envelope struct {
	ID      string
	Caller  common.Address
	Block   uint64
	TxIndex uint32
	Time    time.Time
}

// Deliver executes op in a single transaction together with its receipt.
// A rejected operation leaves no trace besides a failed receipt written in
// a separate transaction. The returned error is non-nil only when no
// receipt could be stored.
//
// Deliver ignores cancellation of ctx once it has started: an operation is
// either executed completely or not at all.
func (a *App) Deliver(ctx context.Context, env Envelope, op Operation) (*Receipt, error) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := a.tracer.Start(ctx, "chain.deliver."+op.Type(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String(AttrOperation, op.Type()),
			attribute.String(AttrCaller, env.Caller.Hex()),
			attribute.Int64(AttrBlock, int64(env.Block)),
			attribute.Int64(AttrTxIndex, int64(env.TxIndex)),
		),
	)
	defer span.End()

	params, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s params: %w", op.Type(), err)
	}
	if env.Time.IsZero() {
		env.Time = time.Now()
	}
	receipt := &Receipt{
		ID:        env.ID,
		Block:     env.Block,
		TxIndex:   env.TxIndex,
		Operation: op.Type(),
		Caller:    env.Caller,
		Params:    params,
		CreatedAt: env.Time,
	}

	logger := a.logger.With("op", op.Type(), "receipt_id", env.ID)

	err = a.db.InTx(ctx, func(tx *store.Tx) error {
		lctx := ledger.NewContext(ctx, tx, env.Caller, env.Block, env.TxIndex, logger)
		result, err := a.execute(lctx, op)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode %s result: %w", op.Type(), err)
		}
		receipt.Status = StatusOK
		receipt.Result = raw
		return tx.InsertReceipt(receipt.model())
	})
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return receipt, nil
	}

	code := ledger.CodeOf(err)
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorCode, string(code)))
	span.SetStatus(codes.Error, err.Error())
	if code == ledger.CodeInternal {
		logger.Error("operation failed", "error", err)
	} else {
		logger.Info("operation rejected", "code", code, "error", err)
	}

	receipt.Status = StatusErr
	receipt.Result = nil
	receipt.Error = &ReceiptError{Code: code, Message: errorMessage(err)}
	if werr := a.db.InTx(ctx, func(tx *store.Tx) error {
		return tx.InsertReceipt(receipt.model())
	}); werr != nil {
		return nil, fmt.Errorf("failed to record rejected %s: %w", op.Type(), errors.Join(err, werr))
	}
	return receipt, nil
}

// execute dispatches op to the keeper that implements it and returns the
// value reported in the receipt.
func (a *App) execute(ctx ledger.Context, op Operation) (any, error) {
	switch op := op.(type) {
	case *MintNFT:
		meta := registry.Metadata{Name: op.Name, Description: op.Description, ImageURI: op.ImageURI}
		return a.Registry.Mint(ctx, meta, op.RoyaltyPercent)
	case *TransferNFT:
		return true, a.Registry.Transfer(ctx, op.TokenID, op.Recipient)
	case *ListNFT:
		return true, a.Market.List(ctx, op.TokenID, op.Price)
	case *UnlistNFT:
		return true, a.Market.Unlist(ctx, op.TokenID)
	case *PurchaseNFT:
		if _, err := a.Market.Purchase(ctx, op.TokenID); err != nil {
			return nil, err
		}
		return true, nil
	case *FundAccount:
		if op.Amount == nil || op.Amount.IsZero() {
			return nil, ledger.Errorf(ledger.ErrInvalidInput, "amount must be positive")
		}
		if err := a.Bank.Credit(ctx, op.Address, op.Amount); err != nil {
			return nil, err
		}
		return a.Bank.Balance(ctx, op.Address)
	default:
		return nil, ledger.Errorf(ledger.ErrInvalidInput, "unsupported operation %T", op)
	}
}

// errorMessage prefers the taxonomy message over the wrapped chain.
func errorMessage(err error) string {
	var le *ledger.Error
	if errors.As(err, &le) && le.Message != "" {
		return le.Message
	}
	return err.Error()
}
