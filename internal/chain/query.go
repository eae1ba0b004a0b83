package chain

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// View runs fn against committed state. Keepers called from fn must not
// write.
func (a *App) View(ctx context.Context, fn func(ctx ledger.Context) error) error {
	return a.db.View(ctx, func(tx *store.Tx) error {
		return fn(ledger.NewContext(ctx, tx, common.Address{}, 0, 0, a.logger))
	})
}

// TokenOwner returns the owner of tokenID, nil if it was never minted.
func (a *App) TokenOwner(ctx context.Context, tokenID uint64) (owner *common.Address, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		owner, err = a.Registry.GetTokenOwner(lctx, tokenID)
		return err
	})
	return owner, err
}

// NFTData returns the full token record, nil if it was never minted.
func (a *App) NFTData(ctx context.Context, tokenID uint64) (token *registry.Token, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		token, err = a.Registry.GetNFTData(lctx, tokenID)
		return err
	})
	return token, err
}

// TokensOf returns the ids currently held by owner.
func (a *App) TokensOf(ctx context.Context, owner common.Address) (ids []uint64, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		ids, err = a.Registry.TokensOf(lctx, owner)
		return err
	})
	return ids, err
}

// TotalSupply returns the number of tokens ever minted.
func (a *App) TotalSupply(ctx context.Context) (n uint64, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		n, err = a.Registry.TotalSupply(lctx)
		return err
	})
	return n, err
}

// Listing returns the active listing of tokenID, nil if there is none.
func (a *App) Listing(ctx context.Context, tokenID uint64) (l *marketplace.Listing, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		l, err = a.Market.GetListing(lctx, tokenID)
		return err
	})
	return l, err
}

// Listings pages through active listings.
func (a *App) Listings(ctx context.Context, limit, offset int) (ls []*marketplace.Listing, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		ls, err = a.Market.Listings(lctx, limit, offset)
		return err
	})
	return ls, err
}

// Sales returns the sale history of tokenID.
func (a *App) Sales(ctx context.Context, tokenID uint64) (sales []*marketplace.Sale, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		sales, err = a.Market.Sales(lctx, tokenID)
		return err
	})
	return sales, err
}

// Balance returns the spendable balance of addr.
func (a *App) Balance(ctx context.Context, addr common.Address) (bal *uint256.Int, err error) {
	err = a.View(ctx, func(lctx ledger.Context) error {
		bal, err = a.Bank.Balance(lctx, addr)
		return err
	})
	return bal, err
}

// Receipt returns a stored receipt, ledger.ErrNotFound if unknown.
func (a *App) Receipt(ctx context.Context, id string) (*Receipt, error) {
	var m *store.ReceiptModel
	err := a.db.View(ctx, func(tx *store.Tx) error {
		var err error
		m, err = tx.GetReceipt(id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.Errorf(ledger.ErrNotFound, "receipt %s does not exist", id)
	}
	if err != nil {
		return nil, err
	}
	return receiptFromModel(m), nil
}

// ReceiptsInBlock returns the receipts of block in execution order.
func (a *App) ReceiptsInBlock(ctx context.Context, block uint64) ([]*Receipt, error) {
	var models []*store.ReceiptModel
	err := a.db.View(ctx, func(tx *store.Tx) error {
		var err error
		models, err = tx.ReceiptsInBlock(block)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Receipt, len(models))
	for i, m := range models {
		out[i] = receiptFromModel(m)
	}
	return out, nil
}

// Blocks returns every block that executed at least one operation.
func (a *App) Blocks(ctx context.Context) (blocks []uint64, err error) {
	err = a.db.View(ctx, func(tx *store.Tx) error {
		blocks, err = tx.Blocks()
		return err
	})
	return blocks, err
}

// LatestBlock returns the last block with receipts, 0 on a fresh chain.
func (a *App) LatestBlock(ctx context.Context) (block uint64, err error) {
	err = a.db.View(ctx, func(tx *store.Tx) error {
		block, err = tx.LatestBlock()
		return err
	})
	return block, err
}

// Owners returns the owner of every token, ordered by id.
func (a *App) Owners(ctx context.Context) (owners []store.OwnerRow, err error) {
	err = a.db.View(ctx, func(tx *store.Tx) error {
		owners, err = tx.Owners()
		return err
	})
	return owners, err
}
