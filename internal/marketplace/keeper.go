// Package marketplace keeps the listing table and settles purchases.
//
// A purchase is a single protocol step: the buyer pays creator royalty,
// platform fee and seller share, the listing is cleared, and the token is
// reassigned. All of it runs in the caller's ledger.Context so a failure in
// any step discards every effect.
package marketplace

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// Keeper maintains the state for the marketplace module
type Keeper struct {
	params   Params
	registry RegistryKeeper
	bank     BankKeeper
}

var _ registry.OwnershipHooks = Keeper{}

// NewKeeper creates a new Keeper. It panics on invalid params.
func NewKeeper(params Params, registryKeeper RegistryKeeper, bankKeeper BankKeeper) Keeper {
	if err := params.Validate(); err != nil {
		panic(fmt.Sprintf("invalid marketplace params: %v", err))
	}
	return Keeper{
		params:   params,
		registry: registryKeeper,
		bank:     bankKeeper,
	}
}

// Params returns the marketplace parameters.
func (k Keeper) Params() Params {
	return k.params
}

// List offers tokenID for sale at price. Only the owner may list, and a
// token holds at most one listing; changing the price requires Unlist first.
// A price that cannot cover royalty plus platform fee is rejected.
func (k Keeper) List(ctx ledger.Context, tokenID uint64, price *uint256.Int) error {
	token, err := k.registry.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != ctx.Caller {
		return ledger.Errorf(ledger.ErrUnauthorized, "%s does not own token %d", ctx.Caller.Hex(), tokenID)
	}
	if price == nil || price.IsZero() {
		return ledger.Errorf(ledger.ErrInvalidInput, "price must be positive")
	}
	if _, ok := Split(price, uint64(token.RoyaltyPercent), k.params.PlatformFeePercent); !ok {
		return ledger.Errorf(ledger.ErrInvalidInput,
			"royalty %d%% plus platform fee %d%% exceeds the price", token.RoyaltyPercent, k.params.PlatformFeePercent)
	}

	_, err = ctx.Store.GetListing(tokenID)
	switch {
	case err == nil:
		return ledger.Errorf(ledger.ErrAlreadyListed, "token %d is already listed", tokenID)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	err = ctx.Store.InsertListing(&store.ListingModel{
		TokenID:       tokenID,
		Price:         price.Dec(),
		Seller:        ctx.Caller.Hex(),
		ListedAtBlock: ctx.Block,
	})
	if err != nil {
		return err
	}

	ctx.ModuleLogger(ModuleName).Info("listed NFT",
		"token_id", tokenID,
		"seller", ctx.Caller.Hex(),
		"price", price.Dec(),
	)
	return nil
}

// Unlist withdraws the caller's listing of tokenID.
func (k Keeper) Unlist(ctx ledger.Context, tokenID uint64) error {
	listing, err := k.getListing(ctx, tokenID)
	if err != nil {
		return err
	}
	if listing.Seller != ctx.Caller {
		return ledger.Errorf(ledger.ErrUnauthorized, "%s is not the seller of token %d", ctx.Caller.Hex(), tokenID)
	}
	if _, err := ctx.Store.DeleteListing(tokenID); err != nil {
		return err
	}

	ctx.ModuleLogger(ModuleName).Info("unlisted NFT", "token_id", tokenID, "seller", listing.Seller.Hex())
	return nil
}

// Purchase buys tokenID for the caller at its listed price.
func (k Keeper) Purchase(ctx ledger.Context, tokenID uint64) (*Sale, error) {
	listing, err := k.getListing(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	buyer := ctx.Caller
	if buyer == listing.Seller {
		return nil, ledger.Errorf(ledger.ErrSelfPurchase, "%s cannot buy its own token %d", buyer.Hex(), tokenID)
	}

	token, err := k.registry.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	balance, err := k.bank.Balance(ctx, buyer)
	if err != nil {
		return nil, err
	}
	if balance.Lt(listing.Price) {
		return nil, ledger.Errorf(ledger.ErrInsufficientFunds,
			"%s holds %s, price is %s", buyer.Hex(), balance.Dec(), listing.Price.Dec())
	}

	dist, ok := Split(listing.Price, uint64(token.RoyaltyPercent), k.params.PlatformFeePercent)
	if !ok {
		return nil, ledger.Errorf(ledger.ErrInvalidInput,
			"royalty %d%% plus platform fee %d%% exceeds the price", token.RoyaltyPercent, k.params.PlatformFeePercent)
	}

	payments := []struct {
		to     common.Address
		amount *uint256.Int
	}{
		{token.Creator, dist.Royalty},
		{k.params.PlatformAccount, dist.Fee},
		{listing.Seller, dist.SellerAmount},
	}
	for _, p := range payments {
		if p.amount.IsZero() {
			continue
		}
		if err := k.bank.Send(ctx, buyer, p.to, p.amount); err != nil {
			return nil, err
		}
	}

	// The listing goes first so the ownership hook finds nothing left to clear.
	if _, err := ctx.Store.DeleteListing(tokenID); err != nil {
		return nil, err
	}
	if err := k.registry.SetOwner(ctx, tokenID, buyer); err != nil {
		return nil, err
	}

	sale := &Sale{
		TokenID:      tokenID,
		Seller:       listing.Seller,
		Buyer:        buyer,
		Creator:      token.Creator,
		Platform:     k.params.PlatformAccount,
		Price:        listing.Price,
		Royalty:      dist.Royalty,
		Fee:          dist.Fee,
		SellerAmount: dist.SellerAmount,
		Block:        ctx.Block,
	}
	model := saleToModel(sale)
	if err := ctx.Store.InsertSale(model); err != nil {
		return nil, err
	}
	sale.ID = model.ID

	ctx.ModuleLogger(ModuleName).Info("purchased NFT",
		"token_id", tokenID,
		"seller", listing.Seller.Hex(),
		"buyer", buyer.Hex(),
		"price", listing.Price.Dec(),
		"royalty", dist.Royalty.Dec(),
		"fee", dist.Fee.Dec(),
	)
	return sale, nil
}

// AfterOwnerChange drops any listing of a token that changed hands.
func (k Keeper) AfterOwnerChange(ctx ledger.Context, tokenID uint64, _, _ common.Address) error {
	removed, err := ctx.Store.DeleteListing(tokenID)
	if err != nil {
		return err
	}
	if removed {
		ctx.ModuleLogger(ModuleName).Info("cleared listing on transfer", "token_id", tokenID)
	}
	return nil
}

// GetListing returns the active listing of tokenID, or nil if there is none.
func (k Keeper) GetListing(ctx ledger.Context, tokenID uint64) (*Listing, error) {
	listing, err := k.getListing(ctx, tokenID)
	if errors.Is(err, ledger.ErrNotListed) {
		return nil, nil
	}
	return listing, err
}

// Listings pages through active listings ordered by token id.
func (k Keeper) Listings(ctx ledger.Context, limit, offset int) ([]*Listing, error) {
	models, err := ctx.Store.Listings(limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*Listing, 0, len(models))
	for _, m := range models {
		l, err := listingFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// Sales returns the sale history of tokenID, oldest first.
func (k Keeper) Sales(ctx ledger.Context, tokenID uint64) ([]*Sale, error) {
	models, err := ctx.Store.SalesByToken(tokenID)
	if err != nil {
		return nil, err
	}
	out := make([]*Sale, 0, len(models))
	for _, m := range models {
		s, err := saleFromModel(m)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (k Keeper) getListing(ctx ledger.Context, tokenID uint64) (*Listing, error) {
	m, err := ctx.Store.GetListing(tokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.Errorf(ledger.ErrNotListed, "token %d is not listed", tokenID)
	}
	if err != nil {
		return nil, err
	}
	return listingFromModel(m)
}

func listingFromModel(m *store.ListingModel) (*Listing, error) {
	price, err := uint256.FromDecimal(m.Price)
	if err != nil {
		return nil, fmt.Errorf("corrupt price for token %d: %w", m.TokenID, err)
	}
	return &Listing{
		TokenID:       m.TokenID,
		Price:         price,
		Seller:        common.HexToAddress(m.Seller),
		ListedAtBlock: m.ListedAtBlock,
	}, nil
}

func saleToModel(s *Sale) *store.SaleModel {
	return &store.SaleModel{
		TokenID:      s.TokenID,
		Seller:       s.Seller.Hex(),
		Buyer:        s.Buyer.Hex(),
		Creator:      s.Creator.Hex(),
		Platform:     s.Platform.Hex(),
		Price:        s.Price.Dec(),
		Royalty:      s.Royalty.Dec(),
		Fee:          s.Fee.Dec(),
		SellerAmount: s.SellerAmount.Dec(),
		BlockNumber:  s.Block,
	}
}

func saleFromModel(m *store.SaleModel) (*Sale, error) {
	amounts := make([]*uint256.Int, 4)
	for i, raw := range []string{m.Price, m.Royalty, m.Fee, m.SellerAmount} {
		v, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount in sale %d: %w", m.ID, err)
		}
		amounts[i] = v
	}
	return &Sale{
		ID:           m.ID,
		TokenID:      m.TokenID,
		Seller:       common.HexToAddress(m.Seller),
		Buyer:        common.HexToAddress(m.Buyer),
		Creator:      common.HexToAddress(m.Creator),
		Platform:     common.HexToAddress(m.Platform),
		Price:        amounts[0],
		Royalty:      amounts[1],
		Fee:          amounts[2],
		SellerAmount: amounts[3],
		Block:        m.BlockNumber,
	}, nil
}
