// Package registry owns token identity, metadata, royalty rate and ownership.
package registry

import (
	"errors"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// Keeper maintains the state for the registry module
type Keeper struct {
	hooks OwnershipHooks
}

// NewKeeper creates a new Keeper
func NewKeeper() *Keeper {
	return &Keeper{}
}

// SetHooks installs the ownership hooks. It panics if called twice.
func (k *Keeper) SetHooks(h OwnershipHooks) *Keeper {
	if k.hooks != nil {
		panic("cannot set registry hooks twice")
	}
	k.hooks = h
	return k
}

// Mint allocates the next token id and records a token owned and created by
// the caller. Identical metadata is accepted and gets a fresh id.
func (k *Keeper) Mint(ctx ledger.Context, meta Metadata, royaltyPercent uint64) (uint64, error) {
	if royaltyPercent > MaxRoyaltyPercent {
		return 0, ledger.Errorf(ledger.ErrInvalidInput, "royalty %d%% exceeds %d%%", royaltyPercent, MaxRoyaltyPercent)
	}
	if err := validateMetadata(meta); err != nil {
		return 0, err
	}

	id, err := ctx.Store.NextTokenID()
	if err != nil {
		return 0, err
	}

	caller := ctx.Caller.Hex()
	err = ctx.Store.InsertToken(&store.TokenModel{
		ID:             id,
		Name:           meta.Name,
		Description:    meta.Description,
		ImageURI:       meta.ImageURI,
		Creator:        caller,
		RoyaltyPercent: uint8(royaltyPercent),
		Owner:          caller,
		MintedAtBlock:  ctx.Block,
		UpdatedAtBlock: ctx.Block,
	})
	if err != nil {
		return 0, err
	}

	ctx.ModuleLogger(ModuleName).Info("minted NFT",
		"token_id", id,
		"creator", caller,
		"royalty_percent", royaltyPercent,
		"image_uri", meta.ImageURI,
	)

	return id, nil
}

// Transfer moves a token from the caller to recipient. Only the current
// owner may transfer; any active listing is dropped by the hooks.
func (k *Keeper) Transfer(ctx ledger.Context, tokenID uint64, recipient common.Address) error {
	token, err := k.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if token.Owner != ctx.Caller {
		return ledger.Errorf(ledger.ErrUnauthorized, "%s does not own token %d", ctx.Caller.Hex(), tokenID)
	}
	if recipient == (common.Address{}) {
		return ledger.Errorf(ledger.ErrInvalidInput, "recipient must not be the zero address")
	}
	if recipient == token.Owner {
		return ledger.Errorf(ledger.ErrInvalidInput, "token %d is already owned by %s", tokenID, recipient.Hex())
	}

	return k.SetOwner(ctx, tokenID, recipient)
}

// SetOwner reassigns a token without checking the caller. It is reserved
// for protocol code that has already authorized the change, such as a sale.
func (k *Keeper) SetOwner(ctx ledger.Context, tokenID uint64, newOwner common.Address) error {
	token, err := k.GetToken(ctx, tokenID)
	if err != nil {
		return err
	}
	oldOwner := token.Owner

	if err := ctx.Store.UpdateTokenOwner(tokenID, newOwner.Hex(), ctx.Block); err != nil {
		return err
	}

	if k.hooks != nil {
		if err := k.hooks.AfterOwnerChange(ctx, tokenID, oldOwner, newOwner); err != nil {
			return err
		}
	}

	ctx.ModuleLogger(ModuleName).Info("transferred NFT",
		"token_id", tokenID,
		"from", oldOwner.Hex(),
		"to", newOwner.Hex(),
	)
	return nil
}

// GetToken returns ErrNotFound for ids that were never minted.
func (k *Keeper) GetToken(ctx ledger.Context, tokenID uint64) (*Token, error) {
	m, err := ctx.Store.GetToken(tokenID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ledger.Errorf(ledger.ErrNotFound, "token %d does not exist", tokenID)
	}
	if err != nil {
		return nil, err
	}
	return tokenFromModel(m), nil
}

// GetTokenOwner returns the owner of tokenID, or nil if it does not exist.
func (k *Keeper) GetTokenOwner(ctx ledger.Context, tokenID uint64) (*common.Address, error) {
	token, err := k.GetToken(ctx, tokenID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token.Owner, nil
}

// GetNFTData returns the full record of tokenID, or nil if it does not exist.
func (k *Keeper) GetNFTData(ctx ledger.Context, tokenID uint64) (*Token, error) {
	token, err := k.GetToken(ctx, tokenID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	return token, err
}

// TokensOf returns the ids held by owner.
func (k *Keeper) TokensOf(ctx ledger.Context, owner common.Address) ([]uint64, error) {
	return ctx.Store.TokensByOwner(owner.Hex())
}

// TotalSupply returns the number of tokens ever minted.
func (k *Keeper) TotalSupply(ctx ledger.Context) (uint64, error) {
	return ctx.Store.LastTokenID()
}

func validateMetadata(meta Metadata) error {
	fields := []struct {
		name, value string
	}{
		{"name", meta.Name},
		{"description", meta.Description},
		{"image uri", meta.ImageURI},
	}
	for _, f := range fields {
		if len(f.value) > MaxTextLength {
			return ledger.Errorf(ledger.ErrInvalidInput, "%s is %d bytes, limit is %d", f.name, len(f.value), MaxTextLength)
		}
		if !utf8.ValidString(f.value) {
			return ledger.Errorf(ledger.ErrInvalidInput, "%s is not valid UTF-8", f.name)
		}
	}
	return nil
}

func tokenFromModel(m *store.TokenModel) *Token {
	return &Token{
		ID: m.ID,
		Metadata: Metadata{
			Name:        m.Name,
			Description: m.Description,
			ImageURI:    m.ImageURI,
		},
		Creator:        common.HexToAddress(m.Creator),
		RoyaltyPercent: m.RoyaltyPercent,
		Owner:          common.HexToAddress(m.Owner),
		MintedAtBlock:  m.MintedAtBlock,
	}
}
