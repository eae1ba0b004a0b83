package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
)

const (
	// ModuleName defines the module name
	ModuleName = "registry"

	// MaxRoyaltyPercent is the largest royalty a creator can set.
	MaxRoyaltyPercent = 100

	// MaxTextLength bounds each metadata field in bytes.
	MaxTextLength = 256
)

// Metadata is the immutable descriptive part of a token.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURI    string `json:"imageUri"`
}

// Token is one minted asset.
type Token struct {
	ID uint64 `json:"tokenId"`
	Metadata
	Creator        common.Address `json:"creator"`
	RoyaltyPercent uint8          `json:"royaltyPercent"`
	Owner          common.Address `json:"owner"`
	MintedAtBlock  uint64         `json:"mintedAtBlock"`
}

// OwnershipHooks is notified of every ownership change inside the same
// atomic unit. Returning an error aborts the whole operation.
type OwnershipHooks interface {
	AfterOwnerChange(ctx ledger.Context, tokenID uint64, from, to common.Address) error
}

// MultiOwnershipHooks fans a notification out to several hooks in order.
type MultiOwnershipHooks []OwnershipHooks

// AfterOwnerChange implements OwnershipHooks.
func (h MultiOwnershipHooks) AfterOwnerChange(ctx ledger.Context, tokenID uint64, from, to common.Address) error {
	for _, hook := range h {
		if err := hook.AfterOwnerChange(ctx, tokenID, from, to); err != nil {
			return err
		}
	}
	return nil
}
