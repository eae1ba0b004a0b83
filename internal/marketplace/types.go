package marketplace

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	// ModuleName defines the module name
	ModuleName = "marketplace"

	// DefaultPlatformFeePercent is charged on every sale unless configured otherwise.
	DefaultPlatformFeePercent = 2
)

// Params are fixed for the lifetime of a keeper.
type Params struct {
	PlatformAccount    common.Address
	PlatformFeePercent uint64
}

// DefaultParams returns the default marketplace parameters.
func DefaultParams(platform common.Address) Params {
	return Params{
		PlatformAccount:    platform,
		PlatformFeePercent: DefaultPlatformFeePercent,
	}
}

// Validate checks the platform account and fee range.
func (p Params) Validate() error {
	if p.PlatformAccount == (common.Address{}) {
		return fmt.Errorf("platform account must be set")
	}
	if p.PlatformFeePercent > 100 {
		return fmt.Errorf("platform fee %d%% exceeds 100%%", p.PlatformFeePercent)
	}
	return nil
}

// Listing is an active offer to sell a token.
type Listing struct {
	TokenID       uint64         `json:"tokenId"`
	Price         *uint256.Int   `json:"price"`
	Seller        common.Address `json:"seller"`
	ListedAtBlock uint64         `json:"listedAtBlock"`
}

// Sale is one settled purchase.
type Sale struct {
	ID           int64          `json:"id"`
	TokenID      uint64         `json:"tokenId"`
	Seller       common.Address `json:"seller"`
	Buyer        common.Address `json:"buyer"`
	Creator      common.Address `json:"creator"`
	Platform     common.Address `json:"platform"`
	Price        *uint256.Int   `json:"price"`
	Royalty      *uint256.Int   `json:"royalty"`
	Fee          *uint256.Int   `json:"fee"`
	SellerAmount *uint256.Int   `json:"sellerAmount"`
	Block        uint64         `json:"block"`
}
