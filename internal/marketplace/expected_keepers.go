package marketplace

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
)

// RegistryKeeper defines the expected interface for the registry module
type RegistryKeeper interface {
	GetToken(ctx ledger.Context, tokenID uint64) (*registry.Token, error)

	// SetOwner reassigns a token without an authorization check
	SetOwner(ctx ledger.Context, tokenID uint64, newOwner common.Address) error
}

// BankKeeper defines the expected interface for the bank module
type BankKeeper interface {
	Balance(ctx ledger.Context, addr common.Address) (*uint256.Int, error)
	Send(ctx ledger.Context, from, to common.Address, amount *uint256.Int) error
}
