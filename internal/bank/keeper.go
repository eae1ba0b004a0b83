// Package bank simulates native value held by accounts. It stands in for the
// host environment's value-transfer collaborator.
package bank

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
)

// ModuleName is used for logging.
const ModuleName = "bank"

// Keeper moves native value between accounts.
type Keeper struct{}

// NewKeeper creates a new Keeper
func NewKeeper() Keeper {
	return Keeper{}
}

// Balance returns the spendable balance of addr; unknown accounts hold zero.
func (k Keeper) Balance(ctx ledger.Context, addr common.Address) (*uint256.Int, error) {
	raw, err := ctx.Store.GetBalance(addr.Hex())
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return new(uint256.Int), nil
	}
	bal, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance for %s: %w", addr.Hex(), err)
	}
	return bal, nil
}

// Send moves amount from one account to another. Sending to oneself only
// checks that the sender can cover the amount.
func (k Keeper) Send(ctx ledger.Context, from, to common.Address, amount *uint256.Int) error {
	fromBal, err := k.Balance(ctx, from)
	if err != nil {
		return err
	}
	if fromBal.Lt(amount) {
		return ledger.Errorf(ledger.ErrInsufficientFunds,
			"%s holds %s, needs %s", from.Hex(), fromBal.Dec(), amount.Dec())
	}
	if amount.IsZero() || from == to {
		return nil
	}

	toBal, err := k.Balance(ctx, to)
	if err != nil {
		return err
	}
	newTo, overflow := new(uint256.Int).AddOverflow(toBal, amount)
	if overflow {
		return ledger.Errorf(ledger.ErrInvalidInput, "balance of %s would overflow", to.Hex())
	}

	if err := ctx.Store.SetBalance(from.Hex(), new(uint256.Int).Sub(fromBal, amount).Dec()); err != nil {
		return err
	}
	if err := ctx.Store.SetBalance(to.Hex(), newTo.Dec()); err != nil {
		return err
	}

	ctx.ModuleLogger(ModuleName).Debug("sent value",
		"from", from.Hex(),
		"to", to.Hex(),
		"amount", amount.Dec(),
	)
	return nil
}

// Credit creates amount out of thin air for addr. Only genesis and the
// development faucet call it.
func (k Keeper) Credit(ctx ledger.Context, addr common.Address, amount *uint256.Int) error {
	bal, err := k.Balance(ctx, addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return ledger.Errorf(ledger.ErrInvalidInput, "balance of %s would overflow", addr.Hex())
	}
	if err := ctx.Store.SetBalance(addr.Hex(), sum.Dec()); err != nil {
		return err
	}

	ctx.ModuleLogger(ModuleName).Info("credited account",
		"address", addr.Hex(),
		"amount", amount.Dec(),
		"balance", sum.Dec(),
	)
	return nil
}
