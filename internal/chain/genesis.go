package chain

import (
	"context"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// Genesis is the initial value allocation of a fresh ledger.
type Genesis struct {
	Accounts []GenesisAccount `yaml:"accounts"`
}

// GenesisAccount funds one address. Balance is a decimal string.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance string `yaml:"balance"`
}

// LoadGenesis reads a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read genesis file: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse genesis file %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks every address and balance.
func (g *Genesis) Validate() error {
	seen := make(map[common.Address]bool, len(g.Accounts))
	for i, acc := range g.Accounts {
		if !common.IsHexAddress(acc.Address) {
			return fmt.Errorf("genesis account %d: invalid address %q", i, acc.Address)
		}
		addr := common.HexToAddress(acc.Address)
		if seen[addr] {
			return fmt.Errorf("genesis account %d: duplicate address %s", i, addr.Hex())
		}
		seen[addr] = true
		if _, err := uint256.FromDecimal(acc.Balance); err != nil {
			return fmt.Errorf("genesis account %d: invalid balance %q: %w", i, acc.Balance, err)
		}
	}
	return nil
}

// InitGenesis credits the genesis accounts. It only runs against a ledger
// that has never held value nor executed an operation, and reports whether
// it applied anything.
func (a *App) InitGenesis(ctx context.Context, g *Genesis) (bool, error) {
	if g == nil || len(g.Accounts) == 0 {
		return false, nil
	}

	applied := false
	err := a.db.InTx(ctx, func(tx *store.Tx) error {
		accounts, err := tx.CountAccounts()
		if err != nil {
			return err
		}
		latest, err := tx.LatestBlock()
		if err != nil {
			return err
		}
		if accounts > 0 || latest > 0 {
			return nil
		}

		lctx := ledger.NewContext(ctx, tx, common.Address{}, 0, 0, a.logger)
		for _, acc := range g.Accounts {
			bal, err := uint256.FromDecimal(acc.Balance)
			if err != nil {
				return fmt.Errorf("invalid genesis balance for %s: %w", acc.Address, err)
			}
			if err := a.Bank.Credit(lctx, common.HexToAddress(acc.Address), bal); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply genesis: %w", err)
	}
	if applied {
		a.logger.Info("applied genesis", "accounts", len(g.Accounts))
	}
	return applied, nil
}
