package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
)

// predefinedWords is a list of 20 words for token names
var predefinedWords = []string{
	"alpha", "beta", "gamma", "delta", "epsilon",
	"zeta", "eta", "theta", "iota", "kappa",
	"lambda", "mu", "nu", "xi", "omicron",
	"pi", "rho", "sigma", "tau", "upsilon",
}

// SimulateConfig configures the load generator.
type SimulateConfig struct {
	Accounts    int
	Operations  int
	Concurrency int
	Funding     *uint256.Int
	MaxPrice    uint64
}

// SimulateStats counts the outcome of a simulation.
type SimulateStats struct {
	Submitted atomic.Int64
	Accepted  atomic.Int64
	Rejected  atomic.Int64
	Errors    atomic.Int64
}

// newAccounts generates fresh secp256k1 keys and returns their addresses.
func newAccounts(n int) ([]common.Address, error) {
	accounts := make([]common.Address, 0, n)
	for range n {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		accounts = append(accounts, crypto.PubkeyToAddress(key.PublicKey))
	}
	return accounts, nil
}

// randomWord returns a random word from predefinedWords
func randomWord() string {
	return predefinedWords[rand.IntN(len(predefinedWords))]
}

// Simulate funds a set of random accounts from the faucet and drives random
// mint, list, purchase and transfer traffic against the server.
func Simulate(ctx context.Context, c *Client, cfg SimulateConfig, out io.Writer) (*SimulateStats, error) {
	if cfg.Accounts < 2 {
		return nil, errors.New("at least 2 accounts are required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxPrice == 0 {
		cfg.MaxPrice = 1000
	}
	if cfg.Funding == nil {
		cfg.Funding = uint256.NewInt(cfg.MaxPrice * 10)
	}

	fmt.Fprintf(out, "Connecting to server: %s\n", c.baseURL)
	if err := checkServerHealth(ctx, c); err != nil {
		return nil, fmt.Errorf("server is not available at %s: %w\nPlease make sure the server is running (secure-mint serve --faucet)", c.baseURL, err)
	}

	accounts, err := newAccounts(cfg.Accounts)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Funding %d accounts with %s each...\n", len(accounts), cfg.Funding.Dec())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for _, addr := range accounts {
		g.Go(func() error {
			if _, err := c.Fund(gctx, addr, addr, cfg.Funding); err != nil {
				return fmt.Errorf("failed to fund %s: %w", addr.Hex(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fmt.Fprintf(out, "Submitting %d operations with %d workers...\n\n", cfg.Operations, cfg.Concurrency)
	stats := &SimulateStats{}
	startTime := time.Now()

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(cfg.Concurrency)
	for i := range cfg.Operations {
		g.Go(func() error {
			err := randomOperation(gctx, c, accounts, cfg.MaxPrice)
			stats.Submitted.Add(1)
			var rejected *ledger.Error
			switch {
			case err == nil:
				stats.Accepted.Add(1)
			case errors.As(err, &rejected):
				stats.Rejected.Add(1)
			default:
				if stats.Errors.Add(1) <= 5 { // Only show first 5 errors
					fmt.Fprintf(out, "\n✗ Error in operation %d: %v\n", i+1, err)
				}
			}
			if n := stats.Submitted.Load(); n%100 == 0 || int(n) == cfg.Operations {
				fmt.Fprintf(out, "\rProgress: %d/%d - Accepted: %d, Rejected: %d, Errors: %d - Elapsed: %.1fs",
					n, cfg.Operations, stats.Accepted.Load(), stats.Rejected.Load(), stats.Errors.Load(),
					time.Since(startTime).Seconds())
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	fmt.Fprintln(out)
	totalTime := time.Since(startTime).Seconds()
	fmt.Fprintf(out, "✓ Completed: %d operations (Accepted: %d, Rejected: %d, Errors: %d)\n",
		stats.Submitted.Load(), stats.Accepted.Load(), stats.Rejected.Load(), stats.Errors.Load())
	if totalTime > 0 {
		fmt.Fprintf(out, "  Total time: %.2fs\n", totalTime)
		fmt.Fprintf(out, "  Rate: ~%.0f operations/second\n", float64(stats.Submitted.Load())/totalTime)
	}
	return stats, nil
}

// randomOperation picks an action for a random account. Actions that need
// state fall back to minting when the account has nothing to act on.
func randomOperation(ctx context.Context, c *Client, accounts []common.Address, maxPrice uint64) error {
	caller := accounts[rand.IntN(len(accounts))]

	switch rand.IntN(4) {
	case 1:
		ids, err := c.TokensOf(ctx, caller)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			price := uint256.NewInt(1 + rand.Uint64N(maxPrice))
			_, err := c.List(ctx, caller, ids[rand.IntN(len(ids))], price)
			return err
		}
	case 2:
		listings, err := c.Listings(ctx, 50, 0)
		if err != nil {
			return err
		}
		for _, l := range listings {
			if l.Seller != caller {
				_, err := c.Purchase(ctx, caller, l.TokenID)
				return err
			}
		}
	case 3:
		ids, err := c.TokensOf(ctx, caller)
		if err != nil {
			return err
		}
		if len(ids) > 0 {
			recipient := accounts[rand.IntN(len(accounts))]
			for recipient == caller {
				recipient = accounts[rand.IntN(len(accounts))]
			}
			_, err := c.Transfer(ctx, caller, ids[rand.IntN(len(ids))], recipient)
			return err
		}
	}

	royalty := rand.Uint64N(11)
	_, _, err := c.Mint(ctx, caller, MintRequest{
		Name:           fmt.Sprintf("%s-%s", randomWord(), randomWord()),
		Description:    randomWord(),
		ImageURI:       fmt.Sprintf("ipfs://%s/%d", randomWord(), rand.IntN(1_000_000)),
		RoyaltyPercent: &royalty,
	})
	return err
}
