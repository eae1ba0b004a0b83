// Package testutil provides helpers for tests that need a ledger database.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// OpenDB opens a migrated database in a temp dir, closed when the test ends.
func OpenDB(t testing.TB) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// Addr returns a deterministic address ending in n.
func Addr(n byte) common.Address {
	var a common.Address
	a[len(a)-1] = n
	a[0] = 0xAA
	return a
}

// Run executes fn as one atomic unit on behalf of caller in block 1. The
// unit is committed when fn returns nil and discarded otherwise; fn's error
// is returned unchanged.
func Run(t testing.TB, db *store.DB, caller common.Address, fn func(ctx ledger.Context) error) error {
	t.Helper()
	return db.InTx(context.Background(), func(tx *store.Tx) error {
		return fn(ledger.NewContext(context.Background(), tx, caller, 1, 0, nil))
	})
}

// MustRun is Run that fails the test on error.
func MustRun(t testing.TB, db *store.DB, caller common.Address, fn func(ctx ledger.Context) error) {
	t.Helper()
	require.NoError(t, Run(t, db, caller, fn))
}
