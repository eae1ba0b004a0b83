package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestOpen_CreatesDirectoryAndFile verifies that Open creates missing parent directories.
func TestOpen_CreatesDirectoryAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "ledger.db")

	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	info, err := os.Stat(path)
	require.NoError(t, err, "database file should exist after Open")
	require.False(t, info.IsDir())
	require.Equal(t, path, db.Path())
}

// TestOpen_PathWithURIDelimiters verifies that '#', '?' and '%' in the path
// name the file on disk instead of starting a URI fragment or query.
func TestOpen_PathWithURIDelimiters(t *testing.T) {
	for _, name := range []string{"run#1", "run?1", "run%231"} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, name, "ledger.db")

			db, err := Open(path)
			require.NoError(t, err)
			require.NoError(t, db.InTx(context.Background(), func(tx *Tx) error {
				return tx.SetBalance("0x01", "7")
			}))
			require.NoError(t, db.Close())

			info, err := os.Stat(path)
			require.NoError(t, err)
			require.Positive(t, info.Size())

			entries, err := os.ReadDir(root)
			require.NoError(t, err)
			require.Len(t, entries, 1, "no stray database next to the configured one")

			db, err = Open(path)
			require.NoError(t, err)
			defer db.Close()
			require.Positive(t, db.Size())
			require.NoError(t, db.View(context.Background(), func(tx *Tx) error {
				bal, err := tx.GetBalance("0x01")
				require.Equal(t, "7", bal)
				return err
			}))
		})
	}
}

// TestOpen_RunsMigrations verifies every table exists and the counter row is seeded.
func TestOpen_RunsMigrations(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"registry_state", "tokens", "listings", "accounts", "receipts", "sales"} {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist after migrations", table)
	}

	err := db.View(context.Background(), func(tx *Tx) error {
		last, err := tx.LastTokenID()
		require.NoError(t, err)
		require.Zero(t, last)
		return nil
	})
	require.NoError(t, err)
}

// TestOpen_Reopen verifies migrations are idempotent and state survives reopening.
func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.InTx(context.Background(), func(tx *Tx) error {
		_, err := tx.NextTokenID()
		return err
	}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.View(context.Background(), func(tx *Tx) error {
		last, err := tx.LastTokenID()
		require.NoError(t, err)
		require.Equal(t, uint64(1), last)
		return nil
	}))
}

func TestInTx_RollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(tx *Tx) error {
		id, err := tx.NextTokenID()
		require.NoError(t, err)
		require.NoError(t, tx.InsertToken(&TokenModel{ID: id, Name: "a", Creator: "0x1", Owner: "0x1"}))
		require.NoError(t, tx.SetBalance("0x1", "100"))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		last, err := tx.LastTokenID()
		require.NoError(t, err)
		require.Zero(t, last, "counter must not advance when the transaction is discarded")

		_, err = tx.GetToken(1)
		require.ErrorIs(t, err, ErrNotFound)

		bal, err := tx.GetBalance("0x1")
		require.NoError(t, err)
		require.Empty(t, bal)
		return nil
	}))
}

func TestInTx_RollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.Panics(t, func() {
		_ = db.InTx(ctx, func(tx *Tx) error {
			_, _ = tx.NextTokenID()
			panic("halt")
		})
	})

	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		last, err := tx.LastTokenID()
		require.NoError(t, err)
		require.Zero(t, last)
		return nil
	}))
}

func TestTokensAndListings(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		for i := 0; i < 3; i++ {
			id, err := tx.NextTokenID()
			require.NoError(t, err)
			require.Equal(t, uint64(i+1), id)
			require.NoError(t, tx.InsertToken(&TokenModel{
				ID: id, Name: "n", Description: "d", ImageURI: "u",
				Creator: "0xA", RoyaltyPercent: 5, Owner: "0xA", MintedAtBlock: 7, UpdatedAtBlock: 7,
			}))
		}

		require.NoError(t, tx.UpdateTokenOwner(2, "0xB", 8))
		require.ErrorIs(t, tx.UpdateTokenOwner(99, "0xB", 8), ErrNotFound)

		require.NoError(t, tx.InsertListing(&ListingModel{TokenID: 1, Price: "1000", Seller: "0xA", ListedAtBlock: 8}))
		require.Error(t, tx.InsertListing(&ListingModel{TokenID: 1, Price: "5", Seller: "0xA", ListedAtBlock: 8}),
			"second listing for the same token must violate the primary key")
		require.Error(t, tx.InsertListing(&ListingModel{TokenID: 42, Price: "5", Seller: "0xA", ListedAtBlock: 8}),
			"listing must reference an existing token")
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		tok, err := tx.GetToken(2)
		require.NoError(t, err)
		require.Equal(t, "0xB", tok.Owner)
		require.Equal(t, "0xA", tok.Creator)
		require.Equal(t, uint8(5), tok.RoyaltyPercent)
		require.Equal(t, uint64(8), tok.UpdatedAtBlock)

		ids, err := tx.TokensByOwner("0xA")
		require.NoError(t, err)
		require.Equal(t, []uint64{1, 3}, ids)

		l, err := tx.GetListing(1)
		require.NoError(t, err)
		require.Equal(t, "1000", l.Price)

		all, err := tx.Listings(10, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)

		owners, err := tx.Owners()
		require.NoError(t, err)
		require.Equal(t, OwnerRow{TokenID: 2, Owner: "0xB"}, owners[1])
		return nil
	}))

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		deleted, err := tx.DeleteListing(1)
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = tx.DeleteListing(1)
		require.NoError(t, err)
		require.False(t, deleted)

		_, err = tx.GetListing(1)
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestReceiptsAndSales(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	result := `{"tokenId":1}`
	code, msg := "NotFound", "token 9"

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.InsertReceipt(&ReceiptModel{
			ID: "r1", BlockNumber: 3, TxIndex: 0, Operation: "mint-nft", Caller: "0xA",
			Params: `{}`, Status: "ok", Result: &result, CreatedAt: 1,
		}))
		require.NoError(t, tx.InsertReceipt(&ReceiptModel{
			ID: "r2", BlockNumber: 3, TxIndex: 1, Operation: "transfer-nft", Caller: "0xA",
			Params: `{}`, Status: "err", ErrorCode: &code, ErrorMessage: &msg, CreatedAt: 2,
		}))
		require.NoError(t, tx.InsertReceipt(&ReceiptModel{
			ID: "r3", BlockNumber: 5, TxIndex: 0, Operation: "mint-nft", Caller: "0xB",
			Params: `{}`, Status: "ok", Result: &result, CreatedAt: 3,
		}))

		id, err := tx.NextTokenID()
		require.NoError(t, err)
		require.NoError(t, tx.InsertToken(&TokenModel{ID: id, Creator: "0xA", Owner: "0xA"}))
		sale := &SaleModel{TokenID: id, Seller: "0xA", Buyer: "0xB", Creator: "0xA", Platform: "0xP",
			Price: "100", Royalty: "5", Fee: "2", SellerAmount: "93", BlockNumber: 5}
		require.NoError(t, tx.InsertSale(sale))
		require.Positive(t, sale.ID)
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		r, err := tx.GetReceipt("r2")
		require.NoError(t, err)
		require.Equal(t, "err", r.Status)
		require.Nil(t, r.Result)
		require.Equal(t, "NotFound", *r.ErrorCode)

		_, err = tx.GetReceipt("missing")
		require.ErrorIs(t, err, ErrNotFound)

		blocks, err := tx.Blocks()
		require.NoError(t, err)
		require.Equal(t, []uint64{3, 5}, blocks)

		latest, err := tx.LatestBlock()
		require.NoError(t, err)
		require.Equal(t, uint64(5), latest)

		inBlock, err := tx.ReceiptsInBlock(3)
		require.NoError(t, err)
		require.Len(t, inBlock, 2)
		require.Equal(t, "r1", inBlock[0].ID)
		require.Equal(t, "r2", inBlock[1].ID)

		sales, err := tx.SalesByToken(1)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		require.Equal(t, "93", sales[0].SellerAmount)
		return nil
	}))
}

func TestBalances(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.InTx(ctx, func(tx *Tx) error {
		require.NoError(t, tx.SetBalance("0xA", "10"))
		require.NoError(t, tx.SetBalance("0xA", "25"))
		return nil
	}))

	require.NoError(t, db.View(ctx, func(tx *Tx) error {
		bal, err := tx.GetBalance("0xA")
		require.NoError(t, err)
		require.Equal(t, "25", bal)

		n, err := tx.CountAccounts()
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return nil
	}))
}
