package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/testutil"
)

var testMeta = Metadata{
	Name:        "Test NFT",
	Description: "A test NFT description",
	ImageURI:    "https://test.com/image.png",
}

type recordedChange struct {
	tokenID  uint64
	from, to common.Address
}

type recordingHooks struct {
	changes []recordedChange
	err     error
}

func (h *recordingHooks) AfterOwnerChange(_ ledger.Context, tokenID uint64, from, to common.Address) error {
	h.changes = append(h.changes, recordedChange{tokenID, from, to})
	return h.err
}

func TestMint_ReturnsSequentialIDs(t *testing.T) {
	db := testutil.OpenDB(t)
	k := NewKeeper()
	creator := testutil.Addr(1)

	testutil.MustRun(t, db, creator, func(ctx ledger.Context) error {
		for want := uint64(1); want <= 3; want++ {
			id, err := k.Mint(ctx, testMeta, 5)
			require.NoError(t, err)
			require.Equal(t, want, id)
		}
		supply, err := k.TotalSupply(ctx)
		require.NoError(t, err)
		require.Equal(t, uint64(3), supply)
		return nil
	})
}

func TestMint_StoresMetadata(t *testing.T) {
	db := testutil.OpenDB(t)
	k := NewKeeper()
	creator := testutil.Addr(1)

	testutil.MustRun(t, db, creator, func(ctx ledger.Context) error {
		id, err := k.Mint(ctx, testMeta, 5)
		require.NoError(t, err)

		data, err := k.GetNFTData(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, data)
		require.Equal(t, testMeta, data.Metadata)
		require.Equal(t, creator, data.Creator)
		require.Equal(t, creator, data.Owner)
		require.Equal(t, uint8(5), data.RoyaltyPercent)
		require.Equal(t, uint64(1), data.MintedAtBlock)
		return nil
	})
}

// TestMint_DuplicateMetadata mints the same metadata twice: both succeed with distinct ids.
func TestMint_DuplicateMetadata(t *testing.T) {
	db := testutil.OpenDB(t)
	k := NewKeeper()
	creator := testutil.Addr(1)

	testutil.MustRun(t, db, creator, func(ctx ledger.Context) error {
		first, err := k.Mint(ctx, testMeta, 5)
		require.NoError(t, err)
		second, err := k.Mint(ctx, testMeta, 5)
		require.NoError(t, err)
		require.Equal(t, uint64(1), first)
		require.Equal(t, uint64(2), second)

		for _, id := range []uint64{first, second} {
			owner, err := k.GetTokenOwner(ctx, id)
			require.NoError(t, err)
			require.Equal(t, creator, *owner)
		}
		ids, err := k.TokensOf(ctx, creator)
		require.NoError(t, err)
		require.Equal(t, []uint64{1, 2}, ids)
		return nil
	})
}

func TestMint_RejectsInvalidInput(t *testing.T) {
	db := testutil.OpenDB(t)
	k := NewKeeper()

	tests := []struct {
		name    string
		meta    Metadata
		royalty uint64
	}{
		{"royalty above 100", testMeta, 101},
		{"name too long", Metadata{Name: strings.Repeat("x", MaxTextLength+1)}, 0},
		{"description invalid utf8", Metadata{Description: string([]byte{0xff, 0xfe})}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testutil.Run(t, db, testutil.Addr(1), func(ctx ledger.Context) error {
				_, err := k.Mint(ctx, tt.meta, tt.royalty)
				return err
			})
			require.ErrorIs(t, err, ledger.ErrInvalidInput)
		})
	}

	testutil.MustRun(t, db, testutil.Addr(1), func(ctx ledger.Context) error {
		supply, err := k.TotalSupply(ctx)
		require.NoError(t, err)
		require.Zero(t, supply, "rejected mints must not consume ids")

		id, err := k.Mint(ctx, testMeta, MaxRoyaltyPercent)
		require.NoError(t, err)
		require.Equal(t, uint64(1), id)
		return nil
	})
}

func TestTransfer(t *testing.T) {
	db := testutil.OpenDB(t)
	hooks := &recordingHooks{}
	k := NewKeeper().SetHooks(hooks)
	owner, recipient, stranger := testutil.Addr(1), testutil.Addr(2), testutil.Addr(3)

	testutil.MustRun(t, db, owner, func(ctx ledger.Context) error {
		_, err := k.Mint(ctx, testMeta, 0)
		return err
	})

	err := testutil.Run(t, db, stranger, func(ctx ledger.Context) error {
		return k.Transfer(ctx, 1, recipient)
	})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)

	err = testutil.Run(t, db, owner, func(ctx ledger.Context) error {
		return k.Transfer(ctx, 7, recipient)
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)

	err = testutil.Run(t, db, owner, func(ctx ledger.Context) error {
		return k.Transfer(ctx, 1, owner)
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	err = testutil.Run(t, db, owner, func(ctx ledger.Context) error {
		return k.Transfer(ctx, 1, common.Address{})
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	require.Empty(t, hooks.changes, "failed transfers must not notify hooks")

	testutil.MustRun(t, db, owner, func(ctx ledger.Context) error {
		return k.Transfer(ctx, 1, recipient)
	})
	require.Equal(t, []recordedChange{{1, owner, recipient}}, hooks.changes)

	testutil.MustRun(t, db, stranger, func(ctx ledger.Context) error {
		got, err := k.GetTokenOwner(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, recipient, *got)

		data, err := k.GetNFTData(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, owner, data.Creator, "creator is immutable")
		return nil
	})
}

func TestSetOwner_HookFailureAbortsUnit(t *testing.T) {
	db := testutil.OpenDB(t)
	hooks := &recordingHooks{err: errors.New("hook failed")}
	k := NewKeeper().SetHooks(hooks)
	owner, buyer := testutil.Addr(1), testutil.Addr(2)

	testutil.MustRun(t, db, owner, func(ctx ledger.Context) error {
		_, err := k.Mint(ctx, testMeta, 0)
		return err
	})

	err := testutil.Run(t, db, owner, func(ctx ledger.Context) error {
		return k.SetOwner(ctx, 1, buyer)
	})
	require.EqualError(t, err, "hook failed")

	testutil.MustRun(t, db, owner, func(ctx ledger.Context) error {
		got, err := k.GetTokenOwner(ctx, 1)
		require.NoError(t, err)
		require.Equal(t, owner, *got)
		return nil
	})
}

func TestQueries_MissingToken(t *testing.T) {
	db := testutil.OpenDB(t)
	k := NewKeeper()

	testutil.MustRun(t, db, testutil.Addr(1), func(ctx ledger.Context) error {
		owner, err := k.GetTokenOwner(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, owner)

		data, err := k.GetNFTData(ctx, 1)
		require.NoError(t, err)
		require.Nil(t, data)
		return nil
	})
}

func TestSetHooks_Twice(t *testing.T) {
	k := NewKeeper().SetHooks(&recordingHooks{})
	require.Panics(t, func() { k.SetHooks(&recordingHooks{}) })
}

// TestMint_IDsAreGapless is a property-based test: whatever mix of valid and
// invalid mints runs, the accepted ids are exactly 1..n.
func TestMint_IDsAreGapless(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		db := testutil.OpenDB(t)
		k := NewKeeper()

		royalties := rapid.SliceOfN(rapid.Uint64Range(0, 150), 1, 20).Draw(r, "royalties")

		var got []uint64
		for _, royalty := range royalties {
			err := testutil.Run(t, db, testutil.Addr(1), func(ctx ledger.Context) error {
				id, err := k.Mint(ctx, testMeta, royalty)
				if err == nil {
					got = append(got, id)
				}
				return err
			})
			if royalty > MaxRoyaltyPercent && !errors.Is(err, ledger.ErrInvalidInput) {
				r.Fatalf("royalty %d accepted", royalty)
			}
		}

		for i, id := range got {
			if id != uint64(i+1) {
				r.Fatalf("mint %d got id %d, want %d", i, id, i+1)
			}
		}
	})
}
