package marketplace

import (
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/bank"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/ledger"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/testutil"
)

var (
	creator  = testutil.Addr(1)
	buyer    = testutil.Addr(2)
	other    = testutil.Addr(3)
	platform = testutil.Addr(0xFE)
)

type fixture struct {
	db       *store.DB
	registry *registry.Keeper
	bank     bank.Keeper
	market   Keeper
}

func newFixture(t *testing.T, bankKeeper BankKeeper) *fixture {
	t.Helper()
	f := &fixture{
		db:       testutil.OpenDB(t),
		registry: registry.NewKeeper(),
		bank:     bank.NewKeeper(),
	}
	if bankKeeper == nil {
		bankKeeper = f.bank
	}
	f.market = NewKeeper(DefaultParams(platform), f.registry, bankKeeper)
	f.registry.SetHooks(f.market)
	return f
}

func (f *fixture) mint(t *testing.T, owner common.Address, royalty uint64) uint64 {
	t.Helper()
	var id uint64
	testutil.MustRun(t, f.db, owner, func(ctx ledger.Context) error {
		var err error
		id, err = f.registry.Mint(ctx, registry.Metadata{Name: "Test NFT", ImageURI: "ipfs://x"}, royalty)
		return err
	})
	return id
}

func (f *fixture) fund(t *testing.T, addr common.Address, amount uint64) {
	t.Helper()
	testutil.MustRun(t, f.db, addr, func(ctx ledger.Context) error {
		return f.bank.Credit(ctx, addr, uint256.NewInt(amount))
	})
}

func (f *fixture) list(t *testing.T, seller common.Address, tokenID, price uint64) {
	t.Helper()
	testutil.MustRun(t, f.db, seller, func(ctx ledger.Context) error {
		return f.market.List(ctx, tokenID, uint256.NewInt(price))
	})
}

func (f *fixture) balance(t *testing.T, addr common.Address) uint64 {
	t.Helper()
	var bal *uint256.Int
	testutil.MustRun(t, f.db, addr, func(ctx ledger.Context) error {
		var err error
		bal, err = f.bank.Balance(ctx, addr)
		return err
	})
	return bal.Uint64()
}

func (f *fixture) owner(t *testing.T, tokenID uint64) common.Address {
	t.Helper()
	var owner *common.Address
	testutil.MustRun(t, f.db, other, func(ctx ledger.Context) error {
		var err error
		owner, err = f.registry.GetTokenOwner(ctx, tokenID)
		return err
	})
	require.NotNil(t, owner)
	return *owner
}

func (f *fixture) listing(t *testing.T, tokenID uint64) *Listing {
	t.Helper()
	var l *Listing
	testutil.MustRun(t, f.db, other, func(ctx ledger.Context) error {
		var err error
		l, err = f.market.GetListing(ctx, tokenID)
		return err
	})
	return l
}

func TestPurchase_RoyaltyScenario(t *testing.T) {
	f := newFixture(t, nil)

	id := f.mint(t, creator, 5)
	require.Equal(t, uint64(1), id)
	f.list(t, creator, id, 1_000_000)
	f.fund(t, buyer, 1_500_000)

	var sale *Sale
	testutil.MustRun(t, f.db, buyer, func(ctx ledger.Context) error {
		var err error
		sale, err = f.market.Purchase(ctx, id)
		return err
	})

	require.Equal(t, uint64(50_000), sale.Royalty.Uint64())
	require.Equal(t, uint64(20_000), sale.Fee.Uint64())
	require.Equal(t, uint64(930_000), sale.SellerAmount.Uint64())

	// The creator is also the seller: royalty plus the residual share.
	require.Equal(t, uint64(980_000), f.balance(t, creator))
	require.Equal(t, uint64(20_000), f.balance(t, platform))
	require.Equal(t, uint64(500_000), f.balance(t, buyer))
	require.Equal(t, buyer, f.owner(t, id))
	require.Nil(t, f.listing(t, id))

	testutil.MustRun(t, f.db, other, func(ctx ledger.Context) error {
		sales, err := f.market.Sales(ctx, id)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		require.Equal(t, sale.ID, sales[0].ID)
		require.Equal(t, creator, sales[0].Seller)
		require.Equal(t, buyer, sales[0].Buyer)
		require.Equal(t, "1000000", sales[0].Price.Dec())
		return nil
	})
}

func TestPurchase_ResaleRoyaltyToOriginalCreator(t *testing.T) {
	f := newFixture(t, nil)

	id := f.mint(t, creator, 10)
	f.list(t, creator, id, 1000)
	f.fund(t, buyer, 1000)
	testutil.MustRun(t, f.db, buyer, func(ctx ledger.Context) error {
		_, err := f.market.Purchase(ctx, id)
		return err
	})

	f.list(t, buyer, id, 500)
	f.fund(t, other, 500)
	testutil.MustRun(t, f.db, other, func(ctx ledger.Context) error {
		_, err := f.market.Purchase(ctx, id)
		return err
	})

	// First sale 1000: creator 100+880. Resale 500: creator 50, buyer 440.
	require.Equal(t, uint64(1030), f.balance(t, creator))
	require.Equal(t, uint64(440), f.balance(t, buyer))
	require.Equal(t, uint64(30), f.balance(t, platform))
	require.Equal(t, other, f.owner(t, id))
}

func TestList(t *testing.T) {
	f := newFixture(t, nil)
	id := f.mint(t, creator, 0)
	full := f.mint(t, creator, registry.MaxRoyaltyPercent)

	tests := []struct {
		name    string
		caller  common.Address
		tokenID uint64
		price   *uint256.Int
		wantErr error
	}{
		{"missing token", creator, 42, uint256.NewInt(1), ledger.ErrNotFound},
		{"not owner", other, id, uint256.NewInt(1), ledger.ErrUnauthorized},
		{"zero price", creator, id, new(uint256.Int), ledger.ErrInvalidInput},
		{"nil price", creator, id, nil, ledger.ErrInvalidInput},
		{"royalty plus fee above price", creator, full, uint256.NewInt(1000), ledger.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testutil.Run(t, f.db, tt.caller, func(ctx ledger.Context) error {
				return f.market.List(ctx, tt.tokenID, tt.price)
			})
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, f.listing(t, id))
			require.Nil(t, f.listing(t, full))
		})
	}

	f.list(t, creator, id, 100)
	err := testutil.Run(t, f.db, creator, func(ctx ledger.Context) error {
		return f.market.List(ctx, id, uint256.NewInt(200))
	})
	require.ErrorIs(t, err, ledger.ErrAlreadyListed)

	l := f.listing(t, id)
	require.NotNil(t, l)
	require.Equal(t, uint64(100), l.Price.Uint64(), "a rejected relist keeps the original price")
	require.Equal(t, creator, l.Seller)
}

func TestUnlist(t *testing.T) {
	f := newFixture(t, nil)
	id := f.mint(t, creator, 0)

	err := testutil.Run(t, f.db, creator, func(ctx ledger.Context) error {
		return f.market.Unlist(ctx, id)
	})
	require.ErrorIs(t, err, ledger.ErrNotListed)

	f.list(t, creator, id, 100)
	err = testutil.Run(t, f.db, other, func(ctx ledger.Context) error {
		return f.market.Unlist(ctx, id)
	})
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	require.NotNil(t, f.listing(t, id))

	testutil.MustRun(t, f.db, creator, func(ctx ledger.Context) error {
		return f.market.Unlist(ctx, id)
	})
	require.Nil(t, f.listing(t, id))

	// Relisting at a new price works after an unlist.
	f.list(t, creator, id, 300)
	require.Equal(t, uint64(300), f.listing(t, id).Price.Uint64())
}

func TestTransfer_ClearsListing(t *testing.T) {
	f := newFixture(t, nil)
	id := f.mint(t, creator, 0)
	f.list(t, creator, id, 100)

	testutil.MustRun(t, f.db, creator, func(ctx ledger.Context) error {
		return f.registry.Transfer(ctx, id, other)
	})
	require.Nil(t, f.listing(t, id))

	// The former owner's listing cannot be bought.
	f.fund(t, buyer, 100)
	err := testutil.Run(t, f.db, buyer, func(ctx ledger.Context) error {
		_, err := f.market.Purchase(ctx, id)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrNotListed)
	require.Equal(t, uint64(100), f.balance(t, buyer))
	require.Equal(t, other, f.owner(t, id))
}

func TestPurchase_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	listed := f.mint(t, creator, 0)
	unlisted := f.mint(t, creator, 0)
	f.list(t, creator, listed, 1000)
	f.fund(t, buyer, 999)
	f.fund(t, creator, 5000)

	tests := []struct {
		name    string
		caller  common.Address
		tokenID uint64
		wantErr error
	}{
		{"not listed", buyer, unlisted, ledger.ErrNotListed},
		{"missing token", buyer, 99, ledger.ErrNotListed},
		{"self purchase", creator, listed, ledger.ErrSelfPurchase},
		{"insufficient funds", buyer, listed, ledger.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := testutil.Run(t, f.db, tt.caller, func(ctx ledger.Context) error {
				_, err := f.market.Purchase(ctx, tt.tokenID)
				return err
			})
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	require.Equal(t, uint64(999), f.balance(t, buyer))
	require.Equal(t, uint64(5000), f.balance(t, creator))
	require.Zero(t, f.balance(t, platform))
	require.Equal(t, creator, f.owner(t, listed))
	require.NotNil(t, f.listing(t, listed))
}

func TestList_FullRoyaltyAtSmallPrice(t *testing.T) {
	f := newFixture(t, nil)
	id := f.mint(t, creator, registry.MaxRoyaltyPercent)

	// 2% of 49 truncates to zero, so the royalty takes the whole price.
	f.list(t, creator, id, 49)
	require.NotNil(t, f.listing(t, id))
}

func TestPurchase_RoyaltyPlusFeeAbovePrice(t *testing.T) {
	f := newFixture(t, nil)
	id := f.mint(t, creator, registry.MaxRoyaltyPercent)

	// Listed while the platform fee was zero; the fee was raised since.
	feeless := NewKeeper(Params{PlatformAccount: platform}, f.registry, f.bank)
	testutil.MustRun(t, f.db, creator, func(ctx ledger.Context) error {
		return feeless.List(ctx, id, uint256.NewInt(1000))
	})
	f.fund(t, buyer, 1000)

	err := testutil.Run(t, f.db, buyer, func(ctx ledger.Context) error {
		_, err := f.market.Purchase(ctx, id)
		return err
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)
	require.Equal(t, uint64(1000), f.balance(t, buyer))
	require.Equal(t, creator, f.owner(t, id))
}

// failingBank passes calls through to the real bank and fails the n-th Send.
type failingBank struct {
	bank.Keeper
	failAt int
	sends  int
}

func (b *failingBank) Send(ctx ledger.Context, from, to common.Address, amount *uint256.Int) error {
	b.sends++
	if b.sends == b.failAt {
		return errors.New("transfer rejected")
	}
	return b.Keeper.Send(ctx, from, to, amount)
}

func TestPurchase_PartialFailureRollsBack(t *testing.T) {
	for failAt := 1; failAt <= 3; failAt++ {
		t.Run(fmt.Sprintf("send %d fails", failAt), func(t *testing.T) {
			fb := &failingBank{Keeper: bank.NewKeeper(), failAt: failAt}
			f := newFixture(t, fb)
			id := f.mint(t, creator, 10)
			f.list(t, creator, id, 1000)
			f.fund(t, buyer, 1000)

			err := testutil.Run(t, f.db, buyer, func(ctx ledger.Context) error {
				_, err := f.market.Purchase(ctx, id)
				return err
			})
			require.EqualError(t, err, "transfer rejected")

			require.Equal(t, uint64(1000), f.balance(t, buyer))
			require.Zero(t, f.balance(t, creator))
			require.Zero(t, f.balance(t, platform))
			require.Equal(t, creator, f.owner(t, id))
			require.NotNil(t, f.listing(t, id))

			testutil.MustRun(t, f.db, other, func(ctx ledger.Context) error {
				sales, err := f.market.Sales(ctx, id)
				require.NoError(t, err)
				require.Empty(t, sales)
				return nil
			})
		})
	}
}

func TestListings(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 3; i++ {
		id := f.mint(t, creator, 0)
		f.list(t, creator, id, 100*(id))
	}

	testutil.MustRun(t, f.db, other, func(ctx ledger.Context) error {
		all, err := f.market.Listings(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)

		page, err := f.market.Listings(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		require.Equal(t, uint64(2), page[0].TokenID)
		require.Equal(t, uint64(300), page[1].Price.Uint64())
		return nil
	})
}

func TestParams_Validate(t *testing.T) {
	require.NoError(t, DefaultParams(platform).Validate())
	require.Error(t, DefaultParams(common.Address{}).Validate())
	require.Error(t, Params{PlatformAccount: platform, PlatformFeePercent: 101}.Validate())
	require.Panics(t, func() { NewKeeper(Params{}, registry.NewKeeper(), bank.NewKeeper()) })
}
