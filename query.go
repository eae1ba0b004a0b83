package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/patrickmn/go-cache"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/registry"
)

// QueryService is the read path. It runs against committed state outside
// the block processor, caches the immutable part of each token and logs
// every query with its timing to query.log.
type QueryService struct {
	app    *chain.App
	cache  *cache.Cache
	logger *slog.Logger
}

// tokenInfo is the part of a token that never changes after mint.
type tokenInfo struct {
	registry.Metadata
	Creator        common.Address
	RoyaltyPercent uint8
	MintedAtBlock  uint64
}

// NewQueryService caches token metadata for ttl. A zero ttl disables expiry.
func NewQueryService(app *chain.App, ttl time.Duration, logger *slog.Logger) *QueryService {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &QueryService{
		app:    app,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.With(componentKey, componentQuery),
	}
}

// logQuery logs a query with its duration and warns if it was slow.
func (q *QueryService) logQuery(queryType string, start time.Time, args ...any) {
	duration := time.Since(start)
	q.logger.Info("query executed",
		append([]any{"query", queryType, "duration_ms", duration.Milliseconds()}, args...)...)
	logSlow(q.logger, "QUERY", queryType, duration, slowQueryThreshold)
}

// TokenOwner returns nil for tokens that were never minted.
func (q *QueryService) TokenOwner(ctx context.Context, tokenID uint64) (*common.Address, error) {
	defer q.logQuery("getTokenOwner", time.Now(), "token_id", tokenID)
	return q.app.TokenOwner(ctx, tokenID)
}

// NFTData returns nil for tokens that were never minted. Metadata comes from
// the cache when possible; the owner is always read fresh.
func (q *QueryService) NFTData(ctx context.Context, tokenID uint64) (*NFTResponse, error) {
	start := time.Now()
	key := strconv.FormatUint(tokenID, 10)

	cached, hit := q.cache.Get(key)
	defer func() { q.logQuery("getNFTData", start, "token_id", tokenID, "cache_hit", hit) }()

	if hit {
		info := cached.(tokenInfo)
		owner, err := q.app.TokenOwner(ctx, tokenID)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			return nil, fmt.Errorf("token %d is cached but missing from the ledger", tokenID)
		}
		return nftResponse(tokenID, info, *owner), nil
	}

	token, err := q.app.NFTData(ctx, tokenID)
	if err != nil || token == nil {
		return nil, err
	}
	info := tokenInfo{
		Metadata:       token.Metadata,
		Creator:        token.Creator,
		RoyaltyPercent: token.RoyaltyPercent,
		MintedAtBlock:  token.MintedAtBlock,
	}
	q.cache.SetDefault(key, info)
	return nftResponse(tokenID, info, token.Owner), nil
}

func nftResponse(tokenID uint64, info tokenInfo, owner common.Address) *NFTResponse {
	return &NFTResponse{
		TokenID:        tokenID,
		Name:           info.Name,
		Description:    info.Description,
		ImageURI:       info.ImageURI,
		Creator:        info.Creator,
		RoyaltyPercent: info.RoyaltyPercent,
		Owner:          owner,
		MintedAtBlock:  info.MintedAtBlock,
	}
}

// TokensOf returns the ids owned by owner.
func (q *QueryService) TokensOf(ctx context.Context, owner common.Address) ([]uint64, error) {
	defer q.logQuery("getTokensOf", time.Now(), "owner", owner.Hex())
	ids, err := q.app.TokensOf(ctx, owner)
	if ids == nil && err == nil {
		ids = []uint64{}
	}
	return ids, err
}

// Listing returns nil if tokenID is not for sale.
func (q *QueryService) Listing(ctx context.Context, tokenID uint64) (*marketplace.Listing, error) {
	defer q.logQuery("getListing", time.Now(), "token_id", tokenID)
	return q.app.Listing(ctx, tokenID)
}

// Listings pages through active listings.
func (q *QueryService) Listings(ctx context.Context, limit, offset int) ([]*marketplace.Listing, error) {
	defer q.logQuery("getListings", time.Now(), "limit", limit, "offset", offset)
	return q.app.Listings(ctx, limit, offset)
}

// Sales returns the sale history of tokenID.
func (q *QueryService) Sales(ctx context.Context, tokenID uint64) ([]*marketplace.Sale, error) {
	defer q.logQuery("getSales", time.Now(), "token_id", tokenID)
	return q.app.Sales(ctx, tokenID)
}

// Balance returns the balance of addr.
func (q *QueryService) Balance(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	defer q.logQuery("getBalance", time.Now(), "address", addr.Hex())
	return q.app.Balance(ctx, addr)
}

// Receipt returns a stored receipt.
func (q *QueryService) Receipt(ctx context.Context, id string) (*chain.Receipt, error) {
	defer q.logQuery("getReceipt", time.Now(), "id", id)
	return q.app.Receipt(ctx, id)
}

// LatestBlock returns the last block that executed operations.
func (q *QueryService) LatestBlock(ctx context.Context) (uint64, error) {
	return q.app.LatestBlock(ctx)
}
