package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/testutil"
)

func TestQueryService_NFTDataCachesMetadataNotOwner(t *testing.T) {
	ctx := context.Background()
	files, err := NewLogFiles(t.TempDir(), "query_test", io.Discard)
	require.NoError(t, err)
	logger := NewLogger(files, nil)

	app := chain.NewApp(testutil.OpenDB(t), chain.Config{
		Marketplace: marketplace.DefaultParams(platform),
		Logger:      logger,
	})
	q := NewQueryService(app, time.Minute, logger)

	nft, err := q.NFTData(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, nft)

	_, err = app.Deliver(ctx, chain.Envelope{ID: "m", Caller: alice, Block: 1}, &chain.MintNFT{Name: "cached", RoyaltyPercent: 4})
	require.NoError(t, err)

	nft, err = q.NFTData(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "cached", nft.Name)
	require.Equal(t, alice, nft.Owner)
	_, hit := q.cache.Get("1")
	require.True(t, hit)

	_, err = app.Deliver(ctx, chain.Envelope{ID: "t", Caller: alice, Block: 2}, &chain.TransferNFT{TokenID: 1, Recipient: bob})
	require.NoError(t, err)

	nft, err = q.NFTData(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "cached", nft.Name)
	require.Equal(t, uint8(4), nft.RoyaltyPercent)
	require.Equal(t, bob, nft.Owner)

	require.Contains(t, readLog(t, files, queryLogFile), "query=getNFTData")
	require.Contains(t, readLog(t, files, queryLogFile), "cache_hit=true")
}
