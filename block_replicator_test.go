package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

// writeSourceLedger builds a ledger with three blocks of traffic.
func writeSourceLedger(t *testing.T, path string, genesis *chain.Genesis) {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open(path)
	require.NoError(t, err)
	defer db.Close()
	app := chain.NewApp(db, chain.Config{Marketplace: marketplace.DefaultParams(platform)})
	_, err = app.InitGenesis(ctx, genesis)
	require.NoError(t, err)

	blocks := [][]struct {
		env chain.Envelope
		op  chain.Operation
	}{
		{
			{chain.Envelope{Caller: alice}, &chain.MintNFT{Name: "a", RoyaltyPercent: 10}},
			{chain.Envelope{Caller: alice}, &chain.MintNFT{Name: "b"}},
		},
		{
			{chain.Envelope{Caller: alice}, &chain.ListNFT{TokenID: 1, Price: uint256.NewInt(1000)}},
			{chain.Envelope{Caller: bob}, &chain.PurchaseNFT{TokenID: 1}},
			{chain.Envelope{Caller: bob}, &chain.PurchaseNFT{TokenID: 1}},
		},
		{
			{chain.Envelope{Caller: alice}, &chain.TransferNFT{TokenID: 2, Recipient: carol}},
		},
	}
	for b, ops := range blocks {
		for i, o := range ops {
			env := o.env
			env.ID = string(rune('a'+b)) + string(rune('0'+i))
			env.Block = uint64(b + 1)
			env.TxIndex = uint32(i)
			_, err := app.Deliver(ctx, env, o.op)
			require.NoError(t, err)
		}
	}
}

func replayFixture(t *testing.T) (string, *chain.Genesis) {
	t.Helper()
	genesis := &chain.Genesis{Accounts: []chain.GenesisAccount{{Address: bob.Hex(), Balance: "5000"}}}
	source := filepath.Join(t.TempDir(), "source.db")
	writeSourceLedger(t, source, genesis)
	return source, genesis
}

func newTestReplicator(t *testing.T, source string, genesis *chain.Genesis, blocks int) (*Replicator, string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "replay.csv")
	r, err := NewReplicator(context.Background(), ReplayConfig{
		SourcePath:  source,
		TargetPath:  filepath.Join(dir, "target.db"),
		CSVPath:     csvPath,
		NumBlocks:   blocks,
		Marketplace: marketplace.DefaultParams(platform),
		Genesis:     genesis,
	}, io.Discard, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r, csvPath
}

func TestReplicator_FullReplay(t *testing.T) {
	source, genesis := replayFixture(t)
	r, csvPath := newTestReplicator(t, source, genesis, 0)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, stats.Blocks)
	require.Equal(t, 6, stats.Operations)
	require.Equal(t, 1, stats.Failures, "second purchase is rejected")
	require.Zero(t, stats.Mismatches)
	require.True(t, stats.OwnersOK)
	require.Len(t, stats.BlockTimes, 3)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, "block", rows[0][0])
	require.Equal(t, []string{"2", "3", "1"}, rows[2][:3])

	sales, err := r.target.Sales(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.Equal(t, "100", sales[0].Royalty.Dec())
}

func TestReplicator_PartialReplay(t *testing.T) {
	source, genesis := replayFixture(t)
	r, _ := newTestReplicator(t, source, genesis, 1)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Blocks)
	require.Equal(t, 2, stats.Operations)
	require.False(t, stats.OwnersOK, "owners are only compared on a full replay")
}

func TestReplicator_RejectsUsedTarget(t *testing.T) {
	source, genesis := replayFixture(t)

	_, err := NewReplicator(context.Background(), ReplayConfig{
		SourcePath:  source,
		TargetPath:  source,
		CSVPath:     filepath.Join(t.TempDir(), "replay.csv"),
		Marketplace: marketplace.DefaultParams(platform),
		Genesis:     genesis,
	}, io.Discard, slog.New(slog.DiscardHandler))
	require.ErrorContains(t, err, "already holds blocks")
}

func TestPrintFinalStatistics(t *testing.T) {
	var out bytes.Buffer
	printFinalStatistics(&out, &ReplayStats{
		Blocks:     4,
		Operations: 10,
		BlockTimes: []float64{4, 1, 3, 2},
		OwnersOK:   true,
	})
	require.Contains(t, out.String(), "Total blocks replayed: 4")
	require.Contains(t, out.String(), "Max: 4.00ms")
	require.Contains(t, out.String(), "identical to source")
}

func TestPercentiles(t *testing.T) {
	times := make([]float64, 100)
	for i := range times {
		times[i] = float64(100 - i)
	}
	p := percentiles(times)
	require.Equal(t, 51.0, p.P50)
	require.Equal(t, 96.0, p.P95)
	require.Equal(t, 100.0, p.P99)
	require.Equal(t, 1.0, p.Min)
	require.Equal(t, 100.0, p.Max)

	require.Equal(t, timingSummary{}, percentiles(nil))
}
