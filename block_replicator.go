package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/marketplace"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
)

const defaultReplayLogFile = "replication_log.csv"

// ReplayConfig configures a replay of one ledger database into another.
type ReplayConfig struct {
	SourcePath  string
	TargetPath  string
	CSVPath     string
	NumBlocks   int // 0 replays every block
	Marketplace marketplace.Params
	Genesis     *chain.Genesis
}

// ReplayStats summarizes a replay.
type ReplayStats struct {
	Blocks     int
	Operations int
	Failures   int
	Mismatches int
	BlockTimes []float64 // ms per block
	Duration   time.Duration
	OwnersOK   bool
}

// Replicator re-executes the receipt log of a source ledger into a fresh
// target ledger block by block, in the original order.
type Replicator struct {
	cfg    ReplayConfig
	source *chain.App
	target *chain.App
	out    io.Writer
	logger *slog.Logger
	csv    *csv.Writer
	csvF   *os.File
}

// NewReplicator opens both databases. The target must not contain receipts.
func NewReplicator(ctx context.Context, cfg ReplayConfig, out io.Writer, logger *slog.Logger) (*Replicator, error) {
	if cfg.CSVPath == "" {
		cfg.CSVPath = defaultReplayLogFile
	}

	fmt.Fprintln(out, "Opening source database...")
	sourceDB, err := store.Open(cfg.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	targetDB, err := store.Open(cfg.TargetPath)
	if err != nil {
		sourceDB.Close()
		return nil, fmt.Errorf("failed to open target database: %w", err)
	}

	r := &Replicator{
		cfg:    cfg,
		source: chain.NewApp(sourceDB, chain.Config{Marketplace: cfg.Marketplace, Logger: logger}),
		target: chain.NewApp(targetDB, chain.Config{Marketplace: cfg.Marketplace, Logger: logger}),
		out:    out,
		logger: logger.With(componentKey, componentBlock),
	}

	latest, err := r.target.LatestBlock(ctx)
	if err != nil {
		r.Close()
		return nil, err
	}
	if latest != 0 {
		r.Close()
		return nil, fmt.Errorf("target database %s already holds blocks up to %d", cfg.TargetPath, latest)
	}
	if cfg.Genesis != nil {
		if _, err := r.target.InitGenesis(ctx, cfg.Genesis); err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to apply genesis to target: %w", err)
		}
	}

	fmt.Fprintf(out, "Initializing CSV log file: %s\n", cfg.CSVPath)
	if err := r.initializeCsvLog(); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to initialize CSV log: %w", err)
	}
	return r, nil
}

// Close releases both databases and flushes the CSV log.
func (r *Replicator) Close() error {
	if r.csv != nil {
		r.csv.Flush()
		r.csvF.Close()
	}
	errSource := r.source.DB().Close()
	errTarget := r.target.DB().Close()
	if errSource != nil {
		return errSource
	}
	return errTarget
}

// initializeCsvLog initializes the CSV log file
func (r *Replicator) initializeCsvLog() error {
	f, err := os.Create(r.cfg.CSVPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV log file: %w", err)
	}
	r.csvF = f
	r.csv = csv.NewWriter(f)
	header := []string{"block", "num_operations", "num_failures", "read_time_ms", "write_time_ms", "output_db_size_bytes"}
	return r.csv.Write(header)
}

func (r *Replicator) writeCsvRow(block uint64, ops, failures int, readTimeMs, writeTimeMs float64) error {
	row := []string{
		fmt.Sprintf("%d", block),
		fmt.Sprintf("%d", ops),
		fmt.Sprintf("%d", failures),
		fmt.Sprintf("%.2f", readTimeMs),
		fmt.Sprintf("%.2f", writeTimeMs),
		fmt.Sprintf("%d", r.target.DB().Size()),
	}
	if err := r.csv.Write(row); err != nil {
		return err
	}
	r.csv.Flush()
	return r.csv.Error()
}

// Run replays the configured number of blocks and, for a full replay,
// checks that both ledgers end with the same owners.
func (r *Replicator) Run(ctx context.Context) (*ReplayStats, error) {
	blocks, err := r.source.Blocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source blocks: %w", err)
	}
	full := r.cfg.NumBlocks <= 0 || r.cfg.NumBlocks >= len(blocks)
	if !full {
		blocks = blocks[:r.cfg.NumBlocks]
	}
	fmt.Fprintf(r.out, "Starting replay of %d blocks...\n", len(blocks))

	stats := &ReplayStats{}
	startTime := time.Now()

	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		readStart := time.Now()
		receipts, err := r.source.ReceiptsInBlock(ctx, block)
		if err != nil {
			return stats, fmt.Errorf("failed to read block %d: %w", block, err)
		}
		readTime := time.Since(readStart)

		writeStart := time.Now()
		failures := 0
		for _, rc := range receipts {
			op, err := chain.DecodeOperation(rc.Operation, rc.Params)
			if err != nil {
				return stats, fmt.Errorf("receipt %s: %w", rc.ID, err)
			}
			replayed, err := r.target.Deliver(ctx, chain.Envelope{
				ID:      rc.ID,
				Caller:  rc.Caller,
				Block:   rc.Block,
				TxIndex: rc.TxIndex,
				Time:    rc.CreatedAt,
			}, op)
			if err != nil {
				return stats, fmt.Errorf("failed to replay receipt %s: %w", rc.ID, err)
			}
			if !replayed.OK() {
				failures++
			}
			if replayed.Status != rc.Status {
				stats.Mismatches++
				r.logger.Warn("replayed status differs", "receipt_id", rc.ID, "block", block,
					"source", rc.Status, "replay", replayed.Status)
			}
		}
		writeTime := time.Since(writeStart)
		writeMs := float64(writeTime.Nanoseconds()) / 1e6

		stats.Blocks++
		stats.Operations += len(receipts)
		stats.Failures += failures
		stats.BlockTimes = append(stats.BlockTimes, writeMs)

		if err := r.writeCsvRow(block, len(receipts), failures, float64(readTime.Nanoseconds())/1e6, writeMs); err != nil {
			fmt.Fprintf(r.out, "Warning: Failed to write CSV row: %v\n", err)
		}
		fmt.Fprintf(r.out, "[BLOCK] Replayed block %d: %d operations, %d failures - %.2fms\n",
			block, len(receipts), failures, writeMs)
		logSlow(r.logger, "BLOCK", fmt.Sprintf("replay of block %d", block), writeTime, slowBlockThreshold)
	}
	stats.Duration = time.Since(startTime)

	if full {
		want, err := r.source.Owners(ctx)
		if err != nil {
			return stats, err
		}
		got, err := r.target.Owners(ctx)
		if err != nil {
			return stats, err
		}
		stats.OwnersOK = slices.Equal(want, got)
		if !stats.OwnersOK {
			return stats, fmt.Errorf("replayed owners differ from source: %d vs %d tokens", len(got), len(want))
		}
	}
	return stats, nil
}

// printFinalStatistics prints final replication statistics
func printFinalStatistics(out io.Writer, stats *ReplayStats) {
	if stats.Blocks == 0 {
		fmt.Fprintln(out, "No blocks replayed.")
		return
	}
	seconds := stats.Duration.Seconds()
	fmt.Fprintf(out, "\nTotal time: %.2fs\n", seconds)
	if seconds > 0 {
		fmt.Fprintf(out, "Blocks per second: %.2f\n", float64(stats.Blocks)/seconds)
	}

	fmt.Fprintln(out, "\n=== Replay Statistics ===")
	fmt.Fprintf(out, "Total blocks replayed: %d\n", stats.Blocks)
	fmt.Fprintf(out, "Total operations: %d\n", stats.Operations)
	fmt.Fprintf(out, "Rejected operations: %d\n", stats.Failures)
	fmt.Fprintf(out, "Status mismatches: %d\n", stats.Mismatches)
	if stats.OwnersOK {
		fmt.Fprintln(out, "Owner table: identical to source")
	}

	p := percentiles(stats.BlockTimes)
	fmt.Fprintln(out, "\n=== Write Performance Percentiles ===")
	fmt.Fprintf(out, "P50 (median): %.2fms\n", p.P50)
	fmt.Fprintf(out, "P95: %.2fms\n", p.P95)
	fmt.Fprintf(out, "P99: %.2fms\n", p.P99)
	fmt.Fprintf(out, "Min: %.2fms\n", p.Min)
	fmt.Fprintf(out, "Max: %.2fms\n", p.Max)
}

type timingSummary struct {
	P50, P95, P99, Min, Max float64
}

// percentiles uses nearest-rank on a sorted copy of times.
func percentiles(times []float64) timingSummary {
	if len(times) == 0 {
		return timingSummary{}
	}
	sorted := make([]float64, len(times))
	copy(sorted, times)
	sort.Float64s(sorted)
	return timingSummary{
		P50: sorted[len(sorted)*50/100],
		P95: sorted[len(sorted)*95/100],
		P99: sorted[len(sorted)*99/100],
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
	}
}
