package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/chain"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/store"
	"github.com/SIMPLYLIMA/clarity-secure-mint/internal/tracing"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "secure-mint",
	Short: "NFT registry and marketplace ledger",
	Long: `secure-mint runs an NFT registry with an integrated marketplace on a
single-node ledger. Operations are ordered into blocks and each one executes
atomically; every outcome is recorded as a receipt.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP server and block processor",
	RunE:  runServe,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate marketplace traffic against a running server",
	Long: `Creates random accounts, funds them from the faucet and submits random
mint, list, purchase and transfer operations. The server must run with --faucet.`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

var replayCmd = &cobra.Command{
	Use:   "replay <source_db> <target_db>",
	Short: "Re-execute the receipt log of a ledger into a fresh database",
	Example: `  secure-mint replay ledger.db replay.db
  secure-mint replay ledger.db replay.db --blocks 1000`,
	Args: cobra.ExactArgs(2),
	RunE: runReplay,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./secure-mint.yaml)")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().String("db-path", "", "database file path")
		cmd.Flags().String("testname", "", "test name for logging")
		cmd.Flags().Int("port", 0, "server port")
		cmd.Flags().String("log-dir", "", "directory for log files")
		cmd.Flags().String("genesis", "", "genesis allocations file (YAML)")
		cmd.Flags().Bool("faucet", false, "enable the development faucet")
		cmd.Flags().Duration("block-interval", 0, "time between blocks")
	}

	simulateCmd.Flags().Int("accounts", 20, "number of random accounts")
	simulateCmd.Flags().Int("count", 1000, "number of operations to submit")
	simulateCmd.Flags().Int("concurrency", 8, "concurrent requests")
	simulateCmd.Flags().String("funding", "1000000", "initial balance of each account")
	simulateCmd.Flags().Uint64("max-price", 10000, "maximum listing price")
	simulateCmd.Flags().String("server-url", "", "ledger server URL")

	replayCmd.Flags().Int("blocks", 0, "number of blocks to replay (0 replays all)")
	replayCmd.Flags().String("csv", defaultReplayLogFile, "CSV log of per-block timings")
	replayCmd.Flags().String("genesis", "", "genesis allocations applied to the target first")

	rootCmd.AddCommand(serveCmd, cliCmd, simulateCmd, replayCmd)
}

// initConfig reads the config file and environment. Flags of the command
// being run are bound in bindFlags.
func initConfig() {
	if err := initViper(viper.GetViper(), cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bindFlags lets flags that were set override config file and environment.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, map[string]string{
		"db_path":        "db-path",
		"testname":       "testname",
		"port":           "port",
		"log_dir":        "log-dir",
		"genesis_file":   "genesis",
		"faucet":         "faucet",
		"block_interval": "block-interval",
	})
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return Serve(ctx, cfg)
}

// Serve runs the ledger until ctx is cancelled.
func Serve(ctx context.Context, cfg Config) error {
	files, err := NewLogFiles(cfg.LogDir, cfg.TestName, os.Stdout)
	if err != nil {
		return err
	}
	logger := NewLogger(files, parseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	provider, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	}()

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	params, err := cfg.MarketplaceParams()
	if err != nil {
		return err
	}
	app := chain.NewApp(db, chain.Config{
		Marketplace: params,
		Logger:      logger,
		Tracer:      provider.Tracer(),
	})

	if cfg.GenesisFile != "" {
		genesis, err := chain.LoadGenesis(cfg.GenesisFile)
		if err != nil {
			return err
		}
		applied, err := app.InitGenesis(ctx, genesis)
		if err != nil {
			return err
		}
		logger.Info("genesis", "file", cfg.GenesisFile, "applied", applied, "accounts", len(genesis.Accounts))
	}

	latest, err := app.LatestBlock(ctx)
	if err != nil {
		return err
	}
	queue := NewOperationQueue(latest + 1)
	processor := NewBlockProcessor(app, queue, cfg.BlockInterval, logger, provider.Tracer())
	server := NewServer(queue, NewQueryService(app, cfg.CacheTTL, logger), cfg.Faucet, logger)

	logger.Info("ledger starting",
		"db", db.Path(),
		"testname", files.TestName(),
		"platform", params.PlatformAccount.Hex(),
		"platformFeePercent", params.PlatformFeePercent,
		"faucet", cfg.Faucet,
		"tracing", provider.Enabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return processor.Run(gctx)
	})
	g.Go(func() error {
		return ListenAndServe(gctx, cfg.Port, server.Router(), logger)
	})
	err = g.Wait()
	logger.Info("shutting down")
	return err
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	bindFlags(cmd, map[string]string{"server_url": "server-url"})

	accounts, _ := cmd.Flags().GetInt("accounts")
	count, _ := cmd.Flags().GetInt("count")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	maxPrice, _ := cmd.Flags().GetUint64("max-price")
	fundingStr, _ := cmd.Flags().GetString("funding")
	funding, err := uint256.FromDecimal(fundingStr)
	if err != nil {
		return fmt.Errorf("invalid funding %q: %w", fundingStr, err)
	}
	if count <= 0 {
		return errors.New("count must be a positive number")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = Simulate(ctx, NewClient(viper.GetString("server_url")), SimulateConfig{
		Accounts:    accounts,
		Operations:  count,
		Concurrency: concurrency,
		Funding:     funding,
		MaxPrice:    maxPrice,
	}, cmd.OutOrStdout())
	return err
}

func runReplay(cmd *cobra.Command, args []string) error {
	numBlocks, _ := cmd.Flags().GetInt("blocks")
	if numBlocks < 0 {
		return fmt.Errorf("number of blocks must not be negative, got %d", numBlocks)
	}
	csvPath, _ := cmd.Flags().GetString("csv")
	genesisPath, _ := cmd.Flags().GetString("genesis")
	if genesisPath == "" {
		genesisPath = viper.GetString("genesis_file")
	}

	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	params, err := cfg.MarketplaceParams()
	if err != nil {
		return err
	}
	var genesis *chain.Genesis
	if genesisPath != "" {
		if genesis, err = chain.LoadGenesis(genesisPath); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	files, err := NewLogFiles(cfg.LogDir, cfg.TestName, out)
	if err != nil {
		return err
	}
	logger := NewLogger(files, slog.LevelWarn)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := NewReplicator(ctx, ReplayConfig{
		SourcePath:  args[0],
		TargetPath:  args[1],
		CSVPath:     csvPath,
		NumBlocks:   numBlocks,
		Marketplace: params,
		Genesis:     genesis,
	}, out, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	stats, err := r.Run(ctx)
	if stats != nil {
		printFinalStatistics(out, stats)
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
