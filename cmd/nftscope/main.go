package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"nftScope/internal/adapter"
	"nftScope/internal/chain"
	"nftScope/internal/config"
	"nftScope/internal/nft"
	"nftScope/internal/queue"
	"nftScope/internal/store/postgres"
	"nftScope/internal/syncer"
)

func main() {
	root := &cobra.Command{
		Use:          "nftscope",
		Short:        "NFT event sync pipeline",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Tail the chain head and ingest NFT events live",
		RunE:  runSync,
	}
	addCommonFlags(syncCmd)
	syncCmd.Flags().Uint64("from", 0, "start block (0 means current head)")
	root.AddCommand(syncCmd)

	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay a historical block range (maker fan-out suppressed)",
		RunE:  runBackfill,
	}
	addCommonFlags(backfillCmd)
	backfillCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	backfillCmd.Flags().Uint64("to", 0, "end block (inclusive)")
	root.AddCommand(backfillCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().StringSlice("address", nil, "NFT contract addresses (comma-separated)")
	cmd.Flags().Uint64("batch-size", 200, "blocks per batch")
	cmd.Flags().Duration("poll-interval", 0, "head poll interval")
	cmd.Flags().Int("reorg-depth", 64, "recent-hash window depth for reorg detection")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 0, "initial retry backoff")
	cmd.Flags().Bool("accept-orders", true, "enable live maker-update fan-out")
	cmd.Flags().String("checkpoint-dir", "./data", "checkpoint directory")
	cmd.Flags().Bool("checkpoints", true, "enable checkpointing")
	cmd.Flags().String("metrics-addr", ":9090", "prometheus metrics listen address")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	return run(cmd, func(ctx context.Context, cfg config.Config, runner *syncer.Runner) error {
		return runner.Live(ctx, cfg.FromBlock)
	})
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	return run(cmd, func(ctx context.Context, cfg config.Config, runner *syncer.Runner) error {
		if cfg.ToBlock == 0 {
			return fmt.Errorf("to block is required for backfill")
		}
		return runner.Backfill(ctx, cfg.FromBlock, cfg.ToBlock)
	})
}

func run(cmd *cobra.Command, fn func(context.Context, config.Config, *syncer.Runner) error) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	addresses, err := parseAddresses(cfg.Addresses)
	if err != nil {
		return err
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	eventStore := postgres.New(pool)
	if err := eventStore.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure event schema: %w", err)
	}

	outbox := queue.NewOutbox(pool)
	if err := outbox.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure outbox schema: %w", err)
	}

	registry := nft.NewRegistry()
	erc721, err := nft.NewErc721()
	if err != nil {
		return err
	}
	erc721.Register(registry)

	erc721Adapter, err := adapter.New(adapter.Config{
		Name:         "erc721",
		Addresses:    addresses,
		Registry:     registry,
		Store:        eventStore,
		Queue:        outbox,
		Logger:       logger,
		AcceptOrders: cfg.AcceptOrders,
	})
	if err != nil {
		return err
	}

	runner := syncer.NewRunner(syncer.RunConfig{
		BatchSize:         cfg.BatchSize,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		PollInterval:      cfg.PollInterval,
		ReorgDepth:        cfg.ReorgDepth,
		CheckpointDir:     cfg.CheckpointDir,
		CheckpointEnabled: cfg.Checkpoints,
	}, chainClient, []adapter.Adapter{erc721Adapter}, logger)

	logger.Info("nftscope start",
		zap.String("rpc", cfg.RPCURL),
		zap.Int("addresses", len(addresses)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("accept_orders", cfg.AcceptOrders),
		zap.String("metrics_addr", cfg.MetricsAddr),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serveMetrics(gctx, cfg.MetricsAddr, logger)
	})
	g.Go(func() error {
		defer stop()
		return fn(gctx, cfg, runner)
	})
	return g.Wait()
}

func serveMetrics(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Debug("metrics server listening", zap.String("addr", addr))
		err := server.ListenAndServe()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.Background())
	})
	return g.Wait()
}

func parseAddresses(inputs []string) ([]common.Address, error) {
	addresses := make([]common.Address, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("invalid address: %s", input)
		}
		addresses = append(addresses, common.HexToAddress(input))
	}
	return addresses, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
