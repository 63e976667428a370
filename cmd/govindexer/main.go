package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"govscope/internal/chain"
	"govscope/internal/config"
	"govscope/internal/gov"
	"govscope/internal/indexer"
	"govscope/internal/notify"
	"govscope/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "govindexer",
		Short:        "Governance proposal indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP sync trigger",
		RunE:  runServe,
	}
	addEngineFlags(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")

	root.AddCommand(serveCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync invocation",
		RunE:  runSync,
	}
	addEngineFlags(syncCmd)

	root.AddCommand(syncCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("spp-address", "", "staged-proposal-processor contract address")
	cmd.Flags().String("voting-address", "", "token-voting contract address")
	cmd.Flags().String("multisig-address", "", "multisig contract address")
	cmd.Flags().String("notify-url", "", "notification collaborator URL")
	cmd.Flags().Uint64("chunk-size", 1000, "blocks per log query")
	cmd.Flags().Uint64("max-blocks", 50000, "max blocks per invocation")
	cmd.Flags().Duration("min-interval", 60*time.Second, "minimum interval between invocations")
	cmd.Flags().Int("max-consecutive-errors", 10, "consecutive RPC failures before abort")
	cmd.Flags().Duration("request-delay", 200*time.Millisecond, "delay between RPC requests")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "backoff between retries of a failed chunk")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// engine bundles the wired runner with the resources it owns.
type engine struct {
	runner *indexer.Runner
	chain  *chain.Client
	store  *postgres.Store
}

func (e *engine) close() {
	if e.chain != nil {
		e.chain.Close()
	}
	if e.store != nil {
		e.store.Close()
	}
}

func buildEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sppAddr, err := parseAddress(cfg.SPPAddress, "spp-address")
	if err != nil {
		return nil, err
	}
	votingAddr, err := parseAddress(cfg.VotingAddress, "voting-address")
	if err != nil {
		return nil, err
	}
	multisigAddr, err := parseAddress(cfg.MultisigAddress, "multisig-address")
	if err != nil {
		return nil, err
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		chainClient.Close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	reader := gov.NewReader(chainClient, sppAddr, votingAddr, multisigAddr)
	resolver := gov.NewResolver(reader, logger)
	dispatcher := notify.NewDispatcher(cfg.NotifyURL, store, logger)

	runner, err := indexer.NewRunner(indexer.RunConfig{
		SPPAddress:           sppAddr,
		MultisigAddress:      multisigAddr,
		ChunkSize:            cfg.ChunkSize,
		MaxBlocks:            cfg.MaxBlocks,
		MinInterval:          cfg.MinInterval,
		MaxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		RequestDelay:         cfg.RequestDelay,
		RetryBackoff:         cfg.RetryBackoff,
	}, chainClient, resolver, store, store, dispatcher, logger)
	if err != nil {
		chainClient.Close()
		store.Close()
		return nil, err
	}

	return &engine{runner: runner, chain: chainClient, store: store}, nil
}

func parseAddress(input, name string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid %s: %s", name, input)
	}
	return common.HexToAddress(input), nil
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
