package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"tipchain/config"
	"tipchain/core"
	"tipchain/indexer"
	"tipchain/native/common"
	"tipchain/native/tipping"
	"tipchain/observability/logging"
	telemetry "tipchain/observability/otel"
	"tipchain/rpc"
	"tipchain/storage"
)

const shutdownTimeout = 10 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	faucetSubject := flag.String("issue-faucet-token", "", "Mint a faucet token for the given subject and exit")
	faucetTTL := flag.Duration("faucet-token-ttl", 24*time.Hour, "Lifetime of tokens minted with -issue-faucet-token")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *faucetSubject != "" {
		token, err := rpc.IssueFaucetToken(cfg.Faucet.JWTSecret, cfg.Faucet.Issuer, *faucetSubject, *faucetTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to issue faucet token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger := logging.Setup("tipd", cfg.Environment, logging.Options{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("tipd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "tipd",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:         cfg.Telemetry.Traces,
		Metrics:        cfg.Telemetry.Metrics,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := storage.Open(cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}

	opts := []core.Option{
		core.WithParams(cfg.Params()),
		core.WithLogger(logger),
	}
	if cfg.Tipping.Paused {
		opts = append(opts, core.WithPauses(common.NewPauseSet(tipping.ModuleName)))
		logger.Warn("tipping module paused by configuration")
	}

	// A nil *Indexer must not reach the interface-typed parameters below.
	var receipts rpc.ReceiptLister
	ix, err := indexer.Open(cfg.IndexerDSN)
	switch {
	case errors.Is(err, indexer.ErrDisabled):
		logger.Info("receipt indexer disabled")
	case err != nil:
		db.Close()
		return err
	default:
		defer func() {
			if err := ix.Close(); err != nil {
				logger.Warn("close indexer", slog.Any("error", err))
			}
		}()
		receipts = ix
		opts = append(opts, core.WithReceiptSink(ix))
	}

	node := core.NewNode(db, opts...)
	defer node.Close()

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCAddress, err)
	}

	server := rpc.NewServer(node, receipts, rpc.ServerConfigFrom(cfg), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(listener)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down json-rpc server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	logger.Info("tipd started",
		slog.String("rpc", listener.Addr().String()),
		slog.String("backend", cfg.Backend),
		slog.Uint64("min_balance", cfg.Tipping.MinBalance),
		slog.Uint64("record_deposit", cfg.Tipping.RecordDeposit))

	return g.Wait()
}
