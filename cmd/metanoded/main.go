package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"metanode/config"
	"metanode/core"
	"metanode/core/clock"
	"metanode/core/genesis"
	"metanode/crypto"
	"metanode/observability"
	"metanode/observability/logging"
	"metanode/observability/metrics"
	telemetry "metanode/observability/otel"
	"metanode/rpc"
	"metanode/storage"
	"metanode/storage/history"
)

const (
	genesisPathEnv = "METANODE_GENESIS"
	shutdownGrace  = 10 * time.Second
)

// version is overridden at link time with -X main.version.
var version = "dev"

type envLookupFunc func(string) (string, bool)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis YAML file (overrides METANODE_GENESIS and config GenesisFile)")
	flag.Parse()

	if err := run(*configFile, *genesisFlag); err != nil {
		slog.Error("metanoded exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup("metanoded", cfg.Environment, &logging.FileConfig{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "metanoded",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if cfg.Backend != config.BackendMemory {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return fmt.Errorf("prepare data directory: %w", err)
		}
	}
	db, err := storage.Open(cfg.Backend, cfg.StoragePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	producer, err := clock.NewProducer(db, cfg.BlockDuration())
	if err != nil {
		return fmt.Errorf("start block clock: %w", err)
	}
	producer.OnBlock(metrics.Stake().SetHeight)
	metrics.Stake().SetHeight(producer.CurrentBlock())

	node, err := core.NewNode(db, producer)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	node.SetLogger(logger)

	admins, err := parseAdmins(cfg.Admins)
	if err != nil {
		return err
	}
	if err := node.EnsureAdmins(admins); err != nil {
		return fmt.Errorf("grant configured admins: %w", err)
	}

	if !node.Initialized() {
		path, err := resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv)
		if err != nil {
			return err
		}
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return fmt.Errorf("load genesis spec: %w", err)
		}
		if err := node.ApplyGenesis(spec); err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis applied", slog.String("path", path))
	}

	var store *history.Store
	if cfg.History.Driver != config.HistoryNone {
		store, err = history.Open(cfg.History.Driver, cfg.HistoryDSN())
		if err != nil {
			return fmt.Errorf("open history index: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("history close failed", slog.Any("error", err))
			}
		}()
		node.Subscribe(store)
		logger.Info("history index enabled",
			slog.String("driver", cfg.History.Driver),
			logging.MaskField("dsn", cfg.HistoryDSN()))
	}
	node.Subscribe(observability.Events())

	secret := cfg.JWTSecret()
	if secret == "" {
		logger.Warn("JWT secret not set; authenticated RPC methods are disabled", slog.String("env", cfg.JWTSecretEnv))
	}
	server, err := rpc.NewServer(node, store, rpc.ServerConfig{
		JWTSecret:          []byte(secret),
		RateLimitPerMinute: float64(cfg.RateLimitPerMinute),
		RateLimitBurst:     cfg.RateLimitBurst,
		Logger:             logger,
	})
	if err != nil {
		return fmt.Errorf("create rpc server: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc listening", slog.String("addr", cfg.RPCAddress))
		if err := server.Start(cfg.RPCAddress); err != nil {
			errCh <- fmt.Errorf("rpc server: %w", err)
		}
	}()
	go func() {
		if err := producer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("block clock: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown failed", slog.Any("error", err))
	}
	return runErr
}

func parseAdmins(values []string) ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		addr, err := genesis.ParseBech32Account(trimmed)
		if err != nil {
			return nil, fmt.Errorf("config admin %q: %w", trimmed, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

func resolveGenesisPath(cliPath, cfgPath string, lookup envLookupFunc) (string, error) {
	if trimmed := strings.TrimSpace(cliPath); trimmed != "" {
		return trimmed, nil
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed, nil
			}
		}
	}
	if trimmed := strings.TrimSpace(cfgPath); trimmed != "" {
		return trimmed, nil
	}
	return "", fmt.Errorf("node not initialised and no genesis file provided; supply one via --genesis, %s, or config GenesisFile", genesisPathEnv)
}
