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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"deedescrow/config"
	"deedescrow/core"
	"deedescrow/crypto"
	"deedescrow/gateway/middleware"
	"deedescrow/observability/logging"
	telemetry "deedescrow/observability/otel"
	"deedescrow/rpc"
	"deedescrow/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	if err := run(*configFile); err != nil {
		slog.Error("deedescrowd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.SetupWithOptions("deedescrowd", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	defer logCloser.Close()
	logger.Info("configuration loaded",
		slog.String("config", configFile),
		slog.String("storage", cfg.Storage.Backend),
		logging.MaskField("jwt_secret", cfg.Auth.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "deedescrowd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	db, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	roles, err := cfg.EscrowRoles()
	if err != nil {
		return err
	}
	node, err := core.NewNode(db, roles, logger)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	var audit rpc.AuditSink
	if dsn := strings.TrimSpace(cfg.Audit.DSN); dsn != "" {
		store, err := rpc.OpenAuditStore(dsn)
		if err != nil {
			return err
		}
		defer store.Close()
		audit = store
	}

	server, err := rpc.NewServer(node, rpc.ServerConfig{
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.Auth.JWTSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  time.Duration(cfg.Auth.ClockSkewSeconds) * time.Second,
		},
		AllowAnonymousQueries: cfg.Auth.AllowAnonymousRPC,
		RateLimit: middleware.RateLimit{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		},
		Audit:  audit,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	logger.Info("escrow node ready",
		slog.String("escrow", crypto.FormatIdentity(node.EscrowAddress())),
		slog.String("listen", cfg.ListenAddress))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("shutdown rpc server: %w", err)
	}
	return <-serveErr
}

func openStorage(cfg *config.Config) (storage.Database, error) {
	path := cfg.Storage.Path
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemDB(), nil
	case "leveldb":
		db, err := storage.NewLevelDB(path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb %s: %w", path, err)
		}
		return db, nil
	case "bolt":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("prepare bolt directory: %w", err)
		}
		db, err := storage.NewBoltDB(path)
		if err != nil {
			return nil, fmt.Errorf("open bolt %s: %w", path, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
