package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	grpclib "google.golang.org/grpc"

	"github.com/simaogato/securesend-backend/internal/adapter/breaker"
	"github.com/simaogato/securesend-backend/internal/adapter/executor"
	grpcadapter "github.com/simaogato/securesend-backend/internal/adapter/grpc"
	"github.com/simaogato/securesend-backend/internal/adapter/network"
	"github.com/simaogato/securesend-backend/internal/adapter/repository/memory"
	"github.com/simaogato/securesend-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/securesend-backend/internal/adapter/reputation"
	"github.com/simaogato/securesend-backend/internal/config"
	"github.com/simaogato/securesend-backend/internal/domain"
	"github.com/simaogato/securesend-backend/internal/usecase/checks"
	"github.com/simaogato/securesend-backend/internal/usecase/dashboard"
	"github.com/simaogato/securesend-backend/internal/usecase/pipeline"
	"github.com/simaogato/securesend-backend/internal/usecase/receipt"
	"github.com/simaogato/securesend-backend/internal/usecase/seeder"
	"github.com/simaogato/securesend-backend/internal/usecase/session"
)

const (
	dbConnectAttempts = 5
	dbConnectDelay    = 2 * time.Second
)

func main() {
	// 1. Load configuration; the file is optional
	cfg, err := config.Load(os.Getenv("SECURESEND_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// 2. Validator Registry
	registry, err := cfg.BuildRegistry()
	if err != nil {
		return fmt.Errorf("invalid asset configuration: %w", err)
	}
	logger.Info("assets registered", zap.Strings("symbols", registry.Symbols()))

	breakerCfg := breaker.DefaultConfig()
	breakerCfg.ConsecutiveFailures = cfg.Breaker.ConsecutiveFailures
	breakerCfg.Timeout = cfg.Breaker.Timeout

	// 3. Check providers
	endpoints := make(map[string]network.Endpoint, len(cfg.Networks))
	for symbol, n := range cfg.Networks {
		endpoints[symbol] = network.Endpoint{URL: n.URL, ChainID: n.ChainID}
	}
	networkChecker := breaker.NewNetworkChecker(
		network.NewEVMProbe(endpoints, network.Static{Reachable: true}, logger),
		breakerCfg, logger,
	)

	var blocklist reputation.Blocklist
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = client.Close() }()

		redisBlocklist, err := reputation.NewRedisBlocklist(client, cfg.Redis.FlaggedKey)
		if err != nil {
			return err
		}
		blocklist = redisBlocklist
		logger.Info("reputation checks use redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		blocklist = reputation.NewMemoryBlocklist()
		logger.Info("reputation checks use the in-memory blocklist")
	}

	// Seed flagged addresses
	blocklistSeeder := seeder.NewBlocklistSeeder(blocklist, registry, logger)
	if err := blocklistSeeder.Seed(ctx, seeder.Entries(cfg.Flagged, cfg.FlaggedAssets)); err != nil {
		return fmt.Errorf("failed to seed flagged addresses: %w", err)
	}

	reputationChecker := breaker.NewReputationChecker(blocklist, breakerCfg, logger)

	runner := checks.NewRunner(networkChecker, reputationChecker, cfg.Timeouts.Network, cfg.Timeouts.Reputation, logger)

	// 4. Execution Adapter
	exec := executor.NewSimulated(cfg.Executor.Latency, cfg.Executor.FailMessage)

	// 5. Receipt store: Postgres when configured, memory otherwise
	var receiptRepo domain.ReceiptRepository
	if connStr := cfg.DB.ConnString(); connStr != "" {
		db, err := postgres.Connect(ctx, connStr, dbConnectAttempts, dbConnectDelay)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		receiptRepo = postgres.NewReceiptRepository(db)
		logger.Info("receipts are stored in postgres")
	} else {
		receiptRepo = memory.NewReceiptRepository()
		logger.Info("receipts are kept in memory")
	}
	recorder := receipt.NewRecorderService(receiptRepo, logger)

	// 6. One pipeline per session
	sessions := session.NewManager(func() *pipeline.Pipeline {
		p := pipeline.NewPipeline(registry, runner, exec, cfg.Timeouts.Execute, logger)
		p.OnComplete(recorder.Record)
		return p
	}, logger)

	expiryCtx, stopExpiry := context.WithCancel(ctx)
	defer stopExpiry()
	go sessions.RunExpiry(expiryCtx, cfg.Sessions.SweepInterval, cfg.Sessions.IdleTimeout)

	// 7. Start gRPC Server
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.LoggingInterceptor(logger),
			grpcadapter.AuthInterceptor(cfg.APIToken),
		),
	)
	server := grpcadapter.NewServer(sessions, registry, recorder, dashboard.NewDashboardService(receiptRepo))
	grpcadapter.RegisterTransferPipelineServer(grpcServer, server)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
		serveErr <- grpcServer.Serve(lis)
	}()

	// Graceful shutdown
	return waitForShutdown(grpcServer, serveErr, logger)
}

// waitForShutdown waits for SIGTERM or SIGINT and gracefully shuts down the server
func waitForShutdown(grpcServer *grpclib.Server, serveErr <-chan error, logger *zap.Logger) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to serve gRPC server: %w", err)
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", zap.String("signal", sig.String()))
	}

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
	return nil
}
