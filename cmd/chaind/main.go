// chaind serves the proof-gated identity ledger over HTTP and gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/captals/primechain/internal/api/handler"
	"github.com/captals/primechain/internal/auth"
	"github.com/captals/primechain/internal/chain"
	"github.com/captals/primechain/internal/factorproof"
	"github.com/captals/primechain/internal/health"
	"github.com/captals/primechain/internal/notify"
	"github.com/captals/primechain/internal/rpc"
	"github.com/captals/primechain/pkg/hashing"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("chaind exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, found, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if !found {
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Admission ────────────────────────────────────────────────────────────
	admitter, err := buildAdmitter(cfg, logger)
	if err != nil {
		return err
	}

	// ── Notifications ────────────────────────────────────────────────────────
	dispatcher := notify.NewDispatcher(logger,
		notify.WithBackoff(cfg.DeliveryInitial, cfg.DeliveryMax),
		notify.WithMaxAttempts(cfg.MaxAttempts),
		notify.WithMetricsRecorder(handler.RecordDelivery),
	)
	for _, w := range cfg.Webhooks {
		dispatcher.AddWebhook(w.Name, w.URL, w.Secret)
		logger.Info("webhook subscriber registered", zap.String("name", w.Name))
	}

	// ── Ledger ───────────────────────────────────────────────────────────────
	ledgerOpts := []chain.Option{
		chain.WithAdmitter(admitter),
		chain.WithNotifier(chain.Notifiers{handler.MetricsNotifier(), dispatcher}),
		chain.WithLogger(logger),
	}
	ledger, closeLedger, err := openLedger(ctx, cfg, logger, ledgerOpts)
	if err != nil {
		return err
	}
	defer closeLedger()

	n, head, err := checkLedger(ctx, ledger)
	if err != nil {
		return err
	}
	handler.SetChainHeight(n)
	logger.Info("ledger verified",
		zap.String("storage", cfg.Storage),
		zap.Uint64("blocks", n),
		zap.Stringer("head", head),
	)

	// ── Submitter tokens ─────────────────────────────────────────────────────
	var tokens *auth.TokenIssuer
	if cfg.TokenSecret != "" {
		tokens = auth.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.TokenIssuer, 0)
		logger.Info("submitter tokens required for append")
	} else {
		logger.Warn("auth.token_secret is empty; appends are unauthenticated")
	}

	// ── Integrity checks ─────────────────────────────────────────────────────
	checker := health.New(ledger, health.Config{
		CheckInterval: cfg.IntegrityInterval,
		CheckTimeout:  cfg.IntegrityTimeout,
		FailThreshold: cfg.IntegrityThreshold,
	}, logger)
	checker.SetMetricsRecord(handler.RecordIntegrityCheck)

	// ── HTTP ─────────────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(ctx, handler.RouterConfig{
		Ledger:      ledger,
		Tokens:      tokens,
		Dispatcher:  dispatcher,
		Health:      checker,
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimitRPS,
		SubmitRate:  cfg.SubmitRate,
		MaxRecords:  cfg.MaxRecords,
		MaxBodySize: cfg.MaxBodySize,
		Logger:      logger,
	})
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── gRPC ─────────────────────────────────────────────────────────────────
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", cfg.GRPCPort, err)
	}
	grpcSrv, healthSvc := rpc.NewServer(rpc.ServerConfig{
		Ledger: ledger,
		Tokens: tokens,
		Logger: logger,
	})

	checker.SetStatusHook(func(healthy bool) {
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if !healthy {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		healthSvc.SetServingStatus(rpc.ServiceName, st)
	})
	go checker.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("chaind HTTP listening", zap.Int("port", cfg.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("chaind gRPC listening", zap.Int("port", cfg.GRPCPort))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			logger.Fatal("gRPC serve error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down chaind...")
	healthSvc.SetServingStatus(rpc.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	cancel()

	if err := dispatcher.Shutdown(shutCtx); err != nil {
		logger.Warn("undelivered events dropped at shutdown", zap.Error(err))
	}

	logger.Info("chaind stopped")
	return nil
}

// buildAdmitter returns the certificate check selected by admission.mode.
func buildAdmitter(cfg *config, logger *zap.Logger) (chain.Admitter, error) {
	switch cfg.Admission {
	case "nonempty":
		logger.Warn("admission.mode=nonempty accepts any non-empty certificate; do not use in production")
		return chain.NonEmptyAdmitter, nil
	case "groth16":
		vk, err := factorproof.LoadVerifyingKey(cfg.VerifyingKey)
		if err != nil {
			return nil, fmt.Errorf("load verifying key: %w", err)
		}
		logger.Info("groth16 admission enabled", zap.String("verifying_key", cfg.VerifyingKey))
		return factorproof.All(
			factorproof.ArithmeticAdmitter{Rounds: cfg.PrimeRounds},
			factorproof.NewGroth16Admitter(vk, logger),
		), nil
	default:
		return factorproof.ArithmeticAdmitter{Rounds: cfg.PrimeRounds}, nil
	}
}

// openLedger opens the configured storage backend. The returned func
// releases it.
func openLedger(ctx context.Context, cfg *config, logger *zap.Logger, opts []chain.Option) (chain.Ledger, func(), error) {
	switch cfg.Storage {
	case "postgres":
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		return withBlockCache(ctx, cfg, chain.NewPostgresLedger(db, logger, opts...)), db.Close, nil

	case "sqlite":
		l, err := chain.OpenSQLite(cfg.SQLitePath, logger, opts...)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite ledger", zap.String("path", cfg.SQLitePath))
		return withBlockCache(ctx, cfg, l), func() {
			if err := l.Close(); err != nil {
				logger.Error("close sqlite ledger", zap.Error(err))
			}
		}, nil

	default:
		logger.Warn("storage.driver=memory: blocks are lost on restart")
		return chain.New(opts...), func() {}, nil
	}
}

// withBlockCache fronts a SQL-backed ledger with an in-memory block cache.
func withBlockCache(ctx context.Context, cfg *config, l chain.Ledger) chain.Ledger {
	if cfg.BlockCache <= 0 {
		return l
	}
	cached := chain.NewCachedLedger(l, cfg.BlockCache)
	cached.StartEviction(ctx, cfg.BlockCache)
	return cached
}

// checkLedger verifies the chain at startup and returns its length and head.
func checkLedger(ctx context.Context, l chain.Ledger) (uint64, hashing.Hash, error) {
	if err := l.Verify(ctx); err != nil {
		return 0, hashing.Zero, fmt.Errorf("ledger integrity check: %w", err)
	}
	n, err := l.Len(ctx)
	if err != nil {
		return 0, hashing.Zero, fmt.Errorf("read ledger length: %w", err)
	}
	head, err := l.HeadHash(ctx)
	if err != nil {
		return 0, hashing.Zero, fmt.Errorf("read ledger head: %w", err)
	}
	return n, head, nil
}
