package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/dialpool/internal"
	"github.com/DukeRupert/dialpool/internal/domain"
	"github.com/DukeRupert/dialpool/internal/handler"
	"github.com/DukeRupert/dialpool/internal/identity"
	"github.com/DukeRupert/dialpool/internal/live"
	"github.com/DukeRupert/dialpool/internal/metrics"
	"github.com/DukeRupert/dialpool/internal/middleware"
	"github.com/DukeRupert/dialpool/internal/service"
	"github.com/DukeRupert/dialpool/internal/storage"
	"github.com/DukeRupert/dialpool/internal/store"
	"github.com/DukeRupert/dialpool/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	st := store.NewPostgres(db)

	objects, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// ==========================================================================
	// Live push
	// ==========================================================================

	var (
		publisher service.Publisher = service.NopPublisher{}
		hub       *live.Hub
	)
	if cfg.LiveEnabled {
		hub = live.NewHub(cfg.AllowedOrigins, logger)
		hub.Start()
		defer hub.Stop()
		publisher = hub
	}

	// Initialize services
	clock := service.Clock{Now: time.Now, Location: cfg.Timezone}
	allocationService := service.NewAllocationService(st, publisher, clock, cfg.PoolPageSize, logger)
	accountService := service.NewAccountService(st, publisher, clock, logger)
	adminService := service.NewAdminService(st, publisher, clock, logger)
	ingestService := service.NewIngestService(st, objects, clock, logger)
	contactService := service.NewContactService(st, clock, logger)

	// ==========================================================================
	// Background tasks
	// ==========================================================================

	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Interval = cfg.PoolMetricsInterval
		workerCfg.TaskTimeout = min(workerCfg.TaskTimeout, cfg.PoolMetricsInterval)

		w, err := worker.New(workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(worker.NewPoolGaugeTask(st))
		w.Start(ctx)
		defer w.Stop()
	}

	// Initialize middleware
	verifier, err := identity.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("identity initialization failed: %w", err)
	}
	authMw := middleware.NewAuthMiddleware(verifier, accountService, logger)

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}
	defer closeLimiter()
	allocateLimit := middleware.NewRateLimitMiddleware(limiter, logger)

	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	securityMw := middleware.NewSecurityHeadersMiddleware(cfg.Env != "development")
	corsMw := middleware.NewCORSMiddleware(cfg.AllowedOrigins)
	metricsAuth := middleware.NewBasicAuthMiddleware("metrics", cfg.MetricsUsername, cfg.MetricsPassword, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check and metrics
	mux.HandleFunc("GET /health", handler.Health(st, logger))
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Create middleware stacks for protected routes
	requireUser := authMw.RequireUser
	requireAdmin := middleware.Stack(authMw.RequireUser, authMw.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin))
	requireSuperAdmin := middleware.Stack(authMw.RequireUser, authMw.RequireRole(domain.RoleSuperAdmin))

	handler.NewNumberHandler(allocationService, accountService, logger).RegisterRoutes(mux, requireUser, allocateLimit.Limit)
	handler.NewActivityHandler(accountService, logger).RegisterRoutes(mux, requireUser)
	handler.NewAdminHandler(adminService, ingestService, logger).RegisterRoutes(mux, requireSuperAdmin, requireAdmin)
	handler.NewContactHandler(contactService, logger).RegisterRoutes(mux, requireSuperAdmin, requireAdmin)
	if hub != nil {
		// Browsers cannot set headers on a WebSocket handshake
		handler.NewLiveHandler(hub, logger).RegisterRoutes(mux, authMw.RequireUserOrQueryToken)
	}

	// Unmatched routes
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	root := middleware.Stack(
		metrics.Middleware,
		loggingMw.Handler,
		securityMw.Handler,
		corsMw.Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "timezone", cfg.Timezone.String())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage returns the configured object store, or nil when imports are disabled.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderLocal:
		return storage.NewLocalStorage(storage.LocalConfig{BasePath: cfg.LocalStoragePath}, logger)
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		}, logger)
	default:
		logger.Warn("Object storage disabled; batch imports will be rejected")
		return nil, nil
	}
}

// newLimiter builds the allocation rate limiter. The returned func releases its resources.
func newLimiter(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (middleware.Limiter, func(), error) {
	if cfg.RateLimitBackend != "redis" {
		return middleware.NewRateLimiter(cfg.AllocateRateLimit, cfg.AllocateRateWindow, logger), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Info("Redis rate limiter ready", "addr", cfg.RedisAddr)

	l := middleware.NewRedisRateLimiter(client, "dialpool:ratelimit:allocate", cfg.AllocateRateLimit, cfg.AllocateRateWindow)
	return l, func() { _ = client.Close() }, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
