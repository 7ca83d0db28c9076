package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/gaurosa/storefront/internal/domain/auth"
	"github.com/gaurosa/storefront/internal/domain/catalog"
	"github.com/gaurosa/storefront/internal/domain/checkout"
	"github.com/gaurosa/storefront/internal/domain/promosync"
	"github.com/gaurosa/storefront/internal/domain/promotion"
	"github.com/gaurosa/storefront/internal/handler"
	"github.com/gaurosa/storefront/internal/storage/postgres"
	"github.com/gaurosa/storefront/internal/storage/rediscache"
	"github.com/gaurosa/storefront/pkg/health"
	"github.com/gaurosa/storefront/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	shipping, err := cfg.Shipping.Policy()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck("postgres", pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	promotionRepo := postgres.NewPromotionRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Optional Redis cache in front of the promotion table. Pricing keeps
	// working without it, so a dead Redis only degrades readiness.
	var (
		activePromotions promotion.Repository = promotionRepo
		invalidator      promosync.Invalidator
	)
	if cfg.RedisURL != "" {
		rdb, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			lg.Warn("Redis unavailable, promotion cache disabled", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()

			cache := rediscache.NewPromotions(promotionRepo, rdb, cfg.Promotions.CacheTTL)
			activePromotions, invalidator = cache, cache
			healthSvc.AddOptionalCheck("redis", 2*time.Second, func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			})
			lg.Info("Promotion cache enabled", zap.Duration("ttl", cfg.Promotions.CacheTTL))
		}
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Domain services.
	promotionSvc := promotion.NewService(activePromotions)
	pricer := catalog.NewPricer(productRepo, promotionSvc)
	checkoutSvc := checkout.NewService(productRepo, promotionSvc, orderRepo, shipping)
	syncer := promosync.NewSyncer(promotionRepo, invalidator, loc)
	authenticator := auth.NewAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper))

	// HTTP handlers.
	h, err := handler.New(handler.Deps{
		Promotions: promotionSvc,
		Catalog:    pricer,
		Checkout:   checkoutSvc,
		Syncer:     syncer,
		Keys:       authenticator,
	}, m.MeterProvider())
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	// Router: health endpoints + API routes on one server.
	router := h.Router()
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", handler.APIKeyHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   isHealthCheck,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("storefront-api", routeFinder, m.MeterProvider(), m.TracerProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

func isHealthCheck(r *http.Request) bool {
	return r.URL.Path == "/livez" || r.URL.Path == "/readyz" || strings.HasPrefix(r.URL.Path, "/debug/")
}
