package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/aipdfly/internal/api"
	"github.com/lalith-99/aipdfly/internal/billing"
	"github.com/lalith-99/aipdfly/internal/config"
	"github.com/lalith-99/aipdfly/internal/db"
	"github.com/lalith-99/aipdfly/internal/identity"
	"github.com/lalith-99/aipdfly/internal/middleware"
	"github.com/lalith-99/aipdfly/internal/notify"
	"github.com/lalith-99/aipdfly/internal/observ"
	"github.com/lalith-99/aipdfly/internal/ratelimit"
	"github.com/lalith-99/aipdfly/internal/repository/postgres"
	"github.com/lalith-99/aipdfly/internal/share"
	"github.com/lalith-99/aipdfly/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Postgres: schema first, then the pool
	// ---------------------------------------------------------------
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	pool := database.Pool()
	userRepo := postgres.NewUserStore(pool)
	chatRepo := postgres.NewChatStore(pool)
	messageRepo := postgres.NewMessageStore(pool)
	subscriptionRepo := postgres.NewSubscriptionStore(pool)
	shareRepo := postgres.NewShareStore(pool)

	// ---------------------------------------------------------------
	// 3. Redis (optional): webhook dedupe and unlock throttling
	// ---------------------------------------------------------------
	var (
		deduper       billing.Deduper = billing.NopDeduper{}
		unlockLimiter middleware.Limiter
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		deduper = billing.NewRedisDeduper(rdb, cfg.WebhookDedupeTTL)

		if cfg.Share.UnlockLimit > 0 {
			l, err := ratelimit.NewFixedWindow(rdb, "aipdfly:unlock", cfg.Share.UnlockLimit, cfg.Share.UnlockWindow)
			if err != nil {
				return fmt.Errorf("create unlock limiter: %w", err)
			}
			unlockLimiter = l
		}
		logger.Info("redis connected", zap.Bool("unlock_limit", unlockLimiter != nil))
	} else if cfg.Share.UnlockLimit > 0 {
		logger.Warn("SHARE_UNLOCK_LIMIT set without REDIS_URL; unlock attempts are not throttled")
	}

	// ---------------------------------------------------------------
	// 4. Providers
	// ---------------------------------------------------------------
	identityVerifier, err := identity.NewSvixVerifier(cfg.Identity.WebhookSecret)
	if err != nil {
		return fmt.Errorf("create identity verifier: %w", err)
	}

	var directory identity.Directory
	if cfg.Identity.APIKey != "" {
		directory = identity.NewClerkDirectory(cfg.Identity.APIKey)
	} else {
		logger.Warn("IDENTITY_API_KEY not set; admin role and delete changes stay local, admin create and edit are disabled")
	}

	paymentProvider := billing.NewStripeProvider(cfg.Payment.APIKey, nil)

	var objects api.ObjectStore
	if cfg.Storage.Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.Options{
			Bucket:   cfg.Storage.Bucket,
			Region:   cfg.Storage.Region,
			Endpoint: cfg.Storage.Endpoint,
			URLTTL:   cfg.Storage.URLTTL,
		})
		if err != nil {
			return fmt.Errorf("create object store: %w", err)
		}
		objects = s3Store
	}

	// ---------------------------------------------------------------
	// 5. Domain services
	// ---------------------------------------------------------------
	hub := notify.NewHub(logger)
	metrics := observ.NewMetrics(prometheus.DefaultRegisterer)
	hasher := share.BcryptHasher{}

	handlers := api.Handlers{
		Chats: api.NewChatHandler(chatRepo, messageRepo, objects, logger),
		Shares: api.NewShareHandler(chatRepo, shareRepo,
			share.NewManager(shareRepo, hasher, cfg.PublicBaseURL),
			share.NewGate(shareRepo, messageRepo, hasher),
			objects, metrics, logger),
		Webhooks: api.NewWebhookHandler(
			identityVerifier,
			identity.NewReconciler(userRepo, hub, logger),
			billing.NewStripeVerifier(cfg.Payment.WebhookSecret),
			billing.NewReconciler(subscriptionRepo, paymentProvider, hub, cfg.ProviderTimeout, logger),
			deduper, metrics, logger),
		Admin: api.NewAdminHandler(userRepo, chatRepo, subscriptionRepo, directory, objects, logger),
		Billing: api.NewBillingHandler(
			billing.NewService(subscriptionRepo, paymentProvider, cfg.Payment.PriceID, cfg.PublicBaseURL, cfg.ProviderTimeout),
			logger),
		Events: api.NewEventsHandler(hub, cfg.CORSOrigins, logger),
	}

	// ---------------------------------------------------------------
	// 6. HTTP server
	// ---------------------------------------------------------------
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger),
		middleware.Metrics(metrics),
		middleware.CORS(cfg.CORSOrigins),
	)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := api.Register(router, handlers, api.RouteConfig{
		JWTSecret:      cfg.JWTSecret,
		UnlockLimiter:  unlockLimiter,
		Health:         database.Health,
		TrustedProxies: cfg.TrustedProxies,
	}, logger); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting AiPDFly",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}
