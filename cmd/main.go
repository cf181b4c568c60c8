package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fjod/go_storefront/internal/cache"
	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/fjod/go_storefront/internal/checkout"
	"github.com/fjod/go_storefront/internal/client"
	"github.com/fjod/go_storefront/internal/journal"
	"github.com/fjod/go_storefront/internal/publisher"
	"github.com/fjod/go_storefront/internal/session"
	"github.com/fjod/go_storefront/pkg/logger"
	"github.com/fjod/go_storefront/pkg/telemetry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	h "github.com/fjod/go_storefront/internal/http"
)

const devJWTSecret = "storefront-dev-secret"

type Config struct {
	Environment     string
	HTTPPort        string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string

	ProductServiceURL string
	CartServiceURL    string
	PaymentServiceURL string
	AuthServiceURL    string
	BackendTimeout    time.Duration
	CatalogRefresh    time.Duration

	StepTimeout     time.Duration
	CheckoutTimeout time.Duration
	AutoDismiss     time.Duration
	SessionIdleTTL  time.Duration
	JWTSecret       string
	SecureCookie    bool

	RedisAddr     string
	RedisPassword string
	JournalDriver string
	JournalDSN    string
	KafkaBrokers  []string
	KafkaTopic    string
	OTLPEndpoint  string
}

func loadConfig() *Config {
	return &Config{
		Environment:     getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RequestTimeout:  getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		AllowedOrigins:  getList("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		ProductServiceURL: getEnv("PRODUCT_SERVICE_URL", "http://localhost:8001"),
		CartServiceURL:    getEnv("CART_SERVICE_URL", "http://localhost:8002"),
		PaymentServiceURL: getEnv("PAYMENT_SERVICE_URL", "http://localhost:8003"),
		AuthServiceURL:    getEnv("AUTH_SERVICE_URL", "http://localhost:8002"),
		BackendTimeout:    getDuration("BACKEND_TIMEOUT", 10*time.Second),
		CatalogRefresh:    getDuration("CATALOG_REFRESH_INTERVAL", 5*time.Minute),

		StepTimeout:     getDuration("CHECKOUT_STEP_TIMEOUT", 15*time.Second),
		CheckoutTimeout: getDuration("CHECKOUT_TIMEOUT", checkout.DefaultTimeout),
		AutoDismiss:     getDuration("CHECKOUT_AUTO_DISMISS", 0),
		SessionIdleTTL:  getDuration("SESSION_IDLE_TTL", 30*time.Minute),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		SecureCookie:    getBool("SECURE_COOKIE", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JournalDriver: getEnv("JOURNAL_DRIVER", journal.DriverSQLite),
		JournalDSN:    getEnv("JOURNAL_DSN", "storefront.db"),
		KafkaBrokers:  getList("KAFKA_BROKERS", ""),
		KafkaTopic:    getEnv("KAFKA_TOPIC", publisher.DefaultTopic),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
}

// checkJWTSecret refuses to run without JWT_SECRET outside development. In
// development a fixed secret is used and a warning is returned.
func (c *Config) checkJWTSecret() (string, error) {
	if c.JWTSecret != "" {
		return "", nil
	}
	if c.Environment != "development" {
		return "", fmt.Errorf("JWT_SECRET must be set when APP_ENV is %q", c.Environment)
	}
	c.JWTSecret = devJWTSecret
	return "JWT_SECRET not set, using the development secret", nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

func getList(key, defaultValue string) []string {
	var out []string
	for _, s := range strings.Split(getEnv(key, defaultValue), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	cfg := loadConfig()

	l, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer l.Sync()
	zap.ReplaceGlobals(l)

	warning, err := cfg.checkJWTSecret()
	if err != nil {
		l.Fatal("invalid configuration", zap.Error(err))
	}
	if warning != "" {
		l.Warn(warning)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, "storefront-gateway", cfg.OTLPEndpoint)
	if err != nil {
		l.Fatal("failed to init tracing", zap.Error(err))
	}

	clients := client.New(client.Config{
		ProductServiceURL: cfg.ProductServiceURL,
		CartServiceURL:    cfg.CartServiceURL,
		PaymentServiceURL: cfg.PaymentServiceURL,
		AuthServiceURL:    cfg.AuthServiceURL,
		Timeout:           cfg.BackendTimeout,
	}, l)

	products, err := catalog.Load()
	if err != nil {
		l.Fatal("failed to load catalog", zap.Error(err))
	}
	if cfg.CatalogRefresh > 0 {
		go refreshCatalog(ctx, products, clients.Product, cfg.CatalogRefresh, l)
	}

	cartCache := newCartCache(ctx, cfg, l)

	repo, err := journal.NewRepository(journal.Config{Driver: cfg.JournalDriver, DSN: cfg.JournalDSN})
	if err != nil {
		l.Fatal("failed to open checkout journal", zap.Error(err))
	}
	defer repo.Close()
	if err := repo.RunMigrations(); err != nil {
		l.Fatal("failed to migrate checkout journal", zap.Error(err))
	}
	l.Info("checkout journal ready", zap.String("driver", cfg.JournalDriver))

	var poller *publisher.OutboxPoller
	if len(cfg.KafkaBrokers) > 0 {
		poller = publisher.NewOutboxPoller(repo, publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...), l,
			publisher.WithStaleAfter(cfg.CheckoutTimeout+time.Minute))
		go poller.Run(ctx)
		l.Info("outbox publisher started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		l.Info("KAFKA_BROKERS not set, checkout events stay in the outbox")
	}

	registry := session.NewRegistry(cartCache, func(local checkout.LocalCart) *checkout.Orchestrator {
		return checkout.New(local, clients.Cart, clients.Payment,
			checkout.WithLogger(l),
			checkout.WithJournal(repo),
			checkout.WithStepTimeout(cfg.StepTimeout),
			checkout.WithTimeout(cfg.CheckoutTimeout),
			checkout.WithAutoDismiss(cfg.AutoDismiss),
		)
	}, session.WithLogger(l), session.WithIdleTTL(cfg.SessionIdleTTL))
	go registry.RunCleanup(ctx, time.Minute)

	var invalidator *publisher.SessionInvalidator
	if len(cfg.KafkaBrokers) > 0 {
		// one group per instance so every instance sees every event
		groupID := "storefront-gateway-" + uuid.NewString()
		invalidator = publisher.NewSessionInvalidator(publisher.NewKafkaReader(cfg.KafkaTopic, groupID, cfg.KafkaBrokers...), registry, l)
		go invalidator.Run(ctx)
	}

	authLimiter := h.NewRateLimiter(rate.Every(12*time.Second), 5)
	checkoutLimiter := h.NewRateLimiter(rate.Every(2*time.Second), 3)
	go authLimiter.Cleanup(ctx, time.Minute, 10*time.Minute)
	go checkoutLimiter.Cleanup(ctx, time.Minute, 10*time.Minute)

	router := h.NewRouter(h.RouterConfig{
		Catalog:         products,
		Sessions:        registry,
		Tokens:          h.NewSessions(cfg.JWTSecret, h.WithSecureCookie(cfg.SecureCookie), h.WithSessionLogger(l)),
		Auth:            clients.Auth,
		Orders:          clients.Cart,
		Attempts:        repo,
		Logger:          l,
		RequestTimeout:  cfg.RequestTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
		AuthLimiter:     authLimiter,
		CheckoutLimiter: checkoutLimiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// a checkout runs within one request
		WriteTimeout: cfg.CheckoutTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info("storefront gateway starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()
	if poller != nil {
		if err := poller.Close(); err != nil {
			l.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if invalidator != nil {
		if err := invalidator.Close(); err != nil {
			l.Warn("failed to close kafka reader", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		l.Warn("failed to flush spans", zap.Error(err))
	}
	l.Info("server exited")
}

// newCartCache connects to Redis when configured. Without Redis, carts live
// only in memory.
func newCartCache(ctx context.Context, cfg *Config, l *zap.Logger) cache.CartCache {
	if cfg.RedisAddr == "" {
		l.Info("REDIS_ADDR not set, cart snapshots are not persisted")
		return cache.NoopCache{}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		l.Fatal("redis connection failed", zap.Error(err))
	}
	l.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
	return cache.NewRedisCache(redisClient)
}

func refreshCatalog(ctx context.Context, c *catalog.Catalog, src catalog.Source, interval time.Duration, l *zap.Logger) {
	refresh := func() {
		if err := c.Refresh(ctx, src); err != nil {
			l.Warn("catalog refresh failed, keeping current list", zap.Error(err))
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			return
		}
	}
}
