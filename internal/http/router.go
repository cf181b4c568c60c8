package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_storefront/internal/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 30 * time.Second

type RouterConfig struct {
	Catalog  *catalog.Catalog
	Sessions SessionStore
	Tokens   *Sessions
	Auth     AuthService
	Orders   OrdersService
	// Attempts is optional; without it the checkout history is empty.
	Attempts AttemptLister

	Logger          *zap.Logger
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	AuthLimiter     *RateLimiter
	CheckoutLimiter *RateLimiter
}

// NewRouter wires the storefront API. The result is wrapped in CORS and
// OpenTelemetry handlers. Checkout is bounded by its own step timeouts, every
// other backend call by RequestTimeout.
func NewRouter(cfg RouterConfig) http.Handler {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	productHandler := NewProductHandler(cfg.Catalog)
	cartHandler := NewCartHandler(cfg.Sessions, cfg.Catalog, cfg.RequestTimeout, l)
	checkoutHandler := NewCheckoutHandler(cfg.Sessions, l)
	authHandler := NewAuthHandler(cfg.Auth, cfg.Tokens, cfg.RequestTimeout, l)
	ordersHandler := NewOrdersHandler(cfg.Orders, cfg.Attempts, cfg.RequestTimeout)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(AccessLog(l))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", productHandler.ListProducts)
		r.Get("/products/{id}", productHandler.GetProduct)
		r.Get("/categories", productHandler.ListCategories)

		r.Group(func(r chi.Router) {
			r.Use(cfg.Tokens.Middleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartHandler.GetCart)
				r.Delete("/", cartHandler.ClearCart)
				r.Post("/items", cartHandler.AddItem)
				r.Put("/items", cartHandler.UpdateQuantity)
				r.Delete("/items", cartHandler.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", checkoutHandler.Status)
				r.Get("/history", ordersHandler.ListAttempts)
				r.Post("/dismiss", checkoutHandler.Dismiss)
				r.With(limit(cfg.CheckoutLimiter)).Post("/", checkoutHandler.Submit)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Use(limit(cfg.AuthLimiter))
				r.Post("/signup", authHandler.Signup)
				r.Post("/login", authHandler.Login)
				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
			})

			r.Get("/orders", ordersHandler.ListOrders)
		})
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	}).Handler(r)

	return otelhttp.NewHandler(handler, "storefront-gateway")
}

func limit(rl *RateLimiter) func(http.Handler) http.Handler {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return rl.Limit
}
