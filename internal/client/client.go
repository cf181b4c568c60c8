// Package client talks JSON over HTTP to the product, cart/order, payment and
// auth services the storefront depends on.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_storefront/pkg/circuitbreaker"
	"github.com/fjod/go_storefront/pkg/logger"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1MB
)

type operation struct {
	name     string
	fallback string
}

var (
	opCreateCart     = operation{"create cart", "Failed to create cart"}
	opAddItem        = operation{"add item", "Failed to add item to cart"}
	opCreateOrder    = operation{"create order", "Failed to create order"}
	opUserOrders     = operation{"list orders", "Failed to load orders"}
	opProcessPayment = operation{"process payment", "Payment failed"}
	opSignup         = operation{"signup", "Signup failed"}
	opLogin          = operation{"login", "Login failed"}
	opListProducts   = operation{"list products", "Failed to load products"}
)

// Config holds the base URLs of the backend services.
type Config struct {
	ProductServiceURL string
	CartServiceURL    string
	PaymentServiceURL string
	AuthServiceURL    string
	Timeout           time.Duration
}

type Option func(*baseClient)

// WithTimeout bounds every call made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *baseClient) { c.timeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *baseClient) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *baseClient) { c.logger = l }
}

func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(c *baseClient) { c.breaker = b }
}

type baseClient struct {
	service string
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	logger  *zap.Logger
}

func newBaseClient(service, baseURL string, opts ...Option) *baseClient {
	c := &baseClient{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if c.breaker == nil {
		c.breaker = circuitbreaker.New(circuitbreaker.Settings{
			Name:         service,
			IsSuccessful: func(err error) bool { return !countsAgainstBreaker(err) },
			OnStateChange: func(name, from, to string) {
				c.logger.Warn("circuit breaker state changed",
					zap.String("service", name), zap.String("from", from), zap.String("to", to))
			},
		})
	}
	c.logger = c.logger.Named(service)
	return c
}

// do sends in as JSON and decodes a 2xx body into out. out may be nil.
func (c *baseClient) do(ctx context.Context, op operation, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := c.breaker.Execute(func() error {
		return c.roundTrip(ctx, op, method, path, in, out)
	})

	log := logger.FromContext(ctx, c.logger).With(
		zap.String("op", op.name),
		zap.String("method", method),
		zap.String("path", path),
		zap.Duration("took", time.Since(start)),
	)
	if err != nil {
		log.Warn("backend call failed", zap.Error(err))
		return err
	}
	log.Debug("backend call ok")
	return nil
}

func (c *baseClient) roundTrip(ctx context.Context, op operation, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op.name, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op.name, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &TransportError{Op: op.name, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(op, resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return decodeError(op, err)
	}
	return nil
}

// Clients bundles one client per backend service.
type Clients struct {
	Cart    *CartClient
	Payment *PaymentClient
	Auth    *AuthClient
	Product *ProductClient
}

func New(cfg Config, l *zap.Logger) *Clients {
	opts := []Option{WithLogger(l)}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	return &Clients{
		Cart:    NewCartClient(cfg.CartServiceURL, opts...),
		Payment: NewPaymentClient(cfg.PaymentServiceURL, opts...),
		Auth:    NewAuthClient(cfg.AuthServiceURL, opts...),
		Product: NewProductClient(cfg.ProductServiceURL, opts...),
	}
}
