// Package indexer manages the connection to an Electrum indexer: ordered
// endpoint failover, bounded concurrency, rate limiting, a circuit breaker,
// and classification of failures into retryable and fatal errors.
package indexer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/semaphore"

	"github.com/mrz1836/hdscan/internal/electrum"
	"github.com/mrz1836/hdscan/internal/metrics"
	scanerr "github.com/mrz1836/hdscan/pkg/errors"
)

// Logger is the interface for connection logging.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures Connect and the resulting Connection.
type Options struct {
	// ClientName is sent in the server.version handshake.
	ClientName string

	// HandshakeTimeout bounds dial, TLS and server.version per endpoint.
	HandshakeTimeout time.Duration

	// RequestTimeout bounds a single query.
	RequestTimeout time.Duration

	// MaxConcurrent bounds in-flight queries on the connection.
	MaxConcurrent int64

	// BreakerThreshold is the number of consecutive transport failures that
	// opens the circuit.
	BreakerThreshold uint32

	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration

	// RateLimiter is shared across connections. Nil disables rate limiting.
	RateLimiter *RateLimiter

	Metrics *metrics.Metrics
	Logger  Logger
}

// DefaultOptions returns the default connection options.
func DefaultOptions() Options {
	return Options{
		ClientName:       "hdscan",
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   30 * time.Second,
		MaxConcurrent:    10,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// Validate checks if the options are valid.
func (o Options) Validate() error {
	if o.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake timeout must be positive", scanerr.ErrInvalidInput)
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", scanerr.ErrInvalidInput)
	}
	if o.MaxConcurrent < 1 {
		return fmt.Errorf("%w: max concurrent must be at least 1", scanerr.ErrInvalidInput)
	}
	return nil
}

// Connection is one live indexer session shared by every query of a
// discovery request. It is safe for concurrent use.
type Connection struct {
	endpoint Endpoint
	server   string
	client   *electrum.Client

	sem            *semaphore.Weighted
	limiter        *RateLimiter
	breaker        *gobreaker.CircuitBreaker
	requestTimeout time.Duration
	metrics        *metrics.Metrics
	logger         Logger

	closeOnce sync.Once
}

// Connect tries each endpoint in order and returns the first one that
// completes the handshake. Every endpoint error is reported in the details
// of ErrAllEndpointsUnavailable.
func Connect(ctx context.Context, endpoints []Endpoint, opts Options) (*Connection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global
	}

	details := make(map[string]string, len(endpoints))
	if len(endpoints) == 0 {
		details["endpoints"] = "none configured"
	}

	for _, ep := range endpoints {
		if err := ctx.Err(); err != nil {
			return nil, scanerr.WithCause(scanerr.ErrScanCanceled, err)
		}

		conn, err := dialEndpoint(ctx, ep, opts)
		opts.Metrics.RecordConnect(err)
		if err == nil {
			return conn, nil
		}

		details[ep.String()] = err.Error()
		if opts.Logger != nil {
			opts.Logger.Debug("indexer %s unavailable: %v", ep, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, scanerr.WithCause(scanerr.ErrScanCanceled, err)
	}

	return nil, scanerr.WithSuggestion(
		scanerr.WithDetails(scanerr.ErrAllEndpointsUnavailable, details),
		"check network access or configure reachable servers with HDSCAN_SERVERS",
	)
}

func dialEndpoint(ctx context.Context, ep Endpoint, opts Options) (*Connection, error) {
	hctx, cancel := context.WithTimeout(ctx, opts.HandshakeTimeout)
	defer cancel()

	var tlsConfig *tls.Config
	if ep.TLS {
		tlsConfig = &tls.Config{
			ServerName:         ep.Host,
			InsecureSkipVerify: ep.SkipVerify, //nolint:gosec // Public Electrum servers commonly use self-signed certificates
			MinVersion:         tls.VersionTLS12,
		}
	}

	client, err := electrum.Dial(hctx, ep.Address(), tlsConfig)
	if err != nil {
		return nil, err
	}

	software, _, err := client.ServerVersion(hctx, opts.ClientName, electrum.ProtocolVersion)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	if opts.Logger != nil {
		opts.Logger.Debug("connected to indexer %s (%s)", ep, software)
	}

	return &Connection{
		endpoint:       ep,
		server:         software,
		client:         client,
		sem:            semaphore.NewWeighted(opts.MaxConcurrent),
		limiter:        opts.RateLimiter,
		breaker:        newBreaker(ep.String(), opts.BreakerThreshold, opts.BreakerCooldown),
		requestTimeout: opts.RequestTimeout,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
	}, nil
}

// Endpoint returns the connected endpoint.
func (c *Connection) Endpoint() Endpoint {
	return c.endpoint
}

// ServerSoftware returns the software string reported in the handshake.
func (c *Connection) ServerSoftware() string {
	return c.server
}

// GetBalance returns the balance of a scripthash.
func (c *Connection) GetBalance(ctx context.Context, scriptHash string) (electrum.Balance, error) {
	var out electrum.Balance
	err := c.do(ctx, "get_balance", func(ctx context.Context) error {
		var err error
		out, err = c.client.GetBalance(ctx, scriptHash)
		return err
	})
	return out, err
}

// GetHistory returns the transaction history of a scripthash.
func (c *Connection) GetHistory(ctx context.Context, scriptHash string) ([]electrum.HistoryItem, error) {
	var out []electrum.HistoryItem
	err := c.do(ctx, "get_history", func(ctx context.Context) error {
		var err error
		out, err = c.client.GetHistory(ctx, scriptHash)
		return err
	})
	return out, err
}

// ListUnspent returns the unspent outputs of a scripthash.
func (c *Connection) ListUnspent(ctx context.Context, scriptHash string) ([]electrum.Unspent, error) {
	var out []electrum.Unspent
	err := c.do(ctx, "listunspent", func(ctx context.Context) error {
		var err error
		out, err = c.client.ListUnspent(ctx, scriptHash)
		return err
	})
	return out, err
}

// do runs one query under the semaphore, rate limiter, breaker and
// per-request timeout, then classifies the error.
func (c *Connection) do(ctx context.Context, method string, fn func(context.Context) error) error {
	if c == nil || c.client == nil {
		return scanerr.ErrConnectionLost
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.sem.Release(1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.endpoint.String()); err != nil {
			return err
		}
	}

	start := time.Now()

	// Only transport failures count against the breaker; server errors and
	// caller cancellation pass through it as successes.
	var passthrough error
	_, err := c.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		err := fn(callCtx)
		if err == nil || ctx.Err() != nil || !isTransportFailure(err) {
			passthrough = err
			return nil, nil
		}
		return nil, err
	})
	if err == nil {
		err = passthrough
	}

	c.metrics.RecordIndexerCall(method, time.Since(start), err)
	return c.classify(ctx, method, err)
}

func isTransportFailure(err error) bool {
	return errors.Is(err, electrum.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}

func (c *Connection) classify(ctx context.Context, method string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	details := map[string]string{"endpoint": c.endpoint.String(), "method": method}

	switch {
	case errors.Is(err, electrum.ErrClosed):
		if c.logger != nil {
			c.logger.Error("indexer %s connection lost: %v", c.endpoint, err)
		}
		return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrConnectionLost, err), details)

	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return scanerr.WithDetails(scanerr.WithCause(scanerr.ErrIndexerQueryFailed, err), details)

	case errors.Is(err, context.DeadlineExceeded):
		timeout := fmt.Errorf("%s timed out after %s: %w", method, c.requestTimeout, err)
		return WrapRetryable(scanerr.WithDetails(scanerr.WithCause(scanerr.ErrIndexerQueryFailed, timeout), details))

	default:
		return WrapRetryable(scanerr.WithDetails(scanerr.WithCause(scanerr.ErrIndexerQueryFailed, err), details))
	}
}

// Close releases the connection. Safe to call more than once and on a nil
// Connection.
func (c *Connection) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		_ = c.client.Close()
	})
	return nil
}
