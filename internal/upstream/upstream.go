// Package upstream provides the pooled outbound HTTP client used to reach
// origin servers, optionally wrapped in a circuit breaker.
package upstream

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tapedeck/tapedeck/internal/observability"
)

// ErrUpstreamUnavailable indicates that the circuit breaker is open and the
// origin was not contacted.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// PoolConfig contains connection pool configuration for the shared outbound
// transport.
type PoolConfig struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	IdleConnTimeout       time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
}

// DefaultPoolConfig returns default pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		DialTimeout:           30 * time.Second,
	}
}

// BreakerConfig configures the optional circuit breaker around origin calls.
// The breaker never retries; it only stops hammering an origin that keeps
// failing.
type BreakerConfig struct {
	Enabled   bool
	Threshold int
	Timeout   time.Duration
}

// Client executes outbound requests through a shared pooled transport. It is
// safe for concurrent use; connections are bounded per origin host.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreaker enables circuit breaker protection for origin calls.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		if !cfg.Enabled {
			return
		}

		threshold := uint32(5)
		if cfg.Threshold > 0 {
			threshold = uint32(cfg.Threshold)
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}

		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "upstream",
			MaxRequests: threshold,
			Interval:    timeout,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= threshold && failureRatio >= 0.5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Info("upstream circuit breaker state change",
					observability.String("name", name),
					observability.String("from", from.String()),
					observability.String("to", to.String()),
				)
			},
		})
	}
}

// NewClient creates a client over a pooled transport.
func NewClient(cfg PoolConfig, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			// Redirects are relayed to the caller, not followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		transport: transport,
		logger:    observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute performs the outbound request. Connectivity problems surface as
// transport errors; when the breaker is open the origin is not contacted and
// ErrUpstreamUnavailable is returned.
func (c *Client) Execute(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.httpClient.Do(req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		return nil, err
	}
	return result.(*http.Response), nil
}

// CloseIdleConnections closes idle pooled connections.
func (c *Client) CloseIdleConnections() {
	c.transport.CloseIdleConnections()
}
