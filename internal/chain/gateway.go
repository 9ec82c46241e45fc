package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/metrics"
)

// ErrAllEndpointsFailed is returned when every endpoint failed in every pass.
var ErrAllEndpointsFailed = errors.New("all rpc endpoints failed")

const (
	// An endpoint with more than maxConsecutiveFailures failures inside
	// failureWindow is skipped for the current pass.
	maxConsecutiveFailures = 2
	failureWindow          = 60 * time.Second
)

// Op is a read operation executed against one endpoint.
type Op func(ctx context.Context, client *ethclient.Client) error

// GatewayConfig controls retry and timeout behavior.
type GatewayConfig struct {
	MaxRetries  int           // full passes over the endpoint list
	Backoff     time.Duration // linear backoff base between passes
	CallTimeout time.Duration // per-call timeout
}

// Gateway executes read operations against an ordered set of chain
// endpoints, rotating to the last known-good endpoint and failing over on
// errors.
type Gateway struct {
	cfg     GatewayConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	endpoints []*endpoint
	start     int
}

// NewGateway dials every URL and returns a gateway over them, in order.
func NewGateway(ctx context.Context, urls []string, cfg GatewayConfig, logger *zap.Logger, m *metrics.Metrics) (*Gateway, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one rpc url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}

	endpoints := make([]*endpoint, 0, len(urls))
	for _, rawURL := range urls {
		ep, err := dialEndpoint(ctx, rawURL)
		if err != nil {
			for _, dialed := range endpoints {
				dialed.close()
			}
			return nil, fmt.Errorf("dial %s: %w", MaskURL(rawURL), err)
		}
		endpoints = append(endpoints, ep)
	}

	return &Gateway{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		endpoints: endpoints,
	}, nil
}

// newGatewayForTest builds a gateway over undial-ed endpoints. The op decides
// what to do with the nil client.
func newGatewayForTest(urls []string, cfg GatewayConfig, logger *zap.Logger) *Gateway {
	endpoints := make([]*endpoint, 0, len(urls))
	for _, rawURL := range urls {
		endpoints = append(endpoints, &endpoint{url: rawURL})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{cfg: cfg, logger: logger, endpoints: endpoints}
}

// Close closes all endpoint connections.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, ep := range g.endpoints {
		ep.close()
	}
}

// Endpoints returns a health snapshot: masked URL -> consecutive failures.
func (g *Gateway) Endpoints() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]int, len(g.endpoints))
	for _, ep := range g.endpoints {
		out[MaskURL(ep.url)] = ep.failureCount
	}
	return out
}

// Execute runs op against the endpoint list, starting from the last
// successful endpoint. Endpoints that recently failed repeatedly are skipped
// for the pass. After a full failed pass it sleeps a linear backoff and
// retries, up to MaxRetries passes.
func (g *Gateway) Execute(ctx context.Context, op Op) error {
	var lastErr error

	for pass := 1; pass <= g.cfg.MaxRetries; pass++ {
		if err := g.executePass(ctx, op, &lastErr); err == nil {
			return nil
		}

		if pass == g.cfg.MaxRetries {
			break
		}

		delay := g.cfg.Backoff * time.Duration(pass)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %w", ErrAllEndpointsFailed, lastErr)
}

func (g *Gateway) executePass(ctx context.Context, op Op, lastErr *error) error {
	g.mu.Lock()
	count := len(g.endpoints)
	start := g.start
	g.mu.Unlock()

	attempted := false
	for i := 0; i < count; i++ {
		idx := (start + i) % count

		g.mu.Lock()
		ep := g.endpoints[idx]
		skip := ep.failureCount > maxConsecutiveFailures && time.Since(ep.lastFailure) < failureWindow
		g.mu.Unlock()
		if skip {
			continue
		}
		attempted = true

		callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
		err := op(callCtx, ep.ethClient)
		cancel()
		g.metrics.ObserveRPCCall(MaskURL(ep.url), err == nil)

		if err == nil {
			g.mu.Lock()
			ep.failureCount = 0
			ep.lastFailure = time.Time{}
			g.start = idx
			g.mu.Unlock()
			return nil
		}

		*lastErr = err
		g.mu.Lock()
		ep.failureCount++
		ep.lastFailure = time.Now()
		failures := ep.failureCount
		g.mu.Unlock()

		g.logger.Warn("rpc call failed",
			zap.String("endpoint", MaskURL(ep.url)),
			zap.Int("failures", failures),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if !attempted && *lastErr == nil {
		*lastErr = fmt.Errorf("all endpoints cooling down")
	}
	return fmt.Errorf("pass exhausted")
}
