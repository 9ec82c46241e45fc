package router

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/0xprotovox/bscradar/internal/cache"
	"github.com/0xprotovox/bscradar/internal/metrics"
)

const (
	precacheInterval = 10 * time.Minute
	precacheTTL      = 10 * time.Minute
)

// Precacher keeps routes between the base tokens warm in the background so
// interactive requests hit the cache.
type Precacher struct {
	router  *Router
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *zap.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPrecacher builds a pre-warmer over the router.
func NewPrecacher(r *Router, c *cache.Cache, m *metrics.Metrics, logger *zap.Logger) *Precacher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Precacher{
		router:  r,
		cache:   c,
		metrics: m,
		logger:  logger,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start runs an immediate warm cycle and then one per interval until Stop
// or context cancellation.
func (p *Precacher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		p.runCycle(ctx)

		ticker := time.NewTicker(precacheInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-ticker.C:
				p.runCycle(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for any in-flight cycle.
func (p *Precacher) Stop() {
	close(p.stop)
	<-p.done
}

// runCycle warms every ordered base-token pair. Overlapping cycles collapse
// to one.
func (p *Precacher) runCycle(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	defer p.running.Store(false)

	if removed := p.cache.Sweep(); removed > 0 {
		p.logger.Debug("expired cache entries swept", zap.Int("removed", removed))
	}

	bases := append(append([]string{}, primaryBases...), secondaryBases...)
	warmed := 0
	for _, from := range bases {
		for _, to := range bases {
			if from == to {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			result, err := p.router.FindBestRoute(ctx, from, to, 1000)
			if err != nil {
				p.logger.Warn("route pre-cache failed",
					zap.String("from", from), zap.String("to", to), zap.Error(err))
				continue
			}
			key := RouteKey(from, to)
			if err := p.cache.SetTTL(cache.PoolStore, key, result, precacheTTL); err != nil {
				p.logger.Warn("route cache write failed", zap.String("key", key), zap.Error(err))
				continue
			}
			warmed++
		}
	}

	p.metrics.ObserveRouteCycle()
	p.logger.Debug("route pre-cache cycle complete", zap.Int("warmed", warmed))
}

// RouteKey is the pool-store key of a cached route.
func RouteKey(from, to string) string {
	return "route_" + strings.ToLower(from) + "_" + strings.ToLower(to)
}
