package embedding

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/calliq/qaengine/pkg/telemetry"
)

// Service wraps a Provider with caching, a circuit breaker, and the
// deterministic fallback. Created once at startup (singleton); safe for
// concurrent use.
type Service struct {
	provider Provider
	cache *cache
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration

	available atomic.Bool // true from construction on; false only while the breaker is open
}

// NewService creates an embedding service around provider. timeout bounds
// each provider call ("embedding 10 s" default stage timeout).
func NewService(provider Provider, timeout time.Duration) *Service {
	s:= &Service{
		provider: provider,
		cache: newCache(),
		timeout: timeout,
	}
	s.available.Store(true)

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "embedding-provider",
			MaxRequests: 3,
			Interval: time.Minute,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("embedding provider circuit breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
				s.available.Store(to != gobreaker.StateOpen)
			},
	})

	return s
}

// Available reports whether the upstream provider is currently reachable.
// When false, Embed is serving the deterministic fallback (// "the service exposes a boolean API-availability flag").
func (s *Service) Available() bool {
	return s.available.Load()
}

// Embed returns the normalized 768-dim vector for text, from cache,
// provider, or deterministic fallback in that order of preference.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.cache.getOrCompute(text, func() ([]float32, error) {
			return s.compute(ctx, text)
	})
}

func (s *Service) compute(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel:= context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err:= s.breaker.Execute(func() (any, error) {
			return s.provider.Embed(callCtx, text)
	})
	if err != nil {
		telemetry.RecordEmbeddingCall("fallback")
		slog.Warn("embedding provider unavailable, using deterministic fallback", "error", err)
		return fallbackEmbed(text), nil
	}

	vec, ok:= result.([]float32)
	if !ok || len(vec) != Dimensions {
		telemetry.RecordEmbeddingCall("fallback")
		slog.Warn("embedding provider returned malformed vector, using deterministic fallback")
		return fallbackEmbed(text), nil
	}
	telemetry.RecordEmbeddingCall("succeeded")
	return vec, nil
}

// Similarity returns the cosine similarity between two equal-length,
// already-normalized vectors, clamped to [0,1] ("similarity(a,b)
// -> [0,1]"; negative cosine values are floored at 0 since detection
// treats anything below the threshold identically).
func Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i:= range a {
		dot += float64(a[i]) * float64(b[i])
	}
	if dot < 0 {
		return 0
	}
	if dot > 1 {
		return 1
	}
	return dot
}

// CacheSize returns the number of cached vectors, for metrics.
func (s *Service) CacheSize() int {
	return s.cache.size()
}
