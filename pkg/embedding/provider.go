// Package embedding implements the Embedding Service (C3): normalized
// 768-dim text vectors, cached by content hash, with a deterministic
// fallback that engages whenever the upstream provider is unavailable.
package embedding

import "context"

// Dimensions is the fixed output vector size ("vector(768)").
const Dimensions = 768

// Provider is the external embedding collaborator ("embed(text)
// → vector"). Implementations call out to a real embedding model; Service
// wraps a Provider with caching, a circuit breaker, and the deterministic
// fallback.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderFunc adapts a plain function to Provider.
type ProviderFunc func(ctx context.Context, text string) ([]float32, error)

func (f ProviderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}
