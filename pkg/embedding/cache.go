package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/sync/singleflight"
)

// cache is the process-local embedding cache keyed by hash(text). It
// starts empty and has no teardown requirements since its contents are
// derived and discardable. Reads are lock-free via sync.Map; writes for
// the same key are deduplicated with singleflight so a vector is computed
// once even under concurrent demand.
type cache struct {
	entries sync.Map // string(hash) -> []float32
	group   singleflight.Group
}

func newCache() *cache {
	return &cache{}
}

func hashText(text string) string {
	sum:= sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// getOrCompute returns the cached vector for text, computing it via fn
// exactly once across concurrent callers.
func (c *cache) getOrCompute(text string, fn func() ([]float32, error)) ([]float32, error) {
	key:= hashText(text)
	if v, ok:= c.entries.Load(key); ok {
		return v.([]float32), nil
	}

	v, err, _:= c.group.Do(key, func() (any, error) {
			if v, ok:= c.entries.Load(key); ok {
				return v.([]float32), nil
			}
			vec, err:= fn()
			if err != nil {
				return nil, err
			}
			c.entries.Store(key, vec)
			return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// size returns the number of cached entries, for metrics/testing.
func (c *cache) size() int {
	n:= 0
	c.entries.Range(func(_, _ any) bool {
			n++
			return true
	})
	return n
}
