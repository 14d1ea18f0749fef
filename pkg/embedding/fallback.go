package embedding

import (
	"hash/fnv"
	"math"
	"strings"
)

// fallbackEmbed builds a deterministic vector from word, bigram, and
// trigram hash features so identical text always produces an identical
// vector, without calling any external provider ("the
// fallback must not be mistaken for a real embedding score downstream").
//
// Each n-gram is hashed into a bucket in [0, Dimensions) and accumulates a
// +1 (sign derived from a second hash, to avoid every bucket trending
// positive); the result is L2-normalized like a real embedding so cosine
// similarity comparisons behave the same way structurally.
func fallbackEmbed(text string) []float32 {
	vec:= make([]float64, Dimensions)

	words:= tokenize(text)
	addFeatures(vec, words, 1)
	addFeatures(vec, ngrams(words, 2), 1)
	addFeatures(vec, ngrams(words, 3), 1)

	return normalize(vec)
}

func tokenize(text string) []string {
	fields:= strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func ngrams(words []string, n int) []string {
	if len(words) < n {
		return nil
	}
	out:= make([]string, 0, len(words)-n+1)
	for i:= 0; i+n <= len(words); i++ {
		out = append(out, strings.Join(words[i:i+n], "_"))
	}
	return out
}

func addFeatures(vec []float64, tokens []string, weight float64) {
	for _, tok:= range tokens {
		bucket:= bucketHash(tok) % uint64(len(vec))
		sign:= 1.0
		if signHash(tok)%2 == 0 {
			sign = -1.0
		}
		vec[bucket] += sign * weight
	}
}

func bucketHash(s string) uint64 {
	h:= fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

func signHash(s string) uint64 {
	h:= fnv.New64a()
	_, _ = h.Write([]byte("sign:" + s))
	return h.Sum64()
}

func normalize(vec []float64) []float32 {
	var sumSq float64
	for _, v:= range vec {
		sumSq += v * v
	}
	norm:= math.Sqrt(sumSq)
	out:= make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	for i, v:= range vec {
		out[i] = float32(v / norm)
	}
	return out
}
