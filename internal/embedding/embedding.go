// Package embedding provides vector embedding generation for query and
// knowledge-entry text. The Embedder interface is the boundary: the core
// depends on it, adapters implement it.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Embedder generates a fixed-length vector embedding for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LocalDims is the dimensionality of LocalEmbedder vectors.
const LocalDims = 128

// LocalEmbedder is a deterministic, dependency-free embedder: a hashed
// bag-of-words projection, L2-normalized. It captures token overlap well
// enough for offline use and tests; it is not a semantic model.
type LocalEmbedder struct{}

func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, LocalDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()[]")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		sum := h.Sum32()
		idx := int(sum % LocalDims)
		// Second hash bit picks the sign to spread tokens across the space.
		if sum&(1<<31) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag == 0 {
		return vec, nil
	}
	norm := float32(math.Sqrt(mag))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}
