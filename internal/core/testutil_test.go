package core

import (
	"context"
	"strings"
)

// fakeEmbedder produces deterministic bag-of-words vectors over a fixed
// vocabulary. Words outside the vocabulary are ignored, so relative
// similarity between texts is fully controlled by the test.
type fakeEmbedder struct {
	vocab map[string]int
	dims  int
	calls int
	err   error
}

func newFakeEmbedder(words ...string) *fakeEmbedder {
	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[w] = i
	}
	return &fakeEmbedder{vocab: vocab, dims: len(words)}
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, f.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'")
		if idx, ok := f.vocab[token]; ok {
			vec[idx]++
		}
	}
	return vec, nil
}

// embedText is a convenience for building entry embeddings in tests.
func (f *fakeEmbedder) embedText(text string) []float32 {
	vec, _ := f.Embed(context.Background(), text)
	f.calls-- // construction helpers do not count as query embeddings
	return vec
}
