package core

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/store"
)

// ScoredEntry pairs a knowledge entry with its similarity to a query.
type ScoredEntry struct {
	Entry *store.KnowledgeEntry
	Score float64
}

// Index holds knowledge entries with their embeddings and answers similarity
// searches over them. Reads are served from an in-memory cache loaded from
// the store; writes commit to the store first and then publish the complete
// entry under the write lock, so concurrent readers never observe a torn
// (content-without-embedding) entry.
type Index struct {
	mu      sync.RWMutex
	entries map[int64]*store.KnowledgeEntry
	store   store.Store
	logger  *zap.Logger
}

func NewIndex(s store.Store, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &Index{
		entries: make(map[int64]*store.KnowledgeEntry),
		store:   s,
		logger:  logger,
	}
	if err := idx.Reload(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Reload replaces the cache with the store's current contents.
func (idx *Index) Reload() error {
	entries, err := idx.store.ListKnowledge(store.KnowledgeFilter{})
	if err != nil {
		return err
	}
	fresh := make(map[int64]*store.KnowledgeEntry, len(entries))
	for _, entry := range entries {
		fresh[entry.ID] = entry
	}

	idx.mu.Lock()
	idx.entries = fresh
	idx.mu.Unlock()

	idx.logger.Info("knowledge index loaded", zap.Int("entries", len(fresh)))
	return nil
}

// Upsert persists the entry and publishes it to the cache. Recomputing an
// embedding overwrites the previous one; the operation is idempotent.
func (idx *Index) Upsert(entry *store.KnowledgeEntry) error {
	if err := idx.store.UpsertKnowledge(entry); err != nil {
		return err
	}

	cp := *entry
	cp.Embedding = append([]float32(nil), entry.Embedding...)
	if entry.Embedding == nil {
		cp.Embedding = nil
	}

	idx.mu.Lock()
	idx.entries[cp.ID] = &cp
	idx.mu.Unlock()
	return nil
}

// Get returns the cached entry for id, or nil when unknown. Historical
// conversations may reference pruned entries; callers resolve nil to an
// "unknown source" rather than failing.
func (idx *Index) Get(id int64) *store.KnowledgeEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.entries[id]
}

// Count returns the number of cached entries.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search ranks eligible entries by cosine similarity to the query embedding.
// Only processed entries with a non-nil embedding participate; category
// narrows the candidate set when non-empty. Ties break by prior confidence,
// then most-recent creation, then id. An exceeded context budget degrades to
// an empty result instead of an error.
func (idx *Index) Search(ctx context.Context, queryEmbedding []float32, category string, topK int) []ScoredEntry {
	if topK <= 0 {
		topK = 10
	}

	idx.mu.RLock()
	candidates := make([]*store.KnowledgeEntry, 0, len(idx.entries))
	for _, entry := range idx.entries {
		if !entry.Processed || entry.Embedding == nil {
			continue
		}
		if category != "" && entry.Category != category {
			continue
		}
		candidates = append(candidates, entry)
	}
	idx.mu.RUnlock()

	scored := make([]ScoredEntry, 0, len(candidates))
	for i, entry := range candidates {
		if i%64 == 0 && ctx.Err() != nil {
			idx.logger.Warn("search budget exceeded, degrading to no results", zap.Error(ctx.Err()))
			return nil
		}
		score := CosineSimilarity(queryEmbedding, entry.Embedding)
		scored = append(scored, ScoredEntry{Entry: entry, Score: ClampConfidence(score)})
	}

	sort.Slice(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Entry.Confidence != b.Entry.Confidence {
			return a.Entry.Confidence > b.Entry.Confidence
		}
		if !a.Entry.CreatedAt.Equal(b.Entry.CreatedAt) {
			return a.Entry.CreatedAt.After(b.Entry.CreatedAt)
		}
		return a.Entry.ID > b.Entry.ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
