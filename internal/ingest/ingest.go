// Package ingest loads raw knowledge entries from a JSON Lines file,
// computes their embeddings and commits them to the index. It is the local
// stand-in for the external data-acquisition pipeline: anything that can
// produce the same line format can feed the index.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/unicproject/unic/internal/core"
	"github.com/unicproject/unic/internal/embedding"
	"github.com/unicproject/unic/internal/store"
)

// rawEntry is one line of the ingest file.
type rawEntry struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Category   string   `json:"category"`
	Source     string   `json:"source"`
	SourceType string   `json:"source_type"`
	Author     string   `json:"author"`
	Confidence float64  `json:"confidence_score"`
	Tags       []string `json:"tags"`
}

type Ingester struct {
	index    *core.Index
	embedder embedding.Embedder
	logger   *zap.Logger
}

func New(index *core.Index, embedder embedding.Embedder, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{index: index, embedder: embedder, logger: logger}
}

// IngestFile reads JSON Lines entries from path and upserts them with
// embeddings. Malformed lines and failed embeddings are skipped with a
// warning; the count of successfully ingested entries is returned.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open ingest file %s: %w", path, err)
	}
	defer f.Close()

	count := 0
	lineNo := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}

		var raw rawEntry
		if err := json.Unmarshal(line, &raw); err != nil {
			ing.logger.Warn("skipping malformed ingest line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if raw.Content == "" {
			ing.logger.Warn("skipping ingest line with empty content", zap.Int("line", lineNo))
			continue
		}
		if !store.ValidCategory(raw.Category) {
			raw.Category = store.DefaultCategory
		}
		if raw.Confidence == 0 {
			raw.Confidence = 1.0
		}

		vec, err := ing.embedder.Embed(ctx, raw.Content)
		if err != nil {
			ing.logger.Warn("failed to embed entry, skipping", zap.Int("line", lineNo), zap.Error(err))
			continue
		}

		entry := &store.KnowledgeEntry{
			Title:      raw.Title,
			Content:    raw.Content,
			Category:   raw.Category,
			Source:     raw.Source,
			SourceType: raw.SourceType,
			Author:     raw.Author,
			Embedding:  vec,
			Processed:  true,
			Confidence: raw.Confidence,
			Tags:       raw.Tags,
		}
		if err := ing.index.Upsert(entry); err != nil {
			ing.logger.Warn("failed to store entry, skipping", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read ingest file: %w", err)
	}

	ing.logger.Info("ingestion complete", zap.Int("entries", count))
	return count, nil
}
