package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/llm"
)

// IndexBackend exposes the chapter chunk index as an evidence backend:
// the question is embedded and matched against indexed chapter content.
type IndexBackend struct {
	client   *Client
	provider llm.GenerationProvider
}

func NewIndexBackend(client *Client, provider llm.GenerationProvider) *IndexBackend {
	return &IndexBackend{
		client:   client,
		provider: provider,
	}
}

func (b *IndexBackend) Name() string {
	return "content_index"
}

func (b *IndexBackend) Search(ctx context.Context, q evidence.Query, maxResults int) ([]evidence.RawHit, error) {
	queryText := q.Text
	if len(q.Concepts) > 0 {
		queryText += " " + strings.Join(q.Concepts, " ")
	}

	embedding, err := b.provider.GenerateEmbedding(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := b.client.Search(ctx, embedding, maxResults, "")
	if err != nil {
		return nil, err
	}

	hits := make([]evidence.RawHit, 0, len(results))
	for _, r := range results {
		title := r.Section
		if title == "" {
			title = "Chapter " + r.ChapterID
		}
		hits = append(hits, evidence.RawHit{
			SourceID: "chunk:" + r.ChunkID,
			Title:    title,
			Abstract: r.Text,
			Backend:  b.Name(),
		})
	}

	return hits, nil
}
