package indexing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/llm"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/internal/vector/milvus"
	"github.com/chapter-agent/backend/pkg/logger"
	"github.com/chapter-agent/backend/pkg/utils"
)

const (
	defaultChunkSize    = 1200
	defaultChunkOverlap = 200
)

// Processor turns a chapter's text into embedded chunks in the vector
// index, with a matching chunk manifest in SQLite. Reindexing replaces
// the chapter's chunks wholesale and invalidates its cached answers.
type Processor struct {
	db       *sqlite.Client
	vector   *milvus.Client
	cache    *redis.Client
	provider llm.GenerationProvider
	size     int
	overlap  int
}

func NewProcessor(db *sqlite.Client, vector *milvus.Client, cache *redis.Client, provider llm.GenerationProvider) *Processor {
	return &Processor{
		db:       db,
		vector:   vector,
		cache:    cache,
		provider: provider,
		size:     defaultChunkSize,
		overlap:  defaultChunkOverlap,
	}
}

// IndexChapter chunks, embeds, and stores the chapter content. With the
// embedding provider disabled the vector index is skipped but the chunk
// manifest is still written, so keyword search keeps working.
func (p *Processor) IndexChapter(ctx context.Context, chapter models.Chapter) (int, error) {
	texts := chunkText(chapter.Content, p.size, p.overlap)
	if len(texts) == 0 {
		return 0, nil
	}

	now := time.Now()
	chunks := make([]models.ChapterChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.ChapterChunk{
			ID:         utils.HashString(chapter.ID + "|" + fmt.Sprint(i) + "|" + text),
			ChapterID:  chapter.ID,
			ChunkIndex: i,
			Text:       text,
			CreatedAt:  now,
		}
	}

	if err := p.indexVectors(ctx, chapter, chunks); err != nil {
		return 0, err
	}

	if err := p.db.ReplaceChapterChunks(chapter.ID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunk manifest: %w", err)
	}

	if err := p.cache.InvalidateChapter(ctx, chapter.ID); err != nil {
		logger.Warn("cache invalidation failed",
			zap.String("chapter_id", chapter.ID), zap.Error(err))
	}

	logger.Info("chapter indexed",
		zap.String("chapter_id", chapter.ID),
		zap.Int("chunks", len(chunks)))

	return len(chunks), nil
}

func (p *Processor) indexVectors(ctx context.Context, chapter models.Chapter, chunks []models.ChapterChunk) error {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := p.provider.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		if err == llm.ErrProviderDisabled {
			logger.Warn("embedding provider disabled, skipping vector index",
				zap.String("chapter_id", chapter.ID))
			return nil
		}
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d chunks, %d embeddings", len(chunks), len(embeddings))
	}

	if err := p.vector.DeleteChapterChunks(ctx, chapter.ID); err != nil {
		return fmt.Errorf("failed to clear old chunks: %w", err)
	}

	records := make([]milvus.ChunkRecord, len(chunks))
	for i, chunk := range chunks {
		records[i] = milvus.ChunkRecord{
			ID:        chunk.ID,
			Embedding: embeddings[i],
			Text:      chunk.Text,
			ChapterID: chapter.ID,
			Section:   nearestHeading(chapter.Content, chunk.Text),
			Timestamp: chunk.CreatedAt,
		}
		chunks[i].EmbeddingID = chunk.ID
	}

	if err := p.vector.Insert(ctx, records); err != nil {
		return fmt.Errorf("failed to insert vectors: %w", err)
	}
	return nil
}

// chunkText splits on word boundaries into windows of roughly size
// characters with the given overlap between consecutive windows.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		// Back off to the last space so words stay whole.
		cut := strings.LastIndexByte(text[start:end], ' ')
		if cut <= 0 {
			cut = size
		}
		chunks = append(chunks, strings.TrimSpace(text[start:start+cut]))

		next := start + cut - overlap
		if next <= start {
			next = start + cut
		}
		start = next
	}

	return chunks
}

// nearestHeading finds the markdown heading most recently preceding the
// chunk's position in the chapter.
func nearestHeading(content, chunk string) string {
	idx := strings.Index(content, chunk[:min(len(chunk), 80)])
	if idx < 0 {
		return ""
	}

	heading := ""
	for _, line := range strings.Split(content[:idx], "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
		}
	}
	return heading
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
