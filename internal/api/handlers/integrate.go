package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

// applyIntegratedContent persists auto-integrated chapter content and
// drops state keyed to the previous version: open knowledge gaps and
// cached answers. cache may be nil. Invalidation failures are logged,
// not returned; the content write is the only hard failure.
func applyIntegratedContent(ctx context.Context, db *sqlite.Client, cache *redis.Client, chapter *models.Chapter, content string) error {
	chapter.Content = content
	chapter.Version++
	chapter.UpdatedAt = time.Now()

	if err := db.UpsertChapter(chapter); err != nil {
		return err
	}

	if err := db.InvalidateGaps(chapter.ID); err != nil {
		logger.Warn("Gap invalidation failed",
			zap.String("chapter_id", chapter.ID), zap.Error(err))
	}
	if cache != nil {
		if err := cache.InvalidateChapter(ctx, chapter.ID); err != nil {
			logger.Warn("Cache invalidation failed",
				zap.String("chapter_id", chapter.ID), zap.Error(err))
		}
	}
	return nil
}
