package handlers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
)

func TestApplyIntegratedContentPersistsAndInvalidatesGaps(t *testing.T) {
	db, err := sqlite.NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema())
	t.Cleanup(func() { db.Close() })

	now := time.Now()
	chapter := &models.Chapter{
		ID:        "ch1",
		Title:     "Cerebral Aneurysms",
		Content:   "Old content.",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.UpsertChapter(chapter))

	gap := &models.KnowledgeGap{
		ID:            "g1",
		ChapterID:     "ch1",
		GapType:       "missing_section",
		Description:   "Chapter is missing a Complications section",
		Confidence:    0.8,
		PriorityScore: 0.8,
		CreatedAt:     now,
	}
	_, err = db.InsertKnowledgeGap(gap)
	require.NoError(t, err)

	merged := "Old content. Vasospasm surveillance is recommended."
	require.NoError(t, applyIntegratedContent(context.Background(), db, nil, chapter, merged))

	got, err := db.GetChapter("ch1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, merged, got.Content)
	assert.Greater(t, got.Version, 1)

	// Gaps detected against the old content no longer apply.
	gaps, err := db.GetOpenGaps("ch1")
	require.NoError(t, err)
	assert.Empty(t, gaps)
}
