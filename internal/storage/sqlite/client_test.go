package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/storage/models"
)

func testClient(t *testing.T) *Client {
	t.Helper()

	client, err := NewClient(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, client.InitSchema())

	t.Cleanup(func() { client.Close() })
	return client
}

func TestChapterUpsertAndGet(t *testing.T) {
	client := testClient(t)

	chapter := &models.Chapter{
		ID:       "ch1",
		Title:    "Cerebral Aneurysms",
		Category: "vascular",
		Content:  "Initial content.",
		Version:  1,
	}
	require.NoError(t, client.UpsertChapter(chapter))

	got, err := client.GetChapter("ch1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Cerebral Aneurysms", got.Title)
	assert.Equal(t, 1, got.Version)

	chapter.Content = "Revised content."
	require.NoError(t, client.UpsertChapter(chapter))

	got, err = client.GetChapter("ch1")
	require.NoError(t, err)
	assert.Equal(t, "Revised content.", got.Content)
	assert.Equal(t, 2, got.Version)
}

func TestGetChapterMissing(t *testing.T) {
	client := testClient(t)

	got, err := client.GetChapter("absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListChapters(t *testing.T) {
	client := testClient(t)

	require.NoError(t, client.UpsertChapter(&models.Chapter{ID: "a", Title: "A"}))
	require.NoError(t, client.UpsertChapter(&models.Chapter{ID: "b", Title: "B"}))

	chapters, err := client.ListChapters()
	require.NoError(t, err)
	assert.Len(t, chapters, 2)
}

func TestReplaceChapterChunks(t *testing.T) {
	client := testClient(t)
	require.NoError(t, client.UpsertChapter(&models.Chapter{ID: "ch1", Title: "T"}))

	first := []models.ChapterChunk{
		{ID: "c1", ChapterID: "ch1", ChunkIndex: 0, Text: "one"},
		{ID: "c2", ChapterID: "ch1", ChunkIndex: 1, Text: "two"},
	}
	require.NoError(t, client.ReplaceChapterChunks("ch1", first))

	// Replacement is wholesale: the old manifest disappears.
	second := []models.ChapterChunk{
		{ID: "c3", ChapterID: "ch1", ChunkIndex: 0, Text: "three"},
	}
	require.NoError(t, client.ReplaceChapterChunks("ch1", second))
}

func TestQASessionRoundTrip(t *testing.T) {
	client := testClient(t)

	session := &models.QASession{
		ID:            "s1",
		UserID:        "u1",
		ChapterID:     "ch1",
		QuestionText:  "What causes vasospasm?",
		QuestionType:  "evidence",
		AnswerText:    "An answer.",
		Confidence:    0.8,
		EvidenceCount: 3,
		Integrated:    true,
		Strategy:      "inline_expansion",
		LatencyMS:     42,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, client.InsertQASession(session))
	require.NoError(t, client.InsertQACitation(&models.QACitation{
		SessionID: "s1", SourceID: "pmid:1", Title: "Trial", CredibilityTier: "high",
	}))

	sessions, err := client.GetQASessions("ch1", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "What causes vasospasm?", sessions[0].QuestionText)
	assert.True(t, sessions[0].Integrated)
	assert.InDelta(t, 0.8, sessions[0].Confidence, 0.001)
}

func TestCountQASessionsSince(t *testing.T) {
	client := testClient(t)

	old := &models.QASession{ID: "old", ChapterID: "ch1", QuestionText: "q",
		Confidence: 0.4, CreatedAt: time.Now().AddDate(0, -2, 0)}
	recent := &models.QASession{ID: "recent", ChapterID: "ch1", QuestionText: "q",
		Confidence: 0.8, CreatedAt: time.Now()}
	require.NoError(t, client.InsertQASession(old))
	require.NoError(t, client.InsertQASession(recent))

	count, avg, err := client.CountQASessionsSince("ch1", time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.InDelta(t, 0.8, avg, 0.001)
}

func TestInteractionsPrune(t *testing.T) {
	client := testClient(t)

	require.NoError(t, client.InsertInteraction(&models.Interaction{
		ID: "i1", ChapterID: "ch1", ActionType: "read",
		CreatedAt: time.Now().AddDate(0, 0, -10),
	}))
	require.NoError(t, client.InsertInteraction(&models.Interaction{
		ID: "i2", ChapterID: "ch1", ActionType: "edit",
		CreatedAt: time.Now(),
	}))

	pruned, err := client.PruneInteractions(time.Now().AddDate(0, 0, -3))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}

func TestKnowledgeGapLifecycle(t *testing.T) {
	client := testClient(t)

	gap := &models.KnowledgeGap{
		ID:            "g1",
		ChapterID:     "ch1",
		GapType:       "missing_section",
		Description:   "Chapter is missing a Complications section",
		Confidence:    0.85,
		PriorityScore: 0.9,
		AutoFillable:  true,
		CreatedAt:     time.Now(),
	}
	inserted, err := client.InsertKnowledgeGap(gap)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Re-detection of the same gap is a no-op, not an error.
	inserted, err = client.InsertKnowledgeGap(gap)
	require.NoError(t, err)
	assert.False(t, inserted)

	open, err := client.GetOpenGaps("ch1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].AutoFillable)

	require.NoError(t, client.MarkGapFilled("g1"))

	open, err = client.GetOpenGaps("ch1")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestInvalidateGapsRemovesOnlyOpenGaps(t *testing.T) {
	client := testClient(t)

	open := &models.KnowledgeGap{ID: "open", ChapterID: "ch1", GapType: "missing_section",
		Confidence: 0.8, PriorityScore: 0.8, CreatedAt: time.Now()}
	filled := &models.KnowledgeGap{ID: "filled", ChapterID: "ch1", GapType: "concept_coverage",
		Confidence: 0.7, PriorityScore: 0.7, CreatedAt: time.Now()}
	other := &models.KnowledgeGap{ID: "other", ChapterID: "ch2", GapType: "missing_section",
		Confidence: 0.6, PriorityScore: 0.6, CreatedAt: time.Now()}

	for _, gap := range []*models.KnowledgeGap{open, filled, other} {
		_, err := client.InsertKnowledgeGap(gap)
		require.NoError(t, err)
	}
	require.NoError(t, client.MarkGapFilled("filled"))

	require.NoError(t, client.InvalidateGaps("ch1"))

	gaps, err := client.GetOpenGaps("ch1")
	require.NoError(t, err)
	assert.Empty(t, gaps)

	// Other chapters are untouched.
	gaps, err = client.GetOpenGaps("ch2")
	require.NoError(t, err)
	assert.Len(t, gaps, 1)

	// The filled row kept its history: re-inserting it still conflicts.
	inserted, err := client.InsertKnowledgeGap(filled)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestGetOpenGapsOrdering(t *testing.T) {
	client := testClient(t)

	low := &models.KnowledgeGap{ID: "low", ChapterID: "ch1", GapType: "concept_coverage",
		Confidence: 0.5, PriorityScore: 0.5, CreatedAt: time.Now()}
	high := &models.KnowledgeGap{ID: "high", ChapterID: "ch1", GapType: "missing_section",
		Confidence: 0.9, PriorityScore: 0.9, CreatedAt: time.Now()}
	_, err := client.InsertKnowledgeGap(low)
	require.NoError(t, err)
	_, err = client.InsertKnowledgeGap(high)
	require.NoError(t, err)

	open, err := client.GetOpenGaps("ch1")
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "high", open[0].ID)
}

func TestCitationEdgesReplaceAndQuery(t *testing.T) {
	client := testClient(t)

	edges := []models.CitationEdge{
		{SourceID: "chapter:a", TargetID: "chapter:b", CitationType: "cross_reference", Strength: 0.7},
		{SourceID: "chapter:a", TargetID: "doi:10.1/x", CitationType: "literature", Strength: 1},
	}
	require.NoError(t, client.ReplaceCitationEdges("chapter:a", edges))

	got, err := client.GetCitationEdges("chapter:a")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Incoming edges are visible from the target side too.
	got, err = client.GetCitationEdges("chapter:b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cross_reference", got[0].CitationType)

	// Replacement drops edges no longer produced.
	require.NoError(t, client.ReplaceCitationEdges("chapter:a", edges[:1]))
	all, err := client.GetAllCitationEdges()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMergeRecordRoundTrip(t *testing.T) {
	client := testClient(t)

	record := &models.MergeRecord{
		ID:            "m1",
		ChapterID:     "ch1",
		UserID:        "u1",
		NewExcerpt:    "new knowledge",
		ResultingText: "merged",
		Strategy:      "footnote_addition",
		Confidence:    0.85,
		Applied:       true,
		TermDensity:   0.4,
		CreatedAt:     time.Now(),
	}
	require.NoError(t, client.InsertMergeRecord(record))

	records, err := client.GetMergeRecords("ch1", 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Applied)
	assert.Equal(t, "footnote_addition", records[0].Strategy)
}
