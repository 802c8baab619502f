package evolution

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/behavior"
	"github.com/chapter-agent/backend/internal/citation"
	"github.com/chapter-agent/backend/internal/merge"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

// GapFill records one attempted gap fill in an evolution run.
type GapFill struct {
	GapID      string  `json:"gap_id"`
	Question   string  `json:"question"`
	Confidence float64 `json:"confidence"`
	Applied    bool    `json:"applied"`
	Skipped    string  `json:"skipped,omitempty"`
}

// Report is the outcome of one evolution run.
type Report struct {
	ChapterID     string                     `json:"chapter_id"`
	DryRun        bool                       `json:"dry_run"`
	Needs         []behavior.AnticipatedNeed `json:"anticipated_needs"`
	GapFills      []GapFill                  `json:"gap_fills"`
	CitationEdges int                        `json:"citation_edges"`
	HealthBefore  Health                     `json:"health_before"`
	HealthAfter   Health                     `json:"health_after"`
}

// Executor runs the self-evolution loop for a chapter: anticipate what
// it needs, answer its highest-value open gaps through the QA pipeline,
// merge the answers in, and rebuild its citation edges. A dry run walks
// the same path but never writes chapter content.
type Executor struct {
	db           *sqlite.Client
	anticipation *behavior.AnticipationEngine
	detector     *behavior.GapDetector
	qaEngine     *qa.Engine
	mergeEngine  *merge.Engine
	builder      *citation.Builder
	health       *HealthChecker
	maxGapFills  int
}

func NewExecutor(
	db *sqlite.Client,
	anticipation *behavior.AnticipationEngine,
	detector *behavior.GapDetector,
	qaEngine *qa.Engine,
	mergeEngine *merge.Engine,
	builder *citation.Builder,
	health *HealthChecker,
	maxGapFills int,
) *Executor {
	if maxGapFills == 0 {
		maxGapFills = 3
	}
	return &Executor{
		db:           db,
		anticipation: anticipation,
		detector:     detector,
		qaEngine:     qaEngine,
		mergeEngine:  mergeEngine,
		builder:      builder,
		health:       health,
		maxGapFills:  maxGapFills,
	}
}

func (e *Executor) Evolve(ctx context.Context, chapterID string, dryRun bool) (*Report, error) {
	chapter, err := e.db.GetChapter(chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter: %w", err)
	}
	if chapter == nil {
		return nil, merge.ErrChapterNotFound
	}

	report := &Report{ChapterID: chapterID, DryRun: dryRun}

	report.HealthBefore, err = e.health.Check(*chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to compute chapter health: %w", err)
	}

	report.Needs, err = e.anticipation.Anticipate(ctx, chapterID, 10)
	if err != nil {
		logger.Warn("evolution anticipation failed",
			zap.String("chapter_id", chapterID), zap.Error(err))
	}

	e.refreshGaps(*chapter)
	report.GapFills = e.fillGaps(ctx, chapter, dryRun)

	// Reload: applied merges changed the content.
	if updated, loadErr := e.db.GetChapter(chapterID); loadErr == nil && updated != nil {
		chapter = updated
	}

	if edges, buildErr := e.builder.Rebuild(ctx, *chapter); buildErr != nil {
		logger.Warn("evolution citation rebuild failed",
			zap.String("chapter_id", chapterID), zap.Error(buildErr))
	} else {
		report.CitationEdges = len(edges)
	}

	report.HealthAfter, err = e.health.Check(*chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute chapter health: %w", err)
	}

	logger.Info("evolution run completed",
		zap.String("chapter_id", chapterID),
		zap.Bool("dry_run", dryRun),
		zap.Int("gap_fills", len(report.GapFills)),
		zap.Float64("health_before", report.HealthBefore.Overall),
		zap.Float64("health_after", report.HealthAfter.Overall))

	return report, nil
}

// refreshGaps re-scans the chapter and records any new gaps. Gap IDs
// are content-derived, so re-inserting a known gap is a no-op upsert.
func (e *Executor) refreshGaps(chapter models.Chapter) {
	sessions, err := e.db.GetQASessions(chapter.ID, 50)
	if err != nil {
		logger.Warn("gap refresh session lookup failed", zap.Error(err))
	}

	for _, gap := range e.detector.Detect(chapter, sessions) {
		inserted, err := e.db.InsertKnowledgeGap(&gap)
		if err != nil {
			logger.Warn("gap persistence failed",
				zap.String("gap_id", gap.ID), zap.Error(err))
			continue
		}
		if inserted {
			metrics.GapsDetected.WithLabelValues(gap.GapType).Inc()
		}
	}
}

// fillGaps answers the highest-value auto-fillable gaps through the QA
// pipeline and merges each answer into the chapter. Content is reloaded
// between fills so later answers see earlier merges.
func (e *Executor) fillGaps(ctx context.Context, chapter *models.Chapter, dryRun bool) []GapFill {
	gaps, err := e.db.GetOpenGaps(chapter.ID)
	if err != nil {
		logger.Warn("gap lookup failed", zap.Error(err))
		return nil
	}

	var fills []GapFill
	for _, gap := range gaps {
		if len(fills) >= e.maxGapFills {
			break
		}
		if !gap.AutoFillable || gap.PriorityScore*gap.Confidence <= 0.7 {
			continue
		}

		fill := GapFill{GapID: gap.ID, Question: questionForGap(gap, chapter.Title)}

		resp, qaErr := e.qaEngine.ProcessQuestion(ctx, qa.Request{
			QuestionText:   fill.Question,
			ChapterID:      chapter.ID,
			ChapterContent: chapter.Content,
			UserID:         "evolution",
		})
		if qaErr != nil {
			fill.Skipped = "question failed: " + qaErr.Error()
			fills = append(fills, fill)
			continue
		}

		fill.Confidence = resp.Answer.Confidence
		if resp.Answer.Insufficient {
			fill.Skipped = "insufficient evidence"
			fills = append(fills, fill)
			continue
		}

		mergeResult, mergeErr := e.mergeEngine.Merge(ctx, merge.Request{
			ChapterID:    chapter.ID,
			UserID:       "evolution",
			NewKnowledge: resp.Answer.MainText,
			DryRun:       dryRun,
		})
		if mergeErr != nil {
			fill.Skipped = "merge failed: " + mergeErr.Error()
			fills = append(fills, fill)
			continue
		}

		fill.Applied = mergeResult.Applied
		fills = append(fills, fill)

		if mergeResult.Applied {
			if updated, loadErr := e.db.GetChapter(chapter.ID); loadErr == nil && updated != nil {
				*chapter = *updated
			}
		}
	}

	return fills
}

// questionForGap phrases a gap as something the QA pipeline can answer,
// leaning on the detector's fixed description formats.
func questionForGap(gap models.KnowledgeGap, chapterTitle string) string {
	switch gap.GapType {
	case behavior.GapMissingSection:
		section := strings.TrimSuffix(strings.TrimPrefix(gap.Description, "Chapter is missing a "), " section")
		return fmt.Sprintf("What should the %s section cover for %s?", section, chapterTitle)
	case behavior.GapConceptCoverage:
		concept := strings.TrimPrefix(gap.Description, "Expected concept not covered: ")
		return fmt.Sprintf("What is the role of %s in %s?", concept, chapterTitle)
	case behavior.GapUnansweredQuestion:
		return strings.TrimPrefix(gap.Description, "Chapter does not address: ")
	default:
		return fmt.Sprintf("What is the latest evidence on %s?", chapterTitle)
	}
}
