package behavior

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/config"
	"github.com/chapter-agent/backend/pkg/logger"
)

const (
	NeedPredictedAction = "predicted_action"
	NeedOpenGap         = "open_gap"
	NeedTimeOfDay       = "time_of_day"
	NeedNextSection     = "next_section"
)

type AnticipatedNeed struct {
	ChapterID   string  `json:"chapter_id"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Action      string  `json:"action,omitempty"`
	Score       float64 `json:"score"`
}

// AnticipationEngine combines mined behavior patterns, open knowledge
// gaps, and two cheap temporal heuristics into a ranked list of
// anticipated needs. Patterns are read from the redis cache when warm
// and re-mined from memory otherwise.
type AnticipationEngine struct {
	memory      *Memory
	detector    *GapDetector
	db          *sqlite.Client
	cache       *redis.Client
	progression []string
	lookback    time.Duration
}

func NewAnticipationEngine(
	memory *Memory,
	detector *GapDetector,
	db *sqlite.Client,
	cache *redis.Client,
	heuristics config.HeuristicsConfig,
	lookback time.Duration,
) *AnticipationEngine {
	if lookback == 0 {
		lookback = 72 * time.Hour
	}
	return &AnticipationEngine{
		memory:      memory,
		detector:    detector,
		db:          db,
		cache:       cache,
		progression: heuristics.SectionProgression,
		lookback:    lookback,
	}
}

// Anticipate produces the ranked need list for a chapter. Gap detection
// runs on the stored chapter; if the chapter cannot be loaded the
// pattern and temporal signals are still returned.
func (e *AnticipationEngine) Anticipate(ctx context.Context, chapterID string, limit int) ([]AnticipatedNeed, error) {
	if limit <= 0 {
		limit = 10
	}

	needs := e.patternNeeds(ctx, chapterID)

	chapter, err := e.db.GetChapter(chapterID)
	if err != nil {
		logger.Warn("anticipation: chapter load failed, skipping gap signals",
			zap.String("chapter_id", chapterID), zap.Error(err))
	} else if chapter != nil {
		sessions, sErr := e.db.GetQASessions(chapterID, 50)
		if sErr != nil {
			logger.Warn("anticipation: session history unavailable", zap.Error(sErr))
		}
		needs = append(needs, e.gapNeeds(chapter, sessions)...)
		needs = append(needs, e.progressionNeed(chapter)...)
	}

	needs = append(needs, e.timeOfDayNeed(chapterID)...)

	needs = dedupeNeeds(needs)
	sort.SliceStable(needs, func(i, j int) bool {
		return needs[i].Score > needs[j].Score
	})

	if len(needs) > limit {
		needs = needs[:limit]
	}
	return needs, nil
}

func (e *AnticipationEngine) patternNeeds(ctx context.Context, chapterID string) []AnticipatedNeed {
	var patterns []models.BehaviorPattern

	hit, err := e.cache.GetPatterns(ctx, chapterID, &patterns)
	if err != nil {
		logger.Warn("anticipation: pattern cache read failed", zap.Error(err))
	}
	if !hit {
		patterns = e.memory.MinePatterns(chapterID, e.lookback)
	}

	var needs []AnticipatedNeed
	for _, p := range patterns {
		if p.Confidence <= 0.5 {
			continue
		}
		needs = append(needs, AnticipatedNeed{
			ChapterID:   chapterID,
			Kind:        NeedPredictedAction,
			Description: "After " + p.ActionSequence[0] + " users typically " + p.PredictedAction,
			Action:      p.PredictedAction,
			Score:       p.Confidence,
		})
	}
	return needs
}

func (e *AnticipationEngine) gapNeeds(chapter *models.Chapter, sessions []models.QASession) []AnticipatedNeed {
	var needs []AnticipatedNeed
	for _, gap := range e.detector.Detect(*chapter, sessions) {
		score := gap.PriorityScore * gap.Confidence
		if score <= 0.7 {
			continue
		}
		needs = append(needs, AnticipatedNeed{
			ChapterID:   chapter.ID,
			Kind:        NeedOpenGap,
			Description: gap.Description,
			Action:      "fill_gap",
			Score:       score,
		})
	}
	return needs
}

// progressionNeed suggests the next section in the standard chapter
// progression: the first configured section absent from the content.
func (e *AnticipationEngine) progressionNeed(chapter *models.Chapter) []AnticipatedNeed {
	lower := strings.ToLower(chapter.Content)
	for _, section := range e.progression {
		if strings.Contains(lower, strings.ToLower(section)) {
			continue
		}
		return []AnticipatedNeed{{
			ChapterID:   chapter.ID,
			Kind:        NeedNextSection,
			Description: "Next section to draft: " + section,
			Action:      "draft_section",
			Score:       0.6,
		}}
	}
	return nil
}

// timeOfDayNeed flags the hour of day the chapter historically sees the
// most activity, when the current hour matches it.
func (e *AnticipationEngine) timeOfDayNeed(chapterID string) []AnticipatedNeed {
	interactions := e.memory.Snapshot(chapterID, e.lookback)
	if len(interactions) < 5 {
		return nil
	}

	byHour := make(map[int]int)
	for _, interaction := range interactions {
		byHour[interaction.CreatedAt.Hour()]++
	}

	peakHour, peakCount := -1, 0
	for hour, count := range byHour {
		if count > peakCount || (count == peakCount && hour < peakHour) {
			peakHour, peakCount = hour, count
		}
	}

	if peakHour != time.Now().Hour() {
		return nil
	}

	return []AnticipatedNeed{{
		ChapterID:   chapterID,
		Kind:        NeedTimeOfDay,
		Description: "This chapter is usually active at this hour",
		Action:      "prefetch",
		Score:       0.55,
	}}
}

func dedupeNeeds(needs []AnticipatedNeed) []AnticipatedNeed {
	seen := make(map[string]int)
	out := needs[:0]
	for _, need := range needs {
		if idx, dup := seen[need.Description]; dup {
			if need.Score > out[idx].Score {
				out[idx] = need
			}
			continue
		}
		seen[need.Description] = len(out)
		out = append(out, need)
	}
	return out
}
