package merge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/behavior"
	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/internal/textutil"
	"github.com/chapter-agent/backend/pkg/config"
	"github.com/chapter-agent/backend/pkg/logger"
)

var (
	ErrChapterLocked   = errors.New("chapter is locked by a concurrent merge")
	ErrChapterNotFound = errors.New("chapter not found")
)

// NuanceKind classifies how a sentence of new knowledge relates to the
// existing chapter text.
type NuanceKind string

const (
	NuanceAddition      NuanceKind = "addition"
	NuanceClarification NuanceKind = "clarification"
	NuanceExpansion     NuanceKind = "expansion"
	NuanceContradiction NuanceKind = "contradiction"
)

type Nuance struct {
	Sentence        string     `json:"sentence"`
	Kind            NuanceKind `json:"kind"`
	MatchedSentence string     `json:"matched_sentence,omitempty"`
	Similarity      float64    `json:"similarity"`
}

// Preferences are the per-chapter merge settings. Everything defaults
// from the merge config section until a caller overrides them.
type Preferences struct {
	Strategy           string            `json:"strategy"`
	AutoApplyThreshold float64           `json:"auto_apply_threshold"`
	ConflictPolicy     qa.ConflictPolicy `json:"conflict_policy"`
}

type Request struct {
	ChapterID      string
	UserID         string
	NewKnowledge   string
	SectionContext string
	DryRun         bool
}

type Result struct {
	RecordID       string                 `json:"record_id,omitempty"`
	ChapterID      string                 `json:"chapter_id"`
	MergedContent  string                 `json:"merged_content"`
	Strategy       qa.IntegrationStrategy `json:"strategy"`
	Nuances        []Nuance               `json:"nuances"`
	Conflicts      []qa.Conflict          `json:"conflicts"`
	Metrics        QualityMetrics         `json:"metrics"`
	Confidence     float64                `json:"confidence"`
	GapsFilled     []string               `json:"gaps_filled,omitempty"`
	Applied        bool                   `json:"applied"`
	RequiresReview bool                   `json:"requires_review"`
}

// Engine merges new knowledge into a chapter sentence by sentence,
// preserving nuance instead of overwriting. One merge per chapter runs
// at a time; a second caller gets ErrChapterLocked immediately rather
// than queueing.
type Engine struct {
	db         *sqlite.Client
	cache      *redis.Client
	memory     *behavior.Memory
	evaluator  *Evaluator
	heuristics config.HeuristicsConfig
	defaults   Preferences

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	prefs map[string]Preferences
}

func NewEngine(
	db *sqlite.Client,
	cache *redis.Client,
	memory *behavior.Memory,
	evaluator *Evaluator,
	heuristics config.HeuristicsConfig,
	mergeCfg config.MergeConfig,
) *Engine {
	defaults := Preferences{
		Strategy:           mergeCfg.DefaultStrategy,
		AutoApplyThreshold: mergeCfg.AutoApplyThreshold,
		ConflictPolicy:     qa.ConflictPolicy(mergeCfg.ConflictPolicy),
	}
	if defaults.Strategy == "" {
		defaults.Strategy = "balanced"
	}
	if defaults.AutoApplyThreshold == 0 {
		defaults.AutoApplyThreshold = 0.8
	}
	if defaults.ConflictPolicy == "" {
		defaults.ConflictPolicy = qa.PolicyPreferQuality
	}

	return &Engine{
		db:         db,
		cache:      cache,
		memory:     memory,
		evaluator:  evaluator,
		heuristics: heuristics,
		defaults:   defaults,
		locks:      make(map[string]*sync.Mutex),
		prefs:      make(map[string]Preferences),
	}
}

func (e *Engine) GetPreferences(chapterID string) Preferences {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prefs, ok := e.prefs[chapterID]; ok {
		return prefs
	}
	return e.defaults
}

func (e *Engine) SetPreferences(chapterID string, prefs Preferences) {
	if prefs.Strategy == "" {
		prefs.Strategy = e.defaults.Strategy
	}
	if prefs.AutoApplyThreshold == 0 {
		prefs.AutoApplyThreshold = e.defaults.AutoApplyThreshold
	}
	if prefs.ConflictPolicy == "" {
		prefs.ConflictPolicy = e.defaults.ConflictPolicy
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefs[chapterID] = prefs
}

func (e *Engine) chapterLock(chapterID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[chapterID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[chapterID] = lock
	}
	return lock
}

// Merge runs the full pipeline: classify each new sentence against the
// existing text, resolve contradictions, weave the survivors in, score
// the result, and persist a merge record. The chapter itself is only
// rewritten when the result clears the auto-apply gate and the request
// is not a dry run.
func (e *Engine) Merge(ctx context.Context, req Request) (*Result, error) {
	lock := e.chapterLock(req.ChapterID)
	if !lock.TryLock() {
		metrics.MergesTotal.WithLabelValues("locked").Inc()
		return nil, ErrChapterLocked
	}
	defer lock.Unlock()

	chapter, err := e.db.GetChapter(req.ChapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chapter: %w", err)
	}
	if chapter == nil {
		return nil, ErrChapterNotFound
	}

	e.logInteraction(req)

	newKnowledge := strings.TrimSpace(req.NewKnowledge)
	if newKnowledge == "" {
		return &Result{
			ChapterID:     req.ChapterID,
			MergedContent: chapter.Content,
			Metrics:       e.evaluator.Evaluate(chapter.Content, chapter.Content),
			Confidence:    1,
		}, nil
	}

	prefs := e.GetPreferences(req.ChapterID)
	originalSentences := textutil.SplitSentences(chapter.Content)

	nuances := e.classify(newKnowledge, originalSentences)
	conflicts, dropped := e.resolveContradictions(chapter, nuances, prefs.ConflictPolicy)

	merged, addedChars := weave(chapter.Content, nuances, dropped)
	strategy := strategyForLength(addedChars)

	quality := e.evaluator.Evaluate(chapter.Content, merged)
	confidence := e.confidence(nuances, conflicts)
	requiresReview := hasUnresolved(conflicts)
	applied := !req.DryRun && !requiresReview && confidence >= prefs.AutoApplyThreshold

	result := &Result{
		ChapterID:      req.ChapterID,
		MergedContent:  merged,
		Strategy:       strategy,
		Nuances:        nuances,
		Conflicts:      conflicts,
		Metrics:        quality,
		Confidence:     confidence,
		Applied:        applied,
		RequiresReview: requiresReview,
	}

	if applied {
		if err := e.apply(ctx, chapter, merged); err != nil {
			return nil, err
		}
		result.GapsFilled = e.markFilledGaps(req.ChapterID, merged)
	}

	record := e.buildRecord(req, chapter, result)
	if err := e.db.InsertMergeRecord(&record); err != nil {
		logger.Warn("merge record persistence failed", zap.Error(err))
	} else {
		result.RecordID = record.ID
	}

	status := "proposed"
	if applied {
		status = "applied"
	} else if requiresReview {
		status = "review"
	}
	metrics.MergesTotal.WithLabelValues(status).Inc()
	metrics.MergeQuality.Observe(quality.Overall())

	logger.Info("merge completed",
		zap.String("chapter_id", req.ChapterID),
		zap.Int("nuances", len(nuances)),
		zap.Int("conflicts", len(conflicts)),
		zap.Float64("confidence", confidence),
		zap.Bool("applied", applied))

	return result, nil
}

func (e *Engine) logInteraction(req Request) {
	interaction := models.Interaction{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		ChapterID:  req.ChapterID,
		ActionType: "merge_knowledge",
		CreatedAt:  time.Now(),
	}
	e.memory.Append(interaction)
	if err := e.db.InsertInteraction(&interaction); err != nil {
		logger.Warn("interaction persistence failed", zap.Error(err))
	}
}

// classify buckets each new sentence: a contradiction when it opposes a
// matched sentence on a shared concept, otherwise by token similarity
// to its closest original sentence.
func (e *Engine) classify(newKnowledge string, originalSentences []string) []Nuance {
	pairs := e.heuristics.OpposingTermPairs()
	concepts := e.heuristics.DomainConcepts

	var nuances []Nuance
	for _, sentence := range textutil.SplitSentences(newKnowledge) {
		matched, similarity := closestSentence(sentence, originalSentences)

		kind := NuanceAddition
		switch {
		case matched != "" && isContradiction(sentence, matched, pairs, concepts):
			kind = NuanceContradiction
		case similarity >= 0.7:
			kind = NuanceClarification
		case similarity >= 0.3:
			kind = NuanceExpansion
		}

		nuances = append(nuances, Nuance{
			Sentence:        sentence,
			Kind:            kind,
			MatchedSentence: matched,
			Similarity:      similarity,
		})
	}
	return nuances
}

// resolveContradictions runs the conflict resolver over each
// contradictory pair. The existing text competes as a statement dated
// to the chapter's last update; the incoming one is dated now. Returns
// the conflicts and the set of new sentences that lost and must not be
// woven in.
func (e *Engine) resolveContradictions(chapter *models.Chapter, nuances []Nuance, policy qa.ConflictPolicy) ([]qa.Conflict, map[string]struct{}) {
	resolver := qa.NewResolver(e.heuristics, policy)
	dropped := make(map[string]struct{})
	var conflicts []qa.Conflict

	for _, nuance := range nuances {
		if nuance.Kind != NuanceContradiction {
			continue
		}

		points := []qa.EvidencePoint{
			{
				Statement: nuance.MatchedSentence,
				SourceID:  "chapter:" + chapter.ID,
				Tier:      evidence.TierModerate,
				Year:      chapter.UpdatedAt.Year(),
			},
			{
				Statement: nuance.Sentence,
				SourceID:  "incoming",
				Tier:      evidence.TierModerate,
				Year:      time.Now().Year(),
			},
		}

		found, resolved := resolver.Resolve(points)
		conflicts = append(conflicts, found...)
		metrics.ConflictsDetected.WithLabelValues(resolvedLabel(found)).Add(float64(len(found)))

		// The incoming sentence is woven in only when it won.
		if resolved[1].SupersededBy != "" || hasUnresolved(found) {
			dropped[nuance.Sentence] = struct{}{}
		}
	}

	return conflicts, dropped
}

// weave builds the merged text. Clarifications and expansions splice in
// right after the sentence they refine; additions and winning
// contradictions collect into a trailing update block. Returns the
// merged text and how many characters were added.
func weave(content string, nuances []Nuance, dropped map[string]struct{}) (string, int) {
	merged := content
	var trailing []string

	for _, nuance := range nuances {
		if _, skip := dropped[nuance.Sentence]; skip {
			continue
		}

		switch nuance.Kind {
		case NuanceClarification, NuanceExpansion:
			idx := strings.Index(merged, nuance.MatchedSentence)
			if idx < 0 {
				trailing = append(trailing, nuance.Sentence)
				continue
			}
			end := idx + len(nuance.MatchedSentence)
			merged = merged[:end] + " " + nuance.Sentence + merged[end:]
		default:
			trailing = append(trailing, nuance.Sentence)
		}
	}

	if len(trailing) > 0 {
		merged += "\n\n### Recent Updates\n\n" + strings.Join(trailing, " ") + "\n"
	}

	return merged, len(merged) - len(content)
}

func strategyForLength(addedChars int) qa.IntegrationStrategy {
	switch {
	case addedChars < 200:
		return qa.StrategyInlineExpansion
	case addedChars <= 500:
		return qa.StrategyFootnoteAddition
	default:
		return qa.StrategySectionCreation
	}
}

// confidence starts high and pays for contradictions: resolved ones
// cost a little, unresolved ones a lot. Floor 0.1.
func (e *Engine) confidence(nuances []Nuance, conflicts []qa.Conflict) float64 {
	confidence := 0.85
	for _, conflict := range conflicts {
		if conflict.Resolved {
			confidence -= 0.05
		} else {
			confidence -= 0.15
		}
	}
	if confidence < 0.1 {
		confidence = 0.1
	}
	return confidence
}

func (e *Engine) apply(ctx context.Context, chapter *models.Chapter, merged string) error {
	chapter.Content = merged
	chapter.Version++
	chapter.UpdatedAt = time.Now()

	if err := e.db.UpsertChapter(chapter); err != nil {
		return fmt.Errorf("failed to apply merged content: %w", err)
	}

	if err := e.cache.InvalidateChapter(ctx, chapter.ID); err != nil {
		logger.Warn("cache invalidation failed",
			zap.String("chapter_id", chapter.ID), zap.Error(err))
	}
	return nil
}

// markFilledGaps closes open gaps whose subject now appears in the
// merged text. Only section and concept gaps can be closed this way.
func (e *Engine) markFilledGaps(chapterID, merged string) []string {
	gaps, err := e.db.GetOpenGaps(chapterID)
	if err != nil {
		logger.Warn("gap lookup failed", zap.Error(err))
		return nil
	}

	lower := strings.ToLower(merged)
	var filled []string
	for _, gap := range gaps {
		subject := gapSubject(gap)
		if subject == "" || !strings.Contains(lower, strings.ToLower(subject)) {
			continue
		}
		if err := e.db.MarkGapFilled(gap.ID); err != nil {
			logger.Warn("gap close failed", zap.String("gap_id", gap.ID), zap.Error(err))
			continue
		}
		filled = append(filled, gap.ID)
	}
	return filled
}

// gapSubject extracts the thing a gap is about from its description,
// relying on the detector's fixed phrasing.
func gapSubject(gap models.KnowledgeGap) string {
	switch gap.GapType {
	case behavior.GapMissingSection:
		rest := strings.TrimPrefix(gap.Description, "Chapter is missing a ")
		return strings.TrimSuffix(rest, " section")
	case behavior.GapConceptCoverage:
		return strings.TrimPrefix(gap.Description, "Expected concept not covered: ")
	default:
		return ""
	}
}

func (e *Engine) buildRecord(req Request, chapter *models.Chapter, result *Result) models.MergeRecord {
	return models.MergeRecord{
		ID:              uuid.New().String(),
		ChapterID:       req.ChapterID,
		UserID:          req.UserID,
		OriginalExcerpt: excerpt(chapter.Content),
		NewExcerpt:      excerpt(req.NewKnowledge),
		ResultingText:   excerpt(result.MergedContent),
		Strategy:        string(result.Strategy),
		Confidence:      result.Confidence,
		Applied:         result.Applied,
		ContentGrowth:   result.Metrics.ContentGrowth,
		TermDensity:     result.Metrics.TermDensity,
		Readability:     result.Metrics.Readability,
		Completeness:    result.Metrics.Completeness,
		CreatedAt:       time.Now(),
	}
}

func excerpt(text string) string {
	const maxLen = 500
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen]
}

func closestSentence(sentence string, candidates []string) (string, float64) {
	best, bestScore := "", 0.0
	for _, candidate := range candidates {
		score := textutil.WordOverlapRatio(sentence, candidate)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best, bestScore
}

func isContradiction(a, b string, pairs [][2]string, concepts []string) bool {
	lowerA := strings.ToLower(a)
	lowerB := strings.ToLower(b)

	shared := false
	for _, concept := range concepts {
		lc := strings.ToLower(concept)
		if strings.Contains(lowerA, lc) && strings.Contains(lowerB, lc) {
			shared = true
			break
		}
	}
	if !shared {
		return false
	}

	for _, pair := range pairs {
		if strings.Contains(lowerA, pair[0]) && strings.Contains(lowerB, pair[1]) {
			return true
		}
		if strings.Contains(lowerA, pair[1]) && strings.Contains(lowerB, pair[0]) {
			return true
		}
	}
	return false
}

func hasUnresolved(conflicts []qa.Conflict) bool {
	for _, conflict := range conflicts {
		if !conflict.Resolved {
			return true
		}
	}
	return false
}

func resolvedLabel(conflicts []qa.Conflict) string {
	if hasUnresolved(conflicts) {
		return "unresolved"
	}
	return "resolved"
}
