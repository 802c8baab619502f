package qa

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
	"github.com/chapter-agent/backend/pkg/utils"
)

type EngineConfig struct {
	AutoIntegrateThreshold float64
	LatencyEMAAlpha        float64
	AnswerCacheTTL         time.Duration
}

// Engine wires the QA pipeline: analyze, search, synthesize (with
// conflict resolution), integrate. Stages run strictly in order; only
// the search stage parallelizes internally.
type Engine struct {
	analyzer    *Analyzer
	searcher    *evidence.Searcher
	synthesizer *Synthesizer
	integrator  *Integrator
	db          *sqlite.Client
	cache       *redis.Client
	cfg         EngineConfig

	mu         sync.Mutex
	latencyEMA map[string]float64
}

type Request struct {
	QuestionText   string
	ChapterID      string
	ChapterContent string
	SectionContext string
	UserID         string
}

type Response struct {
	SessionID      string
	Answer         *Answer
	UpdatedContent string
	Integrated     bool
	LatencyMS      int
}

type cachedAnswer struct {
	AnswerText string   `json:"answer_text"`
	Confidence float64  `json:"confidence"`
	SourceIDs  []string `json:"source_ids"`
}

func NewEngine(analyzer *Analyzer, searcher *evidence.Searcher, synthesizer *Synthesizer,
	integrator *Integrator, db *sqlite.Client, cache *redis.Client, cfg EngineConfig) *Engine {

	if cfg.AutoIntegrateThreshold == 0 {
		cfg.AutoIntegrateThreshold = 0.75
	}
	if cfg.LatencyEMAAlpha == 0 {
		cfg.LatencyEMAAlpha = 0.2
	}
	if cfg.AnswerCacheTTL == 0 {
		cfg.AnswerCacheTTL = 30 * time.Minute
	}

	return &Engine{
		analyzer:    analyzer,
		searcher:    searcher,
		synthesizer: synthesizer,
		integrator:  integrator,
		db:          db,
		cache:       cache,
		cfg:         cfg,
		latencyEMA:  make(map[string]float64),
	}
}

func (e *Engine) ProcessQuestion(ctx context.Context, req Request) (*Response, error) {
	startTime := time.Now()

	question, err := e.analyzer.Analyze(req.QuestionText, req.ChapterID, req.SectionContext)
	if err != nil {
		return nil, err
	}

	logger.Info("Processing question",
		zap.String("chapter_id", req.ChapterID),
		zap.String("type", string(question.Type)),
		zap.Strings("concepts", question.Concepts),
		zap.Int("urgency", question.Urgency),
	)

	items, err := e.searcher.Search(ctx, evidence.Query{
		Text:     question.Text,
		Concepts: question.Concepts,
	})
	if err != nil {
		// Aggregate cancellation; any partial evidence still produces
		// a degraded answer below.
		logger.Warn("Evidence search incomplete", zap.Error(err))
	}

	answer := e.synthesizer.Synthesize(question, items)

	updatedContent := req.ChapterContent
	integrated := false
	if e.shouldIntegrate(answer) {
		result := e.integrator.Integrate(req.ChapterContent, answer, req.SectionContext)
		updatedContent = result.Content
		answer.Strategy = result.Strategy
		answer.Citations = result.Citations
		integrated = true
	}

	latency := int(time.Since(startTime).Milliseconds())
	e.recordLatency(req.ChapterID, float64(latency))

	metrics.QuestionDuration.WithLabelValues(string(question.Type)).Observe(time.Since(startTime).Seconds())
	metrics.QuestionTotal.WithLabelValues(statusLabel(integrated)).Inc()
	metrics.AnswerConfidence.Observe(answer.Confidence)

	session := &models.QASession{
		ID:            answer.ID,
		UserID:        req.UserID,
		ChapterID:     req.ChapterID,
		QuestionText:  question.Text,
		QuestionType:  string(question.Type),
		AnswerText:    answer.MainText,
		Confidence:    answer.Confidence,
		EvidenceCount: len(answer.EvidencePoints),
		ConflictCount: len(answer.Conflicts),
		Integrated:    integrated,
		Strategy:      string(answer.Strategy),
		LatencyMS:     latency,
		CreatedAt:     time.Now(),
	}

	if err := e.db.InsertQASession(session); err != nil {
		logger.Error("Failed to persist QA session", zap.Error(err))
	}
	for _, citation := range answer.Citations {
		if err := e.db.InsertQACitation(&models.QACitation{
			SessionID:       answer.ID,
			SourceID:        citation.SourceID,
			Title:           citation.Title,
			CredibilityTier: string(citation.Tier),
			InsertionOffset: citation.InsertionOffset,
		}); err != nil {
			logger.Error("Failed to persist citation", zap.Error(err))
		}
	}

	if e.cache != nil {
		sourceIDs := make([]string, 0, len(answer.Citations))
		for _, c := range answer.Citations {
			sourceIDs = append(sourceIDs, c.SourceID)
		}
		key := req.ChapterID + ":" + utils.HashString(question.Text)
		e.cache.WarmAnswer(ctx, key, cachedAnswer{
			AnswerText: answer.MainText,
			Confidence: answer.Confidence,
			SourceIDs:  sourceIDs,
		}, e.cfg.AnswerCacheTTL)
	}

	logger.Info("Question processed",
		zap.String("session_id", answer.ID),
		zap.Float64("confidence", answer.Confidence),
		zap.Bool("integrated", integrated),
		zap.Int("latency_ms", latency),
	)

	return &Response{
		SessionID:      answer.ID,
		Answer:         answer,
		UpdatedContent: updatedContent,
		Integrated:     integrated,
		LatencyMS:      latency,
	}, nil
}

// shouldIntegrate gates automatic document mutation: confidence must
// clear the threshold and no conflict may be pending manual review.
func (e *Engine) shouldIntegrate(answer *Answer) bool {
	if answer.Insufficient || answer.RequiresReview {
		return false
	}
	return answer.Confidence >= e.cfg.AutoIntegrateThreshold
}

func (e *Engine) recordLatency(chapterID string, latencyMS float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.latencyEMA[chapterID]
	if !ok {
		e.latencyEMA[chapterID] = latencyMS
		return
	}
	e.latencyEMA[chapterID] = e.cfg.LatencyEMAAlpha*latencyMS + (1-e.cfg.LatencyEMAAlpha)*prev
}

// LatencyEMA exposes the rolling per-chapter latency for observability.
func (e *Engine) LatencyEMA(chapterID string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latencyEMA[chapterID]
}

func statusLabel(integrated bool) string {
	if integrated {
		return "integrated"
	}
	return "returned"
}
