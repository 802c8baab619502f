package evolution

import (
	"time"

	"github.com/chapter-agent/backend/internal/merge"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
)

// Health is the composite wellness report for a chapter. Every axis and
// the overall score sit in [0, 1].
type Health struct {
	QAActivity         float64 `json:"qa_activity"`
	CitationHealth     float64 `json:"citation_health"`
	BehavioralInsights float64 `json:"behavioral_insights"`
	ContentQuality     float64 `json:"content_quality"`
	Overall            float64 `json:"overall"`
	OpenGaps           int     `json:"open_gaps"`
	SessionCount       int     `json:"session_count_30d"`
}

// HealthChecker derives chapter health from stored activity: recent QA
// sessions, the citation edge set, open gaps, and the text itself.
type HealthChecker struct {
	db        *sqlite.Client
	evaluator *merge.Evaluator
}

func NewHealthChecker(db *sqlite.Client, evaluator *merge.Evaluator) *HealthChecker {
	return &HealthChecker{db: db, evaluator: evaluator}
}

func (h *HealthChecker) Check(chapter models.Chapter) (Health, error) {
	health := Health{}

	count, avgConfidence, err := h.db.CountQASessionsSince(chapter.ID, time.Now().AddDate(0, 0, -30))
	if err != nil {
		return health, err
	}
	health.SessionCount = count

	// Activity saturates at 20 sessions a month; confidence of those
	// answers carries equal weight.
	activity := float64(count) / 20
	if activity > 1 {
		activity = 1
	}
	health.QAActivity = 0.5*activity + 0.5*avgConfidence

	edges, err := h.db.GetCitationEdges(chapter.ID)
	if err != nil {
		return health, err
	}
	health.CitationHealth = citationHealth(edges)

	gaps, err := h.db.GetOpenGaps(chapter.ID)
	if err != nil {
		return health, err
	}
	health.OpenGaps = len(gaps)
	health.BehavioralInsights = 1 - float64(len(gaps))/10
	if health.BehavioralInsights < 0 {
		health.BehavioralInsights = 0
	}

	quality := h.evaluator.Evaluate(chapter.Content, chapter.Content)
	health.ContentQuality = quality.Overall()

	health.Overall = (health.QAActivity + health.CitationHealth +
		health.BehavioralInsights + health.ContentQuality) / 4

	return health, nil
}

// citationHealth rewards edge count up to ten and the share of
// literature edges over chapter cross-references.
func citationHealth(edges []models.CitationEdge) float64 {
	if len(edges) == 0 {
		return 0
	}

	volume := float64(len(edges)) / 10
	if volume > 1 {
		volume = 1
	}

	literature := 0
	for _, edge := range edges {
		if edge.CitationType == "literature" {
			literature++
		}
	}

	return 0.6*volume + 0.4*float64(literature)/float64(len(edges))
}
