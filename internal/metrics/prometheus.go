package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chapter_qa_question_duration_seconds",
			Help:    "End-to-end question processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"question_type"},
	)

	QuestionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_qa_question_total",
			Help: "Total number of questions processed",
		},
		[]string{"status"},
	)

	AnswerConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chapter_qa_answer_confidence",
			Help:    "Synthesized answer confidence scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	EvidenceResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chapter_qa_evidence_results",
			Help:    "Number of evidence items returned per backend",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		},
		[]string{"backend"},
	)

	ConflictsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_qa_conflicts_total",
			Help: "Total evidence conflicts detected",
		},
		[]string{"resolved"},
	)

	MergesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_merge_total",
			Help: "Total merge operations",
		},
		[]string{"status"},
	)

	MergeQuality = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chapter_merge_quality_score",
			Help:    "Overall merge quality scores",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	GapsDetected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_gaps_detected_total",
			Help: "Total knowledge gaps detected",
		},
		[]string{"gap_type"},
	)

	PatternsMinedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chapter_patterns_mined_total",
			Help: "Total behavior patterns produced by mining cycles",
		},
	)

	WorkerCycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_worker_cycle_errors_total",
			Help: "Background worker cycles that ended in error",
		},
		[]string{"worker"},
	)

	CitationEdgesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chapter_citation_edges_total",
			Help: "Citation edges currently stored",
		},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chapter_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	UserSatisfaction = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chapter_qa_satisfaction_score",
			Help: "User feedback satisfaction score",
		},
		[]string{"helpful"},
	)
)

func Init() {
	prometheus.MustRegister(QuestionDuration)
	prometheus.MustRegister(QuestionTotal)
	prometheus.MustRegister(AnswerConfidence)
	prometheus.MustRegister(EvidenceResults)
	prometheus.MustRegister(ConflictsDetected)
	prometheus.MustRegister(MergesTotal)
	prometheus.MustRegister(MergeQuality)
	prometheus.MustRegister(GapsDetected)
	prometheus.MustRegister(PatternsMinedTotal)
	prometheus.MustRegister(WorkerCycleErrors)
	prometheus.MustRegister(CitationEdgesTotal)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(UserSatisfaction)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
