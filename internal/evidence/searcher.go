package evidence

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/llm"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/pkg/logger"
	"github.com/chapter-agent/backend/pkg/utils"
)

const embeddingCacheTTL = 24 * time.Hour

// Query is what the searcher needs from an analyzed question.
type Query struct {
	Text     string
	Concepts []string
}

// Backend is a single evidence source. A backend failing or timing out
// contributes nothing to the search; it never fails the search itself.
type Backend interface {
	Name() string
	Search(ctx context.Context, q Query, maxResults int) ([]RawHit, error)
}

type SearcherConfig struct {
	MaxResults     int
	ScoreThreshold float64
	BackendTimeout time.Duration
	OverallTimeout time.Duration
}

type Searcher struct {
	backends []Backend
	scorer   *Scorer
	provider llm.GenerationProvider
	cache    *redis.Client
	cfg      SearcherConfig
}

// NewSearcher builds a searcher over the given backends. cache may be nil,
// in which case query embeddings are recomputed on every search.
func NewSearcher(backends []Backend, scorer *Scorer, provider llm.GenerationProvider, cache *redis.Client, cfg SearcherConfig) *Searcher {
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 20
	}
	if cfg.ScoreThreshold == 0 {
		cfg.ScoreThreshold = 0.5
	}
	if cfg.BackendTimeout == 0 {
		cfg.BackendTimeout = 4 * time.Second
	}
	if cfg.OverallTimeout == 0 {
		cfg.OverallTimeout = 10 * time.Second
	}

	return &Searcher{
		backends: backends,
		scorer:   scorer,
		provider: provider,
		cache:    cache,
		cfg:      cfg,
	}
}

// Search fans out to every backend concurrently, scores and filters the
// raw hits, deduplicates by source identity and returns at most
// MaxResults items sorted by combined score. Partial results are returned
// when the aggregate timeout fires.
func (s *Searcher) Search(ctx context.Context, q Query) ([]Item, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OverallTimeout)
	defer cancel()

	var mu sync.Mutex
	var hits []RawHit

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range s.backends {
		backend := backend
		g.Go(func() error {
			bctx, bcancel := context.WithTimeout(gctx, s.cfg.BackendTimeout)
			defer bcancel()

			results, err := backend.Search(bctx, q, s.cfg.MaxResults)
			if err != nil {
				logger.Warn("Evidence backend failed",
					zap.String("backend", backend.Name()),
					zap.Error(err),
				)
				return nil
			}

			metrics.EvidenceResults.WithLabelValues(backend.Name()).Observe(float64(len(results)))

			mu.Lock()
			hits = append(hits, results...)
			mu.Unlock()
			return nil
		})
	}

	// Backend errors are swallowed above; this only returns on context
	// cancellation of the whole group.
	if err := g.Wait(); err != nil && len(hits) == 0 {
		return nil, err
	}

	items := s.scoreHits(ctx, q, hits)
	items = dedupe(items)

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CombinedScore > items[j].CombinedScore
	})

	if len(items) > s.cfg.MaxResults {
		items = items[:s.cfg.MaxResults]
	}

	logger.Info("Evidence search completed",
		zap.String("query", q.Text),
		zap.Int("raw_hits", len(hits)),
		zap.Int("results", len(items)),
	)

	return items, nil
}

func (s *Searcher) scoreHits(ctx context.Context, q Query, hits []RawHit) []Item {
	relevances := s.relevanceScores(ctx, q, hits)

	items := make([]Item, 0, len(hits))
	for i, hit := range hits {
		tier := s.scorer.Score(hit)
		combined := relevances[i] * tier.Weight()

		if tier == TierUncertain || combined < s.cfg.ScoreThreshold {
			continue
		}

		items = append(items, Item{
			SourceID:      hit.SourceID,
			Title:         hit.Title,
			Snippet:       hit.Abstract,
			Year:          hit.Year,
			DOI:           hit.DOI,
			PMID:          hit.PMID,
			Backend:       hit.Backend,
			Tier:          tier,
			Relevance:     relevances[i],
			CombinedScore: combined,
		})
	}

	return items
}

func (s *Searcher) relevanceScores(ctx context.Context, q Query, hits []RawHit) []float64 {
	scores := make([]float64, len(hits))
	if len(hits) == 0 {
		return scores
	}

	queryText := q.Text
	if len(q.Concepts) > 0 {
		queryText += " " + strings.Join(q.Concepts, " ")
	}

	queryEmb, err := s.queryEmbedding(ctx, queryText)
	if err == nil {
		texts := make([]string, len(hits))
		for i, hit := range hits {
			texts[i] = hit.Title + " " + hit.Abstract
		}

		hitEmbs, batchErr := s.provider.GenerateBatchEmbeddings(ctx, texts)
		if batchErr == nil && len(hitEmbs) == len(hits) {
			for i := range hits {
				scores[i] = CosineSimilarity(queryEmb, hitEmbs[i])
			}
			return scores
		}
		err = batchErr
	}

	logger.Debug("Falling back to lexical relevance", zap.Error(err))

	for i, hit := range hits {
		scores[i] = TokenOverlap(queryText, hit.Title+" "+hit.Abstract)
	}
	return scores
}

// queryEmbedding resolves the query vector through the embedding cache
// when one is configured. Hit texts are not cached: they change with
// every search, the query text repeats across a session.
func (s *Searcher) queryEmbedding(ctx context.Context, queryText string) ([]float32, error) {
	if s.cache == nil {
		return s.provider.GenerateEmbedding(ctx, queryText)
	}

	textHash := utils.HashString(queryText)
	if emb, ok, err := s.cache.GetEmbedding(ctx, textHash); err == nil && ok {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return emb, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	emb, err := s.provider.GenerateEmbedding(ctx, queryText)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetEmbedding(ctx, textHash, emb, embeddingCacheTTL); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return emb, nil
}

// dedupe drops later duplicates of the same source: same DOI or PMID, or
// a normalized-identical title. Earlier (higher-scored after sort is
// applied later, so order here is arrival order) duplicates keep the
// higher combined score.
func dedupe(items []Item) []Item {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CombinedScore > items[j].CombinedScore
	})

	seen := make(map[string]struct{})
	out := make([]Item, 0, len(items))

	for _, item := range items {
		var key string
		switch {
		case item.DOI != "":
			key = "doi:" + strings.ToLower(item.DOI)
		case item.PMID != "":
			key = "pmid:" + item.PMID
		default:
			key = "title:" + utils.NormalizeTitle(item.Title)
		}

		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}

	return out
}
