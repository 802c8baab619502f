package behavior

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

// PrefetchFunc is called for each high-scoring anticipated need so the
// caller can warm whatever cache the need points at. Errors are logged
// and skipped.
type PrefetchFunc func(ctx context.Context, need AnticipatedNeed) error

// Workers owns the two background loops: pattern mining and prefetch.
// Each loop runs on its own ticker and survives per-cycle failures by
// logging and retrying on the next tick.
type Workers struct {
	memory          *Memory
	db              *sqlite.Client
	cache           *redis.Client
	anticipation    *AnticipationEngine
	prefetch        PrefetchFunc
	miningInterval  time.Duration
	prefetchEvery   time.Duration
	patternCacheTTL time.Duration
	lookback        time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     sync.WaitGroup
}

func NewWorkers(
	memory *Memory,
	db *sqlite.Client,
	cache *redis.Client,
	anticipation *AnticipationEngine,
	prefetch PrefetchFunc,
	miningInterval, prefetchEvery, patternCacheTTL, lookback time.Duration,
) *Workers {
	if miningInterval == 0 {
		miningInterval = 5 * time.Minute
	}
	if prefetchEvery == 0 {
		prefetchEvery = 5 * time.Minute
	}
	if patternCacheTTL == 0 {
		patternCacheTTL = 30 * time.Minute
	}
	if lookback == 0 {
		lookback = 72 * time.Hour
	}

	return &Workers{
		memory:          memory,
		db:              db,
		cache:           cache,
		anticipation:    anticipation,
		prefetch:        prefetch,
		miningInterval:  miningInterval,
		prefetchEvery:   prefetchEvery,
		patternCacheTTL: patternCacheTTL,
		lookback:        lookback,
		stop:            make(chan struct{}),
	}
}

func (w *Workers) Start() {
	w.done.Add(2)
	go w.miningLoop()
	go w.prefetchLoop()
	logger.Info("behavior workers started",
		zap.Duration("mining_interval", w.miningInterval),
		zap.Duration("prefetch_interval", w.prefetchEvery))
}

// Stop signals both loops and waits for in-flight cycles to finish.
func (w *Workers) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.done.Wait()
}

func (w *Workers) miningLoop() {
	defer w.done.Done()

	ticker := time.NewTicker(w.miningInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mineCycle()
		}
	}
}

// mineCycle recomputes patterns for every chapter with recent activity,
// persists them wholesale, and warms the pattern cache. It also prunes
// interactions that aged past the retention window.
func (w *Workers) mineCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, chapterID := range w.memory.Chapters() {
		patterns := w.memory.MinePatterns(chapterID, w.lookback)

		if err := w.db.ReplaceBehaviorPatterns(chapterID, patterns); err != nil {
			logger.Warn("pattern persistence failed",
				zap.String("chapter_id", chapterID), zap.Error(err))
			metrics.WorkerCycleErrors.WithLabelValues("mining").Inc()
			continue
		}

		if err := w.cache.SetPatterns(ctx, chapterID, patterns, w.patternCacheTTL); err != nil {
			logger.Warn("pattern cache write failed",
				zap.String("chapter_id", chapterID), zap.Error(err))
		}

		metrics.PatternsMinedTotal.Add(float64(len(patterns)))
	}

	if pruned, err := w.db.PruneInteractions(time.Now().Add(-w.lookback)); err != nil {
		logger.Warn("interaction pruning failed", zap.Error(err))
		metrics.WorkerCycleErrors.WithLabelValues("mining").Inc()
	} else if pruned > 0 {
		logger.Info("pruned aged interactions", zap.Int64("count", pruned))
	}
}

func (w *Workers) prefetchLoop() {
	defer w.done.Done()

	ticker := time.NewTicker(w.prefetchEvery)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.prefetchCycle()
		}
	}
}

func (w *Workers) prefetchCycle() {
	if w.prefetch == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, chapterID := range w.memory.Chapters() {
		needs, err := w.anticipation.Anticipate(ctx, chapterID, 5)
		if err != nil {
			logger.Warn("prefetch anticipation failed",
				zap.String("chapter_id", chapterID), zap.Error(err))
			metrics.WorkerCycleErrors.WithLabelValues("prefetch").Inc()
			continue
		}

		for _, need := range needs {
			if need.Score <= 0.7 {
				continue
			}
			if err := w.prefetch(ctx, need); err != nil {
				logger.Warn("prefetch failed",
					zap.String("chapter_id", chapterID),
					zap.String("kind", need.Kind), zap.Error(err))
				metrics.WorkerCycleErrors.WithLabelValues("prefetch").Inc()
			}
		}
	}
}
