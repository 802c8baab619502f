package behavior

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chapter-agent/backend/internal/storage/models"
)

// Memory is the in-process interaction store: an append-only per-chapter
// window pruned by age. Request handlers append; the mining worker
// reads. Appends never block on long reads thanks to the RWMutex split,
// and readers tolerate slightly stale data.
type Memory struct {
	mu            sync.RWMutex
	byChapter     map[string][]models.Interaction
	retention     time.Duration
	maxPerChapter int
	minSupport    int
}

func NewMemory(retention time.Duration, maxPerChapter, minSupport int) *Memory {
	if retention == 0 {
		retention = 72 * time.Hour
	}
	if maxPerChapter == 0 {
		maxPerChapter = 5000
	}
	if minSupport == 0 {
		minSupport = 3
	}

	return &Memory{
		byChapter:     make(map[string][]models.Interaction),
		retention:     retention,
		maxPerChapter: maxPerChapter,
		minSupport:    minSupport,
	}
}

func (m *Memory) Append(interaction models.Interaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := m.byChapter[interaction.ChapterID]
	window = append(window, interaction)
	window = m.prune(window)
	m.byChapter[interaction.ChapterID] = window
}

// prune drops aged-out entries and caps the window size. Caller holds
// the write lock.
func (m *Memory) prune(window []models.Interaction) []models.Interaction {
	cutoff := time.Now().Add(-m.retention)

	start := 0
	for start < len(window) && window[start].CreatedAt.Before(cutoff) {
		start++
	}
	window = window[start:]

	if len(window) > m.maxPerChapter {
		window = window[len(window)-m.maxPerChapter:]
	}

	return window
}

func (m *Memory) Snapshot(chapterID string, lookback time.Duration) []models.Interaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	window := m.byChapter[chapterID]
	cutoff := time.Now().Add(-lookback)

	out := make([]models.Interaction, 0, len(window))
	for _, interaction := range window {
		if !interaction.CreatedAt.Before(cutoff) {
			out = append(out, interaction)
		}
	}
	return out
}

func (m *Memory) Chapters() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chapters := make([]string, 0, len(m.byChapter))
	for id := range m.byChapter {
		chapters = append(chapters, id)
	}
	sort.Strings(chapters)
	return chapters
}

// MinePatterns recomputes pairwise action transitions over the lookback
// window. Patterns are rebuilt from scratch every cycle, never updated
// incrementally. Confidence is min(0.9, frequency/10).
func (m *Memory) MinePatterns(chapterID string, lookback time.Duration) []models.BehaviorPattern {
	interactions := m.Snapshot(chapterID, lookback)
	if len(interactions) < 2 {
		return nil
	}

	sort.SliceStable(interactions, func(i, j int) bool {
		return interactions[i].CreatedAt.Before(interactions[j].CreatedAt)
	})

	transitions := make(map[[2]string]int)
	for i := 0; i+1 < len(interactions); i++ {
		key := [2]string{interactions[i].ActionType, interactions[i+1].ActionType}
		transitions[key]++
	}

	now := time.Now()
	patterns := make([]models.BehaviorPattern, 0)
	for seq, freq := range transitions {
		if freq < m.minSupport {
			continue
		}

		confidence := float64(freq) / 10
		if confidence > 0.9 {
			confidence = 0.9
		}

		patterns = append(patterns, models.BehaviorPattern{
			ID:              uuid.New().String(),
			ChapterID:       chapterID,
			ActionSequence:  []string{seq[0], seq[1]},
			Frequency:       freq,
			Confidence:      confidence,
			PredictedAction: seq[1],
			MinedAt:         now,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Frequency > patterns[j].Frequency
	})

	return patterns
}
