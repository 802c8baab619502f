package behavior

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/storage/models"
)

func interactionAt(chapterID, action string, at time.Time) models.Interaction {
	return models.Interaction{
		ID:         fmt.Sprintf("%s-%s-%d", chapterID, action, at.UnixNano()),
		ChapterID:  chapterID,
		ActionType: action,
		CreatedAt:  at,
	}
}

func TestMemoryAppendAndSnapshot(t *testing.T) {
	memory := NewMemory(time.Hour, 100, 3)
	now := time.Now()

	memory.Append(interactionAt("ch1", "read", now.Add(-2*time.Hour)))
	memory.Append(interactionAt("ch1", "read", now.Add(-10*time.Minute)))
	memory.Append(interactionAt("ch2", "edit", now))

	recent := memory.Snapshot("ch1", 30*time.Minute)
	assert.Len(t, recent, 1)

	assert.ElementsMatch(t, []string{"ch1", "ch2"}, memory.Chapters())
}

func TestMemoryCapsWindowSize(t *testing.T) {
	memory := NewMemory(time.Hour, 5, 3)
	now := time.Now()

	for i := 0; i < 20; i++ {
		memory.Append(interactionAt("ch1", "read", now.Add(time.Duration(i)*time.Second)))
	}

	assert.Len(t, memory.Snapshot("ch1", time.Hour), 5)
}

func TestMinePatternsRequiresMinSupport(t *testing.T) {
	memory := NewMemory(time.Hour, 100, 3)
	now := time.Now()

	// read->edit happens three times, edit->read twice.
	sequence := []string{"read", "edit", "read", "edit", "read", "edit"}
	for i, action := range sequence {
		memory.Append(interactionAt("ch1", action, now.Add(time.Duration(i)*time.Minute)))
	}

	patterns := memory.MinePatterns("ch1", time.Hour)
	require.Len(t, patterns, 1)

	assert.Equal(t, []string{"read", "edit"}, patterns[0].ActionSequence)
	assert.Equal(t, 3, patterns[0].Frequency)
	assert.Equal(t, "edit", patterns[0].PredictedAction)
	assert.InDelta(t, 0.3, patterns[0].Confidence, 0.001)
}

func TestMinePatternsConfidenceCap(t *testing.T) {
	memory := NewMemory(time.Hour, 1000, 3)
	now := time.Now()

	// 30 read->edit transitions would give 3.0 uncapped.
	for i := 0; i < 30; i++ {
		memory.Append(interactionAt("ch1", "read", now.Add(time.Duration(2*i)*time.Second)))
		memory.Append(interactionAt("ch1", "edit", now.Add(time.Duration(2*i+1)*time.Second)))
	}

	patterns := memory.MinePatterns("ch1", time.Hour)
	require.NotEmpty(t, patterns)
	for _, p := range patterns {
		assert.LessOrEqual(t, p.Confidence, 0.9)
	}
}

func TestMinePatternsTooFewInteractions(t *testing.T) {
	memory := NewMemory(time.Hour, 100, 3)
	memory.Append(interactionAt("ch1", "read", time.Now()))

	assert.Empty(t, memory.MinePatterns("ch1", time.Hour))
}
