package qa

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/evidence"
)

func newTestSynthesizer(policy ConflictPolicy) *Synthesizer {
	return NewSynthesizer(NewResolver(testHeuristics(), policy), 5, 0.1)
}

func evidenceItems(scores ...float64) []evidence.Item {
	items := make([]evidence.Item, len(scores))
	for i, score := range scores {
		items[i] = evidence.Item{
			SourceID:      "pmid:" + strings.Repeat("1", i+1),
			Title:         "Study of craniotomy outcomes",
			Snippet:       "Craniotomy outcomes improve with standardized protocols.",
			Tier:          evidence.TierHigh,
			CombinedScore: score,
		}
	}
	return items
}

func TestSynthesizeNoEvidence(t *testing.T) {
	answer := newTestSynthesizer(PolicyPreferQuality).Synthesize(Question{Type: TypeOther}, nil)

	assert.True(t, answer.Insufficient)
	assert.Equal(t, 0.1, answer.Confidence)
	assert.Contains(t, answer.MainText, "Insufficient evidence")
	assert.Empty(t, answer.Citations)
}

func TestSynthesizeConfidenceFormula(t *testing.T) {
	synth := newTestSynthesizer(PolicyPreferQuality)

	// One item at score 0.8: 0.4 + 0.08*1 + 0.4*0.8 = 0.8.
	answer := synth.Synthesize(Question{Type: TypeOther}, evidenceItems(0.8))
	assert.InDelta(t, 0.8, answer.Confidence, 0.001)

	// Count term saturates at five items.
	answer = synth.Synthesize(Question{Type: TypeOther}, evidenceItems(0.8, 0.8, 0.8, 0.8, 0.8))
	assert.InDelta(t, 0.4+0.08*5+0.4*0.8, answer.Confidence, 0.001)
}

func TestSynthesizeConfidenceGrowsWithEvidence(t *testing.T) {
	synth := newTestSynthesizer(PolicyPreferQuality)

	one := synth.Synthesize(Question{Type: TypeOther}, evidenceItems(0.7))
	three := synth.Synthesize(Question{Type: TypeOther}, evidenceItems(0.7, 0.7, 0.7))
	assert.Greater(t, three.Confidence, one.Confidence)
}

func TestSynthesizeUnresolvedConflictPenalty(t *testing.T) {
	clean := newTestSynthesizer(PolicyPreferQuality).Synthesize(Question{Type: TypeOther}, []evidence.Item{
		{SourceID: "a", Title: "A", Snippet: "Nimodipine is effective for vasospasm.", Tier: evidence.TierHigh, CombinedScore: 0.8},
		{SourceID: "b", Title: "B", Snippet: "Nimodipine reduces vasospasm severity.", Tier: evidence.TierHigh, CombinedScore: 0.8},
	})

	conflicted := newTestSynthesizer(PolicyManual).Synthesize(Question{Type: TypeOther}, []evidence.Item{
		{SourceID: "a", Title: "A", Snippet: "Nimodipine is effective for vasospasm.", Tier: evidence.TierHigh, CombinedScore: 0.8},
		{SourceID: "b", Title: "B", Snippet: "Nimodipine is ineffective for vasospasm.", Tier: evidence.TierHigh, CombinedScore: 0.8},
	})

	assert.InDelta(t, clean.Confidence-0.1, conflicted.Confidence, 0.001)
	assert.True(t, conflicted.RequiresReview)
	assert.False(t, clean.RequiresReview)
	assert.Contains(t, conflicted.MainText, "sources disagree")
}

func TestSynthesizeSupersededExcludedFromTextAndCitations(t *testing.T) {
	answer := newTestSynthesizer(PolicyPreferQuality).Synthesize(Question{Type: TypeOther}, []evidence.Item{
		{SourceID: "strong", Title: "Strong", Snippet: "Nimodipine is effective for vasospasm.", Tier: evidence.TierGoldStandard, CombinedScore: 0.9},
		{SourceID: "weak", Title: "Weak", Snippet: "Nimodipine is ineffective for vasospasm.", Tier: evidence.TierLow, CombinedScore: 0.5},
	})

	// Both points are retained in the answer structure.
	require.Len(t, answer.EvidencePoints, 2)

	// Only the winner is cited and composed.
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "strong", answer.Citations[0].SourceID)
	assert.NotContains(t, answer.MainText, "ineffective")
	assert.False(t, answer.RequiresReview)
}

func TestStrategyForLengthBoundaries(t *testing.T) {
	assert.Equal(t, StrategyInlineExpansion, strategyForLength(150))
	assert.Equal(t, StrategyInlineExpansion, strategyForLength(199))
	assert.Equal(t, StrategyFootnoteAddition, strategyForLength(200))
	assert.Equal(t, StrategyFootnoteAddition, strategyForLength(500))
	assert.Equal(t, StrategySectionCreation, strategyForLength(501))
	assert.Equal(t, StrategySectionCreation, strategyForLength(700))
}

func TestSynthesizeNumbersCitationsSequentially(t *testing.T) {
	answer := newTestSynthesizer(PolicyPreferQuality).Synthesize(Question{Type: TypeEvidence}, evidenceItems(0.9, 0.8, 0.7))

	require.Len(t, answer.Citations, 3)
	for i, citation := range answer.Citations {
		assert.Equal(t, i+1, citation.Number)
	}
	assert.Contains(t, answer.MainText, "[1]")
	assert.Contains(t, answer.MainText, "[3]")
}
