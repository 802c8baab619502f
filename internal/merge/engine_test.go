package merge

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/behavior"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/pkg/config"
)

func testMergeEngine() *Engine {
	return &Engine{
		heuristics: config.HeuristicsConfig{
			DomainConcepts: []string{"vasospasm", "nimodipine"},
			OpposingPairs:  []string{"effective|ineffective", "indicated|contraindicated"},
		},
		defaults: Preferences{
			Strategy:           "balanced",
			AutoApplyThreshold: 0.8,
			ConflictPolicy:     qa.PolicyPreferQuality,
		},
		locks: make(map[string]*sync.Mutex),
		prefs: make(map[string]Preferences),
	}
}

func TestClassifyKinds(t *testing.T) {
	engine := testMergeEngine()
	original := []string{
		"Nimodipine is effective for vasospasm prevention.",
		"Surgical timing remains controversial in elderly patients.",
	}

	tests := []struct {
		name     string
		sentence string
		want     NuanceKind
	}{
		{
			name:     "contradiction on shared concept",
			sentence: "Nimodipine is ineffective for vasospasm prevention.",
			want:     NuanceContradiction,
		},
		{
			name:     "clarification of near-identical sentence",
			sentence: "Surgical timing remains controversial in elderly patients today.",
			want:     NuanceClarification,
		},
		{
			name:     "unrelated sentence is an addition",
			sentence: "Intraoperative neuromonitoring reduces deficits.",
			want:     NuanceAddition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nuances := engine.classify(tt.sentence, original)
			require.Len(t, nuances, 1)
			assert.Equal(t, tt.want, nuances[0].Kind)
		})
	}
}

func TestClassifyExpansion(t *testing.T) {
	engine := testMergeEngine()
	original := []string{"Vasospasm peaks between days four and fourteen after rupture."}

	nuances := engine.classify(
		"Vasospasm peaks later after rupture in smokers and diabetics.",
		original)
	require.Len(t, nuances, 1)

	assert.Equal(t, NuanceExpansion, nuances[0].Kind)
	assert.GreaterOrEqual(t, nuances[0].Similarity, 0.3)
	assert.Less(t, nuances[0].Similarity, 0.7)
}

func TestWeaveSplicesAfterMatchedSentence(t *testing.T) {
	content := "First statement here. Second statement follows."
	nuances := []Nuance{{
		Sentence:        "A clarifying remark.",
		Kind:            NuanceClarification,
		MatchedSentence: "First statement here.",
	}}

	merged, added := weave(content, nuances, nil)

	assert.Contains(t, merged, "First statement here. A clarifying remark. Second statement follows.")
	assert.Equal(t, len(merged)-len(content), added)
}

func TestWeaveCollectsAdditionsInTrailingBlock(t *testing.T) {
	merged, _ := weave("Existing text.", []Nuance{
		{Sentence: "New fact one.", Kind: NuanceAddition},
		{Sentence: "New fact two.", Kind: NuanceAddition},
	}, nil)

	assert.Contains(t, merged, "### Recent Updates")
	assert.Contains(t, merged, "New fact one. New fact two.")
}

func TestWeaveSkipsDroppedSentences(t *testing.T) {
	dropped := map[string]struct{}{"Losing claim.": {}}

	merged, added := weave("Existing text.", []Nuance{
		{Sentence: "Losing claim.", Kind: NuanceContradiction},
	}, dropped)

	assert.Equal(t, "Existing text.", merged)
	assert.Zero(t, added)
}

func TestWeaveFallsBackWhenMatchMissing(t *testing.T) {
	merged, _ := weave("Existing text.", []Nuance{{
		Sentence:        "Orphaned clarification.",
		Kind:            NuanceClarification,
		MatchedSentence: "Sentence that is not there.",
	}}, nil)

	assert.Contains(t, merged, "### Recent Updates")
	assert.Contains(t, merged, "Orphaned clarification.")
}

func TestStrategyForLength(t *testing.T) {
	assert.Equal(t, qa.StrategyInlineExpansion, strategyForLength(0))
	assert.Equal(t, qa.StrategyInlineExpansion, strategyForLength(199))
	assert.Equal(t, qa.StrategyFootnoteAddition, strategyForLength(200))
	assert.Equal(t, qa.StrategyFootnoteAddition, strategyForLength(500))
	assert.Equal(t, qa.StrategySectionCreation, strategyForLength(501))
}

func TestConfidencePenalties(t *testing.T) {
	engine := testMergeEngine()

	assert.InDelta(t, 0.85, engine.confidence(nil, nil), 0.001)

	resolved := []qa.Conflict{{Resolved: true}}
	assert.InDelta(t, 0.8, engine.confidence(nil, resolved), 0.001)

	unresolved := []qa.Conflict{{Resolved: false}}
	assert.InDelta(t, 0.7, engine.confidence(nil, unresolved), 0.001)

	many := make([]qa.Conflict, 10)
	assert.InDelta(t, 0.1, engine.confidence(nil, many), 0.001)
}

func TestGapSubject(t *testing.T) {
	section := models.KnowledgeGap{
		GapType:     behavior.GapMissingSection,
		Description: "Chapter is missing a Complications section",
	}
	assert.Equal(t, "Complications", gapSubject(section))

	concept := models.KnowledgeGap{
		GapType:     behavior.GapConceptCoverage,
		Description: "Expected concept not covered: rebleeding",
	}
	assert.Equal(t, "rebleeding", gapSubject(concept))

	stale := models.KnowledgeGap{GapType: behavior.GapStaleReference}
	assert.Empty(t, gapSubject(stale))
}

func TestPreferencesDefaultsAndOverrides(t *testing.T) {
	engine := testMergeEngine()

	assert.Equal(t, engine.defaults, engine.GetPreferences("ch1"))

	engine.SetPreferences("ch1", Preferences{ConflictPolicy: qa.PolicyPreferRecent})
	prefs := engine.GetPreferences("ch1")

	assert.Equal(t, qa.PolicyPreferRecent, prefs.ConflictPolicy)
	assert.Equal(t, "balanced", prefs.Strategy)
	assert.InDelta(t, 0.8, prefs.AutoApplyThreshold, 0.001)
}

func TestHasUnresolved(t *testing.T) {
	assert.False(t, hasUnresolved(nil))
	assert.False(t, hasUnresolved([]qa.Conflict{{Resolved: true}}))
	assert.True(t, hasUnresolved([]qa.Conflict{{Resolved: true}, {Resolved: false}}))
}
