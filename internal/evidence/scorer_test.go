package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chapter-agent/backend/pkg/config"
)

func testHeuristics() config.HeuristicsConfig {
	return config.HeuristicsConfig{
		GoldStandardKeywords: []string{"systematic review", "meta-analysis"},
		HighKeywords:         []string{"randomized controlled trial", "rct"},
		ModerateKeywords:     []string{"cohort study", "case-control"},
		LowKeywords:          []string{"case report", "expert opinion"},
	}
}

func TestScorerTierClassification(t *testing.T) {
	scorer := NewScorer(testHeuristics())

	cases := []struct {
		name string
		hit  RawHit
		want Tier
	}{
		{
			name: "meta-analysis in title",
			hit:  RawHit{Title: "Aneurysm clipping: a meta-analysis"},
			want: TierGoldStandard,
		},
		{
			name: "rct in keywords",
			hit:  RawHit{Title: "Clipping vs coiling", Keywords: []string{"RCT", "aneurysm"}},
			want: TierHigh,
		},
		{
			name: "cohort in abstract",
			hit:  RawHit{Title: "Outcomes", Abstract: "A retrospective cohort study of 200 patients."},
			want: TierModerate,
		},
		{
			name: "case report",
			hit:  RawHit{Title: "An unusual presentation: case report"},
			want: TierLow,
		},
		{
			name: "no signal",
			hit:  RawHit{Title: "Thoughts on neurosurgery"},
			want: TierUncertain,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scorer.Score(tc.hit))
		})
	}
}

func TestScorerFirstMatchWins(t *testing.T) {
	scorer := NewScorer(testHeuristics())

	// Matches both gold and low keywords; the stronger rule is ordered
	// first and must win.
	hit := RawHit{Title: "Systematic review of case report literature"}
	assert.Equal(t, TierGoldStandard, scorer.Score(hit))
}

func TestScorerIsPure(t *testing.T) {
	scorer := NewScorer(testHeuristics())
	hit := RawHit{Title: "Cohort study of shunt infections"}

	first := scorer.Score(hit)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, scorer.Score(hit))
	}
}

func TestTierWeights(t *testing.T) {
	assert.Equal(t, 1.0, TierGoldStandard.Weight())
	assert.Equal(t, 0.9, TierHigh.Weight())
	assert.Equal(t, 0.7, TierModerate.Weight())
	assert.Equal(t, 0.5, TierLow.Weight())
	assert.Equal(t, 0.0, TierUncertain.Weight())
}
