package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chapter-agent/backend/pkg/config"
)

func testEvaluator() *Evaluator {
	return NewEvaluator(config.HeuristicsConfig{
		DomainConcepts:   []string{"aneurysm", "vasospasm"},
		RequiredSections: []string{"Diagnosis", "Treatment"},
	})
}

func TestOverallAveragesBoundedAxes(t *testing.T) {
	m := QualityMetrics{
		ContentGrowth: 5, // informational, must not affect the score
		TermDensity:   0.6,
		Readability:   0.9,
		Completeness:  0.3,
	}
	assert.InDelta(t, 0.6, m.Overall(), 0.001)
}

func TestGrowth(t *testing.T) {
	assert.Zero(t, growth("", ""))
	assert.Equal(t, 1.0, growth("", "new text"))
	assert.InDelta(t, 0.5, growth("abcd", "abcdef"), 0.001)
	assert.InDelta(t, -0.5, growth("abcd", "ab"), 0.001)
}

func TestTermDensity(t *testing.T) {
	e := testEvaluator()

	assert.Zero(t, e.termDensity(""))
	assert.Zero(t, e.termDensity("Nothing about the domain appears in this passage at all today."))

	// Two mentions in ten words is 20 per hundred, capped at 1.
	dense := "aneurysm vasospasm aneurysm vasospasm aneurysm vasospasm words words words words"
	assert.Equal(t, 1.0, e.termDensity(dense))
}

func TestReadabilityBands(t *testing.T) {
	assert.Zero(t, readability(""))

	short := "One two. Three four."
	assert.InDelta(t, 0.2, readability(short), 0.001)

	balanced := "The middle cerebral artery supplies most of the lateral hemisphere and is a frequent aneurysm site."
	assert.Equal(t, 1.0, readability(balanced))

	runOn := strings.Repeat("word ", 70) + "end."
	assert.Less(t, readability(runOn), 0.5)
}

func TestCompleteness(t *testing.T) {
	e := testEvaluator()

	assert.Zero(t, e.completeness("No headings here."))
	assert.InDelta(t, 0.5, e.completeness("## Diagnosis\n\nSome text."), 0.001)
	assert.Equal(t, 1.0, e.completeness("## Diagnosis\n\nText.\n\n## Treatment\n\nText."))

	empty := NewEvaluator(config.HeuristicsConfig{})
	assert.Equal(t, 1.0, empty.completeness("anything"))
}

func TestEvaluateCombinesAxes(t *testing.T) {
	e := testEvaluator()

	original := "## Diagnosis\n\nAneurysm detection relies on CT angiography in the emergency setting."
	merged := original + "\n\n## Treatment\n\nVasospasm after rupture is managed with nimodipine and hemodynamic support."

	metrics := e.Evaluate(original, merged)
	assert.Greater(t, metrics.ContentGrowth, 0.0)
	assert.Greater(t, metrics.TermDensity, 0.0)
	assert.Equal(t, 1.0, metrics.Completeness)
}
