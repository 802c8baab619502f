package merge

import (
	"strings"

	"github.com/chapter-agent/backend/internal/textutil"
	"github.com/chapter-agent/backend/pkg/config"
)

// QualityMetrics scores a merge result along four axes, each in [0, 1]
// except ContentGrowth which is a raw ratio.
type QualityMetrics struct {
	ContentGrowth float64 `json:"content_growth"`
	TermDensity   float64 `json:"term_density"`
	Readability   float64 `json:"readability"`
	Completeness  float64 `json:"completeness"`
}

// Overall is the scalar quality used for the auto-apply decision:
// the mean of the three bounded axes. Growth is informational only.
func (m QualityMetrics) Overall() float64 {
	return (m.TermDensity + m.Readability + m.Completeness) / 3
}

// Evaluator scores merged chapter text. All measures are heuristic and
// cheap: no model calls.
type Evaluator struct {
	concepts         []string
	requiredSections []string
}

func NewEvaluator(heuristics config.HeuristicsConfig) *Evaluator {
	return &Evaluator{
		concepts:         heuristics.DomainConcepts,
		requiredSections: heuristics.RequiredSections,
	}
}

func (e *Evaluator) Evaluate(original, merged string) QualityMetrics {
	return QualityMetrics{
		ContentGrowth: growth(original, merged),
		TermDensity:   e.termDensity(merged),
		Readability:   readability(merged),
		Completeness:  e.completeness(merged),
	}
}

func growth(original, merged string) float64 {
	if len(original) == 0 {
		if len(merged) == 0 {
			return 0
		}
		return 1
	}
	return float64(len(merged)-len(original)) / float64(len(original))
}

// termDensity is domain-concept mentions per 100 words, capped at 1.
// A chapter saying nothing about its domain scores 0.
func (e *Evaluator) termDensity(text string) float64 {
	words := textutil.Tokenize(text)
	if len(words) == 0 {
		return 0
	}

	lower := strings.ToLower(text)
	mentions := 0
	for _, concept := range e.concepts {
		mentions += strings.Count(lower, strings.ToLower(concept))
	}

	density := float64(mentions) / float64(len(words)) * 100
	if density > 1 {
		density = 1
	}
	return density
}

// readability rewards an average sentence length in the 10-30 word
// band and decays linearly outside it. Crude, but enough to flag merges
// that produced run-on text.
func readability(text string) float64 {
	sentences := textutil.SplitSentences(text)
	if len(sentences) == 0 {
		return 0
	}

	totalWords := 0
	for _, sentence := range sentences {
		totalWords += len(strings.Fields(sentence))
	}
	avg := float64(totalWords) / float64(len(sentences))

	switch {
	case avg >= 10 && avg <= 30:
		return 1
	case avg < 10:
		return avg / 10
	default:
		score := 1 - (avg-30)/30
		if score < 0 {
			score = 0
		}
		return score
	}
}

func (e *Evaluator) completeness(text string) float64 {
	if len(e.requiredSections) == 0 {
		return 1
	}

	lower := strings.ToLower(text)
	present := 0
	for _, section := range e.requiredSections {
		if strings.Contains(lower, strings.ToLower(section)) {
			present++
		}
	}
	return float64(present) / float64(len(e.requiredSections))
}
