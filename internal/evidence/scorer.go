package evidence

import (
	"strings"

	"github.com/chapter-agent/backend/pkg/config"
)

// Scorer classifies a source into a credibility tier from its metadata.
// Rules are ordered, first match wins; a source matching no rule is
// uncertain. Score is a pure function of its input.
type Scorer struct {
	rules []tierRule
}

type tierRule struct {
	tier     Tier
	keywords []string
}

func NewScorer(h config.HeuristicsConfig) *Scorer {
	return &Scorer{
		rules: []tierRule{
			{TierGoldStandard, lowerAll(h.GoldStandardKeywords)},
			{TierHigh, lowerAll(h.HighKeywords)},
			{TierModerate, lowerAll(h.ModerateKeywords)},
			{TierLow, lowerAll(h.LowKeywords)},
		},
	}
}

func (s *Scorer) Score(hit RawHit) Tier {
	haystack := strings.ToLower(hit.Title + " " + hit.Abstract + " " + strings.Join(hit.Keywords, " "))

	for _, rule := range s.rules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.tier
			}
		}
	}

	return TierUncertain
}

func lowerAll(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = strings.ToLower(kw)
	}
	return out
}
