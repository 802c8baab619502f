package qa

import (
	"strings"

	"github.com/chapter-agent/backend/pkg/config"
)

// Analyzer classifies an incoming question. It never fails: absent
// signal always degrades to a safe default (type "other", urgency 3,
// empty concept set) rather than an error. The only rejected input is an
// empty question, caught at the boundary before the pipeline starts.
type Analyzer struct {
	concepts        []string
	urgencyKeywords []string
}

type typeTemplate struct {
	qtype    QuestionType
	prefixes []string
	anywhere []string
}

// Ordered; first matching template wins.
var typeTemplates = []typeTemplate{
	{TypeDefinition, []string{"what is", "what are", "define"}, nil},
	{TypeComparison, []string{"compare", "which is better"}, []string{" versus ", " vs ", "compared to", "difference between"}},
	{TypeProcedure, []string{"how do i", "how to", "what are the steps"}, []string{"technique for", "approach for", "procedure for"}},
	{TypeExplanation, []string{"why", "how does", "how is", "explain"}, []string{"mechanism of"}},
	{TypeEvidence, []string{"is there evidence", "what does the evidence", "what is the evidence"}, []string{"evidence for", "studies show", "trial", "efficacy of"}},
}

func NewAnalyzer(h config.HeuristicsConfig) *Analyzer {
	return &Analyzer{
		concepts:        lowerAll(h.DomainConcepts),
		urgencyKeywords: lowerAll(h.UrgencyKeywords),
	}
}

func (a *Analyzer) Analyze(text, chapterID, sectionContext string) (Question, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Question{}, ErrEmptyQuestion
	}

	lower := strings.ToLower(trimmed)

	return Question{
		Text:           trimmed,
		Type:           detectType(lower),
		Concepts:       a.extractConcepts(lower),
		Urgency:        a.scoreUrgency(lower),
		ChapterID:      chapterID,
		SectionContext: sectionContext,
	}, nil
}

func detectType(lower string) QuestionType {
	for _, tmpl := range typeTemplates {
		for _, prefix := range tmpl.prefixes {
			if strings.HasPrefix(lower, prefix) {
				return tmpl.qtype
			}
		}
		for _, frag := range tmpl.anywhere {
			if strings.Contains(lower, frag) {
				return tmpl.qtype
			}
		}
	}
	return TypeOther
}

func (a *Analyzer) extractConcepts(lower string) []string {
	var matched []string
	seen := make(map[string]struct{})

	for _, concept := range a.concepts {
		if strings.Contains(lower, concept) {
			if _, ok := seen[concept]; !ok {
				seen[concept] = struct{}{}
				matched = append(matched, concept)
			}
		}
	}

	return matched
}

// scoreUrgency maps keyword hits to a 1-5 scale; 3 is the no-signal
// default.
func (a *Analyzer) scoreUrgency(lower string) int {
	hits := 0
	for _, kw := range a.urgencyKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}

	switch {
	case hits >= 2:
		return 5
	case hits == 1:
		return 4
	default:
		return 3
	}
}

func lowerAll(items []string) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = strings.ToLower(item)
	}
	return out
}
