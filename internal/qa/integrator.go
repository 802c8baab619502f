package qa

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/textutil"
	"github.com/chapter-agent/backend/pkg/logger"
)

// Integrator splices a synthesized answer into document text. The
// strategy candidate comes from the answer's length bucket; when no
// sensible insertion point exists the strategy degrades to an appendix
// append. Integration never fails outright.
type Integrator struct{}

func NewIntegrator() *Integrator {
	return &Integrator{}
}

type IntegrationResult struct {
	Content   string
	Strategy  IntegrationStrategy
	Offset    int
	Citations []Citation
}

func (ig *Integrator) Integrate(content string, answer *Answer, sectionContext string) IntegrationResult {
	strategy := answer.Strategy

	sectionStart, sectionEnd := findSection(content, sectionContext)
	if sectionStart < 0 {
		strategy = StrategyAppendixAddition
	}

	var result IntegrationResult
	switch strategy {
	case StrategyInlineExpansion, StrategyParentheticalInsert:
		result = ig.spliceAfterSentence(content, answer, sectionStart, sectionEnd, strategy)
	case StrategyFootnoteAddition:
		result = ig.addFootnote(content, answer, sectionStart, sectionEnd)
	case StrategySectionCreation, StrategySidebarNote:
		result = ig.appendToSection(content, answer, sectionEnd, strategy)
	default:
		result = ig.appendAppendix(content, answer)
	}

	result.Citations = renumberAtOffset(answer.Citations, result.Offset)

	logger.Debug("Answer integrated",
		zap.String("strategy", string(result.Strategy)),
		zap.Int("offset", result.Offset),
	)

	return result
}

// spliceAfterSentence inserts the answer directly after the sentence in
// the target section with the highest lexical overlap with the answer.
func (ig *Integrator) spliceAfterSentence(content string, answer *Answer, start, end int, strategy IntegrationStrategy) IntegrationResult {
	offset := bestSentenceEnd(content[start:end], answer.MainText)
	if offset < 0 {
		return ig.appendAppendix(content, answer)
	}
	offset += start

	insertion := " " + answer.MainText
	if strategy == StrategyParentheticalInsert {
		insertion = " (" + answer.MainText + ")"
	}
	insertion += citationMarkers(answer.Citations)

	return IntegrationResult{
		Content:  content[:offset] + insertion + content[offset:],
		Strategy: strategy,
		Offset:   offset,
	}
}

func (ig *Integrator) addFootnote(content string, answer *Answer, start, end int) IntegrationResult {
	offset := bestSentenceEnd(content[start:end], answer.MainText)
	if offset < 0 {
		return ig.appendAppendix(content, answer)
	}
	offset += start

	marker := "[^note]"
	footnote := "\n\n[^note]: " + answer.MainText + citationMarkers(answer.Citations)

	return IntegrationResult{
		Content:  content[:offset] + marker + content[offset:] + footnote,
		Strategy: StrategyFootnoteAddition,
		Offset:   offset,
	}
}

func (ig *Integrator) appendToSection(content string, answer *Answer, sectionEnd int, strategy IntegrationStrategy) IntegrationResult {
	var block string
	if strategy == StrategySidebarNote {
		block = "\n\n> " + answer.MainText + citationMarkers(answer.Citations) + "\n"
	} else {
		block = "\n\n### Additional Evidence\n\n" + answer.MainText + citationMarkers(answer.Citations) + "\n"
	}

	return IntegrationResult{
		Content:  content[:sectionEnd] + block + content[sectionEnd:],
		Strategy: strategy,
		Offset:   sectionEnd,
	}
}

func (ig *Integrator) appendAppendix(content string, answer *Answer) IntegrationResult {
	block := "\n\n## Appendix\n\n" + answer.MainText + citationMarkers(answer.Citations) + "\n"

	return IntegrationResult{
		Content:  content + block,
		Strategy: StrategyAppendixAddition,
		Offset:   len(content),
	}
}

// findSection locates the body of the named section: from its heading
// line to the next heading or end of document. Returns (-1, -1) when the
// section cannot be matched.
func findSection(content, sectionContext string) (int, int) {
	if strings.TrimSpace(sectionContext) == "" {
		return -1, -1
	}

	lowerContext := strings.ToLower(sectionContext)
	lines := strings.Split(content, "\n")

	pos := 0
	start := -1
	for _, line := range lines {
		lineLen := len(line) + 1

		if start < 0 {
			if isHeading(line) && strings.Contains(strings.ToLower(line), lowerContext) {
				start = pos + lineLen
			}
		} else if isHeading(line) {
			return start, pos
		}

		pos += lineLen
	}

	if start < 0 {
		return -1, -1
	}
	if start > len(content) {
		start = len(content)
	}
	return start, len(content)
}

func isHeading(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "#") {
		return true
	}
	// Short capitalized lines without terminal punctuation read as
	// headings in plain-text chapters.
	return len(trimmed) < 60 && !strings.ContainsAny(trimmed, ".!?,") &&
		trimmed[0] >= 'A' && trimmed[0] <= 'Z'
}

// bestSentenceEnd returns the offset (relative to section) just past the
// end of the sentence with the highest token overlap with the answer, or
// -1 when nothing overlaps at all.
func bestSentenceEnd(section, answerText string) int {
	sentences := textutil.SplitSentences(section)
	if len(sentences) == 0 {
		return -1
	}

	bestScore := 0.0
	bestSentence := ""
	for _, sentence := range sentences {
		score := textutil.WordOverlapRatio(answerText, sentence)
		if score > bestScore {
			bestScore = score
			bestSentence = sentence
		}
	}

	if bestScore == 0 {
		return -1
	}

	idx := strings.Index(section, bestSentence)
	if idx < 0 {
		return -1
	}
	return idx + len(bestSentence)
}

func citationMarkers(citations []Citation) string {
	if len(citations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(" ")
	for _, c := range citations {
		b.WriteString(fmt.Sprintf("[%d]", c.Number))
	}
	return b.String()
}

func renumberAtOffset(citations []Citation, offset int) []Citation {
	out := make([]Citation, len(citations))
	copy(out, citations)
	for i := range out {
		out[i].InsertionOffset = offset
	}
	return out
}
