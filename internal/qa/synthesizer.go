package qa

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/textutil"
	"github.com/chapter-agent/backend/pkg/logger"
)

// Synthesizer turns ranked evidence into a composed answer with a
// confidence score. It never errors: with no usable evidence it returns
// a low-confidence "insufficient evidence" answer.
type Synthesizer struct {
	resolver        *Resolver
	topK            int
	conflictPenalty float64
}

func NewSynthesizer(resolver *Resolver, topK int, conflictPenalty float64) *Synthesizer {
	if topK <= 0 {
		topK = 5
	}
	if conflictPenalty <= 0 {
		conflictPenalty = 0.1
	}
	return &Synthesizer{
		resolver:        resolver,
		topK:            topK,
		conflictPenalty: conflictPenalty,
	}
}

func (s *Synthesizer) Synthesize(question Question, items []evidence.Item) *Answer {
	answer := &Answer{ID: uuid.New().String()}

	if len(items) == 0 {
		answer.MainText = "Insufficient evidence was found to answer this question. Consider rephrasing or consulting primary sources directly."
		answer.Confidence = 0.1
		answer.Insufficient = true
		answer.Strategy = strategyForLength(len(answer.MainText))
		return answer
	}

	points := s.extractPoints(items)
	conflicts, resolved := s.resolver.Resolve(points)

	answer.EvidencePoints = resolved
	answer.Conflicts = conflicts
	answer.MainText = s.compose(question, resolved, conflicts)
	answer.Confidence = s.confidence(resolved, conflicts)
	answer.Strategy = strategyForLength(len(answer.MainText))
	answer.Citations = buildCitations(resolved)
	answer.RequiresReview = hasUnresolved(conflicts)

	logger.Debug("Answer synthesized",
		zap.String("question_type", string(question.Type)),
		zap.Int("evidence_points", len(resolved)),
		zap.Int("conflicts", len(conflicts)),
		zap.Float64("confidence", answer.Confidence),
	)

	return answer
}

// extractPoints takes one statement per top-K item: the first sentence
// of the snippet, or the title when there is no snippet.
func (s *Synthesizer) extractPoints(items []evidence.Item) []EvidencePoint {
	limit := s.topK
	if limit > len(items) {
		limit = len(items)
	}

	points := make([]EvidencePoint, 0, limit)
	for _, item := range items[:limit] {
		statement := item.Title
		if item.Snippet != "" {
			sentences := textutil.SplitSentences(item.Snippet)
			if len(sentences) > 0 {
				statement = sentences[0]
			}
		}

		points = append(points, EvidencePoint{
			Statement:     statement,
			SourceID:      item.SourceID,
			Title:         item.Title,
			Tier:          item.Tier,
			Year:          item.Year,
			CombinedScore: item.CombinedScore,
		})
	}

	return points
}

var typeIntros = map[QuestionType]string{
	TypeDefinition:  "Based on the available evidence, the following defines the topic:",
	TypeExplanation: "The evidence explains this as follows:",
	TypeComparison:  "Comparing the available evidence:",
	TypeProcedure:   "The evidence describes the following approach:",
	TypeEvidence:    "The current evidence base indicates:",
	TypeOther:       "Based on the available evidence:",
}

func (s *Synthesizer) compose(question Question, points []EvidencePoint, conflicts []Conflict) string {
	var b strings.Builder
	b.WriteString(typeIntros[question.Type])

	n := 0
	for _, point := range points {
		if point.SupersededBy != "" {
			continue
		}
		n++
		b.WriteString(fmt.Sprintf(" %s [%d].", strings.TrimRight(point.Statement, "."), n))
	}

	for _, conflict := range conflicts {
		if conflict.Resolved {
			continue
		}
		b.WriteString(fmt.Sprintf(" Note: sources disagree on %s (%s vs %s); both positions are retained for review.",
			conflict.Concept, conflict.TermPair[0], conflict.TermPair[1]))
	}

	return b.String()
}

// confidence grows with evidence count and average combined score, and
// shrinks by a fixed penalty per unresolved conflict, floored at 0.
func (s *Synthesizer) confidence(points []EvidencePoint, conflicts []Conflict) float64 {
	active := 0
	var scoreSum float64
	for _, point := range points {
		if point.SupersededBy == "" {
			active++
			scoreSum += point.CombinedScore
		}
	}

	if active == 0 {
		return 0.1
	}

	avg := scoreSum / float64(active)

	countTerm := float64(active)
	if countTerm > 5 {
		countTerm = 5
	}

	confidence := 0.4 + 0.08*countTerm + 0.4*avg
	if confidence > 1 {
		confidence = 1
	}

	for _, conflict := range conflicts {
		if !conflict.Resolved {
			confidence -= s.conflictPenalty
		}
	}

	if confidence < 0 {
		confidence = 0
	}
	return confidence
}

// strategyForLength buckets the answer length into the integration
// strategy candidate: short answers splice inline, medium become
// footnotes, long ones become new sections.
func strategyForLength(length int) IntegrationStrategy {
	switch {
	case length < 200:
		return StrategyInlineExpansion
	case length <= 500:
		return StrategyFootnoteAddition
	default:
		return StrategySectionCreation
	}
}

func buildCitations(points []EvidencePoint) []Citation {
	citations := make([]Citation, 0, len(points))
	n := 0
	for _, point := range points {
		if point.SupersededBy != "" {
			continue
		}
		n++
		citations = append(citations, Citation{
			Number:   n,
			SourceID: point.SourceID,
			Title:    point.Title,
			Tier:     point.Tier,
		})
	}
	return citations
}

func hasUnresolved(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if !c.Resolved {
			return true
		}
	}
	return false
}
