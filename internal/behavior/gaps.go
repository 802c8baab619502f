package behavior

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/textutil"
	"github.com/chapter-agent/backend/pkg/config"
	"github.com/chapter-agent/backend/pkg/utils"
)

const (
	GapMissingSection     = "missing_section"
	GapUnansweredQuestion = "unanswered_question"
	GapConceptCoverage    = "concept_coverage"
	GapStaleReference     = "stale_reference"
)

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// GapDetector scans a chapter for knowledge gaps. Detection is pure and
// deterministic: the same chapter and question history always produce
// the same gaps with the same IDs, so repeated scans are idempotent at
// the storage layer.
type GapDetector struct {
	requiredSections []string
	expectedConcepts map[string][]string
	domainConcepts   []string
}

func NewGapDetector(heuristics config.HeuristicsConfig) *GapDetector {
	return &GapDetector{
		requiredSections: heuristics.RequiredSections,
		expectedConcepts: heuristics.ExpectedConcepts,
		domainConcepts:   heuristics.DomainConcepts,
	}
}

// Detect runs all four scans and returns gaps ranked by
// priority x confidence, highest first.
func (d *GapDetector) Detect(chapter models.Chapter, questions []models.QASession) []models.KnowledgeGap {
	now := time.Now()
	lower := strings.ToLower(chapter.Content)

	gaps := d.missingSections(chapter, lower, now)
	gaps = append(gaps, d.unansweredQuestions(chapter, questions, now)...)
	gaps = append(gaps, d.conceptCoverage(chapter, lower, now)...)
	gaps = append(gaps, d.staleReferences(chapter, now)...)

	sort.SliceStable(gaps, func(i, j int) bool {
		return gaps[i].PriorityScore*gaps[i].Confidence > gaps[j].PriorityScore*gaps[j].Confidence
	})

	return gaps
}

func (d *GapDetector) missingSections(chapter models.Chapter, lower string, now time.Time) []models.KnowledgeGap {
	var gaps []models.KnowledgeGap
	for _, section := range d.requiredSections {
		if strings.Contains(lower, strings.ToLower(section)) {
			continue
		}
		gaps = append(gaps, newGap(chapter.ID, GapMissingSection,
			"Chapter is missing a "+section+" section",
			0.85, 0.9, true, now))
	}
	return gaps
}

// unansweredQuestions flags questions the chapter text does not cover:
// fewer than half of the question's domain concepts appear in the
// content. Questions without a recognized concept fall back to token
// overlap of the question text, since interrogative filler would
// otherwise inflate the concept signal.
func (d *GapDetector) unansweredQuestions(chapter models.Chapter, questions []models.QASession, now time.Time) []models.KnowledgeGap {
	var gaps []models.KnowledgeGap
	seen := make(map[string]struct{})

	for _, session := range questions {
		if d.questionCovered(session.QuestionText, chapter.Content) {
			continue
		}

		key := utils.NormalizeTitle(session.QuestionText)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		gaps = append(gaps, newGap(chapter.ID, GapUnansweredQuestion,
			"Chapter does not address: "+session.QuestionText,
			0.9, 0.8, true, now))
	}
	return gaps
}

func (d *GapDetector) questionCovered(question, content string) bool {
	lowerQuestion := strings.ToLower(question)
	lowerContent := strings.ToLower(content)

	mentioned, covered := 0, 0
	for _, concept := range d.domainConcepts {
		lc := strings.ToLower(concept)
		if !strings.Contains(lowerQuestion, lc) {
			continue
		}
		mentioned++
		if strings.Contains(lowerContent, lc) {
			covered++
		}
	}

	if mentioned > 0 {
		return float64(covered)/float64(mentioned) >= 0.5
	}

	return textutil.WordOverlapRatio(question, content) >= 0.5
}

func (d *GapDetector) conceptCoverage(chapter models.Chapter, lower string, now time.Time) []models.KnowledgeGap {
	expected, ok := d.expectedConcepts[strings.ToLower(chapter.Category)]
	if !ok {
		return nil
	}

	var gaps []models.KnowledgeGap
	for _, concept := range expected {
		if strings.Contains(lower, strings.ToLower(concept)) {
			continue
		}
		gaps = append(gaps, newGap(chapter.ID, GapConceptCoverage,
			"Expected concept not covered: "+concept,
			0.7, 0.6, true, now))
	}
	return gaps
}

// staleReferences checks whether the chapter cites anything from the
// last two calendar years. A chapter with no recent year mention likely
// needs a literature refresh.
func (d *GapDetector) staleReferences(chapter models.Chapter, now time.Time) []models.KnowledgeGap {
	currentYear := now.Year()
	for _, match := range yearPattern.FindAllString(chapter.Content, -1) {
		year := 0
		for _, r := range match {
			year = year*10 + int(r-'0')
		}
		if year >= currentYear-2 && year <= currentYear {
			return nil
		}
	}

	return []models.KnowledgeGap{newGap(chapter.ID, GapStaleReference,
		"No evidence from the last two years is referenced",
		0.8, 0.7, false, now)}
}

// newGap derives the ID from the chapter, type, and description so a
// re-scan of unchanged content produces identical gaps.
func newGap(chapterID, gapType, description string, confidence, priority float64, autoFillable bool, now time.Time) models.KnowledgeGap {
	return models.KnowledgeGap{
		ID:            utils.HashString(chapterID + "|" + gapType + "|" + description),
		ChapterID:     chapterID,
		GapType:       gapType,
		Description:   description,
		Confidence:    confidence,
		PriorityScore: priority,
		AutoFillable:  autoFillable,
		CreatedAt:     now,
	}
}
