package qa

import (
	"errors"

	"github.com/chapter-agent/backend/internal/evidence"
)

var ErrEmptyQuestion = errors.New("question text is empty")

type QuestionType string

const (
	TypeDefinition  QuestionType = "definition"
	TypeExplanation QuestionType = "explanation"
	TypeComparison  QuestionType = "comparison"
	TypeProcedure   QuestionType = "procedure"
	TypeEvidence    QuestionType = "evidence"
	TypeOther       QuestionType = "other"
)

// Question is an analyzed query. Immutable once produced.
type Question struct {
	Text           string
	Type           QuestionType
	Concepts       []string
	Urgency        int
	ChapterID      string
	SectionContext string
}

// EvidencePoint is one extracted statement from an evidence item. A
// point on the losing side of a resolved conflict keeps SupersededBy set
// instead of being dropped.
type EvidencePoint struct {
	Statement     string
	SourceID      string
	Title         string
	Tier          evidence.Tier
	Year          int
	CombinedScore float64
	SupersededBy  string
}

type ConflictReason string

const (
	ReasonHigherCredibility ConflictReason = "higher_credibility"
	ReasonMoreRecent        ConflictReason = "more_recent"
	ReasonManualFlag        ConflictReason = "manual_flag"
)

type ConflictPolicy string

const (
	PolicyPreferQuality ConflictPolicy = "prefer_quality"
	PolicyPreferRecent  ConflictPolicy = "prefer_recent"
	PolicyManual        ConflictPolicy = "manual"
)

type Conflict struct {
	StatementA   EvidencePoint
	StatementB   EvidencePoint
	TermPair     [2]string
	Concept      string
	Resolved     bool
	WinnerSource string
	Reason       ConflictReason
}

type IntegrationStrategy string

const (
	StrategyInlineExpansion     IntegrationStrategy = "inline_expansion"
	StrategyFootnoteAddition    IntegrationStrategy = "footnote_addition"
	StrategyParentheticalInsert IntegrationStrategy = "parenthetical_insert"
	StrategySectionCreation     IntegrationStrategy = "section_creation"
	StrategySidebarNote         IntegrationStrategy = "sidebar_note"
	StrategyAppendixAddition    IntegrationStrategy = "appendix_addition"
)

type Citation struct {
	Number          int
	SourceID        string
	Title           string
	Tier            evidence.Tier
	InsertionOffset int
}

type Answer struct {
	ID             string
	MainText       string
	EvidencePoints []EvidencePoint
	Conflicts      []Conflict
	Confidence     float64
	Strategy       IntegrationStrategy
	Citations      []Citation
	Insufficient   bool
	RequiresReview bool
}
