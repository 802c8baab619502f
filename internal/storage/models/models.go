package models

import "time"

type Chapter struct {
	ID        string
	Title     string
	Category  string
	Content   string
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChapterChunk struct {
	ID          string
	ChapterID   string
	ChunkIndex  int
	Text        string
	EmbeddingID string
	CreatedAt   time.Time
}

type QASession struct {
	ID             string
	UserID         string
	ChapterID      string
	QuestionText   string
	QuestionType   string
	AnswerText     string
	Confidence     float64
	EvidenceCount  int
	ConflictCount  int
	Integrated     bool
	Strategy       string
	LatencyMS      int
	CreatedAt      time.Time
}

type QACitation struct {
	ID              int
	SessionID       string
	SourceID        string
	Title           string
	CredibilityTier string
	InsertionOffset int
}

type Feedback struct {
	ID            int
	SessionID     string
	Helpful       bool
	IssueCategory string
	Comment       string
	CreatedAt     time.Time
}

type Interaction struct {
	ID         string
	UserID     string
	ChapterID  string
	ActionType string
	Payload    string
	CreatedAt  time.Time
}

type BehaviorPattern struct {
	ID              string
	ChapterID       string
	ActionSequence  []string
	Frequency       int
	Confidence      float64
	PredictedAction string
	MinedAt         time.Time
}

type KnowledgeGap struct {
	ID            string
	ChapterID     string
	GapType       string
	Description   string
	Confidence    float64
	PriorityScore float64
	AutoFillable  bool
	FilledAt      *time.Time
	CreatedAt     time.Time
}

type CitationEdge struct {
	ID           int
	SourceID     string
	TargetID     string
	CitationType string
	Strength     float64
	CreatedAt    time.Time
}

type MergeRecord struct {
	ID              string
	ChapterID       string
	UserID          string
	OriginalExcerpt string
	NewExcerpt      string
	ResultingText   string
	Strategy        string
	Confidence      float64
	Applied         bool
	ContentGrowth   float64
	TermDensity     float64
	Readability     float64
	Completeness    float64
	CreatedAt       time.Time
}
