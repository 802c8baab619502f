package citation

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/textutil"
)

// Suggestion is a candidate citation with its proposed insertion point.
type Suggestion struct {
	SourceID       string        `json:"source_id"`
	Title          string        `json:"title"`
	Tier           evidence.Tier `json:"credibility_tier"`
	Year           int           `json:"year,omitempty"`
	Score          float64       `json:"score"`
	SentenceIndex  int           `json:"sentence_index"`
	TargetSentence string        `json:"target_sentence"`
}

// evidenceQuestionTypes maps question types whose answers lean on
// study-level evidence. A candidate from a strong tier gets the type
// bonus only for these.
var evidenceQuestionTypes = map[string]struct{}{
	"evidence":   {},
	"comparison": {},
	"procedure":  {},
}

// Suggester scores candidate citations against a passage of chapter
// text. It remembers what it recently suggested so the same source is
// not pushed again within the cooldown window unless it scores near
// perfect.
type Suggester struct {
	cutoff   float64
	maxOut   int
	cooldown time.Duration

	mu        sync.Mutex
	lastCited map[string]time.Time
	nowFn     func() time.Time
}

func NewSuggester(cutoff float64, maxSuggestions int, cooldown time.Duration) *Suggester {
	if cutoff == 0 {
		cutoff = 0.5
	}
	if maxSuggestions == 0 {
		maxSuggestions = 10
	}
	if cooldown == 0 {
		cooldown = time.Hour
	}
	return &Suggester{
		cutoff:    cutoff,
		maxOut:    maxSuggestions,
		cooldown:  cooldown,
		lastCited: make(map[string]time.Time),
		nowFn:     time.Now,
	}
}

// Suggest ranks candidates for the given passage. concepts are the
// passage's detected domain concepts; questionType biases toward
// high-tier sources when the surrounding question is evidence-seeking.
func (s *Suggester) Suggest(passage string, concepts []string, questionType string, candidates []evidence.Item) []Suggestion {
	sentences := textutil.SplitSentences(passage)
	now := s.nowFn()

	var suggestions []Suggestion
	for _, candidate := range candidates {
		score := s.score(candidate, concepts, questionType, now)
		if score <= s.cutoff {
			continue
		}
		if s.recentlyCited(candidate.SourceID, now) && score <= 0.9 {
			continue
		}

		idx, sentence := bestSentence(sentences, candidate, concepts)
		suggestions = append(suggestions, Suggestion{
			SourceID:       candidate.SourceID,
			Title:          candidate.Title,
			Tier:           candidate.Tier,
			Year:           candidate.Year,
			Score:          score,
			SentenceIndex:  idx,
			TargetSentence: sentence,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Score > suggestions[j].Score
	})

	if len(suggestions) > s.maxOut {
		suggestions = suggestions[:s.maxOut]
	}
	return suggestions
}

// MarkCited records that a source was accepted, starting its cooldown.
func (s *Suggester) MarkCited(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCited[sourceID] = s.nowFn()
}

func (s *Suggester) recentlyCited(sourceID string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cited, ok := s.lastCited[sourceID]
	return ok && now.Sub(cited) < s.cooldown
}

func (s *Suggester) score(candidate evidence.Item, concepts []string, questionType string, now time.Time) float64 {
	var score float64

	if _, evidenceType := evidenceQuestionTypes[questionType]; evidenceType {
		if candidate.Tier == evidence.TierGoldStandard || candidate.Tier == evidence.TierHigh {
			score += 0.3
		}
	}

	overlap := 0.1 * float64(conceptMatches(candidate.Title+" "+candidate.Snippet, concepts))
	if overlap > 0.4 {
		overlap = 0.4
	}
	score += overlap

	if candidate.Year > 0 {
		age := now.Year() - candidate.Year
		switch {
		case age < 2:
			score += 0.2
		case age < 5:
			score += 0.1
		}
	}

	score += 0.1 * candidate.Tier.Weight()
	return score
}

// bestSentence is the insertion point: the sentence sharing the most
// concepts with the candidate, ties broken by candidate-title overlap.
func bestSentence(sentences []string, candidate evidence.Item, concepts []string) (int, string) {
	if len(sentences) == 0 {
		return 0, ""
	}

	bestIdx, bestScore := 0, -1.0
	for i, sentence := range sentences {
		score := float64(conceptMatches(sentence, concepts)) +
			textutil.WordOverlapRatio(candidate.Title, sentence)
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx, sentences[bestIdx]
}

func conceptMatches(text string, concepts []string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, concept := range concepts {
		if strings.Contains(lower, strings.ToLower(concept)) {
			count++
		}
	}
	return count
}
