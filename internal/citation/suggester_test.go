package citation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/evidence"
)

func fixedSuggester(t *testing.T) (*Suggester, time.Time) {
	t.Helper()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewSuggester(0.5, 10, time.Hour)
	s.nowFn = func() time.Time { return now }
	return s, now
}

func strongCandidate(id string, year int) evidence.Item {
	return evidence.Item{
		SourceID: id,
		Title:    "Randomized trial of nimodipine for vasospasm after aneurysm rupture",
		Snippet:  "Nimodipine reduced delayed ischemia in aneurysm patients.",
		Tier:     evidence.TierGoldStandard,
		Year:     year,
	}
}

func TestSuggestScoresEvidenceQuestions(t *testing.T) {
	s, _ := fixedSuggester(t)
	concepts := []string{"vasospasm", "aneurysm"}

	suggestions := s.Suggest(
		"Vasospasm management after aneurysm rupture. Nimodipine is standard.",
		concepts, "evidence",
		[]evidence.Item{strongCandidate("pmid:1", 2025)},
	)
	require.Len(t, suggestions, 1)

	// 0.3 type + 0.2 concepts + 0.2 recency + 0.1 weight.
	assert.InDelta(t, 0.8, suggestions[0].Score, 0.001)
	assert.Equal(t, "pmid:1", suggestions[0].SourceID)
}

func TestSuggestCutoffExcludesWeakCandidates(t *testing.T) {
	s, _ := fixedSuggester(t)

	weak := evidence.Item{
		SourceID: "blog:1",
		Title:    "General thoughts on brain surgery",
		Tier:     evidence.TierLow,
		Year:     2010,
	}

	suggestions := s.Suggest("Vasospasm management after rupture.",
		[]string{"vasospasm"}, "definition", []evidence.Item{weak})
	assert.Empty(t, suggestions)
}

func TestSuggestNoTypeBonusForDefinitionQuestions(t *testing.T) {
	s, _ := fixedSuggester(t)
	concepts := []string{"vasospasm", "aneurysm", "nimodipine"}

	suggestions := s.Suggest("Nimodipine for vasospasm after aneurysm rupture.",
		concepts, "definition",
		[]evidence.Item{strongCandidate("pmid:1", 2025)})
	require.Len(t, suggestions, 1)

	// 0.3 concepts + 0.2 recency + 0.1 weight, no 0.3 type bonus.
	assert.InDelta(t, 0.6, suggestions[0].Score, 0.001)
}

func TestSuggestCooldownSuppressesRepeats(t *testing.T) {
	s, _ := fixedSuggester(t)
	concepts := []string{"vasospasm", "aneurysm"}
	passage := "Vasospasm after aneurysm rupture."
	candidates := []evidence.Item{strongCandidate("pmid:1", 2025)}

	require.Len(t, s.Suggest(passage, concepts, "evidence", candidates), 1)

	s.MarkCited("pmid:1")
	assert.Empty(t, s.Suggest(passage, concepts, "definition", candidates))
}

func TestSuggestCooldownOverriddenByNearPerfectScore(t *testing.T) {
	s, now := fixedSuggester(t)
	concepts := []string{"vasospasm", "aneurysm", "nimodipine", "ischemia"}
	candidates := []evidence.Item{strongCandidate("pmid:1", 2026)}

	s.MarkCited("pmid:1")

	// 0.3 type + 0.4 concept cap + 0.2 recency + 0.1 weight = 1.0 > 0.9.
	suggestions := s.Suggest("Nimodipine for vasospasm and ischemia after aneurysm rupture.",
		concepts, "evidence", candidates)
	require.Len(t, suggestions, 1)
	assert.InDelta(t, 1.0, suggestions[0].Score, 0.001)

	// After the cooldown lapses, non-perfect scores come back too.
	s.nowFn = func() time.Time { return now.Add(2 * time.Hour) }
	suggestions = s.Suggest("Vasospasm after aneurysm rupture.",
		concepts[:3], "definition", candidates)
	require.Len(t, suggestions, 1)
	assert.Less(t, suggestions[0].Score, 0.9)
}

func TestSuggestTruncatesToMax(t *testing.T) {
	s, _ := fixedSuggester(t)
	s.maxOut = 2

	candidates := make([]evidence.Item, 5)
	for i := range candidates {
		candidates[i] = strongCandidate("pmid:"+string(rune('a'+i)), 2025)
	}

	suggestions := s.Suggest("Vasospasm after aneurysm rupture.",
		[]string{"vasospasm", "aneurysm"}, "evidence", candidates)
	assert.Len(t, suggestions, 2)
}

func TestBestSentencePicksConceptDenseSentence(t *testing.T) {
	sentences := []string{
		"The chapter opens with anatomy.",
		"Vasospasm after aneurysm rupture is treated with nimodipine.",
		"Outcomes are discussed later.",
	}

	idx, sentence := bestSentence(sentences, strongCandidate("pmid:1", 2025),
		[]string{"vasospasm", "aneurysm"})

	assert.Equal(t, 1, idx)
	assert.Equal(t, sentences[1], sentence)
}

func TestBestSentenceEmptyPassage(t *testing.T) {
	idx, sentence := bestSentence(nil, strongCandidate("pmid:1", 2025), nil)
	assert.Equal(t, 0, idx)
	assert.Empty(t, sentence)
}
