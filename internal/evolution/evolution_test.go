package evolution

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chapter-agent/backend/internal/behavior"
	"github.com/chapter-agent/backend/internal/storage/models"
)

func TestQuestionForGap(t *testing.T) {
	tests := []struct {
		name string
		gap  models.KnowledgeGap
		want string
	}{
		{
			name: "missing section",
			gap: models.KnowledgeGap{
				GapType:     behavior.GapMissingSection,
				Description: "Chapter is missing a Complications section",
			},
			want: "What should the Complications section cover for Cerebral Aneurysms?",
		},
		{
			name: "concept coverage",
			gap: models.KnowledgeGap{
				GapType:     behavior.GapConceptCoverage,
				Description: "Expected concept not covered: rebleeding",
			},
			want: "What is the role of rebleeding in Cerebral Aneurysms?",
		},
		{
			name: "unanswered question passes through",
			gap: models.KnowledgeGap{
				GapType:     behavior.GapUnansweredQuestion,
				Description: "Chapter does not address: When is flow diversion indicated?",
			},
			want: "When is flow diversion indicated?",
		},
		{
			name: "stale reference falls back to a refresh question",
			gap:  models.KnowledgeGap{GapType: behavior.GapStaleReference},
			want: "What is the latest evidence on Cerebral Aneurysms?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, questionForGap(tt.gap, "Cerebral Aneurysms"))
		})
	}
}

func TestCitationHealth(t *testing.T) {
	assert.Zero(t, citationHealth(nil))

	crossOnly := []models.CitationEdge{
		{CitationType: "cross_reference"},
		{CitationType: "cross_reference"},
	}
	// Two edges: 0.6 x 0.2 volume, no literature share.
	assert.InDelta(t, 0.12, citationHealth(crossOnly), 0.001)

	mixed := []models.CitationEdge{
		{CitationType: "cross_reference"},
		{CitationType: "literature"},
	}
	// 0.6 x 0.2 + 0.4 x 0.5.
	assert.InDelta(t, 0.32, citationHealth(mixed), 0.001)

	saturated := make([]models.CitationEdge, 20)
	for i := range saturated {
		saturated[i] = models.CitationEdge{CitationType: "literature"}
	}
	assert.InDelta(t, 1.0, citationHealth(saturated), 0.001)
}
