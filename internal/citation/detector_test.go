package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/pkg/config"
)

func testCitationDetector() *Detector {
	return NewDetector(config.HeuristicsConfig{
		DomainConcepts: []string{"aneurysm", "vasospasm", "craniotomy"},
	}, 0.3)
}

func TestDetectCrossReferencesSharedConcepts(t *testing.T) {
	source := models.Chapter{
		ID:      "ch-sah",
		Content: "Subarachnoid hemorrhage from a ruptured aneurysm causes vasospasm in many patients.",
	}
	related := models.Chapter{
		ID:      "ch-vasospasm",
		Content: "Cerebral vasospasm after aneurysm rupture is treated with nimodipine in most patients.",
	}
	unrelated := models.Chapter{
		ID:      "ch-spine",
		Content: "Lumbar disc herniation presents with radicular leg pain.",
	}

	refs := testCitationDetector().DetectCrossReferences(source, []models.Chapter{related, unrelated})
	require.Len(t, refs, 1)

	assert.Equal(t, "ch-sah", refs[0].SourceChapterID)
	assert.Equal(t, "ch-vasospasm", refs[0].TargetChapterID)
	assert.ElementsMatch(t, []string{"aneurysm", "vasospasm"}, refs[0].SharedConcepts)
	assert.Greater(t, refs[0].Relevance, 0.3)
}

func TestDetectCrossReferencesSkipsSelf(t *testing.T) {
	chapter := models.Chapter{ID: "ch1", Content: "aneurysm vasospasm craniotomy"}

	refs := testCitationDetector().DetectCrossReferences(chapter, []models.Chapter{chapter})
	assert.Empty(t, refs)
}

func TestDetectCrossReferencesSortedByRelevance(t *testing.T) {
	source := models.Chapter{ID: "src", Content: "aneurysm vasospasm craniotomy repair technique"}
	others := []models.Chapter{
		{ID: "weak", Content: "aneurysm vasospasm screening in the general population"},
		{ID: "strong", Content: "aneurysm vasospasm craniotomy repair technique details"},
	}

	refs := testCitationDetector().DetectCrossReferences(source, others)
	require.Len(t, refs, 2)
	assert.Equal(t, "strong", refs[0].TargetChapterID)
	assert.GreaterOrEqual(t, refs[0].Relevance, refs[1].Relevance)
}

func TestExtractReferences(t *testing.T) {
	content := `The ISAT trial (doi 10.1016/S0140-6736(02)11314-6) changed practice.
See PMID: 12414200 and PMID 12414200 for details, plus 10.3171/2019.1.JNS183.`

	refs := testCitationDetector().ExtractReferences(content)

	var dois, pmids []string
	for _, ref := range refs {
		switch ref.Kind {
		case "doi":
			dois = append(dois, ref.Value)
		case "pmid":
			pmids = append(pmids, ref.Value)
		}
	}

	assert.Contains(t, dois, "10.1016/S0140-6736(02)11314-6")
	assert.Contains(t, dois, "10.3171/2019.1.JNS183")
	assert.Equal(t, []string{"12414200"}, pmids)
}

func TestExtractReferencesTrimsTrailingPunctuation(t *testing.T) {
	refs := testCitationDetector().ExtractReferences("As shown in 10.1056/NEJMoa1234567.")
	require.Len(t, refs, 1)
	assert.Equal(t, "10.1056/NEJMoa1234567", refs[0].Value)
}

func TestExtractReferencesEmpty(t *testing.T) {
	assert.Empty(t, testCitationDetector().ExtractReferences("No identifiers here."))
}
