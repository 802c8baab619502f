package citation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/pkg/config"
)

var (
	doiPattern  = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)
	pmidPattern = regexp.MustCompile(`PMID:?\s*(\d+)`)
)

// CrossReference links two chapters that discuss overlapping material.
type CrossReference struct {
	SourceChapterID string   `json:"source_chapter_id"`
	TargetChapterID string   `json:"target_chapter_id"`
	SharedConcepts  []string `json:"shared_concepts"`
	Relevance       float64  `json:"relevance"`
}

// ExtractedReference is a literature identifier found in chapter text.
type ExtractedReference struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Detector finds cross-references between chapters and extracts
// literature identifiers from their text. Relevance blends concept
// overlap with token-level text similarity, weighted toward concepts.
type Detector struct {
	concepts  []string
	threshold float64
}

func NewDetector(heuristics config.HeuristicsConfig, relevanceThreshold float64) *Detector {
	if relevanceThreshold == 0 {
		relevanceThreshold = 0.3
	}
	return &Detector{
		concepts:  heuristics.DomainConcepts,
		threshold: relevanceThreshold,
	}
}

// DetectCrossReferences compares the source chapter against every other
// chapter and keeps pairs whose relevance clears the threshold. The
// result is sorted by relevance, highest first.
func (d *Detector) DetectCrossReferences(source models.Chapter, others []models.Chapter) []CrossReference {
	sourceConcepts := d.conceptSet(source.Content)

	var refs []CrossReference
	for _, other := range others {
		if other.ID == source.ID {
			continue
		}

		otherConcepts := d.conceptSet(other.Content)
		shared := intersect(sourceConcepts, otherConcepts)

		var conceptOverlap float64
		if len(sourceConcepts) > 0 {
			conceptOverlap = float64(len(shared)) / float64(len(sourceConcepts))
		}

		relevance := 0.6*conceptOverlap + 0.4*evidence.TokenOverlap(source.Content, other.Content)
		if relevance <= d.threshold {
			continue
		}

		refs = append(refs, CrossReference{
			SourceChapterID: source.ID,
			TargetChapterID: other.ID,
			SharedConcepts:  shared,
			Relevance:       relevance,
		})
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Relevance > refs[j].Relevance
	})

	return refs
}

// ExtractReferences pulls DOIs and PMIDs out of chapter text,
// deduplicated in order of first appearance.
func (d *Detector) ExtractReferences(content string) []ExtractedReference {
	seen := make(map[string]struct{})
	var refs []ExtractedReference

	for _, doi := range doiPattern.FindAllString(content, -1) {
		doi = strings.TrimRight(doi, ".,;)")
		if _, dup := seen["doi:"+doi]; dup {
			continue
		}
		seen["doi:"+doi] = struct{}{}
		refs = append(refs, ExtractedReference{Kind: "doi", Value: doi})
	}

	for _, match := range pmidPattern.FindAllStringSubmatch(content, -1) {
		pmid := match[1]
		if _, dup := seen["pmid:"+pmid]; dup {
			continue
		}
		seen["pmid:"+pmid] = struct{}{}
		refs = append(refs, ExtractedReference{Kind: "pmid", Value: pmid})
	}

	return refs
}

func (d *Detector) conceptSet(content string) []string {
	lower := strings.ToLower(content)
	var found []string
	for _, concept := range d.concepts {
		if strings.Contains(lower, strings.ToLower(concept)) {
			found = append(found, concept)
		}
	}
	return found
}

func intersect(a, b []string) []string {
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}

	var out []string
	for _, s := range a {
		if _, ok := setB[s]; ok {
			out = append(out, s)
		}
	}
	return out
}
