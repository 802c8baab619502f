package qa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/evidence"
)

func conflictingPoints() []EvidencePoint {
	return []EvidencePoint{
		{
			Statement:     "Nimodipine is effective for vasospasm prevention.",
			SourceID:      "pmid:1",
			Tier:          evidence.TierHigh,
			Year:          2019,
			CombinedScore: 0.8,
		},
		{
			Statement:     "Nimodipine is ineffective for vasospasm prevention.",
			SourceID:      "pmid:2",
			Tier:          evidence.TierLow,
			Year:          2024,
			CombinedScore: 0.6,
		},
	}
}

func TestResolvePreferQuality(t *testing.T) {
	resolver := NewResolver(testHeuristics(), PolicyPreferQuality)

	conflicts, resolved := resolver.Resolve(conflictingPoints())
	require.Len(t, conflicts, 1)

	assert.True(t, conflicts[0].Resolved)
	assert.Equal(t, ReasonHigherCredibility, conflicts[0].Reason)
	assert.Equal(t, "pmid:1", conflicts[0].WinnerSource)

	assert.Empty(t, resolved[0].SupersededBy)
	assert.Equal(t, "pmid:1", resolved[1].SupersededBy)
}

func TestResolvePreferRecent(t *testing.T) {
	resolver := NewResolver(testHeuristics(), PolicyPreferRecent)

	conflicts, resolved := resolver.Resolve(conflictingPoints())
	require.Len(t, conflicts, 1)

	assert.True(t, conflicts[0].Resolved)
	assert.Equal(t, ReasonMoreRecent, conflicts[0].Reason)
	assert.Equal(t, "pmid:2", conflicts[0].WinnerSource)
	assert.Equal(t, "pmid:2", resolved[0].SupersededBy)
}

func TestResolveManualLeavesUnresolved(t *testing.T) {
	resolver := NewResolver(testHeuristics(), PolicyManual)

	conflicts, resolved := resolver.Resolve(conflictingPoints())
	require.Len(t, conflicts, 1)

	assert.False(t, conflicts[0].Resolved)
	assert.Equal(t, ReasonManualFlag, conflicts[0].Reason)
	assert.Empty(t, resolved[0].SupersededBy)
	assert.Empty(t, resolved[1].SupersededBy)
}

// Losing statements stay in the output, only marked. Nothing is ever
// dropped by conflict resolution.
func TestResolveNeverDropsStatements(t *testing.T) {
	resolver := NewResolver(testHeuristics(), PolicyPreferQuality)

	points := conflictingPoints()
	points = append(points, EvidencePoint{
		Statement: "Craniotomy technique varies by institution.",
		SourceID:  "pmid:3",
		Tier:      evidence.TierModerate,
	})

	_, resolved := resolver.Resolve(points)
	assert.Len(t, resolved, len(points))
}

func TestResolveEqualTiersFallsBackToRecency(t *testing.T) {
	resolver := NewResolver(testHeuristics(), PolicyPreferQuality)

	points := conflictingPoints()
	points[0].Tier = evidence.TierHigh
	points[1].Tier = evidence.TierHigh

	conflicts, _ := resolver.Resolve(points)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ReasonMoreRecent, conflicts[0].Reason)
	assert.Equal(t, "pmid:2", conflicts[0].WinnerSource)
}

// Statements about different concepts never conflict, even with
// opposing terms.
func TestResolveRequiresSharedConcept(t *testing.T) {
	resolver := NewResolver(testHeuristics(), PolicyPreferQuality)

	points := []EvidencePoint{
		{Statement: "Early mobilization is effective after craniotomy.", SourceID: "a", Tier: evidence.TierHigh},
		{Statement: "Bed rest is ineffective for recovery of shunt patients.", SourceID: "b", Tier: evidence.TierHigh},
	}

	conflicts, _ := resolver.Resolve(points)
	assert.Empty(t, conflicts)
}
