package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./data/chapters.db", cfg.SQLite.Path)
	assert.Equal(t, 5, cfg.QA.TopKEvidence)
	assert.InDelta(t, 0.75, cfg.QA.AutoIntegrateThreshold, 0.001)
	assert.Equal(t, "prefer_quality", cfg.QA.ConflictPolicy)
	assert.Equal(t, 72, cfg.Behavior.RetentionHours)
	assert.Equal(t, 3, cfg.Behavior.MinSupport)
	assert.InDelta(t, 0.3, cfg.Citation.RelevanceThreshold, 0.001)
	assert.InDelta(t, 0.8, cfg.Merge.AutoApplyThreshold, 0.001)
	assert.NotEmpty(t, cfg.Heuristics.DomainConcepts)
	assert.NotEmpty(t, cfg.Heuristics.RequiredSections)
	assert.Contains(t, cfg.Heuristics.ExpectedConcepts, "vascular")
}

func TestOpposingTermPairs(t *testing.T) {
	h := HeuristicsConfig{OpposingPairs: []string{
		"Effective|Ineffective",
		"malformed",
		"|empty",
		"safe|unsafe",
	}}

	pairs := h.OpposingTermPairs()
	require.Len(t, pairs, 2)
	assert.Equal(t, [2]string{"effective", "ineffective"}, pairs[0])
	assert.Equal(t, [2]string{"safe", "unsafe"}, pairs[1])
}
