package citation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chapter-agent/backend/internal/storage/models"
)

func edge(src, dst string) models.CitationEdge {
	return models.CitationEdge{
		SourceID:     src,
		TargetID:     dst,
		CitationType: "cross_reference",
		Strength:     1,
	}
}

func TestBuildNetworkEmpty(t *testing.T) {
	network := BuildNetwork(nil)

	assert.Empty(t, network.Nodes)
	assert.Empty(t, network.Edges)
	assert.Zero(t, network.Metrics.NodeCount)
	assert.Zero(t, network.Metrics.Density)
}

func TestBuildNetworkTriangle(t *testing.T) {
	network := BuildNetwork([]models.CitationEdge{
		edge("a", "b"), edge("b", "c"), edge("c", "a"),
	})

	require.Len(t, network.Nodes, 3)
	require.Len(t, network.Edges, 3)

	// Complete graph: density and clustering are both 1.
	assert.InDelta(t, 1.0, network.Metrics.Density, 0.001)
	assert.InDelta(t, 1.0, network.Metrics.ClusteringCoefficient, 0.001)

	for _, node := range network.Nodes {
		assert.Equal(t, 2, node.Degree)
		assert.InDelta(t, 1.0, math.Hypot(node.X, node.Y), 0.001)
	}
}

func TestBuildNetworkStarCentrality(t *testing.T) {
	network := BuildNetwork([]models.CitationEdge{
		edge("hub", "a"), edge("hub", "b"), edge("hub", "c"),
	})

	assert.Equal(t, "hub", network.Metrics.MostCentralNode)
	assert.InDelta(t, 0.5, network.Metrics.Density, 0.001)

	// No leaf pair is connected, so nothing clusters.
	assert.Zero(t, network.Metrics.ClusteringCoefficient)

	byID := make(map[string]NetworkNode)
	for _, node := range network.Nodes {
		byID[node.ID] = node
	}
	assert.Equal(t, 3, byID["hub"].Degree)
	assert.Equal(t, 1, byID["a"].Degree)
	assert.Greater(t, byID["hub"].Centrality, byID["a"].Centrality)
}

func TestBuildNetworkIgnoresSelfLoops(t *testing.T) {
	network := BuildNetwork([]models.CitationEdge{
		edge("a", "a"), edge("a", "b"),
	})

	require.Len(t, network.Edges, 1)
	for _, node := range network.Nodes {
		assert.Equal(t, 1, node.Degree)
	}
}

func TestBuildNetworkDuplicateEdgesCountDegreeOnce(t *testing.T) {
	network := BuildNetwork([]models.CitationEdge{
		edge("a", "b"), edge("b", "a"),
	})

	assert.Len(t, network.Edges, 2)
	for _, node := range network.Nodes {
		assert.Equal(t, 1, node.Degree)
	}
	assert.InDelta(t, 1.0, network.Metrics.Density, 0.001)
}

func TestBuildNetworkDeterministicLayout(t *testing.T) {
	edges := []models.CitationEdge{edge("b", "a"), edge("c", "b")}

	first := BuildNetwork(edges)
	second := BuildNetwork(edges)

	require.Equal(t, first.Nodes, second.Nodes)
	assert.Equal(t, []string{"a", "b", "c"},
		[]string{first.Nodes[0].ID, first.Nodes[1].ID, first.Nodes[2].ID})
}
