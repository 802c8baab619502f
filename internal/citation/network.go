package citation

import (
	"math"
	"sort"

	"github.com/chapter-agent/backend/internal/storage/models"
)

// NetworkNode is a positioned node in the rendered citation network.
type NetworkNode struct {
	ID         string  `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Degree     int     `json:"degree"`
	Centrality float64 `json:"centrality"`
}

// NetworkEdge mirrors a stored citation edge for rendering.
type NetworkEdge struct {
	SourceID     string  `json:"source_id"`
	TargetID     string  `json:"target_id"`
	CitationType string  `json:"citation_type"`
	Strength     float64 `json:"strength"`
}

// NetworkMetrics summarizes the graph's shape.
type NetworkMetrics struct {
	NodeCount             int     `json:"node_count"`
	EdgeCount             int     `json:"edge_count"`
	Density               float64 `json:"density"`
	ClusteringCoefficient float64 `json:"clustering_coefficient"`
	MostCentralNode       string  `json:"most_central_node,omitempty"`
}

// Network is the full visualization payload.
type Network struct {
	Nodes   []NetworkNode  `json:"nodes"`
	Edges   []NetworkEdge  `json:"edges"`
	Metrics NetworkMetrics `json:"metrics"`
}

// BuildNetwork lays the citation graph out on a circle and computes its
// structural metrics. Layout is deterministic: nodes are sorted by ID
// before placement so the same graph always renders the same way.
func BuildNetwork(edges []models.CitationEdge) Network {
	ids := collectNodeIDs(edges)
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	adjacency := make([][]bool, len(ids))
	for i := range adjacency {
		adjacency[i] = make([]bool, len(ids))
	}
	degree := make([]int, len(ids))

	outEdges := make([]NetworkEdge, 0, len(edges))
	for _, edge := range edges {
		src, srcOK := index[edge.SourceID]
		dst, dstOK := index[edge.TargetID]
		if !srcOK || !dstOK || src == dst {
			continue
		}
		if !adjacency[src][dst] {
			degree[src]++
			degree[dst]++
		}
		adjacency[src][dst] = true
		adjacency[dst][src] = true

		outEdges = append(outEdges, NetworkEdge{
			SourceID:     edge.SourceID,
			TargetID:     edge.TargetID,
			CitationType: edge.CitationType,
			Strength:     edge.Strength,
		})
	}

	centrality := eigenvectorCentrality(adjacency)

	nodes := make([]NetworkNode, len(ids))
	for i, id := range ids {
		angle := 2 * math.Pi * float64(i) / float64(len(ids))
		nodes[i] = NetworkNode{
			ID:         id,
			X:          math.Cos(angle),
			Y:          math.Sin(angle),
			Degree:     degree[i],
			Centrality: centrality[i],
		}
	}

	return Network{
		Nodes:   nodes,
		Edges:   outEdges,
		Metrics: computeMetrics(ids, adjacency, degree, centrality, len(outEdges)),
	}
}

func collectNodeIDs(edges []models.CitationEdge) []string {
	seen := make(map[string]struct{})
	for _, edge := range edges {
		seen[edge.SourceID] = struct{}{}
		seen[edge.TargetID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func computeMetrics(ids []string, adjacency [][]bool, degree []int, centrality []float64, edgeCount int) NetworkMetrics {
	metrics := NetworkMetrics{
		NodeCount: len(ids),
		EdgeCount: edgeCount,
	}

	if len(ids) > 1 {
		// Undirected density over distinct node pairs.
		undirected := 0
		for i := range adjacency {
			for j := i + 1; j < len(adjacency); j++ {
				if adjacency[i][j] {
					undirected++
				}
			}
		}
		metrics.Density = float64(undirected) / (float64(len(ids)) * float64(len(ids)-1) / 2)
	}

	metrics.ClusteringCoefficient = clusteringCoefficient(adjacency, degree)

	best, bestScore := "", -1.0
	for i, id := range ids {
		if centrality[i] > bestScore {
			best, bestScore = id, centrality[i]
		}
	}
	metrics.MostCentralNode = best

	return metrics
}

// eigenvectorCentrality runs power iteration on the undirected adjacency
// matrix: 50 iterations or convergence below 1e-6, whichever first.
func eigenvectorCentrality(adjacency [][]bool) []float64 {
	n := len(adjacency)
	if n == 0 {
		return nil
	}

	scores := make([]float64, n)
	next := make([]float64, n)
	for i := range scores {
		scores[i] = 1 / float64(n)
	}

	for iter := 0; iter < 50; iter++ {
		for i := range next {
			next[i] = 0
			for j := range adjacency[i] {
				if adjacency[i][j] {
					next[i] += scores[j]
				}
			}
		}

		norm := 0.0
		for _, v := range next {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			return scores
		}

		delta := 0.0
		for i := range next {
			next[i] /= norm
			delta += math.Abs(next[i] - scores[i])
		}
		copy(scores, next)

		if delta < 1e-6 {
			break
		}
	}

	return scores
}

// clusteringCoefficient averages the local coefficient over nodes with
// at least two neighbors.
func clusteringCoefficient(adjacency [][]bool, degree []int) float64 {
	n := len(adjacency)
	total, counted := 0.0, 0

	for i := 0; i < n; i++ {
		if degree[i] < 2 {
			continue
		}

		var neighbors []int
		for j := 0; j < n; j++ {
			if adjacency[i][j] {
				neighbors = append(neighbors, j)
			}
		}

		links := 0
		for a := 0; a < len(neighbors); a++ {
			for b := a + 1; b < len(neighbors); b++ {
				if adjacency[neighbors[a]][neighbors[b]] {
					links++
				}
			}
		}

		possible := len(neighbors) * (len(neighbors) - 1) / 2
		if possible > 0 {
			total += float64(links) / float64(possible)
			counted++
		}
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}
