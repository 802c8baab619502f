package neo4j

import (
	"context"
	"strings"

	"github.com/chapter-agent/backend/internal/evidence"
)

// GraphBackend exposes the citation graph as an evidence backend: nodes
// sharing concepts with the question are returned as hits.
type GraphBackend struct {
	client *Client
}

func NewGraphBackend(client *Client) *GraphBackend {
	return &GraphBackend{client: client}
}

func (b *GraphBackend) Name() string {
	return "knowledge_graph"
}

func (b *GraphBackend) Search(ctx context.Context, q evidence.Query, maxResults int) ([]evidence.RawHit, error) {
	if len(q.Concepts) == 0 {
		return nil, nil
	}

	nodes, err := b.client.SearchByConcepts(ctx, q.Concepts, maxResults)
	if err != nil {
		return nil, err
	}

	hits := make([]evidence.RawHit, 0, len(nodes))
	for _, node := range nodes {
		hits = append(hits, evidence.RawHit{
			SourceID: "node:" + node.ID,
			Title:    node.Title,
			Abstract: strings.Join(node.Concepts, ", "),
			Backend:  b.Name(),
		})
	}

	return hits, nil
}
