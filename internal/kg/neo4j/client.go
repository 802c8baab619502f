package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/pkg/circuitbreaker"
	"github.com/chapter-agent/backend/pkg/logger"
	"github.com/chapter-agent/backend/pkg/retry"
)

// Client stores the citation graph: chapter/reference nodes connected by
// typed, weighted CITES relationships.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type Node struct {
	ID       string
	Title    string
	Kind     string
	Concepts []string
}

type Edge struct {
	SourceID     string
	TargetID     string
	CitationType string
	Strength     float64
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		// The driver classifies transient faults (leader switches,
		// connectivity) itself; everything else is a query bug.
		Retryable: neo4j.IsRetryable,
		Logger:    logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func (c *Client) UpsertNode(ctx context.Context, node *Node) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		query := `
			MERGE (n:Document {id: $id})
			SET n.title = $title,
			    n.kind = $kind,
			    n.concepts = $concepts,
			    n.updated_at = timestamp()
		`

		_, err := session.Run(ctx, query, map[string]interface{}{
			"id":       node.ID,
			"title":    node.Title,
			"kind":     node.Kind,
			"concepts": node.Concepts,
		})

		if err != nil {
			return fmt.Errorf("failed to upsert node: %w", err)
		}

		logger.Debug("Node upserted in citation graph", zap.String("node_id", node.ID))
		return nil
	})
}

// ReplaceEdges deletes a chapter's outgoing citation relationships and
// recreates them from the given set, mirroring the sqlite wholesale
// replacement.
func (c *Client) ReplaceEdges(ctx context.Context, sourceID string, edges []Edge) error {
	return c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, `
			MATCH (s:Document {id: $source_id})-[r:CITES]->()
			DELETE r
		`, map[string]interface{}{"source_id": sourceID})
		if err != nil {
			return fmt.Errorf("failed to delete old edges: %w", err)
		}

		for _, edge := range edges {
			_, err := session.Run(ctx, `
				MATCH (s:Document {id: $source_id})
				MERGE (t:Document {id: $target_id})
				MERGE (s)-[r:CITES {type: $citation_type}]->(t)
				SET r.strength = $strength,
				    r.created_at = timestamp()
			`, map[string]interface{}{
				"source_id":     edge.SourceID,
				"target_id":     edge.TargetID,
				"citation_type": edge.CitationType,
				"strength":      edge.Strength,
			})
			if err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}

		logger.Debug("Citation edges replaced",
			zap.String("source_id", sourceID),
			zap.Int("count", len(edges)),
		)
		return nil
	})
}

// Neighborhood returns all edges touching the given node.
func (c *Client) Neighborhood(ctx context.Context, nodeID string) ([]Edge, error) {
	var edges []Edge

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH (s:Document)-[r:CITES]->(t:Document)
			WHERE s.id = $node_id OR t.id = $node_id
			RETURN s.id AS source, t.id AS target, r.type AS type, r.strength AS strength
		`, map[string]interface{}{"node_id": nodeID})
		if err != nil {
			return fmt.Errorf("failed to query neighborhood: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			source, _ := record.Get("source")
			target, _ := record.Get("target")
			citationType, _ := record.Get("type")
			strength, _ := record.Get("strength")

			edge := Edge{}
			if s, ok := source.(string); ok {
				edge.SourceID = s
			}
			if t, ok := target.(string); ok {
				edge.TargetID = t
			}
			if ct, ok := citationType.(string); ok {
				edge.CitationType = ct
			}
			if st, ok := strength.(float64); ok {
				edge.Strength = st
			}
			edges = append(edges, edge)
		}

		return result.Err()
	})

	if err != nil {
		return nil, err
	}

	return edges, nil
}

// SearchByConcepts is the knowledge-graph evidence backend query: nodes
// whose concept list intersects the given concepts.
func (c *Client) SearchByConcepts(ctx context.Context, concepts []string, limit int) ([]Node, error) {
	var nodes []Node

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, `
			MATCH (n:Document)
			WHERE any(concept IN n.concepts WHERE concept IN $concepts)
			RETURN n.id AS id, n.title AS title, n.kind AS kind, n.concepts AS concepts
			LIMIT $limit
		`, map[string]interface{}{
			"concepts": concepts,
			"limit":    limit,
		})
		if err != nil {
			return fmt.Errorf("failed to search by concepts: %w", err)
		}

		for result.Next(ctx) {
			record := result.Record()
			id, _ := record.Get("id")
			title, _ := record.Get("title")
			kind, _ := record.Get("kind")
			rawConcepts, _ := record.Get("concepts")

			node := Node{}
			if s, ok := id.(string); ok {
				node.ID = s
			}
			if s, ok := title.(string); ok {
				node.Title = s
			}
			if s, ok := kind.(string); ok {
				node.Kind = s
			}
			if list, ok := rawConcepts.([]interface{}); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						node.Concepts = append(node.Concepts, s)
					}
				}
			}
			nodes = append(nodes, node)
		}

		return result.Err()
	})

	if err != nil {
		return nil, err
	}

	return nodes, nil
}
