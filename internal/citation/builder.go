package citation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/kg/neo4j"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

// Builder turns detected cross-references and extracted literature
// identifiers into the persisted citation graph. SQLite holds the
// canonical edge set; Neo4j mirrors it for traversal queries and the
// knowledge-graph search backend. A Neo4j mirror failure is logged but
// does not fail the build: the canonical store already committed.
type Builder struct {
	detector *Detector
	db       *sqlite.Client
	graph    *neo4j.Client
}

func NewBuilder(detector *Detector, db *sqlite.Client, graph *neo4j.Client) *Builder {
	return &Builder{detector: detector, db: db, graph: graph}
}

// Rebuild recomputes all outgoing edges for a chapter: cross-references
// to other chapters plus literature references found in its text. The
// previous edge set for the chapter is replaced wholesale.
func (b *Builder) Rebuild(ctx context.Context, chapter models.Chapter) ([]models.CitationEdge, error) {
	others, err := b.db.ListChapters()
	if err != nil {
		return nil, fmt.Errorf("failed to list chapters for edge rebuild: %w", err)
	}

	now := time.Now()
	var edges []models.CitationEdge

	for _, ref := range b.detector.DetectCrossReferences(chapter, others) {
		edges = append(edges, models.CitationEdge{
			SourceID:     ref.SourceChapterID,
			TargetID:     "chapter:" + ref.TargetChapterID,
			CitationType: "cross_reference",
			Strength:     ref.Relevance,
			CreatedAt:    now,
		})
	}

	for _, ref := range b.detector.ExtractReferences(chapter.Content) {
		edges = append(edges, models.CitationEdge{
			SourceID:     chapter.ID,
			TargetID:     ref.Kind + ":" + ref.Value,
			CitationType: "literature",
			Strength:     1.0,
			CreatedAt:    now,
		})
	}

	if err := b.db.ReplaceCitationEdges(chapter.ID, edges); err != nil {
		return nil, fmt.Errorf("failed to persist citation edges: %w", err)
	}

	b.mirrorToGraph(ctx, chapter, edges)

	if all, err := b.db.GetAllCitationEdges(); err == nil {
		metrics.CitationEdgesTotal.Set(float64(len(all)))
	}

	logger.Info("citation edges rebuilt",
		zap.String("chapter_id", chapter.ID),
		zap.Int("edges", len(edges)))

	return edges, nil
}

func (b *Builder) mirrorToGraph(ctx context.Context, chapter models.Chapter, edges []models.CitationEdge) {
	if b.graph == nil {
		return
	}

	node := &neo4j.Node{
		ID:       chapter.ID,
		Title:    chapter.Title,
		Kind:     "chapter",
		Concepts: b.detector.conceptSet(chapter.Content),
	}
	if err := b.graph.UpsertNode(ctx, node); err != nil {
		logger.Warn("graph node mirror failed",
			zap.String("chapter_id", chapter.ID), zap.Error(err))
		return
	}

	graphEdges := make([]neo4j.Edge, 0, len(edges))
	for _, edge := range edges {
		graphEdges = append(graphEdges, neo4j.Edge{
			SourceID:     edge.SourceID,
			TargetID:     edge.TargetID,
			CitationType: edge.CitationType,
			Strength:     edge.Strength,
		})
	}

	if err := b.graph.ReplaceEdges(ctx, chapter.ID, graphEdges); err != nil {
		logger.Warn("graph edge mirror failed",
			zap.String("chapter_id", chapter.ID), zap.Error(err))
	}
}
