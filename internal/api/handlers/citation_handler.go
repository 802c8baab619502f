package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/citation"
	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

type CitationHandler struct {
	detector  *citation.Detector
	builder   *citation.Builder
	suggester *citation.Suggester
	searcher  *evidence.Searcher
	db        *sqlite.Client
}

func NewCitationHandler(
	detector *citation.Detector,
	builder *citation.Builder,
	suggester *citation.Suggester,
	searcher *evidence.Searcher,
	db *sqlite.Client,
) *CitationHandler {
	return &CitationHandler{
		detector:  detector,
		builder:   builder,
		suggester: suggester,
		searcher:  searcher,
		db:        db,
	}
}

// HandleCrossReferences rebuilds and returns the citation edges for a
// chapter: cross-references to sibling chapters plus literature
// identifiers found in its text.
func (h *CitationHandler) HandleCrossReferences(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")
	if chapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	chapter, err := h.db.GetChapter(chapterID)
	if err != nil {
		logger.Error("Failed to load chapter", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chapter",
		})
	}
	if chapter == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Chapter not found",
		})
	}

	edges, err := h.builder.Rebuild(c.Context(), *chapter)
	if err != nil {
		logger.Error("Failed to rebuild citation edges", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to detect cross-references",
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id": chapterID,
		"edges":      edges,
	})
}

// HandleSuggest runs an evidence search for the passage and scores the
// results as citation candidates for it.
func (h *CitationHandler) HandleSuggest(c *fiber.Ctx) error {
	var req struct {
		ChapterID    string   `json:"chapter_id"`
		Passage      string   `json:"passage"`
		Concepts     []string `json:"concepts"`
		QuestionType string   `json:"question_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Passage == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "passage is required",
		})
	}

	candidates, err := h.searcher.Search(c.Context(), evidence.Query{
		Text:     req.Passage,
		Concepts: req.Concepts,
	})
	if err != nil {
		// Partial evidence still yields suggestions.
		logger.Warn("Citation candidate search incomplete", zap.Error(err))
	}

	suggestions := h.suggester.Suggest(req.Passage, req.Concepts, req.QuestionType, candidates)

	return c.JSON(fiber.Map{
		"chapter_id":  req.ChapterID,
		"suggestions": suggestions,
	})
}

// MarkCited notes that a suggested source was accepted so it stops
// being re-suggested during its cooldown.
func (h *CitationHandler) MarkCited(c *fiber.Ctx) error {
	var req struct {
		SourceID string `json:"source_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.SourceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "source_id is required",
		})
	}

	h.suggester.MarkCited(req.SourceID)
	return c.JSON(fiber.Map{"status": "recorded"})
}

// HandleNetwork renders the citation graph, scoped to one chapter when
// chapter_id is given, otherwise over every stored edge.
func (h *CitationHandler) HandleNetwork(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")

	var err error
	var edges []models.CitationEdge
	if chapterID != "" {
		edges, err = h.db.GetCitationEdges(chapterID)
	} else {
		edges, err = h.db.GetAllCitationEdges()
	}
	if err != nil {
		logger.Error("Failed to load citation edges", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load citation network",
		})
	}

	return c.JSON(citation.BuildNetwork(edges))
}
