package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/evolution"
	"github.com/chapter-agent/backend/internal/indexing"
	"github.com/chapter-agent/backend/internal/merge"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

type ChapterHandler struct {
	db        *sqlite.Client
	processor *indexing.Processor
	health    *evolution.HealthChecker
	executor  *evolution.Executor
	engine    *qa.Engine
}

func NewChapterHandler(
	db *sqlite.Client,
	processor *indexing.Processor,
	health *evolution.HealthChecker,
	executor *evolution.Executor,
	engine *qa.Engine,
) *ChapterHandler {
	return &ChapterHandler{
		db:        db,
		processor: processor,
		health:    health,
		executor:  executor,
		engine:    engine,
	}
}

func (h *ChapterHandler) List(c *fiber.Ctx) error {
	chapters, err := h.db.ListChapters()
	if err != nil {
		logger.Error("Failed to list chapters", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list chapters",
		})
	}

	// Content is omitted from the listing.
	summaries := make([]fiber.Map, 0, len(chapters))
	for _, chapter := range chapters {
		summaries = append(summaries, fiber.Map{
			"id":         chapter.ID,
			"title":      chapter.Title,
			"category":   chapter.Category,
			"version":    chapter.Version,
			"updated_at": chapter.UpdatedAt,
		})
	}

	return c.JSON(fiber.Map{"chapters": summaries})
}

func (h *ChapterHandler) Get(c *fiber.Ctx) error {
	chapter, err := h.db.GetChapter(c.Params("chapterID"))
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
	return c.JSON(chapter)
}

// Upsert creates or replaces a chapter and reindexes its content.
func (h *ChapterHandler) Upsert(c *fiber.Ctx) error {
	var req struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Category string `json:"category"`
		Content  string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title is required",
		})
	}

	now := time.Now()
	chapter := &models.Chapter{
		ID:        req.ID,
		Title:     req.Title,
		Category:  req.Category,
		Content:   req.Content,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if chapter.ID == "" {
		chapter.ID = uuid.New().String()
	} else if existing, err := h.db.GetChapter(chapter.ID); err == nil && existing != nil {
		chapter.Version = existing.Version + 1
		chapter.CreatedAt = existing.CreatedAt
	}

	if err := h.db.UpsertChapter(chapter); err != nil {
		logger.Error("Failed to store chapter", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to store chapter",
		})
	}

	// Open gaps describe the replaced content; the next detection pass
	// rebuilds them against the new text.
	if err := h.db.InvalidateGaps(chapter.ID); err != nil {
		logger.Warn("Gap invalidation failed", zap.String("chapter_id", chapter.ID), zap.Error(err))
	}

	chunks, err := h.processor.IndexChapter(c.Context(), *chapter)
	if err != nil {
		logger.Error("Failed to index chapter", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Chapter stored but indexing failed",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":      chapter.ID,
		"version": chapter.Version,
		"chunks":  chunks,
	})
}

func (h *ChapterHandler) Reindex(c *fiber.Ctx) error {
	chapter, err := h.db.GetChapter(c.Params("chapterID"))
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

	chunks, err := h.processor.IndexChapter(c.Context(), *chapter)
	if err != nil {
		logger.Error("Failed to reindex chapter", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reindex chapter",
		})
	}

	return c.JSON(fiber.Map{
		"id":     chapter.ID,
		"chunks": chunks,
	})
}

// Health reports composite wellness plus the answer-latency EMA.
func (h *ChapterHandler) Health(c *fiber.Ctx) error {
	chapterID := c.Params("chapterID")

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

	health, err := h.health.Check(*chapter)
	if err != nil {
		logger.Error("Failed to compute chapter health", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute chapter health",
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id":     chapterID,
		"health":         health,
		"latency_ema_ms": h.engine.LatencyEMA(chapterID),
	})
}

func (h *ChapterHandler) Evolve(c *fiber.Ctx) error {
	chapterID := c.Params("chapterID")

	var req struct {
		DryRun bool `json:"dry_run"`
	}
	// An empty body means a live run.
	_ = c.BodyParser(&req)

	report, err := h.executor.Evolve(c.Context(), chapterID, req.DryRun)
	if err != nil {
		if err == merge.ErrChapterNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Chapter not found",
			})
		}
		logger.Error("Failed to evolve chapter", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to evolve chapter",
		})
	}

	return c.JSON(report)
}
