package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/merge"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

type MergeHandler struct {
	engine *merge.Engine
	db     *sqlite.Client
}

func NewMergeHandler(engine *merge.Engine, db *sqlite.Client) *MergeHandler {
	return &MergeHandler{engine: engine, db: db}
}

func (h *MergeHandler) HandleMerge(c *fiber.Ctx) error {
	var req struct {
		ChapterID      string `json:"chapter_id"`
		UserID         string `json:"user_id"`
		NewKnowledge   string `json:"new_knowledge"`
		SectionContext string `json:"section_context"`
		DryRun         bool   `json:"dry_run"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ChapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	result, err := h.engine.Merge(c.Context(), merge.Request{
		ChapterID:      req.ChapterID,
		UserID:         req.UserID,
		NewKnowledge:   req.NewKnowledge,
		SectionContext: req.SectionContext,
		DryRun:         req.DryRun,
	})
	if err != nil {
		switch err {
		case merge.ErrChapterLocked:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Chapter is locked by a concurrent merge",
			})
		case merge.ErrChapterNotFound:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Chapter not found",
			})
		default:
			logger.Error("Failed to merge knowledge", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to merge knowledge",
			})
		}
	}

	return c.JSON(result)
}

func (h *MergeHandler) GetHistory(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")
	if chapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	records, err := h.db.GetMergeRecords(chapterID, c.QueryInt("limit", 20))
	if err != nil {
		logger.Error("Failed to load merge history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load merge history",
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id": chapterID,
		"records":    records,
	})
}

func (h *MergeHandler) GetPreferences(c *fiber.Ctx) error {
	chapterID := c.Params("chapterID")
	return c.JSON(h.engine.GetPreferences(chapterID))
}

func (h *MergeHandler) SetPreferences(c *fiber.Ctx) error {
	chapterID := c.Params("chapterID")

	var req struct {
		Strategy           string  `json:"strategy"`
		AutoApplyThreshold float64 `json:"auto_apply_threshold"`
		ConflictPolicy     string  `json:"conflict_policy"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	switch qa.ConflictPolicy(req.ConflictPolicy) {
	case "", qa.PolicyPreferQuality, qa.PolicyPreferRecent, qa.PolicyManual:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown conflict policy",
		})
	}

	h.engine.SetPreferences(chapterID, merge.Preferences{
		Strategy:           req.Strategy,
		AutoApplyThreshold: req.AutoApplyThreshold,
		ConflictPolicy:     qa.ConflictPolicy(req.ConflictPolicy),
	})

	return c.JSON(h.engine.GetPreferences(chapterID))
}
