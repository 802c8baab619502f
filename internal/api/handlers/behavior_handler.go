package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/behavior"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

type BehaviorHandler struct {
	memory       *behavior.Memory
	anticipation *behavior.AnticipationEngine
	db           *sqlite.Client
}

func NewBehaviorHandler(memory *behavior.Memory, anticipation *behavior.AnticipationEngine, db *sqlite.Client) *BehaviorHandler {
	return &BehaviorHandler{memory: memory, anticipation: anticipation, db: db}
}

// HandleInteraction records a user action for pattern mining. The
// in-memory window gets it immediately; the durable copy follows.
func (h *BehaviorHandler) HandleInteraction(c *fiber.Ctx) error {
	var req struct {
		UserID     string `json:"user_id"`
		ChapterID  string `json:"chapter_id"`
		ActionType string `json:"action_type"`
		Payload    string `json:"payload"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ChapterID == "" || req.ActionType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id and action_type are required",
		})
	}

	interaction := models.Interaction{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		ChapterID:  req.ChapterID,
		ActionType: req.ActionType,
		Payload:    req.Payload,
		CreatedAt:  time.Now(),
	}

	h.memory.Append(interaction)
	if err := h.db.InsertInteraction(&interaction); err != nil {
		logger.Error("Failed to persist interaction", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record interaction",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": interaction.ID,
	})
}

func (h *BehaviorHandler) HandleAnticipate(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")
	if chapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	needs, err := h.anticipation.Anticipate(c.Context(), chapterID, c.QueryInt("limit", 10))
	if err != nil {
		logger.Error("Failed to anticipate needs", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to anticipate needs",
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id": chapterID,
		"needs":      needs,
	})
}

// HandleSuggestions is the proactive variant of anticipate: only needs
// strong enough to surface unprompted, phrased as suggestions.
func (h *BehaviorHandler) HandleSuggestions(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")
	if chapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	needs, err := h.anticipation.Anticipate(c.Context(), chapterID, 20)
	if err != nil {
		logger.Error("Failed to build suggestions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to build suggestions",
		})
	}

	suggestions := make([]fiber.Map, 0, len(needs))
	for _, need := range needs {
		if need.Score <= 0.7 {
			continue
		}
		suggestions = append(suggestions, fiber.Map{
			"suggestion": need.Description,
			"action":     need.Action,
			"score":      need.Score,
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id":  chapterID,
		"suggestions": suggestions,
	})
}

func (h *BehaviorHandler) GetGaps(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")
	if chapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	gaps, err := h.db.GetOpenGaps(chapterID)
	if err != nil {
		logger.Error("Failed to load gaps", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load gaps",
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id": chapterID,
		"gaps":       gaps,
	})
}
