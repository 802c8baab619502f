package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/models"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
	"github.com/chapter-agent/backend/pkg/utils"
)

type QAHandler struct {
	engine *qa.Engine
	db     *sqlite.Client
	cache  *redis.Client
}

func NewQAHandler(engine *qa.Engine, db *sqlite.Client, cache *redis.Client) *QAHandler {
	return &QAHandler{engine: engine, db: db, cache: cache}
}

type askRequest struct {
	Question       string `json:"question"`
	ChapterID      string `json:"chapter_id"`
	SectionContext string `json:"section_context"`
	UserID         string `json:"user_id"`
}

type cachedAnswer struct {
	AnswerText string   `json:"answer_text"`
	Confidence float64  `json:"confidence"`
	SourceIDs  []string `json:"source_ids"`
}

// HandleAsk answers a question against a chapter. A warm cache entry
// short-circuits the whole pipeline; otherwise the engine runs and, when
// the answer auto-integrated, the updated chapter content is persisted.
func (h *QAHandler) HandleAsk(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "question is required",
		})
	}
	if req.ChapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	cacheKey := req.ChapterID + ":" + utils.HashString(req.Question)
	var cached cachedAnswer
	if hit, err := h.cache.GetAnswer(c.Context(), cacheKey, &cached); err == nil && hit {
		metrics.CacheHits.WithLabelValues("answer").Inc()
		return c.JSON(fiber.Map{
			"answer":     cached.AnswerText,
			"confidence": cached.Confidence,
			"sources":    cached.SourceIDs,
			"cached":     true,
		})
	}
	metrics.CacheMisses.WithLabelValues("answer").Inc()

	chapter, err := h.db.GetChapter(req.ChapterID)
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

	resp, err := h.engine.ProcessQuestion(c.Context(), qa.Request{
		QuestionText:   req.Question,
		ChapterID:      req.ChapterID,
		ChapterContent: chapter.Content,
		SectionContext: req.SectionContext,
		UserID:         req.UserID,
	})
	if err != nil {
		if err == qa.ErrEmptyQuestion {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "question is required",
			})
		}
		logger.Error("Failed to process question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	if resp.Integrated {
		if err := applyIntegratedContent(c.Context(), h.db, h.cache, chapter, resp.UpdatedContent); err != nil {
			logger.Error("Failed to persist integrated content", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{
		"session_id":      resp.SessionID,
		"answer":          resp.Answer.MainText,
		"confidence":      resp.Answer.Confidence,
		"evidence_points": resp.Answer.EvidencePoints,
		"conflicts":       resp.Answer.Conflicts,
		"citations":       resp.Answer.Citations,
		"strategy":        resp.Answer.Strategy,
		"insufficient":    resp.Answer.Insufficient,
		"requires_review": resp.Answer.RequiresReview,
		"integrated":      resp.Integrated,
		"latency_ms":      resp.LatencyMS,
	})
}

func (h *QAHandler) GetHistory(c *fiber.Ctx) error {
	chapterID := c.Query("chapter_id")
	if chapterID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "chapter_id is required",
		})
	}

	limit := c.QueryInt("limit", 20)
	sessions, err := h.db.GetQASessions(chapterID, limit)
	if err != nil {
		logger.Error("Failed to load QA history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"chapter_id": chapterID,
		"sessions":   sessions,
	})
}

// HandleFeedback records answer feedback and updates the satisfaction
// gauge for the session's chapter.
func (h *QAHandler) HandleFeedback(c *fiber.Ctx) error {
	var req struct {
		SessionID     string `json:"session_id"`
		Helpful       bool   `json:"helpful"`
		IssueCategory string `json:"issue_category"`
		Comment       string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	feedback := &models.Feedback{
		SessionID:     req.SessionID,
		Helpful:       req.Helpful,
		IssueCategory: req.IssueCategory,
		Comment:       req.Comment,
		CreatedAt:     time.Now(),
	}
	if err := h.db.InsertFeedback(feedback); err != nil {
		logger.Error("Failed to persist feedback", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record feedback",
		})
	}

	metrics.UserSatisfaction.WithLabelValues(strconv.FormatBool(req.Helpful)).Inc()

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status": "recorded",
	})
}
