package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/pkg/logger"
)

// WebSocketHandler streams QA answers word by word over a socket so the
// client can render progressively instead of waiting out the full
// pipeline latency.
type WebSocketHandler struct {
	engine *qa.Engine
	db     *sqlite.Client
	cache  *redis.Client
}

func NewWebSocketHandler(engine *qa.Engine, db *sqlite.Client, cache *redis.Client) *WebSocketHandler {
	return &WebSocketHandler{engine: engine, db: db, cache: cache}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type           string `json:"type"`
			Question       string `json:"question"`
			ChapterID      string `json:"chapter_id"`
			SectionContext string `json:"section_context"`
			UserID         string `json:"user_id"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "ask" {
			continue
		}

		if err := h.streamAnswer(c, msg.Question, msg.ChapterID, msg.SectionContext, msg.UserID); err != nil {
			logger.Error("Failed to stream answer", zap.Error(err))
			h.sendError(c, "Failed to process question")
		}
	}
}

func (h *WebSocketHandler) streamAnswer(c *websocket.Conn, question, chapterID, sectionContext, userID string) error {
	ctx := context.Background()

	chapter, err := h.db.GetChapter(chapterID)
	if err != nil {
		return err
	}
	if chapter == nil {
		h.sendError(c, "Chapter not found")
		return nil
	}

	h.send(c, "status", "Searching evidence...")

	resp, err := h.engine.ProcessQuestion(ctx, qa.Request{
		QuestionText:   question,
		ChapterID:      chapterID,
		ChapterContent: chapter.Content,
		SectionContext: sectionContext,
		UserID:         userID,
	})
	if err != nil {
		return err
	}

	// Streamed answers integrate the same way HTTP answers do.
	if resp.Integrated {
		if err := applyIntegratedContent(ctx, h.db, h.cache, chapter, resp.UpdatedContent); err != nil {
			logger.Error("Failed to persist integrated content", zap.Error(err))
		}
	}

	words := strings.Fields(resp.Answer.MainText)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}
		if err := h.send(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":            "complete",
		"session_id":      resp.SessionID,
		"confidence":      resp.Answer.Confidence,
		"citations":       resp.Answer.Citations,
		"conflicts":       len(resp.Answer.Conflicts),
		"requires_review": resp.Answer.RequiresReview,
		"integrated":      resp.Integrated,
		"latency_ms":      resp.LatencyMS,
	})
}

func (h *WebSocketHandler) send(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
