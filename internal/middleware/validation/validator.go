package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var injectionPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|drop\s+table|union\s+select)`)

type Config struct {
	MaxQuestionLength int
	MaxKnowledgeSize  int
	Logger            *zap.Logger
}

// Middleware does request-shape checks for the two text-bearing routes:
// questions must be present and bounded, merge payloads must not exceed
// the knowledge size cap, and both are screened for markup injection.
// Empty merge payloads pass through; the merge engine answers them with
// a no-op result. Deeper semantic validation stays in the handlers.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQuestionLength == 0 {
		cfg.MaxQuestionLength = 5000
	}
	if cfg.MaxKnowledgeSize == 0 {
		cfg.MaxKnowledgeSize = 1024 * 1024
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}

		contentType := c.Get("Content-Type")
		if contentType != "" && !strings.Contains(contentType, "application/json") {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
				"error": "Unsupported content type",
			})
		}

		path := c.Path()

		if strings.HasSuffix(path, "/ask") {
			return validateTextField(c, cfg, "question", cfg.MaxQuestionLength, true)
		}
		if strings.HasSuffix(path, "/merge") {
			return validateTextField(c, cfg, "new_knowledge", cfg.MaxKnowledgeSize, false)
		}

		return c.Next()
	}
}

func validateTextField(c *fiber.Ctx, cfg Config, field string, maxLen int, required bool) error {
	var req map[string]interface{}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	value, ok := req[field].(string)
	if !ok || strings.TrimSpace(value) == "" {
		if required {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": field + " is required and must be a string",
			})
		}
		return c.Next()
	}

	if len(value) > maxLen {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": field + " exceeds maximum length",
		})
	}

	if injectionPattern.MatchString(value) {
		cfg.Logger.Warn("Potential injection attempt",
			zap.String("ip", c.IP()),
			zap.String("field", field),
		)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid " + field + " content",
		})
	}

	return c.Next()
}
