package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Free-text movie requests legitimately contain words like "drop" or
// "select", so only markup injection is screened.
var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

var validate = validator.New()

type Config struct {
	MaxQueryLength      int
	AllowedContentTypes []string
	// QueryPaths are the routes whose JSON body carries a "query" field.
	QueryPaths []string
	Logger     *zap.Logger
}

type queryBody struct {
	Query string `json:"query"`
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = 2000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{fiber.MIMEApplicationJSON}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	queryRule := fmt.Sprintf("required,max=%d", cfg.MaxQueryLength)

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			if ct := c.Get(fiber.HeaderContentType); ct != "" && !allowedContentType(ct, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		if c.Method() != fiber.MethodPost || !matchesPath(c.Path(), cfg.QueryPaths) {
			return c.Next()
		}

		var body queryBody
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		text := strings.TrimSpace(body.Query)
		if err := validate.Var(text, queryRule); err != nil {
			msg := "Query is required"
			if text != "" {
				msg = "Query exceeds maximum length"
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": msg,
			})
		}

		if strings.ContainsRune(text, 0) || xssPattern.MatchString(text) {
			cfg.Logger.Warn("Rejected query content",
				zap.String("ip", c.IP()),
				zap.String("query", text),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid query content",
			})
		}

		return c.Next()
	}
}

func allowedContentType(contentType string, allowed []string) bool {
	for _, a := range allowed {
		if strings.Contains(contentType, a) {
			return true
		}
	}
	return false
}

func matchesPath(path string, paths []string) bool {
	for _, p := range paths {
		if path == p {
			return true
		}
	}
	return false
}
