// Package http holds the Fiber handlers for the user-facing API.
package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"calsync_server/infra/middleware"
	"calsync_server/pkg/apperr"
)

// APIResponse represents a standard API response. Errors are rendered by
// middleware.ErrorHandler in the same envelope.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SuccessResponse sends a standardized JSON success response
func SuccessResponse(c *fiber.Ctx, data any) error {
	return successWithStatus(c, fiber.StatusOK, data)
}

func successWithStatus(c *fiber.Ctx, status int, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// MustGetUser returns the session user or an UNAUTHORIZED error.
func MustGetUser(c *fiber.Ctx) (string, error) {
	user, ok := middleware.User(c)
	if !ok {
		return "", apperr.Unauthorized("")
	}
	return user, nil
}

func parseBody(c *fiber.Ctx, dest any) error {
	if err := c.BodyParser(dest); err != nil {
		return apperr.BadRequest("invalid request body").WithError(err)
	}
	return nil
}
