package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the JSON body sent for error statuses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// OK sends an HTTP 200 OK response with a custom body.
func OK(c *fiber.Ctx, s any) error {
	return c.Status(http.StatusOK).JSON(s)
}

// JSONResponse sends a custom status code and body as a JSON response.
func JSONResponse(c *fiber.Ctx, status int, s any) error {
	return c.Status(status).JSON(s)
}

// ServiceUnavailable sends an HTTP 503 Service Unavailable response with a
// custom code, title and message.
func ServiceUnavailable(c *fiber.Ctx, code, title, message string) error {
	return c.Status(http.StatusServiceUnavailable).JSON(ErrorResponse{
		Code:    code,
		Title:   title,
		Message: message,
	})
}
