package transfer

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/karma/pkg/karma"
)

var (
	ErrInvalidName = errors.New("transfer: invalid name")
	ErrNotFound    = errors.New("transfer: not found")
	ErrTooLarge    = errors.New("transfer: body too large")
	ErrCorrupt     = errors.New("transfer: stored data corrupt")
)

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// statusOf maps an error to its HTTP status and error type.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, ErrCorrupt):
		return http.StatusInternalServerError, "server_error"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "invalid_request_error"
	case errors.Is(err, ErrInvalidName),
		errors.Is(err, karma.ErrFormat),
		errors.Is(err, karma.ErrStructure),
		errors.Is(err, karma.ErrStreamIO):
		return http.StatusBadRequest, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func writeError(c *echo.Context, err error) error {
	status, typ := statusOf(err)
	return c.JSON(status, map[string]any{
		"error": apiError{Message: err.Error(), Type: typ},
	})
}
