package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memohai/chatgate/internal/config"
)

// readBody reads the request body up to limit bytes. Larger bodies are
// rejected with 413.
func readBody(c echo.Context, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = config.DefaultBodyLimitBytes
	}
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}
	if int64(len(body)) > limit {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	return body, nil
}

// ErrorResponse is the JSON error body of the webhook and chat routes.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func errorBody(msg string) ErrorResponse {
	return ErrorResponse{Error: msg}
}
