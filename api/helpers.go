package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/domain"
)

const truncationSuffix = "..."

// errorJSON writes the error envelope with the status matching the code.
func errorJSON(c echo.Context, code domain.ErrorCode, message string) error {
	return c.JSON(code.HTTPStatus(), domain.NewErrorResponse(code, message))
}

// writeStreamEvent frames one event as an SSE data line and flushes it.
func writeStreamEvent(w http.ResponseWriter, flusher http.Flusher, event domain.StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// truncate shortens s for logging. Strings at or under max come back
// unmodified; longer ones end in "..." with total length exactly max.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= len(truncationSuffix) {
		return s[:max]
	}
	return s[:max-len(truncationSuffix)] + truncationSuffix
}
