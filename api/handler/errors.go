package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/imagescout/models"
)

// respondError maps err to an HTTP status and writes {error, code}.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	status := mapErrorToStatus(scrapeErr)
	if status >= http.StatusInternalServerError {
		slog.Warn("request failed", "path", c.Request.URL.Path, "code", scrapeErr.Code, "error", err)
	}
	c.JSON(status, scrapeErr.ToResponse())
}

// badRequest writes a 400 for request-binding failures.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msg, Code: models.ErrCodeInvalidInput})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeJobPending:
		return http.StatusConflict // 409
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeArchiveEmpty:
		return http.StatusBadGateway // 502
	default:
		// Upstream failures and timeouts surface as plain 500s.
		return http.StatusInternalServerError
	}
}
