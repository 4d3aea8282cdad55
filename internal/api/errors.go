package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"storyreel/internal/story/generator"
	"storyreel/internal/story/session"
)

const (
	ErrorBadRequest       = "BAD_REQUEST"
	ErrorNotFound         = "NOT_FOUND"
	ErrorConflict         = "CONFLICT"
	ErrorAssetNotReady    = "ASSET_NOT_READY"
	ErrorGenerationFailed = "GENERATION_FAILED"
	ErrorUnavailable      = "SERVICE_UNAVAILABLE"
	ErrorInternal         = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{Success: true, Data: data})
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, response{Error: &apiError{Code: code, Message: message}})
}

// fail maps session and generator errors to an HTTP status.
func fail(c *gin.Context, err error) {
	var genErr *generator.GenerationError

	switch {
	case errors.Is(err, session.ErrUnknownChapter):
		abort(c, http.StatusNotFound, ErrorNotFound, err.Error())
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrSuperseded),
		errors.Is(err, session.ErrNotPlaying),
		errors.Is(err, session.ErrNoNextChapter):
		abort(c, http.StatusConflict, ErrorConflict, err.Error())
	case errors.Is(err, session.ErrClosed):
		abort(c, http.StatusServiceUnavailable, ErrorUnavailable, err.Error())
	case errors.As(err, &genErr):
		abort(c, http.StatusBadGateway, ErrorGenerationFailed, err.Error())
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		abort(c, http.StatusInternalServerError, ErrorInternal, "internal error")
	}
}
