package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/jtoloui/motorway-takehome-backend/internal/errors"
)

// respondError writes the JSON error body for err. Errors that are not
// *AppError values are reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.NewInternalError(err)
	}

	status := appErr.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := appErr.Message
	if errors.Is(appErr, apperrors.ErrInternal) {
		message = apperrors.MessageInternal
	}

	body := gin.H{
		"error":  message,
		"status": status,
	}
	if appErr.Retryable {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}

// NotFound is the catch-all handler for unknown routes and methods.
func NotFound(c *gin.Context) {
	respondError(c, apperrors.NewRouteNotFoundError())
}
