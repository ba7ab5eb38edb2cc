package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fritter/backend/pkg/errors"
)

var statusByKind = map[errors.ErrorType]int{
	errors.ErrorTypeNotFound:         http.StatusNotFound,
	errors.ErrorTypeDuplicate:        http.StatusConflict,
	errors.ErrorTypeNotAuthorized:    http.StatusForbidden,
	errors.ErrorTypeNotOwner:         http.StatusForbidden,
	errors.ErrorTypeInvariant:        http.StatusConflict,
	errors.ErrorTypeAlreadyFollowing: http.StatusConflict,
	errors.ErrorTypeNotFollowing:     http.StatusConflict,
	errors.ErrorTypeInvalidArgument:  http.StatusBadRequest,
	// the write committed; the client may retry the same call
	errors.ErrorTypeCascade: http.StatusServiceUnavailable,
}

// writeError maps err onto a stable kind, status and client-safe message
func (h *handlers) writeError(c *gin.Context, err error) {
	kind, ok := errors.KindOf(err)
	status, known := statusByKind[kind]
	if !ok || !known {
		status = http.StatusInternalServerError
		kind = "internal"
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}

	body := gin.H{
		"error": errors.PublicMessage(err),
		"kind":  kind,
	}
	if errors.IsRetryable(err) {
		body["retryable"] = true
	}
	c.AbortWithStatusJSON(status, body)
}
