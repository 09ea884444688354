package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sadopc/punchclock/internal/timer"
)

func statusFor(kind timer.ErrorKind) int {
	switch kind {
	case timer.KindValidation:
		return http.StatusBadRequest
	case timer.KindNotFound:
		return http.StatusNotFound
	case timer.KindAlreadyRunning, timer.KindNotRunning, timer.KindConflict:
		return http.StatusConflict
	case timer.KindUnavailable, timer.KindPersistence:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders err as {"kind", "error"} with the matching status.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := timer.Kind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(status, gin.H{"kind": kind, "error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"kind": timer.KindValidation, "error": msg})
}
