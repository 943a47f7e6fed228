package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"laundry-smart-queue/internal/laundry"
)

// respondError maps lifecycle errors to a status code and a short message.
// Storage details are logged, never returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	var verr *laundry.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, laundry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
	case errors.Is(err, laundry.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "machine unavailable"})
	case errors.Is(err, laundry.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to stop this machine"})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
	}
}
