package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"laundry-smart-queue/internal/auth"
	"laundry-smart-queue/internal/report"
	"laundry-smart-queue/internal/store"
)

func usageFilter(c *gin.Context) (store.UsageFilter, bool) {
	f := store.UsageFilter{MachineID: c.Query("machine_id")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "field": "limit"})
			return f, false
		}
		f.Limit = limit
	}
	return f, true
}

// ListUsage handles GET /api/admin/usage.
func (h *Handler) ListUsage(c *gin.Context) {
	f, ok := usageFilter(c)
	if !ok {
		return
	}
	records, err := h.svc.ListUsage(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// ExportUsage handles GET /api/admin/usage/export?format=xlsx|pdf.
func (h *Handler) ExportUsage(c *gin.Context) {
	f, ok := usageFilter(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or pdf", "field": "format"})
		return
	}

	records, err := h.svc.ListUsage(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}

	now := time.Now()
	var (
		data        []byte
		contentType string
	)
	if format == "pdf" {
		data, err = report.BuildUsagePDF(records, now)
		contentType = report.ContentTypePDF
	} else {
		data, err = report.BuildUsageXLSX(records, now)
		contentType = report.ContentTypeXLSX
	}
	if err != nil {
		h.log.WithError(err).WithField("format", format).Error("rendering usage export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render export"})
		return
	}

	filename := fmt.Sprintf("laundry-usage-%s.%s", now.UTC().Format("20060102-150405"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// ForceStop handles POST /api/admin/machines/:id/stop.
func (h *Handler) ForceStop(c *gin.Context) {
	sess, _ := auth.SessionFrom(c)
	m, err := h.svc.ForceStop(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newMachineResponse(m, time.Now()))
}
