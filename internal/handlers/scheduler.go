package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	formatJSON = "json"
	formatXLSX = "xlsx"
)

var scaleReasons = []models.ScaleReason{
	models.ScaleReasonUtilization,
	models.ScaleReasonNoWorker,
	models.ScaleReasonResponseTime,
	models.ScaleReasonIdle,
	models.ScaleReasonExcessIdle,
}

// GetStatus returns the worker pool snapshot
// (GET /status)
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.GetStatus())
}

// GetScalingHistory returns recorded scaling actions, newest first
// (GET /scaling/history?limit=&offset=&direction=&reason=&since=&format=)
func (h *Handler) GetScalingHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return
		}
		offset = n
	}

	filters, err := historyFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	format := c.DefaultQuery("format", formatJSON)
	if format != formatJSON && format != formatXLSX {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or xlsx"})
		return
	}

	log := zap.S().Named("scheduler_handler")
	ctx := c.Request.Context()

	opts := append(slices.Clone(filters),
		store.WithDefaultSort(),
		store.WithLimit(uint64(limit)),
		store.WithOffset(uint64(offset)),
	)
	actions, err := h.history.List(ctx, opts...)
	if err != nil {
		log.Errorw("failed to list scaling history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list scaling history"})
		return
	}

	if format == formatXLSX {
		if err := writeHistoryXLSX(c, actions); err != nil {
			log.Errorw("failed to export scaling history", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export scaling history"})
		}
		return
	}

	total, err := h.history.Count(ctx, filters...)
	if err != nil {
		log.Errorw("failed to count scaling history", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count scaling history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

// GetLatestScaleAction returns the most recent scaling action
// (GET /scaling/history/latest)
func (h *Handler) GetLatestScaleAction(c *gin.Context) {
	action, err := h.history.Latest(c.Request.Context())
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, action)
}

// historyFilters turns direction, reason and since into store options.
// They apply to both the page and the total.
func historyFilters(c *gin.Context) ([]store.ListOption, error) {
	var filters []store.ListOption

	switch d := models.ScaleDirection(c.Query("direction")); d {
	case "":
	case models.ScaleUp, models.ScaleDown:
		filters = append(filters, store.ByDirection(d))
	default:
		return nil, errors.New("direction must be up or down")
	}

	if raw := c.QueryArray("reason"); len(raw) > 0 {
		reasons := make([]models.ScaleReason, 0, len(raw))
		for _, r := range raw {
			reason := models.ScaleReason(r)
			if !slices.Contains(scaleReasons, reason) {
				return nil, fmt.Errorf("unknown reason %q", r)
			}
			reasons = append(reasons, reason)
		}
		filters = append(filters, store.ByReasons(reasons...))
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errors.New("since must be an RFC3339 timestamp")
		}
		filters = append(filters, store.Since(since))
	}

	return filters, nil
}

type createEventRequest struct {
	Target  models.Target   `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// CreateEvent submits a system event
// (POST /events)
func (h *Handler) CreateEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Target.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target.id is required"})
		return
	}

	id, err := h.system.Submit(req.Target, req.Payload)
	if err != nil {
		zap.S().Named("scheduler_handler").Warnw("failed to submit event", "function_id", req.Target.ID, "error", err)
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

// DeleteEvent cancels an event that has not been dispatched yet
// (DELETE /events/{id})
func (h *Handler) DeleteEvent(c *gin.Context) {
	if err := h.system.Cancel(c.Param("id")); err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// OutdateTarget retires all workers bound to a function
// (POST /targets/{id}/outdate)
func (h *Handler) OutdateTarget(c *gin.Context) {
	n, err := h.scheduler.Outdate(c.Param("id"))
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outdated": n})
}
