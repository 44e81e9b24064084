package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/internal/store"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
)

type Scheduler interface {
	GetStatus() models.Status
	Outdate(targetID string) (int, error)
}

type History interface {
	List(ctx context.Context, opts ...store.ListOption) ([]models.ScaleAction, error)
	Count(ctx context.Context, opts ...store.ListOption) (int, error)
	Latest(ctx context.Context) (*models.ScaleAction, error)
}

type Submitter interface {
	Submit(target models.Target, payload json.RawMessage) (string, error)
	Cancel(eventID string) error
}

type Handler struct {
	scheduler Scheduler
	history   History
	system    Submitter
}

func New(scheduler Scheduler, history History, system Submitter) *Handler {
	return &Handler{
		scheduler: scheduler,
		history:   history,
		system:    system,
	}
}

// Register mounts every ops route on router.
func (h *Handler) Register(router gin.IRoutes) {
	router.GET("/status", h.GetStatus)
	router.GET("/scaling/history", h.GetScalingHistory)
	router.GET("/scaling/history/latest", h.GetLatestScaleAction)
	router.POST("/events", h.CreateEvent)
	router.DELETE("/events/:id", h.DeleteEvent)
	router.POST("/targets/:id/outdate", h.OutdateTarget)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case srvErrors.IsResourceNotFoundError(err):
		return http.StatusNotFound
	case srvErrors.IsDuplicateEventError(err):
		return http.StatusConflict
	case srvErrors.IsUnknownQueueError(err):
		return http.StatusBadRequest
	case srvErrors.IsSchedulerClosedError(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
