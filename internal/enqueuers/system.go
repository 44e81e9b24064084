// Package enqueuers holds the in-process trigger sources that feed the
// scheduler.
package enqueuers

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/models"
)

// Ingress is the entry point of the event queue.
type Ingress interface {
	Enqueue(e models.Event) error
	Cancel(eventID string) error
}

// PayloadStore keeps the payloads workers fetch for system events.
type PayloadStore interface {
	Put(eventID string, payload json.RawMessage)
	Dequeue(eventID string)
}

// System submits events on behalf of operators through the ops API. Drained
// events are dropped with a warning; nothing upstream can retry them.
type System struct {
	ingress  Ingress
	payloads PayloadStore
	log      *zap.SugaredLogger
}

func NewSystem(ingress Ingress, payloads PayloadStore) *System {
	return &System{
		ingress:  ingress,
		payloads: payloads,
		log:      zap.S().Named("system_enqueuer"),
	}
}

func (s *System) Type() models.EventType {
	return models.EventTypeSystem
}

// Submit enqueues one invocation of target and returns the new event id.
func (s *System) Submit(target models.Target, payload json.RawMessage) (string, error) {
	e := models.Event{
		ID:     uuid.NewString(),
		Type:   models.EventTypeSystem,
		Target: target,
	}

	// stored first, the worker may fetch it before Enqueue returns
	s.payloads.Put(e.ID, payload)
	if err := s.ingress.Enqueue(e); err != nil {
		s.payloads.Dequeue(e.ID)
		return "", err
	}

	s.log.Debugw("event submitted", "event_id", e.ID, "function_id", target.ID)
	return e.ID, nil
}

func (s *System) Cancel(eventID string) error {
	return s.ingress.Cancel(eventID)
}

func (s *System) OnEventsAreDrained(_ context.Context, events []models.Event) error {
	for _, e := range events {
		s.payloads.Dequeue(e.ID)
		s.log.Warnw("dropping pending event at shutdown", "event_id", e.ID, "function_id", e.Target.ID)
	}
	return nil
}
