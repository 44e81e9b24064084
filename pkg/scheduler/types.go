package scheduler

import (
	"context"
	"time"

	"k8s.io/utils/clock"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/pkg/eventqueue"
)

// Transport is the worker-facing side of the event queue.
type Transport interface {
	Bind(h eventqueue.Handler)
	Listen(ctx context.Context) error
	Kill(ctx context.Context) error
	Addr() string
	Release(eventID string)
}

// Enqueuer is a trigger source. At shutdown it receives exactly the events of
// its type that were still pending.
type Enqueuer interface {
	Type() models.EventType
	OnEventsAreDrained(ctx context.Context, events []models.Event) error
}

// Recorder persists scaling decisions. It is called off the scheduler loop.
type Recorder interface {
	Record(ctx context.Context, action models.ScaleAction) error
}

// Clock is the time source for timers, the scale tick and metrics.
type Clock interface {
	clock.WithTicker
	AfterFunc(d time.Duration, f func()) clock.Timer
}

type inflight struct {
	workerID     string
	event        models.Event
	dispatchedAt time.Time
	timeout      time.Duration
}
