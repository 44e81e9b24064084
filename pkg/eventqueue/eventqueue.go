package eventqueue

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/models"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
	"github.com/spicaengine/fnscheduler/pkg/worker"
)

// Handler receives the lifecycle callbacks raised by the queue.
type Handler interface {
	Enqueue(event models.Event) error
	Cancel(eventID string) error
	Complete(eventID string, success bool)
	GotWorker(workerID string, schedule worker.ScheduleFunc)
	// Undeliverable hands back an event the schedule func accepted for a
	// worker whose long poll ended before the event could be written.
	Undeliverable(workerID string, event models.Event)
}

// Queue is a typed sub-queue owning the per-event state of one trigger type.
type Queue interface {
	Type() models.EventType
	Enqueue(event models.Event)
	Dequeue(eventID string)
	Register(r gin.IRoutes)
}

type EventQueue struct {
	addr    string
	handler Handler

	mu     sync.RWMutex
	queues map[models.EventType]Queue
	owners map[string]models.EventType

	engine   *gin.Engine
	srv      *http.Server
	listener net.Listener
	closing  chan struct{}
	once     sync.Once
}

// New creates a queue that will listen on addr. A "unix:" prefix selects a
// unix socket.
func New(addr string) *EventQueue {
	gin.SetMode(gin.ReleaseMode)
	logger := zap.L().Named("transport")

	q := &EventQueue{
		addr:    addr,
		queues:  make(map[models.EventType]Queue),
		owners:  make(map[string]models.EventType),
		engine:  gin.New(),
		closing: make(chan struct{}),
	}
	q.engine.Use(ginzap.Ginzap(logger, time.RFC3339, true), ginzap.RecoveryWithZap(logger, true))
	q.engine.GET("/workers/:id/next", q.next)
	q.engine.POST("/events/:id/complete", q.complete)

	return q
}

// Bind injects the handler. It must be called before Listen.
func (q *EventQueue) Bind(h Handler) {
	q.handler = h
}

// AddQueue registers the sub-queue for its event type and mounts its routes.
func (q *EventQueue) AddQueue(sub Queue) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queues[sub.Type()] = sub
	sub.Register(q.engine.Group("/queues/" + sub.Type().Value()))
}

func (q *EventQueue) Enqueue(e models.Event) error {
	q.mu.Lock()
	sub, ok := q.queues[e.Type]
	if !ok {
		q.mu.Unlock()
		return srvErrors.NewUnknownQueueError(e.Type.Value())
	}
	if _, exists := q.owners[e.ID]; exists {
		q.mu.Unlock()
		return srvErrors.NewDuplicateEventError(e.ID)
	}
	q.owners[e.ID] = e.Type
	sub.Enqueue(e)
	q.mu.Unlock()

	if err := q.handler.Enqueue(e); err != nil {
		q.Release(e.ID)
		return err
	}
	return nil
}

func (q *EventQueue) Cancel(eventID string) error {
	if err := q.handler.Cancel(eventID); err != nil {
		return err
	}
	q.Release(eventID)
	return nil
}

// Release drops the sub-queue state of an event that will never complete
// through the transport (cancelled, timed out, lost with its worker, drained).
func (q *EventQueue) Release(eventID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.owners[eventID]
	if !ok {
		return
	}
	delete(q.owners, eventID)
	if sub, ok := q.queues[t]; ok {
		sub.Dequeue(eventID)
	}
}

// Listen starts accepting worker connections and returns once the listener is bound.
func (q *EventQueue) Listen(ctx context.Context) error {
	network, address := "tcp", q.addr
	if path, ok := strings.CutPrefix(q.addr, "unix:"); ok {
		network, address = "unix", path
	}

	var lc net.ListenConfig
	l, err := lc.Listen(ctx, network, address)
	if err != nil {
		return err
	}
	q.listener = l
	q.srv = &http.Server{Handler: q.engine, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := q.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.S().Named("transport").Errorw("transport stopped", "error", err)
		}
	}()

	zap.S().Named("transport").Infow("listening for workers", "address", l.Addr().String())
	return nil
}

// Addr is the bound address, usable once Listen returned.
func (q *EventQueue) Addr() string {
	if q.listener == nil {
		return q.addr
	}
	if q.listener.Addr().Network() == "unix" {
		return "unix:" + q.listener.Addr().String()
	}
	return q.listener.Addr().String()
}

// Handler exposes the transport routes, mostly for tests.
func (q *EventQueue) Handler() http.Handler {
	return q.engine
}

// Kill releases waiting workers and closes the transport.
func (q *EventQueue) Kill(ctx context.Context) error {
	q.once.Do(func() { close(q.closing) })
	if q.srv == nil {
		return nil
	}
	return q.srv.Shutdown(ctx)
}

func (q *EventQueue) next(c *gin.Context) {
	workerID := c.Param("id")
	ctx := c.Request.Context()
	ch := make(chan models.Event, 1)

	var (
		mu   sync.Mutex
		gone bool
	)
	schedule := func(e models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		if gone || ctx.Err() != nil {
			return srvErrors.NewWorkerNotWaitingError(workerID)
		}
		select {
		case ch <- e:
			return nil
		default:
			return srvErrors.NewWorkerNotWaitingError(workerID)
		}
	}
	q.handler.GotWorker(workerID, schedule)

	var (
		e   models.Event
		got bool
	)
	select {
	case e = <-ch:
		got = true
	case <-q.closing:
	case <-ctx.Done():
	}

	// from here on the schedule func refuses, so ch holds at most what was
	// accepted before
	mu.Lock()
	gone = true
	mu.Unlock()
	if !got {
		select {
		case e = <-ch:
			got = true
		default:
		}
	}

	switch {
	case got && ctx.Err() == nil:
		c.JSON(http.StatusOK, e)
	case got:
		zap.S().Named("transport").Warnw("worker left before receiving its event", "worker_id", workerID, "event_id", e.ID)
		q.handler.Undeliverable(workerID, e)
	case ctx.Err() == nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event queue is shutting down"})
	}
}

type completeRequest struct {
	Success bool `json:"success"`
}

func (q *EventQueue) complete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventID := c.Param("id")
	q.handler.Complete(eventID, req.Success)
	q.Release(eventID)
	c.Status(http.StatusNoContent)
}
