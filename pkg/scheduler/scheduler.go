package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/spicaengine/fnscheduler/internal/config"
	"github.com/spicaengine/fnscheduler/internal/models"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
	"github.com/spicaengine/fnscheduler/pkg/runtime"
	"github.com/spicaengine/fnscheduler/pkg/worker"
	"github.com/spicaengine/fnscheduler/pkg/workpool"
)

const sideEffectWorkers = 4

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithSinks(sinks Sinks) Option {
	return func(s *Scheduler) { s.sinks = sinks }
}

func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithEntrypoint sets the script every worker process runs.
func WithEntrypoint(path string) Option {
	return func(s *Scheduler) { s.entrypoint = path }
}

// WithEnv adds variables to every worker process.
func WithEnv(env map[string]string) Option {
	return func(s *Scheduler) { maps.Copy(s.env, env) }
}

type Scheduler struct {
	cfg        config.Scheduler
	runtime    runtime.Runtime
	transport  Transport
	clock      Clock
	sinks      Sinks
	recorder   Recorder
	entrypoint string
	env        map[string]string
	pool       *workpool.Pool

	// owned by the loop goroutine
	workers      map[string]*worker.Worker
	outputs      map[string]Output
	pending      *pendingEvents
	inflight     map[string]inflight
	timers       *timerRegistry
	load         *loadMetrics
	enqueuers    map[models.EventType]Enqueuer
	emptyWaiters []chan struct{}
	started      bool
	shuttingDown bool

	status atomic.Pointer[models.Status]
	ops    chan func()
	close  chan struct{}
	done   chan struct{}
	once   sync.Once
	log    *zap.SugaredLogger
}

// New builds a scheduler and starts its loop. Workers are only spawned once
// Start is called.
func New(cfg config.Scheduler, rt runtime.Runtime, transport Transport, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		runtime:   rt,
		transport: transport,
		clock:     clock.RealClock{},
		env:       make(map[string]string),
		workers:   make(map[string]*worker.Worker),
		outputs:   make(map[string]Output),
		pending:   newPendingEvents(),
		inflight:  make(map[string]inflight),
		load:      newLoadMetrics(cfg.ResponseTimeSamples),
		enqueuers: make(map[models.EventType]Enqueuer),
		ops:       make(chan func()),
		close:     make(chan struct{}),
		done:      make(chan struct{}),
		log:       zap.S().Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.sinks == nil {
		if cfg.InvocationLogs {
			s.sinks = NewLoggerSinks(zap.L())
		} else {
			s.sinks = NewStdSinks()
		}
	}
	s.timers = newTimerRegistry(s.clock)
	s.pool = workpool.New("scheduler-side-effects", sideEffectWorkers)
	s.publishStatus()

	transport.Bind(s)
	go s.run()

	return s
}

// Start opens the transport and spawns the initial workers: minWorkers with
// auto-scaling, a single one otherwise.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.transport.Listen(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	return s.do(func() {
		s.started = true
		n := 1
		if s.cfg.AutoScaling.Enabled {
			n = s.cfg.AutoScaling.MinWorkers
		}
		for range n {
			s.spawn()
		}
		s.log.Infow("scheduler started", "workers", n, "auto_scaling", s.cfg.AutoScaling.Enabled, "transport", s.transport.Addr())
	})
}

// GetStatus is safe to call from any goroutine and never waits on the loop.
func (s *Scheduler) GetStatus() models.Status {
	return *s.status.Load()
}

func (s *Scheduler) Enqueue(e models.Event) error {
	var err error
	if derr := s.do(func() { err = s.enqueue(e) }); derr != nil {
		return derr
	}
	return err
}

func (s *Scheduler) Cancel(eventID string) error {
	var err error
	if derr := s.do(func() { err = s.cancel(eventID) }); derr != nil {
		return derr
	}
	return err
}

func (s *Scheduler) Complete(eventID string, success bool) {
	_ = s.do(func() { s.complete(eventID, success) })
}

func (s *Scheduler) GotWorker(workerID string, fn worker.ScheduleFunc) {
	_ = s.do(func() { s.gotWorker(workerID, fn) })
}

// Undeliverable puts back an event the transport accepted for a worker that
// hung up before receiving it. The worker is retired.
func (s *Scheduler) Undeliverable(workerID string, e models.Event) {
	_ = s.do(func() { s.undeliverable(workerID, e) })
}

func (s *Scheduler) RegisterEnqueuer(e Enqueuer) error {
	return s.do(func() {
		s.enqueuers[e.Type()] = e
		s.log.Debugw("enqueuer registered", "type", e.Type())
	})
}

// Outdate retires every worker bound to the target, e.g. after its code
// changed. Idle workers go now, busy ones when they finish. It returns the
// number of workers affected.
func (s *Scheduler) Outdate(targetID string) (int, error) {
	var n int
	err := s.do(func() { n = s.outdate(targetID) })
	return n, err
}

// Kill drains pending events back to their enqueuers, retires every worker
// that is not executing and waits for the pool to empty or ctx to expire.
func (s *Scheduler) Kill(ctx context.Context) error {
	var (
		drained   map[models.EventType][]models.Event
		enqueuers map[models.EventType]Enqueuer
		empty     = make(chan struct{})
	)
	err := s.do(func() {
		s.shuttingDown = true
		drained = s.pending.Drain()
		for _, events := range drained {
			for _, e := range events {
				s.transport.Release(e.ID)
			}
		}
		enqueuers = maps.Clone(s.enqueuers)

		for _, w := range s.workers {
			switch w.State() {
			case worker.Busy, worker.Timeouted:
				continue
			}
			w.MarkAsOutdated()
			s.kill(w)
		}

		if len(s.workers) == 0 {
			close(empty)
		} else {
			s.emptyWaiters = append(s.emptyWaiters, empty)
		}
	})
	if err != nil {
		return err
	}

	for t, events := range drained {
		e, ok := enqueuers[t]
		if !ok {
			s.log.Warnw("no enqueuer for drained events", "type", t, "count", len(events))
			continue
		}
		if err := e.OnEventsAreDrained(ctx, events); err != nil {
			s.log.Errorw("enqueuer failed to take back drained events", "type", t, "error", err)
		}
	}

	var result error
	select {
	case <-empty:
	case <-ctx.Done():
		result = fmt.Errorf("waiting for workers to exit: %w", ctx.Err())
		// nothing tracks the processes once the loop is gone
		_ = s.do(s.killAll)
	}

	s.once.Do(func() {
		close(s.close)
		<-s.done
	})
	s.pool.Close()

	if c, ok := s.runtime.(io.Closer); ok {
		result = errors.Join(result, c.Close())
	}
	if err := s.transport.Kill(ctx); err != nil {
		result = errors.Join(result, fmt.Errorf("failed to stop transport: %w", err))
	}

	s.log.Info("scheduler stopped")
	return result
}

func (s *Scheduler) run() {
	defer close(s.done)

	var tick <-chan time.Time
	if s.cfg.AutoScaling.Enabled {
		ticker := s.clock.NewTicker(s.cfg.ScaleInterval)
		defer ticker.Stop()
		tick = ticker.C()
	}

	for {
		select {
		case op := <-s.ops:
			op()
		case <-tick:
			s.scaleTick()
		case <-s.close:
			s.timers.CancelAll()
			return
		}
		s.publishStatus()
	}
}

// do runs fn on the loop and waits for it, status included.
func (s *Scheduler) do(fn func()) error {
	finished := make(chan struct{})
	select {
	case s.ops <- func() {
		fn()
		s.publishStatus()
		close(finished)
	}:
	case <-s.done:
		return srvErrors.NewSchedulerClosedError()
	}
	<-finished
	return nil
}

// send queues fn on the loop and reports whether the loop took it.
func (s *Scheduler) send(fn func()) bool {
	select {
	case s.ops <- fn:
		return true
	case <-s.done:
		return false
	}
}

// post queues fn on the loop without waiting. Timer callbacks and pool
// completions use it, so it never blocks the caller.
func (s *Scheduler) post(fn func()) {
	go func() {
		select {
		case s.ops <- fn:
		case <-s.done:
		}
	}()
}
