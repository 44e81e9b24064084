package scheduler

import (
	"context"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/spicaengine/fnscheduler/internal/models"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
	"github.com/spicaengine/fnscheduler/pkg/runtime"
	"github.com/spicaengine/fnscheduler/pkg/worker"
)

func (s *Scheduler) enqueue(e models.Event) error {
	if s.shuttingDown {
		return srvErrors.NewSchedulerClosedError()
	}
	if _, running := s.inflight[e.ID]; running || s.pending.Has(e.ID) {
		return srvErrors.NewDuplicateEventError(e.ID)
	}

	e.EnqueuedAt = s.clock.Now()
	s.pending.Push(e)
	s.debugw("event enqueued", "event_id", e.ID, "type", e.Type, "function_id", e.Target.ID)

	s.process()
	return nil
}

func (s *Scheduler) cancel(eventID string) error {
	if !s.pending.Remove(eventID) {
		return srvErrors.NewEventNotFoundError(eventID)
	}
	s.debugw("event cancelled", "event_id", eventID)
	return nil
}

func (s *Scheduler) complete(eventID string, success bool) {
	inf, ok := s.inflight[eventID]
	if !ok {
		s.log.Debugw("completion for unknown event", "event_id", eventID)
		return
	}
	delete(s.inflight, eventID)

	elapsed := s.clock.Since(inf.dispatchedAt)
	if w, ok := s.workers[inf.workerID]; ok && w.CurrentEvent() == eventID {
		s.timers.Cancel(inf.workerID)
		w.ObserveExecution(elapsed)
		s.flushOutput(inf.workerID, false)
	}
	s.debugw("event completed", "event_id", eventID, "worker_id", inf.workerID, "success", success, "duration", elapsed)
}

func (s *Scheduler) gotWorker(workerID string, fn worker.ScheduleFunc) {
	w, ok := s.workers[workerID]
	if !ok {
		s.log.Warnw("unknown worker asked for work", "worker_id", workerID)
		return
	}

	// the previous execution is over whether or not it reported completion
	s.timers.Cancel(workerID)
	if ev := w.CurrentEvent(); ev != "" {
		if inf, ok := s.inflight[ev]; ok && inf.workerID == workerID {
			delete(s.inflight, ev)
			s.transport.Release(ev)
		}
	}

	switch st := w.State(); {
	case st == worker.Outdated:
		s.kill(w)
		return
	case st == worker.Timeouted:
		return
	case s.shuttingDown:
		w.MarkAsOutdated()
		s.kill(w)
		return
	case st.IsAvailable():
		w.Refresh(fn)
	default:
		w.MarkAsAvailable(fn)
	}
	s.debugw("worker available", "worker_id", workerID, "state", w.State())

	s.process()
}

// process walks pending events in arrival order and places each on a worker.
// Events nobody can take right now are the demand fed to the scaler.
func (s *Scheduler) process() {
	if s.shuttingDown {
		return
	}

	var (
		unplaced int
		demand   = make(map[string]targetDemand)
	)
	for _, e := range s.pending.List() {
		w, bound := s.takeAWorker(e.Target.ID)
		if w != nil {
			s.dispatch(w, e)
			continue
		}
		unplaced++
		if bound >= s.cfg.MaxConcurrency {
			continue
		}
		d := demand[e.Target.ID]
		d.events++
		d.bound = bound
		demand[e.Target.ID] = d
	}

	if unplaced == 0 {
		return
	}
	if s.cfg.AutoScaling.Enabled {
		s.scaleUp(demand)
		return
	}
	s.spawnSpare()
}

type targetDemand struct {
	events int
	bound  int
}

// takeAWorker prefers a warm worker already bound to the target. A Fresh one
// is only bound while the target is below maxConcurrency. It also returns how
// many live workers are bound to the target.
func (s *Scheduler) takeAWorker(targetID string) (*worker.Worker, int) {
	var targeted, fresh *worker.Worker
	bound := 0
	for _, w := range s.workers {
		st := w.State()
		if st.IsTerminal() {
			continue
		}
		if w.IsBoundTo(targetID) {
			bound++
			if st == worker.Targeted && older(w, targeted) {
				targeted = w
			}
			continue
		}
		if st == worker.Fresh && older(w, fresh) {
			fresh = w
		}
	}

	switch {
	case targeted != nil:
		return targeted, bound
	case fresh != nil && bound < s.cfg.MaxConcurrency:
		return fresh, bound
	}
	return nil, bound
}

// older orders workers by spawn time then id so placement is deterministic.
func older(w, than *worker.Worker) bool {
	if than == nil {
		return true
	}
	a, b := w.Metrics().SpawnTime, than.Metrics().SpawnTime
	if a.Equal(b) {
		return w.ID() < than.ID()
	}
	return a.Before(b)
}

func (s *Scheduler) dispatch(w *worker.Worker, e models.Event) {
	s.flushOutput(w.ID(), true)
	out := s.sinks.Open(e.ID, e.Target.ID)
	s.outputs[w.ID()] = out
	w.Attach(out.Stdout, out.Stderr)

	if err := w.Execute(e); err != nil {
		// the worker stopped listening; it keeps the event out of its hands
		s.log.Warnw("worker rejected event", "worker_id", w.ID(), "event_id", e.ID, "error", err)
		w.MarkAsOutdated()
		s.kill(w)
		return
	}

	now := s.clock.Now()
	timeout := s.timeoutFor(e)
	workerID, eventID := w.ID(), e.ID
	s.timers.Arm(workerID, timeout, func() {
		s.post(func() { s.timeouted(workerID, eventID) })
	})

	s.pending.Remove(e.ID)
	s.inflight[e.ID] = inflight{workerID: workerID, event: e, dispatchedAt: now, timeout: timeout}
	w.MarkUsed(now)
	s.load.Observe(now.Sub(e.EnqueuedAt))

	s.debugw("event dispatched", "event_id", e.ID, "worker_id", workerID, "function_id", e.Target.ID, "timeout", timeout)
}

// timeoutFor is the smaller of the target's own timeout and the global
// ceiling. A target timeout of zero means none was set.
func (s *Scheduler) timeoutFor(e models.Event) time.Duration {
	seconds := s.cfg.Timeout
	if t := e.Target.Context.Timeout; t > 0 && t < seconds {
		seconds = t
	}
	return time.Duration(seconds) * time.Second
}

func (s *Scheduler) timeouted(workerID, eventID string) {
	inf, ok := s.inflight[eventID]
	if !ok || inf.workerID != workerID {
		return
	}
	w, ok := s.workers[workerID]
	if !ok || w.CurrentEvent() != eventID {
		return
	}

	delete(s.inflight, eventID)
	s.timers.Cancel(workerID)
	w.MarkAsTimeouted()

	s.flushOutput(workerID, false)
	s.sinks.Diagnose(eventID, inf.event.Target.ID, timeoutMessage(inf.event.Target.Handler, int(inf.timeout/time.Second)))
	s.log.Warnw("execution timed out", "event_id", eventID, "worker_id", workerID, "timeout", inf.timeout)

	s.kill(w)
	s.transport.Release(eventID)
}

func (s *Scheduler) undeliverable(workerID string, e models.Event) {
	inf, ok := s.inflight[e.ID]
	if !ok || inf.workerID != workerID {
		return
	}
	delete(s.inflight, e.ID)
	s.timers.Cancel(workerID)
	if w, ok := s.workers[workerID]; ok && !w.State().IsTerminal() {
		w.MarkAsOutdated()
		s.kill(w)
	}

	if s.shuttingDown {
		s.log.Warnw("dropping undelivered event during shutdown", "event_id", e.ID, "worker_id", workerID)
		s.transport.Release(e.ID)
		return
	}
	s.pending.Requeue(inf.event)
	s.debugw("event put back", "event_id", e.ID, "worker_id", workerID)
	s.process()
}

func (s *Scheduler) outdate(targetID string) int {
	n := 0
	for _, w := range s.workers {
		if !w.IsBoundTo(targetID) || w.State().IsTerminal() {
			continue
		}
		busy := w.State() == worker.Busy
		w.MarkAsOutdated()
		if !busy {
			s.kill(w)
		}
		n++
	}
	if n > 0 {
		s.log.Infow("target outdated", "function_id", targetID, "workers", n)
	}
	return n
}

// spawnSpare keeps one unbound worker coming when nothing can take an event.
func (s *Scheduler) spawnSpare() {
	for _, w := range s.workers {
		if st := w.State(); st == worker.Fresh || st == worker.Initial {
			return
		}
	}
	s.spawn()
}

// spawn registers a worker in Initial state right away and starts its process
// off the loop.
func (s *Scheduler) spawn() *worker.Worker {
	id := uuid.NewString()
	w := worker.New(id, s.clock.Now())
	s.workers[id] = w

	env := maps.Clone(s.env)
	env[runtime.EnvEnqueuerAddr] = s.transport.Addr()
	opts := runtime.SpawnOptions{ID: id, Env: env, EntrypointPath: s.entrypoint}

	s.pool.Go(id, func(ctx context.Context) {
		p, err := s.runtime.Spawn(ctx, opts)
		if !s.send(func() { s.spawned(id, p, err) }) && err == nil {
			_ = p.Kill()
		}
	})

	s.debugw("worker spawning", "worker_id", id)
	return w
}

func (s *Scheduler) spawned(id string, p runtime.Process, err error) {
	w, ok := s.workers[id]
	if err != nil {
		s.log.Errorw("failed to spawn worker", "worker_id", id, "error", err)
		if ok {
			s.lostWorker(id)
		}
		return
	}
	if !ok {
		_ = p.Kill()
		return
	}

	w.SetProcess(p)
	go func() {
		<-p.Exited()
		s.post(func() { s.lostWorker(id) })
	}()

	if w.State().IsTerminal() {
		s.kill(w)
	}
}

// kill signals the worker's process off the loop. The worker leaves the pool
// once its process has actually exited.
func (s *Scheduler) kill(w *worker.Worker) {
	id, p := w.ID(), w.Process()
	if p == nil {
		// still spawning, spawned kills it on arrival
		return
	}
	s.pool.Go(id, func(context.Context) {
		if err := p.Kill(); err != nil {
			s.log.Warnw("failed to kill worker", "worker_id", id, "error", err)
		}
	})
}

// lostWorker removes a worker whose process is gone, for whatever reason.
func (s *Scheduler) lostWorker(id string) {
	w, ok := s.workers[id]
	if !ok {
		return
	}
	delete(s.workers, id)
	s.timers.Cancel(id)
	s.flushOutput(id, true)

	if ev := w.CurrentEvent(); ev != "" {
		if inf, ok := s.inflight[ev]; ok && inf.workerID == id {
			delete(s.inflight, ev)
			s.transport.Release(ev)
			s.log.Warnw("worker exited during execution", "worker_id", id, "event_id", ev)
		}
	}
	s.debugw("worker removed", "worker_id", id, "state", w.State())

	if len(s.workers) == 0 {
		s.log.Info("last worker lost")
		for _, ch := range s.emptyWaiters {
			close(ch)
		}
		s.emptyWaiters = nil
	}
}

// killAll signals every process still known, waiting for each Kill call.
func (s *Scheduler) killAll() {
	for _, w := range s.workers {
		if !w.State().IsTerminal() {
			w.MarkAsOutdated()
		}
		p := w.Process()
		if p == nil {
			continue
		}
		if err := p.Kill(); err != nil {
			s.log.Warnw("failed to kill worker", "worker_id", w.ID(), "error", err)
		}
	}
}

// flushOutput emits what the worker's current output holds. release also
// forgets the output, before a new execution or when the worker is gone.
func (s *Scheduler) flushOutput(workerID string, release bool) {
	out, ok := s.outputs[workerID]
	if !ok {
		return
	}
	out.Flush()
	if release {
		delete(s.outputs, workerID)
	}
}

func (s *Scheduler) debugw(msg string, keysAndValues ...any) {
	if s.cfg.Debug {
		s.log.Infow(msg, keysAndValues...)
		return
	}
	s.log.Debugw(msg, keysAndValues...)
}
