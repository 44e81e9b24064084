// Package worker implements the state machine wrapping one worker process.
//
//	Initial ──► Fresh ──► Busy ◄──► Targeted
//	   │          │        │           │
//	   └──────────┴────────┴───────────┴──► Timeouted | Outdated
//
// Transitions outside the table panic with an InvalidTransitionError. Workers
// are not safe for concurrent use; the scheduler loop is their only owner.
package worker

import (
	"fmt"
	"io"
	"time"

	"github.com/spicaengine/fnscheduler/internal/models"
	srvErrors "github.com/spicaengine/fnscheduler/pkg/errors"
	"github.com/spicaengine/fnscheduler/pkg/runtime"
)

// ScheduleFunc hands an event to the worker process. It is supplied by the
// transport every time the worker reports it is ready to receive work.
type ScheduleFunc func(models.Event) error

type Worker struct {
	id       string
	state    State
	target   *models.Target
	schedule ScheduleFunc
	process  runtime.Process
	stderr   io.Writer
	event    string
	metrics  models.WorkerMetrics
}

func New(id string, spawnTime time.Time) *Worker {
	return &Worker{
		id:    id,
		state: Initial,
		metrics: models.WorkerMetrics{
			SpawnTime: spawnTime,
			LastUsed:  spawnTime,
		},
	}
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) State() State {
	return w.state
}

// Target returns the target the worker is bound to, if any.
func (w *Worker) Target() (models.Target, bool) {
	if w.target == nil {
		return models.Target{}, false
	}
	return *w.target, true
}

func (w *Worker) IsBoundTo(targetID string) bool {
	return w.target != nil && w.target.ID == targetID
}

// CurrentEvent is the id of the last event handed to the worker.
func (w *Worker) CurrentEvent() string {
	return w.event
}

func (w *Worker) Metrics() models.WorkerMetrics {
	return w.metrics
}

// MarkUsed records an assignment at now.
func (w *Worker) MarkUsed(now time.Time) {
	w.metrics.LastUsed = now
	w.metrics.ExecutionCount++
}

// ObserveExecution folds a finished execution into the worker's average.
func (w *Worker) ObserveExecution(d time.Duration) {
	w.metrics.Observe(d)
}

func (w *Worker) Process() runtime.Process {
	return w.process
}

func (w *Worker) SetProcess(p runtime.Process) {
	w.process = p
}

// Attach points the process output at the sinks of the current event.
func (w *Worker) Attach(stdout, stderr io.Writer) {
	w.stderr = stderr
	if w.process != nil {
		w.process.Attach(stdout, stderr)
	}
}

// Stderr is the sink attached for the current event, nil before the first one.
func (w *Worker) Stderr() io.Writer {
	return w.stderr
}

// Execute binds the worker to the event's target and hands the event over.
func (w *Worker) Execute(e models.Event) error {
	if !CanTransition(w.state, Busy) {
		panic(srvErrors.NewInvalidTransitionError(w.id, w.state.String(), Busy.String()))
	}
	if w.target != nil && w.target.ID != e.Target.ID {
		panic(fmt.Sprintf("worker %s is bound to target %s, cannot execute event %s of target %s",
			w.id, w.target.ID, e.ID, e.Target.ID))
	}

	w.state = Busy
	if w.target == nil {
		t := e.Target
		w.target = &t
	}
	w.event = e.ID

	return w.schedule(e)
}

// MarkAsAvailable moves Initial to Fresh or Busy to Targeted and stores the
// callback used for the next Execute.
func (w *Worker) MarkAsAvailable(fn ScheduleFunc) {
	switch w.state {
	case Initial:
		w.transition(Fresh)
	default:
		w.transition(Targeted)
	}
	w.schedule = fn
}

// Refresh replaces the schedule callback of an already available worker.
func (w *Worker) Refresh(fn ScheduleFunc) {
	if !w.state.IsAvailable() {
		panic(srvErrors.NewInvalidTransitionError(w.id, w.state.String(), w.state.String()))
	}
	w.schedule = fn
}

// MarkAsTimeouted is a no-op on workers that are already terminal.
func (w *Worker) MarkAsTimeouted() {
	if w.state.IsTerminal() {
		return
	}
	w.transition(Timeouted)
}

// MarkAsOutdated is a no-op on workers that are already terminal.
func (w *Worker) MarkAsOutdated() {
	if w.state.IsTerminal() {
		return
	}
	w.transition(Outdated)
}

// Kill terminates the process. A worker still spawning has nothing to kill yet;
// the scheduler kills it as soon as the process shows up.
func (w *Worker) Kill() error {
	if w.process == nil {
		return nil
	}
	return w.process.Kill()
}

func (w *Worker) transition(to State) {
	if !CanTransition(w.state, to) {
		panic(srvErrors.NewInvalidTransitionError(w.id, w.state.String(), to.String()))
	}
	w.state = to
}
