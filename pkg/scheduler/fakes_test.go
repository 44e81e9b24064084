package scheduler_test

import (
	"context"
	"io"
	"slices"
	"sync"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/pkg/eventqueue"
	"github.com/spicaengine/fnscheduler/pkg/runtime"
	"github.com/spicaengine/fnscheduler/pkg/scheduler"
)

type fakeProcess struct {
	id     string
	once   sync.Once
	mu     sync.Mutex
	killed bool
	exited chan struct{}
}

func newFakeProcess(id string) *fakeProcess {
	return &fakeProcess{id: id, exited: make(chan struct{})}
}

func (p *fakeProcess) ID() string              { return p.id }
func (p *fakeProcess) Attach(_, _ io.Writer)   {}
func (p *fakeProcess) Exited() <-chan struct{} { return p.exited }

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit()
	return nil
}

// Exit simulates the process dying on its own.
func (p *fakeProcess) Exit() {
	p.once.Do(func() { close(p.exited) })
}

func (p *fakeProcess) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeRuntime struct {
	mu      sync.Mutex
	ids     []string
	opts    []runtime.SpawnOptions
	procs   map[string]*fakeProcess
	spawnFn func(runtime.SpawnOptions) error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{procs: make(map[string]*fakeProcess)}
}

func (r *fakeRuntime) Spawn(_ context.Context, opts runtime.SpawnOptions) (runtime.Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spawnFn != nil {
		if err := r.spawnFn(opts); err != nil {
			return nil, err
		}
	}
	p := newFakeProcess(opts.ID)
	r.ids = append(r.ids, opts.ID)
	r.opts = append(r.opts, opts)
	r.procs[opts.ID] = p
	return p, nil
}

func (r *fakeRuntime) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ids)
}

func (r *fakeRuntime) Options() []runtime.SpawnOptions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.opts)
}

// Live counts spawned processes that have not exited.
func (r *fakeRuntime) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.procs {
		select {
		case <-p.exited:
		default:
			n++
		}
	}
	return n
}

func (r *fakeRuntime) Process(id string) *fakeProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[id]
}

type fakeTransport struct {
	mu       sync.Mutex
	handler  eventqueue.Handler
	released []string
	killed   bool
}

func (t *fakeTransport) Bind(h eventqueue.Handler)    { t.handler = h }
func (t *fakeTransport) Listen(context.Context) error { return nil }
func (t *fakeTransport) Addr() string                 { return "127.0.0.1:5678" }

func (t *fakeTransport) Kill(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.killed = true
	return nil
}

func (t *fakeTransport) Killed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.killed
}

func (t *fakeTransport) Release(eventID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released = append(t.released, eventID)
}

func (t *fakeTransport) Released() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.released)
}

type recordingSinks struct {
	mu      sync.Mutex
	lines   []string
	flushed []string
}

func (s *recordingSinks) Open(eventID, _ string) scheduler.Output {
	return scheduler.Output{
		Stdout: io.Discard,
		Stderr: io.Discard,
		Flush: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.flushed = append(s.flushed, eventID)
		},
	}
}

func (s *recordingSinks) Flushed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.flushed)
}

func (s *recordingSinks) Diagnose(_, _, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *recordingSinks) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

type recordingRecorder struct {
	mu      sync.Mutex
	actions []models.ScaleAction
}

func (r *recordingRecorder) Record(_ context.Context, a models.ScaleAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return nil
}

func (r *recordingRecorder) Actions() []models.ScaleAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.actions)
}

type fakeEnqueuer struct {
	t       models.EventType
	mu      sync.Mutex
	drained []models.Event
}

func (e *fakeEnqueuer) Type() models.EventType { return e.t }

func (e *fakeEnqueuer) OnEventsAreDrained(_ context.Context, events []models.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drained = append(e.drained, events...)
	return nil
}

func (e *fakeEnqueuer) Drained() []models.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.drained)
}
