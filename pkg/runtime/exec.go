package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"go.uber.org/zap"
)

const (
	defaultSpawnTries = 5
	outputWaitDelay   = 2 * time.Second
)

// ExecRuntime starts worker entrypoints as child processes.
type ExecRuntime struct {
	interpreter []string
	workDir     string
	env         map[string]string
	maxTries    uint
}

type ExecOption func(*ExecRuntime)

// WithInterpreter prefixes the entrypoint with a command, e.g. "node".
func WithInterpreter(args ...string) ExecOption {
	return func(r *ExecRuntime) {
		r.interpreter = args
	}
}

func WithWorkDir(dir string) ExecOption {
	return func(r *ExecRuntime) {
		r.workDir = dir
	}
}

// WithEnv adds variables passed to every spawned process.
func WithEnv(env map[string]string) ExecOption {
	return func(r *ExecRuntime) {
		for k, v := range env {
			r.env[k] = v
		}
	}
}

func WithMaxTries(n uint) ExecOption {
	return func(r *ExecRuntime) {
		r.maxTries = n
	}
}

func NewExecRuntime(opts ...ExecOption) *ExecRuntime {
	r := &ExecRuntime{
		env:      map[string]string{},
		maxTries: defaultSpawnTries,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProcessSpec builds the runtime-spec description of the process Spawn starts.
func (r *ExecRuntime) ProcessSpec(opts SpawnOptions) specs.Process {
	args := make([]string, 0, len(r.interpreter)+1)
	args = append(args, r.interpreter...)
	args = append(args, opts.EntrypointPath)

	merged := make(map[string]string, len(r.env)+len(opts.Env)+1)
	if path, ok := os.LookupEnv("PATH"); ok {
		merged["PATH"] = path
	}
	for k, v := range r.env {
		merged[k] = v
	}
	for k, v := range opts.Env {
		merged[k] = v
	}
	merged[EnvWorkerID] = opts.ID

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return specs.Process{
		Args: args,
		Env:  env,
		Cwd:  r.workDir,
	}
}

func (r *ExecRuntime) Spawn(ctx context.Context, opts SpawnOptions) (Process, error) {
	if opts.EntrypointPath == "" {
		return nil, errors.New("entrypoint path is empty")
	}
	spec := r.ProcessSpec(opts)

	p, err := backoff.Retry(ctx, func() (*execProcess, error) {
		p, err := start(opts.ID, spec)
		if err == nil {
			return p, nil
		}
		// the entrypoint may still be open for writing right after deployment
		if errors.Is(err, syscall.ETXTBSY) {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	},
		backoff.WithBackOff(newSpawnBackOff()),
		backoff.WithMaxTries(r.maxTries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to spawn worker %s: %w", opts.ID, err)
	}

	zap.S().Named("runtime").Debugw("worker process started", "worker_id", opts.ID, "pid", p.cmd.Process.Pid)
	return p, nil
}

func newSpawnBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	return b
}

type execProcess struct {
	id     string
	cmd    *exec.Cmd
	stdout *switchWriter
	stderr *switchWriter
	exited chan struct{}
}

func start(id string, spec specs.Process) (*execProcess, error) {
	p := &execProcess{
		id:     id,
		stdout: newSwitchWriter(os.Stdout),
		stderr: newSwitchWriter(os.Stderr),
		exited: make(chan struct{}),
	}

	cmd := exec.Command(spec.Args[0], spec.Args[1:]...)
	cmd.Env = spec.Env
	cmd.Dir = spec.Cwd
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	// children of a killed entrypoint may keep the output pipes open
	cmd.WaitDelay = outputWaitDelay
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p.cmd = cmd

	go func() {
		err := cmd.Wait()
		zap.S().Named("runtime").Debugw("worker process exited", "worker_id", id, "error", err)
		close(p.exited)
	}()

	return p, nil
}

func (p *execProcess) ID() string {
	return p.id
}

func (p *execProcess) Attach(stdout, stderr io.Writer) {
	p.stdout.Set(stdout)
	p.stderr.Set(stderr)
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Exited() <-chan struct{} {
	return p.exited
}

// switchWriter lets the scheduler re-point a running process' output at the
// sinks of the event it is currently executing.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newSwitchWriter(w io.Writer) *switchWriter {
	return &switchWriter{w: w}
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func (s *switchWriter) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(b)
}
