// Package runtime spawns the OS processes that back scheduler workers.
//
// The scheduler only sees the Runtime and Process interfaces. ExecRuntime is the
// stock implementation: it starts an entrypoint through os/exec, described as an
// OCI runtime-spec Process so the same description can be handed to a container
// runtime later.
package runtime

import (
	"context"
	"io"
)

// Env keys set on every worker process.
const (
	EnvWorkerID     = "WORKER_ID"
	EnvEnqueuerAddr = "ENQUEUER_ADDR"
)

type SpawnOptions struct {
	ID             string
	Env            map[string]string
	EntrypointPath string
}

// Process is one spawned worker process. Exited is closed exactly once, when
// the process terminates for any reason.
type Process interface {
	ID() string
	Attach(stdout, stderr io.Writer)
	Kill() error
	Exited() <-chan struct{}
}

type Runtime interface {
	Spawn(ctx context.Context, opts SpawnOptions) (Process, error)
}
