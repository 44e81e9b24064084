// Package scheduler places function invocations on a pool of long-lived
// worker processes.
//
// Events arrive from enqueuers, wait in arrival order, and are handed to the
// first suitable worker. Workers are spawned through a runtime.Runtime and talk
// back over a Transport (the HTTP event queue in production). The pool grows
// and shrinks with load when auto-scaling is enabled.
//
// # Architecture Overview
//
//	┌─────────────────────────────────────────────────────────────────────┐
//	│                           Scheduler                                 │
//	│                                                                     │
//	│  Enqueue / Cancel        GotWorker / Complete       scale tick      │
//	│        │                        │                       │           │
//	│        └────────────────────────┼───────────────────────┘           │
//	│                                 ▼                                   │
//	│                          ┌─────────────┐                            │
//	│                          │  run() loop │  owns workers, pending,    │
//	│                          └──────┬──────┘  timers and load metrics   │
//	│                                 │                                   │
//	│                          ┌──────┴──────┐                            │
//	│                          │  process()  │                            │
//	│                          └──────┬──────┘                            │
//	│              ┌──────────────────┼──────────────────┐                │
//	│              ▼                  ▼                  ▼                │
//	│        ┌──────────┐       ┌──────────┐       ┌──────────┐           │
//	│        │ Worker 1 │       │ Worker 2 │       │ Worker N │           │
//	│        └──────────┘       └──────────┘       └──────────┘           │
//	│                                                                     │
//	│  spawn / kill / history writes ──► workpool (off the loop)          │
//	└─────────────────────────────────────────────────────────────────────┘
//
// Every mutation runs on the single loop goroutine. Public methods post a
// closure and wait for it; timer callbacks, process exits and spawn results
// post without waiting. GetStatus reads a snapshot published after each loop
// iteration and never blocks.
//
// # Placement
//
// process() walks pending events oldest first. For each event takeAWorker
// looks for, in order:
//
//  1. a Targeted worker already bound to the event's function
//  2. a Fresh worker, if fewer than maxConcurrency workers are bound to it
//
// A worker bound to one function never runs another. Events that could not be
// placed stay pending and feed the scaler.
//
// # Worker Lifecycle
//
//	            ready                dispatch
//	┌─────────┐ ─────► ┌─────────┐ ─────────► ┌─────────┐
//	│ Initial │        │  Fresh  │            │  Busy   │ ◄──┐
//	└─────────┘        └─────────┘            └────┬────┘    │ dispatch
//	                                     ready     │         │
//	                                               ▼         │
//	                                          ┌──────────┐   │
//	                                          │ Targeted │ ──┘
//	                                          └──────────┘
//
// Any live state may end in Timeouted (execution ran past its timeout) or
// Outdated (retired by the scaler, Outdate or shutdown). Both are terminal;
// the worker leaves the pool when its process exits.
//
// # Timeouts
//
// Each dispatch arms one timer per worker for the smaller of the function's
// own timeout and the global ceiling. The timer is cancelled on completion and
// when the worker asks for more work. On expiry the worker is marked
// Timeouted, a diagnostic line is written to the function's error channel and
// the process is killed.
//
// # Auto-scaling
//
// Scale up happens inline in process(). One worker is added when the
// placeable demand exceeds the workers still starting and one of these holds:
//
//   - utilization (pending / workers) above scaleUpThreshold
//   - average response time above targetResponseTime
//   - some event has no worker it could go to
//
// Scale down runs on the scaleInterval tick and retires the least recently
// used idle worker, never going below minWorkers. Both directions share
// scaleCooldown. Without auto-scaling a single spare worker is spawned when
// nothing can take an event.
//
// # Shutdown
//
// Kill stops accepting events, hands pending events back to the enqueuer of
// their type, retires all workers that are not executing and waits until the
// last worker process is gone or the context expires.
package scheduler
