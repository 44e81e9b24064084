package scheduler

import (
	"time"

	"k8s.io/utils/clock"
)

// timerRegistry holds at most one timer per worker. Arming a worker again
// stops the previous timer first.
type timerRegistry struct {
	clock  Clock
	timers map[string]clock.Timer
}

func newTimerRegistry(c Clock) *timerRegistry {
	return &timerRegistry{clock: c, timers: make(map[string]clock.Timer)}
}

func (r *timerRegistry) Arm(workerID string, d time.Duration, fn func()) {
	r.Cancel(workerID)
	r.timers[workerID] = r.clock.AfterFunc(d, fn)
}

func (r *timerRegistry) Cancel(workerID string) bool {
	t, ok := r.timers[workerID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.timers, workerID)
	return true
}

func (r *timerRegistry) Has(workerID string) bool {
	_, ok := r.timers[workerID]
	return ok
}

func (r *timerRegistry) Len() int {
	return len(r.timers)
}

func (r *timerRegistry) CancelAll() {
	for id := range r.timers {
		r.Cancel(id)
	}
}
