package scheduler

import (
	"time"

	"github.com/eapache/queue"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/internal/util"
	"github.com/spicaengine/fnscheduler/pkg/worker"
)

// loadMetrics is the process-wide load picture used by the auto-scaler.
type loadMetrics struct {
	samples         int
	history         *queue.Queue
	sum             time.Duration
	lastScaleAction time.Time
}

func newLoadMetrics(samples int) *loadMetrics {
	if samples < 1 {
		samples = 1
	}
	return &loadMetrics{samples: samples, history: queue.New()}
}

// Observe adds a response-time sample, evicting the oldest past the window.
func (l *loadMetrics) Observe(d time.Duration) {
	l.history.Add(d)
	l.sum += d
	for l.history.Length() > l.samples {
		l.sum -= l.history.Remove().(time.Duration)
	}
}

func (l *loadMetrics) Average() time.Duration {
	n := l.history.Length()
	if n == 0 {
		return 0
	}
	return l.sum / time.Duration(n)
}

func (l *loadMetrics) Samples() int {
	return l.history.Length()
}

func utilization(pending, workers int) float64 {
	return float64(pending) / float64(max(workers, 1))
}

func (s *Scheduler) snapshot() models.Status {
	st := models.Status{
		QueueSize:           s.pending.Len(),
		AverageResponseTime: util.Millis(s.load.Average()),
		Unit:                models.StatusUnit,
	}
	for _, w := range s.workers {
		st.Total++
		switch w.State() {
		case worker.Fresh:
			st.Fresh++
			st.Activated++
		case worker.Busy:
			st.Busy++
			st.Activated++
		case worker.Targeted:
			st.Targeted++
			st.Activated++
		}
	}
	return st
}

func (s *Scheduler) publishStatus() {
	st := s.snapshot()
	s.status.Store(&st)
}
