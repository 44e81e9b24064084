package scheduler

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/spicaengine/fnscheduler/internal/models"
	"github.com/spicaengine/fnscheduler/pkg/worker"
)

const historyKey = "scale-history"

// scaleUp adds one worker when the unplaced, placeable demand exceeds the
// workers already starting. A target saturated at maxConcurrency adds no
// demand since another worker could not take its events anyway.
func (s *Scheduler) scaleUp(demand map[string]targetDemand) {
	wanted := 0
	for _, d := range demand {
		wanted += min(d.events, s.cfg.MaxConcurrency-d.bound)
	}
	starting := 0
	for _, w := range s.workers {
		if w.State() == worker.Initial {
			starting++
		}
	}
	if wanted <= starting {
		return
	}

	a := s.cfg.AutoScaling
	count := len(s.workers)
	if count >= a.MaxWorkers {
		s.debugw("scale up skipped, pool at maxWorkers", "workers", count)
		return
	}
	now := s.clock.Now()
	if !s.cooledDown(now) {
		return
	}

	util := utilization(s.pending.Len(), count)
	var reason models.ScaleReason
	switch {
	case util > a.ScaleUpThreshold:
		reason = models.ScaleReasonUtilization
	case s.load.Samples() > 0 && s.load.Average() > a.TargetResponseTime:
		reason = models.ScaleReasonResponseTime
	default:
		// wanted > starting means some event has no worker to go to
		reason = models.ScaleReasonNoWorker
	}

	w := s.spawn()
	s.recordScale(models.ScaleUp, reason, w.ID(), util, now)
}

// scaleTick runs every scaleInterval: retry placement, refill to minWorkers,
// then consider retiring one idle worker.
func (s *Scheduler) scaleTick() {
	if !s.started || s.shuttingDown {
		return
	}
	s.process()
	s.ensureMinWorkers()
	s.scaleDown()
}

// ensureMinWorkers is not a scaling action: it ignores the cooldown and leaves
// lastScaleAction alone. maxWorkers still caps the pool, retiring workers
// included.
func (s *Scheduler) ensureMinWorkers() {
	a := s.cfg.AutoScaling
	live := s.liveWorkers()
	for i := live; i < a.MinWorkers && len(s.workers) < a.MaxWorkers; i++ {
		w := s.spawn()
		s.log.Infow("refilling pool to minWorkers", "worker_id", w.ID(), "live", live)
	}
}

func (s *Scheduler) scaleDown() {
	a := s.cfg.AutoScaling
	live := s.liveWorkers()
	if live <= a.MinWorkers {
		return
	}
	now := s.clock.Now()
	if !s.cooledDown(now) {
		return
	}

	var idle []*worker.Worker
	for _, w := range s.workers {
		if w.State().IsAvailable() && now.Sub(w.Metrics().LastUsed) > a.WorkerIdleTimeout {
			idle = append(idle, w)
		}
	}
	if len(idle) == 0 {
		return
	}

	util := utilization(s.pending.Len(), len(s.workers))
	var reason models.ScaleReason
	switch {
	case util < a.ScaleDownThreshold:
		reason = models.ScaleReasonIdle
	case len(idle) > 2:
		reason = models.ScaleReasonExcessIdle
	default:
		return
	}

	slices.SortFunc(idle, func(x, y *worker.Worker) int {
		if c := x.Metrics().LastUsed.Compare(y.Metrics().LastUsed); c != 0 {
			return c
		}
		return cmp.Compare(x.ID(), y.ID())
	})
	victim := idle[0]
	victim.MarkAsOutdated()
	s.kill(victim)
	s.recordScale(models.ScaleDown, reason, victim.ID(), util, now)
}

func (s *Scheduler) liveWorkers() int {
	n := 0
	for _, w := range s.workers {
		if !w.State().IsTerminal() {
			n++
		}
	}
	return n
}

func (s *Scheduler) cooledDown(now time.Time) bool {
	last := s.load.lastScaleAction
	return last.IsZero() || now.Sub(last) >= s.cfg.AutoScaling.ScaleCooldown
}

func (s *Scheduler) recordScale(dir models.ScaleDirection, reason models.ScaleReason, workerID string, util float64, now time.Time) {
	s.load.lastScaleAction = now
	action := models.ScaleAction{
		Direction:   dir,
		Reason:      reason,
		WorkerID:    workerID,
		WorkerCount: len(s.workers),
		Utilization: util,
		At:          now,
	}
	s.log.Infow("scaling", "direction", dir, "reason", reason, "worker_id", workerID, "workers", action.WorkerCount, "utilization", util)

	if s.recorder == nil {
		return
	}
	// one key keeps history rows in decision order
	s.pool.Go(historyKey, func(ctx context.Context) {
		if err := s.recorder.Record(ctx, action); err != nil {
			s.log.Warnw("failed to record scale action", "error", err)
		}
	})
}
