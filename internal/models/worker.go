package models

import "time"

// WorkerMetrics is kept per worker from spawn until the worker is destroyed.
type WorkerMetrics struct {
	SpawnTime           time.Time
	LastUsed            time.Time
	ExecutionCount      int64
	AverageResponseTime time.Duration
}

// Observe folds one execution duration into the running average.
func (m *WorkerMetrics) Observe(d time.Duration) {
	if m.ExecutionCount <= 0 {
		m.AverageResponseTime = d
		return
	}
	n := time.Duration(m.ExecutionCount)
	m.AverageResponseTime = (m.AverageResponseTime*(n-1) + d) / n
}
