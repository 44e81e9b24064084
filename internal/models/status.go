package models

import "time"

const StatusUnit = "count"

// Status is a read-only snapshot of the worker pool.
type Status struct {
	Total               int     `json:"total"`
	Activated           int     `json:"activated"`
	Fresh               int     `json:"fresh"`
	Busy                int     `json:"busy"`
	Targeted            int     `json:"targeted"`
	QueueSize           int     `json:"queueSize"`
	AverageResponseTime float64 `json:"averageResponseTime"` // milliseconds
	Unit                string  `json:"unit"`
}

type ScaleDirection string

const (
	ScaleUp   ScaleDirection = "up"
	ScaleDown ScaleDirection = "down"
)

// ScaleReason says which signal triggered a scaling action.
type ScaleReason string

const (
	ScaleReasonUtilization  ScaleReason = "utilization"
	ScaleReasonNoWorker     ScaleReason = "no-available-worker"
	ScaleReasonResponseTime ScaleReason = "response-time"
	ScaleReasonIdle         ScaleReason = "idle"
	ScaleReasonExcessIdle   ScaleReason = "excess-idle"
)

// ScaleAction records one auto-scaling decision.
type ScaleAction struct {
	Direction   ScaleDirection `json:"direction"`
	Reason      ScaleReason    `json:"reason"`
	WorkerID    string         `json:"workerId"`
	WorkerCount int            `json:"workerCount"`
	Utilization float64        `json:"utilization"`
	At          time.Time      `json:"at"`
}
