package models

import "time"

// EventType names the trigger source an event came from. It is only used to
// pick the sub-queue that owns the event; placement never looks at it.
type EventType string

const (
	EventTypeHTTP     EventType = "http"
	EventTypeDatabase EventType = "database"
	EventTypeFirehose EventType = "firehose"
	EventTypeSchedule EventType = "schedule"
	EventTypeRabbitMQ EventType = "rabbitmq"
	EventTypeSystem   EventType = "system"
)

func (t EventType) Value() string {
	return string(t)
}

// Event is one function invocation request.
type Event struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	Target Target    `json:"target"`

	// EnqueuedAt is stamped by the scheduler when the event is accepted.
	EnqueuedAt time.Time `json:"-"`
}

// Target identifies the function an event runs. Its ID is the affinity key
// workers are bound to.
type Target struct {
	ID      string        `json:"id"`
	Handler string        `json:"handler"`
	Cwd     string        `json:"cwd"`
	Context TargetContext `json:"context"`
}

type TargetContext struct {
	Env map[string]string `json:"env,omitempty"`
	// Timeout in seconds requested by the invocation. Zero means no request.
	Timeout int `json:"timeout"`
}
