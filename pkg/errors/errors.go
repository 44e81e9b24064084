// Package errors holds the typed errors shared by the scheduler packages.
//
// Every error has a New…Error constructor and, where callers need to branch on
// it, an Is…Error predicate that unwraps through fmt.Errorf("%w") chains.
package errors

import (
	stderrors "errors"
	"fmt"
)

type ResourceNotFoundError struct {
	Kind string
	ID   string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func NewEventNotFoundError(id string) error {
	return &ResourceNotFoundError{Kind: "event", ID: id}
}

func NewWorkerNotFoundError(id string) error {
	return &ResourceNotFoundError{Kind: "worker", ID: id}
}

func NewScaleHistoryNotFoundError() error {
	return &ResourceNotFoundError{Kind: "scale action", ID: "latest"}
}

func IsResourceNotFoundError(err error) bool {
	var e *ResourceNotFoundError
	return stderrors.As(err, &e)
}

// DuplicateEventError is returned when an event id is already pending.
type DuplicateEventError struct {
	ID string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("event %q is already pending", e.ID)
}

func NewDuplicateEventError(id string) error {
	return &DuplicateEventError{ID: id}
}

func IsDuplicateEventError(err error) bool {
	var e *DuplicateEventError
	return stderrors.As(err, &e)
}

// InvalidTransitionError reports a worker state change outside the adjacency
// table. It is raised with panic: reaching it means a scheduling invariant is
// already broken.
type InvalidTransitionError struct {
	WorkerID string
	From     string
	To       string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("worker %s: invalid transition from %s to %s", e.WorkerID, e.From, e.To)
}

func NewInvalidTransitionError(workerID, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{WorkerID: workerID, From: from, To: to}
}

func IsInvalidTransitionError(err error) bool {
	var e *InvalidTransitionError
	return stderrors.As(err, &e)
}

type SchedulerClosedError struct{}

func (e *SchedulerClosedError) Error() string {
	return "scheduler is closed"
}

func NewSchedulerClosedError() error {
	return &SchedulerClosedError{}
}

func IsSchedulerClosedError(err error) bool {
	var e *SchedulerClosedError
	return stderrors.As(err, &e)
}

// UnknownQueueError is returned when no sub-queue is registered for an event type.
type UnknownQueueError struct {
	Type string
}

func (e *UnknownQueueError) Error() string {
	return fmt.Sprintf("no queue registered for event type %q", e.Type)
}

func NewUnknownQueueError(eventType string) error {
	return &UnknownQueueError{Type: eventType}
}

func IsUnknownQueueError(err error) bool {
	var e *UnknownQueueError
	return stderrors.As(err, &e)
}

// WorkerNotWaitingError means the worker has no open request to deliver an event to.
type WorkerNotWaitingError struct {
	WorkerID string
}

func (e *WorkerNotWaitingError) Error() string {
	return fmt.Sprintf("worker %s is not waiting for an event", e.WorkerID)
}

func NewWorkerNotWaitingError(workerID string) error {
	return &WorkerNotWaitingError{WorkerID: workerID}
}

type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

func NewInvalidConfigurationError(field, reason string) error {
	return &InvalidConfigurationError{Field: field, Reason: reason}
}

func IsInvalidConfigurationError(err error) bool {
	var e *InvalidConfigurationError
	return stderrors.As(err, &e)
}

type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

func NewUnauthorizedError(reason string) error {
	return &UnauthorizedError{Reason: reason}
}

func IsUnauthorizedError(err error) bool {
	var e *UnauthorizedError
	return stderrors.As(err, &e)
}

func IsWorkerNotWaitingError(err error) bool {
	var e *WorkerNotWaitingError
	return stderrors.As(err, &e)
}
