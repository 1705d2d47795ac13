// Package store provides the shared record of review jobs. The store is the
// only mutable state shared between the submission facade and the pipeline
// workers; all access goes through its atomic Get/Update contract.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/pr-reviewer/internal/review"
)

// Status is the lifecycle state of a job. Transitions are monotonic:
// QUEUED -> RUNNING -> {SUCCEEDED, FAILED}; terminal states never change.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Input is the submission payload a job was created from. Token is forwarded
// opaquely to the gateways and must never be logged or serialized into
// responses.
type Input struct {
	Reference      string
	Token          string
	PostToHost     bool
	ReviewTemplate string
}

// Job is one end-to-end review request and its tracked lifecycle.
type Job struct {
	ID              string
	Status          Status
	CurrentStep     string // last completed pipeline step; empty until one finishes
	Input           Input
	Result          *review.Result
	Error           string
	ErrorKind       string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Patch is a partial update applied atomically to a job. Nil fields are left
// unchanged.
type Patch struct {
	Status          *Status
	CurrentStep     *string
	Result          *review.Result
	Error           *string
	ErrorKind       *string
	CancelRequested *bool
}

// Store tracks jobs by id. Implementations must apply each Update atomically
// relative to concurrent readers: a Get never observes a half-applied patch,
// and updates to one job are applied in the order issued.
type Store interface {
	Create(ctx context.Context, input Input) (string, error)
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, id string, patch Patch) error
}

// NotFoundError indicates the job id is unknown to the store.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.ID)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TerminalStateError indicates an update was rejected because the job already
// reached SUCCEEDED or FAILED.
type TerminalStateError struct {
	ID     string
	Status Status
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("job %s is already %s", e.ID, e.Status)
}
