package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store backed by a map. It is the default backend
// when no database is configured.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*Job)}
}

// Create adds a new job in state QUEUED and returns its id.
func (m *Memory) Create(_ context.Context, input Input) (string, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusQueued,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, nil
}

// Get returns a copy of the job so callers never observe later mutations.
func (m *Memory) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	out := *job
	if job.Result != nil {
		result := *job.Result
		out.Result = &result
	}
	return &out, nil
}

// Update applies a patch under the write lock. Updates to jobs that already
// reached a terminal state are rejected, which keeps status transitions
// monotonic.
func (m *Memory) Update(_ context.Context, id string, patch Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if job.Status.Terminal() {
		return &TerminalStateError{ID: id, Status: job.Status}
	}

	if patch.Status != nil {
		job.Status = *patch.Status
	}
	if patch.CurrentStep != nil {
		job.CurrentStep = *patch.CurrentStep
	}
	if patch.Result != nil {
		result := *patch.Result
		job.Result = &result
	}
	if patch.Error != nil {
		job.Error = *patch.Error
	}
	if patch.ErrorKind != nil {
		job.ErrorKind = *patch.ErrorKind
	}
	if patch.CancelRequested != nil {
		job.CancelRequested = *patch.CancelRequested
	}
	job.UpdatedAt = time.Now().UTC()

	return nil
}
