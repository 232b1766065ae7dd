// Package store persists submission attempt records. Attempts parked in
// AWAITING_APPROVAL must survive a process restart; everything else can live
// in memory and be rebuilt.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// NotFoundError indicates no attempt exists for the given id.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("attempt not found: %s", e.ID)
}

// Store is the attempt record persistence contract.
type Store interface {
	// Save upserts the attempt record.
	Save(ctx context.Context, attempt *types.SubmissionAttempt) error
	// Get returns a copy of the attempt, or *NotFoundError.
	Get(ctx context.Context, id uuid.UUID) (*types.SubmissionAttempt, error)
	// ListByState returns copies of all attempts in the given state.
	ListByState(ctx context.Context, state types.AttemptState) ([]*types.SubmissionAttempt, error)
}

// Memory is an in-process Store used for non-durable deployments and tests.
type Memory struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]*types.SubmissionAttempt
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{attempts: make(map[uuid.UUID]*types.SubmissionAttempt)}
}

// Save stores a deep copy of the attempt.
func (m *Memory) Save(ctx context.Context, attempt *types.SubmissionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attempt.ID] = attempt.Clone()
	return nil
}

// Get returns a deep copy of the stored attempt.
func (m *Memory) Get(ctx context.Context, id uuid.UUID) (*types.SubmissionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return a.Clone(), nil
}

// ListByState returns deep copies of attempts in the given state.
func (m *Memory) ListByState(ctx context.Context, state types.AttemptState) ([]*types.SubmissionAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.SubmissionAttempt
	for _, a := range m.attempts {
		if a.State == state {
			out = append(out, a.Clone())
		}
	}
	return out, nil
}
