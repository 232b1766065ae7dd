// Package queue is the engine's front door: it admits application plans,
// deduplicates per job, bounds concurrency and submission rate, and routes
// approval decisions and timeouts to the orchestrator.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/orchestrator"
	"github.com/pranavsaji/autoapply-pro/internal/store"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// Config tunes the queue's throughput and the approval window.
type Config struct {
	Concurrency     int           // concurrent submission workers
	RatePerMinute   float64       // submission initiations per minute, across all workers
	ApprovalTimeout time.Duration // how long a parked attempt waits for a decision
	Backlog         int           // pending task buffer

	// AllowAutoSubmit permits plans that opt out of the human approval gate.
	// When false, every admitted plan is forced through the gate regardless
	// of what the caller set on it.
	AllowAutoSubmit bool
}

// DefaultConfig returns the stock queue settings.
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		RatePerMinute:   8,
		ApprovalTimeout: 24 * time.Hour,
		Backlog:         256,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.RatePerMinute <= 0 {
		c.RatePerMinute = def.RatePerMinute
	}
	if c.ApprovalTimeout <= 0 {
		c.ApprovalTimeout = def.ApprovalTimeout
	}
	if c.Backlog <= 0 {
		c.Backlog = def.Backlog
	}
	return c
}

type task struct {
	attempt  *types.SubmissionAttempt
	finalize bool // approved attempt ready for the commit pass
}

// Queue owns admission and scheduling. One Queue serves the whole process.
type Queue struct {
	orch     *orchestrator.Orchestrator
	registry *driver.Registry
	store    store.Store
	cfg      Config

	tasks   chan task
	limiter *rate.Limiter

	group    *errgroup.Group
	groupCtx context.Context
	stop     context.CancelFunc

	mu       sync.Mutex
	inFlight map[string]uuid.UUID                 // job ID -> non-terminal attempt
	attempts map[uuid.UUID]*types.SubmissionAttempt
	timers   map[uuid.UUID]*time.Timer
	cancels  map[uuid.UUID]context.CancelFunc
	started  bool
}

// New builds a queue over the orchestrator and its collaborators.
func New(orch *orchestrator.Orchestrator, registry *driver.Registry, st store.Store, cfg Config) *Queue {
	cfg = cfg.normalized()
	return &Queue{
		orch:     orch,
		registry: registry,
		store:    st,
		cfg:      cfg,
		tasks:    make(chan task, cfg.Backlog),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerMinute/60.0), 1),
		inFlight: make(map[string]uuid.UUID),
		attempts: make(map[uuid.UUID]*types.SubmissionAttempt),
		timers:   make(map[uuid.UUID]*time.Timer),
		cancels:  make(map[uuid.UUID]context.CancelFunc),
	}
}

// Start launches the worker pool. It returns immediately; workers run until
// Shutdown.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	runCtx, cancel := context.WithCancel(ctx)
	q.stop = cancel
	q.group, q.groupCtx = errgroup.WithContext(runCtx)
	for i := 0; i < q.cfg.Concurrency; i++ {
		q.group.Go(func() error {
			return q.worker(q.groupCtx)
		})
	}
}

// Shutdown stops the workers and waits for in-progress attempts to settle.
// Tasks that never ran keep their stored state, QUEUED or APPROVED, so a
// later process can pick them up.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	stop := q.stop
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	stop()
	if err := q.group.Wait(); err != nil {
		log.Printf("[queue] worker pool stopped with error: %v", err)
	}
}

// Submit admits a plan. The plan is validated and its source resolved before
// any attempt exists, so unsupported sites and incomplete plans are rejected
// without touching a browser. A job with a non-terminal attempt is not
// re-admitted; the existing attempt ID is returned instead.
func (q *Queue) Submit(ctx context.Context, plan types.ApplicationPlan) (uuid.UUID, error) {
	if err := plan.Validate(); err != nil {
		return uuid.Nil, err
	}
	if _, err := q.registry.Resolve(plan.Job.Source); err != nil {
		return uuid.Nil, err
	}
	if !q.cfg.AllowAutoSubmit {
		// The approval gate is global policy. A plan cannot opt out of it
		// unless the operator configured the override.
		plan.RequiresHITL = true
	}

	q.mu.Lock()
	if existing, ok := q.inFlight[plan.Job.ID]; ok {
		q.mu.Unlock()
		return existing, nil
	}
	a := types.NewAttempt(plan)
	q.inFlight[plan.Job.ID] = a.ID
	q.attempts[a.ID] = a
	q.mu.Unlock()

	if err := q.store.Save(ctx, a); err != nil {
		log.Printf("[queue] warning: failed to persist attempt %s at admission: %v", a.ID, err)
	}

	if err := q.enqueue(ctx, task{attempt: a}); err != nil {
		q.forget(a)
		return uuid.Nil, err
	}
	return a.ID, nil
}

// Status returns the attempt as last persisted. A running attempt is mutated
// only by its owning worker, which saves after every state change; reading
// through the store keeps Status off that mutation path entirely.
func (q *Queue) Status(ctx context.Context, id uuid.UUID) (*types.SubmissionAttempt, error) {
	return q.store.Get(ctx, id)
}

// List returns copies of all attempts in the given state.
func (q *Queue) List(ctx context.Context, state types.AttemptState) ([]*types.SubmissionAttempt, error) {
	return q.store.ListByState(ctx, state)
}

// Decide records a human decision on a parked attempt. Rejection settles the
// attempt immediately; approval schedules the commit pass on the worker pool
// so it honors the same concurrency and rate bounds as first runs.
func (q *Queue) Decide(ctx context.Context, id uuid.UUID, approved bool) error {
	q.mu.Lock()
	a, ok := q.attempts[id]
	if !ok {
		q.mu.Unlock()
		// Settled attempts live only in the store; deciding one is a
		// transition error, not a lookup miss.
		stored, err := q.store.Get(ctx, id)
		if err != nil {
			return err
		}
		return &types.TransitionError{From: stored.State, To: types.StateApproved}
	}
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	q.mu.Unlock()

	if err := q.orch.Decide(ctx, a, approved); err != nil {
		return err
	}
	if !approved {
		q.settle(a)
		return nil
	}
	if err := q.enqueue(ctx, task{attempt: a, finalize: true}); err != nil {
		return err
	}
	return nil
}

// Cancel aborts an attempt wherever it is: a running worker is interrupted, a
// parked attempt is settled directly. Cancelling a terminal or unknown
// attempt is a no-op.
func (q *Queue) Cancel(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	a, ok := q.attempts[id]
	if !ok {
		q.mu.Unlock()
		return nil
	}
	if timer, ok := q.timers[id]; ok {
		timer.Stop()
		delete(q.timers, id)
	}
	cancel := q.cancels[id]
	q.mu.Unlock()

	if cancel != nil {
		// The owning worker observes the cancellation and records the
		// terminal state itself.
		cancel()
		return nil
	}
	q.orch.Cancel(ctx, a)
	q.settle(a)
	return nil
}

// Restore re-registers parked attempts after a restart, re-arming their
// approval timers against the original park time. Attempts already past the
// window expire immediately.
func (q *Queue) Restore(ctx context.Context) error {
	parked, err := q.store.ListByState(ctx, types.StateAwaitingApproval)
	if err != nil {
		return fmt.Errorf("failed to restore parked attempts: %w", err)
	}
	for _, a := range parked {
		q.mu.Lock()
		q.attempts[a.ID] = a
		q.inFlight[a.JobID] = a.ID
		q.mu.Unlock()

		remaining := q.cfg.ApprovalTimeout - time.Since(a.UpdatedAt)
		if remaining <= 0 {
			q.expire(a.ID)
			continue
		}
		q.armTimer(a.ID, remaining)
	}
	return nil
}

func (q *Queue) enqueue(ctx context.Context, t task) error {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return fmt.Errorf("queue is not running")
	}
	select {
	case q.tasks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.groupCtx.Done():
		return fmt.Errorf("queue is shutting down")
	}
}

func (q *Queue) worker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-q.tasks:
			q.process(ctx, t)
		}
	}
}

func (q *Queue) process(ctx context.Context, t task) {
	if err := q.limiter.Wait(ctx); err != nil {
		// Shutdown hit before this attempt started; it keeps its stored
		// state so a later process can pick it up.
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.cancels[t.attempt.ID] = cancel
	q.mu.Unlock()
	defer func() {
		cancel()
		q.mu.Lock()
		delete(q.cancels, t.attempt.ID)
		q.mu.Unlock()
	}()

	if t.finalize {
		if err := q.orch.Finalize(runCtx, t.attempt); err != nil {
			log.Printf("[queue] attempt %s: finalize failed: %v", t.attempt.ID, err)
		}
		q.settle(t.attempt)
		return
	}

	if err := q.orch.Run(runCtx, t.attempt); err != nil {
		log.Printf("[queue] attempt %s: run ended: %v", t.attempt.ID, err)
	}
	if t.attempt.State == types.StateAwaitingApproval {
		q.armTimer(t.attempt.ID, q.cfg.ApprovalTimeout)
		return
	}
	q.settle(t.attempt)
}

func (q *Queue) armTimer(id uuid.UUID, d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return
	}
	q.timers[id] = time.AfterFunc(d, func() {
		q.expire(id)
	})
}

func (q *Queue) expire(id uuid.UUID) {
	q.mu.Lock()
	a, ok := q.attempts[id]
	delete(q.timers, id)
	q.mu.Unlock()
	if !ok {
		return
	}
	if err := q.orch.Expire(context.Background(), a); err != nil {
		log.Printf("[queue] attempt %s: expire failed: %v", id, err)
		return
	}
	q.settle(a)
}

// settle drops a terminal attempt from the live working set, freeing its job
// for re-admission. The store keeps the full record.
func (q *Queue) settle(a *types.SubmissionAttempt) {
	if !a.State.Terminal() {
		return
	}
	q.forget(a)
}

func (q *Queue) forget(a *types.SubmissionAttempt) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if current, ok := q.inFlight[a.JobID]; ok && current == a.ID {
		delete(q.inFlight, a.JobID)
	}
	delete(q.attempts, a.ID)
}
