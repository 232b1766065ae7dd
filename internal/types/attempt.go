package types

import (
	"time"

	"github.com/google/uuid"
)

// AttemptState is one state of the submission state machine.
type AttemptState string

const (
	StateQueued           AttemptState = "QUEUED"
	StateSessionAcquired  AttemptState = "SESSION_ACQUIRED"
	StateStepsRunning     AttemptState = "STEPS_RUNNING"
	StateAwaitingApproval AttemptState = "AWAITING_APPROVAL"
	StateApproved         AttemptState = "APPROVED"
	StateSubmitting       AttemptState = "SUBMITTING"
	StateSubmitted        AttemptState = "SUBMITTED"
	StateRejected         AttemptState = "REJECTED"
	StateTimedOut         AttemptState = "TIMED_OUT"
	StateFailed           AttemptState = "FAILED"
)

// legalTransitions maps each state to the states it may move to.
// QUEUED re-entries model attempt-level retry after a transient failure.
// STEPS_RUNNING -> APPROVED is the policy-override path that skips the gate.
var legalTransitions = map[AttemptState][]AttemptState{
	StateQueued:           {StateSessionAcquired, StateFailed},
	StateSessionAcquired:  {StateStepsRunning, StateQueued, StateFailed},
	StateStepsRunning:     {StateAwaitingApproval, StateApproved, StateQueued, StateFailed},
	StateAwaitingApproval: {StateApproved, StateRejected, StateTimedOut, StateFailed},
	StateApproved:         {StateSubmitting, StateFailed},
	StateSubmitting:       {StateSubmitted, StateFailed},
	StateSubmitted:        {},
	StateRejected:         {},
	StateTimedOut:         {},
	StateFailed:           {},
}

// Terminal reports whether no further transitions are possible from s.
func (s AttemptState) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// CanTransition reports whether moving from s to next is legal.
func (s AttemptState) CanTransition(next AttemptState) bool {
	for _, t := range legalTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// StepStatus is the outcome of a single driver step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepSkipped StepStatus = "skipped"
	StepFailed  StepStatus = "failed"
)

// StepResult is one entry in an attempt's step log. Entries are append-only
// and never rewritten; a failed step terminates the run and a retried attempt
// appends fresh entries.
type StepResult struct {
	Step   string     `json:"step"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	At     time.Time  `json:"at"`
}

// ApprovalSnapshot is the evidence captured for the human approval gate:
// a page screenshot plus the full rendered answer and cover letter text.
type ApprovalSnapshot struct {
	ScreenshotPath string    `json:"screenshot_path"`
	RenderedText   string    `json:"rendered_text"`
	CapturedAt     time.Time `json:"captured_at"`
}

// DecisionRecord is the audit record of a human approve/reject call.
type DecisionRecord struct {
	Approved bool      `json:"approved"`
	At       time.Time `json:"at"`
}

// SubmissionAttempt is the engine's mutable unit of work. It is mutated only
// by the worker that currently owns it or by the queue's admission and
// decision entry points.
type SubmissionAttempt struct {
	ID         uuid.UUID         `json:"id"`
	JobID      string            `json:"job_id"`
	Plan       ApplicationPlan   `json:"plan"`
	State      AttemptState      `json:"state"`
	Steps      []StepResult      `json:"steps"`
	Snapshot   *ApprovalSnapshot `json:"snapshot,omitempty"`
	Decision   *DecisionRecord   `json:"decision,omitempty"`
	Error      string            `json:"error,omitempty"`
	LastStep   string            `json:"last_step,omitempty"` // last successful step, for failure reports
	RetryCount int               `json:"retry_count"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewAttempt creates a queued attempt for the given plan.
func NewAttempt(plan ApplicationPlan) *SubmissionAttempt {
	now := time.Now().UTC()
	return &SubmissionAttempt{
		ID:        uuid.New(),
		JobID:     plan.Job.ID,
		Plan:      plan,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the attempt to next, enforcing the legal-transition table.
func (a *SubmissionAttempt) Transition(next AttemptState) error {
	if !a.State.CanTransition(next) {
		return &TransitionError{From: a.State, To: next}
	}
	a.State = next
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendStep records one step result in the attempt log.
func (a *SubmissionAttempt) AppendStep(step string, status StepStatus, detail string) {
	a.Steps = append(a.Steps, StepResult{Step: step, Status: status, Detail: detail, At: time.Now().UTC()})
	if status == StepOK {
		a.LastStep = step
	}
	a.UpdatedAt = time.Now().UTC()
}

// StepCount returns how many log entries exist for the named step, across retries.
func (a *SubmissionAttempt) StepCount(step string) int {
	n := 0
	for _, s := range a.Steps {
		if s.Step == step {
			n++
		}
	}
	return n
}

// Clone returns a deep copy safe to hand to callers while a worker owns the attempt.
func (a *SubmissionAttempt) Clone() *SubmissionAttempt {
	cp := *a
	cp.Steps = append([]StepResult(nil), a.Steps...)
	if a.Snapshot != nil {
		snap := *a.Snapshot
		cp.Snapshot = &snap
	}
	if a.Decision != nil {
		dec := *a.Decision
		cp.Decision = &dec
	}
	cp.Plan.Answers = make(map[string]string, len(a.Plan.Answers))
	for k, v := range a.Plan.Answers {
		cp.Plan.Answers[k] = v
	}
	return &cp
}
