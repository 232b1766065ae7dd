// Package orchestrator owns one submission attempt end-to-end: it acquires a
// browser session, runs the site driver's step pipeline, captures the
// approval snapshot, parks the attempt for the human decision, and finalizes
// after approval. The final submit is a single auditable action performed
// here, never inside a driver.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/events"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/store"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// PostApprovalSubmitError indicates the commit action failed after human
// approval. The form state is unknown, so the attempt is failed and flagged
// for manual follow-up instead of being retried.
type PostApprovalSubmitError struct {
	Err error
}

func (e *PostApprovalSubmitError) Error() string {
	return fmt.Sprintf("submit failed after approval, manual follow-up required: %v", e.Err)
}

func (e *PostApprovalSubmitError) Unwrap() error { return e.Err }

// Config tunes the orchestrator's retry and snapshot behavior.
type Config struct {
	// MaxRetries is the number of attempt-level retries after a recoverable
	// step failure. Zero disables retries; negative values select the default.
	MaxRetries     int
	AcquireRetries int           // retries for session acquisition before surfacing the error
	RetryBackoff   time.Duration // base backoff between attempt retries, doubled per retry
	SnapshotDir    string        // where approval screenshots are written
}

// DefaultConfig returns the stock orchestrator settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     2,
		AcquireRetries: 3,
		RetryBackoff:   2 * time.Second,
		SnapshotDir:    os.TempDir(),
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.AcquireRetries == 0 {
		c.AcquireRetries = def.AcquireRetries
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = def.RetryBackoff
	}
	if c.SnapshotDir == "" {
		c.SnapshotDir = def.SnapshotDir
	}
	return c
}

// Orchestrator runs submission attempts. All collaborators are injected; it
// holds no global state.
type Orchestrator struct {
	registry *driver.Registry
	provider session.Provider
	store    store.Store
	hub      *events.Hub
	cfg      Config
}

// New builds an orchestrator over the given collaborators.
func New(registry *driver.Registry, provider session.Provider, st store.Store, hub *events.Hub, cfg Config) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		provider: provider,
		store:    st,
		hub:      hub,
		cfg:      cfg.normalized(),
	}
}

// Run drives an attempt from QUEUED until it is parked in AWAITING_APPROVAL
// or reaches a terminal state. Recoverable step failures re-run the whole
// attempt with a new session, up to the configured retry budget, with
// exponential backoff.
func (o *Orchestrator) Run(ctx context.Context, a *types.SubmissionAttempt) error {
	drv, err := o.registry.Resolve(a.Plan.Job.Source)
	if err != nil {
		o.fail(ctx, a, err)
		return err
	}

	acquireFailures := 0
	for {
		if err := ctx.Err(); err != nil {
			o.failCancelled(ctx, a)
			return err
		}

		runErr := o.runOnce(ctx, a, drv)
		if runErr == nil {
			return nil
		}

		var acqErr *session.AcquisitionError
		var stepErr *driver.StepError
		switch {
		case errors.As(runErr, &acqErr):
			acquireFailures++
			if acquireFailures > o.cfg.AcquireRetries {
				o.fail(ctx, a, runErr)
				return runErr
			}
			log.Printf("[orchestrator] attempt %s: session acquisition failed (%d/%d), backing off", a.ID, acquireFailures, o.cfg.AcquireRetries)
			if err := o.backoff(ctx, acquireFailures); err != nil {
				o.failCancelled(ctx, a)
				return err
			}
		case errors.As(runErr, &stepErr):
			if a.RetryCount >= o.cfg.MaxRetries {
				o.fail(ctx, a, runErr)
				return runErr
			}
			a.RetryCount++
			o.persist(ctx, a)
			log.Printf("[orchestrator] attempt %s: step %s failed, retrying attempt (%d/%d)", a.ID, stepErr.Step, a.RetryCount, o.cfg.MaxRetries)
			if err := o.backoff(ctx, a.RetryCount); err != nil {
				o.failCancelled(ctx, a)
				return err
			}
		default:
			o.fail(ctx, a, runErr)
			return runErr
		}
	}
}

// runOnce performs a single pass of the state machine: acquire a session,
// navigate, run the driver pipeline, capture the approval snapshot, and park
// the attempt. The session is released on every exit path.
func (o *Orchestrator) runOnce(ctx context.Context, a *types.SubmissionAttempt, drv driver.Driver) error {
	sess, err := o.provider.Acquire(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := o.transition(ctx, a, types.StateSessionAcquired); err != nil {
		return err
	}

	if err := sess.Navigate(ctx, a.Plan.Job.URL); err != nil {
		// An unreachable or dead posting URL cannot be fixed by retrying.
		return &driver.FatalError{Reason: "navigation failed", Err: err}
	}

	if err := o.transition(ctx, a, types.StateStepsRunning); err != nil {
		return err
	}

	results, runErr := drv.Run(ctx, sess, a.Plan.Job, a.Plan)
	o.appendResults(a, results)
	o.persist(ctx, a)
	if runErr != nil {
		var stepErr *driver.StepError
		if errors.As(runErr, &stepErr) {
			// Back to the queue state; the retry loop decides what happens.
			if terr := o.transition(ctx, a, types.StateQueued); terr != nil {
				return terr
			}
		}
		return runErr
	}

	snap, err := o.captureSnapshot(ctx, sess, a)
	if err != nil {
		if terr := o.transition(ctx, a, types.StateQueued); terr != nil {
			return terr
		}
		return &driver.StepError{Step: "approval_snapshot", Reason: "snapshot capture failed", Err: err}
	}
	a.Snapshot = snap

	if !a.Plan.RequiresHITL {
		// Policy override: proceed as if approved, while the session is
		// still live.
		if err := o.transition(ctx, a, types.StateApproved); err != nil {
			return err
		}
		return o.commit(ctx, a, drv, sess)
	}

	if a.Plan.Fallback {
		log.Printf("[orchestrator] attempt %s: plan was assembled without generated content, review carefully", a.ID)
	}
	// Park for the human decision. The deferred Close releases the session,
	// so the wait holds no browser resources.
	return o.transition(ctx, a, types.StateAwaitingApproval)
}

// Decide records the human decision on a parked attempt. Rejection is final.
// Approval moves the attempt to APPROVED; the commit work happens in Finalize,
// which the caller schedules separately.
func (o *Orchestrator) Decide(ctx context.Context, a *types.SubmissionAttempt, approved bool) error {
	if a.State != types.StateAwaitingApproval {
		return &types.TransitionError{From: a.State, To: types.StateApproved}
	}
	a.Decision = &types.DecisionRecord{Approved: approved, At: time.Now().UTC()}
	if !approved {
		return o.transition(ctx, a, types.StateRejected)
	}
	return o.transition(ctx, a, types.StateApproved)
}

// Finalize completes an approved attempt: it re-acquires a session, rebuilds
// the form through the driver's idempotent pipeline, re-validates, and
// performs the single commit action.
func (o *Orchestrator) Finalize(ctx context.Context, a *types.SubmissionAttempt) error {
	drv, err := o.registry.Resolve(a.Plan.Job.Source)
	if err != nil {
		o.fail(ctx, a, err)
		return err
	}

	sess, err := o.provider.Acquire(ctx)
	if err != nil {
		o.fail(ctx, a, fmt.Errorf("failed to reopen session after approval: %w", err))
		return err
	}
	defer sess.Close()

	// The approval wait can span days; the original session is long gone.
	// Rebuild the form from the plan before committing.
	if err := sess.Navigate(ctx, a.Plan.Job.URL); err != nil {
		o.fail(ctx, a, fmt.Errorf("posting unreachable after approval: %w", err))
		return err
	}
	results, runErr := drv.Run(ctx, sess, a.Plan.Job, a.Plan)
	o.appendResults(a, results)
	if runErr != nil {
		o.fail(ctx, a, fmt.Errorf("failed to rebuild form after approval: %w", runErr))
		return runErr
	}

	return o.commit(ctx, a, drv, sess)
}

// commit performs the one auditable submit action. It refuses to run unless
// the approval gate was satisfied.
func (o *Orchestrator) commit(ctx context.Context, a *types.SubmissionAttempt, drv driver.Driver, sess session.Session) error {
	if a.Plan.RequiresHITL && (a.Decision == nil || !a.Decision.Approved) {
		err := fmt.Errorf("refusing to submit: no recorded approval for attempt %s", a.ID)
		o.fail(ctx, a, err)
		return err
	}

	if !sess.Alive(ctx, a.Plan.Job.URL) {
		err := fmt.Errorf("session no longer on posting page, aborting submit")
		o.fail(ctx, a, err)
		return err
	}

	if err := o.transition(ctx, a, types.StateSubmitting); err != nil {
		return err
	}

	if err := sess.Click(ctx, drv.SubmitSelector()); err != nil {
		submitErr := &PostApprovalSubmitError{Err: err}
		o.fail(ctx, a, submitErr)
		return submitErr
	}

	return o.transition(ctx, a, types.StateSubmitted)
}

// Expire moves a parked attempt to TIMED_OUT. The session was already
// released when the attempt parked, so there is nothing else to clean up.
func (o *Orchestrator) Expire(ctx context.Context, a *types.SubmissionAttempt) error {
	if a.State != types.StateAwaitingApproval {
		return nil
	}
	return o.transition(ctx, a, types.StateTimedOut)
}

// Cancel forces a non-terminal attempt to FAILED with reason "cancelled".
// Cancelling a terminal attempt is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, a *types.SubmissionAttempt) {
	if a.State.Terminal() {
		return
	}
	o.failCancelled(ctx, a)
}

func (o *Orchestrator) failCancelled(ctx context.Context, a *types.SubmissionAttempt) {
	if a.State.Terminal() {
		return
	}
	a.Error = "cancelled"
	_ = a.Transition(types.StateFailed)
	o.persist(ctx, a)
	o.publish(a, "")
}

// fail records a terminal failure with the last successful step and the
// failing reason, so the caller always sees both.
func (o *Orchestrator) fail(ctx context.Context, a *types.SubmissionAttempt, err error) {
	if a.State.Terminal() {
		return
	}
	a.Error = err.Error()
	_ = a.Transition(types.StateFailed)
	o.persist(ctx, a)
	o.publish(a, a.Error)
}

func (o *Orchestrator) transition(ctx context.Context, a *types.SubmissionAttempt, next types.AttemptState) error {
	if err := a.Transition(next); err != nil {
		return err
	}
	o.persist(ctx, a)
	o.publish(a, "")
	return nil
}

func (o *Orchestrator) appendResults(a *types.SubmissionAttempt, results []types.StepResult) {
	for _, r := range results {
		a.Steps = append(a.Steps, r)
		if r.Status == types.StepOK {
			a.LastStep = r.Step
		}
	}
	a.UpdatedAt = time.Now().UTC()
}

func (o *Orchestrator) persist(ctx context.Context, a *types.SubmissionAttempt) {
	if o.store == nil {
		return
	}
	if err := o.store.Save(ctx, a); err != nil {
		log.Printf("[orchestrator] warning: failed to persist attempt %s: %v", a.ID, err)
	}
}

func (o *Orchestrator) publish(a *types.SubmissionAttempt, detail string) {
	if o.hub == nil {
		return
	}
	o.hub.Publish(events.AttemptEvent{
		AttemptID: a.ID,
		JobID:     a.JobID,
		State:     a.State,
		Step:      a.LastStep,
		Detail:    detail,
	})
}

// backoff sleeps for the exponential delay of the nth retry, with jitter so
// concurrent retries against the same site spread out.
func (o *Orchestrator) backoff(ctx context.Context, n int) error {
	delay := o.cfg.RetryBackoff << (n - 1)
	delay += time.Duration(rand.Int63n(int64(o.cfg.RetryBackoff)/2 + 1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// captureSnapshot saves a page screenshot and renders the plan's answers and
// cover letter as the review text for the approval gate.
func (o *Orchestrator) captureSnapshot(ctx context.Context, sess session.Session, a *types.SubmissionAttempt) (*types.ApprovalSnapshot, error) {
	png, err := sess.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture review screenshot: %w", err)
	}
	path := filepath.Join(o.cfg.SnapshotDir, fmt.Sprintf("%s_review.png", a.ID))
	if err := os.WriteFile(path, png, 0644); err != nil {
		return nil, fmt.Errorf("failed to write review screenshot: %w", err)
	}
	return &types.ApprovalSnapshot{
		ScreenshotPath: path,
		RenderedText:   renderReviewText(a.Plan),
		CapturedAt:     time.Now().UTC(),
	}, nil
}

// renderReviewText formats the full answer set and cover letter for human review.
func renderReviewText(plan types.ApplicationPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Application for %s at %s (%s)\n", plan.Job.Title, plan.Job.Company, plan.Job.URL)
	fmt.Fprintf(&b, "Resume variant: %s\n", plan.ResumeVariant)
	if plan.Fallback {
		b.WriteString("NOTE: generated content unavailable, plan contains identity answers only\n")
	}
	b.WriteString("\nAnswers:\n")
	keys := make([]string, 0, len(plan.Answers))
	for k := range plan.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s: %s\n", k, plan.Answers[k])
	}
	if plan.CoverLetter != "" {
		b.WriteString("\nCover letter:\n")
		b.WriteString(plan.CoverLetter)
		b.WriteString("\n")
	}
	return b.String()
}
