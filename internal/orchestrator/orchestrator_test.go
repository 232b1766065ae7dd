package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/events"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/store"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// stubDriver scripts pipeline outcomes per Run call: entry i of errs is the
// error the (i+1)th Run returns. Extra calls succeed.
type stubDriver struct {
	mu     sync.Mutex
	source string
	errs   []error
	runs   int
}

func (d *stubDriver) Source() string         { return d.source }
func (d *stubDriver) SubmitSelector() string { return "#submit_app" }

func (d *stubDriver) Run(ctx context.Context, sess session.Session, job types.JobPosting, plan types.ApplicationPlan) ([]types.StepResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runs++
	if d.runs <= len(d.errs) && d.errs[d.runs-1] != nil {
		err := d.errs[d.runs-1]
		results := []types.StepResult{
			{Step: driver.StepOpenForm, Status: types.StepOK, At: time.Now()},
			{Step: driver.StepUploadResume, Status: types.StepFailed, Detail: err.Error(), At: time.Now()},
		}
		return results, err
	}
	results := make([]types.StepResult, 0, len(driver.PipelineSteps))
	for _, step := range driver.PipelineSteps {
		results = append(results, types.StepResult{Step: step, Status: types.StepOK, At: time.Now()})
	}
	return results, nil
}

func (d *stubDriver) runCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}

func testPlan(hitl bool) types.ApplicationPlan {
	return types.ApplicationPlan{
		Job:           types.JobPosting{ID: "gh-1", Source: "greenhouse", Title: "Engineer", Company: "Acme", URL: "https://boards.greenhouse.io/acme/jobs/1"},
		ResumeVariant: "default",
		ResumePath:    "/tmp/resume.pdf",
		CoverLetter:   "Dear team,",
		Answers: map[string]string{
			types.AnswerFullName:  "Ada Candidate",
			types.AnswerFirstName: "Ada",
			types.AnswerLastName:  "Candidate",
			types.AnswerEmail:     "ada@example.com",
		},
		RequiresHITL: hitl,
	}
}

func newTestOrchestrator(t *testing.T, drv driver.Driver) (*Orchestrator, *session.FakeProvider, *store.Memory) {
	t.Helper()
	provider := &session.FakeProvider{}
	st := store.NewMemory()
	o := New(driver.NewRegistry(drv), provider, st, events.NewHub(), Config{
		MaxRetries:     2,
		AcquireRetries: 3,
		RetryBackoff:   time.Millisecond,
		SnapshotDir:    t.TempDir(),
	})
	return o, provider, st
}

func TestRun_ParksAtAwaitingApproval(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, st := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	assert.Equal(t, types.StateAwaitingApproval, a.State)
	require.NotNil(t, a.Snapshot)
	assert.FileExists(t, a.Snapshot.ScreenshotPath)
	assert.Contains(t, a.Snapshot.RenderedText, "Dear team,")
	assert.Contains(t, a.Snapshot.RenderedText, "ada@example.com")
	assert.Equal(t, driver.StepReadyForReview, a.LastStep)

	// The session is released while parked.
	assert.Equal(t, 1, provider.AcquireCount())
	assert.Zero(t, provider.OpenCount())

	saved, err := st.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingApproval, saved.State)
}

func TestRun_RetriesRecoverableStepFailures(t *testing.T) {
	// Upload fails twice, succeeds on the third pass.
	stepErr := func() error {
		return &driver.StepError{Step: driver.StepUploadResume, Reason: "element not found"}
	}
	drv := &stubDriver{source: "greenhouse", errs: []error{stepErr(), stepErr()}}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	assert.Equal(t, types.StateAwaitingApproval, a.State)
	assert.Equal(t, 2, a.RetryCount)
	// Each pass gets a fresh session, all released.
	assert.Equal(t, 3, provider.AcquireCount())
	assert.Zero(t, provider.OpenCount())
	// Two failed passes plus the successful one logged an upload entry each.
	assert.Equal(t, 3, a.StepCount(driver.StepUploadResume))
}

func TestRun_RetriesExhaustedFails(t *testing.T) {
	stepErr := func() error {
		return &driver.StepError{Step: driver.StepUploadResume, Reason: "element not found"}
	}
	drv := &stubDriver{source: "greenhouse", errs: []error{stepErr(), stepErr(), stepErr()}}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	err := o.Run(context.Background(), a)
	require.Error(t, err)

	assert.Equal(t, types.StateFailed, a.State)
	assert.Equal(t, 2, a.RetryCount)
	assert.Contains(t, a.Error, "upload_resume")
	assert.Equal(t, driver.StepOpenForm, a.LastStep, "failure report names the last successful step")
	assert.Zero(t, provider.OpenCount())
}

func TestRun_MaxRetriesZeroDisablesRetries(t *testing.T) {
	drv := &stubDriver{source: "greenhouse", errs: []error{
		&driver.StepError{Step: driver.StepUploadResume, Reason: "element not found"},
	}}
	provider := &session.FakeProvider{}
	o := New(driver.NewRegistry(drv), provider, store.NewMemory(), events.NewHub(), Config{
		MaxRetries:   0,
		RetryBackoff: time.Millisecond,
		SnapshotDir:  t.TempDir(),
	})

	a := types.NewAttempt(testPlan(true))
	err := o.Run(context.Background(), a)
	require.Error(t, err)

	assert.Equal(t, types.StateFailed, a.State)
	assert.Zero(t, a.RetryCount)
	assert.Equal(t, 1, drv.runCount(), "zero means no second pass")
}

func TestRun_FatalErrorFailsImmediately(t *testing.T) {
	drv := &stubDriver{source: "greenhouse", errs: []error{&driver.FatalError{Reason: "posting not accepting applications"}}}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	err := o.Run(context.Background(), a)
	require.Error(t, err)

	assert.Equal(t, types.StateFailed, a.State)
	assert.Zero(t, a.RetryCount, "fatal errors consume no retry budget")
	assert.Equal(t, 1, drv.runCount())
	assert.Zero(t, provider.OpenCount())
}

func TestRun_AcquisitionFailuresRetryThenSurface(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)
	acqErr := func() error { return &session.AcquisitionError{Reason: "pool exhausted"} }
	provider.AcquireErrs = []error{acqErr(), acqErr()}

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	assert.Equal(t, types.StateAwaitingApproval, a.State)
	assert.Zero(t, a.RetryCount, "acquisition failures consume no step retry budget")
}

func TestRun_AcquisitionFailuresExhausted(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)
	acqErr := func() error { return &session.AcquisitionError{Reason: "pool exhausted"} }
	provider.AcquireErrs = []error{acqErr(), acqErr(), acqErr(), acqErr()}

	a := types.NewAttempt(testPlan(true))
	err := o.Run(context.Background(), a)
	require.Error(t, err)
	assert.Equal(t, types.StateFailed, a.State)
}

func TestRun_UnsupportedSourceNeverAcquiresSession(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)

	plan := testPlan(true)
	plan.Job.Source = "workday"
	a := types.NewAttempt(plan)

	err := o.Run(context.Background(), a)
	var unsupported *driver.UnsupportedSiteError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, types.StateFailed, a.State)
	assert.Zero(t, provider.AcquireCount())
}

func TestRun_PolicyOverrideSubmitsWithoutGate(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(false))
	require.NoError(t, o.Run(context.Background(), a))

	assert.Equal(t, types.StateSubmitted, a.State)
	assert.Nil(t, a.Decision, "policy override records no human decision")
	assert.Contains(t, provider.Last().Clicks, "#submit_app")
	assert.Zero(t, provider.OpenCount())
}

func TestFinalize_ApproveRebuildsAndSubmits(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, st := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))
	require.Equal(t, types.StateAwaitingApproval, a.State)
	runsBeforeApproval := drv.runCount()

	require.NoError(t, o.Decide(context.Background(), a, true))
	require.Equal(t, types.StateApproved, a.State)
	require.NoError(t, o.Finalize(context.Background(), a))

	assert.Equal(t, types.StateSubmitted, a.State)
	require.NotNil(t, a.Decision)
	assert.True(t, a.Decision.Approved)
	// A fresh session rebuilt the form before the commit.
	assert.Equal(t, 2, provider.AcquireCount())
	assert.Equal(t, runsBeforeApproval+1, drv.runCount())
	assert.Equal(t, []string{"#submit_app"}, provider.Last().Clicks)
	assert.Zero(t, provider.OpenCount())

	saved, err := st.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateSubmitted, saved.State)
}

func TestFinalize_Reject(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	require.NoError(t, o.Decide(context.Background(), a, false))

	assert.Equal(t, types.StateRejected, a.State)
	require.NotNil(t, a.Decision)
	assert.False(t, a.Decision.Approved)
	// Rejection never opens a browser.
	assert.Equal(t, 1, provider.AcquireCount())
}

func TestFinalize_SubmitClickFailureIsNotRetried(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	provider.OnAcquire = func(n int, s *session.FakeSession) {
		s.FailClick = map[string]error{"#submit_app": fmt.Errorf("click intercepted")}
	}

	require.NoError(t, o.Decide(context.Background(), a, true))
	err := o.Finalize(context.Background(), a)
	var submitErr *PostApprovalSubmitError
	require.ErrorAs(t, err, &submitErr)
	assert.Equal(t, types.StateFailed, a.State)
	assert.Contains(t, a.Error, "manual follow-up")
	assert.Zero(t, provider.OpenCount())
}

func TestFinalize_DeadSessionAbortsSubmit(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	provider.OnAcquire = func(n int, s *session.FakeSession) {
		s.AliveVal = false
	}

	require.NoError(t, o.Decide(context.Background(), a, true))
	err := o.Finalize(context.Background(), a)
	require.Error(t, err)
	assert.Equal(t, types.StateFailed, a.State)
	assert.Empty(t, provider.Last().Clicks, "no submit click on a dead session")
}

func TestDecide_RequiresParkedAttempt(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, _, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	var terr *types.TransitionError
	require.ErrorAs(t, o.Decide(context.Background(), a, true), &terr)
	assert.Equal(t, types.StateQueued, a.State)
}

func TestFinalize_RefusesWithoutRecordedApproval(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, provider, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))
	require.NoError(t, o.Decide(context.Background(), a, true))

	// Simulate a lost decision record; the commit guard must hold.
	a.Decision = nil

	err := o.Finalize(context.Background(), a)
	require.Error(t, err)
	assert.Equal(t, types.StateFailed, a.State)
	assert.Empty(t, provider.Last().Clicks)
}

func TestExpire(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, _, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	require.NoError(t, o.Expire(context.Background(), a))
	assert.Equal(t, types.StateTimedOut, a.State)

	// Expire after a decision is a no-op.
	require.NoError(t, o.Expire(context.Background(), a))
	assert.Equal(t, types.StateTimedOut, a.State)
}

func TestCancel(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	o, _, _ := newTestOrchestrator(t, drv)

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	o.Cancel(context.Background(), a)
	assert.Equal(t, types.StateFailed, a.State)
	assert.Equal(t, "cancelled", a.Error)

	// Idempotent on terminal attempts.
	o.Cancel(context.Background(), a)
	assert.Equal(t, types.StateFailed, a.State)
	assert.Equal(t, "cancelled", a.Error)
}

func TestRun_PublishesTransitions(t *testing.T) {
	drv := &stubDriver{source: "greenhouse"}
	provider := &session.FakeProvider{}
	hub := events.NewHub()
	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	o := New(driver.NewRegistry(drv), provider, store.NewMemory(), hub, Config{
		RetryBackoff: time.Millisecond,
		SnapshotDir:  t.TempDir(),
	})

	a := types.NewAttempt(testPlan(true))
	require.NoError(t, o.Run(context.Background(), a))

	var states []types.AttemptState
	for len(sub) > 0 {
		states = append(states, (<-sub).State)
	}
	assert.Equal(t, []types.AttemptState{
		types.StateSessionAcquired,
		types.StateStepsRunning,
		types.StateAwaitingApproval,
	}, states)
}
