// Package driver defines the site driver protocol: the fixed, ordered
// pipeline of automation steps a driver executes against a browser session
// for one application plan, and the closed registry that maps job sources to
// driver implementations.
package driver

import (
	"context"
	"fmt"

	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// Canonical step names. Every driver executes these in this order; a driver
// may mark a step skipped when the form has no matching element.
const (
	StepOpenForm       = "open_form"
	StepUploadResume   = "upload_resume"
	StepFillIdentity   = "fill_identity"
	StepFillFreeText   = "fill_free_text"
	StepReadyForReview = "ready_for_review"
)

// PipelineSteps is the canonical step order shared by all drivers.
var PipelineSteps = []string{StepOpenForm, StepUploadResume, StepFillIdentity, StepFillFreeText, StepReadyForReview}

// Driver prepares a site-specific application form for one plan. A driver
// must never perform the final submit action: it can prepare the form to any
// degree, but the commit is a single call made outside driver control, after
// human approval. Steps must be idempotent where feasible so a retried
// attempt does not corrupt form state.
type Driver interface {
	// Source is the registry key (job.Source) this driver serves.
	Source() string
	// Run executes the step pipeline in order, returning the results of the
	// steps attempted. It stops at the first failure and returns a
	// *StepError (recoverable) or *FatalError (retry is useless).
	Run(ctx context.Context, sess session.Session, job types.JobPosting, plan types.ApplicationPlan) ([]types.StepResult, error)
	// SubmitSelector is the selector of the final submit control. The
	// orchestrator, never the driver, clicks it.
	SubmitSelector() string
}

// StepError is a recoverable per-step problem (element not found, timeout).
// It drives attempt-level retry: the whole attempt re-runs with a new
// session, the step is never retried in place.
type StepError struct {
	Step   string
	Reason string
	Err    error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %s failed: %s: %v", e.Step, e.Reason, e.Err)
	}
	return fmt.Sprintf("step %s failed: %s", e.Step, e.Reason)
}

func (e *StepError) Unwrap() error { return e.Err }

// FatalError is a driver condition that makes any retry useless: the posting
// no longer exists, or the site requires a flow the driver cannot handle.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("driver fatal: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("driver fatal: %s", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Err }

// UnsupportedSiteError indicates no driver is registered for a job source.
// It is surfaced at submission time, before any browser session is acquired.
type UnsupportedSiteError struct {
	Source string
}

func (e *UnsupportedSiteError) Error() string {
	return fmt.Sprintf("unsupported site: %s", e.Source)
}
