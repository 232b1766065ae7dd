// Package greenhouse drives Greenhouse-hosted application forms.
package greenhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// Selectors for the standard Greenhouse board form. Employer themes vary the
// chrome around the form but keep these field names.
const (
	selApplyButton = "#apply_button"
	selForm        = "#application_form"
	selResumeInput = "input[type='file']"
	selFirstName   = "input[name='first_name']"
	selLastName    = "input[name='last_name']"
	selEmail       = "input[name='email']"
	selPhone       = "input[name='phone']"
	selCoverLetter = "textarea[name='cover_letter']"
	selSubmit      = "#submit_app"
)

// Driver implements the site driver protocol for Greenhouse boards.
type Driver struct {
	stepTimeout time.Duration
}

// New returns a Greenhouse driver with the given per-step timeout.
func New(stepTimeout time.Duration) *Driver {
	return &Driver{stepTimeout: stepTimeout}
}

// Source implements driver.Driver.
func (d *Driver) Source() string { return "greenhouse" }

// SubmitSelector implements driver.Driver. Only the orchestrator clicks it.
func (d *Driver) SubmitSelector() string { return selSubmit }

// Run executes the fixed step pipeline against an already-navigated page.
func (d *Driver) Run(ctx context.Context, sess session.Session, job types.JobPosting, plan types.ApplicationPlan) ([]types.StepResult, error) {
	r := &driver.Runner{Timeout: d.stepTimeout}

	r.Step(ctx, driver.StepOpenForm, func(ctx context.Context) (types.StepStatus, string, error) {
		return d.openForm(ctx, sess)
	})
	r.Step(ctx, driver.StepUploadResume, func(ctx context.Context) (types.StepStatus, string, error) {
		return driver.UploadResume(ctx, sess, selResumeInput, plan.ResumePath)
	})
	r.Step(ctx, driver.StepFillIdentity, func(ctx context.Context) (types.StepStatus, string, error) {
		return d.fillIdentity(ctx, sess, plan)
	})
	r.Step(ctx, driver.StepFillFreeText, func(ctx context.Context) (types.StepStatus, string, error) {
		return driver.FillFreeText(ctx, sess, plan, selCoverLetter)
	})
	r.Step(ctx, driver.StepReadyForReview, func(ctx context.Context) (types.StepStatus, string, error) {
		return d.readyForReview(ctx, sess)
	})

	return r.Finish()
}

func (d *Driver) openForm(ctx context.Context, sess session.Session) (types.StepStatus, string, error) {
	// Re-runs find the form already open and do nothing.
	if open, err := sess.Exists(ctx, selForm); err != nil {
		return types.StepFailed, "", err
	} else if open {
		return types.StepSkipped, "form already open", nil
	}

	if hasButton, err := sess.Exists(ctx, selApplyButton); err != nil {
		return types.StepFailed, "", err
	} else if !hasButton {
		// No form and no apply control: the posting is gone or closed.
		return types.StepFailed, "", &driver.FatalError{Reason: "posting not accepting applications"}
	}

	if err := sess.Click(ctx, selApplyButton); err != nil {
		return types.StepFailed, "", err
	}
	if open, err := sess.Exists(ctx, selForm); err != nil {
		return types.StepFailed, "", err
	} else if !open {
		return types.StepFailed, "", fmt.Errorf("application form did not appear")
	}
	return types.StepOK, "", nil
}

// fillIdentity sets the standard identity fields. Filling is idempotent:
// values are replaced, so a re-run produces the same field state.
func (d *Driver) fillIdentity(ctx context.Context, sess session.Session, plan types.ApplicationPlan) (types.StepStatus, string, error) {
	fields := []struct {
		selector string
		key      string
	}{
		{selFirstName, types.AnswerFirstName},
		{selLastName, types.AnswerLastName},
		{selEmail, types.AnswerEmail},
		{selPhone, types.AnswerPhone},
	}
	for _, f := range fields {
		value := plan.Answers[f.key]
		if value == "" {
			continue
		}
		if err := sess.Fill(ctx, f.selector, value); err != nil {
			return types.StepFailed, "", fmt.Errorf("filling %s: %w", f.key, err)
		}
	}
	return types.StepOK, "", nil
}

func (d *Driver) readyForReview(ctx context.Context, sess session.Session) (types.StepStatus, string, error) {
	ok, err := sess.Exists(ctx, selSubmit)
	if err != nil {
		return types.StepFailed, "", err
	}
	if !ok {
		return types.StepFailed, "", fmt.Errorf("submit control not present")
	}
	return types.StepOK, "", nil
}
