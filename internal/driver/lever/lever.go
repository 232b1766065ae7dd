// Package lever drives Lever-hosted application forms.
package lever

import (
	"context"
	"fmt"
	"time"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// Selectors for the standard Lever posting and apply pages. Lever collects a
// single full name rather than split first/last fields.
const (
	selApplyButton = "a.postings-btn"
	selForm        = "#application-form"
	selResumeInput = "input[name='resume']"
	selName        = "input[name='name']"
	selEmail       = "input[name='email']"
	selPhone       = "input[name='phone']"
	selCoverLetter = "textarea[name='comments']"
	selSubmit      = "#btn-submit"
)

// Driver implements the site driver protocol for Lever postings.
type Driver struct {
	stepTimeout time.Duration
}

// New returns a Lever driver with the given per-step timeout.
func New(stepTimeout time.Duration) *Driver {
	return &Driver{stepTimeout: stepTimeout}
}

// Source implements driver.Driver.
func (d *Driver) Source() string { return "lever" }

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
	if open, err := sess.Exists(ctx, selForm); err != nil {
		return types.StepFailed, "", err
	} else if open {
		return types.StepSkipped, "form already open", nil
	}

	if hasButton, err := sess.Exists(ctx, selApplyButton); err != nil {
		return types.StepFailed, "", err
	} else if !hasButton {
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

func (d *Driver) fillIdentity(ctx context.Context, sess session.Session, plan types.ApplicationPlan) (types.StepStatus, string, error) {
	fields := []struct {
		selector string
		key      string
	}{
		{selName, types.AnswerFullName},
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
