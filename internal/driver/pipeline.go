package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

// StepFunc executes one pipeline step and reports its outcome. Returning an
// error marks the step failed; return a *FatalError when retry is useless.
type StepFunc func(ctx context.Context) (types.StepStatus, string, error)

// Runner executes a driver's steps in order with a per-step timeout,
// recording one StepResult per step attempted and stopping at the first
// failure. Failures are wrapped as *StepError unless already typed.
type Runner struct {
	Timeout time.Duration

	results []types.StepResult
	err     error
}

// Step runs fn under the runner's timeout. It is a no-op once a prior step
// has failed.
func (r *Runner) Step(ctx context.Context, name string, fn StepFunc) {
	if r.err != nil {
		return
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, detail, err := fn(stepCtx)
	if err != nil {
		r.results = append(r.results, types.StepResult{Step: name, Status: types.StepFailed, Detail: err.Error(), At: time.Now().UTC()})
		switch typed := err.(type) {
		case *FatalError:
			r.err = typed
		case *StepError:
			r.err = typed
		default:
			r.err = &StepError{Step: name, Reason: "step execution failed", Err: err}
		}
		return
	}
	r.results = append(r.results, types.StepResult{Step: name, Status: status, Detail: detail, At: time.Now().UTC()})
}

// Finish returns the recorded results and the first failure, if any.
func (r *Runner) Finish() ([]types.StepResult, error) {
	return r.results, r.err
}

// UploadResume attaches the plan's resume file to the given file input. The
// upload replaces the input's file list, so a re-run leaves exactly one file
// attached.
func UploadResume(ctx context.Context, sess session.Session, selector, path string) (types.StepStatus, string, error) {
	if path == "" {
		return types.StepSkipped, "no resume file in plan", nil
	}
	if err := sess.Upload(ctx, selector, path); err != nil {
		return types.StepFailed, "", err
	}
	return types.StepOK, "", nil
}

// FillFreeText matches the plan's question answers to textareas on the
// rendered form and fills each one. The cover letter, when present, goes to
// coverLetterSelector if the form has it; a plan without a cover letter is
// valid and never an error.
func FillFreeText(ctx context.Context, sess session.Session, plan types.ApplicationPlan, coverLetterSelector string) (types.StepStatus, string, error) {
	questions := FreeTextQuestions(plan.Answers)
	if len(questions) == 0 && plan.CoverLetter == "" {
		return types.StepSkipped, "no free-text answers in plan", nil
	}

	html, err := sess.HTML(ctx)
	if err != nil {
		return types.StepFailed, "", err
	}
	fields, err := MatchFreeTextFields(html, plan.Answers)
	if err != nil {
		return types.StepFailed, "", err
	}
	filled := 0
	for selector, answer := range fields {
		if err := sess.Fill(ctx, selector, answer); err != nil {
			return types.StepFailed, "", fmt.Errorf("filling %q: %w", selector, err)
		}
		filled++
	}

	if plan.CoverLetter != "" && coverLetterSelector != "" {
		if ok, err := sess.Exists(ctx, coverLetterSelector); err != nil {
			return types.StepFailed, "", err
		} else if ok {
			if err := sess.Fill(ctx, coverLetterSelector, plan.CoverLetter); err != nil {
				return types.StepFailed, "", err
			}
			filled++
		}
	}

	if filled == 0 {
		return types.StepSkipped, "no matching free-text fields on form", nil
	}
	return types.StepOK, fmt.Sprintf("filled %d fields", filled), nil
}
