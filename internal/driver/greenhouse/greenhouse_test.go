package greenhouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavsaji/autoapply-pro/internal/driver"
	"github.com/pranavsaji/autoapply-pro/internal/session"
	"github.com/pranavsaji/autoapply-pro/internal/types"
)

func testPlan() types.ApplicationPlan {
	return types.ApplicationPlan{
		Job:           types.JobPosting{ID: "gh-1", Source: "greenhouse", Title: "Engineer", URL: "https://boards.greenhouse.io/acme/jobs/1"},
		ResumeVariant: "default",
		ResumePath:    "/tmp/resume.pdf",
		CoverLetter:   "Dear team,",
		Answers: map[string]string{
			types.AnswerFullName:  "Ada Candidate",
			types.AnswerFirstName: "Ada",
			types.AnswerLastName:  "Candidate",
			types.AnswerEmail:     "ada@example.com",
			"Briefly describe your most relevant experience": "Shipped ML systems.",
		},
		RequiresHITL: true,
	}
}

func readySession() *session.FakeSession {
	return &session.FakeSession{
		AliveVal: true,
		Fills:    map[string]string{},
		Uploads:  map[string]string{},
		Exist: map[string]bool{
			selApplyButton: true,
			selCoverLetter: true,
			selSubmit:      true,
		},
		ClickSets: map[string]map[string]bool{
			selApplyButton: {selForm: true},
		},
		PageHTML: `<html><body><form id="application_form">
			<label for="q1">Briefly describe your most relevant experience</label>
			<textarea id="q1"></textarea>
		</form></body></html>`,
	}
}

func TestRun_AllStepsSucceed(t *testing.T) {
	sess := readySession()
	d := New(5 * time.Second)

	results, err := d.Run(context.Background(), sess, testPlan().Job, testPlan())
	require.NoError(t, err)

	require.Len(t, results, len(driver.PipelineSteps))
	for i, step := range driver.PipelineSteps {
		assert.Equal(t, step, results[i].Step)
		assert.NotEqual(t, types.StepFailed, results[i].Status)
	}

	assert.Equal(t, "/tmp/resume.pdf", sess.Uploads[selResumeInput])
	assert.Equal(t, "Ada", sess.Fills[selFirstName])
	assert.Equal(t, "Candidate", sess.Fills[selLastName])
	assert.Equal(t, "ada@example.com", sess.Fills[selEmail])
	assert.Equal(t, "Shipped ML systems.", sess.Fills["#q1"])
	assert.Equal(t, "Dear team,", sess.Fills[selCoverLetter])
	assert.NotContains(t, sess.Clicks, selSubmit, "driver must never click submit")
}

func TestRun_IdempotentReRun(t *testing.T) {
	sess := readySession()
	d := New(5 * time.Second)
	plan := testPlan()

	_, err := d.Run(context.Background(), sess, plan.Job, plan)
	require.NoError(t, err)
	firstFills := map[string]string{}
	for k, v := range sess.Fills {
		firstFills[k] = v
	}

	// Second run on the same session: form already open, same field values,
	// still exactly one resume file attached.
	results, err := d.Run(context.Background(), sess, plan.Job, plan)
	require.NoError(t, err)
	assert.Equal(t, types.StepSkipped, results[0].Status)
	assert.Equal(t, firstFills, sess.Fills)
	assert.Len(t, sess.Uploads, 1)
}

func TestRun_UploadFailureIsRecoverable(t *testing.T) {
	sess := readySession()
	sess.FailUpload = map[string]error{selResumeInput: fmt.Errorf("element not found")}
	d := New(5 * time.Second)

	results, err := d.Run(context.Background(), sess, testPlan().Job, testPlan())

	var stepErr *driver.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, driver.StepUploadResume, stepErr.Step)

	// Pipeline stops at the failed step.
	require.Len(t, results, 2)
	assert.Equal(t, types.StepFailed, results[1].Status)
	assert.Empty(t, sess.Fills, "no fill after a failed upload")
}

func TestRun_MissingPostingIsFatal(t *testing.T) {
	sess := readySession()
	sess.Exist[selApplyButton] = false
	d := New(5 * time.Second)

	_, err := d.Run(context.Background(), sess, testPlan().Job, testPlan())

	var fatal *driver.FatalError
	require.ErrorAs(t, err, &fatal)
}

func TestRun_NoResumeSkipsUpload(t *testing.T) {
	sess := readySession()
	plan := testPlan()
	plan.ResumePath = ""
	d := New(5 * time.Second)

	results, err := d.Run(context.Background(), sess, plan.Job, plan)
	require.NoError(t, err)
	assert.Equal(t, types.StepSkipped, results[1].Status)
	assert.Zero(t, sess.UploadCalls)
}
