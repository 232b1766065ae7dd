// Package assemble builds application plans: identity answers come straight
// from the profile, tailored free-text answers and the cover letter come from
// the text generator, and the result is validated before it can reach the
// queue. A generator failure degrades to a reviewable identity-only plan
// instead of blocking the submission.
package assemble

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pranavsaji/autoapply-pro/internal/types"
	"github.com/pranavsaji/autoapply-pro/schemas"
)

// StandardQuestions are the free-text prompts every plan answers. Answer keys
// in the plan are the full question texts, so drivers can match them against
// form labels.
var StandardQuestions = []string{
	"Briefly describe your most relevant experience",
	"Why do you want to work here?",
}

// CoverLetterPolicy controls whether plans carry a generated cover letter.
type CoverLetterPolicy string

const (
	CoverLetterTailored CoverLetterPolicy = "tailored"
	CoverLetterNone     CoverLetterPolicy = "none"
)

// planDraft is the shape the generator must produce, validated against
// schemas.PlanDraft before any of it enters a plan.
type planDraft struct {
	ResumeVariant string            `json:"resume_variant"`
	CoverLetter   string            `json:"cover_letter"`
	Answers       map[string]string `json:"answers"`
}

// Options tunes plan assembly.
type Options struct {
	CoverLetters CoverLetterPolicy
	RequireHITL  bool
}

// DefaultOptions returns the stock assembly settings. Human approval is on by
// default and must be switched off deliberately.
func DefaultOptions() Options {
	return Options{CoverLetters: CoverLetterTailored, RequireHITL: true}
}

// Assembler builds plans from a profile, a job, and generated text.
type Assembler struct {
	gen  TextGenerator
	opts Options
}

// New creates an assembler. A nil generator always produces fallback plans.
func New(gen TextGenerator, opts Options) *Assembler {
	if opts.CoverLetters == "" {
		opts.CoverLetters = CoverLetterTailored
	}
	return &Assembler{gen: gen, opts: opts}
}

// Build assembles and validates a plan for one job. Generator failures are
// logged and degrade to a fallback plan rather than returning an error; only
// structural incompleteness (a profile missing identity fields) fails.
func (a *Assembler) Build(ctx context.Context, profile types.Profile, job types.JobPosting) (types.ApplicationPlan, error) {
	plan := types.ApplicationPlan{
		Job:           job,
		ResumeVariant: "default",
		ResumePath:    profile.ResumePath,
		Answers:       identityAnswers(profile),
		RequiresHITL:  a.opts.RequireHITL,
	}

	draft, err := a.generateDraft(ctx, profile, job)
	if err != nil {
		log.Printf("[assemble] generator failed for job %s, building fallback plan: %v", job.ID, err)
		plan.Fallback = true
	} else {
		plan.ResumeVariant = draft.ResumeVariant
		if a.opts.CoverLetters == CoverLetterTailored {
			plan.CoverLetter = draft.CoverLetter
		}
		for q, ans := range draft.Answers {
			// Generated answers never override identity fields.
			if _, taken := plan.Answers[q]; taken {
				continue
			}
			plan.Answers[q] = ans
		}
	}

	if err := plan.Validate(); err != nil {
		return types.ApplicationPlan{}, fmt.Errorf("failed to assemble plan for job %s: %w", job.ID, err)
	}
	return plan, nil
}

// generateDraft runs the generator and validates its reply against the draft
// schema. Any schema violation is treated as a generator failure.
func (a *Assembler) generateDraft(ctx context.Context, profile types.Profile, job types.JobPosting) (*planDraft, error) {
	if a.gen == nil {
		return nil, fmt.Errorf("no text generator configured")
	}

	raw, err := a.gen.GenerateJSON(ctx, buildPrompt(profile, job))
	if err != nil {
		return nil, fmt.Errorf("failed to generate plan draft: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schemas.PlanDraft), gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to validate plan draft: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("plan draft does not match schema: %s", strings.Join(problems, "; "))
	}

	var draft planDraft
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		return nil, fmt.Errorf("failed to parse plan draft: %w", err)
	}
	for _, q := range StandardQuestions {
		if strings.TrimSpace(draft.Answers[q]) == "" {
			return nil, fmt.Errorf("plan draft missing answer for %q", q)
		}
	}
	return &draft, nil
}

// identityAnswers fills the answer keys that always come from the profile.
func identityAnswers(p types.Profile) map[string]string {
	return map[string]string{
		types.AnswerFullName:  p.FullName,
		types.AnswerFirstName: p.FirstName(),
		types.AnswerLastName:  p.LastName(),
		types.AnswerEmail:     p.Email,
		types.AnswerPhone:     p.Phone,
	}
}

func buildPrompt(profile types.Profile, job types.JobPosting) string {
	var b strings.Builder
	b.WriteString("You are preparing a job application on behalf of a candidate.\n")
	b.WriteString("Use only facts from the candidate profile. Never invent experience.\n\n")

	fmt.Fprintf(&b, "Job: %s at %s\n", job.Title, job.Company)
	if job.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", job.Location)
	}
	if job.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", job.Description)
	}

	b.WriteString("\nCandidate profile:\n")
	fmt.Fprintf(&b, "Name: %s\n", profile.FullName)
	if profile.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", profile.Summary)
	}
	if len(profile.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(profile.Skills, ", "))
	}
	for _, w := range profile.Work {
		fmt.Fprintf(&b, "- %s at %s (%s to %s): %s\n", w.Title, w.Company, w.Start, orPresent(w.End), strings.Join(w.Highlights, "; "))
	}
	if profile.ResumeText != "" {
		fmt.Fprintf(&b, "\nResume text:\n%s\n", profile.ResumeText)
	}

	b.WriteString("\nRespond with a JSON object with exactly these fields:\n")
	b.WriteString(`  "resume_variant": a short label for the resume emphasis to use` + "\n")
	b.WriteString(`  "cover_letter": a concise cover letter, three paragraphs at most` + "\n")
	b.WriteString(`  "answers": an object answering each of these questions, keyed by the question text verbatim:` + "\n")
	for _, q := range StandardQuestions {
		fmt.Fprintf(&b, "    %q\n", q)
	}
	return b.String()
}

func orPresent(end string) string {
	if end == "" {
		return "present"
	}
	return end
}
