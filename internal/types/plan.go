package types

import (
	"github.com/go-playground/validator/v10"
)

// Answer keys every plan must carry. They are filled from the profile, never
// generated, so a plan can always be reviewed against real candidate identity.
const (
	AnswerFullName  = "full_name"
	AnswerFirstName = "first_name"
	AnswerLastName  = "last_name"
	AnswerEmail     = "email"
	AnswerPhone     = "phone"
)

// RequiredAnswerKeys are the identity answers a plan is incomplete without.
var RequiredAnswerKeys = []string{AnswerFullName, AnswerFirstName, AnswerLastName, AnswerEmail}

// ApplicationPlan is the assembled, immutable input to one submission attempt.
// Changing any answer means building a new plan; the engine never edits one in place.
type ApplicationPlan struct {
	Job           JobPosting        `json:"job" validate:"required"`
	ResumeVariant string            `json:"resume_variant" validate:"required"`
	ResumePath    string            `json:"resume_path,omitempty"` // resolved file for the variant; empty skips upload
	CoverLetter   string            `json:"cover_letter,omitempty"`
	Answers       map[string]string `json:"answers" validate:"required"`
	RequiresHITL  bool              `json:"requires_hitl"`

	// Fallback marks a plan assembled without generated content (the text
	// generator failed or timed out). The approval gate warns on these.
	Fallback bool `json:"fallback,omitempty"`
}

var planValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural completeness of the plan. It is called at queue
// admission so an incomplete plan never enters the state machine.
func (p *ApplicationPlan) Validate() error {
	if err := planValidator.Struct(p); err != nil {
		return &IncompletePlanError{Reason: err.Error()}
	}
	var missing []string
	for _, key := range RequiredAnswerKeys {
		if p.Answers[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &IncompletePlanError{MissingKeys: missing}
	}
	return nil
}
