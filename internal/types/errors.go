package types

import (
	"fmt"
	"strings"
)

// IncompletePlanError indicates a plan is missing required fields or answers.
// Plans failing this check are rejected at admission and never enter the
// submission state machine.
type IncompletePlanError struct {
	MissingKeys []string
	Reason      string
}

func (e *IncompletePlanError) Error() string {
	if len(e.MissingKeys) > 0 {
		return fmt.Sprintf("incomplete plan: missing answers for %s", strings.Join(e.MissingKeys, ", "))
	}
	return fmt.Sprintf("incomplete plan: %s", e.Reason)
}

// TransitionError indicates an attempt was asked to make an illegal state change.
type TransitionError struct {
	From AttemptState
	To   AttemptState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal attempt transition: %s -> %s", e.From, e.To)
}
