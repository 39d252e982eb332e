package errors

import (
	"fmt"
	"strings"
)

// FieldViolation is a single validator failure.
type FieldViolation struct {
	Property    string   `json:"property"`
	Message     string   `json:"message"`
	MissingKeys []string `json:"missingKeys,omitempty"`
	ExtraKeys   []string `json:"extraKeys,omitempty"`
}

// StateTransitionError describes a rejected lifecycle update. It matches
// ErrInvalidStateTransition under errors.Is.
type StateTransitionError struct {
	Message          string           `json:"message"`
	OldState         string           `json:"oldState"`
	NewState         string           `json:"newState"`
	Request          map[string]any   `json:"updateRequest,omitempty"`
	MissingKeys      []string         `json:"missingKeys,omitempty"`
	ExtraKeys        []string         `json:"extraKeys,omitempty"`
	ValidationErrors []FieldViolation `json:"validationErrors,omitempty"`
}

func (e *StateTransitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s -> %s)", e.Message, e.OldState, e.NewState)
	if len(e.MissingKeys) > 0 {
		fmt.Fprintf(&b, " missing keys: %s", strings.Join(e.MissingKeys, ","))
	}
	if len(e.ExtraKeys) > 0 {
		fmt.Fprintf(&b, " extra keys: %s", strings.Join(e.ExtraKeys, ","))
	}
	for _, v := range e.ValidationErrors {
		fmt.Fprintf(&b, "; %s: %s", v.Property, v.Message)
	}
	return b.String()
}

func (e *StateTransitionError) Is(target error) bool {
	return target == ErrInvalidStateTransition
}
