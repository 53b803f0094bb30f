package compiler

import (
	"fmt"

	"github.com/roach88/nudge/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// General validation errors (E200)
	ErrUnsupportedIRType = "E200" // unsupported IR type for validation

	// Reminder errors (E201-E209)
	ErrMissingField   = "E201" // required field absent or empty
	ErrDuplicateID    = "E202" // duplicate trigger/condition id
	ErrInvalidConfig  = "E203" // config missing or of the wrong shape
	ErrOutOfRange     = "E204" // hour, day, coordinate or radius out of bounds
	ErrUnknownType    = "E205" // unknown trigger/condition type or status
	ErrDuplicateRemID = "E206" // reminder id defined more than once
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled reminder against the creation-time rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch r := v.(type) {
	case *ir.Reminder:
		return validateReminder(r)
	case ir.Reminder:
		return validateReminder(&r)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// ValidateAll validates each reminder and checks that ids are unique
// across the set. Fields are prefixed with the reminder id.
func ValidateAll(reminders []ir.Reminder) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(reminders))
	for i := range reminders {
		r := &reminders[i]
		if r.ID != "" && seen[r.ID] {
			errs = append(errs, ValidationError{
				Field:   "reminder." + r.ID,
				Message: fmt.Sprintf("reminder %q is defined more than once", r.ID),
				Code:    ErrDuplicateRemID,
			})
		}
		seen[r.ID] = true

		for _, e := range validateReminder(r) {
			e.Field = "reminder." + r.ID + "." + e.Field
			errs = append(errs, e)
		}
	}
	return errs
}

func validateReminder(r *ir.Reminder) []ValidationError {
	problems := ir.Check(*r)
	errs := make([]ValidationError, 0, len(problems))
	for _, p := range problems {
		errs = append(errs, ValidationError{
			Field:   p.Field,
			Message: p.Message,
			Code:    codeFor(p.Kind),
		})
	}
	return errs
}

func codeFor(kind ir.ProblemKind) string {
	switch kind {
	case ir.ProblemMissing:
		return ErrMissingField
	case ir.ProblemDuplicate:
		return ErrDuplicateID
	case ir.ProblemConfig:
		return ErrInvalidConfig
	case ir.ProblemRange:
		return ErrOutOfRange
	default:
		return ErrUnknownType
	}
}
