// Package validation validates config structs through validator/v10 tags and
// request input through a small fluent Validator. Both report failures as an
// INVALID_INPUT *errors.AppError with per-field details.
package validation

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kbukum/scribe/errors"
)

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator collects validation errors.
type Validator struct {
	errors []FieldError
}

// New creates a new Validator.
func New() *Validator {
	return &Validator{}
}

// AddError adds a field error.
func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

// HasErrors returns true if there are validation errors.
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *Validator) Errors() []FieldError {
	return v.errors
}

// Validate returns an AppError if there are validation errors, nil otherwise.
func (v *Validator) Validate() error {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return errors.Validation(strings.Join(messages, "; ")).WithDetail("fields", v.errors)
}

// Required checks that a string is not blank.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is required")
	}
	return v
}

// UUID checks that a string is a valid UUID.
func (v *Validator) UUID(field, value string) *Validator {
	if _, err := uuid.Parse(value); err != nil {
		v.AddError(field, "must be a valid UUID")
	}
	return v
}

// MaxLength checks the rune length of a string.
func (v *Validator) MaxLength(field, value string, maxLen int) *Validator {
	if utf8.RuneCountInString(value) > maxLen {
		v.AddError(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	return v
}

// OneOf checks that value is one of allowed. An empty allowed list accepts anything.
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if len(allowed) > 0 && !slices.Contains(allowed, value) {
		v.AddError(field, "must be one of: "+strings.Join(allowed, ", "))
	}
	return v
}

// Check adds message for field when ok is false.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.AddError(field, message)
	}
	return v
}
