package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateActivityEvent checks an event received from outside the process
// (admin API, event bus).
func ValidateActivityEvent(e *ActivityEvent) error {
	var ve ValidationError

	if strings.TrimSpace(e.UserID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "user_id", Message: "is required"})
	}
	// Event types are open-ended; unknown ones fall through to a raw category.
	if strings.TrimSpace(string(e.Type)) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "event_type", Message: "is required"})
	}
	if e.Increment < 0 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "increment",
			Message: fmt.Sprintf("must not be negative, got %d", e.Increment),
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateNotification checks a notification before it is recorded.
func ValidateNotification(n *Notification) error {
	var ve ValidationError

	if strings.TrimSpace(n.UserID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "user_id", Message: "is required"})
	}
	if strings.TrimSpace(n.Title) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "is required"})
	} else if len([]rune(n.Title)) > 200 {
		ve.Errors = append(ve.Errors, FieldError{Field: "title", Message: "must be 200 characters or fewer"})
	}
	if strings.TrimSpace(n.Body) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "body", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
