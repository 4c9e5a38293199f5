package ingest

import "fmt"

// ValidationErrorKind classifies why a payload was rejected.
type ValidationErrorKind string

const (
	ErrKindMissingField   ValidationErrorKind = "missing_field"
	ErrKindMalformedArray ValidationErrorKind = "malformed_array"
	ErrKindMissingSection ValidationErrorKind = "missing_section"
)

// ValidationError rejects a payload before any storage work happens.
// Field names the offending field or section.
type ValidationError struct {
	Field string
	Kind  ValidationErrorKind
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload (%s): %s", e.Kind, e.Field)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Kind: ErrKindMissingField, Field: field}
}

func malformedArray(field string) *ValidationError {
	return &ValidationError{Kind: ErrKindMalformedArray, Field: field}
}

func missingSection(section string) *ValidationError {
	return &ValidationError{Kind: ErrKindMissingSection, Field: section}
}
