package engine

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrConfigurationInvalid is returned when evaluation refuses to run because
// the configuration is inconsistent. It blocks every evaluation that uses the
// configuration; the referral itself is never at fault.
var ErrConfigurationInvalid = eris.New("engine: configuration invalid")

// ValidationKind classifies a configuration validation failure.
type ValidationKind string

const (
	KindWeightSum    ValidationKind = "weight_sum"
	KindMissingField ValidationKind = "missing_field"
	KindRange        ValidationKind = "range"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Kind    ValidationKind `json:"kind"`
	Field   string         `json:"field"`
	Message string         `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every field-level failure found in one
// configuration, in a stable order.
type ValidationErrors struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "engine: configuration validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether any failure of the given kind was recorded.
func (e *ValidationErrors) Has(kind ValidationKind) bool {
	for _, f := range e.Fields {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

func (e *ValidationErrors) add(kind ValidationKind, field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{
		Kind:    kind,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (e *ValidationErrors) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
