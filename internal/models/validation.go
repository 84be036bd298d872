package models

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError is one rejected descriptor field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (f FieldError) Error() string {
	return f.Field + " " + f.Message
}

// ValidationErrors lists every rejected field of one descriptor. It
// matches ErrInvalidDescriptor under errors.Is.
type ValidationErrors struct {
	Descriptor string       `json:"descriptor"`
	Fields     []FieldError `json:"fields"`
}

func newValidation(descriptor fmt.Stringer) *ValidationErrors {
	return &ValidationErrors{Descriptor: descriptor.String()}
}

// Reject records field as invalid.
func (v *ValidationErrors) Reject(field, format string, args ...any) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// RejectIf records field as invalid when bad is true.
func (v *ValidationErrors) RejectIf(bad bool, field, format string, args ...any) {
	if bad {
		v.Reject(field, format, args...)
	}
}

// Err returns nil when no field was rejected.
func (v *ValidationErrors) Err() error {
	if v == nil || len(v.Fields) == 0 {
		return nil
	}
	return v
}

// FieldNames returns the rejected fields in the order they were checked.
func (v *ValidationErrors) FieldNames() []string {
	out := make([]string, 0, len(v.Fields))
	for _, f := range v.Fields {
		out = append(out, f.Field)
	}
	return out
}

func (v *ValidationErrors) Error() string {
	var b strings.Builder
	b.WriteString(ErrInvalidDescriptor.Error())
	if v.Descriptor != "" {
		b.WriteString(" ")
		b.WriteString(v.Descriptor)
	}
	for i, f := range v.Fields {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(f.Error())
	}
	return b.String()
}

// Is reports ErrInvalidDescriptor.
func (v *ValidationErrors) Is(target error) bool {
	return errors.Is(target, ErrInvalidDescriptor)
}
