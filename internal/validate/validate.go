// SPDX-License-Identifier: MIT

// Package validate collects field-level failures so that a settings check
// can report every problem at once instead of stopping at the first.
package validate

import (
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Error is one failed field.
type Error struct {
	Field   string
	Value   any
	Message string
	// Err is an optional sentinel matched by errors.Is.
	Err error
}

func (e Error) Error() string {
	return e.Field + ": " + e.Message
}

func (e Error) Unwrap() error { return e.Err }

// ValidationError is the aggregate returned by Validator.Err.
type ValidationError struct {
	errors []Error
}

func (e ValidationError) Errors() []Error { return e.errors }

// Fields lists the failing fields in report order.
func (e ValidationError) Fields() []string {
	fields := make([]string, len(e.errors))
	for i, fe := range e.errors {
		fields[i] = fe.Field
	}
	return fields
}

// Unwrap exposes every field error to errors.Is and errors.As.
func (e ValidationError) Unwrap() []error {
	errs := make([]error, len(e.errors))
	for i, fe := range e.errors {
		errs[i] = fe
	}
	return errs
}

func (e ValidationError) Error() string {
	var b strings.Builder
	for i, fe := range e.errors {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Error())
	}
	return b.String()
}

// Validator accumulates failures. The zero value is ready to use.
type Validator struct {
	errors []Error
}

func New() *Validator { return &Validator{} }

// check records msg against field unless ok holds.
func (v *Validator) check(ok bool, field, msg string, value any) {
	if !ok {
		v.errors = append(v.errors, Error{Field: field, Value: value, Message: msg})
	}
}

func (v *Validator) AddError(field, message string, value any) {
	v.check(false, field, message, value)
}

// AddCause records cause against field; errors.Is matches it later.
func (v *Validator) AddCause(field string, cause error, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: cause.Error(), Err: cause})
}

// Merge appends the failures of other, which may be nil.
func (v *Validator) Merge(other *Validator) {
	if other != nil {
		v.errors = append(v.errors, other.errors...)
	}
}

func (v *Validator) IsValid() bool { return len(v.errors) == 0 }

func (v *Validator) Errors() []Error { return v.errors }

// Err returns nil when nothing failed and a ValidationError otherwise.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	return ValidationError{errors: slices.Clone(v.errors)}
}

// URL requires an absolute URL with a host. An empty scheme list accepts any
// scheme.
func (v *Validator) URL(field, value string, schemes []string) {
	if value == "" {
		v.AddError(field, "is empty", value)
		return
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.AddError(field, fmt.Sprintf("is not a URL: %v", err), value)
	case u.Host == "":
		v.AddError(field, "has no host", value)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.AddError(field, fmt.Sprintf("scheme %q is not one of %v", u.Scheme, schemes), value)
	}
}

func (v *Validator) Port(field string, port int) {
	v.check(port >= 1 && port <= 65535, field, fmt.Sprintf("port %d is outside 1-65535", port), port)
}

// Range checks minVal <= value <= maxVal.
func (v *Validator) Range(field string, value, minVal, maxVal int) {
	v.check(value >= minVal && value <= maxVal, field,
		fmt.Sprintf("%d is outside %d-%d", value, minVal, maxVal), value)
}

// NotEmpty rejects empty and whitespace-only strings.
func (v *Validator) NotEmpty(field, value string) {
	v.check(strings.TrimSpace(value) != "", field, "is empty", value)
}

// Email requires a bare address, without a display name.
func (v *Validator) Email(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "is empty", value)
		return
	}
	addr, err := mail.ParseAddress(value)
	v.check(err == nil && addr.Address == value, field, "is not a bare email address", value)
}

func (v *Validator) OneOf(field, value string, allowed []string) {
	v.check(slices.Contains(allowed, value), field, fmt.Sprintf("%q is not one of %v", value, allowed), value)
}

func (v *Validator) Positive(field string, value int) {
	v.check(value > 0, field, fmt.Sprintf("%d is not positive", value), value)
}

func (v *Validator) PositiveDuration(field string, value time.Duration) {
	v.check(value > 0, field, fmt.Sprintf("duration %s is not positive", value), value)
}

// Custom records the error fn returns for value, if any.
func (v *Validator) Custom(field string, value any, fn func(any) error) {
	if err := fn(value); err != nil {
		v.AddError(field, err.Error(), value)
	}
}
