package accounts

import (
	"github.com/goliatone/go-errors"
)

// NonFieldErrors is the envelope key for failures not attributable to a
// single input field.
const NonFieldErrors = "nonFieldErrors"

// Result is the uniform envelope every mutation orchestrator returns.
// Domain failures are always recovered into it; only infrastructure errors
// escape as Go errors.
type Result struct {
	Success bool                `json:"success"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// OK returns a successful envelope.
func OK() Result {
	return Result{Success: true}
}

// Failure attributes err to the given field. An empty field lands under
// nonFieldErrors.
func Failure(field string, err error) Result {
	if field == "" {
		field = NonFieldErrors
	}
	return Result{
		Success: false,
		Errors: map[string][]string{
			field: {messageFor(err)},
		},
	}
}

// FieldErrors builds a failed envelope from a prepared field->messages map.
func FieldErrors(fields map[string][]string) Result {
	return Result{Success: false, Errors: fields}
}

// AddError appends a message to the envelope, marking it failed.
func (r *Result) AddError(field, message string) {
	if field == "" {
		field = NonFieldErrors
	}
	if r.Errors == nil {
		r.Errors = map[string][]string{}
	}
	r.Errors[field] = append(r.Errors[field], message)
	r.Success = false
}

// HasErrors reports whether any error has been recorded.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// TextCode extracts the stable error code from a structured error, or
// empty when none applies.
func TextCode(err error) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}

// recoverDomain converts a domain error into a failed envelope attributed to
// field. Infrastructure errors (no stable text code) pass through untouched
// so the transport layer can treat them as fatal.
func recoverDomain(field string, err error) (Result, error) {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode != "" {
		return Failure(field, richErr), nil
	}
	return Result{}, err
}

func messageFor(err error) string {
	if err == nil {
		return ""
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	return err.Error()
}
