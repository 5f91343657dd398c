// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package credential

import (
	"errors"
	"fmt"
	"strings"
)

// Field names used as keys of ValidationErrors.
const (
	FieldOwner      = "owner"
	FieldTitle      = "title"
	FieldIdentifier = "identifier"
	FieldKey        = "key"
	FieldKind       = "key_type"
	FieldRepository = "repository"
	FieldPerm       = "perm"
	FieldActive     = "active"
)

var (
	// ErrConflict matches every ConflictError via errors.Is.
	ErrConflict = errors.New("key is already in use")
	// ErrNotFound is returned for unknown credentials and associations.
	ErrNotFound = errors.New("credential not found")
	// ErrForbidden is returned when the actor may not touch a credential.
	ErrForbidden = errors.New("not permitted")
)

// PresenceError reports a required field that is missing or blank.
type PresenceError struct{ Field string }

func (e *PresenceError) Error() string { return e.Field + " can't be blank" }

// UniquenessError reports a title or identifier already used by the same
// owner, compared case-insensitively.
type UniquenessError struct {
	Field string
	Value string
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("%s %q has already been taken", e.Field, e.Value)
}

// ImmutableFieldChangedError reports an attempt to change a write-once field
// of a persisted credential.
type ImmutableFieldChangedError struct{ Field string }

func (e *ImmutableFieldChangedError) Error() string { return e.Field + " may not be changed" }

// LengthError reports a value longer than Max characters.
type LengthError struct {
	Field string
	Max   int
	Got   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%s is too long (%d characters, maximum is %d)", e.Field, e.Got, e.Max)
}

// InclusionError reports a value outside the allowed set.
type InclusionError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InclusionError) Error() string {
	return fmt.Sprintf("%s %q is not included in the list (%s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// ConflictReason tells who already uses a key payload, as far as the
// requester may know.
type ConflictReason int

const (
	// OwnedBySomeoneUnspecified withholds the owner from unprivileged requesters.
	OwnedBySomeoneUnspecified ConflictReason = iota
	// OwnedByRequester means the requester registered the key already.
	OwnedByRequester
	// OwnedByOther names another owner; privileged requesters only.
	OwnedByOther
	// AdministratorKey means the payload is the gitolite administrator key.
	AdministratorKey
)

func (r ConflictReason) String() string {
	switch r {
	case OwnedByRequester:
		return "owned_by_requester"
	case OwnedByOther:
		return "owned_by_other"
	case AdministratorKey:
		return "administrator_key"
	default:
		return "owned_by_someone"
	}
}

// ConflictError reports a key payload that is already used by an active
// credential or by the administrator key.
type ConflictError struct {
	Reason ConflictReason
	// Title of the conflicting credential; set for OwnedByRequester and OwnedByOther.
	Title string
	// OwnerLogin is set for OwnedByOther only.
	OwnerLogin string
}

func (e *ConflictError) Error() string {
	switch e.Reason {
	case OwnedByRequester:
		return fmt.Sprintf("key is already in use by you in key %q", e.Title)
	case OwnedByOther:
		return fmt.Sprintf("key is already in use by %s in key %q", e.OwnerLogin, e.Title)
	case AdministratorKey:
		return "key is already in use as the gitolite administrator key"
	default:
		return "key is already in use by someone else"
	}
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// FieldError is a single validation failure.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string { return e.Field + ": " + e.Err.Error() }

func (e FieldError) Unwrap() error { return e.Err }

// ValidationErrors collects every failure of one save attempt in the order
// the checks ran.
type ValidationErrors struct {
	errs []FieldError
}

// Add records err against field.
func (v *ValidationErrors) Add(field string, err error) {
	v.errs = append(v.errs, FieldError{Field: field, Err: err})
}

// Len returns the number of collected errors.
func (v *ValidationErrors) Len() int { return len(v.errs) }

// All returns the collected errors.
func (v *ValidationErrors) All() []FieldError {
	return append([]FieldError(nil), v.errs...)
}

// On returns the errors recorded for field.
func (v *ValidationErrors) On(field string) []error {
	var out []error
	for _, fe := range v.errs {
		if fe.Field == field {
			out = append(out, fe.Err)
		}
	}
	return out
}

// Fields returns the distinct failing fields in first-seen order.
func (v *ValidationErrors) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, fe := range v.errs {
		if !seen[fe.Field] {
			seen[fe.Field] = true
			out = append(out, fe.Field)
		}
	}
	return out
}

func (v *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v.errs))
	for _, fe := range v.errs {
		msgs = append(msgs, fe.Error())
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (v *ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(v.errs))
	for _, fe := range v.errs {
		out = append(out, fe)
	}
	return out
}

// orNil returns v as an error when it holds anything.
func (v *ValidationErrors) orNil() error {
	if v == nil || len(v.errs) == 0 {
		return nil
	}
	return v
}

// AsValidationErrors extracts the ValidationErrors from err's chain.
func AsValidationErrors(err error) (*ValidationErrors, bool) {
	var v *ValidationErrors
	if errors.As(err, &v) {
		return v, true
	}
	return nil, false
}
