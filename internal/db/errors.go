// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"errors"
	"strings"
)

// ErrDuplicate is returned when attempting to insert a record that already exists.
var ErrDuplicate = errors.New("duplicate record")

// ErrNotFound is returned when a looked up record does not exist.
var ErrNotFound = errors.New("record not found")

// Fields reported by DuplicateError.
const (
	FieldActivePayload = "active_payload"
	FieldTitle         = "title"
	FieldIdentifier    = "identifier"
	FieldLogin         = "login"
	FieldRepository    = "repository"
)

// DuplicateError is a unique violation whose offending column could be told
// from the driver message. It matches ErrDuplicate via errors.Is.
type DuplicateError struct {
	Field string
	Err   error
}

func (e *DuplicateError) Error() string {
	if e.Field == "" {
		return ErrDuplicate.Error()
	}
	return ErrDuplicate.Error() + ": " + e.Field
}

func (e *DuplicateError) Unwrap() error { return e.Err }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// constraint name fragments, most specific first
var duplicateFields = []struct {
	fragment string
	field    string
}{
	{"active_payload", FieldActivePayload},
	{"identifier_lc", FieldIdentifier},
	{"title_lc", FieldTitle},
	{"login_lc", FieldLogin},
	{"cred_repo", FieldRepository},
	{"deployment_credentials.repository", FieldRepository},
}

// MapDBError inspects low-level driver errors and maps common constraint
// violations to package-level sentinel errors. The mapping is string based
// so this file does not depend on driver error types.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	le := strings.ToLower(err.Error())
	// MySQL duplicate entry, Postgres unique violation (23505), SQLite unique constraint
	if strings.Contains(le, "duplicate") || strings.Contains(le, "unique") || strings.Contains(le, "23505") || strings.Contains(le, "1062") {
		for _, df := range duplicateFields {
			if strings.Contains(le, df.fragment) {
				return &DuplicateError{Field: df.field, Err: err}
			}
		}
		return &DuplicateError{Err: err}
	}
	return err
}

// DuplicateField returns the field of a DuplicateError in err's chain.
func DuplicateField(err error) (string, bool) {
	var de *DuplicateError
	if errors.As(err, &de) {
		return de.Field, true
	}
	return "", false
}
