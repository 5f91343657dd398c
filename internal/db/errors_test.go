package db

import (
	"database/sql"
	"errors"
	"testing"
)

func TestMapDBError_DuplicateStrings(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		field string
	}{
		{"mysql duplicate entry", errors.New("Error 1062 (23000): Duplicate entry 'abc' for key 'credentials.idx_credentials_active_payload'"), FieldActivePayload},
		{"postgres unique violation", errors.New(`ERROR: duplicate key value violates unique constraint "idx_credentials_owner_title_lc" (SQLSTATE 23505)`), FieldTitle},
		{"sqlite unique constraint", errors.New("constraint failed: UNIQUE constraint failed: credentials.owner_id, credentials.identifier_lc (2067)"), FieldIdentifier},
		{"sqlite owner login", errors.New("UNIQUE constraint failed: owners.login_lc"), FieldLogin},
		{"deployment repository", errors.New("UNIQUE constraint failed: deployment_credentials.credential_id, deployment_credentials.repository"), FieldRepository},
		{"generic duplicate word", errors.New("duplicate row"), ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			mapped := MapDBError(c.err)
			if !errors.Is(mapped, ErrDuplicate) {
				t.Fatalf("expected ErrDuplicate, got: %v", mapped)
			}
			field, ok := DuplicateField(mapped)
			if !ok || field != c.field {
				t.Fatalf("field = %q (ok=%v), want %q", field, ok, c.field)
			}
			if !errors.Is(mapped, c.err) {
				t.Fatalf("driver error not kept in chain")
			}
		})
	}
}

func TestMapDBError_Passthrough(t *testing.T) {
	if MapDBError(nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	e := errors.New("some network error")
	if mapped := MapDBError(e); mapped != e {
		t.Fatalf("expected original error to be returned unchanged, got: %v", mapped)
	}
	if mapped := MapDBError(sql.ErrNoRows); !errors.Is(mapped, ErrNotFound) {
		t.Fatalf("sql.ErrNoRows should map to ErrNotFound, got %v", mapped)
	}
}
