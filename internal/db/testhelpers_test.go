// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"testing"

	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/testutil"
)

// newTestStore opens a migrated in-memory sqlite Store that is closed when
// the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStoreFromDSN("sqlite", testutil.MemoryDSN(t))
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustOwner(t *testing.T, s *Store, login string) model.Owner {
	t.Helper()
	o, err := s.AddOwner(context.Background(), login, login, false)
	if err != nil {
		t.Fatalf("AddOwner(%s): %v", login, err)
	}
	return o
}

// mustInsert stores a credential directly, bypassing the credential service.
func mustInsert(t *testing.T, s *Store, st model.CredentialState) model.Credential {
	t.Helper()
	var out model.Credential
	err := s.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.InsertCredential(ctx, model.RestoreCredential(st))
		return err
	})
	if err != nil {
		t.Fatalf("InsertCredential(%s): %v", st.Title, err)
	}
	return out
}
