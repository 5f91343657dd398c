package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/testutil"
)

func seed(t *testing.T, s *db.Store, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecRaw(context.Background(), s.BunDB(), query, args...); err != nil {
		t.Fatalf("seed %q: %v", query, err)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s, err := db.NewStoreFromDSN("sqlite", testutil.MemoryDSN(t))
	if err != nil {
		t.Fatalf("NewStoreFromDSN: %v", err)
	}
	defer s.Close()

	alice, err := s.AddOwner(ctx, "alice", "", false)
	if err != nil {
		t.Fatalf("AddOwner: %v", err)
	}
	now := time.Now().UTC()
	insertCred := `INSERT INTO credentials (id, owner_id, title, title_lc, identifier, identifier_lc, key_material, payload_hash, kind, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'ssh-ed25519 AAAA', ?, ?, 1, ?, ?)`
	seed(t, s, insertCred, 1, alice.ID, "laptop", "laptop", "alice@laptop", "alice@laptop", "h1", 0, now, now)
	seed(t, s, insertCred, 2, alice.ID, "ci", "ci", "alice@deploy_key_1", "alice@deploy_key_1", "h2", 1, now, now)

	insertDep := `INSERT INTO deployment_credentials (credential_id, repository, perm, created_at) VALUES (?, ?, 'R', ?)`
	seed(t, s, insertDep, 1, "on-user-key", now)
	seed(t, s, insertDep, 2, "kept", now)
	seed(t, s, insertDep, 99, "dangling", now)

	var out bytes.Buffer
	n, err := cleanup(ctx, s, &out, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 orphans, got %d\n%s", n, out.String())
	}
	for _, want := range []string{"on-user-key (user key)", "dangling (missing credential)"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output lacks %q:\n%s", want, out.String())
		}
	}
	if deps, _ := s.Deployments(ctx, 1); len(deps) != 1 {
		t.Fatalf("dry run must not delete rows")
	}

	out.Reset()
	if n, err := cleanup(ctx, s, &out, false); err != nil || n != 2 {
		t.Fatalf("cleanup: n=%d err=%v", n, err)
	}
	if deps, _ := s.Deployments(ctx, 1); len(deps) != 0 {
		t.Fatalf("deployment on user key survived: %+v", deps)
	}
	if deps, _ := s.Deployments(ctx, 2); len(deps) != 1 || deps[0].Repository != "kept" {
		t.Fatalf("deploy key deployment was touched: %+v", deps)
	}
	entries, err := s.AuditLogEntries(ctx, 10)
	if err != nil || len(entries) != 1 || entries[0].Action != "CLEANUP_ORPHAN_DEPLOYMENTS" {
		t.Fatalf("unexpected audit log %+v (err=%v)", entries, err)
	}

	out.Reset()
	if n, err := cleanup(ctx, s, &out, false); err != nil || n != 0 {
		t.Fatalf("second run: n=%d err=%v", n, err)
	}
	if !strings.Contains(out.String(), "No orphaned deployments") {
		t.Fatalf("unexpected output %q", out.String())
	}
}
