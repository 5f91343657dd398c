// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"testing"
)

func TestExecRawAndQueryRawInto(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := ExecRaw(ctx, s.BunDB(), "INSERT INTO audit_log (timestamp, username, action, details) VALUES (?, ?, ?, ?)", s.clock(), "tester", "act", "d"); err != nil {
		t.Fatalf("ExecRaw failed: %v", err)
	}
	var n int
	if err := QueryRawInto(ctx, s.BunDB(), &n, "SELECT COUNT(*) FROM audit_log WHERE username = ?", "tester"); err != nil {
		t.Fatalf("QueryRawInto failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one audit row, got %d", n)
	}
}
