// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// cleanup_orphan_deployments removes deployment rows that no longer belong
// to a deploy key: rows whose credential is gone and rows attached to user
// keys. Such rows only appear after manual database edits or on sqlite
// databases opened without foreign key enforcement.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/toeirei/gitkeeper/internal/db"
)

type orphan struct {
	ID           int64  `bun:"id"`
	CredentialID int64  `bun:"credential_id"`
	Repository   string `bun:"repository"`
	Reason       string `bun:"reason"`
}

const orphanQuery = `
	SELECT d.id, d.credential_id, d.repository,
		CASE WHEN c.id IS NULL THEN 'missing credential' ELSE 'user key' END AS reason
	FROM deployment_credentials d
	LEFT JOIN credentials c ON c.id = d.credential_id
	WHERE c.id IS NULL OR c.kind = 0
	ORDER BY d.id
`

func main() {
	dbType := flag.String("type", "sqlite", "database type (sqlite, postgres, mysql)")
	dsn := flag.String("dsn", "gitkeeper.db", "database connection string")
	dryRun := flag.Bool("dry-run", false, "only list the rows that would be removed")
	flag.Parse()

	store, err := db.NewStoreFromDSN(*dbType, *dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	if _, err := cleanup(context.Background(), store, os.Stdout, *dryRun); err != nil {
		log.Fatalf("Cleanup failed: %v", err)
	}
}

// cleanup lists the orphaned rows on out and, unless dryRun is set, deletes
// them and records one audit log entry. It returns the number of rows found.
func cleanup(ctx context.Context, store *db.Store, out io.Writer, dryRun bool) (int, error) {
	bdb := store.BunDB()

	var found []orphan
	if err := db.QueryRawInto(ctx, bdb, &found, orphanQuery); err != nil {
		return 0, fmt.Errorf("query orphaned deployments: %w", err)
	}
	if len(found) == 0 {
		fmt.Fprintln(out, "No orphaned deployments found.")
		return 0, nil
	}

	ids := make([]int64, 0, len(found))
	var details []string
	fmt.Fprintf(out, "Found %d orphaned deployment(s):\n", len(found))
	for _, o := range found {
		fmt.Fprintf(out, "  - #%d credential %d -> %s (%s)\n", o.ID, o.CredentialID, o.Repository, o.Reason)
		ids = append(ids, o.ID)
		details = append(details, fmt.Sprintf("%d:%s", o.CredentialID, o.Repository))
	}
	if dryRun {
		return len(found), nil
	}

	res, err := db.ExecRaw(ctx, bdb, "DELETE FROM deployment_credentials WHERE id IN (?)", bun.In(ids))
	if err != nil {
		return 0, fmt.Errorf("delete orphaned deployments: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := db.ExecRaw(ctx, bdb,
		"INSERT INTO audit_log (timestamp, username, action, details) VALUES (?, ?, ?, ?)",
		time.Now().UTC(), "cleanup_orphan_deployments", "CLEANUP_ORPHAN_DEPLOYMENTS", strings.Join(details, ", "),
	); err != nil {
		return 0, fmt.Errorf("write audit entry: %w", err)
	}
	fmt.Fprintf(out, "Removed %d row(s). Run \"gitkeeper resync flush\" if the gitolite configuration listed them.\n", n)
	return len(found), nil
}
