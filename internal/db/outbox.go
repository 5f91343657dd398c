// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/toeirei/gitkeeper/internal/resync"
	"github.com/uptrace/bun"
)

// Outbox exposes the resync_outbox table to the resync dispatcher.
type Outbox struct {
	store *Store
}

var _ resync.Outbox = (*Outbox)(nil)

// Outbox returns the store's resync outbox.
func (s *Store) Outbox() *Outbox {
	return &Outbox{store: s}
}

// PendingEvents returns up to limit undelivered events in commit order.
// Rows whose payload no longer decodes are skipped and logged.
func (o *Outbox) PendingEvents(ctx context.Context, limit int) ([]resync.OutboxEntry, error) {
	var rows []OutboxModel
	q := o.store.bun.NewSelect().Model(&rows).Where("delivered_at IS NULL").OrderExpr("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]resync.OutboxEntry, 0, len(rows))
	for _, r := range rows {
		ev, err := resync.Unmarshal([]byte(r.Payload))
		if err != nil {
			dbLogf("db: skipping undecodable outbox row %d: %v", r.ID, err)
			continue
		}
		out = append(out, resync.OutboxEntry{
			ID:        r.ID,
			Event:     ev,
			Attempts:  r.Attempts,
			LastError: r.LastError,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// MarkDelivered stamps an event as delivered.
func (o *Outbox) MarkDelivered(ctx context.Context, id int64) error {
	_, err := o.store.bun.NewUpdate().Model((*OutboxModel)(nil)).
		Set("delivered_at = ?", sql.NullTime{Time: o.store.clock(), Valid: true}).
		Set("attempts = attempts + 1").
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox row %d delivered: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt and keeps the event pending.
func (o *Outbox) MarkFailed(ctx context.Context, id int64, cause string) error {
	_, err := o.store.bun.NewUpdate().Model((*OutboxModel)(nil)).
		Set("attempts = attempts + 1").
		Set("last_error = ?", cause).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("mark outbox row %d failed: %w", id, err)
	}
	return nil
}

// PendingCount returns the number of undelivered events.
func (o *Outbox) PendingCount(ctx context.Context) (int, error) {
	return o.store.bun.NewSelect().Model((*OutboxModel)(nil)).Where("delivered_at IS NULL").Count(ctx)
}

// Purge removes delivered events older than the newest keep rows.
func (o *Outbox) Purge(ctx context.Context, keep int) (int, error) {
	var ids []int64
	if keep > 0 {
		err := o.store.bun.NewSelect().Model((*OutboxModel)(nil)).Column("id").
			Where("delivered_at IS NOT NULL").OrderExpr("id DESC").Limit(keep).
			Scan(ctx, &ids)
		if err != nil {
			return 0, err
		}
	}
	q := o.store.bun.NewDelete().Model((*OutboxModel)(nil)).Where("delivered_at IS NOT NULL")
	if len(ids) > 0 {
		q = q.Where("id NOT IN (?)", bun.In(ids))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
