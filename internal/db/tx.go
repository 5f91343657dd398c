// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os/user"
	"strings"
	"time"

	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/resync"
	"github.com/uptrace/bun"
)

// bunTx implements Tx on a bun transaction.
type bunTx struct {
	tx     bun.Tx
	dbType string
	now    func() time.Time
}

var _ Tx = (*bunTx)(nil)

// lockRow adds a row lock where the dialect supports one. SQLite serializes
// writers on its own.
func (t *bunTx) lockRow(q *bun.SelectQuery) *bun.SelectQuery {
	if t.dbType == "sqlite" {
		return q
	}
	return q.For("UPDATE")
}

func (t *bunTx) Owner(ctx context.Context, id int64) (model.Owner, error) {
	return selectOwner(ctx, t.tx, id)
}

func (t *bunTx) Credential(ctx context.Context, id int64) (model.Credential, error) {
	var cm CredentialModel
	q := t.tx.NewSelect().Model(&cm).Where("id = ?", id).Limit(1)
	if err := t.lockRow(q).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, err
	}
	return credentialModelToModel(cm), nil
}

func (t *bunTx) ActiveCredentialByPayload(ctx context.Context, payloadHash string, excludeID int64) (model.Credential, error) {
	var cm CredentialModel
	err := t.tx.NewSelect().Model(&cm).
		Where("active_payload_hash = ?", payloadHash).
		Where("id <> ?", excludeID).
		OrderExpr("id ASC").
		Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Credential{}, ErrNotFound
		}
		return model.Credential{}, err
	}
	return credentialModelToModel(cm), nil
}

func (t *bunTx) CountDeployCredentials(ctx context.Context, ownerID int64) (int, error) {
	return t.tx.NewSelect().Model((*CredentialModel)(nil)).
		Where("owner_id = ?", ownerID).
		Where("kind = ?", int(model.KeyKindDeploy)).
		Count(ctx)
}

func (t *bunTx) exists(ctx context.Context, ownerID int64, column, value string, excludeID int64) (bool, error) {
	return t.tx.NewSelect().Model((*CredentialModel)(nil)).
		Where("owner_id = ?", ownerID).
		Where("? = ?", bun.Ident(column), strings.ToLower(value)).
		Where("id <> ?", excludeID).
		Exists(ctx)
}

func (t *bunTx) TitleTaken(ctx context.Context, ownerID int64, title string, excludeID int64) (bool, error) {
	return t.exists(ctx, ownerID, "title_lc", title, excludeID)
}

func (t *bunTx) IdentifierTaken(ctx context.Context, ownerID int64, identifier string, excludeID int64) (bool, error) {
	return t.exists(ctx, ownerID, "identifier_lc", identifier, excludeID)
}

func (t *bunTx) InsertCredential(ctx context.Context, c model.Credential) (model.Credential, error) {
	cm := credentialModelFromModel(c)
	if cm.PayloadHash == "" {
		return model.Credential{}, fmt.Errorf("refusing to store unparseable key material")
	}
	now := t.now()
	cm.ID = 0
	cm.CreatedAt = now
	cm.UpdatedAt = now
	if _, err := t.tx.NewInsert().Model(&cm).Returning("id").Exec(ctx); err != nil {
		return model.Credential{}, MapDBError(err)
	}
	return credentialModelToModel(cm), nil
}

// UpdateCredential writes the mutable columns of c. Owner, key material
// and kind are never part of the statement.
func (t *bunTx) UpdateCredential(ctx context.Context, c model.Credential) error {
	cm := credentialModelFromModel(c)
	cm.UpdatedAt = t.now()
	res, err := t.tx.NewUpdate().Model(&cm).
		Column("title", "title_lc", "identifier", "identifier_lc", "active", "active_payload_hash", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return MapDBError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *bunTx) DeleteCredential(ctx context.Context, id int64) error {
	res, err := t.tx.NewDelete().Model((*CredentialModel)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *bunTx) Deployments(ctx context.Context, credentialID int64) ([]model.DeploymentCredential, error) {
	return selectDeployments(ctx, t.tx, credentialID)
}

func (t *bunTx) InsertDeployment(ctx context.Context, d model.DeploymentCredential) (model.DeploymentCredential, error) {
	dm := &DeploymentCredentialModel{
		CredentialID: d.CredentialID,
		Repository:   d.Repository,
		Perm:         d.Perm,
		CreatedAt:    t.now(),
	}
	if _, err := t.tx.NewInsert().Model(dm).Returning("id").Exec(ctx); err != nil {
		return model.DeploymentCredential{}, MapDBError(err)
	}
	return deploymentModelToModel(*dm), nil
}

func (t *bunTx) DeleteDeployment(ctx context.Context, credentialID int64, repository string) error {
	res, err := t.tx.NewDelete().Model((*DeploymentCredentialModel)(nil)).
		Where("credential_id = ?", credentialID).
		Where("repository = ?", repository).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *bunTx) DeleteDeployments(ctx context.Context, credentialID int64) (int, error) {
	res, err := t.tx.NewDelete().Model((*DeploymentCredentialModel)(nil)).Where("credential_id = ?", credentialID).Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (t *bunTx) EnqueueEvent(ctx context.Context, ev resync.Event) error {
	payload, err := ev.Marshal()
	if err != nil {
		return fmt.Errorf("encode resync event: %w", err)
	}
	om := &OutboxModel{
		Command:   string(ev.Command),
		Payload:   string(payload),
		CreatedAt: t.now(),
	}
	_, err = t.tx.NewInsert().Model(om).Returning("id").Exec(ctx)
	return err
}

// LogAction records an audit trail entry. An empty actor falls back to the
// current OS user.
func (t *bunTx) LogAction(ctx context.Context, actor, action, details string) error {
	if actor == "" {
		actor = osUsername()
	}
	_, err := t.tx.NewInsert().Model(&AuditLogModel{
		Timestamp: t.now(),
		Username:  actor,
		Action:    action,
		Details:   details,
	}).Exec(ctx)
	return MapDBError(err)
}

func osUsername() string {
	curUser, err := user.Current()
	if err != nil {
		return "unknown"
	}
	if parts := strings.Split(curUser.Username, `\`); len(parts) > 1 {
		return parts[1]
	}
	return curUser.Username
}
