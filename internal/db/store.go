// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/gitkeeper/internal/identifier"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/resync"
	"github.com/uptrace/bun"
)

// Tx is the query surface available inside one credential transaction.
// Lookups that find nothing return ErrNotFound; writes map constraint
// violations through MapDBError.
type Tx interface {
	// Owners
	Owner(ctx context.Context, id int64) (model.Owner, error)

	// Credentials
	Credential(ctx context.Context, id int64) (model.Credential, error)
	ActiveCredentialByPayload(ctx context.Context, payloadHash string, excludeID int64) (model.Credential, error)
	CountDeployCredentials(ctx context.Context, ownerID int64) (int, error)
	TitleTaken(ctx context.Context, ownerID int64, title string, excludeID int64) (bool, error)
	IdentifierTaken(ctx context.Context, ownerID int64, identifier string, excludeID int64) (bool, error)
	InsertCredential(ctx context.Context, c model.Credential) (model.Credential, error)
	UpdateCredential(ctx context.Context, c model.Credential) error
	DeleteCredential(ctx context.Context, id int64) error

	// Deployment associations
	Deployments(ctx context.Context, credentialID int64) ([]model.DeploymentCredential, error)
	InsertDeployment(ctx context.Context, d model.DeploymentCredential) (model.DeploymentCredential, error)
	DeleteDeployment(ctx context.Context, credentialID int64, repository string) error
	DeleteDeployments(ctx context.Context, credentialID int64) (int, error)

	// Side effects committed with the transaction
	EnqueueEvent(ctx context.Context, ev resync.Event) error
	LogAction(ctx context.Context, actor, action, details string) error
}

// TxRunner runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is the bun-backed data store of gitkeeper.
type Store struct {
	bun    *bun.DB
	dbType string
	now    func() time.Time
}

var _ TxRunner = (*Store)(nil)

// BunDB exposes the underlying *bun.DB for maintenance and tests.
func (s *Store) BunDB() *bun.DB { return s.bun }

// Type returns the configured database type.
func (s *Store) Type() string { return s.dbType }

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.bun.Close() }

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

// InTx runs fn in a database transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, btx bun.Tx) error {
		return fn(ctx, &bunTx{tx: btx, dbType: s.dbType, now: s.clock})
	})
}

// AddOwner registers an owner. Logins are unique case-insensitively.
func (s *Store) AddOwner(ctx context.Context, login, gitoliteIdentifier string, admin bool) (model.Owner, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return model.Owner{}, fmt.Errorf("owner login must not be blank")
	}
	if strings.TrimSpace(gitoliteIdentifier) == "" {
		gitoliteIdentifier = login
	}
	// The handle prefixes every credential identifier, which is split on
	// its first '@'.
	gitoliteIdentifier = identifier.Sanitize(strings.TrimSpace(gitoliteIdentifier))
	om := &OwnerModel{
		Login:              login,
		LoginLC:            strings.ToLower(login),
		GitoliteIdentifier: gitoliteIdentifier,
		Admin:              admin,
		CreatedAt:          s.clock(),
	}
	if _, err := s.bun.NewInsert().Model(om).Returning("id").Exec(ctx); err != nil {
		return model.Owner{}, MapDBError(err)
	}
	return ownerModelToModel(*om), nil
}

// OwnerByLogin looks up an owner by login, ignoring case.
func (s *Store) OwnerByLogin(ctx context.Context, login string) (model.Owner, error) {
	var om OwnerModel
	err := s.bun.NewSelect().Model(&om).Where("login_lc = ?", strings.ToLower(strings.TrimSpace(login))).Limit(1).Scan(ctx)
	if err != nil {
		return model.Owner{}, MapDBError(err)
	}
	return ownerModelToModel(om), nil
}

// OwnerByID looks up an owner by id.
func (s *Store) OwnerByID(ctx context.Context, id int64) (model.Owner, error) {
	return selectOwner(ctx, s.bun, id)
}

// Owners lists all owners ordered by login.
func (s *Store) Owners(ctx context.Context) ([]model.Owner, error) {
	var oms []OwnerModel
	if err := s.bun.NewSelect().Model(&oms).OrderExpr("login_lc ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Owner, 0, len(oms))
	for _, om := range oms {
		out = append(out, ownerModelToModel(om))
	}
	return out, nil
}

// CredentialFilter narrows Credentials. Zero values select everything.
type CredentialFilter struct {
	OwnerID int64
	// Active selects active (true) or locked (false) credentials when set.
	Active *bool
	// Kind selects user or deploy keys when set.
	Kind *model.KeyKind
	// Search is tokenized and matched against title, identifier and fingerprint.
	Search string
}

// Credentials lists credentials ordered by owner and title.
func (s *Store) Credentials(ctx context.Context, f CredentialFilter) ([]model.Credential, error) {
	var cms []CredentialModel
	q := s.bun.NewSelect().Model(&cms)
	if f.OwnerID != 0 {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Active != nil {
		q = q.Where("active = ?", *f.Active)
	}
	if f.Kind != nil {
		q = q.Where("kind = ?", int(*f.Kind))
	}
	if err := q.OrderExpr("owner_id ASC, title_lc ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Credential, 0, len(cms))
	for _, cm := range cms {
		out = append(out, credentialModelToModel(cm))
	}
	return FilterCredentialsByTokens(out, TokenizeSearchQuery(f.Search)), nil
}

// CredentialByID loads one credential.
func (s *Store) CredentialByID(ctx context.Context, id int64) (model.Credential, error) {
	var cm CredentialModel
	if err := s.bun.NewSelect().Model(&cm).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return model.Credential{}, MapDBError(err)
	}
	return credentialModelToModel(cm), nil
}

// CredentialByTitle loads a credential of ownerID by title, ignoring case.
func (s *Store) CredentialByTitle(ctx context.Context, ownerID int64, title string) (model.Credential, error) {
	var cm CredentialModel
	err := s.bun.NewSelect().Model(&cm).
		Where("owner_id = ?", ownerID).
		Where("title_lc = ?", strings.ToLower(strings.TrimSpace(title))).
		Limit(1).Scan(ctx)
	if err != nil {
		return model.Credential{}, MapDBError(err)
	}
	return credentialModelToModel(cm), nil
}

// Deployments lists the repository associations of a credential.
func (s *Store) Deployments(ctx context.Context, credentialID int64) ([]model.DeploymentCredential, error) {
	return selectDeployments(ctx, s.bun, credentialID)
}

// AuditLogEntries returns audit log entries, most recent first. A limit of
// zero returns everything.
func (s *Store) AuditLogEntries(ctx context.Context, limit int) ([]model.AuditLogEntry, error) {
	var am []AuditLogModel
	q := s.bun.NewSelect().Model(&am).OrderExpr("timestamp DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.AuditLogEntry, 0, len(am))
	for _, a := range am {
		out = append(out, auditLogModelToModel(a))
	}
	return out, nil
}

func selectOwner(ctx context.Context, idb bun.IDB, id int64) (model.Owner, error) {
	var om OwnerModel
	if err := idb.NewSelect().Model(&om).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Owner{}, ErrNotFound
		}
		return model.Owner{}, err
	}
	return ownerModelToModel(om), nil
}

func selectDeployments(ctx context.Context, idb bun.IDB, credentialID int64) ([]model.DeploymentCredential, error) {
	var dms []DeploymentCredentialModel
	if err := idb.NewSelect().Model(&dms).Where("credential_id = ?", credentialID).OrderExpr("repository ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.DeploymentCredential, 0, len(dms))
	for _, dm := range dms {
		out = append(out, deploymentModelToModel(dm))
	}
	return out, nil
}
