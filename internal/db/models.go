// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"strings"
	"time"

	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/sshkey"
	"github.com/uptrace/bun"
)

// OwnerModel maps the owners table.
type OwnerModel struct {
	bun.BaseModel      `bun:"table:owners"`
	ID                 int64     `bun:"id,pk,autoincrement"`
	Login              string    `bun:"login"`
	LoginLC            string    `bun:"login_lc"`
	GitoliteIdentifier string    `bun:"gitolite_identifier"`
	Admin              bool      `bun:"admin"`
	CreatedAt          time.Time `bun:"created_at"`
}

// CredentialModel maps the credentials table. ActivePayloadHash mirrors
// PayloadHash while the credential is active and is NULL otherwise; its
// unique index keeps two active credentials from sharing a payload.
type CredentialModel struct {
	bun.BaseModel     `bun:"table:credentials"`
	ID                int64          `bun:"id,pk,autoincrement"`
	OwnerID           int64          `bun:"owner_id"`
	Title             string         `bun:"title"`
	TitleLC           string         `bun:"title_lc"`
	Identifier        string         `bun:"identifier"`
	IdentifierLC      string         `bun:"identifier_lc"`
	KeyMaterial       string         `bun:"key_material"`
	PayloadHash       string         `bun:"payload_hash"`
	ActivePayloadHash sql.NullString `bun:"active_payload_hash"`
	Fingerprint       string         `bun:"fingerprint"`
	Kind              int            `bun:"kind"`
	Active            bool           `bun:"active"`
	CreatedAt         time.Time      `bun:"created_at"`
	UpdatedAt         time.Time      `bun:"updated_at"`
}

// DeploymentCredentialModel maps deployment_credentials.
type DeploymentCredentialModel struct {
	bun.BaseModel `bun:"table:deployment_credentials"`
	ID            int64     `bun:"id,pk,autoincrement"`
	CredentialID  int64     `bun:"credential_id"`
	Repository    string    `bun:"repository"`
	Perm          string    `bun:"perm"`
	CreatedAt     time.Time `bun:"created_at"`
}

// OutboxModel maps resync_outbox.
type OutboxModel struct {
	bun.BaseModel `bun:"table:resync_outbox"`
	ID            int64        `bun:"id,pk,autoincrement"`
	Command       string       `bun:"command"`
	Payload       string       `bun:"payload"`
	Attempts      int          `bun:"attempts"`
	LastError     string       `bun:"last_error"`
	CreatedAt     time.Time    `bun:"created_at"`
	DeliveredAt   sql.NullTime `bun:"delivered_at"`
}

// AuditLogModel maps the audit_log table.
type AuditLogModel struct {
	bun.BaseModel `bun:"table:audit_log"`
	ID            int       `bun:"id,pk,autoincrement"`
	Timestamp     time.Time `bun:"timestamp"`
	Username      string    `bun:"username"`
	Action        string    `bun:"action"`
	Details       string    `bun:"details"`
}

func ownerModelToModel(o OwnerModel) model.Owner {
	return model.Owner{
		ID:                 o.ID,
		Login:              o.Login,
		GitoliteIdentifier: o.GitoliteIdentifier,
		Admin:              o.Admin,
		CreatedAt:          o.CreatedAt,
	}
}

func credentialModelToModel(c CredentialModel) model.Credential {
	return model.RestoreCredential(model.CredentialState{
		ID:          c.ID,
		OwnerID:     c.OwnerID,
		Title:       c.Title,
		Identifier:  c.Identifier,
		KeyMaterial: c.KeyMaterial,
		Fingerprint: c.Fingerprint,
		Kind:        model.KeyKind(c.Kind),
		Active:      c.Active,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	})
}

// credentialModelFromModel derives the lookup columns of c. The payload hash
// is empty when the key material does not parse; callers validate first.
func credentialModelFromModel(c model.Credential) CredentialModel {
	s := c.State()
	m := CredentialModel{
		ID:           s.ID,
		OwnerID:      s.OwnerID,
		Title:        s.Title,
		TitleLC:      strings.ToLower(s.Title),
		Identifier:   s.Identifier,
		IdentifierLC: strings.ToLower(s.Identifier),
		KeyMaterial:  s.KeyMaterial,
		Fingerprint:  s.Fingerprint,
		Kind:         int(s.Kind),
		Active:       s.Active,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
	if payload, err := sshkey.Payload(s.KeyMaterial); err == nil {
		m.PayloadHash = sshkey.PayloadHash(payload)
	}
	m.ActivePayloadHash = activePayloadHash(m.PayloadHash, m.Active)
	return m
}

func activePayloadHash(hash string, active bool) sql.NullString {
	return sql.NullString{String: hash, Valid: active && hash != ""}
}

func deploymentModelToModel(d DeploymentCredentialModel) model.DeploymentCredential {
	return model.DeploymentCredential{
		ID:           d.ID,
		CredentialID: d.CredentialID,
		Repository:   d.Repository,
		Perm:         d.Perm,
		CreatedAt:    d.CreatedAt,
	}
}

func auditLogModelToModel(a AuditLogModel) model.AuditLogEntry {
	return model.AuditLogEntry{
		ID:        a.ID,
		Timestamp: a.Timestamp.UTC().Format(time.RFC3339),
		Username:  a.Username,
		Action:    a.Action,
		Details:   a.Details,
	}
}
