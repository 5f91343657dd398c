// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/gitkeeper/internal/identifier"
)

// TitleLengthLimit is the maximum length of a credential title in characters.
const TitleLengthLimit = 255

// KeyKind distinguishes keys owned by a person from keys used by automation.
type KeyKind int

const (
	KeyKindUser   KeyKind = 0
	KeyKindDeploy KeyKind = 1
)

// Valid reports whether k is one of the known kinds.
func (k KeyKind) Valid() bool {
	return k == KeyKindUser || k == KeyKindDeploy
}

func (k KeyKind) String() string {
	switch k {
	case KeyKindUser:
		return "user"
	case KeyKindDeploy:
		return "deploy"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseKeyKind converts "user" or "deploy" into a KeyKind.
func ParseKeyKind(s string) (KeyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return KeyKindUser, nil
	case "deploy":
		return KeyKindDeploy, nil
	default:
		return -1, fmt.Errorf("unknown key kind %q (expected user or deploy)", s)
	}
}

// CredentialDraft is the mutable form of a credential before its first
// commit. Every field may be set freely; the credential service normalizes
// and validates it on save.
type CredentialDraft struct {
	OwnerID int64
	Title   string
	// Identifier is normally left empty and assigned by the service.
	Identifier  string
	KeyMaterial string
	Kind        KeyKind
}

// Credential is a persisted SSH credential. Its write-once fields can only
// be read; the only copies that can be derived change the title or the
// active flag.
type Credential struct {
	id          int64
	ownerID     int64
	title       string
	identifier  string
	keyMaterial string
	fingerprint string
	kind        KeyKind
	active      bool
	createdAt   time.Time
	updatedAt   time.Time
}

// CredentialState is the flat representation of a Credential used by the
// storage layer to load and save records.
type CredentialState struct {
	ID          int64
	OwnerID     int64
	Title       string
	Identifier  string
	KeyMaterial string
	Fingerprint string
	Kind        KeyKind
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RestoreCredential rebuilds a Credential from stored state.
func RestoreCredential(s CredentialState) Credential {
	return Credential{
		id:          s.ID,
		ownerID:     s.OwnerID,
		title:       s.Title,
		identifier:  s.Identifier,
		keyMaterial: s.KeyMaterial,
		fingerprint: s.Fingerprint,
		kind:        s.Kind,
		active:      s.Active,
		createdAt:   s.CreatedAt,
		updatedAt:   s.UpdatedAt,
	}
}

// State returns the flat representation of c.
func (c Credential) State() CredentialState {
	return CredentialState{
		ID:          c.id,
		OwnerID:     c.ownerID,
		Title:       c.title,
		Identifier:  c.identifier,
		KeyMaterial: c.keyMaterial,
		Fingerprint: c.fingerprint,
		Kind:        c.kind,
		Active:      c.active,
		CreatedAt:   c.createdAt,
		UpdatedAt:   c.updatedAt,
	}
}

func (c Credential) ID() int64            { return c.id }
func (c Credential) OwnerID() int64       { return c.ownerID }
func (c Credential) Title() string        { return c.title }
func (c Credential) Identifier() string   { return c.identifier }
func (c Credential) KeyMaterial() string  { return c.keyMaterial }
func (c Credential) Fingerprint() string  { return c.fingerprint }
func (c Credential) Kind() KeyKind        { return c.kind }
func (c Credential) Active() bool         { return c.active }
func (c Credential) CreatedAt() time.Time { return c.createdAt }
func (c Credential) UpdatedAt() time.Time { return c.updatedAt }

// IsUserKey reports whether the credential belongs to a person.
func (c Credential) IsUserKey() bool { return c.kind == KeyKindUser }

// IsDeployKey reports whether the credential is a deploy key.
func (c Credential) IsDeployKey() bool { return c.kind == KeyKindDeploy }

// Owner returns the owner tag of the identifier (the part before '@').
func (c Credential) Owner() string {
	owner, _ := identifier.Split(c.identifier)
	return owner
}

// Location returns the location tag of the identifier (the part after '@').
func (c Credential) Location() string {
	_, location := identifier.Split(c.identifier)
	return location
}

// String returns the credential title.
func (c Credential) String() string {
	return c.title
}

// WithTitle returns a copy of c carrying a new title.
func (c Credential) WithTitle(title string) Credential {
	c.title = title
	return c
}

// WithActive returns a copy of c with the active flag set.
func (c Credential) WithActive(active bool) Credential {
	c.active = active
	return c
}

// CredentialUpdate describes a change request for a persisted credential.
// Nil fields are left untouched. Only Title may actually change; supplying
// a different value for any other field is rejected.
type CredentialUpdate struct {
	Title       *string
	Identifier  *string
	KeyMaterial *string
	OwnerID     *int64
	Kind        *KeyKind
}

// DeploymentPermissions lists the repository permissions a deploy key can be
// granted.
var DeploymentPermissions = []string{"R", "RW+"}

// DeploymentCredential associates a deploy credential with a repository.
// It is removed together with its credential.
type DeploymentCredential struct {
	ID           int64
	CredentialID int64
	Repository   string
	Perm         string
	CreatedAt    time.Time
}
