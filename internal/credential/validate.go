// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package credential

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/sshkey"
	"github.com/toeirei/gitkeeper/internal/telemetry"
)

// candidate is the state of a credential while it is being validated.
type candidate struct {
	id         int64 // zero until persisted
	ownerID    int64
	title      string
	identifier string
	key        string
	kind       model.KeyKind
	// changed lists write-once fields the caller tried to alter.
	changed []string
}

func (c *candidate) persisted() bool { return c.id != 0 }

// prepareDraft trims the title and, since the draft was never stored,
// normalizes the key text.
func prepareDraft(d model.CredentialDraft) model.CredentialDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.KeyMaterial = sshkey.Normalize(d.KeyMaterial)
	return d
}

// keyShapeOK reports whether key has a type token and a payload. Keys that
// fail here never reach the external format check.
func keyShapeOK(key string) bool {
	_, _, _, err := sshkey.Parse(key)
	return err == nil
}

// formatCheck runs the external format check on key, bounded by the
// checker's own timeout. The result is nil for a well-formed key and a
// *sshkey.MalformedKeyError or *keycheck.ExternalToolError otherwise.
func (s *Service) formatCheck(ctx context.Context, key string) error {
	if !keyShapeOK(key) {
		return nil
	}
	return s.checker.Check(ctx, key)
}

// validate runs the checks that need the database, in order: owner
// presence, identifier assignment, field presence and limits, write-once
// fields, key shape, the precomputed format result, payload uniqueness for
// unsaved records, and owner-scoped title and identifier uniqueness.
// The returned owner is zero when it could not be loaded.
func (s *Service) validate(ctx context.Context, tx db.Tx, actor *model.Owner, c *candidate, formatErr error) (model.Owner, *ValidationErrors, error) {
	errs := &ValidationErrors{}

	var owner model.Owner
	ownerKnown := false
	if c.ownerID != 0 {
		o, err := tx.Owner(ctx, c.ownerID)
		switch {
		case err == nil:
			owner, ownerKnown = o, true
		case errors.Is(err, db.ErrNotFound):
		default:
			return owner, nil, fmt.Errorf("load owner %d: %w", c.ownerID, err)
		}
	}

	if c.identifier == "" && ownerKnown && !c.persisted() {
		ident, err := s.assignIdentifier(ctx, tx, owner, c.kind)
		if err != nil {
			return owner, nil, err
		}
		c.identifier = ident
	}

	if !ownerKnown {
		errs.Add(FieldOwner, &PresenceError{Field: FieldOwner})
	}
	if c.title == "" {
		errs.Add(FieldTitle, &PresenceError{Field: FieldTitle})
	} else if n := utf8.RuneCountInString(c.title); n > model.TitleLengthLimit {
		errs.Add(FieldTitle, &LengthError{Field: FieldTitle, Max: model.TitleLengthLimit, Got: n})
	}
	if c.identifier == "" {
		errs.Add(FieldIdentifier, &PresenceError{Field: FieldIdentifier})
	}
	if c.key == "" {
		errs.Add(FieldKey, &PresenceError{Field: FieldKey})
	}
	if !c.kind.Valid() {
		errs.Add(FieldKind, &InclusionError{
			Field:   FieldKind,
			Value:   strconv.Itoa(int(c.kind)),
			Allowed: []string{model.KeyKindUser.String(), model.KeyKindDeploy.String()},
		})
	}

	for _, field := range c.changed {
		errs.Add(field, &ImmutableFieldChangedError{Field: field})
	}

	if _, _, _, err := sshkey.Parse(c.key); err != nil {
		errs.Add(FieldKey, err)
	} else {
		if formatErr != nil {
			errs.Add(FieldKey, formatErr)
		}
		if !c.persisted() {
			conflict, err := s.checkPayload(ctx, tx, actor, c.key, 0)
			if err != nil {
				return owner, nil, err
			}
			if conflict != nil {
				errs.Add(FieldKey, conflict)
			}
		}
	}

	if ownerKnown {
		if err := checkScope(ctx, tx, errs, c.ownerID, c.title, c.identifier, c.id); err != nil {
			return owner, nil, err
		}
	}
	return owner, errs, nil
}

// assignIdentifier generates the identifier for a new credential of owner.
func (s *Service) assignIdentifier(ctx context.Context, tx db.Tx, owner model.Owner, kind model.KeyKind) (string, error) {
	switch kind {
	case model.KeyKindUser:
		return s.ids.User(owner.GitoliteIdentifier), nil
	case model.KeyKindDeploy:
		n, err := tx.CountDeployCredentials(ctx, owner.ID)
		if err != nil {
			return "", fmt.Errorf("count deploy keys of %s: %w", owner.Login, err)
		}
		return s.ids.Deploy(owner.GitoliteIdentifier, n), nil
	default:
		return "", nil
	}
}

// recordFailures counts a rejected save per failing field.
func recordFailures(err error) {
	errs, ok := AsValidationErrors(err)
	if !ok {
		return
	}
	for _, field := range errs.Fields() {
		telemetry.ValidationFailuresTotal.WithLabelValues(field).Inc()
	}
}
