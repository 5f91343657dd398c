// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/sshkey"
	"github.com/toeirei/gitkeeper/internal/telemetry"
)

// resolveConflict decides how much the requester learns about the holder
// of a payload. holder is nil for the administrator key.
func resolveConflict(actor, holder *model.Owner, title string) *ConflictError {
	switch {
	case holder != nil && actor.Is(holder):
		return &ConflictError{Reason: OwnedByRequester, Title: title}
	case actor != nil && actor.Admin && holder != nil:
		return &ConflictError{Reason: OwnedByOther, OwnerLogin: holder.Login, Title: title}
	case actor != nil && actor.Admin:
		return &ConflictError{Reason: AdministratorKey}
	default:
		return &ConflictError{Reason: OwnedBySomeoneUnspecified}
	}
}

// checkPayload compares the payload of key with the administrator key and
// then with every active credential other than excludeID. The first match
// wins. A nil result means the payload is free.
func (s *Service) checkPayload(ctx context.Context, tx db.Tx, actor *model.Owner, key string, excludeID int64) (*ConflictError, error) {
	payload, err := sshkey.Payload(key)
	if err != nil {
		// reported by the shape check
		return nil, nil
	}

	adminKey, err := s.admin.AdminKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("read administrator key: %w", err)
	}
	if adminKey != "" {
		if adminPayload, err := sshkey.Payload(adminKey); err == nil && adminPayload == payload {
			return s.conflict(resolveConflict(actor, nil, "")), nil
		}
	}

	existing, err := tx.ActiveCredentialByPayload(ctx, sshkey.PayloadHash(payload), excludeID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up active credentials: %w", err)
	}
	holder, err := tx.Owner(ctx, existing.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("look up owner of credential %d: %w", existing.ID(), err)
	}
	return s.conflict(resolveConflict(actor, &holder, existing.Title())), nil
}

func (s *Service) conflict(c *ConflictError) *ConflictError {
	telemetry.KeyConflictsTotal.WithLabelValues(c.Reason.String()).Inc()
	return c
}

// checkScope reports title and identifier collisions within the owner.
func checkScope(ctx context.Context, tx db.Tx, errs *ValidationErrors, ownerID int64, title, ident string, excludeID int64) error {
	if title != "" {
		taken, err := tx.TitleTaken(ctx, ownerID, title, excludeID)
		if err != nil {
			return fmt.Errorf("check title: %w", err)
		}
		if taken {
			errs.Add(FieldTitle, &UniquenessError{Field: FieldTitle, Value: title})
		}
	}
	if ident != "" {
		taken, err := tx.IdentifierTaken(ctx, ownerID, ident, excludeID)
		if err != nil {
			return fmt.Errorf("check identifier: %w", err)
		}
		if taken {
			errs.Add(FieldIdentifier, &UniquenessError{Field: FieldIdentifier, Value: ident})
		}
	}
	return nil
}

// duplicateToValidation turns a storage unique violation that slipped past
// the pre-checks into the matching validation error.
func duplicateToValidation(err error, title, ident string) error {
	field, ok := db.DuplicateField(err)
	if !ok {
		return err
	}
	errs := &ValidationErrors{}
	switch field {
	case db.FieldActivePayload:
		errs.Add(FieldKey, &ConflictError{Reason: OwnedBySomeoneUnspecified})
	case db.FieldTitle:
		errs.Add(FieldTitle, &UniquenessError{Field: FieldTitle, Value: title})
	case db.FieldIdentifier:
		errs.Add(FieldIdentifier, &UniquenessError{Field: FieldIdentifier, Value: ident})
	default:
		return err
	}
	return errs
}
