// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/gitkeeper/internal/adminkey"
	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/identifier"
	"github.com/toeirei/gitkeeper/internal/keycheck"
	"github.com/toeirei/gitkeeper/internal/logging"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/resync"
	"github.com/toeirei/gitkeeper/internal/sshkey"
	"github.com/toeirei/gitkeeper/internal/telemetry"
)

// Audit actions written by the service.
const (
	ActionAddCredential    = "ADD_CREDENTIAL"
	ActionDeleteCredential = "DELETE_CREDENTIAL"
	ActionRenameCredential = "RENAME_CREDENTIAL"
	ActionLockCredential   = "LOCK_CREDENTIAL"
	ActionUnlockCredential = "UNLOCK_CREDENTIAL"
	ActionResetIdentifier  = "RESET_IDENTIFIER"
	ActionAddDeployment    = "ADD_DEPLOYMENT"
	ActionRemoveDeployment = "REMOVE_DEPLOYMENT"
)

// Service runs the credential lifecycle: validation, persistence and the
// resync events that follow a commit.
type Service struct {
	tx          db.TxRunner
	checker     keycheck.Checker
	admin       adminkey.Source
	ids         *identifier.Generator
	afterCommit func()
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the clock used for identifier time tags.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.ids = identifier.NewGenerator(now) }
}

// WithAfterCommit registers fn to run after every commit that enqueued
// resync events, e.g. resync.Dispatcher.Kick.
func WithAfterCommit(fn func()) Option {
	return func(s *Service) { s.afterCommit = fn }
}

// NewService wires a Service. A nil checker falls back to the builtin
// parser, a nil admin source to no administrator key.
func NewService(tx db.TxRunner, checker keycheck.Checker, admin adminkey.Source, opts ...Option) *Service {
	if checker == nil {
		checker = keycheck.Builtin{}
	}
	if admin == nil {
		admin = adminkey.None
	}
	s := &Service{
		tx:      tx,
		checker: checker,
		admin:   admin,
		ids:     identifier.NewGenerator(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) committed() {
	if s.afterCommit != nil {
		s.afterCommit()
	}
}

func actorLogin(actor *model.Owner) string {
	if actor == nil {
		return ""
	}
	return actor.Login
}

// authorize allows the owner of a credential and privileged actors.
func authorize(actor *model.Owner, ownerID int64) error {
	if actor == nil {
		return ErrForbidden
	}
	if actor.Admin || actor.ID == ownerID {
		return nil
	}
	return ErrForbidden
}

// loadCredential reads a credential inside tx, mapping a missing row.
func loadCredential(ctx context.Context, tx db.Tx, id int64) (model.Credential, error) {
	c, err := tx.Credential(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return c, fmt.Errorf("credential %d: %w", id, ErrNotFound)
	}
	return c, err
}

// Create validates draft on behalf of actor and stores it as an active
// credential. The returned event has been enqueued with the commit; it is
// the zero Event whenever err is non-nil.
func (s *Service) Create(ctx context.Context, actor *model.Owner, draft model.CredentialDraft) (model.Credential, resync.Event, error) {
	if err := authorize(actor, draft.OwnerID); err != nil && draft.OwnerID != 0 {
		return model.Credential{}, resync.Event{}, err
	}
	draft = prepareDraft(draft)

	// the external check runs before the transaction so no locks are held
	formatErr := s.formatCheck(ctx, draft.KeyMaterial)

	var created model.Credential
	var ev resync.Event
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c := &candidate{
			ownerID:    draft.OwnerID,
			title:      draft.Title,
			identifier: draft.Identifier,
			key:        draft.KeyMaterial,
			kind:       draft.Kind,
		}
		owner, errs, err := s.validate(ctx, tx, actor, c, formatErr)
		if err != nil {
			return err
		}
		if err := errs.orNil(); err != nil {
			return err
		}

		fingerprint, err := sshkey.Fingerprint(c.key)
		if err != nil {
			logging.Debugf("no fingerprint for key %q: %v", c.title, err)
		}
		created, err = tx.InsertCredential(ctx, model.RestoreCredential(model.CredentialState{
			OwnerID:     c.ownerID,
			Title:       c.title,
			Identifier:  c.identifier,
			KeyMaterial: c.key,
			Fingerprint: fingerprint,
			Kind:        c.kind,
			Active:      true,
		}))
		if err != nil {
			return duplicateToValidation(err, c.title, c.identifier)
		}

		pending := resync.AddCredential(owner.ID)
		if err := tx.EnqueueEvent(ctx, pending); err != nil {
			return fmt.Errorf("enqueue resync event: %w", err)
		}
		details := fmt.Sprintf("owner: %s, title: %s, identifier: %s", owner.Login, created.Title(), created.Identifier())
		if err := tx.LogAction(ctx, actorLogin(actor), ActionAddCredential, details); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		ev = pending
		return nil
	})
	if err != nil {
		recordFailures(err)
		return model.Credential{}, resync.Event{}, err
	}

	telemetry.CredentialsCreatedTotal.WithLabelValues(created.Kind().String()).Inc()
	logging.Infof("User '%s' has added a SSH key '%s' (%s)", actorLogin(actor), created.Title(), created.Identifier())
	s.committed()
	return created, ev, nil
}

// UpdateTitle renames a credential.
func (s *Service) UpdateTitle(ctx context.Context, actor *model.Owner, id int64, title string) (model.Credential, error) {
	return s.Update(ctx, actor, id, model.CredentialUpdate{Title: &title})
}

// Update applies upd to a persisted credential. Only the title can change;
// a different value for any write-once field is rejected with
// ImmutableFieldChangedError.
func (s *Service) Update(ctx context.Context, actor *model.Owner, id int64, upd model.CredentialUpdate) (model.Credential, error) {
	var current model.Credential
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		var err error
		current, err = loadCredential(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Credential{}, err
	}
	if err := authorize(actor, current.OwnerID()); err != nil {
		return model.Credential{}, err
	}
	formatErr := s.formatCheck(ctx, current.KeyMaterial())

	var updated model.Credential
	err = s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		current, err := loadCredential(ctx, tx, id)
		if err != nil {
			return err
		}
		c := &candidate{
			id:         current.ID(),
			ownerID:    current.OwnerID(),
			title:      current.Title(),
			identifier: current.Identifier(),
			key:        current.KeyMaterial(),
			kind:       current.Kind(),
			changed:    changedFields(current, upd),
		}
		if upd.Title != nil {
			c.title = strings.TrimSpace(*upd.Title)
		}
		if _, errs, err := s.validate(ctx, tx, actor, c, formatErr); err != nil {
			return err
		} else if err := errs.orNil(); err != nil {
			return err
		}
		if c.title == current.Title() {
			updated = current
			return nil
		}

		updated = current.WithTitle(c.title)
		if err := tx.UpdateCredential(ctx, updated); err != nil {
			return duplicateToValidation(err, c.title, c.identifier)
		}
		details := fmt.Sprintf("identifier: %s, old_title: %s, new_title: %s", current.Identifier(), current.Title(), c.title)
		return tx.LogAction(ctx, actorLogin(actor), ActionRenameCredential, details)
	})
	if err != nil {
		recordFailures(err)
		return model.Credential{}, err
	}
	return updated, nil
}

// changedFields lists the write-once fields upd tries to change.
func changedFields(c model.Credential, upd model.CredentialUpdate) []string {
	var out []string
	if upd.Identifier != nil && *upd.Identifier != c.Identifier() {
		out = append(out, FieldIdentifier)
	}
	if upd.KeyMaterial != nil && *upd.KeyMaterial != c.KeyMaterial() {
		out = append(out, FieldKey)
	}
	if upd.OwnerID != nil && *upd.OwnerID != c.OwnerID() {
		out = append(out, FieldOwner)
	}
	if upd.Kind != nil && *upd.Kind != c.Kind() {
		out = append(out, FieldKind)
	}
	return out
}

// deleteEvent snapshots what the resync subsystem needs to drop c.
func deleteEvent(c model.Credential) resync.Event {
	return resync.DeleteCredential(c.Identifier(), c.KeyMaterial(), c.Owner(), c.Location())
}

// Destroy removes a credential together with its deployment associations.
// The returned delete event carries the credential as it was before removal.
func (s *Service) Destroy(ctx context.Context, actor *model.Owner, id int64) (resync.Event, error) {
	var ev resync.Event
	var gone model.Credential
	var associations int
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c, err := loadCredential(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, c.OwnerID()); err != nil {
			return err
		}
		pending := deleteEvent(c)

		associations, err = tx.DeleteDeployments(ctx, c.ID())
		if err != nil {
			return fmt.Errorf("delete deployment credentials: %w", err)
		}
		if err := tx.DeleteCredential(ctx, c.ID()); err != nil {
			return fmt.Errorf("delete credential: %w", err)
		}
		if err := tx.EnqueueEvent(ctx, pending); err != nil {
			return fmt.Errorf("enqueue resync event: %w", err)
		}
		details := fmt.Sprintf("title: %s, identifier: %s, deployments: %d", c.Title(), c.Identifier(), associations)
		if err := tx.LogAction(ctx, actorLogin(actor), ActionDeleteCredential, details); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		gone, ev = c, pending
		return nil
	})
	if err != nil {
		return resync.Event{}, err
	}

	telemetry.CredentialsDestroyedTotal.Inc()
	logging.Infof("User '%s' has deleted a SSH key '%s'", actorLogin(actor), gone.Title())
	logging.Infof("Delete SSH key %s", gone.Identifier())
	s.committed()
	return ev, nil
}

// SetActive locks (active=false) or unlocks a credential. Only privileged
// actors may do this. Locking emits a delete event so the key leaves the
// access-control configuration; unlocking re-checks the payload against all
// active credentials and emits an add event. Setting the current state
// again is a no-op that returns the zero Event.
func (s *Service) SetActive(ctx context.Context, actor *model.Owner, id int64, active bool) (model.Credential, resync.Event, error) {
	if actor == nil || !actor.Admin {
		return model.Credential{}, resync.Event{}, ErrForbidden
	}
	var updated model.Credential
	var ev resync.Event
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c, err := loadCredential(ctx, tx, id)
		if err != nil {
			return err
		}
		if c.Active() == active {
			updated = c
			return nil
		}

		var pending resync.Event
		action := ActionLockCredential
		if active {
			conflict, err := s.checkPayload(ctx, tx, actor, c.KeyMaterial(), c.ID())
			if err != nil {
				return err
			}
			if conflict != nil {
				errs := &ValidationErrors{}
				errs.Add(FieldKey, conflict)
				return errs
			}
			pending = resync.AddCredential(c.OwnerID())
			action = ActionUnlockCredential
		} else {
			pending = deleteEvent(c)
		}

		next := c.WithActive(active)
		if err := tx.UpdateCredential(ctx, next); err != nil {
			return duplicateToValidation(err, c.Title(), c.Identifier())
		}
		if err := tx.EnqueueEvent(ctx, pending); err != nil {
			return fmt.Errorf("enqueue resync event: %w", err)
		}
		if err := tx.LogAction(ctx, actorLogin(actor), action, fmt.Sprintf("identifier: %s", c.Identifier())); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		updated, ev = next, pending
		return nil
	})
	if err != nil {
		recordFailures(err)
		return model.Credential{}, resync.Event{}, err
	}
	if !ev.IsZero() {
		logging.Infof("User '%s' set SSH key '%s' active=%t", actorLogin(actor), updated.Identifier(), active)
		s.committed()
	}
	return updated, ev, nil
}

// ResetIdentifier regenerates the identifier of a credential from the
// owner's current gitolite handle. It deliberately skips validation,
// including the write-once rule. The returned events drop the old
// identifier and add the owner's keys again.
func (s *Service) ResetIdentifier(ctx context.Context, actor *model.Owner, id int64) (model.Credential, []resync.Event, error) {
	var updated model.Credential
	var events []resync.Event
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c, err := loadCredential(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, c.OwnerID()); err != nil {
			return err
		}
		owner, err := tx.Owner(ctx, c.OwnerID())
		if err != nil {
			return fmt.Errorf("load owner %d: %w", c.OwnerID(), err)
		}
		ident, err := s.assignIdentifier(ctx, tx, owner, c.Kind())
		if err != nil {
			return err
		}
		if ident == "" {
			return fmt.Errorf("cannot derive identifier for key kind %d", int(c.Kind()))
		}

		state := c.State()
		state.Identifier = ident
		next := model.RestoreCredential(state)
		if err := tx.UpdateCredential(ctx, next); err != nil {
			return duplicateToValidation(err, c.Title(), ident)
		}
		pending := []resync.Event{deleteEvent(c), resync.AddCredential(owner.ID)}
		for _, ev := range pending {
			if err := tx.EnqueueEvent(ctx, ev); err != nil {
				return fmt.Errorf("enqueue resync event: %w", err)
			}
		}
		details := fmt.Sprintf("old_identifier: %s, new_identifier: %s", c.Identifier(), ident)
		if err := tx.LogAction(ctx, actorLogin(actor), ActionResetIdentifier, details); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		updated, events = next, pending
		return nil
	})
	if err != nil {
		return model.Credential{}, nil, err
	}
	logging.Infof("Reset identifier of SSH key '%s' to %s", updated.Title(), updated.Identifier())
	s.committed()
	return updated, events, nil
}
