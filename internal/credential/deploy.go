// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package credential

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/model"
)

// AddDeployment grants a deploy credential access to repository with perm
// (R or RW+). User keys cannot be associated.
func (s *Service) AddDeployment(ctx context.Context, actor *model.Owner, credentialID int64, repository, perm string) (model.DeploymentCredential, error) {
	repository = strings.TrimSpace(repository)
	perm = strings.TrimSpace(perm)

	var out model.DeploymentCredential
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c, err := loadCredential(ctx, tx, credentialID)
		if err != nil {
			return err
		}
		if err := authorize(actor, c.OwnerID()); err != nil {
			return err
		}

		errs := &ValidationErrors{}
		if !c.IsDeployKey() {
			errs.Add(FieldKind, &InclusionError{Field: FieldKind, Value: c.Kind().String(), Allowed: []string{model.KeyKindDeploy.String()}})
		}
		if !c.Active() {
			errs.Add(FieldActive, fmt.Errorf("credential %s is locked", c.Identifier()))
		}
		if repository == "" {
			errs.Add(FieldRepository, &PresenceError{Field: FieldRepository})
		}
		if !slices.Contains(model.DeploymentPermissions, perm) {
			errs.Add(FieldPerm, &InclusionError{Field: FieldPerm, Value: perm, Allowed: model.DeploymentPermissions})
		}
		if err := errs.orNil(); err != nil {
			return err
		}

		out, err = tx.InsertDeployment(ctx, model.DeploymentCredential{CredentialID: c.ID(), Repository: repository, Perm: perm})
		if err != nil {
			if field, ok := db.DuplicateField(err); ok && field == db.FieldRepository {
				errs.Add(FieldRepository, &UniquenessError{Field: FieldRepository, Value: repository})
				return errs
			}
			return fmt.Errorf("insert deployment credential: %w", err)
		}
		details := fmt.Sprintf("identifier: %s, repository: %s, perm: %s", c.Identifier(), repository, perm)
		return tx.LogAction(ctx, actorLogin(actor), ActionAddDeployment, details)
	})
	if err != nil {
		recordFailures(err)
		return model.DeploymentCredential{}, err
	}
	return out, nil
}

// RemoveDeployment drops the association of a credential with repository.
func (s *Service) RemoveDeployment(ctx context.Context, actor *model.Owner, credentialID int64, repository string) error {
	repository = strings.TrimSpace(repository)
	return s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c, err := loadCredential(ctx, tx, credentialID)
		if err != nil {
			return err
		}
		if err := authorize(actor, c.OwnerID()); err != nil {
			return err
		}
		if err := tx.DeleteDeployment(ctx, c.ID(), repository); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("deployment %s of %s: %w", repository, c.Identifier(), ErrNotFound)
			}
			return err
		}
		details := fmt.Sprintf("identifier: %s, repository: %s", c.Identifier(), repository)
		return tx.LogAction(ctx, actorLogin(actor), ActionRemoveDeployment, details)
	})
}

// Deployments lists the repository associations of a credential.
func (s *Service) Deployments(ctx context.Context, actor *model.Owner, credentialID int64) ([]model.DeploymentCredential, error) {
	var out []model.DeploymentCredential
	err := s.tx.InTx(ctx, func(ctx context.Context, tx db.Tx) error {
		c, err := loadCredential(ctx, tx, credentialID)
		if err != nil {
			return err
		}
		if err := authorize(actor, c.OwnerID()); err != nil {
			return err
		}
		out, err = tx.Deployments(ctx, c.ID())
		return err
	})
	return out, err
}
