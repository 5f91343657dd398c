// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/i18n"
	"github.com/toeirei/gitkeeper/internal/model"
)

func newKeyCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"keys"},
		Short:   "Manage SSH user and deploy keys",
	}
	cmd.AddCommand(
		newKeyAddCmd(env),
		newKeyListCmd(env),
		newKeyShowCmd(env),
		newKeyRenameCmd(env),
		newKeyActiveCmd(env, "lock", false),
		newKeyActiveCmd(env, "unlock", true),
		newKeyDeleteCmd(env),
		newKeyResetIdentifierCmd(env),
	)
	return cmd
}

func newKeyAddCmd(env *environment) *cobra.Command {
	var (
		title  string
		owner  string
		file   string
		deploy bool
	)
	cmd := &cobra.Command{
		Use:   "add --as <login> --title <title> [key...]",
		Short: "Add an SSH public key",
		Long: `Adds an SSH public key for the acting owner, or for --owner when the
acting owner is an administrator. The key is read from the arguments, from
--file or from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := env.actor(cmd)
			if err != nil {
				return err
			}
			target := actor
			if owner != "" {
				o, err := env.store.OwnerByLogin(cmd.Context(), owner)
				if err != nil {
					return fmt.Errorf("owner %q: %w", owner, err)
				}
				target = &o
			}
			key, err := readKeyMaterial(cmd, args, file)
			if err != nil {
				return err
			}
			kind := model.KeyKindUser
			if deploy {
				kind = model.KeyKindDeploy
			}

			c, _, err := env.svc.Create(cmd.Context(), actor, model.CredentialDraft{
				OwnerID:     target.ID,
				Title:       title,
				KeyMaterial: key,
				Kind:        kind,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.key_added", map[string]any{"Title": c.Title(), "Identifier": c.Identifier()}))
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Display title of the key")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner of the key (administrators only, defaults to --as)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the key from this file")
	cmd.Flags().BoolVar(&deploy, "deploy", false, "Add a deploy key instead of a user key")
	return cmd
}

func newKeyListCmd(env *environment) *cobra.Command {
	var (
		owner    string
		kind     string
		active   bool
		inactive bool
		search   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f db.CredentialFilter
			if owner != "" {
				o, err := env.store.OwnerByLogin(cmd.Context(), owner)
				if err != nil {
					return fmt.Errorf("owner %q: %w", owner, err)
				}
				f.OwnerID = o.ID
			}
			if kind != "" {
				k, err := model.ParseKeyKind(kind)
				if err != nil {
					return err
				}
				f.Kind = &k
			}
			switch {
			case active && inactive:
				return fmt.Errorf("--active and --inactive are mutually exclusive")
			case active:
				f.Active = &active
			case inactive:
				locked := false
				f.Active = &locked
			}
			f.Search = search

			creds, err := env.store.Credentials(cmd.Context(), f)
			if err != nil {
				return err
			}
			owners, err := env.ownerLogins(cmd)
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(),
				[]string{"ID", "OWNER", "TITLE", "KIND", "IDENTIFIER", "STATE", "FINGERPRINT"},
				credentialRows(creds, owners))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Only keys of this owner")
	cmd.Flags().StringVar(&kind, "kind", "", "Only user or deploy keys")
	cmd.Flags().BoolVar(&active, "active", false, "Only active keys")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Only locked keys")
	cmd.Flags().StringVarP(&search, "search", "s", "", "Match title, identifier or fingerprint")
	return cmd
}

func newKeyShowCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|title>",
		Short: "Show a key with its deployments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var actor *model.Owner
			if login, _ := cmd.Flags().GetString("as"); login != "" {
				a, err := env.actor(cmd)
				if err != nil {
					return err
				}
				actor = a
			}
			c, err := env.resolveCredential(cmd, actor, args[0])
			if err != nil {
				return err
			}
			owner, err := env.store.OwnerByID(cmd.Context(), c.OwnerID())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			printField(w, "ID", strconv.FormatInt(c.ID(), 10))
			printField(w, "Title", c.Title())
			printField(w, "Owner", owner.Login)
			printField(w, "Kind", c.Kind().String())
			printField(w, "Identifier", c.Identifier())
			printField(w, "Location", c.Location())
			printField(w, "State", stateLabel(c))
			printField(w, "Fingerprint", c.Fingerprint())
			printField(w, "Created", c.CreatedAt().Format("2006-01-02 15:04:05"))
			printField(w, "Key", c.KeyMaterial())

			if c.IsDeployKey() {
				deps, err := env.store.Deployments(cmd.Context(), c.ID())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(deps))
				for _, d := range deps {
					rows = append(rows, []string{d.Repository, d.Perm})
				}
				printTable(w, []string{"REPOSITORY", "PERM"}, rows)
			}
			return nil
		},
	}
}

func newKeyRenameCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id|title> <new title>",
		Short: "Change the title of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := env.actor(cmd)
			if err != nil {
				return err
			}
			c, err := env.resolveCredential(cmd, actor, args[0])
			if err != nil {
				return err
			}
			updated, err := env.svc.UpdateTitle(cmd.Context(), actor, c.ID(), args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.key_renamed", map[string]any{"Title": updated.Title()}))
			return nil
		},
	}
}

func newKeyActiveCmd(env *environment, use string, active bool) *cobra.Command {
	msg := "cli.key_locked"
	short := "Lock a key (administrators only)"
	if active {
		msg = "cli.key_unlocked"
		short = "Unlock a key (administrators only)"
	}
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := env.actor(cmd)
			if err != nil {
				return err
			}
			c, err := env.resolveCredential(cmd, actor, args[0])
			if err != nil {
				return err
			}
			updated, ev, err := env.svc.SetActive(cmd.Context(), actor, c.ID(), active)
			if err != nil {
				return err
			}
			id := msg
			if ev.IsZero() {
				id = "cli.key_unchanged"
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T(id, map[string]any{"Identifier": updated.Identifier()}))
			return nil
		},
	}
}

func newKeyDeleteCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id|title>",
		Aliases: []string{"rm"},
		Short:   "Delete a key and its deployments",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := env.actor(cmd)
			if err != nil {
				return err
			}
			c, err := env.resolveCredential(cmd, actor, args[0])
			if err != nil {
				return err
			}
			ev, err := env.svc.Destroy(cmd.Context(), actor, c.ID())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.key_deleted", map[string]any{"Identifier": ev.Key.Title}))
			return nil
		},
	}
}

func newKeyResetIdentifierCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-identifier <id|title>",
		Short: "Regenerate the identifier of a key from the owner's gitolite identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := env.actor(cmd)
			if err != nil {
				return err
			}
			c, err := env.resolveCredential(cmd, actor, args[0])
			if err != nil {
				return err
			}
			updated, _, err := env.svc.ResetIdentifier(cmd.Context(), actor, c.ID())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.identifier_reset", map[string]any{"Identifier": updated.Identifier()}))
			return nil
		},
	}
}
