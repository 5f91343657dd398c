// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/toeirei/gitkeeper/internal/i18n"
)

func newOwnerCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "owner",
		Short: "Manage key owners",
	}

	var gitoliteID string
	var admin bool
	add := &cobra.Command{
		Use:   "add <login>",
		Short: "Register an owner",
		Long: `Registers an owner. The gitolite identifier prefixes every key
identifier of the owner and defaults to the login.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := env.store.AddOwner(cmd.Context(), args[0], gitoliteID, admin)
			if err != nil {
				return fmt.Errorf("add owner %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.owner_added", map[string]any{"Login": o.Login}))
			return nil
		},
	}
	add.Flags().StringVar(&gitoliteID, "gitolite-id", "", "gitolite identifier of the owner (defaults to the login)")
	add.Flags().BoolVar(&admin, "admin", false, "Grant administrative privileges")

	list := &cobra.Command{
		Use:   "list",
		Short: "List owners",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owners, err := env.store.Owners(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(owners))
			for _, o := range owners {
				rows = append(rows, []string{strconv.FormatInt(o.ID, 10), o.Login, o.GitoliteIdentifier, strconv.FormatBool(o.Admin)})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "LOGIN", "GITOLITE ID", "ADMIN"}, rows)
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}
