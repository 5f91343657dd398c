// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toeirei/gitkeeper/internal/i18n"
)

func newDeployCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Manage repository access of deploy keys",
	}

	var perm string
	add := &cobra.Command{
		Use:   "add <key id|title> <repository>",
		Short: "Grant a deploy key access to a repository",
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
			d, err := env.svc.AddDeployment(cmd.Context(), actor, c.ID(), args[1], perm)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.deployment_added", map[string]any{"Perm": d.Perm, "Repository": d.Repository}))
			return nil
		},
	}
	add.Flags().StringVarP(&perm, "perm", "p", "R", "Permission: R or RW+")

	list := &cobra.Command{
		Use:   "list <key id|title>",
		Short: "List the repositories of a deploy key",
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
			deps, err := env.svc.Deployments(cmd.Context(), actor, c.ID())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(deps))
			for _, d := range deps {
				rows = append(rows, []string{d.Repository, d.Perm, d.CreatedAt.Format("2006-01-02 15:04")})
			}
			printTable(cmd.OutOrStdout(), []string{"REPOSITORY", "PERM", "SINCE"}, rows)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:     "remove <key id|title> <repository>",
		Aliases: []string{"rm"},
		Short:   "Revoke repository access of a deploy key",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := env.actor(cmd)
			if err != nil {
				return err
			}
			c, err := env.resolveCredential(cmd, actor, args[0])
			if err != nil {
				return err
			}
			if err := env.svc.RemoveDeployment(cmd.Context(), actor, c.ID(), args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.deployment_removed", map[string]any{"Repository": args[1]}))
			return nil
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}
