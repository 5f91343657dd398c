// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/toeirei/gitkeeper/internal/config"
	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/i18n"
)

// newMigrateCmd reports the schema version. Opening the store already
// applies pending migrations.
func newMigrateCmd(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, dirty, err := db.MigrationVersion(env.store.BunDB().DB, env.store.Type())
			if err != nil {
				return err
			}
			if dirty {
				return fmt.Errorf("database schema version %d is dirty, fix it manually", version)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.migrated", map[string]any{"Version": version}))
			return nil
		},
	}
}

func newAuditCmd(env *environment) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the audit log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := env.store.AuditLogEntries(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{strconv.Itoa(e.ID), e.Timestamp, e.Username, e.Action, e.Details})
			}
			printTable(cmd.OutOrStdout(), []string{"ID", "TIME", "USER", "ACTION", "DETAILS"}, rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of entries (0 for all)")
	return cmd
}

func newMaintenanceCmd(env *environment) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:     "maintenance",
		Aliases: []string{"db-maintain"},
		Short:   "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
		Long:    `Runs engine-specific maintenance tasks (VACUUM, OPTIMIZE TABLE, PRAGMA optimize).`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			if err := env.store.RunDBMaintenance(ctx); err != nil {
				return fmt.Errorf("maintenance failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.maintenance_done"))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort maintenance after this long (0 means the built-in limit)")
	return cmd
}

func newConfigCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Inspect and write the configuration",
		Annotations: map[string]string{annotationServices: servicesConfig},
	}

	var system bool
	var path string
	write := &cobra.Command{
		Use:   "write",
		Short: "Write the effective configuration to gitkeeper.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if path != "" {
				err = config.WriteConfigFileTo(&env.cfg, path)
			} else {
				path, err = config.WriteConfigFile(&env.cfg, system)
			}
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.config_written", map[string]any{"Path": path}))
			return nil
		},
	}
	write.Flags().BoolVar(&system, "system", false, "Write the system-wide file instead of the user file")
	write.Flags().StringVarP(&path, "output", "o", "", "Write to this path")

	cmd.AddCommand(write)
	return cmd
}
