// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/toeirei/gitkeeper/internal/i18n"
	"github.com/toeirei/gitkeeper/internal/logging"
	"github.com/toeirei/gitkeeper/internal/telemetry"
)

func newResyncCmd(env *environment) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resync",
		Short: "Deliver queued resync events to the gitolite configuration updater",
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Deliver all pending events once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := env.dispatcher.Flush(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("cli.resync_flushed", map[string]any{"Count": n}))
			return err
		},
	}

	var interval time.Duration
	run := &cobra.Command{
		Use:   "run",
		Short: "Deliver events continuously until interrupted",
		Long: `Polls the outbox every --interval and delivers pending events. When
metrics.listen is set, Prometheus metrics are served on that address.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if interval <= 0 {
				interval = env.cfg.Resync.Interval
			}
			if addr := env.cfg.Metrics.Listen; addr != "" {
				go func() {
					if err := telemetry.Serve(ctx, addr); err != nil {
						logging.Errorf("metrics endpoint on %s: %v", addr, err)
					}
				}()
				logging.Infof("serving metrics on %s/metrics", addr)
			}
			logging.Infof("delivering resync events every %s", interval)
			return env.dispatcher.Run(ctx, interval)
		},
	}
	run.Flags().DurationVar(&interval, "interval", 0, "Poll interval (defaults to resync.interval)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the number of undelivered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := env.store.Outbox().PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\n", n)
			return nil
		},
	}

	var keep int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Remove delivered events from the outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := env.store.Outbox().Purge(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged: %d\n", n)
			return nil
		},
	}
	purge.Flags().IntVar(&keep, "keep", 0, "Keep the newest N delivered events")

	cmd.AddCommand(flush, run, status, purge)
	return cmd
}
