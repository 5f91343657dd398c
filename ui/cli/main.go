// Copyright (c) 2026 Keymaster Team
// gitkeeper - SSH credential management for gitolite
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the gitkeeper command line interface: the root command,
// the service wiring shared by all subcommands and the version command.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/toeirei/gitkeeper/buildvars"
	"github.com/toeirei/gitkeeper/internal/adminkey"
	"github.com/toeirei/gitkeeper/internal/config"
	"github.com/toeirei/gitkeeper/internal/credential"
	"github.com/toeirei/gitkeeper/internal/db"
	"github.com/toeirei/gitkeeper/internal/i18n"
	"github.com/toeirei/gitkeeper/internal/keycheck"
	"github.com/toeirei/gitkeeper/internal/logging"
	"github.com/toeirei/gitkeeper/internal/model"
	"github.com/toeirei/gitkeeper/internal/resync"
)

var gitCommit = "dev" // set at build time with the short commit SHA
var buildDate = ""    // set at build time (RFC3339)

// Annotation values for annotationServices.
const (
	annotationServices = "gitkeeper/services"
	servicesNone       = "none"
	servicesConfig     = "config"
)

// environment holds what the subcommands share after PersistentPreRunE.
type environment struct {
	configFile string
	verbose    bool

	cfg        config.Config
	store      *db.Store
	svc        *credential.Service
	notifier   resync.Notifier
	dispatcher *resync.Dispatcher
	// pending is set when a commit enqueued resync events.
	pending bool
}

// Execute runs the CLI entrypoint and reports a failing command on stderr.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), describeError(err))
		return err
	}
	return nil
}

// NewRootCmd builds a fresh command tree. Every call returns independent
// commands and flags, so tests can run several in one process.
func NewRootCmd() *cobra.Command {
	env := &environment{}
	cmd := &cobra.Command{
		Use:   "gitkeeper",
		Short: "gitkeeper manages SSH keys for gitolite.",
		Long: `gitkeeper keeps the SSH user and deploy keys of a gitolite installation.
Every key gets a stable identifier, is checked with ssh-keygen and may only
be active once across all owners. Changes are queued as resync events for
the process that rewrites the gitolite configuration.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return env.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return env.finish(cmd.Context())
		},
	}

	v, c, d := resolveBuildVersion(nil)
	compositeVersion := v
	if c != "" && c != "dev" {
		compositeVersion = compositeVersion + " (" + c + ")"
	}
	if d != "" {
		compositeVersion = compositeVersion + " built: " + d
	}
	cmd.Version = compositeVersion

	cmd.PersistentFlags().StringVar(&env.configFile, "config", "", "config file (default is gitkeeper.yaml in the user, system or current directory)")
	cmd.PersistentFlags().BoolVarP(&env.verbose, "verbose", "v", false, "Enable debug output")
	cmd.PersistentFlags().String("database.type", "", "Database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database.dsn", "", "Database connection string (DSN)")
	cmd.PersistentFlags().String("language", "", `Message language ("en", "de")`)
	cmd.PersistentFlags().String("as", "", "Login of the acting owner")

	cmd.AddCommand(
		newMigrateCmd(env),
		newOwnerCmd(env),
		newKeyCmd(env),
		newDeployCmd(env),
		newResyncCmd(env),
		newAuditCmd(env),
		newMaintenanceCmd(env),
		newConfigCmd(env),
		newVersionCmd(),
	)
	return cmd
}

func servicesLevel(cmd *cobra.Command) string {
	for c := cmd; c != nil; c = c.Parent() {
		if v, ok := c.Annotations[annotationServices]; ok {
			return v
		}
	}
	return ""
}

// setup loads the configuration and, unless the command opts out, opens
// the store and wires the credential service and the resync dispatcher.
func (e *environment) setup(cmd *cobra.Command) error {
	level := servicesLevel(cmd)
	if level == servicesNone {
		return nil
	}

	var path *string
	if cmd.Flags().Changed("config") {
		if _, err := os.Stat(e.configFile); err != nil {
			return fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
		}
		path = &e.configFile
	}
	cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.cfg = cfg

	debugOn := cfg.Debug || e.verbose
	logging.SetDebug(debugOn)
	db.SetDebug(debugOn)
	i18n.Init(cfg.Language)
	if level == servicesConfig {
		return nil
	}

	store, err := db.NewStoreFromDSN(cfg.Database.Type, cfg.Database.Dsn)
	if err != nil {
		return fmt.Errorf("could not initialize database: %w", err)
	}
	checker, err := keycheck.New(cfg.Keycheck.Mode, cfg.Keycheck.Command, cfg.Keycheck.Timeout)
	if err != nil {
		_ = store.Close()
		return err
	}
	notifier, err := resync.NewNotifier(resync.Options{
		Kind:         cfg.Resync.Notifier,
		Command:      cfg.Resync.Command,
		RedisURL:     cfg.Resync.RedisURL,
		RedisChannel: cfg.Resync.RedisChannel,
		Timeout:      cfg.Resync.Timeout,
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	e.store = store
	e.notifier = notifier
	e.dispatcher = resync.NewDispatcher(store.Outbox(), notifier, resync.WithBatchSize(cfg.Resync.BatchSize))
	e.svc = credential.NewService(store, checker, adminkey.File{Path: cfg.Gitolite.AdminKeyPath},
		credential.WithAfterCommit(func() {
			e.pending = true
			e.dispatcher.Kick()
		}),
	)
	return nil
}

// finish delivers events queued by this invocation and releases resources.
// A failed delivery stays in the outbox for the next flush.
func (e *environment) finish(ctx context.Context) error {
	if e.pending && e.dispatcher != nil {
		if ctx == nil {
			ctx = context.Background()
		}
		if _, err := e.dispatcher.Flush(ctx); err != nil {
			logging.Warnf("resync delivery deferred: %v", err)
		}
		e.pending = false
	}
	if c, ok := e.notifier.(io.Closer); ok {
		_ = c.Close()
	}
	if e.store != nil {
		err := e.store.Close()
		e.store = nil
		return err
	}
	return nil
}

// actor resolves the --as flag to an owner.
func (e *environment) actor(cmd *cobra.Command) (*model.Owner, error) {
	login, _ := cmd.Flags().GetString("as")
	if login == "" {
		return nil, fmt.Errorf("--as <login> is required for this command")
	}
	o, err := e.store.OwnerByLogin(cmd.Context(), login)
	if err != nil {
		return nil, fmt.Errorf("acting owner %q: %w", login, err)
	}
	return &o, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version",
		Annotations: map[string]string{annotationServices: servicesNone},
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}

// resolveBuildVersion computes the best-available version, commit and build
// date for the running binary. If info is nil, it reads build info from the
// runtime.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault("dev")
	resolvedCommit := gitCommit
	resolvedDate := buildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if resolvedVersion == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value != "" && resolvedCommit == "dev" {
					resolvedCommit = s.Value
				}
			case "vcs.time":
				if s.Value != "" && resolvedDate == "" {
					resolvedDate = s.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && gitCommit != "dev" && gitCommit != "" {
		resolvedVersion = gitCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}
