package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/calendar"
	"github.com/guilherme-santos/compasssync/calendar/google"
	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/config"
	"github.com/guilherme-santos/compasssync/internal/sqlstore"
	"github.com/guilherme-santos/compasssync/internal/syncer"
	"github.com/guilherme-santos/compasssync/internal/watch"
)

type rootOptions struct {
	ConfigPath string
	Verbose    bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "compasssync",
		Short:         "Keep Compass events in sync with Google Calendar",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("verbose") {
				cfg.Verbose = opts.Verbose
			}
			opts.cfg = cfg
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "compasssync.yaml", "path to the configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newConfigureCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newRestartCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))
	cmd.AddCommand(newEventCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}

// app holds what every command needs, built from the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *sqlstore.Storage
	google *google.Client
	mux    *calendar.Mux
}

func (o *rootOptions) open() (*app, error) {
	cfg := o.cfg
	logger := internal.NewLogger(os.Stderr, cfg.Verbose)

	googleCal, err := google.NewClientFromFile(cfg.Google.CredentialsFile, logger)
	if err != nil {
		return nil, err
	}
	googleCal.RedirectAddr = cfg.Google.RedirectAddr

	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	mux := calendar.NewMux()
	mux.Register(google.Platform, googleCal)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		google: googleCal,
		mux:    mux,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func (a *app) syncer(notifier internal.Notifier) *syncer.Syncer {
	s := syncer.New(a.logger, a.mux, a.store, notifier)
	s.YearsBack = a.cfg.Import.YearsBack
	s.MaxInstances = a.cfg.Import.MaxInstances
	s.StaleAfter = a.cfg.Import.StaleAfter
	return s
}

func (a *app) watcher() *watch.Manager {
	m := watch.New(a.logger, a.mux, a.store)
	m.Address = a.cfg.WebhookURL
	m.Token = a.cfg.WebhookToken
	m.TTL = a.cfg.Watch.TTL
	return m
}

// user resolves a user by email or id.
func (a *app) user(ctx context.Context, ref string) (*internal.User, error) {
	user, err := a.store.UserByEmail(ctx, ref)
	if errors.Is(err, internal.ErrNotFound) {
		return a.store.User(ctx, ref)
	}
	return user, err
}
