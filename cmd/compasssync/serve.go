package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/internal/httpapi"
	"github.com/guilherme-santos/compasssync/internal/notify"
	"github.com/guilherme-santos/compasssync/internal/watch"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook, import and notification endpoints",
		Long: `Serve the webhook, import and notification endpoints and renew the
push channels on the configured schedule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			hub := notify.NewHub(a.logger)
			sy := a.syncer(hub)
			srv := &http.Server{
				Addr: a.cfg.Listen,
				Handler: httpapi.NewServer(a.logger, sy, hub, httpapi.ServerConfig{
					WebhookToken: a.cfg.WebhookToken,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if a.cfg.WebhookURL != "" {
				renewer, err := watch.NewRenewer(a.logger, a.watcher(), a.cfg.Watch.RenewCron, a.cfg.Watch.RenewWindow)
				if err != nil {
					return err
				}
				renewer.Start()
				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
					defer cancel()
					renewer.Stop(stopCtx)
				}()
			} else {
				a.logger.Warn("webhook_url is not set, push channels are not renewed")
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("HTTP server listening", slog.String("addr", srv.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			a.logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			// imports started by the server must record their status before
			// the store is closed
			if err := sy.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("Imports still running at shutdown", slog.Any("error", err))
			}
			return nil
		},
	}
}
