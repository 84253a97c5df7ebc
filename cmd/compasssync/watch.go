package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/internal/syncer"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Manage the push channels of the calendars",
	}
	cmd.AddCommand(newWatchStartCommand(opts))
	cmd.AddCommand(newWatchStopCommand(opts))
	cmd.AddCommand(newWatchStopAllCommand(opts))
	cmd.AddCommand(newWatchRenewCommand(opts))
	return cmd
}

func newWatchStartCommand(opts *rootOptions) *cobra.Command {
	var calID string

	cmd := &cobra.Command{
		Use:   "start <user>",
		Short: "Receive notifications for the changes of a calendar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.user(ctx, args[0])
			if err != nil {
				return err
			}
			ch, err := a.watcher().Start(ctx, user.ID, calID)
			if err != nil {
				return reasonErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s with channel %s (resource %s) until %s\n",
				calID, ch.ChannelID, ch.ResourceID, ch.Expiration.Local().Format(time.DateTime))
			return nil
		},
	}
	cmd.Flags().StringVar(&calID, "calendar-id", syncer.DefaultCalendarID, "calendar to be watched")
	return cmd
}

func newWatchStopCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <user> <channel-id> <resource-id>",
		Short: "Stop a push channel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.user(ctx, args[0])
			if err != nil {
				return err
			}
			if err := a.watcher().Stop(ctx, user.ID, args[1], args[2]); err != nil {
				return reasonErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Channel %s stopped\n", args[1])
			return nil
		},
	}
}

func newWatchStopAllCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-all <user>",
		Short: "Stop every push channel of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			user, err := a.user(ctx, args[0])
			if err != nil {
				return err
			}
			n, err := a.watcher().StopAll(ctx, user.ID)
			if err != nil {
				return reasonErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d channel(s) stopped\n", n)
			return nil
		},
	}
}

func newWatchRenewCommand(opts *rootOptions) *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "renew",
		Short: "Replace the channels about to expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("window") {
				window = a.cfg.Watch.RenewWindow
			}
			n, err := a.watcher().RenewExpiring(cmd.Context(), window)
			fmt.Fprintf(cmd.OutOrStdout(), "%d channel(s) renewed\n", n)
			return err
		},
	}
	cmd.Flags().DurationVar(&window, "window", 24*time.Hour, "renew channels expiring within the window")
	return cmd
}
