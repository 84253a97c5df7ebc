package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/internal"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var from internal.Date

	cmd := &cobra.Command{
		Use:   "import <user>",
		Short: "Import every calendar of a user",
		Long: `Import every calendar of a user, identified by email or id.

An interrupted import resumes from its last page once restarted.

Example:
  compasssync import jane@example.com
  compasssync import jane@example.com --from 2024-01-01`,
		Args: cobra.ExactArgs(1),
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
			res, err := a.syncer(nil).Start(ctx, user.ID, from)
			if err != nil {
				return reasonErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Import completed: %s\n", res)
			return nil
		},
	}
	cmd.Flags().Var(&from, "from", "import events since the date (e.g. 2024-01-01)")
	return cmd
}

func newRestartCommand(opts *rootOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "restart <user>",
		Short: "Allow a new import of a user",
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
			if err := a.syncer(nil).Restart(ctx, user.ID, full); err != nil {
				return reasonErr(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Import restarted, run import to continue")
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "import every calendar again from the start of the window")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <user>",
		Short: "Show the import status and sync cursors of a user",
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
			curs, err := a.store.SyncCursors(ctx, user.ID, internal.ResourceEvents)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s (%s): %s", user, user.ID, user.ImportStatus)
			if user.ImportReason != "" {
				fmt.Fprintf(w, " - %s", user.ImportReason)
			}
			fmt.Fprintln(w)
			for _, cur := range curs {
				printCursor(w, cur)
			}
			return nil
		},
	}
}
