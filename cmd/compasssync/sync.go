package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/internal"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	var calIDs []string

	cmd := &cobra.Command{
		Use:   "sync <user>",
		Short: "Fetch the changes of imported calendars",
		Long: `Fetch the changes of imported calendars since their last sync.

Every imported calendar is synced unless --calendar-id is given.`,
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
			if len(calIDs) == 0 {
				curs, err := a.store.SyncCursors(ctx, user.ID, internal.ResourceEvents)
				if err != nil {
					return err
				}
				for _, cur := range curs {
					if cur.Completed() {
						calIDs = append(calIDs, cur.CalendarID)
					}
				}
			}
			if len(calIDs) == 0 {
				return fmt.Errorf("%s has no imported calendar, run import first", user)
			}

			s := a.syncer(nil)
			w := cmd.OutOrStdout()
			for _, calID := range calIDs {
				res, err := s.SyncCalendar(ctx, user.ID, calID)
				if err != nil {
					return fmt.Errorf("%s: %w", calID, reasonErr(err))
				}
				fmt.Fprintf(w, "%s: %s\n", calID, res)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&calIDs, "calendar-id", nil, "calendar to be synced, can be repeated")
	return cmd
}
