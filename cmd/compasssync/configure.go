package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/calendar/google"
	"github.com/guilherme-santos/compasssync/internal"
)

func newConfigureCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Give access to a Google account",
		Long: `Run the OAuth consent flow and save the account as a user.

Running it again for the same account refreshes its token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			w := cmd.OutOrStdout()
			a.google.Out = w

			authToken, err := a.google.Login(ctx)
			if err != nil {
				return fmt.Errorf("google: logging in: %v", err)
			}
			user := &internal.User{
				Platform: google.Platform,
				Auth:     string(authToken),
			}
			user.Email, err = a.google.Email(ctx, user)
			if err != nil {
				return fmt.Errorf("google: getting email: %v", err)
			}

			fmt.Fprintf(w, "Saving account %q for %q provider...\n", user.Email, user.Platform)
			if err := a.store.AddUser(ctx, user); err != nil {
				return fmt.Errorf("saving account: %v", err)
			}
			fmt.Fprintf(w, "User %s is ready to be imported\n", user.ID)
			return nil
		},
	}
}
