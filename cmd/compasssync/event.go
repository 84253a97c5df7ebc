package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guilherme-santos/compasssync/internal"
	"github.com/guilherme-santos/compasssync/internal/recurrence"
	"github.com/guilherme-santos/compasssync/internal/syncer"
)

func newEventCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Create and delete Compass events",
	}
	cmd.AddCommand(newEventAddCommand(opts))
	cmd.AddCommand(newEventDeleteCommand(opts))
	return cmd
}

type eventOptions struct {
	Title       string
	Description string
	Start       string
	End         string
	TimeZone    string
	AllDay      bool
	Someday     bool
	RRule       string
	Priority    string
	CalendarID  string
}

func (o eventOptions) event() (*internal.Event, error) {
	loc := time.UTC
	if o.TimeZone != "" {
		var err error
		if loc, err = time.LoadLocation(o.TimeZone); err != nil {
			return nil, fmt.Errorf("invalid time zone %q", o.TimeZone)
		}
	}
	start, err := parseTime(o.Start, o.AllDay, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid start: %v", err)
	}
	end, err := parseTime(o.End, o.AllDay, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid end: %v", err)
	}

	e := &internal.Event{
		CalendarID:  o.CalendarID,
		Title:       o.Title,
		Description: o.Description,
		StartDate:   start,
		EndDate:     end,
		IsAllDay:    o.AllDay,
		IsSomeday:   o.Someday,
		Priority:    internal.Priority(o.Priority),
	}
	if o.RRule != "" {
		if _, err := recurrence.ParseRule(o.RRule); err != nil {
			return nil, reasonErr(err)
		}
		e.Recurrence = &internal.Recurrence{Rule: []string{o.RRule}}
	}
	return e, nil
}

func newEventAddCommand(opts *rootOptions) *cobra.Command {
	var eopts eventOptions

	cmd := &cobra.Command{
		Use:   "add <user>",
		Short: "Create an event, or a series when --rrule is set",
		Long: `Create an event, or a series when --rrule is set.

Someday events are only stored locally; every other event is created on the
provider as well.

Example:
  compasssync event add jane@example.com --title standup \
    --start 2025-04-02T09:00:00-05:00 --end 2025-04-02T09:15:00-05:00 \
    --timezone America/Chicago --rrule "RRULE:FREQ=DAILY;COUNT=10"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := eopts.event()
			if err != nil {
				return err
			}

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
			e, err = a.syncer(nil).CreateEvent(ctx, user.ID, e)
			if err != nil {
				return reasonErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %s created\n", e.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&eopts.Title, "title", "", "title of the event")
	f.StringVar(&eopts.Description, "description", "", "description of the event")
	f.StringVar(&eopts.Start, "start", "", "start, RFC 3339 or YYYY-MM-DD for all-day events")
	f.StringVar(&eopts.End, "end", "", "end, RFC 3339 or YYYY-MM-DD for all-day events")
	f.StringVar(&eopts.TimeZone, "timezone", "", "IANA time zone of the event")
	f.BoolVar(&eopts.AllDay, "all-day", false, "all-day event")
	f.BoolVar(&eopts.Someday, "someday", false, "someday event, kept off the provider")
	f.StringVar(&eopts.RRule, "rrule", "", `recurrence rule, e.g. "RRULE:FREQ=WEEKLY;COUNT=5"`)
	f.StringVar(&eopts.Priority, "priority", internal.PriorityUnassigned.String(), "priority: unassigned, work, relations or self")
	f.StringVar(&eopts.CalendarID, "calendar-id", syncer.DefaultCalendarID, "calendar of the event")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newEventDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <user> <event-id>",
		Short: "Delete an event, or a whole series when given its base",
		Args:  cobra.ExactArgs(2),
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
			if err := a.syncer(nil).DeleteEvent(ctx, user.ID, args[1]); err != nil {
				return reasonErr(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %s deleted\n", args[1])
			return nil
		},
	}
}
