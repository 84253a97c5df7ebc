package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/guilherme-santos/compasssync/internal"
)

// reasonErr keeps only the human readable part of err.
func reasonErr(err error) error {
	return errors.New(internal.Reason(err))
}

func printCursor(w io.Writer, cur *internal.SyncCursor) {
	state := "importing"
	if cur.Completed() {
		state = "imported"
	}
	if !cur.LastSyncedAt.IsZero() {
		state += ", synced at " + cur.LastSyncedAt.Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "  %s: %s", cur.CalendarID, state)
	if cur.ChannelID != "" {
		fmt.Fprintf(w, ", watched by %s/%s until %s", cur.ChannelID, cur.ResourceID, cur.Expiration.Local().Format(time.DateTime))
	}
	fmt.Fprintln(w)
}

// parseTime reads an RFC 3339 instant, or a day for all-day events, in loc.
func parseTime(v string, allDay bool, loc *time.Location) (time.Time, error) {
	if allDay {
		d, err := internal.ParseDate(v, loc)
		if err != nil {
			return time.Time{}, err
		}
		return d.Time, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}
