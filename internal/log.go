package internal

import (
	"io"
	"log/slog"
	"os"
)

func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// DiscardLogger drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func UserAttr(userID string) slog.Attr {
	return slog.String("user", userID)
}

func CalendarAttr(calendarID string) slog.Attr {
	return slog.String("calendar", calendarID)
}
