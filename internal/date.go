package internal

import (
	"fmt"
	"time"
)

// DateFormat is how days are written in flags, query strings and all-day
// event options.
const DateFormat = time.DateOnly

// Date is midnight of a calendar day. An import starting from a Date covers
// the events ending on or after that midnight. The zero Date means "the
// default window".
//
// *Date implements pflag.Value.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return Date{time.Date(year, month, day, 0, 0, 0, 0, loc)}
}

// DayOf returns the day t falls on in its own location.
func DayOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day(), t.Location())
}

// ParseDate reads a YYYY-MM-DD day as midnight in loc.
func ParseDate(value string, loc *time.Location) (Date, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateFormat, value, loc)
	if err != nil {
		return Date{}, E(ErrValidation, "parse date", fmt.Sprintf("%q is not a YYYY-MM-DD date", value), err)
	}
	return Date{t}, nil
}

func (d *Date) Set(v string) error {
	parsed, err := ParseDate(v, time.UTC)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Type() string {
	return "date"
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateFormat)
}

// ImportWindowStart is the default lower bound of an import: midnight of the
// same day yearsBack years before now. Anything below one year means one.
func ImportWindowStart(now time.Time, yearsBack int) time.Time {
	if yearsBack <= 0 {
		yearsBack = 1
	}
	day := DayOf(now)
	return NewDate(day.Year()-yearsBack, day.Month(), day.Day(), day.Location()).Time
}
