package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/guilherme-santos/compasssync/internal"
)

const (
	rulePrefix  = "RRULE:"
	UntilFormat = "20060102T150405Z"
)

// Rule is an RRULE kept as ordered parts so it can be rewritten without
// reordering what the provider sent.
type Rule struct {
	parts []rulePart
}

type rulePart struct {
	key   string
	value string
}

// IsRRule reports whether line is an RRULE line, as opposed to EXDATE or RDATE.
func IsRRule(line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(strings.ToUpper(line), rulePrefix) {
		return true
	}
	return !strings.Contains(line, ":") && strings.Contains(strings.ToUpper(line), "FREQ=")
}

// RRules keeps the RRULE lines of a provider recurrence.
func RRules(lines []string) []string {
	var out []string
	for _, l := range lines {
		if IsRRule(l) {
			out = append(out, strings.TrimSpace(l))
		}
	}
	return out
}

func ParseRule(s string) (*Rule, error) {
	body := strings.TrimSpace(s)
	if len(body) >= len(rulePrefix) && strings.EqualFold(body[:len(rulePrefix)], rulePrefix) {
		body = body[len(rulePrefix):]
	}
	if body == "" {
		return nil, internal.E(internal.ErrInvalidRecurrence, "parse rule", "empty rule", nil)
	}
	r := &Rule{}
	for _, attr := range strings.Split(body, ";") {
		if attr == "" {
			continue
		}
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			return nil, internal.E(internal.ErrInvalidRecurrence, "parse rule", fmt.Sprintf("bad attribute %q", attr), nil)
		}
		r.parts = append(r.parts, rulePart{key: strings.ToUpper(key), value: value})
	}
	if r.Get("FREQ") == "" {
		return nil, internal.E(internal.ErrInvalidRecurrence, "parse rule", fmt.Sprintf("missing FREQ in %q", s), nil)
	}
	if _, err := rrule.StrToROption(r.body()); err != nil {
		return nil, internal.E(internal.ErrInvalidRecurrence, "parse rule", s, err)
	}
	return r, nil
}

func (r *Rule) Get(key string) string {
	for _, p := range r.parts {
		if p.key == key {
			return p.value
		}
	}
	return ""
}

func (r *Rule) Set(key, value string) {
	for i, p := range r.parts {
		if p.key == key {
			r.parts[i].value = value
			return
		}
	}
	r.parts = append(r.parts, rulePart{key: key, value: value})
}

func (r *Rule) Del(key string) {
	for i, p := range r.parts {
		if p.key == key {
			r.parts = append(r.parts[:i], r.parts[i+1:]...)
			return
		}
	}
}

func (r *Rule) body() string {
	attrs := make([]string, len(r.parts))
	for i, p := range r.parts {
		attrs[i] = p.key + "=" + p.value
	}
	return strings.Join(attrs, ";")
}

func (r *Rule) String() string {
	return rulePrefix + r.body()
}

func (r *Rule) Freq() string {
	return strings.ToUpper(r.Get("FREQ"))
}

func (r *Rule) Count() int {
	n, _ := strconv.Atoi(r.Get("COUNT"))
	return n
}

func (r *Rule) Until() (time.Time, bool) {
	v := r.Get("UNTIL")
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{UntilFormat, "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r *Rule) SetUntil(t time.Time) {
	r.Del("COUNT")
	r.Set("UNTIL", t.UTC().Format(UntilFormat))
}

// SameCadence reports whether both rules repeat the same way, ignoring how
// they end.
func (r *Rule) SameCadence(o *Rule) bool {
	strip := func(x *Rule) string {
		c := &Rule{parts: append([]rulePart(nil), x.parts...)}
		c.Del("UNTIL")
		c.Del("COUNT")
		return c.body()
	}
	return strip(r) == strip(o)
}

// EndsBefore reports whether r stops earlier than o.
func (r *Rule) EndsBefore(o *Rule) bool {
	until, ok := r.Until()
	if !ok {
		return false
	}
	other, ok := o.Until()
	return !ok || until.Before(other)
}

// FirstRule returns the first RRULE of a recurrence.
func FirstRule(rules []string) (*Rule, error) {
	for _, l := range rules {
		if IsRRule(l) {
			return ParseRule(l)
		}
	}
	return nil, internal.E(internal.ErrInvalidRecurrence, "first rule", "no RRULE in recurrence", nil)
}

func ruleSet(rules []string, first *Rule) []string {
	out := make([]string, 0, len(rules))
	replaced := false
	for _, l := range rules {
		if !replaced && IsRRule(l) {
			out = append(out, first.String())
			replaced = true
			continue
		}
		out = append(out, l)
	}
	return out
}

func newRRule(rule *Rule, dtstart time.Time) (*rrule.RRule, error) {
	opt, err := rrule.StrToROptionInLocation(rule.body(), dtstart.Location())
	if err != nil {
		return nil, internal.E(internal.ErrInvalidRecurrence, "rrule", rule.String(), err)
	}
	opt.Dtstart = dtstart
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, internal.E(internal.ErrInvalidRecurrence, "rrule", rule.String(), err)
	}
	return r, nil
}

// UntilBefore computes the UNTIL that ends a series right before splitStart.
// It is the last second of the day before the split, in the series timezone,
// unless an earlier occurrence falls on that same day, in which case it is the
// second before the split.
func UntilBefore(rules []string, dtstart, splitStart time.Time) (time.Time, error) {
	first, err := FirstRule(rules)
	if err != nil {
		return time.Time{}, err
	}
	split := splitStart.In(dtstart.Location())
	until := time.Date(split.Year(), split.Month(), split.Day(), 0, 0, 0, 0, split.Location()).Add(-time.Second)

	r, err := newRRule(first, dtstart)
	if err != nil {
		return time.Time{}, err
	}
	prev := r.Before(split, false)
	if !prev.IsZero() && !until.After(prev) {
		until = split.Add(-time.Second)
	}
	return until.UTC(), nil
}

// Truncate rewrites the first RRULE of rules to end right before splitStart.
func Truncate(rules []string, dtstart, splitStart time.Time) ([]string, error) {
	first, err := FirstRule(rules)
	if err != nil {
		return nil, err
	}
	until, err := UntilBefore(rules, dtstart, splitStart)
	if err != nil {
		return nil, err
	}
	first.SetUntil(until)
	return ruleSet(rules, first), nil
}

// Remainder returns the rules of a series continuing from splitStart with the
// original cadence. A COUNT is reduced by the occurrences before the split.
func Remainder(rules []string, dtstart, splitStart time.Time) ([]string, error) {
	first, err := FirstRule(rules)
	if err != nil {
		return nil, err
	}
	if count := first.Count(); count > 0 {
		r, err := newRRule(first, dtstart)
		if err != nil {
			return nil, err
		}
		before := len(r.Between(dtstart.Add(-time.Second), splitStart, false))
		remaining := count - before
		if remaining < 1 {
			remaining = 1
		}
		first.Set("COUNT", strconv.Itoa(remaining))
	}
	return ruleSet(rules, first), nil
}
