// Package calendar holds the date-key and recurrence arithmetic used by the planner.
// All functions are pure; date keys are local calendar dates in YYYY-MM-DD form.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the layout of a date key.
const DateLayout = "2006-01-02"

// TimeLayout is the layout of a task's optional fixed time.
const TimeLayout = "15:04"

var (
	ErrInvalidDate       = errors.New("invalid date key")
	ErrInvalidTime       = errors.New("invalid time")
	ErrInvalidRecurrence = errors.New("invalid recurrence")
)

// ParseDateKey parses a YYYY-MM-DD key into midnight UTC of that date.
// Keys carry no zone; UTC keeps day arithmetic free of DST shifts.
func ParseDateKey(key string) (time.Time, error) {
	t, err := time.Parse(DateLayout, key)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, key)
	}
	return t, nil
}

// FormatDateKey renders the calendar date of t as a key.
func FormatDateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDateKey reports whether key is a well-formed date key.
func ValidDateKey(key string) bool {
	_, err := ParseDateKey(key)
	return err == nil
}

// Today returns today's key in loc.
func Today(loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return FormatDateKey(time.Now().In(loc))
}

// AddDays shifts key by n days.
func AddDays(key string, n int) (string, error) {
	t, err := ParseDateKey(key)
	if err != nil {
		return "", err
	}
	return FormatDateKey(t.AddDate(0, 0, n)), nil
}

// Weekday returns the day of week of key.
func Weekday(key string) (time.Weekday, error) {
	t, err := ParseDateKey(key)
	if err != nil {
		return 0, err
	}
	return t.Weekday(), nil
}

// IsWeekend reports whether key falls on Saturday or Sunday.
func IsWeekend(key string) bool {
	wd, err := Weekday(key)
	if err != nil {
		return false
	}
	return wd == time.Saturday || wd == time.Sunday
}

// WeekStart returns the Monday on or before key.
func WeekStart(key string) (string, error) {
	t, err := ParseDateKey(key)
	if err != nil {
		return "", err
	}
	offset := (int(t.Weekday()) + 6) % 7
	return FormatDateKey(t.AddDate(0, 0, -offset)), nil
}

// ValidTime reports whether s is an HH:MM time of day.
func ValidTime(s string) bool {
	if len(s) != len(TimeLayout) {
		return false
	}
	_, err := time.Parse(TimeLayout, s)
	return err == nil
}

// Kind enumerates the recurrence patterns.
type Kind int

const (
	None Kind = iota
	Daily
	Weekdays
	Weekly
	Monthly
	DaySet
)

const daySetPrefix = "days:"

// Rule is a parsed recurrence pattern.
type Rule struct {
	Kind Kind
	// Set holds the weekdays of a DaySet rule.
	Set []time.Weekday
}

// ParseRecurrence parses the stored encoding: "", daily, weekdays, weekly,
// monthly or days:N,N with 0=Sunday..6=Saturday.
func ParseRecurrence(s string) (Rule, error) {
	switch s {
	case "":
		return Rule{Kind: None}, nil
	case "daily":
		return Rule{Kind: Daily}, nil
	case "weekdays":
		return Rule{Kind: Weekdays}, nil
	case "weekly":
		return Rule{Kind: Weekly}, nil
	case "monthly":
		return Rule{Kind: Monthly}, nil
	}
	if !strings.HasPrefix(s, daySetPrefix) {
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
	}

	rule := Rule{Kind: DaySet}
	body := strings.TrimPrefix(s, daySetPrefix)
	if body == "" {
		return rule, nil
	}
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(body, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return Rule{}, fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
		}
		wd := time.Weekday(n)
		if !seen[wd] {
			seen[wd] = true
			rule.Set = append(rule.Set, wd)
		}
	}
	sort.Slice(rule.Set, func(i, j int) bool { return rule.Set[i] < rule.Set[j] })
	return rule, nil
}

// Days returns the weekdays on which the rule repeats. Weekly rules need
// the anchor key to know their weekday; monthly rules have no weekday set.
func (r Rule) Days(anchor string) []time.Weekday {
	switch r.Kind {
	case Daily:
		return []time.Weekday{0, 1, 2, 3, 4, 5, 6}
	case Weekdays:
		return []time.Weekday{1, 2, 3, 4, 5}
	case Weekly:
		wd, err := Weekday(anchor)
		if err != nil {
			return nil
		}
		return []time.Weekday{wd}
	case DaySet:
		return append([]time.Weekday(nil), r.Set...)
	}
	return nil
}

// DaysToRecurrence encodes a weekday selection, collapsing the full week to
// daily and Monday–Friday to weekdays.
func DaysToRecurrence(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	seen := make(map[time.Weekday]bool)
	var uniq []int
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday || seen[d] {
			continue
		}
		seen[d] = true
		uniq = append(uniq, int(d))
	}
	sort.Ints(uniq)
	if len(uniq) == 7 {
		return "daily"
	}
	if len(uniq) == 5 && uniq[0] == 1 && uniq[4] == 5 {
		return "weekdays"
	}
	parts := make([]string, len(uniq))
	for i, d := range uniq {
		parts[i] = strconv.Itoa(d)
	}
	return daySetPrefix + strings.Join(parts, ",")
}

// NextOccurrence returns the key of the occurrence following key under the
// given recurrence. ok is false when the pattern never repeats (none, or an
// empty weekday set).
//
// Monthly rolls the month forward with time.AddDate, so a 31st whose next
// month is shorter lands in the month after (Jan 31 -> Mar 2 or 3).
func NextOccurrence(key, recurrence string) (next string, ok bool, err error) {
	rule, err := ParseRecurrence(recurrence)
	if err != nil {
		return "", false, err
	}
	t, err := ParseDateKey(key)
	if err != nil {
		return "", false, err
	}

	switch rule.Kind {
	case None:
		return "", false, nil
	case Daily:
		t = t.AddDate(0, 0, 1)
	case Weekdays:
		t = t.AddDate(0, 0, 1)
		for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
			t = t.AddDate(0, 0, 1)
		}
	case Weekly:
		t = t.AddDate(0, 0, 7)
	case Monthly:
		t = t.AddDate(0, 1, 0)
	case DaySet:
		if len(rule.Set) == 0 {
			return "", false, nil
		}
		want := make(map[time.Weekday]bool, len(rule.Set))
		for _, d := range rule.Set {
			want[d] = true
		}
		for i := 1; i <= 7; i++ {
			c := t.AddDate(0, 0, i)
			if want[c.Weekday()] {
				return FormatDateKey(c), true, nil
			}
		}
		return "", false, nil
	}
	return FormatDateKey(t), true, nil
}
