// Package datekey derives the local calendar-day keys ("2006-01-02") that
// exercise logs are grouped and windowed by.
package datekey

import (
	"fmt"
	"time"
)

const Layout = "2006-01-02"

// Of returns the date key of t in t's own location.
func Of(t time.Time) string {
	return t.Format(Layout)
}

// In returns the date key of t as seen in loc.
func In(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(Layout)
}

func Parse(key string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key [%s]: %w", key, err)
	}
	return t, nil
}

func Valid(key string) bool {
	_, err := Parse(key)
	return err == nil
}

// AddDays shifts a date key by n calendar days (n may be negative).
func AddDays(key string, n int) (string, error) {
	t, err := Parse(key)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(Layout), nil
}

// Window returns the inclusive [from, to] key range covering the last n days
// ending with today.
func Window(today string, n int) (from, to string, err error) {
	if n < 1 {
		return "", "", fmt.Errorf("window must cover at least one day, got %d", n)
	}
	from, err = AddDays(today, -(n - 1))
	if err != nil {
		return "", "", err
	}
	return from, today, nil
}

// Within reports whether key lies in [from, to]. Keys compare lexicographically.
func Within(key, from, to string) bool {
	return key >= from && key <= to
}
