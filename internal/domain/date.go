package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// DateFormat is the ISO-8601 calendar date layout used on the wire and in storage.
const DateFormat = "2006-01-02"

// Date is a calendar date with day granularity. It marshals as "YYYY-MM-DD".
type Date = civil.Date

// NewDate returns a normalized Date for the given year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return civil.DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date { return civil.DateOf(t) }

// ParseDate parses a strict YYYY-MM-DD date.
func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", s, DateFormat, err)
	}
	return d, nil
}
