package domain

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// BusinessDate maps an instant to its business day in loc, returned as UTC midnight
// so it compares and stores as a plain calendar date.
func BusinessDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	parsed, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

func FormatDate(date time.Time) string {
	return date.Format(DateLayout)
}

func PreviousDay(date time.Time) time.Time {
	return date.AddDate(0, 0, -1)
}
