package sqlitestore

import (
	"fmt"
	"time"
)

// Fixed-width UTC timestamps sort the same lexically and chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTime(src any) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return time.Parse(timeFormat, v)
	case []byte:
		return time.Parse(timeFormat, string(v))
	}
	return time.Time{}, fmt.Errorf("cannot scan %T into a timestamp", src)
}

// timeColumn scans a TEXT timestamp column into a time.Time.
type timeColumn struct {
	dest *time.Time
}

func (c timeColumn) Scan(src any) error {
	t, err := parseTime(src)
	if err != nil {
		return err
	}
	*c.dest = t
	return nil
}

// nullTimeColumn scans a nullable TEXT timestamp column into a *time.Time.
type nullTimeColumn struct {
	dest **time.Time
}

func (c nullTimeColumn) Scan(src any) error {
	if src == nil {
		*c.dest = nil
		return nil
	}
	t, err := parseTime(src)
	if err != nil {
		return err
	}
	*c.dest = &t
	return nil
}
