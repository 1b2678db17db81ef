package domain

import (
	"database/sql/driver"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar date with no time-of-day component. All due dates,
// paid dates and plan start dates are Dates; JSON and SQL round-trip through
// the 2006-01-02 layout.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a 2006-01-02 string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Today returns the current calendar date in UTC.
func Today() Date {
	return DateOf(time.Now().UTC())
}

// AddMonths advances the date by n calendar months, preserving the
// day-of-month. When the target month is shorter, the day clamps to the
// month's last day (Jan-31 + 1 month = Feb-29 in a leap year, Feb-28
// otherwise).
func (d Date) AddMonths(n int) Date {
	y, m, day := d.t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := daysInMonth(first.Year(), first.Month())
	if day > last {
		day = last
	}
	return NewDate(first.Year(), first.Month(), day)
}

// AddYears advances the date by n calendar years; Feb-29 clamps to Feb-28
// on non-leap target years.
func (d Date) AddYears(n int) Date {
	y, m, day := d.t.Date()
	last := daysInMonth(y+n, m)
	if day > last {
		day = last
	}
	return NewDate(y+n, m, day)
}

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }
func (d Date) IsZero() bool       { return d.t.IsZero() }

// Time returns the date as a UTC midnight time.Time.
func (d Date) Time() time.Time {
	return d.t
}

func (d Date) String() string {
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid date %s", s)
	}
	parsed, err := ParseDate(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer so Date maps to a DATE column.
func (d Date) Value() (driver.Value, error) {
	return d.t, nil
}

// Scan implements sql.Scanner.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		parsed, err := ParseDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
