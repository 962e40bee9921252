// Package date provides a calendar Date with day granularity.
//
// Dates are plain values: comparable with ==, usable as map keys, and free of
// any time zone. Month arithmetic clamps to the last day of the target month
// so that schedules anchored on the 31st land on the 30th, 29th or 28th.
package date

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const readDateFormat = "2006-1-2" // Permissive read date format (allows single-digit month/day).

// DateFormat is the format used to represent dates as strings in ISO-8601 format.
const DateFormat = "2006-01-02" // write date format

const Day = 24 * time.Hour

// Date represents a date with day-level granularity.
type Date struct {
	y int        // year
	m time.Month // month
	d int        // day
}

// New returns a normalized Date for the given year, month, and day.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// Of returns the calendar date of t in its own location.
func Of(t time.Time) Date { return New(t.Date()) }

// Year returns current year.
func (d Date) Year() int { return d.y }

// Month returns the month of the date.
func (d Date) Month() time.Month { return d.m }

// Day returns current day of the month.
func (d Date) Day() int { return d.d }

// Weekday returns the day of the week for the date.
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// IsZero returns true if the date is the zero value.
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

// time returns a time.Time that is a canonical representation of that day (at midnight UTC).
func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Time returns midnight UTC of that day.
func (d Date) Time() time.Time { return d.time() }

// Before reports whether the day d is before x.
func (d Date) Before(x Date) bool { return d.Compare(x) < 0 }

// After reports whether the day d is after x.
func (d Date) After(x Date) bool { return d.Compare(x) > 0 }

// Compare returns -1, 0 or +1 when d is before, equal to, or after x.
func (d Date) Compare(x Date) int {
	switch {
	case d.y != x.y:
		return cmp(d.y, x.y)
	case d.m != x.m:
		return cmp(int(d.m), int(x.m))
	default:
		return cmp(d.d, x.d)
	}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Today returns the current date.
func Today() Date { return Of(time.Now()) }

// Add returns a new Date with the given number of days added.
func (d Date) Add(i int) Date { return New(d.y, d.m, d.d+i) }

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int { return New(year, month+1, 0).d }

// Clamp returns the date for year, month and day where day is capped to the
// last day of that month instead of overflowing into the next one.
func Clamp(year int, month time.Month, day int) Date {
	first := New(year, month, 1) // normalizes month overflow
	if last := DaysIn(first.y, first.m); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return Date{first.y, first.m, day}
}

// AddMonths returns the date i calendar months later on the given anchor day,
// clamped to the end of the target month. An anchor of 0 uses d's own day.
func (d Date) AddMonths(i int, anchor int) Date {
	if anchor <= 0 {
		anchor = d.d
	}
	return Clamp(d.y, d.m+time.Month(i), anchor)
}

// AddYears returns the date i calendar years later, see AddMonths for anchor.
func (d Date) AddYears(i int, anchor int) Date { return d.AddMonths(12*i, anchor) }

// FirstOfMonth returns the first day of d's month.
func (d Date) FirstOfMonth() Date { return Date{d.y, d.m, 1} }

// MonthsUntil returns the number of calendar months from d to x, ignoring days.
// It is negative when x is in an earlier month.
func (d Date) MonthsUntil(x Date) int {
	return (x.y-d.y)*12 + int(x.m-d.m)
}

// String format the date in its standard format.
func (d Date) String() string { return d.time().Format(DateFormat) }

// Format returns a textual representation of the date value formatted according to the layout defined by the argument.
//
//	See the documentation for the [time.Format].
func (d Date) Format(layout string) string { return d.time().Format(layout) }

// Parse parses a Date from a string. It is lenient and accepts formats like "2025-7-1".
func Parse(str string) (Date, error) {
	on, err := time.Parse(readDateFormat, str)
	// We use a slightly more permisive format for read, to support 2025-7-1 instead of 2025-07-01
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", str, readDateFormat, err)
	}
	return New(on.Date()), nil
}

// MustParse is like Parse but panics on error.
func MustParse(str string) Date {
	d, err := Parse(str)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// UnmarshalJSON implements the json specific way to unmarshall a date from a json string.
func (j *Date) UnmarshalJSON(bytes []byte) error {
	var str string
	if err := json.Unmarshal(bytes, &str); err != nil {
		return err
	}
	if str == "" {
		*j = Date{}
		return nil
	}
	d, err := Parse(str)
	if err != nil {
		return err
	}
	*j = d
	return nil
}

func (j Date) MarshalJSON() ([]byte, error) {
	if j.IsZero() {
		return json.Marshal("")
	}
	str := j.String()
	return json.Marshal(&str)
}

// Value stores the date as an ISO-8601 string column.
func (j Date) Value() (driver.Value, error) {
	if j.IsZero() {
		return nil, nil
	}
	return j.String(), nil
}

// Scan reads a date column written by Value. Drivers that already convert
// DATE columns into time.Time are accepted too.
func (j *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = Date{}
		return nil
	case time.Time:
		*j = Of(v.UTC())
		return nil
	case []byte:
		return j.Scan(string(v))
	case string:
		if v == "" {
			*j = Date{}
			return nil
		}
		if len(v) > len(DateFormat) {
			v = v[:len(DateFormat)]
		}
		d, err := Parse(v)
		if err != nil {
			return err
		}
		*j = d
		return nil
	default:
		return fmt.Errorf("cannot scan %T into a date", src)
	}
}

// check that a Date pointer is a valid json marshall/unmarshaller type.
var _ json.Marshaler = (*Date)(nil)
var _ json.Unmarshaler = (*Date)(nil)
var _ driver.Valuer = Date{}
