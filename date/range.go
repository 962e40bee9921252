package date

import "fmt"

// Range represents a range of dates, boundaries included.
type Range struct{ From, To Date }

// NewRange return a well known period
func NewRange(d Date, period Period) Range {
	return Range{From: d.StartOf(period), To: d.EndOf(period)}
}

// Between returns the range [from, to].
func Between(from, to Date) Range { return Range{From: from, To: to} }

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool { return !date.Before(r.From) && !date.After(r.To) }

// IsZero reports whether the range has neither boundary set.
func (r Range) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

// Validate reports an inverted range.
func (r Range) Validate() error {
	if r.To.Before(r.From) {
		return fmt.Errorf("invalid range %s..%s: end before start", r.From, r.To)
	}
	return nil
}

func (r Range) String() string { return fmt.Sprintf("%s..%s", r.From, r.To) }
