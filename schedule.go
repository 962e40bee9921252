package wealth

import (
	"fmt"

	"github.com/etnz/wealth/date"
	"github.com/shopspring/decimal"
)

// Frequency is the recurrence of a schedule entry.
type Frequency string

const (
	OneTime Frequency = "OneTime"
	Daily   Frequency = "Daily"
	Weekly  Frequency = "Weekly"
	Monthly Frequency = "Monthly"
	Yearly  Frequency = "Yearly"
)

// Frequencies lists every frequency.
var Frequencies = []Frequency{OneTime, Daily, Weekly, Monthly, Yearly}

// ParseFrequency parses a frequency, ignoring case, spaces, dashes and underscores.
func ParseFrequency(s string) (Frequency, error) {
	key := normalizeKey(s)
	for _, f := range Frequencies {
		if normalizeKey(string(f)) == key {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown frequency %q", s)
}

// Next returns the occurrence following d. Monthly and Yearly steps target
// the anchor day of month, clamped to the end of shorter months.
// OneTime has no next occurrence and returns the zero Date.
func (f Frequency) Next(d date.Date, anchor int) date.Date {
	switch f {
	case Daily:
		return d.Add(1)
	case Weekly:
		return d.Add(7)
	case Monthly:
		return d.AddMonths(1, anchor)
	case Yearly:
		return d.AddYears(1, anchor)
	default:
		return date.Date{}
	}
}

// ScheduleEntry is a future or recurring transaction.
type ScheduleEntry struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	Type          TxType          `json:"type,omitempty"`
	FromAccountID string          `json:"fromAccountId,omitempty"`
	ToAccountID   string          `json:"toAccountId,omitempty"`
	Frequency     Frequency       `json:"frequency"`
	NextRunDate   date.Date       `json:"nextRunDate"`
	// AnchorDay is the day of month monthly and yearly entries return to
	// after being clamped at a month end.
	AnchorDay int    `json:"anchorDay"`
	IsManual  bool   `json:"isManual"`
	Category  string `json:"category,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// ResolvedType returns the stored type, or infers it from the accounts of
// entries stored without one: both accounts make a Transfer, a to-account
// alone an Income and a from-account alone an Expense.
func (e ScheduleEntry) ResolvedType() TxType {
	if e.Type != "" {
		return e.Type
	}
	switch {
	case e.FromAccountID != "" && e.ToAccountID != "":
		return Transfer
	case e.ToAccountID != "":
		return Income
	case e.FromAccountID != "":
		return Expense
	}
	return ""
}

// Intent returns the transaction intent of the occurrence due on NextRunDate.
func (e ScheduleEntry) Intent() Intent {
	return Intent{
		Date:          e.NextRunDate,
		Amount:        e.Amount,
		Description:   e.Description,
		Type:          e.ResolvedType(),
		FromAccountID: e.FromAccountID,
		ToAccountID:   e.ToAccountID,
		Category:      e.Category,
		Notes:         e.Notes,
	}
}

// Advance returns the entry moved to its next occurrence and false when the
// entry is exhausted and must be deleted.
func (e ScheduleEntry) Advance() (ScheduleEntry, bool) {
	next := e.Frequency.Next(e.NextRunDate, e.AnchorDay)
	if next.IsZero() {
		return e, false
	}
	e.NextRunDate = next
	return e, true
}

// Occurrences returns the run dates of the entry from NextRunDate up to and including until.
func (e ScheduleEntry) Occurrences(until date.Date) []date.Date {
	var days []date.Date
	for cur, ok := e, true; ok && !cur.NextRunDate.After(until); cur, ok = cur.Advance() {
		days = append(days, cur.NextRunDate)
	}
	return days
}

// ScheduleFilter selects schedule entries. Zero fields do not filter.
type ScheduleFilter struct {
	DueBy     date.Date // NextRunDate on or before
	AccountID string    // from or to account
	Manual    *bool     // manual or automatic entries only
}

// Match reports whether e passes the filter.
func (f ScheduleFilter) Match(e ScheduleEntry) bool {
	switch {
	case !f.DueBy.IsZero() && e.NextRunDate.After(f.DueBy):
		return false
	case f.AccountID != "" && e.FromAccountID != f.AccountID && e.ToAccountID != f.AccountID:
		return false
	case f.Manual != nil && e.IsManual != *f.Manual:
		return false
	}
	return true
}
