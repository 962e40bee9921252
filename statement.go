package wealth

import (
	"context"
	"slices"

	"github.com/etnz/wealth/date"
	"github.com/shopspring/decimal"
)

// StatementLine is one row of an account statement.
type StatementLine struct {
	Date        date.Date       `json:"date"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Type        TxType          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`  // signed effect on the account
	Balance     decimal.Decimal `json:"balance"` // running balance after the line
	// Projected lines are future occurrences of schedule entries.
	Projected bool `json:"projected"`
	// ID is the transaction id, or the schedule entry id of projected lines.
	ID string `json:"id"`
}

// Statement lists the movements of an account over a window.
type Statement struct {
	Account Account         `json:"account"`
	Window  date.Range      `json:"window"`
	Opening decimal.Decimal `json:"opening"` // balance before the first line
	Current decimal.Decimal `json:"current"` // balance today
	Closing decimal.Decimal `json:"closing"` // balance after the last line
	Lines   []StatementLine `json:"lines"`
}

// Statement returns the lines of the account within window. Recorded
// transactions come first, their running balance computed backward from the
// current balance. Then come the occurrences of schedule entries dated after
// today, projected forward from the current balance. A zero window covers
// the last month up to today. A missing start is one month before the end,
// and a missing end is today, or one month after a future start.
func (g *Aggregator) Statement(ctx context.Context, accountID string, window date.Range) (Statement, error) {
	const op = "statement"
	today := g.ledger.today()
	switch {
	case window.IsZero():
		window = date.Between(today.AddMonths(-1, 0).Add(1), today)
	case window.From.IsZero():
		window.From = window.To.AddMonths(-1, 0).Add(1)
	case window.To.IsZero():
		window.To = today
		if window.From.After(today) {
			window.To = window.From.AddMonths(1, 0).Add(-1)
		}
	}
	if err := window.Validate(); err != nil {
		return Statement{}, validationf(op, "%v", err)
	}
	a, err := g.ledger.store.Account(ctx, accountID)
	if err != nil {
		return Statement{}, withOp(err, op)
	}
	txs, err := g.ledger.store.Transactions(ctx, TxFilter{AccountID: accountID, From: window.From})
	if err != nil {
		return Statement{}, err
	}

	s := Statement{Account: a, Window: window, Current: a.Balance}
	running := a.Balance
	var past []StatementLine
	for _, t := range slices.Backward(txs) {
		signed := t.SignedAmount(accountID)
		if !t.Date.After(window.To) {
			past = append(past, StatementLine{
				Date:        t.Date,
				Description: t.Description,
				Category:    t.Category,
				Type:        t.Type,
				Amount:      signed,
				Balance:     running,
				ID:          t.ID,
			})
		}
		running = running.Sub(signed)
	}
	s.Opening = running
	slices.Reverse(past)
	s.Lines = past

	if window.To.After(today) {
		entries, err := g.ledger.store.ScheduleEntries(ctx, ScheduleFilter{AccountID: accountID})
		if err != nil {
			return Statement{}, err
		}
		var future []StatementLine
		for _, e := range entries {
			t := e.ResolvedType()
			for _, d := range e.Occurrences(window.To) {
				if !d.After(today) {
					continue
				}
				future = append(future, StatementLine{
					Date:        d,
					Description: e.Description,
					Category:    e.Category,
					Type:        t,
					Amount:      SignedEffect(t, e.Amount, e.FromAccountID, e.ToAccountID, accountID),
					Projected:   true,
					ID:          e.ID,
				})
			}
		}
		slices.SortStableFunc(future, func(a, b StatementLine) int { return a.Date.Compare(b.Date) })
		// Occurrences between today and the window start still move the
		// projected balance, they are just not listed.
		running := a.Balance
		first := len(future)
		for i := range future {
			if first == len(future) && !future[i].Date.Before(window.From) {
				first = i
			}
			running = running.Add(future[i].Amount)
			future[i].Balance = running
		}
		if window.From.After(today) {
			s.Opening = a.Balance
			if first > 0 {
				s.Opening = future[first-1].Balance
			}
		}
		future = future[first:]
		s.Lines = append(s.Lines, future...)
	}

	s.Closing = s.Opening
	if n := len(s.Lines); n > 0 {
		s.Closing = s.Lines[n-1].Balance
	}
	return s, nil
}
