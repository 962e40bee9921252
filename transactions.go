package wealth

import (
	"fmt"
	"strings"

	"github.com/etnz/wealth/date"
	"github.com/shopspring/decimal"
)

// TxType identifies how a transaction moves balances, see Effects.
type TxType string

// Transaction types.
const (
	Expense        TxType = "Expense"
	VirtualExpense TxType = "Virtual Expense"
	Income         TxType = "Income"
	Refund         TxType = "Refund"
	VirtualFunding TxType = "Virtual Funding"
	Transfer       TxType = "Transfer"
	IncreaseLoan   TxType = "Increase Loan"
)

// TxTypes lists all transaction types.
var TxTypes = []TxType{Expense, VirtualExpense, Income, Refund, VirtualFunding, Transfer, IncreaseLoan}

// ParseTxType parses a transaction type, ignoring case, spaces, dashes and underscores.
func ParseTxType(s string) (TxType, error) {
	key := normalizeKey(s)
	for _, t := range TxTypes {
		if normalizeKey(string(t)) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Uncategorized is the category of transactions recorded without one.
const Uncategorized = "Uncategorized"

// rule is one row of the effect table: the sign applied to the amount for
// the from-account and the to-account. A zero sign means the account is not
// involved and must not be set.
type rule struct{ from, to int }

var effectTable = map[TxType]rule{
	Expense:        {from: -1},
	VirtualExpense: {from: -1},
	Income:         {to: +1},
	Refund:         {to: +1},
	VirtualFunding: {to: +1},
	Transfer:       {from: -1, to: +1},
	IncreaseLoan:   {to: -1},
}

// NeedsFrom reports whether the type requires a from-account.
func (t TxType) NeedsFrom() bool { return effectTable[t].from != 0 }

// NeedsTo reports whether the type requires a to-account.
func (t TxType) NeedsTo() bool { return effectTable[t].to != 0 }

// IsVirtual reports whether the type is a bookkeeping leg with no real cash movement.
func (t TxType) IsVirtual() bool { return t == VirtualExpense || t == VirtualFunding }

// Effect is the signed change a posting applies to one account balance.
type Effect struct {
	AccountID string
	Delta     decimal.Decimal
}

// Effects returns the balance changes of a transaction of type t moving
// amount between from and to, following the effect table.
func Effects(t TxType, amount decimal.Decimal, from, to string) []Effect {
	r := effectTable[t]
	var effects []Effect
	if r.from != 0 && from != "" {
		effects = append(effects, Effect{AccountID: from, Delta: amount.Mul(decimal.NewFromInt(int64(r.from)))})
	}
	if r.to != 0 && to != "" {
		effects = append(effects, Effect{AccountID: to, Delta: amount.Mul(decimal.NewFromInt(int64(r.to)))})
	}
	return effects
}

// SignedEffect returns the change a posting makes to the balance of accountID.
func SignedEffect(t TxType, amount decimal.Decimal, from, to, accountID string) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range Effects(t, amount, from, to) {
		if e.AccountID == accountID {
			sum = sum.Add(e.Delta)
		}
	}
	return sum
}

// Intent is a request to record a transaction.
type Intent struct {
	Date          date.Date       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Type          TxType          `json:"type"`
	FromAccountID string          `json:"fromAccountId,omitempty"`
	ToAccountID   string          `json:"toAccountId,omitempty"`
	Category      string          `json:"category,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// Validate checks the fields of the intent against the contract of its type.
// It does not check that the accounts exist.
func (in Intent) Validate() error {
	const op = "validate"
	r, ok := effectTable[in.Type]
	if !ok {
		return validationf(op, "unknown transaction type %q", in.Type)
	}
	fail := func(format string, args ...any) error {
		e := validationf(op, format, args...)
		e.Type = in.Type
		return e
	}
	if !in.Amount.IsPositive() {
		return fail("amount must be positive, got %s", in.Amount)
	}
	switch {
	case r.from != 0 && in.FromAccountID == "":
		return fail("from-account is missing")
	case r.from == 0 && in.FromAccountID != "":
		return fail("unexpected from-account %q", in.FromAccountID)
	case r.to != 0 && in.ToAccountID == "":
		return fail("to-account is missing")
	case r.to == 0 && in.ToAccountID != "":
		return fail("unexpected to-account %q", in.ToAccountID)
	case r.from != 0 && r.to != 0 && in.FromAccountID == in.ToAccountID:
		return fail("source and destination accounts must differ")
	}
	if in.Type == IncreaseLoan && strings.TrimSpace(in.Description) == "" {
		return fail("description is required")
	}
	return nil
}

// Effects returns the balance changes the intent would apply.
func (in Intent) Effects() []Effect {
	return Effects(in.Type, in.Amount, in.FromAccountID, in.ToAccountID)
}

// normalize applies the defaults of a recorded transaction.
func (in Intent) normalize(today date.Date) Intent {
	if in.Date.IsZero() {
		in.Date = today
	}
	in.Description = strings.TrimSpace(in.Description)
	if strings.TrimSpace(in.Category) == "" {
		in.Category = Uncategorized
	}
	return in
}

// Transaction is an immutable record of an applied Intent.
type Transaction struct {
	ID            string          `json:"id"`
	Seq           int64           `json:"seq"` // insertion order, assigned by the store
	Date          date.Date       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Type          TxType          `json:"type"`
	FromAccountID string          `json:"fromAccountId,omitempty"`
	ToAccountID   string          `json:"toAccountId,omitempty"`
	Category      string          `json:"category"`
	Notes         string          `json:"notes,omitempty"`
	// BatchID links the legs of one logical action. Empty for single postings.
	BatchID string `json:"batchId,omitempty"`
}

// Effects returns the balance changes the transaction applied.
func (t Transaction) Effects() []Effect {
	return Effects(t.Type, t.Amount, t.FromAccountID, t.ToAccountID)
}

// SignedAmount returns the change this transaction made to accountID's balance.
func (t Transaction) SignedAmount(accountID string) decimal.Decimal {
	return SignedEffect(t.Type, t.Amount, t.FromAccountID, t.ToAccountID, accountID)
}

// Touches reports whether the transaction references accountID.
func (t Transaction) Touches(accountID string) bool {
	return t.FromAccountID == accountID || t.ToAccountID == accountID
}

// Intent returns the intent that would recreate this transaction.
func (t Transaction) Intent() Intent {
	return Intent{
		Date:          t.Date,
		Amount:        t.Amount,
		Description:   t.Description,
		Type:          t.Type,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Category:      t.Category,
		Notes:         t.Notes,
	}
}

// TxFilter selects transactions. Zero fields do not filter.
type TxFilter struct {
	AccountID string    // from or to account
	Type      TxType    // exact type
	BatchID   string    // members of a batch
	From      date.Date // on or after
	To        date.Date // on or before
	Limit     int       // most recent first when set
}

// Match reports whether t passes the filter, Limit aside.
func (f TxFilter) Match(t Transaction) bool {
	switch {
	case f.AccountID != "" && !t.Touches(f.AccountID):
		return false
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.BatchID != "" && t.BatchID != f.BatchID:
		return false
	case !f.From.IsZero() && t.Date.Before(f.From):
		return false
	case !f.To.IsZero() && t.Date.After(f.To):
		return false
	}
	return true
}

// lessChronological orders transactions by date, then by insertion order.
func lessChronological(a, b Transaction) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return 0
}
