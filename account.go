package wealth

import (
	"fmt"
	"strings"

	"github.com/etnz/wealth/date"
	"github.com/shopspring/decimal"
)

// AccountType classifies an account.
type AccountType string

const (
	Bank        AccountType = "Bank"
	CreditCard  AccountType = "CreditCard"
	Custodial   AccountType = "Custodial"
	SinkingFund AccountType = "SinkingFund"
	Loan        AccountType = "Loan"
	Investment  AccountType = "Investment"
	Receivable  AccountType = "Receivable"
)

// AccountTypes lists every account type in display order.
var AccountTypes = []AccountType{Bank, CreditCard, Custodial, SinkingFund, Loan, Investment, Receivable}

// ParseAccountType parses an account type, ignoring case, spaces, dashes and underscores.
func ParseAccountType(s string) (AccountType, error) {
	key := normalizeKey(s)
	for _, t := range AccountTypes {
		if normalizeKey(string(t)) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.TrimSpace(s)))
}

// Account is a store of value whose balance moves only through the ledger.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Type           AccountType     `json:"type"`
	Balance        decimal.Decimal `json:"balance"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	Currency       string          `json:"currency"`
	// ExchangeRate is the number of base currency units per unit of Currency.
	ExchangeRate      decimal.Decimal `json:"exchangeRate"`
	IncludeInNetWorth bool            `json:"includeInNetWorth"`
	IsLiquidAsset     bool            `json:"isLiquidAsset"`

	// Sinking fund goal. GoalAmount is nil when no goal is set.
	GoalAmount        *decimal.Decimal `json:"goalAmount,omitempty"`
	GoalDate          date.Date        `json:"goalDate"`
	AutoFundEnabled   bool             `json:"autoFundEnabled"`
	FundingTermMonths int              `json:"fundingTermMonths,omitempty"`

	SortOrder int    `json:"sortOrder"`
	IsActive  bool   `json:"isActive"`
	Notes     string `json:"notes,omitempty"`

	// Version is incremented by the store on every write and used for
	// optimistic concurrency control on the balance.
	Version int64 `json:"version"`
}

// HasGoal reports whether a sinking fund goal is configured.
func (a Account) HasGoal() bool { return a.GoalAmount != nil && !a.GoalDate.IsZero() }

// BaseValue returns the balance converted to the base currency.
func (a Account) BaseValue() decimal.Decimal { return a.Balance.Mul(a.ExchangeRate) }

// NewAccount describes the account to create. Accounts are usually included
// in net worth: start from DefaultNewAccount to get that default.
type NewAccount struct {
	Name              string           `json:"name"`
	Type              AccountType      `json:"type"`
	OpeningBalance    decimal.Decimal  `json:"openingBalance"`
	Currency          string           `json:"currency"`
	ExchangeRate      decimal.Decimal  `json:"exchangeRate"` // zero means 1
	IncludeInNetWorth bool             `json:"includeInNetWorth"`
	IsLiquidAsset     bool             `json:"isLiquidAsset"`
	GoalAmount        *decimal.Decimal `json:"goalAmount,omitempty"`
	GoalDate          date.Date        `json:"goalDate"`
	AutoFundEnabled   bool             `json:"autoFundEnabled"`
	FundingTermMonths int              `json:"fundingTermMonths,omitempty"`
	SortOrder         int              `json:"sortOrder"`
	Notes             string           `json:"notes,omitempty"`
}

// DefaultNewAccount returns a NewAccount with the defaults shared by the
// command line and the API.
func DefaultNewAccount() NewAccount { return NewAccount{IncludeInNetWorth: true} }

// account validates n and returns the Account it describes.
func (n NewAccount) account(defaultCurrency string) (Account, error) {
	const op = "create account"
	name := strings.TrimSpace(n.Name)
	if name == "" {
		return Account{}, validationf(op, "account name is missing")
	}
	if _, err := ParseAccountType(string(n.Type)); err != nil {
		return Account{}, validationf(op, "%v", err)
	}
	cur := strings.ToUpper(strings.TrimSpace(n.Currency))
	if cur == "" {
		cur = defaultCurrency
	}
	rate := n.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	if rate.IsNegative() {
		return Account{}, validationf(op, "exchange rate must be positive, got %s", rate)
	}
	a := Account{
		Name:              name,
		Type:              n.Type,
		Balance:           n.OpeningBalance,
		OpeningBalance:    n.OpeningBalance,
		Currency:          cur,
		ExchangeRate:      rate,
		IncludeInNetWorth: n.IncludeInNetWorth,
		IsLiquidAsset:     n.IsLiquidAsset,
		SortOrder:         n.SortOrder,
		IsActive:          true,
		Notes:             n.Notes,
	}
	if n.Type != SinkingFund {
		if n.GoalAmount != nil || !n.GoalDate.IsZero() || n.AutoFundEnabled || n.FundingTermMonths != 0 {
			return Account{}, validationf(op, "goal settings only apply to %s accounts", SinkingFund)
		}
		return a, nil
	}
	if n.GoalAmount != nil {
		if !n.GoalAmount.IsPositive() {
			return Account{}, validationf(op, "goal amount must be positive, got %s", n.GoalAmount)
		}
		g := *n.GoalAmount
		a.GoalAmount = &g
	}
	if n.FundingTermMonths < 0 {
		return Account{}, validationf(op, "funding term must be positive, got %d", n.FundingTermMonths)
	}
	if n.AutoFundEnabled && (n.GoalAmount == nil || n.FundingTermMonths == 0) {
		return Account{}, validationf(op, "auto-funding needs a goal amount and a funding term")
	}
	a.GoalDate = n.GoalDate
	a.AutoFundEnabled = n.AutoFundEnabled
	a.FundingTermMonths = n.FundingTermMonths
	return a, nil
}
