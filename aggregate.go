package wealth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/internal/logger"
	"github.com/shopspring/decimal"
)

// Aggregator derives wealth metrics from account state. Apart from AutoFund,
// which posts through the Ledger, it never mutates anything.
type Aggregator struct {
	ledger *Ledger
}

// NewAggregator returns an Aggregator reading l's store.
func NewAggregator(l *Ledger) *Aggregator { return &Aggregator{ledger: l} }

// netWorthSign is the sign an account type contributes to net worth with.
// Balances of debts are already negative; custodial balances belong to
// someone else.
func netWorthSign(t AccountType) int64 {
	if t == Custodial {
		return -1
	}
	return 1
}

// Subtotal is the net worth contribution of one account type.
type Subtotal struct {
	Type   AccountType     `json:"type"`
	Amount decimal.Decimal `json:"amount"`
}

// NetWorth is the combined value of the included accounts.
type NetWorth struct {
	BaseCurrency string          `json:"baseCurrency"` // currency of Total
	Total        decimal.Decimal `json:"total"`
	// Subtotals only count accounts held in SubtotalCurrency, unconverted.
	SubtotalCurrency string     `json:"subtotalCurrency"`
	Subtotals        []Subtotal `json:"subtotals"`
	Accounts         []Account  `json:"accounts"`
}

// NetWorth sums balance times exchange rate over the active accounts
// included in net worth, in the ledger's base currency. The subtotals per
// type cover the accounts held in currency, the base currency when empty.
func (g *Aggregator) NetWorth(ctx context.Context, currency string) (NetWorth, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = g.ledger.baseCurrency
	}
	accounts, err := g.ledger.store.Accounts(ctx)
	if err != nil {
		return NetWorth{}, err
	}
	nw := NetWorth{BaseCurrency: g.ledger.baseCurrency, SubtotalCurrency: currency}
	byType := make(map[AccountType]decimal.Decimal)
	for _, a := range accounts {
		if !a.IsActive || !a.IncludeInNetWorth {
			continue
		}
		sign := decimal.NewFromInt(netWorthSign(a.Type))
		nw.Total = nw.Total.Add(a.BaseValue().Mul(sign))
		nw.Accounts = append(nw.Accounts, a)
		if a.Currency == currency {
			byType[a.Type] = byType[a.Type].Add(a.Balance.Mul(sign))
		}
	}
	for _, t := range AccountTypes {
		if v, ok := byType[t]; ok {
			nw.Subtotals = append(nw.Subtotals, Subtotal{Type: t, Amount: v})
		}
	}
	return nw, nil
}

// LiquidAssets returns what can be spent today: liquid bank balances and
// credit card debt, less custodial and sinking fund balances, in base
// currency.
func (g *Aggregator) LiquidAssets(ctx context.Context) (decimal.Decimal, error) {
	accounts, err := g.ledger.store.Accounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	var sum decimal.Decimal
	for _, a := range accounts {
		if !a.IsActive {
			continue
		}
		switch a.Type {
		case Bank:
			if a.IsLiquidAsset {
				sum = sum.Add(a.BaseValue())
			}
		case CreditCard:
			sum = sum.Add(a.BaseValue())
		case Custodial, SinkingFund:
			sum = sum.Sub(a.BaseValue())
		}
	}
	return sum, nil
}

// GoalStatus compares a sinking fund balance with its expected balance.
type GoalStatus string

const (
	Ahead   GoalStatus = "ahead"
	OnTrack GoalStatus = "on track"
	Behind  GoalStatus = "behind"
)

// GoalProgress is the funding state of a sinking fund goal.
type GoalProgress struct {
	AccountID          string          `json:"accountId"`
	Name               string          `json:"name"`
	Currency           string          `json:"currency"`
	Balance            decimal.Decimal `json:"balance"`
	GoalAmount         decimal.Decimal `json:"goalAmount"`
	GoalDate           date.Date       `json:"goalDate"`
	TermMonths         int             `json:"termMonths"`
	MonthsRemaining    int             `json:"monthsRemaining"`
	MonthsElapsed      int             `json:"monthsElapsed"`
	MonthlyRequirement decimal.Decimal `json:"monthlyRequirement"`
	ExpectedBalance    decimal.Decimal `json:"expectedBalance"`
	Status             GoalStatus      `json:"status"`
	// Difference is Balance minus ExpectedBalance: negative when behind.
	Difference decimal.Decimal `json:"difference"`
}

// goalProgress computes the progress of a as of asOf.
func goalProgress(a Account, asOf date.Date) (GoalProgress, error) {
	const op = "goal progress"
	if a.Type != SinkingFund || !a.HasGoal() {
		return GoalProgress{}, &Error{Kind: ErrValidation, Op: op, AccountID: a.ID, Msg: "account has no sinking fund goal"}
	}
	if a.FundingTermMonths <= 0 {
		return GoalProgress{}, &Error{Kind: ErrValidation, Op: op, AccountID: a.ID, Msg: "account has no funding term"}
	}
	term := a.FundingTermMonths
	remaining := max(asOf.MonthsUntil(a.GoalDate), 0)
	elapsed := min(max(term-remaining, 0), term)
	monthly := RoundMoney(a.GoalAmount.Div(decimal.NewFromInt(int64(term))), a.Currency)
	expected := monthly.Mul(decimal.NewFromInt(int64(elapsed)))
	if elapsed == term {
		expected = *a.GoalAmount
	}
	p := GoalProgress{
		AccountID:          a.ID,
		Name:               a.Name,
		Currency:           a.Currency,
		Balance:            a.Balance,
		GoalAmount:         *a.GoalAmount,
		GoalDate:           a.GoalDate,
		TermMonths:         term,
		MonthsRemaining:    remaining,
		MonthsElapsed:      elapsed,
		MonthlyRequirement: monthly,
		ExpectedBalance:    expected,
		Difference:         a.Balance.Sub(expected),
	}
	switch p.Difference.Sign() {
	case 1:
		p.Status = Ahead
	case 0:
		p.Status = OnTrack
	default:
		p.Status = Behind
	}
	return p, nil
}

// GoalProgress returns the funding progress of a sinking fund as of asOf.
func (g *Aggregator) GoalProgress(ctx context.Context, accountID string, asOf date.Date) (GoalProgress, error) {
	a, err := g.ledger.store.Account(ctx, accountID)
	if err != nil {
		return GoalProgress{}, withOp(err, "goal progress")
	}
	return goalProgress(a, asOf)
}

// Goals returns the progress of every active sinking fund with a goal.
func (g *Aggregator) Goals(ctx context.Context, asOf date.Date) ([]GoalProgress, error) {
	accounts, err := g.ledger.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	var goals []GoalProgress
	for _, a := range accounts {
		if !a.IsActive || a.Type != SinkingFund || !a.HasGoal() || a.FundingTermMonths <= 0 {
			continue
		}
		p, err := goalProgress(a, asOf)
		if err != nil {
			return nil, err
		}
		goals = append(goals, p)
	}
	return goals, nil
}

// AutoFundCategory is the category of auto-funding postings.
const AutoFundCategory = "Sinking Fund"

// AutoFund posts one Virtual Funding of the monthly requirement, capped by
// what is missing to reach the goal, to every auto-funded sinking fund that
// has not been funded since the first day of asOf's month. Each account is
// checked and funded in its own atomic unit; failures are joined and do not
// stop the others.
func (g *Aggregator) AutoFund(ctx context.Context, asOf date.Date) ([]Transaction, error) {
	log := logger.FromContext(ctx)
	accounts, err := g.ledger.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	var posted []Transaction
	var errs error
	for _, a := range accounts {
		if !a.IsActive || a.Type != SinkingFund || !a.AutoFundEnabled || !a.HasGoal() || a.FundingTermMonths <= 0 {
			continue
		}
		var t Transaction
		var funded bool
		err := g.ledger.atomic(ctx, func(tx Tx) error {
			t, funded = Transaction{}, false
			cur, err := tx.Account(ctx, a.ID)
			if err != nil {
				return err
			}
			if !cur.HasGoal() {
				return nil
			}
			missing := cur.GoalAmount.Sub(cur.Balance)
			if !missing.IsPositive() {
				return nil
			}
			already, err := tx.Transactions(ctx, TxFilter{AccountID: cur.ID, Type: VirtualFunding, From: asOf.FirstOfMonth()})
			if err != nil {
				return err
			}
			if len(already) > 0 {
				return nil
			}
			p, err := goalProgress(cur, asOf)
			if err != nil {
				return err
			}
			amount := decimal.Min(p.MonthlyRequirement, missing)
			if !amount.IsPositive() {
				return nil
			}
			t, err = g.ledger.post(ctx, tx, Intent{
				Date:        asOf,
				Amount:      amount,
				Description: fmt.Sprintf("Auto-funding %s", a.Name),
				Type:        VirtualFunding,
				ToAccountID: a.ID,
				Category:    AutoFundCategory,
			}, "")
			funded = err == nil
			return err
		})
		if err != nil {
			log.Warn().Err(err).Str("account_id", a.ID).Msg("auto-funding failed")
			errs = errors.Join(errs, fmt.Errorf("auto-funding %q: %w", a.Name, err))
			continue
		}
		if funded {
			log.Info().Str("account_id", a.ID).Str("amount", t.Amount.String()).Msg("sinking fund auto-funded")
			posted = append(posted, t)
		}
	}
	return posted, errs
}

// Budget compares the real expenses of a category over a month with its limit.
type Budget struct {
	Category string          `json:"category"`
	Limit    decimal.Decimal `json:"limit"`
	Spent    decimal.Decimal `json:"spent"`
	// Remaining is Limit minus Spent, zero when no limit is set.
	Remaining decimal.Decimal `json:"remaining"`
}

// HasLimit reports whether a budget limit is set.
func (b Budget) HasLimit() bool { return b.Limit.IsPositive() }

// Over reports whether the spending exceeds a set limit.
func (b Budget) Over() bool { return b.HasLimit() && b.Spent.GreaterThan(b.Limit) }

// Budgets returns, for the month containing month, the Expense totals per
// category and the limits of the expense categories, sorted by category.
func (g *Aggregator) Budgets(ctx context.Context, month date.Date) ([]Budget, error) {
	r := date.NewRange(month, date.Monthly)
	txs, err := g.ledger.store.Transactions(ctx, TxFilter{Type: Expense, From: r.From, To: r.To})
	if err != nil {
		return nil, err
	}
	categories, err := g.ledger.store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	budgets := make(map[string]*Budget)
	get := func(name string) *Budget {
		b, ok := budgets[name]
		if !ok {
			b = &Budget{Category: name}
			budgets[name] = b
		}
		return b
	}
	for _, c := range categories {
		if c.Type == ExpenseCategory {
			get(c.Name).Limit = c.BudgetLimit
		}
	}
	for _, t := range txs {
		b := get(t.Category)
		b.Spent = b.Spent.Add(t.Amount)
	}
	list := make([]Budget, 0, len(budgets))
	for _, b := range budgets {
		if b.HasLimit() {
			b.Remaining = b.Limit.Sub(b.Spent)
		}
		list = append(list, *b)
	}
	slices.SortFunc(list, func(a, b Budget) int { return cmp.Compare(a.Category, b.Category) })
	return list, nil
}
