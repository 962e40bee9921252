package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wealth.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newLedger(s wealth.Store, today string) *wealth.Ledger {
	d := date.MustParse(today)
	return wealth.NewLedger(s, wealth.WithClock(func() date.Date { return d }))
}

func TestOpen_MigratesOnce(t *testing.T) {
	ctx := context.Background()
	s, path := openTestStore(t)
	l := newLedger(s, "2024-03-01")
	_, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Bank", Type: wealth.Bank, OpeningBalance: dec("10")})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	again, err := Open(ctx, path)
	require.NoError(t, err)
	defer again.Close()
	var applied int
	require.NoError(t, again.db.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&applied))
	assert.Equal(t, len(migrations), applied)

	a, err := again.AccountByName(ctx, "bank")
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("10")))
}

func TestStore_AccountRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	l := newLedger(s, "2024-03-01")
	goal := dec("1200.50")
	created, err := l.CreateAccount(ctx, wealth.NewAccount{
		Name:              "Holidays",
		Type:              wealth.SinkingFund,
		OpeningBalance:    dec("12.34"),
		Currency:          "usd",
		ExchangeRate:      dec("0.92"),
		IncludeInNetWorth: true,
		GoalAmount:        &goal,
		GoalDate:          date.New(2025, 6, 30),
		AutoFundEnabled:   true,
		FundingTermMonths: 18,
		SortOrder:         3,
		Notes:             "summer",
	})
	require.NoError(t, err)

	got, err := s.Account(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Holidays", got.Name)
	assert.Equal(t, wealth.SinkingFund, got.Type)
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.Balance.Equal(dec("12.34")))
	assert.True(t, got.OpeningBalance.Equal(dec("12.34")))
	assert.True(t, got.ExchangeRate.Equal(dec("0.92")))
	require.NotNil(t, got.GoalAmount)
	assert.True(t, got.GoalAmount.Equal(goal))
	assert.Equal(t, date.New(2025, 6, 30), got.GoalDate)
	assert.True(t, got.AutoFundEnabled)
	assert.Equal(t, 18, got.FundingTermMonths)
	assert.Equal(t, 3, got.SortOrder)
	assert.True(t, got.IsActive)
	assert.True(t, got.IncludeInNetWorth)
	assert.False(t, got.IsLiquidAsset)
	assert.Equal(t, int64(1), got.Version)

	bank, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Bank", Type: wealth.Bank})
	require.NoError(t, err)
	got, err = s.Account(ctx, bank.ID)
	require.NoError(t, err)
	assert.Nil(t, got.GoalAmount)
	assert.True(t, got.GoalDate.IsZero())

	_, err = l.CreateAccount(ctx, wealth.NewAccount{Name: "BANK", Type: wealth.Bank})
	assert.ErrorIs(t, err, wealth.ErrValidation)

	_, err = s.Account(ctx, "ghost")
	assert.ErrorIs(t, err, wealth.ErrNotFound)
}

func TestStore_UpdateAccountConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	l := newLedger(s, "2024-03-01")
	a, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Bank", Type: wealth.Bank})
	require.NoError(t, err)

	err = s.Atomic(ctx, func(tx wealth.Tx) error {
		v, err := tx.UpdateAccount(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)
		_, err = tx.UpdateAccount(ctx, a)
		return err
	})
	assert.ErrorIs(t, err, wealth.ErrConflict)

	got, err := s.Account(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version, "a failed unit must roll back")

	err = s.Atomic(ctx, func(tx wealth.Tx) error {
		_, err := tx.UpdateAccount(ctx, wealth.Account{ID: "ghost", Name: "Ghost"})
		return err
	})
	assert.ErrorIs(t, err, wealth.ErrNotFound)
}

func TestStore_LedgerFlow(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	l := newLedger(s, "2024-03-15")
	bank, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Bank", Type: wealth.Bank, OpeningBalance: dec("100")})
	require.NoError(t, err)
	custodial, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Kid", Type: wealth.Custodial, OpeningBalance: dec("40")})
	require.NoError(t, err)

	single, err := l.Apply(ctx, wealth.Intent{Date: date.New(2024, 3, 1), Type: wealth.Income, Amount: dec("0.10"), ToAccountID: bank.ID, Description: "interest"})
	require.NoError(t, err)
	assert.NotZero(t, single.Seq)

	legs, err := l.ApplyBatch(ctx, []wealth.Intent{
		{Date: date.New(2024, 3, 2), Type: wealth.Expense, Amount: dec("15"), FromAccountID: bank.ID, Description: "trip"},
		{Date: date.New(2024, 3, 2), Type: wealth.VirtualExpense, Amount: dec("15"), FromAccountID: custodial.ID, Description: "trip"},
	})
	require.NoError(t, err)
	require.Len(t, legs, 2)

	_, err = l.ApplyBatch(ctx, []wealth.Intent{
		{Type: wealth.Expense, Amount: dec("1"), FromAccountID: bank.ID},
		{Type: wealth.Income, Amount: dec("1"), ToAccountID: "ghost"},
	})
	assert.ErrorIs(t, err, wealth.ErrNotFound)

	balance := func(id string) string {
		a, err := s.Account(ctx, id)
		require.NoError(t, err)
		return a.Balance.String()
	}
	assert.Equal(t, "85.1", balance(bank.ID))
	assert.Equal(t, "25", balance(custodial.ID))

	batch, err := s.Transactions(ctx, wealth.TxFilter{BatchID: legs[0].BatchID})
	require.NoError(t, err)
	assert.Len(t, batch, 2)
	recent, err := s.Transactions(ctx, wealth.TxFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, legs[1].ID, recent[0].ID)
	since, err := s.Transactions(ctx, wealth.TxFilter{AccountID: bank.ID, From: date.New(2024, 3, 2)})
	require.NoError(t, err)
	assert.Len(t, since, 1)

	_, err = l.Reverse(ctx, legs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "100.1", balance(bank.ID))
	assert.Equal(t, "40", balance(custodial.ID))
	require.NoError(t, l.Audit(ctx))

	all, err := s.Transactions(ctx, wealth.TxFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, single.ID, all[0].ID)
	assert.Equal(t, "", all[0].FromAccountID)
	assert.Equal(t, "", all[0].BatchID)
}

func TestStore_Schedule(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	l := newLedger(s, "2024-01-31")
	sched := wealth.NewScheduler(l)
	bank, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Bank", Type: wealth.Bank})
	require.NoError(t, err)

	e, err := sched.Schedule(ctx, wealth.ScheduleEntry{
		Description: "salary",
		Amount:      dec("1000"),
		Type:        wealth.Income,
		ToAccountID: bank.ID,
		Frequency:   wealth.Monthly,
		NextRunDate: date.New(2024, 1, 31),
	})
	require.NoError(t, err)
	_, err = sched.Schedule(ctx, wealth.ScheduleEntry{
		Description:   "cleaner",
		Amount:        dec("30"),
		Type:          wealth.Expense,
		FromAccountID: bank.ID,
		Frequency:     wealth.Weekly,
		NextRunDate:   date.New(2024, 1, 29),
		IsManual:      true,
	})
	require.NoError(t, err)

	n, err := sched.ProcessDue(ctx, date.New(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = sched.ProcessDue(ctx, date.New(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := s.ScheduleEntry(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, date.New(2024, 2, 29), got.NextRunDate)
	assert.Equal(t, 31, got.AnchorDay)

	pending, err := sched.PendingManualReminders(ctx, date.New(2024, 1, 31))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "cleaner", pending[0].Description)
	assert.True(t, pending[0].IsManual)
	assert.Equal(t, "", pending[0].ToAccountID)

	byAccount, err := s.ScheduleEntries(ctx, wealth.ScheduleFilter{AccountID: bank.ID})
	require.NoError(t, err)
	assert.Len(t, byAccount, 2)
}

func TestStore_Categories(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	l := newLedger(s, "2024-01-31")
	_, err := l.CreateCategory(ctx, wealth.Category{Name: "Groceries", Type: wealth.ExpenseCategory, BudgetLimit: dec("300")})
	require.NoError(t, err)
	_, err = l.CreateCategory(ctx, wealth.Category{Name: "groceries", Type: wealth.ExpenseCategory})
	assert.ErrorIs(t, err, wealth.ErrValidation)

	categories, err := s.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.True(t, categories[0].BudgetLimit.Equal(dec("300")))
	assert.Equal(t, wealth.ExpenseCategory, categories[0].Type)
}

func TestStore_ConcurrentApply(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestStore(t)
	l := newLedger(s, "2024-01-31")
	bank, err := l.CreateAccount(ctx, wealth.NewAccount{Name: "Bank", Type: wealth.Bank})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Apply(ctx, wealth.Intent{Type: wealth.Income, Amount: dec("2.5"), ToAccountID: bank.ID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a, err := s.Account(ctx, bank.ID)
	require.NoError(t, err)
	assert.True(t, a.Balance.Equal(dec("50")), "balance = %s", a.Balance)
	assert.NoError(t, l.Audit(ctx))
}
