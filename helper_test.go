package wealth

import (
	"context"
	"testing"

	"github.com/etnz/wealth/date"
	"github.com/shopspring/decimal"
)

// dec is a helper for tests to create decimals from constants.
func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fixture is a ledger on a memory store with a clock tests can move.
type fixture struct {
	ctx    context.Context
	store  *MemoryStore
	ledger *Ledger
	sched  *Scheduler
	agg    *Aggregator
	today  date.Date
}

func newFixture(t *testing.T, today string, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{ctx: context.Background(), store: NewMemoryStore(), today: date.MustParse(today)}
	opts = append([]Option{WithClock(func() date.Date { return f.today })}, opts...)
	f.ledger = NewLedger(f.store, opts...)
	f.sched = NewScheduler(f.ledger)
	f.agg = NewAggregator(f.ledger)
	return f
}

// account creates an active account included in net worth.
func (f *fixture) account(t *testing.T, name string, typ AccountType, opening string) Account {
	t.Helper()
	a, err := f.ledger.CreateAccount(f.ctx, NewAccount{
		Name:              name,
		Type:              typ,
		OpeningBalance:    dec(opening),
		IncludeInNetWorth: true,
		IsLiquidAsset:     typ == Bank,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%q) failed: %v", name, err)
	}
	return a
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	a, err := f.store.Account(f.ctx, id)
	if err != nil {
		t.Fatalf("Account(%q) failed: %v", id, err)
	}
	return a.Balance
}

func (f *fixture) assertBalance(t *testing.T, a Account, want string) {
	t.Helper()
	if got := f.balance(t, a.ID); !got.Equal(dec(want)) {
		t.Errorf("balance of %s = %s, want %s", a.Name, got, want)
	}
}

func (f *fixture) apply(t *testing.T, in Intent) Transaction {
	t.Helper()
	tx, err := f.ledger.Apply(f.ctx, in)
	if err != nil {
		t.Fatalf("Apply(%+v) failed: %v", in, err)
	}
	return tx
}
