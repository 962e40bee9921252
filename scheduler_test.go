package wealth

import (
	"errors"
	"testing"

	"github.com/etnz/wealth/date"
)

func TestFrequency_Next(t *testing.T) {
	testCases := []struct {
		freq   Frequency
		from   string
		anchor int
		want   string
	}{
		{Daily, "2024-02-28", 0, "2024-02-29"},
		{Weekly, "2024-12-28", 0, "2025-01-04"},
		{Monthly, "2024-01-01", 1, "2024-02-01"},
		{Monthly, "2024-01-31", 31, "2024-02-29"},
		{Monthly, "2023-01-31", 31, "2023-02-28"},
		{Monthly, "2024-02-29", 31, "2024-03-31"},
		{Monthly, "2024-04-30", 30, "2024-05-30"},
		{Yearly, "2024-02-29", 29, "2025-02-28"},
		{Yearly, "2027-02-28", 29, "2028-02-29"},
		{OneTime, "2024-01-01", 1, "0000-00-00"},
	}
	for _, tc := range testCases {
		t.Run(string(tc.freq)+" "+tc.from, func(t *testing.T) {
			got := tc.freq.Next(date.MustParse(tc.from), tc.anchor)
			if tc.freq == OneTime {
				if !got.IsZero() {
					t.Errorf("Next() = %s, want zero", got)
				}
				return
			}
			if got.String() != tc.want {
				t.Errorf("Next() = %s, want %s", got, tc.want)
			}
		})
	}
}

func (f *fixture) schedule(t *testing.T, e ScheduleEntry) ScheduleEntry {
	t.Helper()
	e, err := f.sched.Schedule(f.ctx, e)
	if err != nil {
		t.Fatalf("Schedule(%+v) failed: %v", e, err)
	}
	return e
}

func (f *fixture) entry(t *testing.T, id string) ScheduleEntry {
	t.Helper()
	e, err := f.store.ScheduleEntry(f.ctx, id)
	if err != nil {
		t.Fatalf("ScheduleEntry(%q) failed: %v", id, err)
	}
	return e
}

// Scenario D and idempotence of a second run on the same date.
func TestScheduler_ProcessDue_Monthly(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	bank := f.account(t, "Bank", Bank, "100")
	e := f.schedule(t, ScheduleEntry{
		Description:   "streaming",
		Amount:        dec("10"),
		Type:          Expense,
		FromAccountID: bank.ID,
		Frequency:     Monthly,
		NextRunDate:   date.New(2024, 1, 1),
	})

	n, err := f.sched.ProcessDue(f.ctx, date.New(2024, 1, 1))
	if err != nil || n != 1 {
		t.Fatalf("ProcessDue() = %d, %v, want 1, nil", n, err)
	}
	if got := f.entry(t, e.ID).NextRunDate; got != date.New(2024, 2, 1) {
		t.Errorf("NextRunDate = %s, want 2024-02-01", got)
	}
	txs, _ := f.store.Transactions(f.ctx, TxFilter{AccountID: bank.ID})
	if len(txs) != 1 || txs[0].Date != date.New(2024, 1, 1) || txs[0].Description != "streaming" {
		t.Errorf("transactions = %+v, want one streaming expense on 2024-01-01", txs)
	}
	f.assertBalance(t, bank, "90")

	n, err = f.sched.ProcessDue(f.ctx, date.New(2024, 1, 1))
	if err != nil || n != 0 {
		t.Errorf("second ProcessDue() = %d, %v, want 0, nil", n, err)
	}
	f.assertBalance(t, bank, "90")
}

func TestScheduler_ProcessDue_MonthEnd(t *testing.T) {
	f := newFixture(t, "2024-01-31")
	bank := f.account(t, "Bank", Bank, "0")
	e := f.schedule(t, ScheduleEntry{
		Description: "salary",
		Amount:      dec("1000"),
		Type:        Income,
		ToAccountID: bank.ID,
		Frequency:   Monthly,
		NextRunDate: date.New(2024, 1, 31),
	})
	if e.AnchorDay != 31 {
		t.Errorf("AnchorDay = %d, want 31", e.AnchorDay)
	}
	for _, tc := range []struct{ asOf, want string }{
		{"2024-01-31", "2024-02-29"},
		{"2024-02-29", "2024-03-31"},
		{"2024-03-31", "2024-04-30"},
		{"2024-04-30", "2024-05-31"},
	} {
		if _, err := f.sched.ProcessDue(f.ctx, date.MustParse(tc.asOf)); err != nil {
			t.Fatal(err)
		}
		if got := f.entry(t, e.ID).NextRunDate.String(); got != tc.want {
			t.Errorf("after ProcessDue(%s) NextRunDate = %s, want %s", tc.asOf, got, tc.want)
		}
	}
	f.assertBalance(t, bank, "4000")
}

func TestScheduler_ProcessDue_CatchUp(t *testing.T) {
	f := newFixture(t, "2024-01-20")
	bank := f.account(t, "Bank", Bank, "0")
	e := f.schedule(t, ScheduleEntry{
		Description: "allowance",
		Amount:      dec("5"),
		Type:        Income,
		ToAccountID: bank.ID,
		Frequency:   Weekly,
		NextRunDate: date.New(2024, 1, 1),
	})
	n, err := f.sched.ProcessDue(f.ctx, date.New(2024, 1, 20))
	if err != nil || n != 3 {
		t.Fatalf("ProcessDue() = %d, %v, want 3, nil", n, err)
	}
	if got := f.entry(t, e.ID).NextRunDate; got != date.New(2024, 1, 22) {
		t.Errorf("NextRunDate = %s, want 2024-01-22", got)
	}
	txs, _ := f.store.Transactions(f.ctx, TxFilter{})
	for i, want := range []string{"2024-01-01", "2024-01-08", "2024-01-15"} {
		if txs[i].Date.String() != want {
			t.Errorf("transaction %d dated %s, want %s", i, txs[i].Date, want)
		}
	}
}

func TestScheduler_ProcessDue_OneTimeDeleted(t *testing.T) {
	f := newFixture(t, "2024-05-01")
	bank := f.account(t, "Bank", Bank, "100")
	e := f.schedule(t, ScheduleEntry{
		Description:   "insurance",
		Amount:        dec("60"),
		Type:          Expense,
		FromAccountID: bank.ID,
		Frequency:     OneTime,
		NextRunDate:   date.New(2024, 5, 1),
	})
	if n, err := f.sched.ProcessDue(f.ctx, date.New(2024, 5, 1)); err != nil || n != 1 {
		t.Fatalf("ProcessDue() = %d, %v, want 1, nil", n, err)
	}
	if _, err := f.store.ScheduleEntry(f.ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("one-time entry still stored, err = %v", err)
	}
	f.assertBalance(t, bank, "40")
}

func TestScheduler_ProcessDue_IsolatesFailures(t *testing.T) {
	f := newFixture(t, "2024-05-01")
	bank := f.account(t, "Bank", Bank, "100")
	savings := f.account(t, "Savings", Bank, "0")
	good := f.schedule(t, ScheduleEntry{
		Description:   "rent",
		Amount:        dec("50"),
		Type:          Expense,
		FromAccountID: bank.ID,
		Frequency:     Monthly,
		NextRunDate:   date.New(2024, 5, 1),
	})
	// Stored entries bypass Schedule's checks, so they can be malformed.
	malformed := ScheduleEntry{ID: "bad", Description: "broken", Amount: dec("5"), Type: Transfer,
		FromAccountID: bank.ID, Frequency: Monthly, NextRunDate: date.New(2024, 4, 1), AnchorDay: 1}
	legacy := ScheduleEntry{ID: "legacy", Description: "saving", Amount: dec("10"),
		FromAccountID: bank.ID, ToAccountID: savings.ID, Frequency: Monthly, NextRunDate: date.New(2024, 5, 1), AnchorDay: 1}
	err := f.store.Atomic(f.ctx, func(tx Tx) error {
		if err := tx.InsertScheduleEntry(f.ctx, malformed); err != nil {
			return err
		}
		return tx.InsertScheduleEntry(f.ctx, legacy)
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := f.sched.ProcessDue(f.ctx, date.New(2024, 5, 1))
	if n != 2 {
		t.Errorf("ProcessDue() processed %d entries, want 2", n)
	}
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ProcessDue() error = %v, want the malformed entry's ErrValidation", err)
	}
	f.assertBalance(t, bank, "40")
	f.assertBalance(t, savings, "10")
	if got := f.entry(t, "bad").NextRunDate; got != date.New(2024, 4, 1) {
		t.Errorf("malformed entry moved to %s", got)
	}
	if got := f.entry(t, good.ID).NextRunDate; got != date.New(2024, 6, 1) {
		t.Errorf("good entry NextRunDate = %s, want 2024-06-01", got)
	}
	txs, _ := f.store.Transactions(f.ctx, TxFilter{Type: Transfer})
	if len(txs) != 1 {
		t.Errorf("legacy entry without type produced %d transfers, want 1", len(txs))
	}
}

func TestScheduler_Schedule_Validation(t *testing.T) {
	f := newFixture(t, "2024-05-01")
	bank := f.account(t, "Bank", Bank, "100")
	testCases := []struct {
		name     string
		entry    ScheduleEntry
		wantKind error
	}{
		{"missing type", ScheduleEntry{Amount: dec("1"), FromAccountID: bank.ID, Frequency: Monthly, NextRunDate: date.New(2024, 6, 1)}, ErrValidation},
		{"unknown frequency", ScheduleEntry{Amount: dec("1"), Type: Expense, FromAccountID: bank.ID, Frequency: "Hourly", NextRunDate: date.New(2024, 6, 1)}, ErrValidation},
		{"missing date", ScheduleEntry{Amount: dec("1"), Type: Expense, FromAccountID: bank.ID, Frequency: Monthly}, ErrValidation},
		{"contradictory accounts", ScheduleEntry{Amount: dec("1"), Type: Income, FromAccountID: bank.ID, Frequency: Monthly, NextRunDate: date.New(2024, 6, 1)}, ErrValidation},
		{"unknown account", ScheduleEntry{Amount: dec("1"), Type: Income, ToAccountID: "ghost", Frequency: Monthly, NextRunDate: date.New(2024, 6, 1)}, ErrNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.sched.Schedule(f.ctx, tc.entry); !errors.Is(err, tc.wantKind) {
				t.Errorf("Schedule() error = %v, want %v", err, tc.wantKind)
			}
		})
	}
	if entries, _ := f.sched.Entries(f.ctx, ScheduleFilter{}); len(entries) != 0 {
		t.Errorf("invalid entries were stored: %+v", entries)
	}
}

func TestScheduler_ManualReminders(t *testing.T) {
	f := newFixture(t, "2024-05-10")
	bank := f.account(t, "Bank", Bank, "100")
	manual := f.schedule(t, ScheduleEntry{
		Description:   "cleaner",
		Amount:        dec("30"),
		Type:          Expense,
		FromAccountID: bank.ID,
		Frequency:     Weekly,
		NextRunDate:   date.New(2024, 5, 6),
		IsManual:      true,
	})
	later := f.schedule(t, ScheduleEntry{
		Description:   "gardener",
		Amount:        dec("20"),
		Type:          Expense,
		FromAccountID: bank.ID,
		Frequency:     OneTime,
		NextRunDate:   date.New(2024, 6, 1),
		IsManual:      true,
	})

	if n, err := f.sched.ProcessDue(f.ctx, date.New(2024, 5, 10)); err != nil || n != 0 {
		t.Errorf("ProcessDue() = %d, %v, manual entries must not run", n, err)
	}
	pending, err := f.sched.PendingManualReminders(f.ctx, date.New(2024, 5, 10))
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != manual.ID {
		t.Fatalf("PendingManualReminders() = %+v, want only %s", pending, manual.ID)
	}

	tx, err := f.sched.Confirm(f.ctx, manual.ID)
	if err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}
	if tx.Date != date.New(2024, 5, 6) {
		t.Errorf("confirmed transaction dated %s, want 2024-05-06", tx.Date)
	}
	f.assertBalance(t, bank, "70")
	if got := f.entry(t, manual.ID).NextRunDate; got != date.New(2024, 5, 13) {
		t.Errorf("NextRunDate = %s, want 2024-05-13", got)
	}
	if _, err := f.sched.Confirm(f.ctx, manual.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("Confirm() of a reminder not due yet error = %v, want ErrValidation", err)
	}
	if _, err := f.sched.Confirm(f.ctx, later.ID); !errors.Is(err, ErrValidation) {
		t.Errorf("Confirm() of a future reminder error = %v, want ErrValidation", err)
	}
	if _, err := f.sched.Confirm(f.ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Confirm(ghost) error = %v, want ErrNotFound", err)
	}
}

func TestScheduler_DeferFutureEntry(t *testing.T) {
	f := newFixture(t, "2024-05-10")
	bank := f.account(t, "Bank", Bank, "100")

	d, err := f.sched.DeferFutureEntry(f.ctx, Intent{Date: date.New(2024, 5, 20), Type: Expense, Amount: dec("25"), FromAccountID: bank.ID, Description: "concert"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Scheduled || d.Entry == nil || d.Transaction != nil {
		t.Fatalf("DeferFutureEntry() = %+v, want a scheduled entry", d)
	}
	if d.Entry.Frequency != OneTime || d.Entry.Type != Expense || d.Entry.NextRunDate != date.New(2024, 5, 20) {
		t.Errorf("deferred entry = %+v", *d.Entry)
	}
	f.assertBalance(t, bank, "100")

	d, err = f.sched.DeferFutureEntry(f.ctx, Intent{Type: Expense, Amount: dec("5"), FromAccountID: bank.ID, Description: "coffee"})
	if err != nil {
		t.Fatal(err)
	}
	if d.Outcome != Applied || d.Transaction == nil || d.Transaction.Date != f.today {
		t.Fatalf("DeferFutureEntry() = %+v, want an applied transaction dated today", d)
	}
	f.assertBalance(t, bank, "95")

	f.today = date.New(2024, 5, 20)
	if n, err := f.sched.ProcessDue(f.ctx, f.today); err != nil || n != 1 {
		t.Fatalf("ProcessDue() = %d, %v, want 1, nil", n, err)
	}
	f.assertBalance(t, bank, "70")
	if entries, _ := f.sched.Entries(f.ctx, ScheduleFilter{}); len(entries) != 0 {
		t.Errorf("deferred entry still scheduled: %+v", entries)
	}

	if _, err := f.sched.DeferFutureEntry(f.ctx, Intent{Date: date.New(2024, 6, 1), Type: Transfer, Amount: dec("5"), FromAccountID: bank.ID}); !errors.Is(err, ErrValidation) {
		t.Errorf("DeferFutureEntry() of an invalid intent error = %v, want ErrValidation", err)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	f := newFixture(t, "2024-05-10")
	bank := f.account(t, "Bank", Bank, "100")
	e := f.schedule(t, ScheduleEntry{Amount: dec("1"), Type: Expense, FromAccountID: bank.ID, Frequency: Daily, NextRunDate: date.New(2024, 5, 11)})
	if err := f.sched.Cancel(f.ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.sched.Cancel(f.ctx, e.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrNotFound", err)
	}
}
