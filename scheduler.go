package wealth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/internal/logger"
)

// Scheduler executes schedule entries through the Ledger when they fall due.
type Scheduler struct {
	ledger *Ledger
}

// NewScheduler returns a Scheduler posting through l.
func NewScheduler(l *Ledger) *Scheduler { return &Scheduler{ledger: l} }

// Schedule records a new entry. The transaction type is required, and the
// entry must describe a valid transaction between existing accounts.
func (s *Scheduler) Schedule(ctx context.Context, e ScheduleEntry) (ScheduleEntry, error) {
	const op = "schedule"
	if e.Type == "" {
		return ScheduleEntry{}, validationf(op, "transaction type is missing")
	}
	f, err := ParseFrequency(string(e.Frequency))
	if err != nil {
		return ScheduleEntry{}, validationf(op, "%v", err)
	}
	e.Frequency = f
	if e.NextRunDate.IsZero() {
		return ScheduleEntry{}, validationf(op, "next run date is missing")
	}
	e.Description = strings.TrimSpace(e.Description)
	if strings.TrimSpace(e.Category) == "" {
		e.Category = Uncategorized
	}
	if e.AnchorDay <= 0 {
		e.AnchorDay = e.NextRunDate.Day()
	}
	if err := e.Intent().Validate(); err != nil {
		return ScheduleEntry{}, withOp(err, op)
	}
	e.ID = s.ledger.newID()
	err = s.ledger.atomic(ctx, func(tx Tx) error {
		if err := checkAccounts(ctx, tx, e.FromAccountID, e.ToAccountID); err != nil {
			return withOp(err, op)
		}
		return tx.InsertScheduleEntry(ctx, e)
	})
	if err != nil {
		return ScheduleEntry{}, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("entry_id", e.ID).Str("frequency", string(e.Frequency)).Stringer("next_run", e.NextRunDate).Msg("entry scheduled")
	return e, nil
}

// checkAccounts verifies that the given non-empty account ids exist.
func checkAccounts(ctx context.Context, tx Tx, ids ...string) error {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := tx.Account(ctx, id); err != nil {
			return withAccount(err, id)
		}
	}
	return nil
}

// Entries returns the schedule entries matching f, soonest first.
func (s *Scheduler) Entries(ctx context.Context, f ScheduleFilter) ([]ScheduleEntry, error) {
	return s.ledger.store.ScheduleEntries(ctx, f)
}

// Cancel deletes a schedule entry without executing it.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	return s.ledger.atomic(ctx, func(tx Tx) error {
		if _, err := tx.ScheduleEntry(ctx, id); err != nil {
			return withOp(err, "cancel")
		}
		return tx.DeleteScheduleEntry(ctx, id)
	})
}

// ProcessDue executes every occurrence of the automatic entries due on or
// before asOf and returns how many transactions were created. Each
// occurrence is applied and its entry advanced in one atomic unit, so a date
// already executed is never executed again. A failing entry is skipped and
// its error joined to the returned error; the others are still processed.
func (s *Scheduler) ProcessDue(ctx context.Context, asOf date.Date) (int, error) {
	log := logger.FromContext(ctx)
	automatic := false
	entries, err := s.ledger.store.ScheduleEntries(ctx, ScheduleFilter{DueBy: asOf, Manual: &automatic})
	if err != nil {
		return 0, err
	}
	var count int
	var errs error
	for _, e := range entries {
		for {
			_, done, err := s.execute(ctx, e.ID, asOf, false)
			if err != nil {
				log.Warn().Err(err).Str("entry_id", e.ID).Str("description", e.Description).Msg("skipping schedule entry")
				errs = errors.Join(errs, fmt.Errorf("schedule entry %s %q: %w", e.ID, e.Description, err))
				break
			}
			if !done {
				break
			}
			count++
		}
	}
	if count > 0 {
		log.Info().Int("count", count).Stringer("as_of", asOf).Msg("scheduled transactions processed")
	}
	return count, errs
}

// execute applies the occurrence of entry id due on its NextRunDate, if that
// is not after asOf, then advances or deletes the entry. It reports whether
// an occurrence was executed.
func (s *Scheduler) execute(ctx context.Context, id string, asOf date.Date, manual bool) (Transaction, bool, error) {
	var t Transaction
	var done bool
	err := s.ledger.atomic(ctx, func(tx Tx) error {
		t, done = Transaction{}, false
		e, err := tx.ScheduleEntry(ctx, id)
		if errors.Is(err, ErrNotFound) && !manual {
			// executed or cancelled concurrently
			return nil
		}
		if err != nil {
			return err
		}
		if e.IsManual != manual || e.NextRunDate.After(asOf) {
			return nil
		}
		in := e.Intent().normalize(e.NextRunDate)
		if in.Type == "" {
			return validationf("execute", "entry has no from-account nor to-account")
		}
		t, err = s.ledger.post(ctx, tx, in, "")
		if err != nil {
			return err
		}
		if next, ok := e.Advance(); ok {
			err = tx.UpdateScheduleEntry(ctx, next)
		} else {
			err = tx.DeleteScheduleEntry(ctx, e.ID)
		}
		if err != nil {
			return err
		}
		done = true
		return nil
	})
	if err != nil {
		return Transaction{}, false, withOp(err, "execute")
	}
	if done {
		log := logger.FromContext(ctx)
		log.Info().Str("entry_id", id).Str("transaction_id", t.ID).Stringer("date", t.Date).Msg("schedule entry executed")
	}
	return t, done, nil
}

// PendingManualReminders returns the manual entries due on or before asOf.
func (s *Scheduler) PendingManualReminders(ctx context.Context, asOf date.Date) ([]ScheduleEntry, error) {
	manual := true
	return s.ledger.store.ScheduleEntries(ctx, ScheduleFilter{DueBy: asOf, Manual: &manual})
}

// Confirm executes the due occurrence of a manual entry, then advances or
// deletes it like ProcessDue does for automatic entries.
func (s *Scheduler) Confirm(ctx context.Context, id string) (Transaction, error) {
	e, err := s.ledger.store.ScheduleEntry(ctx, id)
	if err != nil {
		return Transaction{}, withOp(err, "confirm")
	}
	if !e.IsManual {
		return Transaction{}, validationf("confirm", "entry %q is not a manual reminder", id)
	}
	today := s.ledger.today()
	if e.NextRunDate.After(today) {
		return Transaction{}, validationf("confirm", "entry %q is not due before %s", id, e.NextRunDate)
	}
	t, done, err := s.execute(ctx, id, today, true)
	if err != nil {
		return Transaction{}, withOp(err, "confirm")
	}
	if !done {
		return Transaction{}, Conflict("confirm", "")
	}
	return t, nil
}

// Outcome tells how DeferFutureEntry handled an intent.
type Outcome string

const (
	Scheduled Outcome = "scheduled"
	Applied   Outcome = "applied"
)

// Deferral is the result of DeferFutureEntry. Exactly one of Transaction and
// Entry is set, according to Outcome.
type Deferral struct {
	Outcome     Outcome        `json:"outcome"`
	Transaction *Transaction   `json:"transaction,omitempty"`
	Entry       *ScheduleEntry `json:"entry,omitempty"`
}

// DeferFutureEntry applies the intent now when it is dated today or earlier,
// and records it as a one-time schedule entry when it is dated in the future.
func (s *Scheduler) DeferFutureEntry(ctx context.Context, in Intent) (Deferral, error) {
	today := s.ledger.today()
	in = in.normalize(today)
	if !in.Date.After(today) {
		t, err := s.ledger.Apply(ctx, in)
		if err != nil {
			return Deferral{}, err
		}
		return Deferral{Outcome: Applied, Transaction: &t}, nil
	}
	e, err := s.Schedule(ctx, ScheduleEntry{
		Description:   in.Description,
		Amount:        in.Amount,
		Type:          in.Type,
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Frequency:     OneTime,
		NextRunDate:   in.Date,
		Category:      in.Category,
		Notes:         in.Notes,
	})
	if err != nil {
		return Deferral{}, withOp(err, "defer")
	}
	return Deferral{Outcome: Scheduled, Entry: &e}, nil
}
