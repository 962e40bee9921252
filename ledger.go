package wealth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the engine that applies and reverses transactions against
// account balances. Every balance change happens inside one atomic unit of
// the Store, read and write together, so concurrent postings cannot lose
// updates.
type Ledger struct {
	store        Store
	today        func() date.Date
	newID        func() string
	baseCurrency string
	maxAttempts  int
	retryDelay   time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the function returning the current date.
func WithClock(today func() date.Date) Option { return func(l *Ledger) { l.today = today } }

// WithBaseCurrency sets the currency of new accounts created without one.
func WithBaseCurrency(currency string) Option {
	return func(l *Ledger) { l.baseCurrency = strings.ToUpper(currency) }
}

// WithIDs sets the generator of record ids.
func WithIDs(newID func() string) Option { return func(l *Ledger) { l.newID = newID } }

// WithRetry sets how many times an atomic unit is attempted when it fails
// with ErrConflict, and the delay growing linearly between attempts.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(l *Ledger) { l.maxAttempts, l.retryDelay = attempts, delay }
}

// NewLedger returns a Ledger on top of store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		today:        date.Today,
		newID:        uuid.NewString,
		baseCurrency: "EUR",
		maxAttempts:  5,
		retryDelay:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.maxAttempts < 1 {
		l.maxAttempts = 1
	}
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() Store { return l.store }

// Today returns the ledger's current date.
func (l *Ledger) Today() date.Date { return l.today() }

// BaseCurrency returns the default currency.
func (l *Ledger) BaseCurrency() string { return l.baseCurrency }

// atomic runs fn in one atomic unit, retrying it on ErrConflict.
// fn must not keep state across attempts.
func (l *Ledger) atomic(ctx context.Context, fn func(Tx) error) error {
	var err error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		err = l.store.Atomic(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt == l.maxAttempts {
			break
		}
		log := logger.FromContext(ctx)
		log.Debug().Err(err).Int("attempt", attempt).Msg("retrying after conflict")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * l.retryDelay):
		}
	}
	return err
}

// CreateAccount creates an account whose balance is the opening balance.
func (l *Ledger) CreateAccount(ctx context.Context, n NewAccount) (Account, error) {
	a, err := n.account(l.baseCurrency)
	if err != nil {
		return Account{}, err
	}
	a.ID = l.newID()
	err = l.atomic(ctx, func(tx Tx) error {
		if _, err := tx.AccountByName(ctx, a.Name); err == nil {
			return validationf("create account", "account name %q is already used", a.Name)
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return tx.InsertAccount(ctx, a)
	})
	if err != nil {
		return Account{}, fmt.Errorf("could not create account %q: %w", a.Name, err)
	}
	a.Version = 1
	log := logger.FromContext(ctx)
	log.Info().Str("account_id", a.ID).Str("name", a.Name).Str("type", string(a.Type)).Msg("account created")
	return a, nil
}

// updateAccount loads an account, lets change modify it and writes it back.
func (l *Ledger) updateAccount(ctx context.Context, op, id string, change func(*Account) error) (Account, error) {
	var updated Account
	err := l.atomic(ctx, func(tx Tx) error {
		a, err := tx.Account(ctx, id)
		if err != nil {
			return withOp(err, op)
		}
		if err := change(&a); err != nil {
			return err
		}
		v, err := tx.UpdateAccount(ctx, a)
		if err != nil {
			return err
		}
		a.Version = v
		updated = a
		return nil
	})
	return updated, err
}

// Deactivate soft-deletes an account. Its history is kept and it can no
// longer receive postings.
func (l *Ledger) Deactivate(ctx context.Context, id string) (Account, error) {
	return l.updateAccount(ctx, "deactivate", id, func(a *Account) error {
		a.IsActive = false
		return nil
	})
}

// SetExchangeRate sets the operator-supplied rate of an account's currency.
func (l *Ledger) SetExchangeRate(ctx context.Context, id string, rate decimal.Decimal) (Account, error) {
	if !rate.IsPositive() {
		return Account{}, validationf("set rate", "exchange rate must be positive, got %s", rate)
	}
	return l.updateAccount(ctx, "set rate", id, func(a *Account) error {
		a.ExchangeRate = rate
		return nil
	})
}

// Apply validates the intent, records a transaction and updates the balances
// of the accounts it references, atomically. Intents dated after today are
// rejected: route them through Scheduler.DeferFutureEntry.
func (l *Ledger) Apply(ctx context.Context, in Intent) (Transaction, error) {
	in = in.normalize(l.today())
	if err := l.check(in); err != nil {
		return Transaction{}, withOp(err, "apply")
	}
	var t Transaction
	err := l.atomic(ctx, func(tx Tx) error {
		var err error
		t, err = l.post(ctx, tx, in, "")
		return err
	})
	if err != nil {
		return Transaction{}, withOp(err, "apply")
	}
	return t, nil
}

// ApplyBatch applies the legs as one logical action sharing a batch id.
// Either every leg is recorded or none is.
func (l *Ledger) ApplyBatch(ctx context.Context, legs []Intent) ([]Transaction, error) {
	const op = "apply batch"
	if len(legs) == 0 {
		return nil, validationf(op, "a batch needs at least one leg")
	}
	today := l.today()
	normalized := make([]Intent, len(legs))
	for i, in := range legs {
		normalized[i] = in.normalize(today)
		if err := l.check(normalized[i]); err != nil {
			return nil, fmt.Errorf("leg %d: %w", i+1, withOp(err, op))
		}
	}
	batchID := l.newID()
	var txs []Transaction
	err := l.atomic(ctx, func(tx Tx) error {
		txs = txs[:0]
		for i, in := range normalized {
			t, err := l.post(ctx, tx, in, batchID)
			if err != nil {
				return fmt.Errorf("leg %d: %w", i+1, withOp(err, op))
			}
			txs = append(txs, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

// check validates an intent without touching the store.
func (l *Ledger) check(in Intent) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if in.Date.After(l.today()) {
		return &Error{Kind: ErrValidation, Type: in.Type, Msg: fmt.Sprintf("date %s is in the future, schedule it instead", in.Date)}
	}
	return nil
}

// post records the intent and moves the balances inside tx. The intent must
// already be normalized.
func (l *Ledger) post(ctx context.Context, tx Tx, in Intent, batchID string) (Transaction, error) {
	if err := in.Validate(); err != nil {
		return Transaction{}, err
	}
	for _, e := range in.Effects() {
		if err := adjust(ctx, tx, e, true); err != nil {
			return Transaction{}, withType(err, in.Type)
		}
	}
	t, err := tx.InsertTransaction(ctx, Transaction{
		ID:            l.newID(),
		Date:          in.Date,
		Amount:        in.Amount,
		Description:   in.Description,
		Type:          in.Type,
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		Category:      in.Category,
		Notes:         in.Notes,
		BatchID:       batchID,
	})
	if err != nil {
		return Transaction{}, err
	}
	log := logger.FromContext(ctx)
	log.Debug().
		Str("transaction_id", t.ID).
		Str("type", string(t.Type)).
		Str("amount", t.Amount.String()).
		Str("batch_id", batchID).
		Msg("transaction applied")
	return t, nil
}

// adjust adds the effect's delta to the balance of its account. Postings are
// refused on inactive accounts, reversals are not.
func adjust(ctx context.Context, tx Tx, e Effect, posting bool) error {
	a, err := tx.Account(ctx, e.AccountID)
	if err != nil {
		return withAccount(err, e.AccountID)
	}
	if posting && !a.IsActive {
		return &Error{Kind: ErrValidation, AccountID: a.ID, Msg: fmt.Sprintf("account %q is inactive", a.Name)}
	}
	a.Balance = a.Balance.Add(e.Delta)
	if _, err := tx.UpdateAccount(ctx, a); err != nil {
		return withAccount(err, e.AccountID)
	}
	return nil
}

// Reverse undoes a transaction: the inverse of its effects is applied and the
// record deleted. When the transaction belongs to a batch, every leg of the
// batch is reversed. It returns the reversed legs.
func (l *Ledger) Reverse(ctx context.Context, id string) ([]Transaction, error) {
	var legs []Transaction
	err := l.atomic(ctx, func(tx Tx) error {
		var err error
		legs, err = reverse(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, withOp(err, "reverse")
	}
	log := logger.FromContext(ctx)
	log.Info().Str("transaction_id", id).Int("legs", len(legs)).Msg("transaction reversed")
	return legs, nil
}

func reverse(ctx context.Context, tx Tx, id string) ([]Transaction, error) {
	t, err := tx.Transaction(ctx, id)
	if err != nil {
		return nil, err
	}
	legs := []Transaction{t}
	if t.BatchID != "" {
		legs, err = tx.Transactions(ctx, TxFilter{BatchID: t.BatchID})
		if err != nil {
			return nil, err
		}
		if !slices.ContainsFunc(legs, func(leg Transaction) bool { return leg.ID == t.ID }) {
			return nil, &Error{Kind: ErrConsistency, Msg: fmt.Sprintf("batch %q of transaction %q resolves to %d legs without it", t.BatchID, t.ID, len(legs))}
		}
	}
	for _, leg := range legs {
		for _, e := range leg.Effects() {
			e.Delta = e.Delta.Neg()
			if err := adjust(ctx, tx, e, false); err != nil {
				return nil, withType(err, leg.Type)
			}
		}
		if err := tx.DeleteTransaction(ctx, leg.ID); err != nil {
			return nil, err
		}
	}
	return legs, nil
}

// Recent returns the n most recent transactions, newest first.
func (l *Ledger) Recent(ctx context.Context, n int) ([]Transaction, error) {
	if n <= 0 {
		n = 10
	}
	return l.store.Transactions(ctx, TxFilter{Limit: n})
}

// AccountsByUsage returns the active accounts, the most referenced by
// transactions first, then by name.
func (l *Ledger) AccountsByUsage(ctx context.Context) ([]Account, error) {
	accounts, err := l.store.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := l.store.Transactions(ctx, TxFilter{})
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int)
	for _, t := range txs {
		if t.FromAccountID != "" {
			usage[t.FromAccountID]++
		}
		if t.ToAccountID != "" {
			usage[t.ToAccountID]++
		}
	}
	accounts = slices.DeleteFunc(accounts, func(a Account) bool { return !a.IsActive })
	slices.SortStableFunc(accounts, func(a, b Account) int {
		if c := cmp.Compare(usage[b.ID], usage[a.ID]); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return accounts, nil
}

// Audit checks that every balance equals its opening balance plus the
// effects of the transactions referencing the account. Drift is reported
// as ErrConsistency.
func (l *Ledger) Audit(ctx context.Context) error {
	return l.store.Atomic(ctx, func(tx Tx) error {
		accounts, err := tx.Accounts(ctx)
		if err != nil {
			return err
		}
		txs, err := tx.Transactions(ctx, TxFilter{})
		if err != nil {
			return err
		}
		expected := make(map[string]decimal.Decimal, len(accounts))
		for _, a := range accounts {
			expected[a.ID] = a.OpeningBalance
		}
		for _, t := range txs {
			for _, e := range t.Effects() {
				expected[e.AccountID] = expected[e.AccountID].Add(e.Delta)
			}
		}
		var errs error
		for _, a := range accounts {
			if !a.Balance.Equal(expected[a.ID]) {
				errs = errors.Join(errs, &Error{Kind: ErrConsistency, Op: "audit", AccountID: a.ID,
					Msg: fmt.Sprintf("balance %s differs from opening balance plus postings %s", a.Balance, expected[a.ID])})
			}
		}
		return errs
	})
}

// CreateCategory records a category. Names are unique.
func (l *Ledger) CreateCategory(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return Category{}, validationf("create category", "category name is missing")
	}
	t, err := ParseCategoryType(string(c.Type))
	if err != nil {
		return Category{}, validationf("create category", "%v", err)
	}
	c.Type = t
	if c.BudgetLimit.IsNegative() {
		return Category{}, validationf("create category", "budget limit cannot be negative")
	}
	c.ID = l.newID()
	if err := l.atomic(ctx, func(tx Tx) error { return tx.InsertCategory(ctx, c) }); err != nil {
		return Category{}, err
	}
	return c, nil
}
