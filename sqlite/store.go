// Package sqlite implements a durable wealth.Store on top of SQLite.
//
// Atomic units are immediate transactions: the write lock is taken when the
// unit begins, so concurrent units touching the same accounts run one after
// the other. Account rows also carry a version checked on every update.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/internal/logger"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store is a wealth.Store persisted in a SQLite database file.
type Store struct {
	db *sql.DB
	queries
}

// Open opens, creating it if needed, the database at path and brings its
// schema up to date.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_txlock=immediate&_busy_timeout=10000&_journal=WAL&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not open database %q: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	log := logger.FromContext(ctx)
	log.Debug().Str("path", path).Msg("database opened")
	return &Store{db: db, queries: queries{db}}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Atomic implements wealth.Store.
func (s *Store) Atomic(ctx context.Context, fn func(wealth.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return busy(err)
	}
	if err := fn(&storeTx{queries{tx}}); err != nil {
		tx.Rollback()
		return err
	}
	return busy(tx.Commit())
}

// busy reports a database locked by another writer as a conflict the
// caller can retry.
func busy(err error) error {
	var e sqlite3.Error
	if errors.As(err, &e) && (e.Code == sqlite3.ErrBusy || e.Code == sqlite3.ErrLocked) {
		return &wealth.Error{Kind: wealth.ErrConflict, Op: "commit", Msg: e.Error()}
	}
	return err
}

func isUnique(err error) bool {
	var e sqlite3.Error
	return errors.As(err, &e) && e.ExtendedCode == sqlite3.ErrConstraintUnique
}

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements wealth.Reader against a querier.
type queries struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// nullable stores empty strings as NULL.
func nullable(s string) sql.NullString { return sql.NullString{String: s, Valid: s != ""} }

const accountColumns = `id, name, type, balance, opening_balance, currency, exchange_rate,
	include_in_net_worth, is_liquid_asset, goal_amount, goal_date, auto_fund_enabled,
	funding_term_months, sort_order, is_active, notes, version`

func scanAccount(row scanner) (wealth.Account, error) {
	var a wealth.Account
	var goal decimal.NullDecimal
	err := row.Scan(&a.ID, &a.Name, &a.Type, &a.Balance, &a.OpeningBalance, &a.Currency, &a.ExchangeRate,
		&a.IncludeInNetWorth, &a.IsLiquidAsset, &goal, &a.GoalDate, &a.AutoFundEnabled,
		&a.FundingTermMonths, &a.SortOrder, &a.IsActive, &a.Notes, &a.Version)
	if goal.Valid {
		a.GoalAmount = &goal.Decimal
	}
	return a, err
}

func (r queries) Account(ctx context.Context, id string) (wealth.Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return wealth.Account{}, wealth.NotFound("get", "account", id)
	}
	return a, err
}

func (r queries) AccountByName(ctx context.Context, name string) (wealth.Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return wealth.Account{}, wealth.NotFound("get", "account", name)
	}
	return a, err
}

func (r queries) Accounts(ctx context.Context) ([]wealth.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY sort_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []wealth.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

const transactionColumns = `seq, id, date, amount, description, type, from_account_id, to_account_id, category, notes, batch_id`

func scanTransaction(row scanner) (wealth.Transaction, error) {
	var t wealth.Transaction
	var from, to, batch sql.NullString
	err := row.Scan(&t.Seq, &t.ID, &t.Date, &t.Amount, &t.Description, &t.Type, &from, &to, &t.Category, &t.Notes, &batch)
	t.FromAccountID, t.ToAccountID, t.BatchID = from.String, to.String, batch.String
	return t, err
}

func (r queries) Transaction(ctx context.Context, id string) (wealth.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return wealth.Transaction{}, wealth.NotFound("get", "transaction", id)
	}
	return t, err
}

func (r queries) Transactions(ctx context.Context, f wealth.TxFilter) ([]wealth.Transaction, error) {
	var where []string
	var args []any
	if f.AccountID != "" {
		where = append(where, "(from_account_id = ? OR to_account_id = ?)")
		args = append(args, f.AccountID, f.AccountID)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.BatchID != "" {
		where = append(where, "batch_id = ?")
		args = append(args, f.BatchID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if f.Limit > 0 {
		query += " ORDER BY date DESC, seq DESC LIMIT ?"
		args = append(args, f.Limit)
	} else {
		query += " ORDER BY date, seq"
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []wealth.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

const scheduleColumns = `id, description, amount, type, from_account_id, to_account_id, frequency,
	next_run_date, anchor_day, is_manual, category, notes`

func scanScheduleEntry(row scanner) (wealth.ScheduleEntry, error) {
	var e wealth.ScheduleEntry
	var from, to sql.NullString
	err := row.Scan(&e.ID, &e.Description, &e.Amount, &e.Type, &from, &to, &e.Frequency,
		&e.NextRunDate, &e.AnchorDay, &e.IsManual, &e.Category, &e.Notes)
	e.FromAccountID, e.ToAccountID = from.String, to.String
	return e, err
}

func (r queries) ScheduleEntry(ctx context.Context, id string) (wealth.ScheduleEntry, error) {
	e, err := scanScheduleEntry(r.q.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedule_entries WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return wealth.ScheduleEntry{}, wealth.NotFound("get", "schedule entry", id)
	}
	return e, err
}

func (r queries) ScheduleEntries(ctx context.Context, f wealth.ScheduleFilter) ([]wealth.ScheduleEntry, error) {
	var where []string
	var args []any
	if !f.DueBy.IsZero() {
		where = append(where, "next_run_date <= ?")
		args = append(args, f.DueBy)
	}
	if f.AccountID != "" {
		where = append(where, "(from_account_id = ? OR to_account_id = ?)")
		args = append(args, f.AccountID, f.AccountID)
	}
	if f.Manual != nil {
		where = append(where, "is_manual = ?")
		args = append(args, *f.Manual)
	}
	query := `SELECT ` + scheduleColumns + ` FROM schedule_entries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY next_run_date, id"
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []wealth.ScheduleEntry
	for rows.Next() {
		e, err := scanScheduleEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r queries) Categories(ctx context.Context) ([]wealth.Category, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, name, type, budget_limit FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var categories []wealth.Category
	for rows.Next() {
		var c wealth.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.BudgetLimit); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// storeTx is the wealth.Tx of a Store.
type storeTx struct {
	queries
}

func (t *storeTx) InsertAccount(ctx context.Context, a wealth.Account) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		a.ID, a.Name, a.Type, a.Balance, a.OpeningBalance, a.Currency, a.ExchangeRate,
		a.IncludeInNetWorth, a.IsLiquidAsset, a.GoalAmount, a.GoalDate, a.AutoFundEnabled,
		a.FundingTermMonths, a.SortOrder, a.IsActive, a.Notes)
	if isUnique(err) {
		return &wealth.Error{Kind: wealth.ErrValidation, Op: "create account", Msg: fmt.Sprintf("account name %q is already used", a.Name)}
	}
	return err
}

func (t *storeTx) UpdateAccount(ctx context.Context, a wealth.Account) (int64, error) {
	res, err := t.q.ExecContext(ctx, `UPDATE accounts SET
			name = ?, type = ?, balance = ?, opening_balance = ?, currency = ?, exchange_rate = ?,
			include_in_net_worth = ?, is_liquid_asset = ?, goal_amount = ?, goal_date = ?,
			auto_fund_enabled = ?, funding_term_months = ?, sort_order = ?, is_active = ?, notes = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		a.Name, a.Type, a.Balance, a.OpeningBalance, a.Currency, a.ExchangeRate,
		a.IncludeInNetWorth, a.IsLiquidAsset, a.GoalAmount, a.GoalDate,
		a.AutoFundEnabled, a.FundingTermMonths, a.SortOrder, a.IsActive, a.Notes,
		a.ID, a.Version)
	if isUnique(err) {
		return 0, &wealth.Error{Kind: wealth.ErrValidation, Op: "update account", Msg: fmt.Sprintf("account name %q is already used", a.Name)}
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		if _, err := t.Account(ctx, a.ID); err != nil {
			return 0, err
		}
		return 0, wealth.Conflict("update", a.ID)
	}
	return a.Version + 1, nil
}

func (t *storeTx) InsertTransaction(ctx context.Context, tr wealth.Transaction) (wealth.Transaction, error) {
	for _, id := range []string{tr.FromAccountID, tr.ToAccountID} {
		if id == "" {
			continue
		}
		if _, err := t.Account(ctx, id); err != nil {
			return wealth.Transaction{}, err
		}
	}
	res, err := t.q.ExecContext(ctx, `INSERT INTO transactions
		(id, date, amount, description, type, from_account_id, to_account_id, category, notes, batch_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.ID, tr.Date, tr.Amount, tr.Description, tr.Type, nullable(tr.FromAccountID), nullable(tr.ToAccountID),
		tr.Category, tr.Notes, nullable(tr.BatchID))
	if err != nil {
		return wealth.Transaction{}, err
	}
	if tr.Seq, err = res.LastInsertId(); err != nil {
		return wealth.Transaction{}, err
	}
	return tr, nil
}

// exec runs a statement that must affect one row, what is ErrNotFound otherwise.
func (t *storeTx) exec(ctx context.Context, op, what, id, query string, args ...any) error {
	res, err := t.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return wealth.NotFound(op, what, id)
	}
	return nil
}

func (t *storeTx) DeleteTransaction(ctx context.Context, id string) error {
	return t.exec(ctx, "delete", "transaction", id, `DELETE FROM transactions WHERE id = ?`, id)
}

func (t *storeTx) InsertScheduleEntry(ctx context.Context, e wealth.ScheduleEntry) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO schedule_entries (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Description, e.Amount, e.Type, nullable(e.FromAccountID), nullable(e.ToAccountID), e.Frequency,
		e.NextRunDate, e.AnchorDay, e.IsManual, e.Category, e.Notes)
	return err
}

func (t *storeTx) UpdateScheduleEntry(ctx context.Context, e wealth.ScheduleEntry) error {
	return t.exec(ctx, "update", "schedule entry", e.ID, `UPDATE schedule_entries SET
			description = ?, amount = ?, type = ?, from_account_id = ?, to_account_id = ?, frequency = ?,
			next_run_date = ?, anchor_day = ?, is_manual = ?, category = ?, notes = ?
		WHERE id = ?`,
		e.Description, e.Amount, e.Type, nullable(e.FromAccountID), nullable(e.ToAccountID), e.Frequency,
		e.NextRunDate, e.AnchorDay, e.IsManual, e.Category, e.Notes, e.ID)
}

func (t *storeTx) DeleteScheduleEntry(ctx context.Context, id string) error {
	return t.exec(ctx, "delete", "schedule entry", id, `DELETE FROM schedule_entries WHERE id = ?`, id)
}

func (t *storeTx) InsertCategory(ctx context.Context, c wealth.Category) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO categories (id, name, type, budget_limit) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Type, c.BudgetLimit)
	if isUnique(err) {
		return &wealth.Error{Kind: wealth.ErrValidation, Op: "create category", Msg: fmt.Sprintf("category %q already exists", c.Name)}
	}
	return err
}

var (
	_ wealth.Store = (*Store)(nil)
	_ wealth.Tx    = (*storeTx)(nil)
)
