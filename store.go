package wealth

import "context"

// Reader gives read access to the persisted state.
type Reader interface {
	Account(ctx context.Context, id string) (Account, error)
	AccountByName(ctx context.Context, name string) (Account, error)
	Accounts(ctx context.Context) ([]Account, error)

	Transaction(ctx context.Context, id string) (Transaction, error)
	// Transactions returns matching transactions in chronological order, or
	// the Limit most recent ones newest first when Limit is set.
	Transactions(ctx context.Context, f TxFilter) ([]Transaction, error)

	ScheduleEntry(ctx context.Context, id string) (ScheduleEntry, error)
	// ScheduleEntries returns matching entries ordered by NextRunDate.
	ScheduleEntries(ctx context.Context, f ScheduleFilter) ([]ScheduleEntry, error)

	Categories(ctx context.Context) ([]Category, error)
}

// Tx is an atomic unit of work against the store. Reads through a Tx see its
// own writes. Lookups of unknown ids fail with ErrNotFound.
type Tx interface {
	Reader

	// InsertAccount assigns no id: the caller sets it. Names are unique.
	InsertAccount(ctx context.Context, a Account) error
	// UpdateAccount writes a, provided the stored version still equals
	// a.Version, and returns the new version. A moved version is ErrConflict.
	UpdateAccount(ctx context.Context, a Account) (int64, error)

	// InsertTransaction stores t and returns it with Seq assigned.
	InsertTransaction(ctx context.Context, t Transaction) (Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	InsertScheduleEntry(ctx context.Context, e ScheduleEntry) error
	UpdateScheduleEntry(ctx context.Context, e ScheduleEntry) error
	DeleteScheduleEntry(ctx context.Context, id string) error

	InsertCategory(ctx context.Context, c Category) error
}

// Store is the persistence contract of the ledger. Reads outside Atomic
// eventually reflect the latest committed state.
type Store interface {
	Reader
	// Atomic runs fn in one atomic unit: every write of fn is committed when
	// fn returns nil and none is when it returns an error.
	Atomic(ctx context.Context, fn func(Tx) error) error
}
