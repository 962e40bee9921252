package wealth

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is a Store kept in memory. Atomic units are serialized and
// run against a copy of the state that replaces it only on success.
type MemoryStore struct {
	mu    sync.RWMutex
	state memState
}

type memState struct {
	accounts     map[string]Account
	transactions map[string]Transaction
	schedule     map[string]ScheduleEntry
	categories   map[string]Category
	seq          int64
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memState{
		accounts:     make(map[string]Account),
		transactions: make(map[string]Transaction),
		schedule:     make(map[string]ScheduleEntry),
		categories:   make(map[string]Category),
	}}
}

func (s memState) clone() memState {
	return memState{
		accounts:     maps.Clone(s.accounts),
		transactions: maps.Clone(s.transactions),
		schedule:     maps.Clone(s.schedule),
		categories:   maps.Clone(s.categories),
		seq:          s.seq,
	}
}

// Atomic implements Store.
func (m *MemoryStore) Atomic(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *MemoryStore) read() memState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *MemoryStore) Account(ctx context.Context, id string) (Account, error) {
	return m.read().account(id)
}

func (m *MemoryStore) AccountByName(ctx context.Context, name string) (Account, error) {
	return m.read().accountByName(name)
}

func (m *MemoryStore) Accounts(ctx context.Context) ([]Account, error) {
	return m.read().listAccounts(), nil
}

func (m *MemoryStore) Transaction(ctx context.Context, id string) (Transaction, error) {
	return m.read().transaction(id)
}

func (m *MemoryStore) Transactions(ctx context.Context, f TxFilter) ([]Transaction, error) {
	return m.read().listTransactions(f), nil
}

func (m *MemoryStore) ScheduleEntry(ctx context.Context, id string) (ScheduleEntry, error) {
	return m.read().scheduleEntry(id)
}

func (m *MemoryStore) ScheduleEntries(ctx context.Context, f ScheduleFilter) ([]ScheduleEntry, error) {
	return m.read().listSchedule(f), nil
}

func (m *MemoryStore) Categories(ctx context.Context) ([]Category, error) {
	return m.read().listCategories(), nil
}

// memState readers. The maps of a committed state are never mutated, a
// snapshot taken under the read lock stays valid after it is released.

func (s memState) account(id string) (Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return Account{}, NotFound("get", "account", id)
	}
	return a, nil
}

func (s memState) accountByName(name string) (Account, error) {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Name, name) {
			return a, nil
		}
	}
	return Account{}, NotFound("get", "account", name)
}

func (s memState) listAccounts() []Account {
	accounts := slices.Collect(maps.Values(s.accounts))
	slices.SortFunc(accounts, func(a, b Account) int {
		if c := cmp.Compare(a.SortOrder, b.SortOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return accounts
}

func (s memState) transaction(id string) (Transaction, error) {
	t, ok := s.transactions[id]
	if !ok {
		return Transaction{}, NotFound("get", "transaction", id)
	}
	return t, nil
}

func (s memState) listTransactions(f TxFilter) []Transaction {
	var txs []Transaction
	for _, t := range s.transactions {
		if f.Match(t) {
			txs = append(txs, t)
		}
	}
	slices.SortFunc(txs, lessChronological)
	if f.Limit > 0 {
		slices.Reverse(txs)
		if len(txs) > f.Limit {
			txs = txs[:f.Limit]
		}
	}
	return txs
}

func (s memState) scheduleEntry(id string) (ScheduleEntry, error) {
	e, ok := s.schedule[id]
	if !ok {
		return ScheduleEntry{}, NotFound("get", "schedule entry", id)
	}
	return e, nil
}

func (s memState) listSchedule(f ScheduleFilter) []ScheduleEntry {
	var entries []ScheduleEntry
	for _, e := range s.schedule {
		if f.Match(e) {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b ScheduleEntry) int {
		if c := a.NextRunDate.Compare(b.NextRunDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return entries
}

func (s memState) listCategories() []Category {
	categories := slices.Collect(maps.Values(s.categories))
	slices.SortFunc(categories, func(a, b Category) int { return cmp.Compare(a.Name, b.Name) })
	return categories
}

// memTx is the Tx of a MemoryStore.
type memTx struct {
	state memState
}

func (t *memTx) Account(ctx context.Context, id string) (Account, error) {
	return t.state.account(id)
}

func (t *memTx) AccountByName(ctx context.Context, name string) (Account, error) {
	return t.state.accountByName(name)
}

func (t *memTx) Accounts(ctx context.Context) ([]Account, error) {
	return t.state.listAccounts(), nil
}

func (t *memTx) Transaction(ctx context.Context, id string) (Transaction, error) {
	return t.state.transaction(id)
}

func (t *memTx) Transactions(ctx context.Context, f TxFilter) ([]Transaction, error) {
	return t.state.listTransactions(f), nil
}

func (t *memTx) ScheduleEntry(ctx context.Context, id string) (ScheduleEntry, error) {
	return t.state.scheduleEntry(id)
}

func (t *memTx) ScheduleEntries(ctx context.Context, f ScheduleFilter) ([]ScheduleEntry, error) {
	return t.state.listSchedule(f), nil
}

func (t *memTx) Categories(ctx context.Context) ([]Category, error) {
	return t.state.listCategories(), nil
}

func (t *memTx) InsertAccount(ctx context.Context, a Account) error {
	if _, ok := t.state.accounts[a.ID]; ok {
		return fmt.Errorf("account %q already exists", a.ID)
	}
	if _, err := t.state.accountByName(a.Name); err == nil {
		return validationf("create account", "account name %q is already used", a.Name)
	}
	a.Version = 1
	t.state.accounts[a.ID] = a
	return nil
}

func (t *memTx) UpdateAccount(ctx context.Context, a Account) (int64, error) {
	old, ok := t.state.accounts[a.ID]
	if !ok {
		return 0, NotFound("update", "account", a.ID)
	}
	if old.Version != a.Version {
		return 0, Conflict("update", a.ID)
	}
	for id, other := range t.state.accounts {
		if id != a.ID && strings.EqualFold(other.Name, a.Name) {
			return 0, validationf("update account", "account name %q is already used", a.Name)
		}
	}
	a.Version++
	t.state.accounts[a.ID] = a
	return a.Version, nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr Transaction) (Transaction, error) {
	if _, ok := t.state.transactions[tr.ID]; ok {
		return Transaction{}, fmt.Errorf("transaction %q already exists", tr.ID)
	}
	for _, id := range []string{tr.FromAccountID, tr.ToAccountID} {
		if _, ok := t.state.accounts[id]; id != "" && !ok {
			return Transaction{}, NotFound("insert transaction", "account", id)
		}
	}
	t.state.seq++
	tr.Seq = t.state.seq
	t.state.transactions[tr.ID] = tr
	return tr, nil
}

func (t *memTx) DeleteTransaction(ctx context.Context, id string) error {
	if _, ok := t.state.transactions[id]; !ok {
		return NotFound("delete", "transaction", id)
	}
	delete(t.state.transactions, id)
	return nil
}

func (t *memTx) InsertScheduleEntry(ctx context.Context, e ScheduleEntry) error {
	if _, ok := t.state.schedule[e.ID]; ok {
		return fmt.Errorf("schedule entry %q already exists", e.ID)
	}
	t.state.schedule[e.ID] = e
	return nil
}

func (t *memTx) UpdateScheduleEntry(ctx context.Context, e ScheduleEntry) error {
	if _, ok := t.state.schedule[e.ID]; !ok {
		return NotFound("update", "schedule entry", e.ID)
	}
	t.state.schedule[e.ID] = e
	return nil
}

func (t *memTx) DeleteScheduleEntry(ctx context.Context, id string) error {
	if _, ok := t.state.schedule[id]; !ok {
		return NotFound("delete", "schedule entry", id)
	}
	delete(t.state.schedule, id)
	return nil
}

func (t *memTx) InsertCategory(ctx context.Context, c Category) error {
	for _, other := range t.state.categories {
		if strings.EqualFold(other.Name, c.Name) {
			return validationf("create category", "category %q already exists", c.Name)
		}
	}
	t.state.categories[c.ID] = c
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
