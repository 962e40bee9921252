// Package wealth tracks personal financial accounts and the transactions
// that move value between them.
//
// The core functionalities include:
//   - Ledger: applying and reversing transactions against account balances
//     according to a fixed effect per transaction type, including multi-leg
//     batches that are recorded and reversed as a whole.
//   - Scheduler: recurring and future-dated transactions, executed once per
//     due date, and manual reminders waiting for confirmation.
//   - Aggregator: net worth, liquid assets, sinking fund goal progress and
//     monthly auto-funding, budgets and account statements.
//   - Store: the repository contract the components persist through, with an
//     in-memory implementation. The sqlite package provides a durable one.
//
// Every balance change happens inside one atomic unit of the Store, so that
// the balance of an account always equals its opening balance plus the
// effects of the transactions referencing it.
//
// This package serves as the foundational logic for the `wm` command-line
// tool and its HTTP API.
package wealth
