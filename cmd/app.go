// Package cmd implements the wm command line application to manage a
// personal ledger.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/sqlite"
	"github.com/google/subcommands"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&openCmd{}, "accounts")
	c.Register(&accountsCmd{}, "accounts")
	c.Register(&accountCmd{}, "accounts")
	c.Register(&closeCmd{}, "accounts")
	c.Register(&rateCmd{}, "accounts")
	c.Register(&ratesCmd{}, "accounts")
	c.Register(&categoryCmd{}, "accounts")

	c.Register(&postCmd{}, "transactions")
	c.Register(&batchCmd{}, "transactions")
	c.Register(&reverseCmd{}, "transactions")
	c.Register(&txCmd{}, "transactions")

	c.Register(&scheduleCmd{}, "schedule")
	c.Register(&scheduledCmd{}, "schedule")
	c.Register(&cancelCmd{}, "schedule")
	c.Register(&runCmd{}, "schedule")
	c.Register(&remindersCmd{}, "schedule")
	c.Register(&confirmCmd{}, "schedule")

	c.Register(&networthCmd{}, "reports")
	c.Register(&goalsCmd{}, "reports")
	c.Register(&autofundCmd{}, "reports")
	c.Register(&statementCmd{}, "reports")
	c.Register(&budgetCmd{}, "reports")
	c.Register(&auditCmd{}, "reports")

	c.Register(&serveCmd{}, "server")
	c.Register(&topicCmd{}, "help")
}

// Environment variables holding the defaults of the global flags. They are
// also passed to extensions.
const (
	EnvDB           = "WM_DB"
	EnvBaseCurrency = "WM_BASE_CURRENCY"
	EnvLogLevel     = "WM_LOG_LEVEL"
	// EnvToday overrides the current date, for reproducible runs.
	EnvToday = "WM_TODAY"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var dbPath = flag.String("db", getenv(EnvDB, "wealth.db"), "Path to the SQLite ledger database (env "+EnvDB+")")
var baseCurrency = flag.String("base", getenv(EnvBaseCurrency, "EUR"), "Base currency of net worth and new accounts (env "+EnvBaseCurrency+")")

// LogLevel is the level of the logger set up by the main package.
var LogLevel = flag.String("log-level", getenv(EnvLogLevel, "info"), "Log level: debug, info, warn or error (env "+EnvLogLevel+")")

// envToday returns the date set in the environment, or the zero date when
// none is set.
func envToday() (date.Date, error) {
	v := os.Getenv(EnvToday)
	if v == "" {
		return date.Date{}, nil
	}
	d, err := date.Parse(v)
	if err != nil {
		return date.Date{}, fmt.Errorf("invalid %s %q: %w", EnvToday, v, err)
	}
	return d, nil
}

// CheckEnv reports invalid settings in the environment.
func CheckEnv() error {
	_, err := envToday()
	return err
}

// today returns the current date, unless overridden by the environment.
// An invalid override is reported by CheckEnv.
func today() date.Date {
	if d, err := envToday(); err == nil && !d.IsZero() {
		return d
	}
	return date.Today()
}

// openLedger opens the database and returns the ledger on it. The caller
// must close the store.
func openLedger(ctx context.Context) (*wealth.Ledger, *sqlite.Store, error) {
	store, err := sqlite.Open(ctx, *dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open ledger %q: %w", *dbPath, err)
	}
	l := wealth.NewLedger(store, wealth.WithClock(today), wealth.WithBaseCurrency(*baseCurrency))
	return l, store, nil
}

// withLedger opens the ledger, runs fn and closes the ledger.
func withLedger(ctx context.Context, fn func(*wealth.Ledger) subcommands.ExitStatus) subcommands.ExitStatus {
	if err := CheckEnv(); err != nil {
		return usage("%v", err)
	}
	l, store, err := openLedger(ctx)
	if err != nil {
		return fail(err)
	}
	defer store.Close()
	return fn(l)
}

// Exit statuses beyond the subcommands ones, one per error kind.
const (
	ExitNotFound    subcommands.ExitStatus = 3
	ExitConflict    subcommands.ExitStatus = 4
	ExitConsistency subcommands.ExitStatus = 5
)

// exitStatus maps an error kind to an exit status.
func exitStatus(err error) subcommands.ExitStatus {
	switch {
	case err == nil:
		return subcommands.ExitSuccess
	case errors.Is(err, wealth.ErrValidation):
		return subcommands.ExitUsageError
	case errors.Is(err, wealth.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, wealth.ErrConflict):
		return ExitConflict
	case errors.Is(err, wealth.ErrConsistency):
		return ExitConsistency
	default:
		return subcommands.ExitFailure
	}
}

// fail prints err and returns its exit status.
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return exitStatus(err)
}

// usage prints a usage error.
func usage(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}

// printMarkdown renders markdown for the terminal, or prints it as is if
// the rendering fails.
func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

// resolveAccount finds an account by id, or else by name.
func resolveAccount(ctx context.Context, r wealth.Reader, ref string) (wealth.Account, error) {
	if ref == "" {
		return wealth.Account{}, &wealth.Error{Kind: wealth.ErrValidation, Msg: "account is missing"}
	}
	a, err := r.Account(ctx, ref)
	if errors.Is(err, wealth.ErrNotFound) {
		return r.AccountByName(ctx, ref)
	}
	return a, err
}

// resolveAccountID is resolveAccount for optional account references.
func resolveAccountID(ctx context.Context, r wealth.Reader, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	a, err := resolveAccount(ctx, r, ref)
	return a.ID, err
}

// parseDate parses an optional date flag, defaulting to def.
func parseDate(s string, def date.Date) (date.Date, error) {
	if s == "" {
		return def, nil
	}
	return date.Parse(s)
}
