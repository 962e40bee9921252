package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/renderer"
	"github.com/google/subcommands"
)

// scheduleCmd holds the flags for the 'schedule' subcommand.
type scheduleCmd struct {
	intentFlags
	frequency string
	next      string
	manual    bool
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "schedule a recurring transaction" }
func (*scheduleCmd) Usage() string {
	return `wm schedule -f <frequency> -next <date> -t <type> -a <amount> [-from <account>] [-to <account>] [-manual] [-m <description>]

  Schedules a transaction. Frequencies are OneTime, Daily, Weekly, Monthly and
  Yearly. Monthly and yearly entries keep the day of month of their first
  date, clamped to the end of shorter months. Manual entries are reminders:
  they run only when confirmed.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	c.intentFlags.SetFlags(f)
	f.StringVar(&c.frequency, "f", "Monthly", "Frequency.")
	f.StringVar(&c.next, "next", "", "Date of the first occurrence. Defaults to today.")
	f.BoolVar(&c.manual, "manual", false, "Wait for a confirmation instead of running automatically.")
}

func (c *scheduleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	next, err := parseDate(c.next, today())
	if err != nil {
		return usage("invalid next date: %v", err)
	}
	freq, err := wealth.ParseFrequency(c.frequency)
	if err != nil {
		return usage("%v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		in, err := c.intent(ctx, l.Store(), next)
		if err != nil {
			return fail(err)
		}
		e, err := wealth.NewScheduler(l).Schedule(ctx, wealth.ScheduleEntry{
			Description:   in.Description,
			Amount:        in.Amount,
			Type:          in.Type,
			FromAccountID: in.FromAccountID,
			ToAccountID:   in.ToAccountID,
			Frequency:     freq,
			NextRunDate:   next,
			IsManual:      c.manual,
			Category:      in.Category,
			Notes:         in.Notes,
		})
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Entry %s scheduled, next run on %s\n", e.ID, e.NextRunDate)
		return subcommands.ExitSuccess
	})
}

// scheduledCmd lists schedule entries.
type scheduledCmd struct {
	account string
}

func (*scheduledCmd) Name() string     { return "scheduled" }
func (*scheduledCmd) Synopsis() string { return "list scheduled transactions" }
func (*scheduledCmd) Usage() string {
	return `wm scheduled [-a <account>]

  Lists schedule entries by next run date.
`
}

func (c *scheduledCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "a", "", "Only entries of this account (name or id).")
}

func (c *scheduledCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		id, err := resolveAccountID(ctx, l.Store(), c.account)
		if err != nil {
			return fail(err)
		}
		entries, err := wealth.NewScheduler(l).Entries(ctx, wealth.ScheduleFilter{AccountID: id})
		if err != nil {
			return fail(err)
		}
		accounts, err := l.Store().Accounts(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderSchedule("Schedule", entries, accounts))
		return subcommands.ExitSuccess
	})
}

// cancelCmd deletes a schedule entry.
type cancelCmd struct{}

func (*cancelCmd) Name() string     { return "cancel" }
func (*cancelCmd) Synopsis() string { return "cancel a scheduled transaction" }
func (*cancelCmd) Usage() string {
	return `wm cancel <entry id>

  Deletes a schedule entry without running it.
`
}

func (*cancelCmd) SetFlags(f *flag.FlagSet) {}

func (*cancelCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("cancel requires exactly one entry id")
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		if err := wealth.NewScheduler(l).Cancel(ctx, f.Arg(0)); err != nil {
			return fail(err)
		}
		fmt.Printf("Entry %s cancelled\n", f.Arg(0))
		return subcommands.ExitSuccess
	})
}

// runCmd runs the due automatic entries and the auto-funding.
type runCmd struct {
	date string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run due scheduled transactions and auto-funding" }
func (*runCmd) Usage() string {
	return `wm run [-d <date>]

  Records every occurrence of the automatic schedule entries due on or before
  the date, including missed ones, then funds the auto-funded sinking funds
  not yet funded this month. Running it twice records nothing more.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Run as of this date. Defaults to today.")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := parseDate(c.date, today())
	if err != nil {
		return usage("invalid date: %v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		n, funded, err := runDaily(ctx, l, asOf)
		fmt.Printf("%d scheduled transactions recorded, %d sinking funds funded\n", n, len(funded))
		if err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	})
}

// remindersCmd lists due manual entries.
type remindersCmd struct {
	date string
}

func (*remindersCmd) Name() string     { return "reminders" }
func (*remindersCmd) Synopsis() string { return "list manual entries waiting for confirmation" }
func (*remindersCmd) Usage() string {
	return `wm reminders [-d <date>]

  Lists the manual schedule entries due on or before the date.
`
}

func (c *remindersCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Due date. Defaults to today.")
}

func (c *remindersCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := parseDate(c.date, today())
	if err != nil {
		return usage("invalid date: %v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		entries, err := wealth.NewScheduler(l).PendingManualReminders(ctx, asOf)
		if err != nil {
			return fail(err)
		}
		accounts, err := l.Store().Accounts(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderSchedule("Reminders", entries, accounts))
		return subcommands.ExitSuccess
	})
}

// confirmCmd runs a due manual entry.
type confirmCmd struct{}

func (*confirmCmd) Name() string     { return "confirm" }
func (*confirmCmd) Synopsis() string { return "confirm a reminder" }
func (*confirmCmd) Usage() string {
	return `wm confirm <entry id>

  Records the due occurrence of a manual entry and moves it to its next date.
`
}

func (*confirmCmd) SetFlags(f *flag.FlagSet) {}

func (*confirmCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("confirm requires exactly one entry id")
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		t, err := wealth.NewScheduler(l).Confirm(ctx, f.Arg(0))
		if err != nil {
			return fail(err)
		}
		fmt.Printf("Transaction %s recorded on %s\n", t.ID, t.Date)
		return subcommands.ExitSuccess
	})
}
