package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/renderer"
	"github.com/google/subcommands"
)

type networthCmd struct {
	subtotals string
}

func (*networthCmd) Name() string     { return "networth" }
func (*networthCmd) Synopsis() string { return "display the net worth and liquid assets" }
func (*networthCmd) Usage() string {
	return `wm networth [-subtotals <currency>]

  Displays the net worth of the active accounts included in it, converted to
  the base currency, and the liquid assets. Subtotals per account type cover
  the accounts held in one currency, unconverted.
`
}

func (c *networthCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.subtotals, "subtotals", "", "Currency of the subtotals. Defaults to the base currency.")
}

func (c *networthCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		agg := wealth.NewAggregator(l)
		nw, err := agg.NetWorth(ctx, c.subtotals)
		if err != nil {
			return fail(err)
		}
		liquid, err := agg.LiquidAssets(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderNetWorth(nw, liquid))
		return subcommands.ExitSuccess
	})
}

type goalsCmd struct {
	date string
}

func (*goalsCmd) Name() string     { return "goals" }
func (*goalsCmd) Synopsis() string { return "display sinking fund progress" }
func (*goalsCmd) Usage() string {
	return `wm goals [-d <date>]

  Displays, for every sinking fund with a goal, the monthly requirement and
  whether it is ahead, on track or behind the expected balance.
`
}

func (c *goalsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Date of the progress. Defaults to today.")
}

func (c *goalsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := parseDate(c.date, today())
	if err != nil {
		return usage("invalid date: %v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		goals, err := wealth.NewAggregator(l).Goals(ctx, asOf)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderGoals(goals))
		return subcommands.ExitSuccess
	})
}

type autofundCmd struct {
	date string
}

func (*autofundCmd) Name() string     { return "autofund" }
func (*autofundCmd) Synopsis() string { return "fund the auto-funded sinking funds" }
func (*autofundCmd) Usage() string {
	return `wm autofund [-d <date>]

  Posts the monthly Virtual Funding of every auto-funded sinking fund that
  has not been funded since the first day of the month.
`
}

func (c *autofundCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", "", "Funding date. Defaults to today.")
}

func (c *autofundCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf, err := parseDate(c.date, today())
	if err != nil {
		return usage("invalid date: %v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		funded, err := wealth.NewAggregator(l).AutoFund(ctx, asOf)
		accounts, aerr := l.Store().Accounts(ctx)
		if aerr != nil {
			return fail(aerr)
		}
		printMarkdown(renderer.RenderTransactions("Auto-funding", funded, accounts))
		if err != nil {
			return fail(err)
		}
		return subcommands.ExitSuccess
	})
}

type statementCmd struct {
	start  string
	end    string
	period string
}

func (*statementCmd) Name() string     { return "statement" }
func (*statementCmd) Synopsis() string { return "display the statement of an account" }
func (*statementCmd) Usage() string {
	return `wm statement [-p <period> | -s <start_date>] [-d <end_date>] <account>

  Displays the transactions of an account with a running balance. Scheduled
  transactions up to the end date are shown as projected lines. Defaults to
  the last month.
`
}

func (c *statementCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.period, "p", "", "Predefined period (day, week, month, quarter, year) ending on the end date.")
	f.StringVar(&c.start, "s", "", "The start date of the statement.")
	f.StringVar(&c.end, "d", "", "The end date of the statement.")
}

func (c *statementCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("statement requires exactly one account")
	}
	var window date.Range
	var err error
	if c.period != "" {
		end, err := parseDate(c.end, today())
		if err != nil {
			return usage("invalid end date: %v", err)
		}
		period, err := date.ParsePeriod(c.period)
		if err != nil {
			return usage("%v", err)
		}
		window = date.NewRange(end, period)
	} else if c.start != "" || c.end != "" {
		if window.From, err = parseDate(c.start, today().AddMonths(-1, 0).Add(1)); err != nil {
			return usage("invalid start date: %v", err)
		}
		if window.To, err = parseDate(c.end, today()); err != nil {
			return usage("invalid end date: %v", err)
		}
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		a, err := resolveAccount(ctx, l.Store(), f.Arg(0))
		if err != nil {
			return fail(err)
		}
		st, err := wealth.NewAggregator(l).Statement(ctx, a.ID, window)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderStatement(st))
		return subcommands.ExitSuccess
	})
}

type budgetCmd struct {
	month string
}

func (*budgetCmd) Name() string     { return "budget" }
func (*budgetCmd) Synopsis() string { return "display the monthly budgets" }
func (*budgetCmd) Usage() string {
	return `wm budget [-m <YYYY-MM>]

  Displays the expenses of the month per category against their budget.
`
}

func (c *budgetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.month, "m", "", "Month. Defaults to the current month.")
}

func (c *budgetCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	month := today()
	if c.month != "" {
		m, err := date.Parse(c.month + "-01")
		if err != nil {
			return usage("invalid month %q: %v", c.month, err)
		}
		month = m
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		budgets, err := wealth.NewAggregator(l).Budgets(ctx, month)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderBudgets(month.Format("2006-01"), l.BaseCurrency(), budgets))
		return subcommands.ExitSuccess
	})
}

type auditCmd struct{}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "check balances against the transactions" }
func (*auditCmd) Usage() string {
	return `wm audit

  Checks that every account balance equals its opening balance plus the
  effects of its transactions.
`
}

func (*auditCmd) SetFlags(f *flag.FlagSet) {}

func (*auditCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		if err := l.Audit(ctx); err != nil {
			return fail(err)
		}
		fmt.Println("All balances are consistent")
		return subcommands.ExitSuccess
	})
}
