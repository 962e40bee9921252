package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/renderer"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// parseAmount parses an optional decimal flag, defaulting to zero.
func parseAmount(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return d, nil
}

// openCmd holds the flags for the 'open' subcommand.
type openCmd struct {
	typ       string
	opening   string
	currency  string
	rate      string
	netWorth  bool
	liquid    bool
	goal      string
	goalDate  string
	autoFund  bool
	termMonth int
	sortOrder int
	notes     string
}

func (*openCmd) Name() string     { return "open" }
func (*openCmd) Synopsis() string { return "create an account" }
func (*openCmd) Usage() string {
	return `wm open -t <type> [-b <opening balance>] [-c <currency>] [-goal <amount> -by <date> [-auto -term <months>]] <name>

  Creates an account whose balance is the opening balance. Types are Bank,
  CreditCard, Custodial, SinkingFund, Loan, Investment and Receivable.
`
}

func (c *openCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "t", "Bank", "Account type.")
	f.StringVar(&c.opening, "b", "0", "Opening balance. Debts (credit cards, loans) are negative.")
	f.StringVar(&c.currency, "c", "", "Currency. Defaults to the base currency.")
	f.StringVar(&c.rate, "rate", "", "Base currency units per unit of the account currency. Defaults to 1.")
	f.BoolVar(&c.netWorth, "networth", wealth.DefaultNewAccount().IncludeInNetWorth, "Include the account in the net worth.")
	f.BoolVar(&c.liquid, "liquid", false, "Count the account as a liquid asset.")
	f.StringVar(&c.goal, "goal", "", "Goal amount of a sinking fund.")
	f.StringVar(&c.goalDate, "by", "", "Goal date of a sinking fund.")
	f.BoolVar(&c.autoFund, "auto", false, "Fund the sinking fund automatically every month.")
	f.IntVar(&c.termMonth, "term", 0, "Funding term of a sinking fund, in months.")
	f.IntVar(&c.sortOrder, "sort", 0, "Display order.")
	f.StringVar(&c.notes, "notes", "", "Free form notes.")
}

func (c *openCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("open requires exactly one account name")
	}
	typ, err := wealth.ParseAccountType(c.typ)
	if err != nil {
		return usage("%v", err)
	}
	opening, err := parseAmount("opening balance", c.opening)
	if err != nil {
		return usage("%v", err)
	}
	rate, err := parseAmount("rate", c.rate)
	if err != nil {
		return usage("%v", err)
	}
	n := wealth.NewAccount{
		Name:              f.Arg(0),
		Type:              typ,
		OpeningBalance:    opening,
		Currency:          c.currency,
		ExchangeRate:      rate,
		IncludeInNetWorth: c.netWorth,
		IsLiquidAsset:     c.liquid,
		AutoFundEnabled:   c.autoFund,
		FundingTermMonths: c.termMonth,
		SortOrder:         c.sortOrder,
		Notes:             c.notes,
	}
	if c.goal != "" {
		goal, err := parseAmount("goal", c.goal)
		if err != nil {
			return usage("%v", err)
		}
		n.GoalAmount = &goal
	}
	if n.GoalDate, err = parseDate(c.goalDate, date.Date{}); err != nil {
		return usage("invalid goal date: %v", err)
	}

	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		a, err := l.CreateAccount(ctx, n)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderAccount(a))
		return subcommands.ExitSuccess
	})
}

// accountsCmd lists accounts.
type accountsCmd struct {
	usage bool
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list accounts" }
func (*accountsCmd) Usage() string {
	return `wm accounts [-usage]

  Lists all accounts in display order, or the active ones by how often they are used.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.usage, "usage", false, "List active accounts, most used first.")
}

func (c *accountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		var accounts []wealth.Account
		var err error
		if c.usage {
			accounts, err = l.AccountsByUsage(ctx)
		} else {
			accounts, err = l.Store().Accounts(ctx)
		}
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderAccounts(accounts))
		return subcommands.ExitSuccess
	})
}

// accountCmd shows one account.
type accountCmd struct{}

func (*accountCmd) Name() string     { return "account" }
func (*accountCmd) Synopsis() string { return "show an account" }
func (*accountCmd) Usage() string {
	return `wm account <name or id>

  Shows the details of an account.
`
}

func (*accountCmd) SetFlags(f *flag.FlagSet) {}

func (*accountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("account requires exactly one account")
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		a, err := resolveAccount(ctx, l.Store(), f.Arg(0))
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderAccount(a))
		return subcommands.ExitSuccess
	})
}

// closeCmd deactivates an account.
type closeCmd struct{}

func (*closeCmd) Name() string     { return "close" }
func (*closeCmd) Synopsis() string { return "deactivate an account" }
func (*closeCmd) Usage() string {
	return `wm close <name or id>

  Deactivates an account. It keeps its history but receives no new postings.
`
}

func (*closeCmd) SetFlags(f *flag.FlagSet) {}

func (*closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("close requires exactly one account")
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		a, err := resolveAccount(ctx, l.Store(), f.Arg(0))
		if err != nil {
			return fail(err)
		}
		if a, err = l.Deactivate(ctx, a.ID); err != nil {
			return fail(err)
		}
		fmt.Printf("Account %q deactivated\n", a.Name)
		return subcommands.ExitSuccess
	})
}

// rateCmd sets the exchange rate of one account.
type rateCmd struct{}

func (*rateCmd) Name() string     { return "rate" }
func (*rateCmd) Synopsis() string { return "set the exchange rate of an account" }
func (*rateCmd) Usage() string {
	return `wm rate <name or id> <rate>

  Sets the number of base currency units per unit of the account currency.
`
}

func (*rateCmd) SetFlags(f *flag.FlagSet) {}

func (*rateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return usage("rate requires an account and a rate")
	}
	rate, err := decimal.NewFromString(f.Arg(1))
	if err != nil {
		return usage("invalid rate %q: %v", f.Arg(1), err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		a, err := resolveAccount(ctx, l.Store(), f.Arg(0))
		if err != nil {
			return fail(err)
		}
		if a, err = l.SetExchangeRate(ctx, a.ID, rate); err != nil {
			return fail(err)
		}
		fmt.Printf("1 %s = %s %s\n", a.Currency, a.ExchangeRate, l.BaseCurrency())
		return subcommands.ExitSuccess
	})
}

// categoryCmd creates or lists categories.
type categoryCmd struct {
	typ   string
	limit string
}

func (*categoryCmd) Name() string     { return "category" }
func (*categoryCmd) Synopsis() string { return "create or list categories" }
func (*categoryCmd) Usage() string {
	return `wm category [-t <type>] [-limit <monthly budget>] [<name>]

  Creates a category, or lists them without a name. Types are Expense,
  Income, Fund and Receivable. Expense categories can carry a monthly budget.
`
}

func (c *categoryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.typ, "t", "Expense", "Category type.")
	f.StringVar(&c.limit, "limit", "", "Monthly budget limit.")
}

func (c *categoryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		return usage("category takes at most one name")
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		if f.NArg() == 0 {
			categories, err := l.Store().Categories(ctx)
			if err != nil {
				return fail(err)
			}
			for _, cat := range categories {
				if cat.BudgetLimit.IsPositive() {
					fmt.Printf("%s\t%s\t%s\n", cat.Name, cat.Type, wealth.FormatMoney(cat.BudgetLimit, l.BaseCurrency()))
				} else {
					fmt.Printf("%s\t%s\n", cat.Name, cat.Type)
				}
			}
			return subcommands.ExitSuccess
		}
		typ, err := wealth.ParseCategoryType(c.typ)
		if err != nil {
			return usage("%v", err)
		}
		limit, err := parseAmount("limit", c.limit)
		if err != nil {
			return usage("%v", err)
		}
		cat, err := l.CreateCategory(ctx, wealth.Category{Name: f.Arg(0), Type: typ, BudgetLimit: limit})
		if err != nil {
			return fail(err)
		}
		fmt.Fprintf(os.Stdout, "Category %q created\n", cat.Name)
		return subcommands.ExitSuccess
	})
}
