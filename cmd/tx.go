package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/renderer"
	"github.com/google/subcommands"
)

// intentFlags are the flags describing a transaction, shared by 'post' and 'schedule'.
type intentFlags struct {
	typ      string
	amount   string
	from     string
	to       string
	desc     string
	category string
	notes    string
}

func (p *intentFlags) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.typ, "t", "Expense", "Transaction type: Expense, Virtual Expense, Income, Refund, Virtual Funding, Transfer or Increase Loan.")
	f.StringVar(&p.amount, "a", "", "Amount, strictly positive.")
	f.StringVar(&p.from, "from", "", "Account the money leaves (name or id).")
	f.StringVar(&p.to, "to", "", "Account the money enters (name or id).")
	f.StringVar(&p.desc, "m", "", "Description.")
	f.StringVar(&p.category, "c", "", "Category.")
	f.StringVar(&p.notes, "notes", "", "Free form notes.")
}

// intent builds the intent described by the flags, resolving account names.
func (p *intentFlags) intent(ctx context.Context, r wealth.Reader, on date.Date) (wealth.Intent, error) {
	typ, err := wealth.ParseTxType(p.typ)
	if err != nil {
		return wealth.Intent{}, &wealth.Error{Kind: wealth.ErrValidation, Msg: err.Error()}
	}
	amount, err := parseAmount("amount", p.amount)
	if err != nil {
		return wealth.Intent{}, &wealth.Error{Kind: wealth.ErrValidation, Msg: err.Error()}
	}
	in := wealth.Intent{
		Date:        on,
		Amount:      amount,
		Description: p.desc,
		Type:        typ,
		Category:    p.category,
		Notes:       p.notes,
	}
	if in.FromAccountID, err = resolveAccountID(ctx, r, p.from); err != nil {
		return wealth.Intent{}, err
	}
	if in.ToAccountID, err = resolveAccountID(ctx, r, p.to); err != nil {
		return wealth.Intent{}, err
	}
	return in, nil
}

// postCmd holds the flags for the 'post' subcommand.
type postCmd struct {
	intentFlags
	date string
}

func (*postCmd) Name() string     { return "post" }
func (*postCmd) Synopsis() string { return "record a transaction" }
func (*postCmd) Usage() string {
	return `wm post [-d <date>] -t <type> -a <amount> [-from <account>] [-to <account>] [-m <description>] [-c <category>]

  Records a transaction and updates the balances of its accounts. A
  transaction dated in the future is scheduled to run once on that date.
`
}

func (p *postCmd) SetFlags(f *flag.FlagSet) {
	p.intentFlags.SetFlags(f)
	f.StringVar(&p.date, "d", "", "Transaction date. Defaults to today.")
}

func (p *postCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	on, err := parseDate(p.date, today())
	if err != nil {
		return usage("invalid date: %v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		in, err := p.intent(ctx, l.Store(), on)
		if err != nil {
			return fail(err)
		}
		d, err := wealth.NewScheduler(l).DeferFutureEntry(ctx, in)
		if err != nil {
			return fail(err)
		}
		switch d.Outcome {
		case wealth.Applied:
			fmt.Printf("Transaction %s recorded on %s\n", d.Transaction.ID, d.Transaction.Date)
		case wealth.Scheduled:
			fmt.Printf("Transaction scheduled on %s as entry %s\n", d.Entry.NextRunDate, d.Entry.ID)
		}
		return subcommands.ExitSuccess
	})
}

// batchCmd applies several legs at once.
type batchCmd struct {
	file string
}

func (*batchCmd) Name() string     { return "batch" }
func (*batchCmd) Synopsis() string { return "record several transactions atomically" }
func (*batchCmd) Usage() string {
	return `wm batch [-f <file>]

  Records a batch of transactions read as a JSON array, or as one JSON object
  per line, from a file or the standard input. Either every leg is recorded
  or none is. Accounts can be referred to by name or id.

  {"date":"2024-03-01","type":"Expense","amount":"12.5","fromAccountId":"Card","description":"lunch"}
`
}

func (c *batchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "-", "File to read, - for the standard input.")
}

// decodeIntents decodes a JSON array of intents or a stream of JSON intents.
func decodeIntents(r io.Reader) ([]wealth.Intent, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	var legs []wealth.Intent
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &legs); err != nil {
			return nil, fmt.Errorf("invalid batch: %w", err)
		}
		return legs, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var in wealth.Intent
		if err := dec.Decode(&in); err != nil {
			return nil, fmt.Errorf("invalid leg %d: %w", len(legs), err)
		}
		legs = append(legs, in)
	}
	return legs, nil
}

func (c *batchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var r io.Reader = os.Stdin
	if c.file != "-" {
		file, err := os.Open(c.file)
		if err != nil {
			return fail(err)
		}
		defer file.Close()
		r = file
	}
	legs, err := decodeIntents(r)
	if err != nil {
		return usage("%v", err)
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		for i := range legs {
			if legs[i].FromAccountID, err = resolveAccountID(ctx, l.Store(), legs[i].FromAccountID); err != nil {
				return fail(fmt.Errorf("leg %d: %w", i, err))
			}
			if legs[i].ToAccountID, err = resolveAccountID(ctx, l.Store(), legs[i].ToAccountID); err != nil {
				return fail(fmt.Errorf("leg %d: %w", i, err))
			}
		}
		txs, err := l.ApplyBatch(ctx, legs)
		if err != nil {
			return fail(err)
		}
		accounts, err := l.Store().Accounts(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderTransactions("Batch "+txs[0].BatchID, txs, accounts))
		return subcommands.ExitSuccess
	})
}

// reverseCmd deletes a transaction and undoes its effects.
type reverseCmd struct{}

func (*reverseCmd) Name() string     { return "reverse" }
func (*reverseCmd) Synopsis() string { return "delete a transaction and undo its effects" }
func (*reverseCmd) Usage() string {
	return `wm reverse <transaction id>

  Deletes a transaction and restores the balances of its accounts. Every
  other leg of its batch is reversed with it.
`
}

func (*reverseCmd) SetFlags(f *flag.FlagSet) {}

func (*reverseCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usage("reverse requires exactly one transaction id")
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		txs, err := l.Reverse(ctx, f.Arg(0))
		if err != nil {
			return fail(err)
		}
		accounts, err := l.Store().Accounts(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderTransactions("Reversed", txs, accounts))
		return subcommands.ExitSuccess
	})
}

type txCmd struct {
	account string
	typ     string
	start   string
	end     string
	tail    int
}

func (*txCmd) Name() string     { return "tx" }
func (*txCmd) Synopsis() string { return "list transactions" }
func (*txCmd) Usage() string {
	return `wm tx [-a <account>] [-t <type>] [-s <start_date>] [-d <end_date>] [-tail <n>]

  Lists transactions in chronological order. Without filters, lists the
  most recent ones.
`
}

func (p *txCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.account, "a", "", "Only transactions of this account (name or id).")
	f.StringVar(&p.typ, "t", "", "Only transactions of this type.")
	f.StringVar(&p.start, "s", "", "The start date of the range.")
	f.StringVar(&p.end, "d", "", "The end date of the range.")
	f.IntVar(&p.tail, "tail", 10, "Without filters, the number of recent transactions to show.")
}

func (p *txCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var err error
	var filter wealth.TxFilter
	if filter.From, err = parseDate(p.start, date.Date{}); err != nil {
		return usage("invalid start date: %v", err)
	}
	if filter.To, err = parseDate(p.end, date.Date{}); err != nil {
		return usage("invalid end date: %v", err)
	}
	if p.typ != "" {
		if filter.Type, err = wealth.ParseTxType(p.typ); err != nil {
			return usage("%v", err)
		}
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		if filter.AccountID, err = resolveAccountID(ctx, l.Store(), p.account); err != nil {
			return fail(err)
		}
		var txs []wealth.Transaction
		title := "Transactions"
		if filter == (wealth.TxFilter{}) {
			title = "Recent transactions"
			txs, err = l.Recent(ctx, p.tail)
		} else {
			txs, err = l.Store().Transactions(ctx, filter)
		}
		if err != nil {
			return fail(err)
		}
		accounts, err := l.Store().Accounts(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(renderer.RenderTransactions(title, txs, accounts))
		return subcommands.ExitSuccess
	})
}
