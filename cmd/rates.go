package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/etnz/wealth"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type ratesCmd struct {
	url     string
	file    string
	path    string
	inverse bool
	dryRun  bool
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "update exchange rates from a JSON document" }
func (*ratesCmd) Usage() string {
	return `wm rates [-f <file> | -url <url>] [-path <jsonpath>] [-inverse] [-n]

  Reads a JSON document from a file or a URL, extracts an object of currency to rate with a
  JSONPath expression and sets the exchange rate of every active account in
  one of those currencies. Rates are base currency units per unit of the
  currency, or the opposite with -inverse.

  echo '{"base":"EUR","rates":{"USD":1.08}}' | wm rates -path '$.rates' -inverse
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "f", "-", "JSON file to read, - for the standard input.")
	f.StringVar(&c.url, "url", "", "URL of the JSON document. Overrides -f.")
	f.StringVar(&c.path, "path", "$.rates", "JSONPath of the currency to rate object.")
	f.BoolVar(&c.inverse, "inverse", false, "Rates are currency units per base currency unit.")
	f.BoolVar(&c.dryRun, "n", false, "Print the rates without updating the accounts.")
}

// extractRates evaluates path on the JSON document and returns the currency
// to rate object it designates.
func extractRates(r io.Reader, path string) (map[string]decimal.Decimal, error) {
	var doc any
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("error evaluating %q: %w", path, err)
	}
	// jsonpath returns a list when the path has wildcards or filters: keep the first match.
	if list, ok := val.([]any); ok && len(list) > 0 {
		val = list[0]
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%q is not an object of rates: %v", path, val)
	}
	rates := make(map[string]decimal.Decimal, len(obj))
	for cur, v := range obj {
		var rate decimal.Decimal
		switch v := v.(type) {
		case float64:
			rate = decimal.NewFromFloat(v)
		case string:
			if rate, err = decimal.NewFromString(v); err != nil {
				return nil, fmt.Errorf("invalid rate of %s: %w", cur, err)
			}
		default:
			return nil, fmt.Errorf("invalid rate of %s: %v", cur, v)
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("invalid rate of %s: %s is not positive", cur, rate)
		}
		rates[strings.ToUpper(cur)] = rate
	}
	return rates, nil
}

// fetch gets the document at url.
func fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error in GET %q: %w", url, err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("error in GET %q: %s", url, resp.Status)
	}
	return cancelCloser{resp.Body, cancel}, nil
}

// cancelCloser releases the request context when the body is closed.
type cancelCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelCloser) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func (c *ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var r io.Reader = os.Stdin
	if c.url != "" {
		body, err := fetch(ctx, c.url)
		if err != nil {
			return fail(err)
		}
		defer body.Close()
		r = body
	} else if c.file != "-" {
		file, err := os.Open(c.file)
		if err != nil {
			return fail(err)
		}
		defer file.Close()
		r = file
	}
	rates, err := extractRates(r, c.path)
	if err != nil {
		return usage("%v", err)
	}
	if c.inverse {
		for cur, rate := range rates {
			rates[cur] = decimal.NewFromInt(1).DivRound(rate, 8)
		}
	}
	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		accounts, err := l.Store().Accounts(ctx)
		if err != nil {
			return fail(err)
		}
		rates[strings.ToUpper(l.BaseCurrency())] = decimal.NewFromInt(1)
		var updated []string
		for _, a := range accounts {
			rate, ok := rates[a.Currency]
			if !a.IsActive || !ok || rate.Equal(a.ExchangeRate) {
				continue
			}
			if !c.dryRun {
				if _, err := l.SetExchangeRate(ctx, a.ID, rate); err != nil {
					return fail(err)
				}
			}
			updated = append(updated, fmt.Sprintf("%s\t1 %s = %s %s", a.Name, a.Currency, rate, l.BaseCurrency()))
		}
		sort.Strings(updated)
		for _, u := range updated {
			fmt.Println(u)
		}
		fmt.Printf("%d accounts updated\n", len(updated))
		return subcommands.ExitSuccess
	})
}
