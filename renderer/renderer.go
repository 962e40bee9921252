// Package renderer turns ledger reports into markdown documents.
//
// Documents are text/templates embedded from the templates directory. A
// main template can depend on partials, each parsed under its own name.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/etnz/wealth"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.md
var templates embed.FS

var funcs = template.FuncMap{
	"money": func(amount decimal.Decimal, currency string) string { return wealth.FormatMoney(amount, currency) },
	"cell":  cell,
	"deref": func(d *decimal.Decimal) decimal.Decimal {
		if d == nil {
			return decimal.Zero
		}
		return *d
	},
	"check": func(b bool) string {
		if b {
			return "✓"
		}
		return ""
	},
}

// cell escapes a value for use inside a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Funcs(funcs).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		// An empty file name is a valid case, resulting in an empty template.
		if file != "" {
			content, err = fs.ReadFile(templates, "templates/"+file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}

// names resolves account ids to account names in templates.
type names map[string]string

func newNames(accounts []wealth.Account) names {
	n := make(names, len(accounts))
	for _, a := range accounts {
		n[a.ID] = a.Name
	}
	return n
}

// Of returns the name of the account id, the id itself when unknown, and an
// empty string for an empty id.
func (n names) Of(id string) string {
	if name, ok := n[id]; ok {
		return cell(name)
	}
	return id
}

// RenderAccounts renders the list of accounts.
func RenderAccounts(accounts []wealth.Account) string {
	return renderTemplate("accounts", "accounts.md", nil, struct{ Accounts []wealth.Account }{accounts})
}

// RenderAccount renders the details of one account.
func RenderAccount(a wealth.Account) string {
	return renderTemplate("account", "account.md", nil, a)
}

// RenderStatement renders an account statement.
func RenderStatement(s wealth.Statement) string {
	return renderTemplate("statement", "statement.md", nil, s)
}

// RenderNetWorth renders the net worth, its subtotals and the liquid assets.
func RenderNetWorth(nw wealth.NetWorth, liquid decimal.Decimal) string {
	partials := map[string]string{
		"networth_subtotals": "networth_subtotals.md",
	}
	return renderTemplate("networth", "networth.md", partials, struct {
		wealth.NetWorth
		Liquid decimal.Decimal
	}{nw, liquid})
}

// RenderGoals renders the progress of sinking fund goals.
func RenderGoals(goals []wealth.GoalProgress) string {
	return renderTemplate("goals", "goals.md", nil, struct{ Goals []wealth.GoalProgress }{goals})
}

// RenderTransactions renders transactions under a title. Accounts resolve
// the names of the accounts involved.
func RenderTransactions(title string, txs []wealth.Transaction, accounts []wealth.Account) string {
	return renderTemplate("transactions", "transactions.md", nil, struct {
		Title        string
		Transactions []wealth.Transaction
		Names        names
	}{title, txs, newNames(accounts)})
}

// RenderSchedule renders schedule entries under a title.
func RenderSchedule(title string, entries []wealth.ScheduleEntry, accounts []wealth.Account) string {
	return renderTemplate("schedule", "schedule.md", nil, struct {
		Title   string
		Entries []wealth.ScheduleEntry
		Names   names
	}{title, entries, newNames(accounts)})
}

// RenderBudgets renders the budgets of a month in the given currency.
func RenderBudgets(month string, currency string, budgets []wealth.Budget) string {
	return renderTemplate("budgets", "budgets.md", nil, struct {
		Month    string
		Currency string
		Budgets  []wealth.Budget
	}{month, currency, budgets})
}
