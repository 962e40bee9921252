package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/internal/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	handler http.Handler
	logs    *bytes.Buffer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	today := date.New(2024, 3, 15)
	l := wealth.NewLedger(wealth.NewMemoryStore(),
		wealth.WithClock(func() date.Date { return today }),
		wealth.WithBaseCurrency("USD"))
	logs := &bytes.Buffer{}
	return &testServer{handler: New(l, logger.NewWithWriter(logs)).Handler(), logs: logs}
}

// do sends a request with an optional JSON body and decodes the JSON
// response into out when it is not nil.
func (s *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
	}
	return w.Code
}

func (s *testServer) createAccount(t *testing.T, name, typ, opening string) wealth.Account {
	t.Helper()
	var a wealth.Account
	code := s.do(t, "POST", "/accounts", map[string]any{
		"name":              name,
		"type":              typ,
		"openingBalance":    opening,
		"includeInNetWorth": true,
		"isLiquidAsset":     typ == "Bank",
	}, &a)
	require.Equal(t, http.StatusCreated, code)
	return a
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var got map[string]string
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/health", nil, &got))
	assert.Equal(t, "2024-03-15", got["today"])
	assert.Contains(t, s.logs.String(), `"path":"/health"`)
}

func TestAccounts(t *testing.T) {
	s := newTestServer(t)
	bank := s.createAccount(t, "Bank", "Bank", "100")
	assert.NotEmpty(t, bank.ID)
	assert.True(t, bank.Balance.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "USD", bank.Currency)

	var got wealth.Account
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/accounts/"+bank.ID, nil, &got))
	assert.Equal(t, "Bank", got.Name)

	var list []wealth.Account
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/accounts", nil, &list))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusOK, s.do(t, "PUT", "/accounts/"+bank.ID+"/rate", map[string]string{"rate": "1.1"}, &got))
	assert.Equal(t, "1.1", got.ExchangeRate.String())

	assert.Equal(t, http.StatusOK, s.do(t, "POST", "/accounts/"+bank.ID+"/deactivate", nil, &got))
	assert.False(t, got.IsActive)

	var savings wealth.Account
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/accounts", map[string]any{"name": "Savings", "type": "Bank"}, &savings))
	assert.True(t, savings.IncludeInNetWorth, "accounts are included in net worth by default")
	var hidden wealth.Account
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/accounts", map[string]any{"name": "Hidden", "type": "Bank", "includeInNetWorth": false}, &hidden))
	assert.False(t, hidden.IncludeInNetWorth)
}

func TestErrorStatus(t *testing.T) {
	s := newTestServer(t)
	bank := s.createAccount(t, "Bank", "Bank", "100")

	tests := []struct {
		name         string
		method, path string
		body         any
		want         int
	}{
		{"unknown account", "GET", "/accounts/nope", nil, http.StatusNotFound},
		{"missing name", "POST", "/accounts", map[string]any{"type": "Bank"}, http.StatusBadRequest},
		{"duplicate name", "POST", "/accounts", map[string]any{"name": "Bank", "type": "Bank"}, http.StatusBadRequest},
		{"bad json", "POST", "/transactions", "not an intent", http.StatusBadRequest},
		{"bad date", "GET", "/goals?asOf=yesterday", nil, http.StatusBadRequest},
		{"zero amount", "POST", "/transactions", map[string]any{"date": "2024-03-01", "type": "Expense", "fromAccountId": bank.ID, "amount": "0"}, http.StatusBadRequest},
		{"unknown transaction", "DELETE", "/transactions/nope", nil, http.StatusNotFound},
		{"unknown reminder", "POST", "/reminders/nope/confirm", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]string
			code := s.do(t, tt.method, tt.path, tt.body, &body)
			assert.Equal(t, tt.want, code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTransactions(t *testing.T) {
	s := newTestServer(t)
	bank := s.createAccount(t, "Bank", "Bank", "100")
	card := s.createAccount(t, "Card", "CreditCard", "0")

	var d wealth.Deferral
	code := s.do(t, "POST", "/transactions", map[string]any{
		"date": "2024-03-10", "amount": "30", "type": "Expense", "fromAccountId": card.ID, "description": "dinner",
	}, &d)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, wealth.Applied, d.Outcome)
	require.NotNil(t, d.Transaction)

	var future wealth.Deferral
	code = s.do(t, "POST", "/transactions", map[string]any{
		"date": "2024-04-01", "amount": "50", "type": "Expense", "fromAccountId": bank.ID, "description": "rent",
	}, &future)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, wealth.Scheduled, future.Outcome)
	require.NotNil(t, future.Entry)
	assert.Equal(t, wealth.OneTime, future.Entry.Frequency)

	var txs []wealth.Transaction
	code = s.do(t, "POST", "/batches", []map[string]any{
		{"date": "2024-03-12", "amount": "20", "type": "Transfer", "fromAccountId": bank.ID, "toAccountId": card.ID, "description": "pay card"},
		{"date": "2024-03-12", "amount": "5", "type": "Expense", "fromAccountId": bank.ID, "description": "fee"},
	}, &txs)
	require.Equal(t, http.StatusCreated, code)
	require.Len(t, txs, 2)
	assert.NotEmpty(t, txs[0].BatchID)

	var got wealth.Account
	s.do(t, "GET", "/accounts/"+card.ID, nil, &got)
	assert.Equal(t, "-10", got.Balance.String())

	var recent []wealth.Transaction
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/transactions/recent?n=2", nil, &recent))
	assert.Len(t, recent, 2)

	var byAccount []wealth.Transaction
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/transactions?account="+card.ID, nil, &byAccount))
	assert.Len(t, byAccount, 2)

	var reversed []wealth.Transaction
	assert.Equal(t, http.StatusOK, s.do(t, "DELETE", "/transactions/"+txs[1].ID, nil, &reversed))
	assert.Len(t, reversed, 2)
	s.do(t, "GET", "/accounts/"+bank.ID, nil, &got)
	assert.Equal(t, "100", got.Balance.String())
}

func TestScheduleAndReminders(t *testing.T) {
	s := newTestServer(t)
	bank := s.createAccount(t, "Bank", "Bank", "1000")

	var auto, manual wealth.ScheduleEntry
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/schedule", map[string]any{
		"description": "gym", "amount": "30", "type": "Expense", "fromAccountId": bank.ID,
		"frequency": "Monthly", "nextRunDate": "2024-02-01",
	}, &auto))
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/schedule", map[string]any{
		"description": "cleaner", "amount": "40", "type": "Expense", "fromAccountId": bank.ID,
		"frequency": "Weekly", "nextRunDate": "2024-03-14", "isManual": true,
	}, &manual))

	var run struct {
		Processed int      `json:"processed"`
		Failures  []string `json:"failures"`
	}
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/schedule/run", nil, &run))
	assert.Equal(t, 2, run.Processed)
	assert.Empty(t, run.Failures)

	require.Equal(t, http.StatusOK, s.do(t, "POST", "/schedule/run", nil, &run))
	assert.Equal(t, 0, run.Processed)

	var reminders []wealth.ScheduleEntry
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/reminders", nil, &reminders))
	require.Len(t, reminders, 1)
	assert.Equal(t, manual.ID, reminders[0].ID)

	var t1 wealth.Transaction
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/reminders/"+manual.ID+"/confirm", nil, &t1))
	assert.Equal(t, "2024-03-14", t1.Date.String())

	var got wealth.Account
	s.do(t, "GET", "/accounts/"+bank.ID, nil, &got)
	assert.Equal(t, "900", got.Balance.String())

	var entries []wealth.ScheduleEntry
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/schedule?manual=false", nil, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-04-01", entries[0].NextRunDate.String())

	assert.Equal(t, http.StatusNoContent, s.do(t, "DELETE", "/schedule/"+auto.ID, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, "DELETE", "/schedule/"+auto.ID, nil, nil))
}

func TestReports(t *testing.T) {
	s := newTestServer(t)
	bank := s.createAccount(t, "Bank", "Bank", "1000")
	s.createAccount(t, "Loan", "Loan", "-400")

	var fund wealth.Account
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/accounts", map[string]any{
		"name": "Car", "type": "SinkingFund", "includeInNetWorth": true,
		"goalAmount": "1200", "goalDate": "2025-03-15", "autoFundEnabled": true, "fundingTermMonths": 12,
	}, &fund))

	var nw wealth.NetWorth
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/networth", nil, &nw))
	assert.Equal(t, "600", nw.Total.String())
	assert.Equal(t, "USD", nw.BaseCurrency)
	assert.Equal(t, "USD", nw.SubtotalCurrency)
	assert.NotEmpty(t, nw.Subtotals)

	var eur wealth.NetWorth
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/networth?subtotals=eur", nil, &eur))
	assert.Equal(t, "600", eur.Total.String())
	assert.Equal(t, "USD", eur.BaseCurrency)
	assert.Equal(t, "EUR", eur.SubtotalCurrency)
	assert.Empty(t, eur.Subtotals)

	var liquid struct {
		Total decimal.Decimal `json:"total"`
	}
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/liquid", nil, &liquid))
	assert.Equal(t, "1000", liquid.Total.String())

	var funded struct {
		Funded []wealth.Transaction `json:"funded"`
	}
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/autofund", nil, &funded))
	require.Len(t, funded.Funded, 1)
	assert.Equal(t, "100", funded.Funded[0].Amount.String())
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/autofund", nil, &funded))
	assert.Empty(t, funded.Funded)

	var goal wealth.GoalProgress
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/accounts/"+fund.ID+"/goal", nil, &goal))
	assert.Equal(t, "100", goal.Balance.String())

	var goals []wealth.GoalProgress
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/goals", nil, &goals))
	assert.Len(t, goals, 1)

	var c wealth.Category
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/categories", map[string]any{"name": "Food", "type": "Expense", "budgetLimit": "50"}, &c))
	s.do(t, "POST", "/transactions", map[string]any{
		"date": "2024-03-02", "amount": "60", "type": "Expense", "fromAccountId": bank.ID, "category": "Food",
	}, nil)

	var budgets []wealth.Budget
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/budgets?month=2024-03", nil, &budgets))
	require.Len(t, budgets, 1)
	assert.Equal(t, "Food", budgets[0].Category)
	assert.Equal(t, "-10", budgets[0].Remaining.String())

	var st wealth.Statement
	path := fmt.Sprintf("/accounts/%s/statement?from=2024-03-01&to=2024-03-31", bank.ID)
	require.Equal(t, http.StatusOK, s.do(t, "GET", path, nil, &st))
	require.Len(t, st.Lines, 1)
	assert.Equal(t, "1000", st.Opening.String())
	assert.Equal(t, "940", st.Closing.String())

	var from wealth.Statement
	require.Equal(t, http.StatusOK, s.do(t, "GET", fmt.Sprintf("/accounts/%s/statement?from=2024-03-01", bank.ID), nil, &from))
	assert.Equal(t, "2024-03-15", from.Window.To.String())
	assert.Len(t, from.Lines, 1)
	var to wealth.Statement
	require.Equal(t, http.StatusOK, s.do(t, "GET", fmt.Sprintf("/accounts/%s/statement?to=2024-03-15", bank.ID), nil, &to))
	assert.Equal(t, "2024-02-16", to.Window.From.String())
	assert.Len(t, to.Lines, 1)

	var audit struct {
		Consistent bool `json:"consistent"`
	}
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/audit", nil, &audit))
	assert.True(t, audit.Consistent)
}
