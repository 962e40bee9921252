// Package api exposes the ledger as JSON over HTTP.
//
// Amounts are decimal strings or numbers, dates are "YYYY-MM-DD". Errors are
// returned as {"error": "..."} with a status derived from their kind:
// 400 for validation, 404 for unknown ids, 409 for concurrent updates, 500
// otherwise.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/internal/logger"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Server serves the ledger, its scheduler and its aggregator.
type Server struct {
	ledger    *wealth.Ledger
	scheduler *wealth.Scheduler
	agg       *wealth.Aggregator
	log       zerolog.Logger
}

// New returns a server on l. Requests are logged to log.
func New(l *wealth.Ledger, log zerolog.Logger) *Server {
	return &Server{
		ledger:    l,
		scheduler: wealth.NewScheduler(l),
		agg:       wealth.NewAggregator(l),
		log:       log,
	}
}

// Handler returns the router of the server.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.health).Methods("GET")

	r.HandleFunc("/accounts", s.listAccounts).Methods("GET")
	r.HandleFunc("/accounts", s.createAccount).Methods("POST")
	r.HandleFunc("/accounts/{id}", s.getAccount).Methods("GET")
	r.HandleFunc("/accounts/{id}/deactivate", s.deactivateAccount).Methods("POST")
	r.HandleFunc("/accounts/{id}/rate", s.setRate).Methods("PUT")
	r.HandleFunc("/accounts/{id}/statement", s.statement).Methods("GET")
	r.HandleFunc("/accounts/{id}/goal", s.goal).Methods("GET")

	r.HandleFunc("/transactions", s.listTransactions).Methods("GET")
	r.HandleFunc("/transactions", s.addTransaction).Methods("POST")
	r.HandleFunc("/transactions/recent", s.recent).Methods("GET")
	r.HandleFunc("/transactions/{id}", s.getTransaction).Methods("GET")
	r.HandleFunc("/transactions/{id}", s.reverse).Methods("DELETE")
	r.HandleFunc("/batches", s.addBatch).Methods("POST")

	r.HandleFunc("/schedule", s.listSchedule).Methods("GET")
	r.HandleFunc("/schedule", s.schedule).Methods("POST")
	r.HandleFunc("/schedule/run", s.processDue).Methods("POST")
	r.HandleFunc("/schedule/{id}", s.cancel).Methods("DELETE")
	r.HandleFunc("/reminders", s.reminders).Methods("GET")
	r.HandleFunc("/reminders/{id}/confirm", s.confirm).Methods("POST")

	r.HandleFunc("/networth", s.netWorth).Methods("GET")
	r.HandleFunc("/liquid", s.liquid).Methods("GET")
	r.HandleFunc("/goals", s.goals).Methods("GET")
	r.HandleFunc("/autofund", s.autoFund).Methods("POST")
	r.HandleFunc("/budgets", s.budgets).Methods("GET")
	r.HandleFunc("/categories", s.listCategories).Methods("GET")
	r.HandleFunc("/categories", s.createCategory).Methods("POST")
	r.HandleFunc("/audit", s.audit).Methods("GET")
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusOf maps an error kind to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, wealth.ErrValidation), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, wealth.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, wealth.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// errBadRequest marks malformed requests: bad JSON or bad query parameters.
var errBadRequest = errors.New("bad request")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// dateParam parses the query parameter name as a date, or returns def when absent.
func dateParam(r *http.Request, name string, def date.Date) (date.Date, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	d, err := date.Parse(v)
	if err != nil {
		return date.Date{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return d, nil
}

// monthParam parses the query parameter name as "YYYY-MM" or a date.
func monthParam(r *http.Request, name string, def date.Date) (date.Date, error) {
	v := r.URL.Query().Get(name)
	if len(v) == len("2006-01") {
		d, err := date.Parse(v + "-01")
		if err != nil {
			return date.Date{}, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
		}
		return d, nil
	}
	return dateParam(r, name, def)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return n, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "today": s.ledger.Today().String()})
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []wealth.Account
	var err error
	if r.URL.Query().Get("order") == "usage" {
		accounts, err = s.ledger.AccountsByUsage(r.Context())
	} else {
		accounts, err = s.ledger.Store().Accounts(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	n := wealth.DefaultNewAccount()
	if err := decode(r, &n); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.ledger.CreateAccount(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.ledger.Store().Account(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	a, err := s.ledger.Deactivate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) setRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rate decimal.Decimal `json:"rate"`
	}
	if err := decode(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.ledger.SetExchangeRate(r.Context(), mux.Vars(r)["id"], body.Rate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) statement(w http.ResponseWriter, r *http.Request) {
	from, err := dateParam(r, "from", date.Date{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	to, err := dateParam(r, "to", date.Date{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.agg.Statement(r.Context(), mux.Vars(r)["id"], date.Between(from, to))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) goal(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "asOf", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.agg.GoalProgress(r.Context(), mux.Vars(r)["id"], asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := wealth.TxFilter{
		AccountID: q.Get("account"),
		BatchID:   q.Get("batch"),
	}
	if v := q.Get("type"); v != "" {
		t, err := wealth.ParseTxType(v)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		f.Type = t
	}
	var err error
	if f.From, err = dateParam(r, "from", date.Date{}); err != nil {
		writeError(w, r, err)
		return
	}
	if f.To, err = dateParam(r, "to", date.Date{}); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit, err = intParam(r, "limit", 0); err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.Store().Transactions(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// addTransaction applies an intent dated today or earlier, and schedules a
// future dated one as a one-time entry.
func (s *Server) addTransaction(w http.ResponseWriter, r *http.Request) {
	var in wealth.Intent
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := s.scheduler.DeferFutureEntry(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) recent(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.Recent(r.Context(), n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := s.ledger.Store().Transaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// reverse deletes a transaction, and every other leg of its batch.
func (s *Server) reverse(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.Reverse(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) addBatch(w http.ResponseWriter, r *http.Request) {
	var legs []wealth.Intent
	if err := decode(r, &legs); err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.ledger.ApplyBatch(r.Context(), legs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txs)
}

func (s *Server) listSchedule(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := wealth.ScheduleFilter{AccountID: q.Get("account")}
	var err error
	if f.DueBy, err = dateParam(r, "due", date.Date{}); err != nil {
		writeError(w, r, err)
		return
	}
	if v := q.Get("manual"); v != "" {
		manual, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: manual: %v", errBadRequest, err))
			return
		}
		f.Manual = &manual
	}
	entries, err := s.scheduler.Entries(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) schedule(w http.ResponseWriter, r *http.Request) {
	var e wealth.ScheduleEntry
	if err := decode(r, &e); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.scheduler.Schedule(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) cancel(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.Cancel(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// processDue reports the failing entries next to the count: they do not fail
// the request.
func (s *Server) processDue(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "asOf", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.scheduler.ProcessDue(r.Context(), asOf)
	resp := struct {
		Processed int      `json:"processed"`
		Failures  []string `json:"failures,omitempty"`
	}{Processed: n, Failures: failures(err)}
	writeJSON(w, http.StatusOK, resp)
}

// failures lists the errors joined in err.
func failures(err error) []string {
	if err == nil {
		return nil
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var list []string
		for _, e := range j.Unwrap() {
			list = append(list, e.Error())
		}
		return list
	}
	return []string{err.Error()}
}

func (s *Server) reminders(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "asOf", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.scheduler.PendingManualReminders(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) confirm(w http.ResponseWriter, r *http.Request) {
	t, err := s.scheduler.Confirm(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) netWorth(w http.ResponseWriter, r *http.Request) {
	nw, err := s.agg.NetWorth(r.Context(), r.URL.Query().Get("subtotals"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nw)
}

func (s *Server) liquid(w http.ResponseWriter, r *http.Request) {
	v, err := s.agg.LiquidAssets(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"baseCurrency": s.ledger.BaseCurrency(), "total": v})
}

func (s *Server) goals(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "asOf", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	goals, err := s.agg.Goals(r.Context(), asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

func (s *Server) autoFund(w http.ResponseWriter, r *http.Request) {
	asOf, err := dateParam(r, "asOf", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	txs, err := s.agg.AutoFund(r.Context(), asOf)
	resp := struct {
		Funded   []wealth.Transaction `json:"funded"`
		Failures []string             `json:"failures,omitempty"`
	}{Funded: txs, Failures: failures(err)}
	if resp.Funded == nil {
		resp.Funded = []wealth.Transaction{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) budgets(w http.ResponseWriter, r *http.Request) {
	month, err := monthParam(r, "month", s.ledger.Today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := s.agg.Budgets(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	c, err := s.ledger.Store().Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var c wealth.Category
	if err := decode(r, &c); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.ledger.CreateCategory(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	err := s.ledger.Audit(r.Context())
	if err != nil && !errors.Is(err, wealth.ErrConsistency) {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"consistent": err == nil, "failures": failures(err)})
}
