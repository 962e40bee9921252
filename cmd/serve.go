package cmd

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etnz/wealth"
	"github.com/etnz/wealth/api"
	"github.com/etnz/wealth/date"
	"github.com/etnz/wealth/internal/logger"
	"github.com/google/subcommands"
)

// runDaily runs the due schedule entries, then the auto-funding, as of asOf.
// Both are idempotent for a given date, so it is safe to run more than once.
func runDaily(ctx context.Context, l *wealth.Ledger, asOf date.Date) (int, []wealth.Transaction, error) {
	n, serr := wealth.NewScheduler(l).ProcessDue(ctx, asOf)
	funded, ferr := wealth.NewAggregator(l).AutoFund(ctx, asOf)
	return n, funded, errors.Join(serr, ferr)
}

// untilMidnight returns the time left before the next midnight after now.
func untilMidnight(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return midnight.Sub(now)
}

// daily calls runDaily now, then every midnight until ctx is done.
func daily(ctx context.Context, l *wealth.Ledger) {
	log := logger.FromContext(ctx)
	for {
		n, funded, err := runDaily(ctx, l, l.Today())
		if err != nil {
			log.Warn().Err(err).Msg("daily run had failures")
		}
		wait := untilMidnight(time.Now())
		log.Info().Int("scheduled", n).Int("funded", len(funded)).Dur("next_run_in", wait).Msg("daily run done")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Small delay so that the clock is surely on the new day.
			time.Sleep(time.Second)
		}
	}
}

// startDaily runs daily in the background. The returned function waits for
// it to return, which it does once ctx is done.
func startDaily(ctx context.Context, l *wealth.Ledger) (wait func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		daily(ctx, l)
	}()
	return func() { <-done }
}

type serveCmd struct {
	addr string
	tick bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the ledger over HTTP" }
func (*serveCmd) Usage() string {
	return `wm serve [-addr <address>] [-tick=false]

  Serves the ledger as a JSON API. Unless disabled, runs the due scheduled
  transactions and the auto-funding at start-up and every midnight.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	f.StringVar(&c.addr, "addr", addr, "Address to listen on (env PORT).")
	f.BoolVar(&c.tick, "tick", true, "Run the scheduler every day.")
}

func (c *serveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.FromContext(ctx)

	return withLedger(ctx, func(l *wealth.Ledger) subcommands.ExitStatus {
		// The daily run must be over before the store is closed.
		wait := func() {}
		if c.tick {
			wait = startDaily(ctx, l)
		}
		defer wait()
		defer stop()
		srv := &http.Server{
			Addr:         c.addr,
			Handler:      api.New(l, log).Handler(),
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdown)
		}()

		log.Info().Str("addr", c.addr).Str("db", *dbPath).Msg("serving ledger")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fail(err)
		}
		return subcommands.ExitSuccess
	})
}
