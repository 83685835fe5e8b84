/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the working-time engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store (refuses to run without WAL + foreign keys)
  3. Build the engine: calendar, rebuilder, services, reports, rollover
  4. Configure HTTP router and rollover scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port       HTTP server port (default: 8080)
  -db         SQLite database path (default: worktime.db)
              Use ":memory:" for an in-memory database
  -tz         Time zone all dates live in (default: Europe/Berlin)
  -carryover  Vacation carry-over policy: capped5 | unlimited
  -conflict   Entry conflict policy: delete_entries | reject_approval
  -scheduler  Enable the automatic year-end close (default: true)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Stop the rollover scheduler
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/worktime.db"

  # Strict tenant: approvals fail instead of deleting entries
  ./server -conflict=reject_approval

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/warp/worktime-engine/absence"
	"github.com/warp/worktime-engine/api"
	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/store/sqlite"
	"github.com/warp/worktime-engine/tracking"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "worktime.db", "SQLite database path")
	tzName := flag.String("tz", "Europe/Berlin", "time zone all dates are interpreted in")
	carryover := flag.String("carryover", string(engine.CarryoverCapped), "vacation carry-over policy: capped5 | unlimited")
	conflict := flag.String("conflict", string(engine.ConflictDeleteEntries), "entry conflict policy: delete_entries | reject_approval")
	withScheduler := flag.Bool("scheduler", true, "run the automatic year-end close")
	pretty := flag.Bool("pretty", true, "human-readable log output")
	flag.Parse()

	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	loc, err := time.LoadLocation(*tzName)
	if err != nil {
		log.Fatal().Str("tz", *tzName).Err(err).Msg("unknown time zone")
	}
	cfg := engine.Config{
		TimeZone:  loc,
		Carryover: engine.CarryoverPolicy(*carryover),
		Conflict:  engine.ConflictPolicy(*conflict),
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Str("db", *dbPath).Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Engine assembly.
	clock := cfg.Clock()
	year := clock.Today().Year()
	oracle := engine.GermanNationwideOracle(year-2, year-1, year, year+1)
	cal := engine.NewCalendar(store, oracle)
	rebuilder := engine.NewRebuilder(store, cal, clock)
	audit := store.AuditLog()
	notifier := logNotifier{}

	users := tracking.NewUserService(store, rebuilder, cfg, clock, audit)
	entries := tracking.NewEntryService(store, rebuilder, audit)
	corrections := tracking.NewCorrectionService(store, rebuilder, audit)
	absences := absence.NewService(store, cal, rebuilder, cfg, clock, audit, notifier)
	reports := engine.NewReports(store, rebuilder, clock)
	rollover := engine.NewRollover(store, cfg, clock, audit, notifier)

	handler := api.NewHandler(api.Deps{
		Store:       store,
		Users:       users,
		Entries:     entries,
		Corrections: corrections,
		Absences:    absences,
		Reports:     reports,
		Rollover:    rollover,
		Calendar:    cal,
		Config:      cfg,
		Clock:       clock,
		Audit:       audit,
		Reset:       store,
	})
	router := api.NewRouter(handler)

	scheduler := api.NewRolloverScheduler(rollover, clock)
	scheduler.Enabled = *withScheduler
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Str("tz", *tzName).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// logNotifier writes notifications to the log. Swap in a mail or chat
// integration here when one exists.
type logNotifier struct{}

func (logNotifier) Emit(ctx context.Context, userID engine.UserID, kind string, payload map[string]any) {
	log.Info().Str("user", string(userID)).Str("kind", kind).Fields(payload).Msg("notification")
}
