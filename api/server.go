/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*          User management and per-user reads
  /api/time-entries/*   Logged working time
  /api/absences/*       Absence requests and approvals
  /api/corrections/*    Manual balance corrections
  /api/holidays/*       Public holiday calendar
  /api/rollover/*       Year-end close
  /api/admin/*          Audit trail
  /api/scenarios/*      Demo scenarios (dev only)
  /health               Liveness probe

SECURITY NOTE:
  Actor identity comes from the X-Actor-ID header; there is no session
  authentication. Run behind a trusted proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.HealthCheck)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Put("/{id}", h.UpdateUser)
			r.Delete("/{id}", h.DeleteUser)

			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/months/{year}/{month}", h.GetMonthlyReport)
			r.Get("/{id}/years/{year}", h.GetYearOverview)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/days/{date}", h.GetDayBreakdown)
			r.Get("/{id}/entries", h.ListEntries)
			r.Get("/{id}/absences", h.ListUserAbsences)
			r.Get("/{id}/corrections", h.ListCorrections)
			r.Get("/{id}/vacation/{year}", h.GetVacation)
		})

		// Time entry routes
		r.Route("/time-entries", func(r chi.Router) {
			r.Post("/", h.CreateEntry)
			r.Put("/{id}", h.UpdateEntry)
			r.Delete("/{id}", h.DeleteEntry)
		})

		// Absence routes
		r.Route("/absences", func(r chi.Router) {
			r.Post("/", h.CreateAbsence)
			r.Get("/pending", h.PendingAbsences)
			r.Get("/{id}", h.GetAbsence)
			r.Put("/{id}", h.UpdateAbsence)
			r.Post("/{id}/approve", h.ApproveAbsence)
			r.Post("/{id}/reject", h.RejectAbsence)
			r.Delete("/{id}", h.DeleteAbsence)
		})

		// Correction routes
		r.Route("/corrections", func(r chi.Router) {
			r.Post("/", h.CreateCorrection)
			r.Delete("/{id}", h.DeleteCorrection)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.UpsertHolidays)
			r.Post("/refresh", h.RefreshHolidays)
		})

		// Year-end close
		r.Route("/rollover", func(r chi.Router) {
			r.Post("/{year}", h.RunRollover)
			r.Get("/{year}/preview", h.PreviewRollover)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", h.GetAuditLog)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/reset", h.ResetDatabase)
			r.Post("/{id}", h.LoadScenario)
		})
	})

	// Minimal index so a browser hit shows something useful.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Working-Time Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Working-Time Engine API</h1>
<p>All endpoints expect an <code>X-Actor-ID</code> header naming an active user.</p>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/users">/api/users</a> - List users (admin)</li>
<li><a href="/api/absences/pending">/api/absences/pending</a> - Pending absences (admin)</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
<li><a href="/health">/health</a> - Liveness</li>
</ul>
</body>
</html>`))
	})

	return r
}
