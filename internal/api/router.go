package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/skridlevsky/panel-vote/internal/catalog"
	"github.com/skridlevsky/panel-vote/internal/panel"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	Actor *panel.Actor
	// Syncer is reported by the health endpoint when set
	Syncer *catalog.Syncer
	// CORSOrigins lists allowed origins; empty allows all
	CORSOrigins []string
	// RateLimitPerMinute is the per-IP budget across all routes
	RateLimitPerMinute int
}

// RouterResult holds the router and resources that need cleanup
type RouterResult struct {
	Router       *chi.Mux
	RateLimiters *RateLimiters
	Metrics      *Metrics
}

// NewRouter creates and configures the HTTP router.
// Caller must call result.RateLimiters.Stop() on shutdown.
func NewRouter(cfg *RouterConfig) *RouterResult {
	r := chi.NewRouter()

	// Initialize rate limiters and metrics
	rateLimiters := NewRateLimiters(cfg.RateLimitPerMinute)
	metrics := NewMetrics(cfg.Actor.Stats)

	// Middleware stack. CORS answers preflight before rate limiting and auth.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(NewCORSMiddleware(cfg.CORSOrigins))
	r.Use(metrics.Middleware)
	r.Use(rateLimiters.Global.Middleware)

	r.NotFound(NotFoundHandler)
	r.MethodNotAllowed(MethodNotAllowedHandler)

	// Operational endpoints
	r.Get("/api/health", NewHealthHandler(cfg.Actor, cfg.Actor.Stats, cfg.Syncer))
	r.Method("GET", "/metrics", metrics.Handler())

	// Panel API
	h := NewPanelHandler(cfg.Actor, metrics)
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Actor))

		r.Get("/auth", h.Auth)
		r.Post("/approve", h.Approve)
		r.Post("/unapprove", h.Unapprove)
		r.Post("/favorites", h.Favorites)
		r.Post("/submit", h.Submit)

		// Admin
		r.Get("/panelists", h.Panelists)
		r.Post("/remove-panelist", h.RemovePanelist)
		r.Get("/projects", h.Projects)

		// Sync and exports: strict rate limit + concurrency cap
		r.With(rateLimiters.AdminGuard).Get("/projects/sync", h.SyncProjects)
		r.With(rateLimiters.AdminGuard).Get("/panelists/csv", h.PanelistsCSV)
		r.With(rateLimiters.AdminGuard).Get("/projects/csv", h.ProjectsCSV)
	})

	return &RouterResult{
		Router:       r,
		RateLimiters: rateLimiters,
		Metrics:      metrics,
	}
}
