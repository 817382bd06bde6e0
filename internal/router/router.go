package router

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parisxmas/kobodash/internal/auth"
	"github.com/parisxmas/kobodash/internal/handler"
	mw "github.com/parisxmas/kobodash/internal/middleware"
)

type Handlers struct {
	Forms       *handler.FormHandler
	Submissions *handler.SubmissionHandler
	Search      *handler.SearchHandler
	Analytics   *handler.AnalyticsHandler
	Sync        *handler.SyncHandler
	Dashboard   *handler.DashboardHandler
	Admin       *handler.AdminHandler
	Indicators  *handler.IndicatorHandler
	Live        *handler.LiveHandler
}

type Options struct {
	JWTSecret       string
	CORSOrigins     []string
	WebhookUser     string
	WebhookPassHash string
}

func New(opts Options, h Handlers, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestIDs)
	r.Use(mw.Recovery(log))
	r.Use(mw.Logger(log))
	r.Use(mw.CORS(opts.CORSOrigins))

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Dashboard.Health)
		if opts.WebhookPassHash != "" {
			r.With(auth.BasicAuth(opts.WebhookUser, opts.WebhookPassHash)).Post("/webhooks/kobo", h.Sync.Webhook)
		}

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(opts.JWTSecret))

			r.Get("/dashboard", h.Dashboard.Dashboard)
			r.Get("/dashboard/indicators", h.Indicators.Dashboard)

			// Forms
			r.Get("/forms", h.Forms.List)
			r.Get("/forms/{formId}", h.Forms.Get)
			r.Get("/forms/{formId}/fields", h.Forms.Fields)
			r.Get("/forms/{formId}/map-data", h.Analytics.MapData)

			// Submissions
			r.Get("/forms/{formId}/submissions", h.Submissions.List)
			r.Get("/forms/{formId}/submissions/{subId}", h.Submissions.Get)
			r.Post("/forms/{formId}/submissions/search", h.Search.Search)

			// Analytics
			r.Post("/forms/{formId}/analytics", h.Analytics.Analytics)
			r.Post("/charts/bar", h.Analytics.Bar)
			r.Post("/charts/box", h.Analytics.Box)

			// Indicators
			r.Get("/indicators", h.Indicators.List)
			r.Get("/forms/{formId}/indicators", h.Indicators.ForForm)

			// Live updates
			r.Get("/ws/forms/{formId}", h.Live.Form)

			// Admin
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))

				r.Post("/forms", h.Forms.Register)
				r.Delete("/forms/{formId}/data", h.Forms.ClearData)
				r.Post("/forms/{formId}/indicators", h.Indicators.Recompute)
				r.Post("/sync", h.Sync.Trigger)
				r.Get("/sync/logs", h.Sync.Logs)
				r.Get("/sync/status/{formId}", h.Sync.Status)
				r.Post("/admin/compact", h.Admin.Compact)
			})
		})
	})

	return r
}
