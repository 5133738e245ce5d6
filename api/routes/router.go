package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendorhub/leadrouter-backend/api/controllers"
	"github.com/vendorhub/leadrouter-backend/api/middleware"
	"github.com/vendorhub/leadrouter-backend/internal/assignment"
	"github.com/vendorhub/leadrouter-backend/internal/capacity"
	"github.com/vendorhub/leadrouter-backend/internal/groups"
	"github.com/vendorhub/leadrouter-backend/internal/leads"
	"github.com/vendorhub/leadrouter-backend/internal/policy"
	"github.com/vendorhub/leadrouter-backend/pkg/config"
	"github.com/vendorhub/leadrouter-backend/pkg/db"
	"github.com/vendorhub/leadrouter-backend/pkg/enums"
	"github.com/vendorhub/leadrouter-backend/pkg/logger"
	"github.com/vendorhub/leadrouter-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DBPinger    db.Pinger
	Redis       *redis.Client
	Leads       leads.Service
	Groups      groups.Service
	Ledger      capacity.Ledger
	Policies    policy.Service
	Coordinator assignment.Service
	Registry    prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	intakePolicy := middleware.NewIntakeRateLimitPolicy(
		"intake",
		cfg.Intake.Window,
		cfg.Intake.IPLimit,
	)
	// A typed nil client must not reach the middleware as a non-nil interface.
	rateLimit := func(next http.Handler) http.Handler { return next }
	if d.Redis != nil {
		rateLimit = middleware.IntakeRateLimit(intakePolicy, d.Redis, logg)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.DBPinger, d.Redis, logg))
	})

	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.With(rateLimit).
			Post("/leads", controllers.IntakeLead(d.Leads, d.Coordinator, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		adminOnly := middleware.RequireRole(enums.AdminRoleAdmin.String(), logg)

		r.Route("/leads", func(r chi.Router) {
			r.Post("/", controllers.CreateLead(d.Leads, logg))
			r.Get("/", controllers.ListLeads(d.Leads, logg))
			r.Route("/{leadId}", func(r chi.Router) {
				r.Get("/", controllers.GetLead(d.Leads, logg))
				r.Get("/assignments", controllers.ListLeadAssignments(d.Coordinator, logg))
				r.Post("/assign", controllers.AssignLead(d.Coordinator, logg))
				r.Post("/manual-assign", controllers.ManualAssignLead(d.Coordinator, logg))
				r.Post("/reject", controllers.RejectLead(d.Coordinator, logg))
				r.Post("/reassign", controllers.ReassignLead(d.Coordinator, logg))
				r.Post("/complete", controllers.CompleteLead(d.Coordinator, logg))
			})
		})

		r.Route("/groups", func(r chi.Router) {
			r.Post("/", controllers.CreateGroup(d.Groups, logg))
			r.Get("/", controllers.ListGroups(d.Groups, logg))
			r.Route("/{groupId}", func(r chi.Router) {
				r.Get("/", controllers.GetGroup(d.Groups, logg))
				r.With(adminOnly).Delete("/", controllers.DeleteGroup(d.Groups, logg))
				r.Post("/activate", controllers.ActivateGroup(d.Groups, logg))
				r.Post("/members", controllers.AddGroupMember(d.Groups, logg))
				r.Delete("/members/{vendorId}", controllers.RemoveGroupMember(d.Groups, logg))
				r.Post("/reassign-all", controllers.ReassignAllGroup(d.Coordinator, logg))
			})
		})

		r.Route("/packages/{vendorId}", func(r chi.Router) {
			r.Get("/", controllers.GetPackage(d.Ledger, logg))
			r.Get("/leads", controllers.ListVendorLeads(d.Leads, logg))
			r.Post("/add-leads", controllers.AddPackageLeads(d.Ledger, logg))
			r.Post("/pause", controllers.PausePackage(d.Ledger, logg))
			r.Post("/resume", controllers.ResumePackage(d.Ledger, logg))
		})

		r.Route("/policies", func(r chi.Router) {
			r.With(adminOnly).Put("/", controllers.SetPolicy(d.Policies, logg))
			r.Get("/", controllers.GetPolicy(d.Policies, logg))
		})
	})

	return r
}
