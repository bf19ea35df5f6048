package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Harshitk-cp/trustfuse/internal/api/handlers"
	mw "github.com/Harshitk-cp/trustfuse/internal/api/middleware"
	"github.com/Harshitk-cp/trustfuse/internal/buildconfig"
	"github.com/Harshitk-cp/trustfuse/internal/config"
	"github.com/Harshitk-cp/trustfuse/internal/domain"
	"github.com/Harshitk-cp/trustfuse/internal/service"
	"github.com/Harshitk-cp/trustfuse/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router    *chi.Mux
	Ageing    *service.AgeingService
	metrics   *mw.MetricsCollector
	startTime time.Time
}

// SessionDefaults builds the defaults for new sessions and stateless
// requests from the environment.
func SessionDefaults() (service.SessionDefaults, error) {
	terms, err := config.RevisionTerms()
	if err != nil {
		return service.SessionDefaults{}, err
	}
	return service.SessionDefaults{
		FusionType:    config.FusionType(),
		RevisionTerms: terms,
		Options: service.RevisionOptions{
			Shares:                  config.SharePolicy(),
			Reference:               config.ReferencePolicy(),
			ScaleByTrustUncertainty: config.ScaleByTrustUncertainty(),
		},
		PriorWeight: config.DirichletWeight(),
		AgeingRate:  config.TrustAgeingRate(),
	}, nil
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	defaults, err := SessionDefaults()
	if err != nil {
		// config.Load validates the same value, so this only happens when
		// the environment changed after startup.
		logger.Warn("invalid revision terms, using built-in defaults", zap.Error(err))
		defaults = service.DefaultSessionDefaults()
	}

	// Stores
	tenantStore := store.NewTenantStore(db)
	sessionStore := store.NewSessionStore(db)

	// Services
	sessionSvc := service.NewSessionService(sessionStore, defaults, logger)
	ageingSvc := service.NewAgeingService(sessionStore, logger)
	ageingSvc.SetInterval(config.AgeingInterval())

	// Handlers
	tenantHandler := handlers.NewTenantHandler(tenantStore)
	opinionHandler := handlers.NewOpinionHandler(defaults)
	dirichletHandler := handlers.NewDirichletHandler(defaults.PriorWeight)
	sessionHandler := handlers.NewSessionHandler(sessionSvc)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Ageing:    ageingSvc,
		metrics:   mw.NewMetricsCollector(),
		startTime: time.Now(),
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.metrics.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health and metrics (no auth)
	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	// Tenant creation (no auth, bootstrap endpoint)
	r.Post("/v1/tenants", tenantHandler.Create)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(tenantStore))

		// Stateless opinion algebra
		r.Route("/opinions", func(r chi.Router) {
			r.Post("/fuse", opinionHandler.Fuse)
			r.Post("/conflict", opinionHandler.Conflict)
			r.Post("/discount", opinionHandler.Discount)
			r.Post("/unfuse", opinionHandler.Unfuse)
			r.Post("/barycentric", opinionHandler.Barycentric)
			r.Post("/trusted-fuse", opinionHandler.TrustedFuse)
		})

		r.Route("/dirichlet", func(r chi.Router) {
			r.Post("/update", dirichletHandler.Update)
			r.Post("/evaluate", dirichletHandler.Evaluate)
		})

		// Sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.GetByID)
				r.Post("/rounds", sessionHandler.SubmitRound)
				r.Get("/rounds", sessionHandler.ListRounds)
				r.Get("/rounds/similar", sessionHandler.Similar)
			})
		})
	})

	return app
}

// NewRouter returns just the chi.Mux for backward compatibility.
func NewRouter(db *pgxpool.Pool, logger *zap.Logger) *chi.Mux {
	return NewApp(db, logger).Router
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		resp := buildconfig.VersionInfo()
		resp["status"] = "ok"

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"requests":       app.metrics.Snapshot(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"version":    buildconfig.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores satisfy interfaces at compile time.
var (
	_ domain.TenantStore  = (*store.TenantStore)(nil)
	_ domain.SessionStore = (*store.SessionStore)(nil)
)
