package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"metapro/internal/http/handlers"
	"metapro/internal/infra"
	"metapro/internal/middleware"
)

func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
	)
	if cfg != nil && len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	}

	perMinute := 30
	if cfg != nil && cfg.RateLimitPerMin > 0 {
		perMinute = cfg.RateLimitPerMin
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/v1/metrics", app.Metrics)

	r.Route("/v1/runs", func(r chi.Router) {
		r.With(middleware.RateLimit(perMinute, time.Minute)).Post("/", app.CreateRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/report.csv", app.RunReport)
			r.Get("/archive.zip", app.RunArchive)
			r.Get("/partial", app.RunPartial)
		})
	})

	return r
}
