package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"treasury/internal/http/handlers"
	"treasury/internal/middleware"
)

type Options struct {
	APIToken        string
	RateLimitPerMin int
	CORSOrigins     []string
	Logger          zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerToken(opts.APIToken))

		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/v1/donations", app.DonationsCreate)
		r.Get("/v1/donations/{token}", app.DonationStatus)

		r.Route("/v1/payouts", func(r chi.Router) {
			r.Get("/", app.PayoutsList)
			r.Post("/{id}/retry", app.PayoutRetry)
		})
	})

	return r
}
