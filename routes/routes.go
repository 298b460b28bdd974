package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mbolis/signup/app"
	"github.com/mbolis/signup/log"
	"github.com/mbolis/signup/routes/middlewares"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Wire(app app.App) http.Handler {
	trusted, err := app.TrustedProxyPrefixes()
	if err != nil {
		log.WithError(err).Warn("routes: ignoring trusted_proxies")
		trusted = nil
	}

	root := chi.NewRouter()
	root.Use(
		middleware.RequestID,
		middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.Logger, NoColor: true}),
		middleware.Recoverer,
		middlewares.Metrics,
	)

	root.HandleFunc("/submit", Submit(app))
	root.
		With(middlewares.RateLimit(app.Limiter, trusted, app.Site.ContactEmail)).
		HandleFunc("/unsubscribe", Unsubscribe(app))

	root.Mount("/api", apiRouter(app))
	root.Handle("/metrics", promhttp.Handler())

	if app.PublicDir != "" {
		root.Mount("/", servePublicFiles(app.PublicDir))
	}

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()
	api.Use(cors.Handler(cors.Options{
		AllowedOrigins: app.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		MaxAge:         300,
	}))

	api.HandleFunc("/member-count", MemberCount(app))
	api.HandleFunc("/health", Health(app))
	api.
		With(middlewares.SetupKey(app.SetupKey)).
		HandleFunc("/setup", Setup(app))

	return api
}

func servePublicFiles(dir string) http.Handler {
	return http.FileServer(http.Dir(dir))
}
