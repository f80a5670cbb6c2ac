package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"proofdrop/internal/platform/config"
	"proofdrop/pkg/platform/middleware/caller"
	"proofdrop/pkg/platform/middleware/request"
	"proofdrop/pkg/platform/middleware/requesttime"
	"proofdrop/pkg/validation"
)

const baseRequestTimeout = 30 * time.Second

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

// newRouter mounts health routes and /metrics publicly and everything else behind
// the bearer caller. /admin routes additionally require the owner.
func newRouter(cfg config.Config, a *App, o options, log *slog.Logger) http.Handler {
	// /relay/await may legitimately poll for the full confirmation budget.
	timeout := max(baseRequestTimeout, cfg.Relay.AwaitInterval*time.Duration(cfg.Relay.AwaitAttempts)+5*time.Second)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(request.LatencyMiddleware(request.NewMetricsWith(o.registerer), routePattern))

	a.health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.BodyLimit(validation.MaxBodySize))
		r.Use(request.ContentTypeJSON)
		r.Use(caller.RequireCaller(a.jwt, log))

		a.verification.Register(r)
		a.relay.Register(r)
		a.distribution.Register(r)
		a.events.Register(r)

		r.Group(func(r chi.Router) {
			r.Use(caller.RequireAccount(cfg.Chain.Owner, log))
			a.verification.RegisterAdmin(r)
			a.relay.RegisterAdmin(r)
			a.distribution.RegisterAdmin(r)
		})
	})
	return r
}
