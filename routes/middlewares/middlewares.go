package middlewares

import (
	"crypto/subtle"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/mbolis/signup/httpx"
	"github.com/mbolis/signup/log"
	"github.com/mbolis/signup/metrics"
	"github.com/mbolis/signup/pages"
	"github.com/mbolis/signup/ratelimit"
)

var msgUnauthorized = httpx.Msg{
	EN: "Unauthorized. Provide the correct setup key as ?key=YOUR_KEY",
	ES: "No autorizado. Proporciona la clave de configuración correcta como ?key=TU_CLAVE",
}

// SetupKey admits only requests whose ?key= matches secret. An empty secret disables
// the guarded routes altogether.
func SetupKey(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Query().Get("key")
			if secret == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				ip, _ := httpx.ClientIP(r)
				log.WithFields(log.Fields{"op": "setup.key", "ip": ip}).Warn("setup key rejected")
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, httpx.Response{Success: false, Message: msgUnauthorized.String()})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit counts requests per client and answers with a 429 page once the limiter
// denies. Clients are told apart by peer address, or by X-Forwarded-For when the peer is
// a trusted proxy. A failing limiter backend lets the request through.
func RateLimit(limiter ratelimit.Limiter, trusted []netip.Prefix, contact string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := httpx.ThrottleKey(r, trusted)
			fields := log.Fields{"op": "ratelimit", "ip": ip}

			d, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				log.WithFields(fields).WithError(err).Warn("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				metrics.IncUnsubscribe("throttled")
				log.WithFields(fields).Info("too many unsubscribe attempts")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(d.RetryAfter)))
				pages.Render(w, http.StatusTooManyRequests, pages.Error(
					"Too many requests. Please try again later.",
					"Demasiadas solicitudes. Por favor intenta más tarde.",
					contact))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// Metrics records the latency of every request, labelled by its chi route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequestDuration(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
