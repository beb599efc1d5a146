package http

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/rate"
)

// withRateLimit protege los endpoints de OTP: cada start es un email
// despachado y cada verify un intento de adivinar el código. La clave es
// IP + path, así un atacante no agota la cuota de una víctima desde otra
// red. Fail-open: si el limiter falla, el request pasa.
func withRateLimit(limiter rate.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, err := limiter.Allow(r.Context(), clientIP(r)+"|"+r.URL.Path)
		if err != nil {
			logger.From(r.Context()).Warn("rate limiter unavailable, allowing request",
				logger.Component("http"), logger.Err(err))
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
			}
			writeError(w, http.StatusTooManyRequests, "rate_limited", "demasiadas solicitudes")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		next.ServeHTTP(w, r)
	})
}
