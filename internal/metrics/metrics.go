// Package metrics define las métricas Prometheus del servicio.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OTPIssued cuenta códigos generados (fresh, no re-display).
	OTPIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailotp_codes_issued_total",
		Help: "Códigos OTP generados y despachados por email",
	})

	// OTPVerified cuenta verificaciones por resultado (valid|invalid|expired).
	OTPVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailotp_verifications_total",
		Help: "Verificaciones de código OTP por resultado",
	}, []string{"result"})

	// TrustHits cuenta bypasses por tipo (device|ip).
	TrustHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailotp_trust_hits_total",
		Help: "Logins que saltearon OTP por confianza previa",
	}, []string{"kind"})

	// TrustCleanupRemoved acumula registros de confianza eliminados.
	TrustCleanupRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailotp_trust_cleanup_removed_total",
		Help: "Registros de confianza vencidos eliminados por el cleanup",
	})

	// EmailSendFailures cuenta fallos de despacho del código.
	EmailSendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mailotp_email_send_failures_total",
		Help: "Fallos al enviar el email con el código",
	})

	// HTTPRequests cuenta requests por método/path/status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mailotp_http_requests_total",
		Help: "Requests HTTP procesados",
	}, []string{"method", "path", "status"})

	// HTTPDuration mide latencia por método/path.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mailotp_http_request_duration_seconds",
		Help:    "Latencia de requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Handler expone /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
