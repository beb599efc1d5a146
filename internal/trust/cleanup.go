package trust

import (
	"context"
	"time"

	"github.com/dropDatabas3/mailotp/internal/metrics"
	"github.com/dropDatabas3/mailotp/internal/observability/logger"
)

// RunCleanup corre el cleanup periódico de registros vencidos hasta que el
// contexto se cancele. Corre desacoplado del request handling: un cleanup
// lento o fallido jamás bloquea un login concurrente.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	log := logger.Named("trust.cleanup")
	log.Info("cleanup scheduler started", logger.Duration(interval))

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("cleanup scheduler stopped")
			return
		case <-t.C:
			removed, err := s.CleanupExpired(ctx)
			if err != nil {
				log.Error("cleanup run failed", logger.Err(err))
				continue
			}
			metrics.TrustCleanupRemoved.Add(float64(removed))
			if removed > 0 {
				log.Info("removed expired trust entries", logger.Count(removed))
			}
		}
	}
}
