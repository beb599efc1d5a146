// Package trust implementa el bypass de OTP por IP o device conocidos.
//
// El servicio envuelve al repositorio con la semántica de degradación del
// flujo: un storage caído nunca bloquea el login, solo deshabilita el
// bypass para ese intento.
package trust

import (
	"context"
	"time"

	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/store/core"
)

type Service struct {
	repo core.TrustRepository
}

func NewService(repo core.TrustRepository) *Service {
	return &Service{repo: repo}
}

// IsIPTrusted consulta el registro. Errores de storage degradan a false.
func (s *Service) IsIPTrusted(ctx context.Context, tenantID, principalID, ipHash string) bool {
	if ipHash == "" {
		return false
	}
	ok, err := s.repo.IsIPTrusted(ctx, tenantID, principalID, ipHash)
	if err != nil {
		logger.From(ctx).Warn("ip trust lookup failed, treating as untrusted",
			logger.Component("trust"), logger.TenantID(tenantID), logger.Err(err))
		return false
	}
	return ok
}

// TrustIP hace upsert del registro con la ventana dada. El error se loguea
// y se traga: no crear el registro no es razón para fallar un login que ya
// verificó OTP.
func (s *Service) TrustIP(ctx context.Context, tenantID, principalID, ipHash string, window time.Duration) {
	if ipHash == "" {
		return
	}
	expiresAt := time.Now().Add(window).Unix()
	if err := s.repo.TrustIP(ctx, tenantID, principalID, ipHash, expiresAt); err != nil {
		logger.From(ctx).Warn("could not store ip trust",
			logger.Component("trust"), logger.TenantID(tenantID), logger.Err(err))
	}
}

// RefreshIPTrust empuja la ventana rolling tras un hit de confianza.
func (s *Service) RefreshIPTrust(ctx context.Context, tenantID, principalID, ipHash string, window time.Duration) {
	newExpiresAt := time.Now().Add(window).Unix()
	if err := s.repo.RefreshIPTrust(ctx, tenantID, principalID, ipHash, newExpiresAt); err != nil {
		logger.From(ctx).Warn("could not refresh ip trust",
			logger.Component("trust"), logger.TenantID(tenantID), logger.Err(err))
	}
}

// IsDeviceTrusted consulta por raw token. Errores degradan a false.
func (s *Service) IsDeviceTrusted(ctx context.Context, tenantID, principalID, rawToken string) bool {
	if rawToken == "" {
		return false
	}
	ok, err := s.repo.IsDeviceTrusted(ctx, tenantID, principalID, rawToken)
	if err != nil {
		logger.From(ctx).Warn("device trust lookup failed, treating as untrusted",
			logger.Component("trust"), logger.TenantID(tenantID), logger.Err(err))
		return false
	}
	return ok
}

// TrustDevice crea el registro. window == 0 significa permanente
// (expires_at = 0), que el cleanup nunca toca.
func (s *Service) TrustDevice(ctx context.Context, tenantID, principalID, rawToken string, window time.Duration) {
	var expiresAt int64
	if window > 0 {
		expiresAt = time.Now().Add(window).Unix()
	}
	if err := s.repo.TrustDevice(ctx, tenantID, principalID, rawToken, expiresAt); err != nil {
		logger.From(ctx).Warn("could not store device trust",
			logger.Component("trust"), logger.TenantID(tenantID), logger.Err(err))
	}
}

// CleanupExpired borra los registros vencidos de ambas tablas y retorna
// cuántos se fueron.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	return s.repo.CleanupExpired(ctx, time.Now())
}
