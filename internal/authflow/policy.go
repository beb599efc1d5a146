package authflow

import (
	"context"

	"github.com/dropDatabas3/mailotp/internal/config"
	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/session"
)

// Principal es el usuario que se está autenticando, tal como lo resolvió
// el host. El guard de brute-force del host se refleja en Enabled.
type Principal struct {
	ID            string
	Email         string
	EmailVerified bool
	Enabled       bool
}

// RoleOracle responde membresía de roles. Es un colaborador externo:
// la evaluación del flow del host no se reimplementa acá.
type RoleOracle interface {
	HasRole(ctx context.Context, tenantID, principalID, role string) (bool, error)
}

// Directory es la vista del directorio de usuarios del host: resolver
// principals y reflejar cambios sobre ellos.
type Directory interface {
	LookupByEmail(ctx context.Context, tenantID, email string) (Principal, error)
	LookupByID(ctx context.Context, tenantID, principalID string) (Principal, error)
	SetEmailVerified(ctx context.Context, tenantID, principalID string) error
}

// shouldRequireOTP aplica el filtro de rol configurado.
//
// Sin filtro, todos pasan por OTP. Con filtro, hasRole == negateRole
// excluye al principal (misma tabla de verdad con y sin negación).
// Un error del oracle degrada a "exigir OTP": ante la duda, desafiar.
func shouldRequireOTP(ctx context.Context, cfg *config.Authenticator, roles RoleOracle, tenantID string, p Principal) bool {
	if cfg.Role == "" {
		return true
	}
	if roles == nil {
		return true
	}
	has, err := roles.HasRole(ctx, tenantID, p.ID, cfg.Role)
	if err != nil {
		logger.From(ctx).Warn("role lookup failed, requiring otp",
			logger.Component("authflow"), logger.TenantID(tenantID), logger.Err(err))
		return true
	}
	return has != cfg.NegateRole
}

// shouldApplyTrust decide si corren los fast-paths de confianza.
//
// Con trust_only_when_sole activo, un authenticator configurado como
// alternativa no aplica bypass: el usuario eligió este método sobre otros
// y saltearlo silenciosamente sería un bypass de 2FA.
func shouldApplyTrust(cfg *config.Authenticator, mode session.Mode) bool {
	if !cfg.TrustOnlyWhenSole {
		return true
	}
	return mode != session.ModeAlternative
}
