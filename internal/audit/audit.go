// Package audit registra los eventos de seguridad del flujo: challenges
// emitidos, verificaciones, bypasses y registros de confianza creados.
//
// Hoy el sink es el logger estructurado; el shape de los eventos queda
// estable para poder apuntarlos a un sink externo.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/mailotp/internal/observability/logger"
)

// Eventos del flujo de step-up.
const (
	EventChallengeIssued = "otp.challenge_issued"
	EventCodeVerified    = "otp.code_verified"
	EventCodeRejected    = "otp.code_rejected"
	EventBypassDevice    = "otp.bypass_trusted_device"
	EventBypassIP        = "otp.bypass_trusted_ip"
	EventTrustCreated    = "otp.trust_created"
	EventAttemptRejected = "otp.attempt_rejected"
)

// Log escribe un evento de auditoría con los campos dados.
func Log(ctx context.Context, event, tenantID, principalID string, extra ...zap.Field) {
	fields := append([]zap.Field{
		zap.String("audit_event", event),
		logger.TenantID(tenantID),
		logger.PrincipalID(principalID),
	}, extra...)
	logger.From(ctx).Named("audit").Info(event, fields...)
}
