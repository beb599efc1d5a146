package core

import (
	"context"
	"time"
)

// TrustRepository persiste los registros de confianza (IP y device).
//
// Los upserts deben ser atómicos a nivel de storage (unique key +
// ON CONFLICT o equivalente), no check-then-act en la aplicación:
// dos intentos concurrentes para el mismo (tenant, principal, hash)
// no pueden producir filas duplicadas.
type TrustRepository interface {
	// IsIPTrusted retorna true si existe un registro no vencido.
	IsIPTrusted(ctx context.Context, tenantID, principalID, ipHash string) (bool, error)

	// TrustIP hace upsert: si el registro existe actualiza expires_at,
	// si no existe lo crea con created_at = now.
	TrustIP(ctx context.Context, tenantID, principalID, ipHash string, expiresAt int64) error

	// RefreshIPTrust actualiza expires_at solo si el registro existe.
	// No es error que no exista.
	RefreshIPTrust(ctx context.Context, tenantID, principalID, ipHash string, newExpiresAt int64) error

	// IsDeviceTrusted retorna true si existe un registro no vencido.
	// Un token vacío nunca es confiable.
	IsDeviceTrusted(ctx context.Context, tenantID, principalID, rawToken string) (bool, error)

	// TrustDevice borra cualquier registro previo para la misma clave
	// (defensivo; los tokens son aleatorios) e inserta uno nuevo.
	TrustDevice(ctx context.Context, tenantID, principalID, rawToken string, expiresAt int64) error

	// CleanupExpired borra todos los registros (IP y device) con
	// expires_at > 0 y vencido. Retorna el total de filas eliminadas.
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}

// SigningKeyRepository persiste las claves de firma.
type SigningKeyRepository interface {
	// GetActiveSigningKey: clave activa más reciente y válida (now >= not_before).
	GetActiveSigningKey(ctx context.Context) (*SigningKey, error)

	// ListVerificationKeys: todas las claves con pública utilizable
	// (active + retiring). Necesario para tolerar rotación.
	ListVerificationKeys(ctx context.Context) ([]SigningKey, error)

	InsertSigningKey(ctx context.Context, k *SigningKey) error

	// RotateSigningKey pasa la activa actual a retiring e inserta la
	// nueva como active, atómicamente.
	RotateSigningKey(ctx context.Context, newKey SigningKey) error
}
