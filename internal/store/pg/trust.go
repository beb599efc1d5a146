package pg

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ====================== Trusted IPs ======================

func (s *Store) IsIPTrusted(ctx context.Context, tenantID, principalID, ipHash string) (bool, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM trusted_ip
		WHERE tenant_id = $1 AND principal_id = $2 AND ip_hash = $3 AND expires_at > $4
	`, tenantID, principalID, ipHash, time.Now().Unix()).Scan(&count); err != nil {
		return false, err
	}
	return count == 1, nil
}

// TrustIP: upsert atómico sobre la unique key (tenant, principal, ip_hash).
// Llamadas concurrentes para la misma clave no duplican filas.
func (s *Store) TrustIP(ctx context.Context, tenantID, principalID, ipHash string, expiresAt int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trusted_ip (id, tenant_id, principal_id, ip_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, principal_id, ip_hash)
		DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, uuid.NewString(), tenantID, principalID, ipHash, expiresAt)
	return err
}

// RefreshIPTrust empuja la ventana rolling. No-op si no existe el registro.
func (s *Store) RefreshIPTrust(ctx context.Context, tenantID, principalID, ipHash string, newExpiresAt int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE trusted_ip SET expires_at = $4
		WHERE tenant_id = $1 AND principal_id = $2 AND ip_hash = $3
	`, tenantID, principalID, ipHash, newExpiresAt)
	return err
}

// ====================== Trusted devices ======================

func (s *Store) IsDeviceTrusted(ctx context.Context, tenantID, principalID, rawToken string) (bool, error) {
	if rawToken == "" {
		return false, nil
	}
	var count int
	if err := s.pool.QueryRow(ctx, `
		SELECT COUNT(1)
		FROM trusted_device
		WHERE tenant_id = $1 AND principal_id = $2 AND device_token = $3
		  AND (expires_at = 0 OR expires_at > $4)
	`, tenantID, principalID, rawToken, time.Now().Unix()).Scan(&count); err != nil {
		return false, err
	}
	return count == 1, nil
}

// TrustDevice reemplaza cualquier registro previo para la misma clave.
// Los tokens son aleatorios, así que la colisión es defensiva.
func (s *Store) TrustDevice(ctx context.Context, tenantID, principalID, rawToken string, expiresAt int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trusted_device (id, tenant_id, principal_id, device_token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (tenant_id, principal_id, device_token)
		DO UPDATE SET expires_at = EXCLUDED.expires_at, created_at = now()
	`, uuid.NewString(), tenantID, principalID, rawToken, expiresAt)
	return err
}

// ====================== Cleanup ======================

// CleanupExpired borra IPs y devices vencidos. expires_at = 0 (permanente)
// nunca se borra. Seguro de correr concurrente con lecturas y otros cleanups.
func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	unix := now.Unix()

	ips, err := s.pool.Exec(ctx, `
		DELETE FROM trusted_ip WHERE expires_at > 0 AND expires_at < $1
	`, unix)
	if err != nil {
		return 0, err
	}

	devices, err := s.pool.Exec(ctx, `
		DELETE FROM trusted_device WHERE expires_at > 0 AND expires_at < $1
	`, unix)
	if err != nil {
		return int(ips.RowsAffected()), err
	}

	return int(ips.RowsAffected() + devices.RowsAffected()), nil
}
