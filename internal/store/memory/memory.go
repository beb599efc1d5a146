// Package memory implementa TrustRepository en memoria (go-cache).
//
// Para desarrollo y tests. La evicción por TTL de go-cache hace el rol
// del cleanup periódico; CleanupExpired existe igual para cumplir el
// contrato y para los registros permanentes que nunca evicta.
package memory

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/mailotp/internal/store/core"
)

type Store struct {
	mu      sync.Mutex
	ips     *gocache.Cache
	devices *gocache.Cache
}

func New() *Store {
	return &Store{
		ips:     gocache.New(gocache.NoExpiration, 10*time.Minute),
		devices: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func key(tenantID, principalID, suffix string) string {
	return tenantID + "|" + principalID + "|" + suffix
}

func (s *Store) IsIPTrusted(ctx context.Context, tenantID, principalID, ipHash string) (bool, error) {
	v, ok := s.ips.Get(key(tenantID, principalID, ipHash))
	if !ok {
		return false, nil
	}
	rec := v.(core.TrustedIP)
	return !rec.Expired(time.Now()), nil
}

func (s *Store) TrustIP(ctx context.Context, tenantID, principalID, ipHash string, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(tenantID, principalID, ipHash)
	rec := core.TrustedIP{
		TenantID:    tenantID,
		PrincipalID: principalID,
		IPHash:      ipHash,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	if v, ok := s.ips.Get(k); ok {
		prev := v.(core.TrustedIP)
		rec.CreatedAt = prev.CreatedAt
	}
	s.ips.Set(k, rec, ttlFor(expiresAt))
	return nil
}

func (s *Store) RefreshIPTrust(ctx context.Context, tenantID, principalID, ipHash string, newExpiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(tenantID, principalID, ipHash)
	v, ok := s.ips.Get(k)
	if !ok {
		return nil
	}
	rec := v.(core.TrustedIP)
	rec.ExpiresAt = newExpiresAt
	s.ips.Set(k, rec, ttlFor(newExpiresAt))
	return nil
}

func (s *Store) IsDeviceTrusted(ctx context.Context, tenantID, principalID, rawToken string) (bool, error) {
	if rawToken == "" {
		return false, nil
	}
	v, ok := s.devices.Get(key(tenantID, principalID, rawToken))
	if !ok {
		return false, nil
	}
	rec := v.(core.TrustedDevice)
	return !rec.Expired(time.Now()), nil
}

func (s *Store) TrustDevice(ctx context.Context, tenantID, principalID, rawToken string, expiresAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := core.TrustedDevice{
		TenantID:    tenantID,
		PrincipalID: principalID,
		DeviceToken: rawToken,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	s.devices.Set(key(tenantID, principalID, rawToken), rec, ttlFor(expiresAt))
	return nil
}

func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, item := range s.ips.Items() {
		rec := item.Object.(core.TrustedIP)
		if rec.ExpiresAt > 0 && rec.ExpiresAt < now.Unix() {
			s.ips.Delete(k)
			removed++
		}
	}
	for k, item := range s.devices.Items() {
		rec := item.Object.(core.TrustedDevice)
		if rec.ExpiresAt > 0 && rec.ExpiresAt < now.Unix() {
			s.devices.Delete(k)
			removed++
		}
	}
	return removed, nil
}

// ttlFor mapea expires_at a un TTL de go-cache (0 = permanente).
func ttlFor(expiresAt int64) time.Duration {
	if expiresAt == 0 {
		return gocache.NoExpiration
	}
	d := time.Until(time.Unix(expiresAt, 0))
	if d <= 0 {
		// Ya vencido: TTL mínimo para que la evicción lo levante.
		return time.Nanosecond
	}
	return d
}
