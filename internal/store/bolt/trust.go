package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/dropDatabas3/mailotp/internal/store/core"
)

func (s *Store) IsIPTrusted(ctx context.Context, tenantID, principalID, ipHash string) (bool, error) {
	var trusted bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTrustedIPs).Get(trustKey(tenantID, principalID, ipHash))
		if data == nil {
			return nil
		}
		var rec core.TrustedIP
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		trusted = !rec.Expired(time.Now())
		return nil
	})
	return trusted, err
}

func (s *Store) TrustIP(ctx context.Context, tenantID, principalID, ipHash string, expiresAt int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrustedIPs)
		key := trustKey(tenantID, principalID, ipHash)

		rec := core.TrustedIP{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			PrincipalID: principalID,
			IPHash:      ipHash,
			ExpiresAt:   expiresAt,
			CreatedAt:   time.Now().UTC(),
		}
		// Upsert: si ya existe, conservamos id/created_at y solo movemos expires_at.
		if data := b.Get(key); data != nil {
			var prev core.TrustedIP
			if err := json.Unmarshal(data, &prev); err == nil {
				rec.ID = prev.ID
				rec.CreatedAt = prev.CreatedAt
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *Store) RefreshIPTrust(ctx context.Context, tenantID, principalID, ipHash string, newExpiresAt int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrustedIPs)
		key := trustKey(tenantID, principalID, ipHash)
		data := b.Get(key)
		if data == nil {
			// No-op: refresh sobre registro inexistente no es error.
			return nil
		}
		var rec core.TrustedIP
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.ExpiresAt = newExpiresAt
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(key, out)
	})
}

func (s *Store) IsDeviceTrusted(ctx context.Context, tenantID, principalID, rawToken string) (bool, error) {
	if rawToken == "" {
		return false, nil
	}
	var trusted bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketTrustedDevices).Get(trustKey(tenantID, principalID, rawToken))
		if data == nil {
			return nil
		}
		var rec core.TrustedDevice
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		trusted = !rec.Expired(time.Now())
		return nil
	})
	return trusted, err
}

func (s *Store) TrustDevice(ctx context.Context, tenantID, principalID, rawToken string, expiresAt int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec := core.TrustedDevice{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			PrincipalID: principalID,
			DeviceToken: rawToken,
			ExpiresAt:   expiresAt,
			CreatedAt:   time.Now().UTC(),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		// Put sobreescribe cualquier registro previo para la misma clave.
		return tx.Bucket(bucketTrustedDevices).Put(trustKey(tenantID, principalID, rawToken), data)
	})
}

func (s *Store) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketTrustedIPs, bucketTrustedDevices} {
			b := tx.Bucket(name)
			var stale [][]byte
			c := b.Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				var rec struct {
					ExpiresAt int64 `json:"ExpiresAt"`
				}
				if err := json.Unmarshal(v, &rec); err != nil {
					continue
				}
				if rec.ExpiresAt > 0 && rec.ExpiresAt < now.Unix() {
					stale = append(stale, append([]byte(nil), k...))
				}
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
				removed++
			}
		}
		return nil
	})
	return removed, err
}
