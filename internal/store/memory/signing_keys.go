package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/mailotp/internal/store/core"
)

// KeyStore es un SigningKeyRepository en memoria (dev/tests).
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]core.SigningKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string]core.SigningKey)}
}

func (s *KeyStore) GetActiveSigningKey(ctx context.Context) (*core.SigningKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active *core.SigningKey
	now := time.Now()
	for _, k := range s.keys {
		if k.Status != core.KeyActive || now.Before(k.NotBefore) {
			continue
		}
		if active == nil || k.NotBefore.After(active.NotBefore) {
			kk := k
			active = &kk
		}
	}
	if active == nil {
		return nil, core.ErrNotFound
	}
	return active, nil
}

func (s *KeyStore) ListVerificationKeys(ctx context.Context) ([]core.SigningKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.SigningKey
	for _, k := range s.keys {
		if k.Status == core.KeyRetired || len(k.PublicKey) == 0 {
			continue
		}
		k.PrivateKey = nil
		out = append(out, k)
	}
	return out, nil
}

func (s *KeyStore) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kk := *k
	if kk.NotBefore.IsZero() {
		kk.NotBefore = time.Now().UTC()
	}
	if kk.CreatedAt.IsZero() {
		kk.CreatedAt = time.Now().UTC()
	}
	s.keys[kk.KID] = kk
	return nil
}

func (s *KeyStore) RotateSigningKey(ctx context.Context, newKey core.SigningKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for kid, k := range s.keys {
		if k.Status == core.KeyActive {
			k.Status = core.KeyRetiring
			k.RotatedAt = &now
			s.keys[kid] = k
		}
	}
	newKey.Status = core.KeyActive
	newKey.NotBefore = now
	newKey.CreatedAt = now
	s.keys[newKey.KID] = newKey
	return nil
}
