// Package jwt maneja las claves de firma Ed25519 y la emisión de tokens.
package jwt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/mailotp/internal/observability/logger"
	"github.com/dropDatabas3/mailotp/internal/store/core"
)

var (
	ErrNoActiveKey = errors.New("no_active_signing_key")
)

// Keystore lee claves del repositorio y cachea la activa.
//
// La lista de claves de verificación también se cachea con TTL corto:
// verificar una cookie de device trust no puede costar un query por request.
type Keystore struct {
	store core.SigningKeyRepository

	mu         sync.RWMutex
	activeKID  string
	activePriv ed25519.PrivateKey
	activePub  ed25519.PublicKey
	cacheUntil time.Time
	cacheTTL   time.Duration

	verifKeys  []core.SigningKey
	verifUntil time.Time
	verifTTL   time.Duration
}

func NewKeystore(s core.SigningKeyRepository) *Keystore {
	return &Keystore{
		store:    s,
		cacheTTL: 30 * time.Second,
		verifTTL: 30 * time.Second,
	}
}

// GenerateEd25519 genera un par de claves nuevo.
func GenerateEd25519() (pub, priv []byte, err error) {
	p, s, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return p, s, nil
}

// EnsureBootstrap: si no hay clave activa, genera una.
func (k *Keystore) EnsureBootstrap(ctx context.Context) error {
	_, err := k.store.GetActiveSigningKey(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}
	pub, priv, err := GenerateEd25519()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	key := &core.SigningKey{
		KID:        "boot-" + now.Format("20060102T150405Z"),
		Alg:        "EdDSA",
		PublicKey:  pub,
		PrivateKey: priv,
		Status:     core.KeyActive,
		NotBefore:  now,
	}
	if err := k.store.InsertSigningKey(ctx, key); err != nil {
		return err
	}
	logger.From(ctx).Info("bootstrap signing key generated",
		logger.Component("keystore"), logger.KID(key.KID))
	return nil
}

// Rotate genera una clave nueva y la activa; la anterior pasa a retiring.
// Las cookies firmadas con la anterior siguen verificando.
func (k *Keystore) Rotate(ctx context.Context) (kid string, err error) {
	pub, priv, err := GenerateEd25519()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	newKey := core.SigningKey{
		KID:        "rot-" + now.Format("20060102T150405Z"),
		Alg:        "EdDSA",
		PublicKey:  pub,
		PrivateKey: priv,
	}
	if err := k.store.RotateSigningKey(ctx, newKey); err != nil {
		return "", err
	}
	k.invalidate()
	logger.From(ctx).Info("signing key rotated",
		logger.Component("keystore"), logger.KID(newKey.KID))
	return newKey.KID, nil
}

// Active devuelve la clave activa (cacheada).
func (k *Keystore) Active(ctx context.Context) (kid string, priv ed25519.PrivateKey, pub ed25519.PublicKey, err error) {
	k.mu.RLock()
	if time.Now().Before(k.cacheUntil) && k.activeKID != "" && len(k.activePriv) > 0 {
		defer k.mu.RUnlock()
		return k.activeKID, k.activePriv, k.activePub, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.cacheUntil) && k.activeKID != "" && len(k.activePriv) > 0 {
		return k.activeKID, k.activePriv, k.activePub, nil
	}

	rec, err := k.store.GetActiveSigningKey(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", nil, nil, ErrNoActiveKey
		}
		return "", nil, nil, err
	}
	if len(rec.PrivateKey) == 0 {
		return "", nil, nil, ErrNoActiveKey
	}
	k.activeKID = rec.KID
	k.activePriv = ed25519.PrivateKey(rec.PrivateKey)
	k.activePub = ed25519.PublicKey(rec.PublicKey)
	k.cacheUntil = time.Now().Add(k.cacheTTL)
	return k.activeKID, k.activePriv, k.activePub, nil
}

// VerificationKeys devuelve todas las públicas habilitadas (active + retiring),
// cacheadas. Probar contra todas es lo que hace tolerante a rotación la
// verificación de cookies.
func (k *Keystore) VerificationKeys(ctx context.Context) ([]ed25519.PublicKey, error) {
	k.mu.RLock()
	if time.Now().Before(k.verifUntil) && len(k.verifKeys) > 0 {
		recs := k.verifKeys
		k.mu.RUnlock()
		return publicsOf(recs), nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.verifUntil) && len(k.verifKeys) > 0 {
		return publicsOf(k.verifKeys), nil
	}

	recs, err := k.store.ListVerificationKeys(ctx)
	if err != nil {
		return nil, err
	}
	k.verifKeys = recs
	k.verifUntil = time.Now().Add(k.verifTTL)
	return publicsOf(recs), nil
}

// PublicKeyByKID devuelve la pubkey para un KID (active o retiring).
func (k *Keystore) PublicKeyByKID(ctx context.Context, kid string) (ed25519.PublicKey, error) {
	k.mu.RLock()
	if kid != "" && kid == k.activeKID && len(k.activePub) > 0 {
		pub := make([]byte, len(k.activePub))
		copy(pub, k.activePub)
		k.mu.RUnlock()
		return ed25519.PublicKey(pub), nil
	}
	k.mu.RUnlock()

	recs, err := k.store.ListVerificationKeys(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.KID == kid {
			return ed25519.PublicKey(r.PublicKey), nil
		}
	}
	return nil, errors.New("kid_not_found")
}

func (k *Keystore) invalidate() {
	k.mu.Lock()
	k.cacheUntil = time.Time{}
	k.verifUntil = time.Time{}
	k.mu.Unlock()
}

func publicsOf(recs []core.SigningKey) []ed25519.PublicKey {
	out := make([]ed25519.PublicKey, 0, len(recs))
	for i := range recs {
		if recs[i].Usable() {
			out = append(out, ed25519.PublicKey(recs[i].PublicKey))
		}
	}
	return out
}
