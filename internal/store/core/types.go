// Package core define los tipos de dominio y contratos de persistencia.
package core

import "time"

// TrustedIP es un registro de confianza por dirección (hasheada).
// La expiración es rolling: cada login confiado la empuja hacia adelante.
type TrustedIP struct {
	ID          string
	TenantID    string
	PrincipalID string
	IPHash      string
	// ExpiresAt en unix seconds. Siempre > 0 para IPs.
	ExpiresAt int64
	CreatedAt time.Time
}

// Expired indica si el registro ya venció respecto de now.
func (t *TrustedIP) Expired(now time.Time) bool {
	return t.ExpiresAt <= now.Unix()
}

// TrustedDevice es un registro de confianza por device token.
// ExpiresAt == 0 significa confianza permanente; nunca se refresca.
type TrustedDevice struct {
	ID          string
	TenantID    string
	PrincipalID string
	// DeviceToken es el token crudo (sin firma). La firma vive solo en la cookie.
	DeviceToken string
	ExpiresAt   int64
	CreatedAt   time.Time
}

// Expired indica si el registro ya venció respecto de now.
// Un ExpiresAt de 0 nunca expira.
func (t *TrustedDevice) Expired(now time.Time) bool {
	return t.ExpiresAt > 0 && t.ExpiresAt <= now.Unix()
}
