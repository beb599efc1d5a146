package core

import "time"

type KeyStatus string

const (
	KeyActive   KeyStatus = "active"
	KeyRetiring KeyStatus = "retiring"
	KeyRetired  KeyStatus = "retired"
)

// SigningKey es una clave asimétrica de firma (Ed25519).
// Las claves retiring siguen siendo válidas para verificar; solo la
// active firma. Retired queda fuera de circulación.
type SigningKey struct {
	KID        string
	Alg        string // "EdDSA"
	PublicKey  []byte
	PrivateKey []byte // Puede ser nil (solo verificación)
	Status     KeyStatus
	NotBefore  time.Time
	CreatedAt  time.Time
	RotatedAt  *time.Time
}

// Usable indica si la clave sirve para verificar firmas.
func (k *SigningKey) Usable() bool {
	return k.Status != KeyRetired && len(k.PublicKey) > 0
}
