// Package iphash produce hashes one-way de direcciones de cliente.
//
// Nunca guardamos la IP cruda: el trust store solo ve el hash. El hash es
// determinístico (el lookup lo necesita) y salteado con el tenant para que
// dos tenants con la misma IP no compartan hash.
package iphash

import (
	"crypto/sha256"
	"encoding/base64"
)

// Hash retorna sha256(tenantID + ":" + rawAddress) en base64url sin padding.
// Retorna "" (ausente) para direcciones vacías.
func Hash(tenantID, rawAddress string) string {
	if rawAddress == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(tenantID + ":" + rawAddress))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
