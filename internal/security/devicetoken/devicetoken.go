// Package devicetoken firma y verifica los tokens de device trust.
//
// El formato de wire es "<rawToken>.<firma base64url>". El raw token es lo
// único que se persiste server-side; la forma firmada vive en la cookie del
// cliente. El store nunca ve ni verifica firmas.
package devicetoken

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"strings"

	"github.com/dropDatabas3/mailotp/internal/observability/logger"
)

// Separator une el token crudo con su firma. Los raw tokens (UUIDs) no lo
// contienen; el split se hace sobre el ÚLTIMO punto por contrato de formato.
const Separator = "."

// Keys es la vista del keystore que necesita este paquete.
type Keys interface {
	// Active devuelve la clave de firma activa.
	Active(ctx context.Context) (kid string, priv ed25519.PrivateKey, pub ed25519.PublicKey, err error)

	// VerificationKeys devuelve TODAS las públicas habilitadas, no solo la
	// activa: una cookie firmada antes de la última rotación tiene que
	// seguir verificando.
	VerificationKeys(ctx context.Context) ([]ed25519.PublicKey, error)
}

// Signer firma y verifica device tokens contra el keystore.
type Signer struct {
	keys Keys
}

func NewSigner(keys Keys) *Signer {
	return &Signer{keys: keys}
}

// Sign firma los bytes UTF-8 del raw token con la clave activa y retorna
// la forma de wire. Retorna "" si no hay clave activa con privada usable:
// eso se loguea y el caller degrada (no setea cookie) en vez de fallar
// el login.
func (s *Signer) Sign(ctx context.Context, rawToken string) string {
	if rawToken == "" {
		return ""
	}
	_, priv, _, err := s.keys.Active(ctx)
	if err != nil {
		logger.From(ctx).Warn("no active signing key, device token not signed",
			logger.Component("devicetoken"), logger.Err(err))
		return ""
	}
	sig := ed25519.Sign(priv, []byte(rawToken))
	return rawToken + Separator + base64.RawURLEncoding.EncodeToString(sig)
}

// Verify valida la forma de wire y retorna el raw token, o "" si la firma
// no valida con ninguna clave habilitada o el formato es inválido.
func (s *Signer) Verify(ctx context.Context, signedToken string) string {
	idx := strings.LastIndex(signedToken, Separator)
	if idx <= 0 {
		// Sin separador, o raw token vacío (".sig")
		return ""
	}
	rawToken := signedToken[:idx]
	sig, err := base64.RawURLEncoding.DecodeString(signedToken[idx+1:])
	if err != nil {
		return ""
	}

	pubs, err := s.keys.VerificationKeys(ctx)
	if err != nil {
		logger.From(ctx).Warn("could not list verification keys",
			logger.Component("devicetoken"), logger.Err(err))
		return ""
	}
	if len(pubs) == 0 {
		logger.From(ctx).Error("no verification keys available",
			logger.Component("devicetoken"))
		return ""
	}

	// Probar cada clave; la primera que valida gana.
	for _, pub := range pubs {
		if len(pub) == ed25519.PublicKeySize && ed25519.Verify(pub, []byte(rawToken), sig) {
			return rawToken
		}
	}
	return ""
}
