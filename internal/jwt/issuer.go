package jwt

import (
	"context"
	"crypto/ed25519"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Issuer firma tokens usando la clave activa del keystore.
type Issuer struct {
	Iss       string
	Keys      *Keystore
	AccessTTL time.Duration
}

func NewIssuer(iss string, ks *Keystore) *Issuer {
	return &Issuer{
		Iss:       iss,
		Keys:      ks,
		AccessTTL: 15 * time.Minute,
	}
}

// IssueAccess emite el token de éxito del step-up. El claim "acr" registra
// qué camino satisfizo el intento (otp, trusted-device, trusted-ip) y "amr"
// los métodos usados.
func (i *Issuer) IssueAccess(ctx context.Context, tenantID, sub, acr string, amr []string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	kid, priv, _, err := i.Keys.Active(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"tid": tenantID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
		"acr": acr,
		"amr": amr,
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(priv)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Keyfunc devuelve un jwt.Keyfunc que elige la pubkey por 'kid' del token.
func (i *Issuer) Keyfunc(ctx context.Context) jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			return i.Keys.PublicKeyByKID(ctx, kid)
		}
		_, _, pub, err := i.Keys.Active(ctx)
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(pub), nil
	}
}
