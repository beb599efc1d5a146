// Package otp implementa la generación y el ciclo de vida del código OTP.
package otp

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// DefaultAlphabet evita 0, 1, I y O para no confundir al leer el email.
const DefaultAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// DefaultLength es el largo por defecto del código.
const DefaultLength = 6

// Generate produce un código de exactamente length caracteres, cada uno
// elegido uniformemente del alphabet con crypto/rand.
//
// Un alphabet vacío o un length <= 0 son bugs del caller: la configuración
// se valida antes (config.Validate), acá no hay chequeos.
func Generate(alphabet string, length int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
