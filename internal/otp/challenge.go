package otp

import (
	"crypto/subtle"
	"time"

	"github.com/dropDatabas3/mailotp/internal/session"
)

// VerifyResult es el resultado de verificar un código enviado.
type VerifyResult int

const (
	// Invalid: código vacío, sin challenge pendiente, o no coincide.
	Invalid VerifyResult = iota
	// Expired: el código coincide pero ya venció. El caller debe
	// re-emitir con force antes de volver a desafiar.
	Expired
	// Valid: código correcto y vigente. El código queda consumido.
	Valid
)

func (r VerifyResult) String() string {
	switch r {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	default:
		return "invalid"
	}
}

// Manager maneja el ciclo de vida del código OTP sobre el State del intento:
// NoChallenge → Pending → {Verified, Expired, Invalid}.
//
// Alphabet, Length y Lifetime vienen de configuración, no son constantes.
type Manager struct {
	Alphabet string
	Length   int
	Lifetime time.Duration

	// Now permite inyectar el reloj en tests. Nil = time.Now.
	Now func() time.Time
}

func NewManager(alphabet string, length int, lifetime time.Duration) *Manager {
	return &Manager{Alphabet: alphabet, Length: length, Lifetime: lifetime}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Issue genera (o reutiliza) el código pendiente del intento.
//
// Sin force, un código vigente se devuelve tal cual: un refresh de página
// no regenera ni reenvía. Con force (resend, o regeneración tras expiry)
// siempre se genera uno nuevo y se pisa el anterior — nunca conviven dos.
// Retorna fresh=true cuando el caller debe despachar el código por email.
func (m *Manager) Issue(st *session.State, force bool) (code string, fresh bool, err error) {
	if !force && st.OTPCode != "" && !m.expired(st) {
		return st.OTPCode, false, nil
	}

	code, err = Generate(m.Alphabet, m.Length)
	if err != nil {
		return "", false, err
	}
	st.OTPCode = code
	st.OTPCreatedAt = m.now().Unix()
	return code, true, nil
}

// Verify compara el código enviado contra el pendiente.
//
// La comparación es en tiempo constante (crypto/subtle); nunca se
// cortocircuita igualdad de strings sobre un secreto. En Valid el código
// se consume (single-use). En Expired queda para que el caller regenere.
func (m *Manager) Verify(st *session.State, submitted string) VerifyResult {
	if submitted == "" || st.OTPCode == "" {
		return Invalid
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(st.OTPCode)) != 1 {
		return Invalid
	}
	if m.expired(st) {
		return Expired
	}
	st.ClearOTP()
	return Valid
}

// expired: now - lifetime > createdAt (misma aritmética en unix seconds
// que usa Issue para decidir reutilización).
func (m *Manager) expired(st *session.State) bool {
	if st.OTPCreatedAt == 0 {
		return true
	}
	return m.now().Unix()-int64(m.Lifetime.Seconds()) > st.OTPCreatedAt
}
