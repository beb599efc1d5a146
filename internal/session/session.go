// Package session maneja el estado efímero de un intento de login.
//
// Un State vive solo durante un intento: se crea al iniciar el step-up,
// viaja entre requests vía un attempt token opaco, y se destruye al
// completar o abortar el flujo. Nunca se persiste más allá de eso.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/mailotp/internal/cache"
	tokens "github.com/dropDatabas3/mailotp/internal/security/token"
)

// Mode indica cómo está configurado el authenticator en el flow del host.
type Mode string

const (
	// ModeRequired: el step es obligatorio para todos.
	ModeRequired Mode = "required"
	// ModeAlternative: el step es una de varias alternativas.
	ModeAlternative Mode = "alternative"
)

// State es el estado de un intento de autenticación en curso.
// Dos logins simultáneos del mismo principal tienen States independientes,
// cada uno con su propio código pendiente.
type State struct {
	// ID es el attempt token opaco que el cliente presenta en cada turno.
	ID string `json:"id"`

	TenantID    string `json:"tenant_id"`
	PrincipalID string `json:"principal_id"`
	Mode        Mode   `json:"mode"`

	// OTPCode es el código pendiente; vacío si no hay challenge activo.
	OTPCode string `json:"otp_code,omitempty"`
	// OTPCreatedAt en unix seconds; 0 si no hay challenge activo.
	OTPCreatedAt int64 `json:"otp_created_at,omitempty"`

	// ACR registra qué camino satisfizo el intento.
	ACR string `json:"acr,omitempty"`

	// Invalid marca el intento como terminal (principal deshabilitado /
	// brute force). Se limpia si el principal reaparece habilitado.
	Invalid bool `json:"invalid,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ClearOTP borra el código pendiente (consumido o reemplazado).
func (s *State) ClearOTP() {
	s.OTPCode = ""
	s.OTPCreatedAt = 0
}

// Store persiste States en el cache con TTL, keyed por attempt token.
type Store struct {
	cache cache.Client
	ttl   time.Duration
}

func NewStore(c cache.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Store{cache: c, ttl: ttl}
}

func attemptKey(id string) string { return "otp:attempt:" + id }

// Create inicia un intento nuevo con un attempt token aleatorio.
func (st *Store) Create(ctx context.Context, tenantID, principalID string, mode Mode) (*State, error) {
	id, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, fmt.Errorf("session: generate attempt token: %w", err)
	}
	s := &State{
		ID:          id,
		TenantID:    tenantID,
		PrincipalID: principalID,
		Mode:        mode,
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get recupera el State de un intento en curso.
// Retorna cache.ErrNotFound si el intento expiró o nunca existió.
func (st *Store) Get(ctx context.Context, id string) (*State, error) {
	raw, err := st.cache.Get(ctx, attemptKey(id))
	if err != nil {
		return nil, err
	}
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal state: %w", err)
	}
	return &s, nil
}

// Save persiste el State (sobrescribe). El TTL se renueva en cada Save.
func (st *Store) Save(ctx context.Context, s *State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal state: %w", err)
	}
	return st.cache.Set(ctx, attemptKey(s.ID), string(raw), st.ttl)
}

// Delete destruye el intento (flujo completado o abortado).
func (st *Store) Delete(ctx context.Context, id string) error {
	return st.cache.Delete(ctx, attemptKey(id))
}
