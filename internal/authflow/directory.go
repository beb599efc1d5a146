package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrPrincipalNotFound lo retornan los lookups del directorio.
var ErrPrincipalNotFound = errors.New("authflow: principal not found")

// StaticDirectory es un Directory + RoleOracle en memoria, cargado desde
// configuración. Sirve para despliegues standalone y para tests; un host
// real inyecta su propio directorio.
type StaticDirectory struct {
	mu      sync.RWMutex
	byEmail map[string]*staticPrincipal // tenant|email (lower)
	byID    map[string]*staticPrincipal // tenant|id
}

type staticPrincipal struct {
	p     Principal
	roles map[string]bool
}

// StaticPrincipal es la forma de configuración de un principal estático.
type StaticPrincipal struct {
	TenantID      string   `yaml:"tenant_id"`
	ID            string   `yaml:"id"`
	Email         string   `yaml:"email"`
	EmailVerified bool     `yaml:"email_verified"`
	Enabled       bool     `yaml:"enabled"`
	Roles         []string `yaml:"roles"`
}

func NewStaticDirectory(principals []StaticPrincipal) *StaticDirectory {
	d := &StaticDirectory{
		byEmail: make(map[string]*staticPrincipal),
		byID:    make(map[string]*staticPrincipal),
	}
	for _, sp := range principals {
		entry := &staticPrincipal{
			p: Principal{
				ID:            sp.ID,
				Email:         sp.Email,
				EmailVerified: sp.EmailVerified,
				Enabled:       sp.Enabled,
			},
			roles: make(map[string]bool, len(sp.Roles)),
		}
		for _, r := range sp.Roles {
			entry.roles[r] = true
		}
		d.byEmail[sp.TenantID+"|"+strings.ToLower(sp.Email)] = entry
		d.byID[sp.TenantID+"|"+sp.ID] = entry
	}
	return d
}

func (d *StaticDirectory) LookupByEmail(_ context.Context, tenantID, email string) (Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.byEmail[tenantID+"|"+strings.ToLower(email)]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return entry.p, nil
}

func (d *StaticDirectory) LookupByID(_ context.Context, tenantID, principalID string) (Principal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.byID[tenantID+"|"+principalID]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return entry.p, nil
}

func (d *StaticDirectory) SetEmailVerified(_ context.Context, tenantID, principalID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.byID[tenantID+"|"+principalID]
	if !ok {
		return ErrPrincipalNotFound
	}
	entry.p.EmailVerified = true
	return nil
}

func (d *StaticDirectory) HasRole(_ context.Context, tenantID, principalID, role string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.byID[tenantID+"|"+principalID]
	if !ok {
		return false, ErrPrincipalNotFound
	}
	return entry.roles[role], nil
}

// SetEnabled habilita/deshabilita un principal (guard de brute force del
// host simulado).
func (d *StaticDirectory) SetEnabled(tenantID, principalID string, enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entry, ok := d.byID[tenantID+"|"+principalID]; ok {
		entry.p.Enabled = enabled
	}
}
