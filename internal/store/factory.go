// Package store arma el repositorio según el driver configurado.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/mailotp/internal/store/bolt"
	"github.com/dropDatabas3/mailotp/internal/store/core"
	"github.com/dropDatabas3/mailotp/internal/store/memory"
	"github.com/dropDatabas3/mailotp/internal/store/pg"
)

// Repositories agrupa los repos que expone un driver.
type Repositories struct {
	Trust core.TrustRepository
	Keys  core.SigningKeyRepository

	// Close libera recursos del driver (idempotente donde aplica).
	Close func() error
}

// Config del storage.
type Config struct {
	// Driver: "postgres" | "bolt" | "memory"
	Driver string
	DSN    string // postgres
	Path   string // bolt
	PG     pg.Config
}

// New abre el storage según cfg.Driver.
func New(ctx context.Context, cfg Config) (*Repositories, error) {
	switch cfg.Driver {
	case "postgres", "pg":
		s, err := pg.New(ctx, cfg.DSN, cfg.PG)
		if err != nil {
			return nil, fmt.Errorf("store: postgres: %w", err)
		}
		return &Repositories{
			Trust: s,
			Keys:  s,
			Close: func() error { s.Close(); return nil },
		}, nil

	case "bolt":
		s, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("store: bolt: %w", err)
		}
		return &Repositories{Trust: s, Keys: s, Close: s.Close}, nil

	case "memory", "":
		return &Repositories{
			Trust: memory.New(),
			Keys:  memory.NewKeyStore(),
			Close: func() error { return nil },
		}, nil

	default:
		return nil, fmt.Errorf("store: driver desconocido %q", cfg.Driver)
	}
}
