package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/mailotp/internal/store/core"
)

// GetActiveSigningKey: clave activa más reciente y válida (now >= not_before)
func (s *Store) GetActiveSigningKey(ctx context.Context) (*core.SigningKey, error) {
	const q = `
SELECT kid, alg, public_key, private_key, status, not_before, created_at, rotated_at
FROM signing_keys
WHERE status = 'active' AND now() >= not_before
ORDER BY not_before DESC
LIMIT 1`
	row := s.pool.QueryRow(ctx, q)

	var k core.SigningKey
	var rotatedAt *time.Time
	if err := row.Scan(&k.KID, &k.Alg, &k.PublicKey, &k.PrivateKey, &k.Status, &k.NotBefore, &k.CreatedAt, &rotatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, err
	}
	k.RotatedAt = rotatedAt
	return &k, nil
}

// ListVerificationKeys: claves con pública utilizable (active + retiring).
// Incluir retiring es lo que tolera la rotación: cookies firmadas con la
// clave anterior siguen verificando.
func (s *Store) ListVerificationKeys(ctx context.Context) ([]core.SigningKey, error) {
	const q = `
SELECT kid, alg, public_key, NULL::bytea as private_key, status, not_before, created_at, rotated_at
FROM signing_keys
WHERE status IN ('active','retiring')
ORDER BY status DESC, not_before DESC`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.SigningKey
	for rows.Next() {
		var k core.SigningKey
		var rotatedAt *time.Time
		if err := rows.Scan(&k.KID, &k.Alg, &k.PublicKey, &k.PrivateKey, &k.Status, &k.NotBefore, &k.CreatedAt, &rotatedAt); err != nil {
			return nil, err
		}
		k.RotatedAt = rotatedAt
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	const q = `
INSERT INTO signing_keys (kid, alg, public_key, private_key, status, not_before, created_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), now())`
	var nb *time.Time
	if !k.NotBefore.IsZero() {
		nb = &k.NotBefore
	}
	_, err := s.pool.Exec(ctx, q, k.KID, k.Alg, k.PublicKey, k.PrivateKey, k.Status, nb)
	return err
}

// RotateSigningKey: pasa la activa a retiring e inserta la nueva como active
// en una sola tx.
func (s *Store) RotateSigningKey(ctx context.Context, newKey core.SigningKey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Marcar la anterior como retiring PRIMERO (evita constraint violation)
	if _, err := tx.Exec(ctx, `
		UPDATE signing_keys SET status='retiring', rotated_at=now() WHERE status='active'
	`); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO signing_keys (kid, alg, public_key, private_key, status, not_before, created_at)
		VALUES ($1,$2,$3,$4,'active',now(),now())
	`, newKey.KID, newKey.Alg, newKey.PublicKey, newKey.PrivateKey); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
