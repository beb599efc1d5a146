// Package bolt implementa los repositorios sobre bbolt (embebido, un solo nodo).
//
// Útil para despliegues chicos y para desarrollo sin Postgres. Las
// transacciones Update de bbolt son serializadas, así que los upserts
// quedan atómicos sin constraint explícito.
package bolt

import (
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	bucketTrustedIPs     = []byte("trusted_ip")
	bucketTrustedDevices = []byte("trusted_device")
	bucketSigningKeys    = []byte("signing_keys")
)

type Store struct {
	db *bbolt.DB
}

// Open abre (o crea) la base en path y asegura los buckets.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketTrustedIPs, bucketTrustedDevices, bucketSigningKeys} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close cierra la base subyacente.
func (s *Store) Close() error {
	return s.db.Close()
}

// trustKey arma la clave compuesta (tenant, principal, hash/token).
func trustKey(tenantID, principalID, suffix string) []byte {
	return []byte(tenantID + "|" + principalID + "|" + suffix)
}
