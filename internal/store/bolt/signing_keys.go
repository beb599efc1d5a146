package bolt

import (
	"context"
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dropDatabas3/mailotp/internal/store/core"
)

func (s *Store) GetActiveSigningKey(ctx context.Context) (*core.SigningKey, error) {
	var active *core.SigningKey
	now := time.Now()
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSigningKeys).ForEach(func(_, v []byte) error {
			var k core.SigningKey
			if err := json.Unmarshal(v, &k); err != nil {
				return err
			}
			if k.Status != core.KeyActive || now.Before(k.NotBefore) {
				return nil
			}
			// La más reciente gana
			if active == nil || k.NotBefore.After(active.NotBefore) {
				kk := k
				active = &kk
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, core.ErrNotFound
	}
	return active, nil
}

func (s *Store) ListVerificationKeys(ctx context.Context) ([]core.SigningKey, error) {
	var out []core.SigningKey
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSigningKeys).ForEach(func(_, v []byte) error {
			var k core.SigningKey
			if err := json.Unmarshal(v, &k); err != nil {
				return err
			}
			if k.Status == core.KeyRetired || len(k.PublicKey) == 0 {
				return nil
			}
			k.PrivateKey = nil
			out = append(out, k)
			return nil
		})
	})
	return out, err
}

func (s *Store) InsertSigningKey(ctx context.Context, k *core.SigningKey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		kk := *k
		if kk.NotBefore.IsZero() {
			kk.NotBefore = time.Now().UTC()
		}
		if kk.CreatedAt.IsZero() {
			kk.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(kk)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSigningKeys).Put([]byte(kk.KID), data)
	})
}

// RotateSigningKey: active → retiring + inserta la nueva, en una sola tx.
func (s *Store) RotateSigningKey(ctx context.Context, newKey core.SigningKey) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSigningKeys)
		now := time.Now().UTC()

		var updates = map[string][]byte{}
		err := b.ForEach(func(k, v []byte) error {
			var sk core.SigningKey
			if err := json.Unmarshal(v, &sk); err != nil {
				return err
			}
			if sk.Status != core.KeyActive {
				return nil
			}
			sk.Status = core.KeyRetiring
			sk.RotatedAt = &now
			data, err := json.Marshal(sk)
			if err != nil {
				return err
			}
			updates[string(k)] = data
			return nil
		})
		if err != nil {
			return err
		}
		for k, v := range updates {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}

		newKey.Status = core.KeyActive
		newKey.NotBefore = now
		newKey.CreatedAt = now
		data, err := json.Marshal(newKey)
		if err != nil {
			return err
		}
		return b.Put([]byte(newKey.KID), data)
	})
}
