// Package bolt provides a BoltDB-backed kv.Store.
package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	"go.etcd.io/bbolt"
)

const (
	recordBucket = "records"
	hashBucket   = "hashes"
)

// Store provides a BoltDB-backed key-value store. Hash keys are nested
// buckets under the hashes bucket.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(recordBucket)).Get([]byte(key))
		if payload == nil {
			return kv.ErrNotFound
		}
		// bolt values are only valid inside the transaction
		out = append([]byte(nil), payload...)
		return nil
	})
	return out, err
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(recordBucket)).Put([]byte(key), value)
	})
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	created := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(recordBucket))
		if bucket.Get([]byte(key)) != nil {
			return nil
		}
		created = true
		return bucket.Put([]byte(key), value)
	})
	return created, err
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(hashBucket)).Bucket([]byte(key))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(hashBucket)).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("create hash bucket %s: %w", key, err)
		}
		return bucket.Put([]byte(field), []byte(value))
	})
}

// HIncrBy relies on bolt allowing a single writer transaction at a time.
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.Bucket([]byte(hashBucket)).CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("create hash bucket %s: %w", key, err)
		}
		if cur := bucket.Get([]byte(field)); cur != nil {
			n, err := strconv.ParseInt(string(cur), 10, 64)
			if err != nil {
				return fmt.Errorf("hincrby %s %s: %w", key, field, err)
			}
			total = n
		}
		total += delta
		return bucket.Put([]byte(field), []byte(strconv.FormatInt(total, 10)))
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{recordBucket, hashBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}
