package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Store handles key-value operations using PostgreSQL
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and initializes the schema
func Open(connectionString string) (*Store, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		record_key TEXT PRIMARY KEY,
		payload BYTEA NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS hashes (
		hash_key TEXT NOT NULL,
		field TEXT NOT NULL,
		val TEXT NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		PRIMARY KEY (hash_key, field)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Get loads a record by key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM records WHERE record_key = $1`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kv.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load record %s: %w", key, err)
	}
	return payload, nil
}

// Set saves a record, replacing any previous value
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	query := `
	INSERT INTO records (record_key, payload)
	VALUES ($1, $2)
	ON CONFLICT (record_key)
	DO UPDATE SET payload = $2, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to save record %s: %w", key, err)
	}
	return nil
}

// SetNX saves a record only when the key is absent
func (s *Store) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	query := `
	INSERT INTO records (record_key, payload)
	VALUES ($1, $2)
	ON CONFLICT (record_key) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return false, fmt.Errorf("failed to create record %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to create record %s: %w", key, err)
	}
	return n == 1, nil
}

// HGetAll loads every field of a hash
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, val FROM hashes WHERE hash_key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load hash %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, val string
		if err := rows.Scan(&field, &val); err != nil {
			return nil, fmt.Errorf("failed to scan hash %s: %w", key, err)
		}
		out[field] = val
	}
	return out, rows.Err()
}

// HSet saves one field of a hash
func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	query := `
	INSERT INTO hashes (hash_key, field, val)
	VALUES ($1, $2, $3)
	ON CONFLICT (hash_key, field)
	DO UPDATE SET val = $3, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, key, field, value); err != nil {
		return fmt.Errorf("failed to save hash field %s %s: %w", key, field, err)
	}
	return nil
}

// HIncrBy atomically adds delta to a hash field
func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	query := `
	INSERT INTO hashes (hash_key, field, val)
	VALUES ($1, $2, $3)
	ON CONFLICT (hash_key, field)
	DO UPDATE SET val = (hashes.val::BIGINT + EXCLUDED.val::BIGINT)::TEXT, updated_at = NOW()
	RETURNING val
	`
	var val string
	if err := s.db.QueryRowContext(ctx, query, key, field, strconv.FormatInt(delta, 10)).Scan(&val); err != nil {
		return 0, fmt.Errorf("failed to increment hash field %s %s: %w", key, field, err)
	}
	return strconv.ParseInt(val, 10, 64)
}

// Close closes the database connection
func (s *Store) Close() error {
	log.Println("Closing database connection...")
	return s.db.Close()
}
