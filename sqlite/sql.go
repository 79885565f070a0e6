package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/hoshinonyaruko/dungeon-in-im/kv"
	_ "github.com/mattn/go-sqlite3"
)

const createRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS Records (
    RecordKey TEXT PRIMARY KEY,
    Payload BLOB NOT NULL
);
`

const createHashesTableSQL = `
CREATE TABLE IF NOT EXISTS Hashes (
    HashKey TEXT,
    Field TEXT,
    Val TEXT NOT NULL,
    PRIMARY KEY (HashKey, Field)
);
`

const createHashesIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_hash_key ON Hashes (HashKey);
`

// Store 是基于 SQLite 的 kv.Store 实现。
type Store struct {
	db *sql.DB
}

// Open 打开（或创建）数据库文件并初始化表结构。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// 单连接写入，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := InitializeDatabase(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func executeSQL(db *sql.DB, sqlStatement string) error {
	if _, err := db.Exec(sqlStatement); err != nil {
		log.Printf("Error executing SQL statement: %s\n%s", sqlStatement, err)
		return err
	}
	return nil
}

// InitializeDatabase creates the tables the store needs.
func InitializeDatabase(db *sql.DB) error {
	for _, stmt := range []string{createRecordsTableSQL, createHashesTableSQL, createHashesIndexSQL} {
		if err := executeSQL(db, stmt); err != nil {
			return fmt.Errorf("initialize sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT Payload FROM Records WHERE RecordKey = ?", key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return payload, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO Records (RecordKey, Payload) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	result, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO Records (RecordKey, Payload) VALUES (?, ?)", key, value)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	// 确认是否确实插入了记录
	count, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", key, err)
	}
	return count == 1, nil
}

func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT Field, Val FROM Hashes WHERE HashKey = ?", key)
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", key, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, val string
		if err := rows.Scan(&field, &val); err != nil {
			return nil, fmt.Errorf("hgetall %s: %w", key, err)
		}
		out[field] = val
	}
	return out, rows.Err()
}

func (s *Store) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.ExecContext(ctx, "INSERT OR REPLACE INTO Hashes (HashKey, Field, Val) VALUES (?, ?, ?)", key, field, value)
	if err != nil {
		return fmt.Errorf("hset %s %s: %w", key, field, err)
	}
	return nil
}

func (s *Store) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var val string
	err := s.db.QueryRowContext(ctx, `
INSERT INTO Hashes (HashKey, Field, Val) VALUES (?, ?, ?)
ON CONFLICT (HashKey, Field)
DO UPDATE SET Val = CAST(CAST(Hashes.Val AS INTEGER) + CAST(excluded.Val AS INTEGER) AS TEXT)
RETURNING Val`,
		key, field, strconv.FormatInt(delta, 10)).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("hincrby %s %s: %w", key, field, err)
	}
	return strconv.ParseInt(val, 10, 64)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
