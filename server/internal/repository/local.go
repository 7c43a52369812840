package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	_ "modernc.org/sqlite"
)

// LatestKey is the key the most recent record is kept under.
const LatestKey = "experimentData"

// ErrNoRecord is returned when nothing has been stored yet.
var ErrNoRecord = errors.New("no session record stored")

// LocalStore keeps records in a SQLite file on the station. The latest
// record is always under LatestKey; every record is also kept by id.
type LocalStore struct {
	db *sql.DB
}

// NewLocalStore opens or creates the database at path.
func NewLocalStore(path string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			initials TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &LocalStore{db: db}, nil
}

func (s *LocalStore) Save(ctx context.Context, rec *models.SessionRecord) (retErr error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		LatestKey, payload, now); err != nil {
		return fmt.Errorf("upsert %s: %w", LatestKey, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, initials, payload, created_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Initials, payload, rec.Timestamp); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return tx.Commit()
}

// Latest returns the most recently saved record.
func (s *LocalStore) Latest(ctx context.Context) (*models.SessionRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, LatestKey).Scan(&payload)
	return decodeRecord(payload, err)
}

// Get returns the record saved for a session id.
func (s *LocalStore) Get(ctx context.Context, id string) (*models.SessionRecord, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	return decodeRecord(payload, err)
}

func decodeRecord(payload []byte, err error) (*models.SessionRecord, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	var rec models.SessionRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}
