// Package instances persists the registry of known messaging instances and
// their last reported connection status.
package instances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when an instance id is not in the registry.
var ErrNotFound = errors.New("instance not found")

// Record is one registered instance.
type Record struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"displayName,omitempty"`
	PhoneNumber  string    `json:"phoneNumber,omitempty"`
	Status       string    `json:"status,omitempty"`
	StatusSource string    `json:"statusSource,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Store is a SQLite-backed instance registry.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	id            TEXT PRIMARY KEY,
	display_name  TEXT NOT NULL DEFAULT '',
	phone_number  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT '',
	status_source TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_instances_status ON instances(status);
`

// Open creates or opens the registry database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or updates an instance record. Status fields are only
// touched when the incoming record carries them.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("instance id is required")
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, display_name, phone_number, status, status_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name  = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE instances.display_name END,
			phone_number  = CASE WHEN excluded.phone_number != '' THEN excluded.phone_number ELSE instances.phone_number END,
			status        = CASE WHEN excluded.status != '' THEN excluded.status ELSE instances.status END,
			status_source = CASE WHEN excluded.status != '' THEN excluded.status_source ELSE instances.status_source END,
			updated_at    = excluded.updated_at`,
		rec.ID, rec.DisplayName, rec.PhoneNumber, rec.Status, rec.StatusSource, now, now)
	if err != nil {
		return fmt.Errorf("upsert instance %s: %w", rec.ID, err)
	}
	return nil
}

// SetStatus records the last reported status for an instance, creating the
// record if the instance is new to the registry.
func (s *Store) SetStatus(ctx context.Context, id, status, source string) error {
	return s.Upsert(ctx, Record{ID: id, Status: status, StatusSource: source})
}

// Get returns one instance record.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, phone_number, status, status_source, created_at, updated_at
		FROM instances WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("instance %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// List returns all instance records ordered by id.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, phone_number, status, status_source, created_at, updated_at
		FROM instances ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes an instance from the registry. Deleting an unknown id is a
// no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete instance %s: %w", id, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.DisplayName, &rec.PhoneNumber, &rec.Status,
		&rec.StatusSource, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}
