// Package store keeps serialized sketch images in a sqlite database, keyed by name and family.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Load when no image is stored under the requested key.
var ErrNotFound = errors.New("sketch not found")

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" gives a private database that
// lives as long as the Store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// an in-memory database is per connection
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.ensureTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS sketches (
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		image BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (name, kind)
	)`)
	if err != nil {
		return fmt.Errorf("create sketches table: %w", err)
	}
	return nil
}

// Save stores image under (name, kind), replacing any previous image.
func (s *Store) Save(ctx context.Context, name, kind string, image []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sketches(name, kind, image, updated_at)
		VALUES(?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name, kind) DO UPDATE SET image=excluded.image, updated_at=CURRENT_TIMESTAMP`,
		name, kind, image)
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", kind, name, err)
	}
	return nil
}

// Load returns the image stored under (name, kind), or ErrNotFound.
func (s *Store) Load(ctx context.Context, name, kind string) ([]byte, error) {
	var image []byte
	err := s.db.QueryRowContext(ctx, `SELECT image FROM sketches WHERE name = ? AND kind = ?`,
		name, kind).Scan(&image)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", kind, name, err)
	}
	return image, nil
}

// Names lists the stored names of one kind, sorted.
func (s *Store) Names(ctx context.Context, kind string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sketches WHERE kind = ? ORDER BY name`, kind)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the image under (name, kind). Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, name, kind string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sketches WHERE name = ? AND kind = ?`, name, kind); err != nil {
		return fmt.Errorf("delete %s/%s: %w", kind, name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
