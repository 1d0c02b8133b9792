// Package template implements per-publication template learning: repeated
// operator corrections accumulate as geometry samples keyed by
// (publication key, field id), from which a suggested rectangle and a
// confidence score are derived.
package template

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite persistence layer for template samples.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the template database at path and applies
// the schema.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("cannot create data directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open template store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply template schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// storedSample is one persisted sample row, geometry in unit space.
type storedSample struct {
	Page           int
	X1, Y1, X2, Y2 float64
}

// insertSample appends a unit-space sample and prunes the (key, field)
// pair down to the retention cap, keeping the most recent rows. The whole
// mutation is one transaction: no intermediate state is observable.
func (s *Store) insertSample(ctx context.Context, key, name, fieldID string, sm storedSample, limit int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO publications (key, name, created_at, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE publications.name END,
			updated_at = excluded.updated_at`,
		key, name, now, now,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO template_samples (pub_key, field_id, page, x1, y1, x2, y2, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		key, fieldID, sm.Page, sm.X1, sm.Y1, sm.X2, sm.Y2, now,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM template_samples
		WHERE pub_key = ? AND field_id = ? AND id NOT IN (
			SELECT id FROM template_samples
			WHERE pub_key = ? AND field_id = ?
			ORDER BY id DESC LIMIT ?
		)`,
		key, fieldID, key, fieldID, limit,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// samples returns the retained samples for one (key, field) pair in
// insertion order.
func (s *Store) samples(ctx context.Context, key, fieldID string) ([]storedSample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT page, x1, y1, x2, y2 FROM template_samples
		WHERE pub_key = ? AND field_id = ?
		ORDER BY id ASC`,
		key, fieldID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedSample
	for rows.Next() {
		var sm storedSample
		if err := rows.Scan(&sm.Page, &sm.X1, &sm.Y1, &sm.X2, &sm.Y2); err != nil {
			return nil, err
		}
		out = append(out, sm)
	}
	return out, rows.Err()
}

// fieldIDs returns the field ids that have samples for the key.
func (s *Store) fieldIDs(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT field_id FROM template_samples
		WHERE pub_key = ? ORDER BY field_id`,
		key,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// deleteField removes every sample for one (key, field) pair. Returns
// false when the pair had no samples.
func (s *Store) deleteField(ctx context.Context, key, fieldID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM template_samples WHERE pub_key = ? AND field_id = ?`,
		key, fieldID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// deletePublication removes the publication and, via cascade, all of its
// samples. Returns false when the key is unknown.
func (s *Store) deletePublication(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM publications WHERE key = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Publication is a known publication with its learning progress.
type Publication struct {
	Key                string `json:"key"`
	Name               string `json:"name"`
	ArticlesProcessed  int    `json:"articles_processed"`
	FieldsWithTemplate int    `json:"fields_with_template"`
}

// publication loads one publication row; nil when unknown.
func (s *Store) publication(ctx context.Context, key string) (*Publication, error) {
	p := &Publication{}
	err := s.db.QueryRowContext(ctx, `
		SELECT p.key, p.name, p.articles_processed,
		       (SELECT COUNT(DISTINCT field_id) FROM template_samples WHERE pub_key = p.key)
		FROM publications p WHERE p.key = ?`, key).
		Scan(&p.Key, &p.Name, &p.ArticlesProcessed, &p.FieldsWithTemplate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// listPublications returns all publications, most processed first.
func (s *Store) listPublications(ctx context.Context) ([]Publication, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.key, p.name, p.articles_processed,
		       (SELECT COUNT(DISTINCT field_id) FROM template_samples WHERE pub_key = p.key)
		FROM publications p
		ORDER BY p.articles_processed DESC, p.key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Publication
	for rows.Next() {
		var p Publication
		if err := rows.Scan(&p.Key, &p.Name, &p.ArticlesProcessed, &p.FieldsWithTemplate); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// incrementProcessed bumps the processed-article counter for the key.
func (s *Store) incrementProcessed(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE publications
		SET articles_processed = articles_processed + 1, updated_at = ?
		WHERE key = ?`,
		time.Now().UnixMilli(), key,
	)
	return err
}
