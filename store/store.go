// Package store is the document registry: metadata rows in SQLite, document
// bytes as blob files under a data directory, keyed by prefixed UUIDv7 ids.
// It resolves the opaque document references the HTTP surface hands around;
// the compositing core itself never touches a filesystem path.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kamiladigital/pdf-editor/dbopen"
	"github.com/kamiladigital/pdf-editor/idgen"
)

// Role distinguishes uploaded sources from composed outputs.
type Role string

const (
	RoleSource Role = "source"
	RoleOutput Role = "output"
)

// ErrNotFound is returned when no document matches an id.
var ErrNotFound = errors.New("store: document not found")

// Document is one registry entry.
type Document struct {
	ID        string
	Role      Role
	Filename  string
	SizeBytes int64
	Pages     int
	Encrypted bool
	CreatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id          TEXT PRIMARY KEY,
    role        TEXT NOT NULL,
    filename    TEXT NOT NULL,
    size_bytes  INTEGER NOT NULL,
    pages       INTEGER NOT NULL DEFAULT 0,
    encrypted   INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_role_created
    ON documents(role, created_at);
`

// Store owns the registry database and the blob directory.
type Store struct {
	db       *sql.DB
	dir      string
	sourceID idgen.Generator
	outputID idgen.Generator
}

// Open opens (or creates) the registry at dbPath and the blob directory.
func Open(dbPath, blobDir string) (*Store, error) {
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: blob dir: %w", err)
	}
	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Store{
		db:       db,
		dir:      blobDir,
		sourceID: idgen.Prefixed("doc_", idgen.Default),
		outputID: idgen.Prefixed("out_", idgen.Default),
	}, nil
}

// Close closes the registry database.
func (s *Store) Close() error { return s.db.Close() }

// Put registers a new document and writes its bytes. Returns the assigned id.
func (s *Store) Put(ctx context.Context, role Role, filename string, pages int, encrypted bool, data []byte) (*Document, error) {
	gen := s.sourceID
	if role == RoleOutput {
		gen = s.outputID
	}
	doc := &Document{
		ID:        gen(),
		Role:      role,
		Filename:  filename,
		SizeBytes: int64(len(data)),
		Pages:     pages,
		Encrypted: encrypted,
		CreatedAt: time.Now().UTC(),
	}

	if err := os.WriteFile(s.blobPath(doc.ID), data, 0o644); err != nil {
		return nil, fmt.Errorf("store: write blob: %w", err)
	}
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, role, filename, size_bytes, pages, encrypted, created_at)
			VALUES (?,?,?,?,?,?,?)`,
			doc.ID, string(doc.Role), doc.Filename, doc.SizeBytes, doc.Pages,
			boolInt(doc.Encrypted), doc.CreatedAt.Unix())
		return err
	})
	if err != nil {
		os.Remove(s.blobPath(doc.ID))
		return nil, fmt.Errorf("store: insert: %w", err)
	}
	return doc, nil
}

// Get returns a document's metadata.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, role, filename, size_bytes, pages, encrypted, created_at
		FROM documents WHERE id = ?`, id)

	var doc Document
	var role string
	var encrypted int
	var created int64
	err := row.Scan(&doc.ID, &role, &doc.Filename, &doc.SizeBytes, &doc.Pages, &encrypted, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	doc.Role = Role(role)
	doc.Encrypted = encrypted != 0
	doc.CreatedAt = time.Unix(created, 0).UTC()
	return &doc, nil
}

// ReadBytes returns a document's bytes.
func (s *Store) ReadBytes(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read blob %s: %w", id, err)
	}
	return data, nil
}

// SetPages updates a document's recorded page count, filled in lazily for
// encrypted uploads whose geometry needs a password.
func (s *Store) SetPages(ctx context.Context, id string, pages int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents SET pages = ? WHERE id = ?`, pages, id)
	if err != nil {
		return fmt.Errorf("store: set pages %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document's row and blob.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := os.Remove(s.blobPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete blob %s: %w", id, err)
	}
	return nil
}

// SweepOutputs deletes composed outputs older than maxAge and returns how
// many were removed. Sources are kept until explicitly deleted.
func (s *Store) SweepOutputs(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM documents WHERE role = ? AND created_at < ?`,
		string(RoleOutput), cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: sweep query: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.dir, id+".pdf")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
