package index

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Row is one catalogued document.
type Row struct {
	Path      string
	Folder    string
	Filename  string
	Title     string
	Category  string
	Tags      []string
	Size      int64
	Checksum  string
	Content   []byte
	UpdatedAt time.Time
}

const rowColumns = `path, folder, filename, title, category, tags, size, checksum, content, updated_at`

// Upsert inserts or replaces a document row.
func (db *DB) Upsert(r Row) error {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, _ := json.Marshal(tags)
	content := r.Content
	if content == nil {
		content = []byte{}
	}
	_, err := db.conn.Exec(`
		INSERT INTO documents (`+rowColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			folder     = excluded.folder,
			filename   = excluded.filename,
			title      = excluded.title,
			category   = excluded.category,
			tags       = excluded.tags,
			size       = excluded.size,
			checksum   = excluded.checksum,
			content    = excluded.content,
			updated_at = excluded.updated_at
	`, r.Path, r.Folder, r.Filename, r.Title, r.Category, string(tagsJSON), r.Size, r.Checksum, content, r.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("index: upsert %s: %w", r.Path, err)
	}
	return nil
}

// Delete removes a document row. Deleting a missing row is not an error.
func (db *DB) Delete(path string) error {
	if _, err := db.conn.Exec(`DELETE FROM documents WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete %s: %w", path, err)
	}
	return nil
}

// Get returns the row for path, or nil when it is not catalogued.
func (db *DB) Get(path string) (*Row, error) {
	row := db.conn.QueryRow(`SELECT `+rowColumns+` FROM documents WHERE path = ?`, path)
	r, err := scanRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %s: %w", path, err)
	}
	return r, nil
}

// GetChecksum returns the stored checksum for path, or "" if not catalogued.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum %s: %w", path, err)
	}
	return cs, nil
}

// AllChecksums maps every catalogued path to its checksum.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// List returns the rows whose top-level folder is one of folders, ordered by
// path. Folder comparison ignores case. An empty folders list means all.
func (db *DB) List(folders []string) ([]Row, error) {
	query := `SELECT ` + rowColumns + ` FROM documents`
	args := make([]any, 0, len(folders))
	if len(folders) > 0 {
		marks := make([]string, len(folders))
		for i, f := range folders {
			marks[i] = "?"
			args = append(args, f)
		}
		query += ` WHERE folder COLLATE NOCASE IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY path`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list: %w", err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("index: list: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// FindByFilename returns the paths of documents named filename, optionally
// restricted to a top-level folder. Both comparisons ignore case.
func (db *DB) FindByFilename(filename, folder string) ([]string, error) {
	query := `SELECT path FROM documents WHERE filename = ? COLLATE NOCASE`
	args := []any{filename}
	if folder != "" {
		query += ` AND folder = ? COLLATE NOCASE`
		args = append(args, folder)
	}
	query += ` ORDER BY path`
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: find %s: %w", filename, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count returns the number of catalogued documents.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Row, error) {
	var r Row
	var tags string
	if err := s.Scan(&r.Path, &r.Folder, &r.Filename, &r.Title, &r.Category, &tags,
		&r.Size, &r.Checksum, &r.Content, &r.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tags), &r.Tags)
	return &r, nil
}
