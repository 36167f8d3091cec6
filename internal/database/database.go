// Package database implements SessionStore: the durable per-location
// counting session, backed by SQLite the same way this codebase's
// original database package was — pure-Go driver, WAL mode, upsert as a
// select then update-or-insert inside one transaction — generalized from a
// cameras/motion-events schema to the
// single cvcounter table the specification describes.
package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// ErrStoreError wraps any underlying SQL failure so callers can match on
// it without caring about the specific driver error.
var ErrStoreError = errors.New("store: operation failed")

// Part is a sub-result entry: a snapshot of counters appended to a
// session.
type Part struct {
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Defects   int       `json:"defects"`
	Correct   int       `json:"correct"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the persistent per-location counting session.
type Session struct {
	ID            int64
	Active        bool
	Location      string
	TotalCount    int
	SourceCount   int
	DefectsCount  int
	CorrectCount  int
	Parts         []Part
	CustomFields  map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Page is a paginated slice of sessions for one location.
type Page struct {
	Results []*Session
	Total   int
	Page    int
	PerPage int
	HasNext bool
	HasPrev bool
}

// Database is the SQLite-backed SessionStore.
type Database struct {
	db     *sql.DB
	prefix string
}

// New opens (and if needed creates) a SQLite database at dbPath. prefix is
// prepended to the table name, matching the specification's
// "<prefix>cvcounter" naming.
func New(dbPath, prefix string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %v", ErrStoreError, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable WAL: %v", ErrStoreError, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: enable foreign keys: %v", ErrStoreError, err)
	}

	return &Database{db: db, prefix: prefix}, nil
}

func (d *Database) table() string {
	return d.prefix + "cvcounter"
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate creates the cvcounter table and its (location, active) index if
// they do not already exist.
func (d *Database) Migrate() error {
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		total_count INTEGER NOT NULL DEFAULT 0,
		source_count INTEGER NOT NULL DEFAULT 0,
		defects_count INTEGER NOT NULL DEFAULT 0,
		correct_count INTEGER NOT NULL DEFAULT 0,
		parts TEXT NOT NULL DEFAULT '[]',
		custom_fields TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`, d.table())

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_location_active ON %s(location, active)`, d.prefix+"cvcounter", d.table())

	for _, stmt := range []string{schema, index} {
		if _, err := d.db.Exec(stmt); err != nil {
			return fmt.Errorf("%w: migrate: %v", ErrStoreError, err)
		}
	}
	return nil
}

// SaveResult implements save_result: update the active session for
// location if one exists, merging custom_fields into the existing
// mapping; otherwise insert a new active (or inactive, per the active
// argument) session.
func (d *Database) SaveResult(location string, totalCount, sourceCount, defectsCount, correctCount int, customFields map[string]string, active bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreError, err)
	}
	defer tx.Rollback()

	existing, err := d.activeSessionTx(tx, location)
	if err != nil {
		return err
	}

	if existing != nil {
		merged := mergeFields(existing.CustomFields, customFields)
		fieldsJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("%w: encode custom_fields: %v", ErrStoreError, err)
		}
		activeInt := boolToInt(active)
		q := fmt.Sprintf(`UPDATE %s SET total_count=?, source_count=?, defects_count=?, correct_count=?,
			custom_fields=?, active=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, d.table())
		if _, err := tx.Exec(q, totalCount, sourceCount, defectsCount, correctCount, string(fieldsJSON), activeInt, existing.ID); err != nil {
			return fmt.Errorf("%w: update: %v", ErrStoreError, err)
		}
	} else {
		fieldsJSON, err := json.Marshal(customFields)
		if err != nil {
			return fmt.Errorf("%w: encode custom_fields: %v", ErrStoreError, err)
		}
		q := fmt.Sprintf(`INSERT INTO %s (location, active, total_count, source_count, defects_count, correct_count, parts, custom_fields)
			VALUES (?, ?, ?, ?, ?, ?, '[]', ?)`, d.table())
		if _, err := tx.Exec(q, location, boolToInt(active), totalCount, sourceCount, defectsCount, correctCount, string(fieldsJSON)); err != nil {
			return fmt.Errorf("%w: insert: %v", ErrStoreError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreError, err)
	}
	return nil
}

// SavePartResult implements save_part_result: append an entry to the
// active session's parts, failing if no session is active for location.
func (d *Database) SavePartResult(location string, current, total, defects, correct int) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreError, err)
	}
	defer tx.Rollback()

	existing, err := d.activeSessionTx(tx, location)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: no active session for location %q", ErrStoreError, location)
	}

	parts := append([]Part{{Current: current, Total: total, Defects: defects, Correct: correct, CreatedAt: time.Now()}}, existing.Parts...)
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("%w: encode parts: %v", ErrStoreError, err)
	}

	q := fmt.Sprintf(`UPDATE %s SET parts=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, d.table())
	if _, err := tx.Exec(q, string(partsJSON), existing.ID); err != nil {
		return fmt.Errorf("%w: update parts: %v", ErrStoreError, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrStoreError, err)
	}
	return nil
}

// CloseCurrentCount implements close_current_count: deactivate the active
// session for location, if any. Idempotent: a second call with no active
// session is a no-op and reports false.
func (d *Database) CloseCurrentCount(location string) (bool, error) {
	q := fmt.Sprintf(`UPDATE %s SET active=0, updated_at=CURRENT_TIMESTAMP WHERE location=? AND active=1`, d.table())
	result, err := d.db.Exec(q, location)
	if err != nil {
		return false, fmt.Errorf("%w: close: %v", ErrStoreError, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: rows affected: %v", ErrStoreError, err)
	}
	return n > 0, nil
}

// GetCurrentCount implements get_current_count.
func (d *Database) GetCurrentCount(location string) (*Session, error) {
	return d.activeSessionTx(d.db, location)
}

// GetCount implements get_count: fetch a session by id regardless of
// active state.
func (d *Database) GetCount(id int64) (*Session, error) {
	q := fmt.Sprintf(`SELECT id, location, active, total_count, source_count, defects_count, correct_count, parts, custom_fields, created_at, updated_at
		FROM %s WHERE id=?`, d.table())
	row := d.db.QueryRow(q, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrStoreError, err)
	}
	return s, nil
}

// GetPaginated implements get_paginated: results ordered most-recent-first
// (by id descending), has_next computed from page*per_page < total.
func (d *Database) GetPaginated(location string, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}

	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE location=?`, d.table())
	if err := d.db.QueryRow(countQ, location).Scan(&total); err != nil {
		return nil, fmt.Errorf("%w: count: %v", ErrStoreError, err)
	}

	offset := (page - 1) * perPage
	q := fmt.Sprintf(`SELECT id, location, active, total_count, source_count, defects_count, correct_count, parts, custom_fields, created_at, updated_at
		FROM %s WHERE location=? ORDER BY id DESC LIMIT ? OFFSET ?`, d.table())
	rows, err := d.db.Query(q, location, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrStoreError, err)
	}
	defer rows.Close()

	var results []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrStoreError, err)
		}
		results = append(results, s)
	}

	return &Page{
		Results: results,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		HasNext: page*perPage < total,
		HasPrev: page > 1,
	}, nil
}

// TotalPages returns ceil(total/perPage), the companion figure to
// Page.HasNext; both must agree at the boundary page = ceil(total/per_page)+1.
func TotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(perPage)))
}

type queryRowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row queryRowScanner) (*Session, error) {
	var s Session
	var activeInt int
	var partsJSON, fieldsJSON string
	if err := row.Scan(&s.ID, &s.Location, &activeInt, &s.TotalCount, &s.SourceCount,
		&s.DefectsCount, &s.CorrectCount, &partsJSON, &fieldsJSON, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Active = activeInt == 1
	if err := json.Unmarshal([]byte(partsJSON), &s.Parts); err != nil {
		return nil, fmt.Errorf("decode parts: %w", err)
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &s.CustomFields); err != nil {
		return nil, fmt.Errorf("decode custom_fields: %w", err)
	}
	return &s, nil
}

type execQueryRower interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func (d *Database) activeSessionTx(q execQueryRower, location string) (*Session, error) {
	query := fmt.Sprintf(`SELECT id, location, active, total_count, source_count, defects_count, correct_count, parts, custom_fields, created_at, updated_at
		FROM %s WHERE location=? AND active=1 LIMIT 1`, d.table())
	row := q.QueryRow(query, location)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreError, err)
	}
	return s, nil
}

func mergeFields(existing, incoming map[string]string) map[string]string {
	out := make(map[string]string, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
