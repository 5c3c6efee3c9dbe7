package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"go-case-tracker/internal/models"
)

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("journal entry not found")

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("database is closed")

// DB wraps the SQLite mutation journal.
type DB struct {
	db *sql.DB
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Status string
	CaseID int
	Limit  int
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database at %s: %w", path, err)
	}

	dbWrapper := &DB{db: db}
	if err := dbWrapper.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	log.Debugf("SQLite journal opened at %s", path)
	return dbWrapper, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mutations (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL CHECK (operation IN ('create', 'update', 'delete')),
		case_id INTEGER NOT NULL DEFAULT 0,
		case_name TEXT NOT NULL DEFAULT '',
		image_name TEXT,
		image_hash TEXT,
		model_name TEXT,
		model_hash TEXT,
		status TEXT NOT NULL CHECK (status IN ('Pending', 'Done', 'Error')),
		error_details TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mutations_status ON mutations(status);
	CREATE INDEX IF NOT EXISTS idx_mutations_case_id ON mutations(case_id);
	CREATE INDEX IF NOT EXISTS idx_mutations_created_at ON mutations(created_at);
	`

	_, err := d.db.Exec(schema)
	return err
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()

		d.closeErr = d.db.Close()
		d.closed = true

		if d.closeErr != nil {
			log.Errorf("Error during database close operation: %v", d.closeErr)
		} else {
			log.Debug("Journal database closed.")
		}
	})

	return d.closeErr
}

// Put inserts or replaces an entry. Timestamps are filled in when zero.
func (d *DB) Put(entry models.JournalEntry) error {
	if entry.ID == "" {
		return errors.New("journal entry has no id")
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = now
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	entry.UpdatedAt = entry.UpdatedAt.UTC()

	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	_, err := d.db.Exec(`
		INSERT OR REPLACE INTO mutations (
			id, operation, case_id, case_name,
			image_name, image_hash, model_name, model_hash,
			status, error_details, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Operation, entry.CaseID, entry.CaseName,
		nullable(entry.ImageName), nullable(entry.ImageHash), nullable(entry.ModelName), nullable(entry.ModelHash),
		entry.Status, nullable(entry.ErrorDetails), entry.CreatedAt, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("error storing journal entry %s: %w", entry.ID, err)
	}
	return nil
}

// Get returns the entry with the given id.
func (d *DB) Get(id string) (models.JournalEntry, error) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return models.JournalEntry{}, ErrClosed
	}

	row := d.db.QueryRow(selectColumns+" WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.JournalEntry{}, ErrNotFound
	} else if err != nil {
		return models.JournalEntry{}, fmt.Errorf("error querying journal entry %s: %w", id, err)
	}
	return entry, nil
}

// List returns entries newest first.
func (d *DB) List(filter ListFilter) ([]models.JournalEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CaseID > 0 {
		where = append(where, "case_id = ?")
		args = append(args, filter.CaseID)
	}

	query := selectColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing journal entries: %w", err)
	}
	defer rows.Close()

	var entries []models.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			log.WithError(err).Warn("List: Error scanning journal row")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes one entry.
func (d *DB) Delete(id string) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}

	result, err := d.db.Exec("DELETE FROM mutations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting journal entry %s: %w", id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Prune removes entries created before cutoff and returns how many were removed.
func (d *DB) Prune(cutoff time.Time) (int64, error) {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return 0, ErrClosed
	}

	result, err := d.db.Exec("DELETE FROM mutations WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("error pruning journal: %w", err)
	}
	n, _ := result.RowsAffected()
	log.WithField("removed", n).Debug("Pruned journal")
	return n, nil
}

const selectColumns = `
	SELECT id, operation, case_id, case_name,
		image_name, image_hash, model_name, model_hash,
		status, error_details, created_at, updated_at
	FROM mutations`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (models.JournalEntry, error) {
	var (
		entry                                                    models.JournalEntry
		imageName, imageHash, modelName, modelHash, errorDetails sql.NullString
	)
	err := s.Scan(
		&entry.ID, &entry.Operation, &entry.CaseID, &entry.CaseName,
		&imageName, &imageHash, &modelName, &modelHash,
		&entry.Status, &errorDetails, &entry.CreatedAt, &entry.UpdatedAt,
	)
	if err != nil {
		return models.JournalEntry{}, err
	}
	entry.ImageName = imageName.String
	entry.ImageHash = imageHash.String
	entry.ModelName = modelName.String
	entry.ModelHash = modelHash.String
	entry.ErrorDetails = errorDetails.String
	return entry, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
