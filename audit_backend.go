// audit_backend.go: storage backends for the inflow audit trail
//
// Two backends share one small contract:
//   - SQLite (default): queryable, WAL mode, safe for several processes
//   - JSONL: one JSON object per line, for shipping to log aggregators
//
// Backend selection: *.jsonl selects JSONL. Anything else tries SQLite and
// degrades to JSONL next to the requested path if SQLite cannot be opened.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package inflow

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-errors"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditBackend persists batches of audit events
type auditBackend interface {
	Write(events []AuditEvent) error
	Flush() error
	Close() error
	Stats() (*AuditStats, error)
}

// AuditStats summarises the stored audit trail
type AuditStats struct {
	Backend       string           `json:"backend"`
	Location      string           `json:"location"`
	TotalEvents   int64            `json:"total_events"`
	EventsByLevel map[string]int64 `json:"events_by_level"`
	EventsByName  map[string]int64 `json:"events_by_name"`
	OldestEvent   time.Time        `json:"oldest_event"`
	NewestEvent   time.Time        `json:"newest_event"`
	SizeBytes     int64            `json:"size_bytes"`
}

func newAuditStats(backend, location string) *AuditStats {
	return &AuditStats{
		Backend:       backend,
		Location:      location,
		EventsByLevel: make(map[string]int64),
		EventsByName:  make(map[string]int64),
	}
}

func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config.OutputFile)
	}

	backend, err := newSQLiteBackend(auditDatabasePath(config))
	if err == nil {
		return backend, nil
	}

	fallback := strings.TrimSuffix(auditDatabasePath(config), filepath.Ext(auditDatabasePath(config))) + ".jsonl"
	jsonlBackend, jsonlErr := newJSONLBackend(fallback)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// auditDatabasePath is OutputFile, or the shared per-machine database
func auditDatabasePath(config AuditConfig) string {
	if config.OutputFile != "" {
		return config.OutputFile
	}
	return filepath.Join(os.TempDir(), "inflow", "audit.db")
}

// sqliteAuditBackend stores events in a single audit_events table
type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	level TEXT NOT NULL,
	event TEXT NOT NULL,
	component TEXT NOT NULL,
	file_path TEXT,
	value TEXT,
	process_id INTEGER NOT NULL,
	process_name TEXT NOT NULL,
	context TEXT,
	checksum TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_events(event);
CREATE INDEX IF NOT EXISTS idx_audit_file_path ON audit_events(file_path);`

func newSQLiteBackend(dbPath string) (*sqliteAuditBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	// WAL keeps readers (inflow audit stats) from blocking the writer
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	stmt, err := db.Prepare(`
		INSERT INTO audit_events (
			timestamp, level, event, component, file_path, value,
			process_id, process_name, context, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit insert: %w", err)
	}

	return &sqliteAuditBackend{db: db, dbPath: dbPath, insertStmt: stmt}, nil
}

// Write inserts the batch in one transaction
func (s *sqliteAuditBackend) Write(events []AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errors.New(ErrCodeAudit, "cannot write to closed SQLite audit backend")
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	stmt := tx.Stmt(s.insertStmt)
	defer stmt.Close()

	for _, event := range events {
		if err := insertEvent(stmt, event); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertEvent(stmt *sql.Stmt, event AuditEvent) error {
	var value, context sql.NullString
	if event.Value != nil {
		data, err := json.Marshal(event.Value)
		if err != nil {
			return fmt.Errorf("failed to serialize audit value: %w", err)
		}
		value = sql.NullString{String: string(data), Valid: true}
	}
	if len(event.Context) > 0 {
		data, err := json.Marshal(event.Context)
		if err != nil {
			return fmt.Errorf("failed to serialize audit context: %w", err)
		}
		context = sql.NullString{String: string(data), Valid: true}
	}

	_, err := stmt.Exec(
		event.Timestamp.UTC().Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Component,
		event.FilePath,
		value,
		event.ProcessID,
		event.ProcessName,
		context,
		event.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Flush checkpoints the WAL
func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil
	}
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("failed to checkpoint audit database: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) Stats() (*AuditStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.New(ErrCodeAudit, "SQLite audit backend is closed")
	}

	stats := newAuditStats("sqlite", s.dbPath)
	if err := s.db.QueryRow("SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}
	if err := s.countBy("level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.countBy("event", stats.EventsByName); err != nil {
		return nil, err
	}

	if stats.TotalEvents > 0 {
		var oldest, newest string
		if err := s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest); err != nil {
			return nil, fmt.Errorf("failed to read audit time range: %w", err)
		}
		stats.OldestEvent, _ = time.Parse(time.RFC3339Nano, oldest)
		stats.NewestEvent, _ = time.Parse(time.RFC3339Nano, newest)
	}

	if info, err := os.Stat(s.dbPath); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

// countBy groups events by a fixed column name (level or event)
func (s *sqliteAuditBackend) countBy(column string, into map[string]int64) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM audit_events GROUP BY " + column)
	if err != nil {
		return fmt.Errorf("failed to group audit events by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan audit %s count: %w", column, err)
		}
		into[key] = count
	}
	return rows.Err()
}

// Close is safe to call more than once
func (s *sqliteAuditBackend) Close() error {
	_ = s.Flush() // best effort, the handles are released regardless

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

// jsonlAuditBackend appends one JSON object per event
type jsonlAuditBackend struct {
	file   *os.File
	path   string
	mu     sync.Mutex
	closed bool
}

func newJSONLBackend(path string) (*jsonlAuditBackend, error) {
	if path == "" {
		return nil, errors.New(ErrCodeAudit, "JSONL audit backend requires an output file")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit directory: %w", err)
	}

	// #nosec G304 -- audit path comes from configuration
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit file: %w", err)
	}
	return &jsonlAuditBackend{file: file, path: path}, nil
}

func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return errors.New(ErrCodeAudit, "cannot write to closed JSONL audit backend")
	}

	writer := bufio.NewWriter(j.file)
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		data = append(data, '\n')
		if _, err := writer.Write(data); err != nil {
			return fmt.Errorf("failed to write audit event: %w", err)
		}
	}
	return writer.Flush()
}

func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	return j.file.Sync()
}

// Stats scans the whole file; JSONL trails are expected to stay small
func (j *jsonlAuditBackend) Stats() (*AuditStats, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	stats := newAuditStats("jsonl", j.path)

	// #nosec G304 -- same path the backend writes
	file, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		stats.TotalEvents++
		stats.EventsByLevel[event.Level.String()]++
		stats.EventsByName[event.Event]++
		if stats.OldestEvent.IsZero() || event.Timestamp.Before(stats.OldestEvent) {
			stats.OldestEvent = event.Timestamp
		}
		if event.Timestamp.After(stats.NewestEvent) {
			stats.NewestEvent = event.Timestamp
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan JSONL audit file: %w", err)
	}

	if info, err := file.Stat(); err == nil {
		stats.SizeBytes = info.Size()
	}
	return stats, nil
}

func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
