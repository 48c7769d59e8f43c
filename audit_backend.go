// audit_backend.go: Storage backends for the Mnemosyne audit trail
//
// Two backends implement the same minimal contract: a unified SQLite
// database for queryable control-change history, and JSONL files for
// deployments that ship logs to an aggregator. Selection degrades
// gracefully (SQLite, then JSONL) so audit never blocks engine startup.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

// auditBackend is the storage contract shared by SQLite and JSONL.
// Implementations must be safe for concurrent use.
type auditBackend interface {
	// Write persists a batch of audit events.
	Write(events []AuditEvent) error

	// Flush commits all pending writes to storage.
	Flush() error

	// Close releases resources; the backend must not be used afterwards.
	Close() error

	// Maintenance performs backend-specific upkeep (retention cleanup,
	// database optimization). Best effort; failures are non-fatal.
	Maintenance() error

	// GetStats returns storage statistics for monitoring.
	GetStats() (*AuditDatabaseStats, error)
}

// createAuditBackend selects the backend for the given configuration:
// an explicit .jsonl OutputFile forces JSONL, everything else tries the
// unified SQLite database first and falls back to JSONL.
func createAuditBackend(config AuditConfig) (auditBackend, error) {
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".jsonl" {
		return newJSONLBackend(config)
	}

	backend, err := newSQLiteBackend(config)
	if err == nil {
		return backend, nil
	}

	jsonlBackend, jsonlErr := newJSONLBackend(config)
	if jsonlErr != nil {
		return nil, fmt.Errorf("all audit backends failed - SQLite: %w, JSONL: %v", err, jsonlErr)
	}
	return jsonlBackend, nil
}

// unifiedAuditPath is the default location of the system-wide audit
// database shared by all Mnemosyne engines on the host.
func unifiedAuditPath() string {
	return filepath.Join(os.TempDir(), "mnemosyne", "control-audit.db")
}

// AuditDatabaseStats represents statistics about the audit storage.
type AuditDatabaseStats struct {
	TotalEvents     int64            `json:"total_events"`
	EventsByLevel   map[string]int64 `json:"events_by_level"`
	EventsByControl map[string]int64 `json:"events_by_control"`
	OldestEvent     *time.Time       `json:"oldest_event"`
	NewestEvent     *time.Time       `json:"newest_event"`
	StorageSize     int64            `json:"storage_size_bytes"`
}

// sqliteAuditBackend stores control-change audit events in a single
// SQLite database with WAL mode for concurrent access.
type sqliteAuditBackend struct {
	db         *sql.DB
	dbPath     string
	insertStmt *sql.Stmt
	mu         sync.RWMutex
	closed     bool
}

const auditSchemaSQL = `
CREATE TABLE IF NOT EXISTS control_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	level TEXT NOT NULL,
	event TEXT NOT NULL,
	component TEXT NOT NULL,
	control_id TEXT,
	snapshot_id TEXT,
	old_value TEXT,
	new_value TEXT,
	context TEXT,
	checksum TEXT,
	process_id INTEGER NOT NULL,
	process_name TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_control_events_timestamp ON control_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_control_events_control ON control_events(control_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_control_events_snapshot ON control_events(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_control_events_event ON control_events(event, timestamp);
CREATE INDEX IF NOT EXISTS idx_control_events_created ON control_events(created_at);
`

const auditInsertSQL = `
INSERT INTO control_events (
	timestamp, level, event, component,
	control_id, snapshot_id, old_value, new_value,
	context, checksum, process_id, process_name
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// newSQLiteBackend opens (or creates) the audit database, applies the
// schema and prepares the batch insert statement.
func newSQLiteBackend(config AuditConfig) (*sqliteAuditBackend, error) {
	dbPath := unifiedAuditPath()
	if config.OutputFile != "" && filepath.Ext(config.OutputFile) == ".db" {
		dbPath = config.OutputFile
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create audit database directory: %w", err)
	}

	// WAL keeps readers and writers from blocking each other; NORMAL sync
	// trades at most the last second of audit data for write throughput.
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_cache_size=1000", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	backend := &sqliteAuditBackend{db: db, dbPath: dbPath}

	if _, err := db.Exec(auditSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	stmt, err := db.Prepare(auditInsertSQL)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare audit insert statement: %w", err)
	}
	backend.insertStmt = stmt

	// Opportunistic retention cleanup on startup; not critical.
	_ = backend.Maintenance()

	return backend, nil
}

// Write persists a batch of events inside one transaction.
func (s *sqliteAuditBackend) Write(events []AuditEvent) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("cannot write to closed SQLite audit backend")
	}
	s.mu.RUnlock()

	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				fmt.Fprintf(os.Stderr, "failed to rollback audit transaction: %v\n", rollbackErr)
			}
		}
	}()

	txStmt := tx.Stmt(s.insertStmt)
	defer func() { _ = txStmt.Close() }()

	for _, event := range events {
		if err = s.insertEvent(txStmt, event); err != nil {
			return fmt.Errorf("failed to insert audit event: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}
	return nil
}

func (s *sqliteAuditBackend) insertEvent(stmt *sql.Stmt, event AuditEvent) error {
	oldValueJSON, err := marshalAuditValue(event.OldValue)
	if err != nil {
		return fmt.Errorf("failed to serialize old_value: %w", err)
	}
	newValueJSON, err := marshalAuditValue(event.NewValue)
	if err != nil {
		return fmt.Errorf("failed to serialize new_value: %w", err)
	}
	contextJSON, err := marshalAuditValue(event.Context)
	if err != nil {
		return fmt.Errorf("failed to serialize context: %w", err)
	}

	_, err = stmt.Exec(
		event.Timestamp.Format(time.RFC3339Nano),
		event.Level.String(),
		event.Event,
		event.Component,
		event.ControlID,
		event.SnapshotID,
		oldValueJSON,
		newValueJSON,
		contextJSON,
		event.Checksum,
		event.ProcessID,
		event.ProcessName,
	)
	return err
}

func marshalAuditValue(value interface{}) (string, error) {
	if value == nil {
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Flush forces a WAL checkpoint so recent transactions are durable.
func (s *sqliteAuditBackend) Flush() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil
	}
	s.mu.RUnlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to flush SQLite audit backend: %w", err)
	}
	return nil
}

// Maintenance removes events past the retention window and refreshes
// query planner statistics.
func (s *sqliteAuditBackend) Maintenance() error {
	const retentionDays = 90

	if _, err := s.db.Exec(
		"DELETE FROM control_events WHERE created_at < datetime('now', '-' || ? || ' days')",
		retentionDays,
	); err != nil {
		return fmt.Errorf("failed to cleanup old audit events: %w", err)
	}

	for _, task := range []string{"PRAGMA optimize", "PRAGMA wal_checkpoint(FULL)"} {
		if _, err := s.db.Exec(task); err != nil {
			continue
		}
	}
	return nil
}

// GetStats returns event counts, per-level and per-control breakdowns and
// the covered time range.
func (s *sqliteAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	stats := &AuditDatabaseStats{
		EventsByLevel:   make(map[string]int64),
		EventsByControl: make(map[string]int64),
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM control_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("failed to count audit events: %w", err)
	}

	if err := s.groupCounts("SELECT level, COUNT(*) FROM control_events GROUP BY level", stats.EventsByLevel); err != nil {
		return nil, err
	}
	if err := s.groupCounts("SELECT control_id, COUNT(*) FROM control_events WHERE control_id != '' GROUP BY control_id", stats.EventsByControl); err != nil {
		return nil, err
	}

	var oldestStr, newestStr sql.NullString
	err := s.db.QueryRow("SELECT MIN(created_at), MAX(created_at) FROM control_events").Scan(&oldestStr, &newestStr)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get audit time range: %w", err)
	}
	if oldestStr.Valid {
		if oldest, parseErr := time.Parse("2006-01-02 15:04:05", oldestStr.String); parseErr == nil {
			stats.OldestEvent = &oldest
		}
	}
	if newestStr.Valid {
		if newest, parseErr := time.Parse("2006-01-02 15:04:05", newestStr.String); parseErr == nil {
			stats.NewestEvent = &newest
		}
	}

	if info, statErr := os.Stat(s.dbPath); statErr == nil {
		stats.StorageSize = info.Size()
	}

	return stats, nil
}

func (s *sqliteAuditBackend) groupCounts(query string, into map[string]int64) error {
	rows, err := s.db.Query(query)
	if err != nil {
		return fmt.Errorf("failed to query audit stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int64
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan audit stats: %w", err)
		}
		into[key] = count
	}
	return rows.Err()
}

// Close flushes and releases the database. Safe to call multiple times.
func (s *sqliteAuditBackend) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		errs = append(errs, fmt.Errorf("failed to checkpoint audit database: %w", err))
	}
	if s.insertStmt != nil {
		if err := s.insertStmt.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close insert statement: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing SQLite audit backend: %v", errs)
	}
	return nil
}

// jsonlAuditBackend appends audit events as line-delimited JSON, for
// deployments that ship audit logs to an external aggregator.
type jsonlAuditBackend struct {
	file       *os.File
	sourceFile string
	mu         sync.Mutex
	closed     bool
}

func newJSONLBackend(config AuditConfig) (*jsonlAuditBackend, error) {
	if config.OutputFile == "" {
		return nil, fmt.Errorf("JSONL backend requires OutputFile to be specified")
	}

	if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0750); err != nil {
		return nil, fmt.Errorf("failed to create JSONL audit log directory: %w", err)
	}

	file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL audit log file: %w", err)
	}

	return &jsonlAuditBackend{file: file, sourceFile: config.OutputFile}, nil
}

// Write appends each event as one JSON line.
func (j *jsonlAuditBackend) Write(events []AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return fmt.Errorf("cannot write to closed JSONL audit backend")
	}

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to serialize audit event: %w", err)
		}
		if _, err := j.file.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write audit event to JSONL: %w", err)
		}
	}
	return nil
}

// Flush fsyncs the log file.
func (j *jsonlAuditBackend) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync JSONL audit file: %w", err)
	}
	return nil
}

// Maintenance is a no-op for JSONL; rotation is left to external tooling.
func (j *jsonlAuditBackend) Maintenance() error {
	return nil
}

// GetStats returns basic file statistics; per-event breakdowns would
// require scanning the whole log.
func (j *jsonlAuditBackend) GetStats() (*AuditDatabaseStats, error) {
	stats := &AuditDatabaseStats{
		EventsByLevel:   make(map[string]int64),
		EventsByControl: make(map[string]int64),
	}
	if info, err := os.Stat(j.sourceFile); err == nil {
		stats.StorageSize = info.Size()
	}
	return stats, nil
}

// Close releases the file handle. Safe to call multiple times.
func (j *jsonlAuditBackend) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}
