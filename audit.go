// audit.go: Audit trail for Mnemosyne control-state changes
//
// Every apply, revert, snapshot and cleanup can be persisted with
// before/after values and a tamper-detection checksum, giving full
// accountability for runtime control changes in production environments.
// The logger subscribes to the engine's lifecycle events; it never calls
// back into the engine.
//
// Copyright (c) 2025 AGILira
// Series: AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
)

// AuditLevel represents the severity of audit events
type AuditLevel int

const (
	AuditInfo AuditLevel = iota
	AuditWarn
	AuditCritical
	AuditSecurity
)

func (al AuditLevel) String() string {
	switch al {
	case AuditInfo:
		return "INFO"
	case AuditWarn:
		return "WARN"
	case AuditCritical:
		return "CRITICAL"
	case AuditSecurity:
		return "SECURITY"
	default:
		return "UNKNOWN"
	}
}

// AuditEvent represents a single auditable event
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	Level       AuditLevel             `json:"level"`
	Event       string                 `json:"event"`
	Component   string                 `json:"component"`
	ControlID   string                 `json:"control_id,omitempty"`
	SnapshotID  string                 `json:"snapshot_id,omitempty"`
	OldValue    interface{}            `json:"old_value,omitempty"`
	NewValue    interface{}            `json:"new_value,omitempty"`
	ProcessID   int                    `json:"process_id"`
	ProcessName string                 `json:"process_name"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Checksum    string                 `json:"checksum"` // For tamper detection
}

// AuditConfig configures the audit system
type AuditConfig struct {
	Enabled       bool          `json:"enabled"`
	OutputFile    string        `json:"output_file"`
	MinLevel      AuditLevel    `json:"min_level"`
	BufferSize    int           `json:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultAuditConfig returns secure default audit configuration with
// unified SQLite storage. An empty OutputFile selects the system-wide
// audit database; specify a .jsonl path for line-delimited JSON output.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled:       true,
		OutputFile:    "", // Empty triggers unified SQLite backend
		MinLevel:      AuditInfo,
		BufferSize:    1000,
		FlushInterval: 5 * time.Second,
	}
}

// AuditLogger provides buffered audit logging with pluggable backends.
//
// Events are buffered in memory and flushed in batches, either when the
// buffer fills or on the configured interval, so audit persistence stays
// off the engine's mutating hot path. Backend selection follows the
// unified strategy: SQLite when available, JSONL as fallback.
type AuditLogger struct {
	config      AuditConfig
	backend     auditBackend
	buffer      []AuditEvent
	bufferMu    sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	processID   int
	processName string
}

// NewAuditLogger creates a new audit logger with automatic backend
// selection (SQLite unified database preferred, JSONL fallback).
func NewAuditLogger(config AuditConfig) (*AuditLogger, error) {
	backend, err := createAuditBackend(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audit backend: %w", err)
	}

	logger := &AuditLogger{
		config:      config,
		backend:     backend,
		buffer:      make([]AuditEvent, 0, config.BufferSize),
		stopCh:      make(chan struct{}),
		processID:   os.Getpid(),
		processName: processName(),
	}

	if config.FlushInterval > 0 {
		logger.flushTicker = time.NewTicker(config.FlushInterval)
		go logger.flushLoop()
	}

	return logger, nil
}

// Log records an audit event.
func (al *AuditLogger) Log(level AuditLevel, event, controlID, snapshotID string, oldVal, newVal interface{}, context map[string]interface{}) {
	if al == nil || al.backend == nil || !al.config.Enabled || level < al.config.MinLevel {
		return
	}

	auditEvent := AuditEvent{
		Timestamp:   timecache.CachedTime(),
		Level:       level,
		Event:       event,
		Component:   "mnemosyne",
		ControlID:   controlID,
		SnapshotID:  snapshotID,
		OldValue:    oldVal,
		NewValue:    newVal,
		ProcessID:   al.processID,
		ProcessName: al.processName,
		Context:     context,
	}
	auditEvent.Checksum = al.generateChecksum(auditEvent)

	al.bufferMu.Lock()
	al.buffer = append(al.buffer, auditEvent)
	if len(al.buffer) >= al.config.BufferSize {
		_ = al.flushBufferUnsafe() // Ignore flush errors during buffering to maintain performance
	}
	al.bufferMu.Unlock()
}

// HandleEvent translates an engine lifecycle event into an audit record.
// Registered as the engine's event subscriber when audit is enabled.
func (al *AuditLogger) HandleEvent(event Event) {
	switch event.Type {
	case EventStateChanged:
		al.LogStateChange(event.Change)
	case EventSnapshotCreated:
		al.Log(AuditInfo, "snapshot_created", "", event.SnapshotID, nil, nil, nil)
	case EventSnapshotRestored:
		al.Log(AuditCritical, "snapshot_restored", "", event.SnapshotID, nil, nil, nil)
	case EventSnapshotDeleted:
		al.Log(AuditInfo, "snapshot_deleted", "", strings.Join(event.RemovedIDs, ","), nil, nil,
			map[string]interface{}{"removed_count": event.RemovedCount})
	}
}

// LogStateChange logs a control apply or revert with before/after values.
func (al *AuditLogger) LogStateChange(change *StateChange) {
	if change == nil {
		return
	}
	al.Log(AuditCritical, "control_"+string(change.ChangeType), change.ControlID, "",
		change.Before, change.After, nil)
}

// LogSecurityEvent logs security-related events (e.g. rejected operations
// reported by a policy collaborator).
func (al *AuditLogger) LogSecurityEvent(event, details string, context map[string]interface{}) {
	if context == nil {
		context = map[string]interface{}{}
	}
	context["details"] = details
	al.Log(AuditSecurity, event, "", "", nil, nil, context)
}

// Flush immediately writes all buffered events
func (al *AuditLogger) Flush() error {
	al.bufferMu.Lock()
	defer al.bufferMu.Unlock()
	return al.flushBufferUnsafe()
}

// Stats returns backend storage statistics.
func (al *AuditLogger) Stats() (*AuditDatabaseStats, error) {
	if al == nil || al.backend == nil {
		return nil, fmt.Errorf("audit backend not initialized")
	}
	return al.backend.GetStats()
}

// Maintenance runs backend retention and optimization tasks.
func (al *AuditLogger) Maintenance() error {
	if al == nil || al.backend == nil {
		return nil
	}
	return al.backend.Maintenance()
}

// Close gracefully shuts down the audit logger
func (al *AuditLogger) Close() error {
	close(al.stopCh)
	if al.flushTicker != nil {
		al.flushTicker.Stop()
	}

	if err := al.Flush(); err != nil {
		return fmt.Errorf("failed to flush audit logger during close: %w", err)
	}

	if al.backend != nil {
		if err := al.backend.Close(); err != nil {
			return fmt.Errorf("failed to close audit backend: %w", err)
		}
	}

	return nil
}

// flushLoop runs the background flush process
func (al *AuditLogger) flushLoop() {
	for {
		select {
		case <-al.flushTicker.C:
			_ = al.Flush() // Ignore flush errors in background process to maintain performance
		case <-al.stopCh:
			return
		}
	}
}

// flushBufferUnsafe writes buffer to backend storage (caller must hold bufferMu).
func (al *AuditLogger) flushBufferUnsafe() error {
	if len(al.buffer) == 0 {
		return nil
	}

	if err := al.backend.Write(al.buffer); err != nil {
		return fmt.Errorf("failed to write audit events to backend: %w", err)
	}

	al.buffer = al.buffer[:0]
	return nil
}

// generateChecksum creates a tamper-detection checksum using SHA-256
func (al *AuditLogger) generateChecksum(event AuditEvent) string {
	data := fmt.Sprintf("%s:%s:%s:%s:%v:%v",
		event.Timestamp.Format(time.RFC3339Nano),
		event.Event, event.ControlID, event.SnapshotID, event.OldValue, event.NewValue)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

func processName() string {
	return "mnemosyne" // Could read from /proc/self/comm
}
