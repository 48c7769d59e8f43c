// audit_test.go: Audit trail tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func jsonlAuditConfig(t *testing.T) AuditConfig {
	t.Helper()
	return AuditConfig{
		Enabled:    true,
		OutputFile: filepath.Join(t.TempDir(), "audit.jsonl"),
		MinLevel:   AuditInfo,
		BufferSize: 100,
		// No ticker; tests flush explicitly.
		FlushInterval: 0,
	}
}

func readAuditLines(t *testing.T, path string) []AuditEvent {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open audit file: %v", err)
	}
	defer func() { _ = file.Close() }()

	var events []AuditEvent
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("invalid JSONL line: %v", err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("failed to read audit file: %v", err)
	}
	return events
}

func TestAuditLoggerJSONL(t *testing.T) {
	config := jsonlAuditConfig(t)
	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(AuditInfo, "test_event", "ctrl-1", "snap-1",
		map[string]interface{}{"v": 1}, map[string]interface{}{"v": 2}, nil)
	logger.Log(AuditCritical, "critical_event", "ctrl-2", "", nil, nil,
		map[string]interface{}{"reason": "test"})

	if err := logger.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	events := readAuditLines(t, config.OutputFile)
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}

	first := events[0]
	if first.Event != "test_event" || first.ControlID != "ctrl-1" || first.SnapshotID != "snap-1" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.Component != "mnemosyne" || first.ProcessID == 0 {
		t.Errorf("process metadata missing: %+v", first)
	}
	if len(first.Checksum) != 64 {
		t.Errorf("expected SHA-256 hex checksum, got %q", first.Checksum)
	}
	if events[1].Checksum == first.Checksum {
		t.Error("distinct events must carry distinct checksums")
	}
	if events[1].Level != AuditCritical {
		t.Errorf("expected CRITICAL level, got %s", events[1].Level)
	}
}

func TestAuditLoggerMinLevelFilter(t *testing.T) {
	config := jsonlAuditConfig(t)
	config.MinLevel = AuditCritical

	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(AuditInfo, "filtered", "", "", nil, nil, nil)
	logger.Log(AuditWarn, "filtered_too", "", "", nil, nil, nil)
	logger.Log(AuditCritical, "kept", "", "", nil, nil, nil)
	logger.Log(AuditSecurity, "kept_too", "", "", nil, nil, nil)

	if err := logger.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	events := readAuditLines(t, config.OutputFile)
	if len(events) != 2 {
		t.Fatalf("expected 2 events past the level filter, got %d", len(events))
	}
	if events[0].Event != "kept" || events[1].Event != "kept_too" {
		t.Errorf("wrong events kept: %v, %v", events[0].Event, events[1].Event)
	}
}

func TestAuditLoggerDisabled(t *testing.T) {
	config := jsonlAuditConfig(t)
	config.Enabled = false

	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(AuditCritical, "dropped", "", "", nil, nil, nil)
	if err := logger.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if events := readAuditLines(t, config.OutputFile); len(events) != 0 {
		t.Errorf("disabled logger must not record events, got %d", len(events))
	}
}

func TestAuditLoggerBufferAutoFlush(t *testing.T) {
	config := jsonlAuditConfig(t)
	config.BufferSize = 2

	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(AuditInfo, "one", "", "", nil, nil, nil)
	logger.Log(AuditInfo, "two", "", "", nil, nil, nil)

	// Buffer hit its limit; events must be on disk without an explicit Flush.
	if events := readAuditLines(t, config.OutputFile); len(events) != 2 {
		t.Errorf("expected auto-flush at buffer limit, got %d events", len(events))
	}
}

func TestAuditLoggerHandleEvent(t *testing.T) {
	config := jsonlAuditConfig(t)
	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.HandleEvent(Event{
		Type: EventStateChanged,
		Change: &StateChange{
			ControlID:  "ctrl",
			ChangeType: StateChangeApply,
			Before:     map[string]interface{}{},
			After:      map[string]interface{}{"v": 1},
			Timestamp:  time.Now(),
		},
	})
	logger.HandleEvent(Event{Type: EventSnapshotCreated, SnapshotID: "snap-1"})
	logger.HandleEvent(Event{Type: EventSnapshotRestored, SnapshotID: "snap-1"})
	logger.HandleEvent(Event{Type: EventSnapshotDeleted, RemovedIDs: []string{"snap-0"}, RemovedCount: 1})

	if err := logger.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	events := readAuditLines(t, config.OutputFile)
	if len(events) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(events))
	}
	if events[0].Event != "control_apply" || events[0].ControlID != "ctrl" {
		t.Errorf("state-changed mapping wrong: %+v", events[0])
	}
	if events[1].Event != "snapshot_created" || events[1].SnapshotID != "snap-1" {
		t.Errorf("snapshot-created mapping wrong: %+v", events[1])
	}
	if events[2].Event != "snapshot_restored" || events[2].Level != AuditCritical {
		t.Errorf("snapshot-restored mapping wrong: %+v", events[2])
	}
	if events[3].Event != "snapshot_deleted" {
		t.Errorf("snapshot-deleted mapping wrong: %+v", events[3])
	}
	if count, ok := events[3].Context["removed_count"].(float64); !ok || count != 1 {
		t.Errorf("snapshot-deleted context wrong: %v", events[3].Context)
	}
}

func TestAuditLoggerSecurityEvent(t *testing.T) {
	config := jsonlAuditConfig(t)
	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Fatalf("failed to create audit logger: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.LogSecurityEvent("rejected_operation", "policy denied apply", map[string]interface{}{"control": "ctrl"})
	if err := logger.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	events := readAuditLines(t, config.OutputFile)
	if len(events) != 1 || events[0].Level != AuditSecurity {
		t.Fatalf("expected one SECURITY event, got %v", events)
	}
	if events[0].Context["details"] != "policy denied apply" {
		t.Errorf("details missing from context: %v", events[0].Context)
	}
}

func TestAuditSQLiteBackend(t *testing.T) {
	config := AuditConfig{
		Enabled:    true,
		OutputFile: filepath.Join(t.TempDir(), "audit.db"),
		MinLevel:   AuditInfo,
		BufferSize: 10,
	}

	logger, err := NewAuditLogger(config)
	if err != nil {
		t.Skipf("SQLite backend unavailable: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(AuditInfo, "sqlite_event", "ctrl-db", "", nil, map[string]interface{}{"v": 1}, nil)
	logger.Log(AuditCritical, "sqlite_critical", "ctrl-db", "", nil, nil, nil)
	if err := logger.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	stats, err := logger.Stats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.TotalEvents != 2 {
		t.Errorf("expected 2 stored events, got %d", stats.TotalEvents)
	}
	if stats.EventsByLevel["INFO"] != 1 || stats.EventsByLevel["CRITICAL"] != 1 {
		t.Errorf("per-level counts wrong: %v", stats.EventsByLevel)
	}
	if stats.EventsByControl["ctrl-db"] != 2 {
		t.Errorf("per-control counts wrong: %v", stats.EventsByControl)
	}

	if err := logger.Maintenance(); err != nil {
		t.Errorf("maintenance failed: %v", err)
	}
}

func TestEngineWithAuditEnabled(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "engine-audit.jsonl")
	manager := New(Config{
		Audit: AuditConfig{Enabled: true, OutputFile: outputFile},
	})

	if manager.AuditLogger() == nil {
		t.Fatal("enabled audit should expose a logger")
	}

	if _, err := manager.ApplyDiscChanges("ctrl", map[string]interface{}{"v": 1}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := manager.RevertControlChanges("ctrl"); err != nil {
		t.Fatalf("revert failed: %v", err)
	}

	// Close flushes the buffered records.
	if err := manager.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	events := readAuditLines(t, outputFile)
	byEvent := make(map[string]int)
	for _, event := range events {
		byEvent[event.Event]++
	}
	if byEvent["control_apply"] != 1 {
		t.Errorf("expected one control_apply record, got %d", byEvent["control_apply"])
	}
	if byEvent["control_revert"] != 1 {
		t.Errorf("expected one control_revert record, got %d", byEvent["control_revert"])
	}
	if byEvent["snapshot_created"] != 1 {
		t.Errorf("expected one snapshot_created record, got %d", byEvent["snapshot_created"])
	}
}

func TestAuditLevelString(t *testing.T) {
	cases := map[AuditLevel]string{
		AuditInfo:      "INFO",
		AuditWarn:      "WARN",
		AuditCritical:  "CRITICAL",
		AuditSecurity:  "SECURITY",
		AuditLevel(42): "UNKNOWN",
	}
	for level, want := range cases {
		if level.String() != want {
			t.Errorf("AuditLevel(%d).String() = %s, want %s", level, level.String(), want)
		}
	}
}
