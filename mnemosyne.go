// mnemosyne: State snapshot, diff and rollback engine for runtime control layers
//
// Philosophy:
// - Minimal dependencies (AGILira ecosystem only: go-errors, go-timecache)
// - Immutable captures: no stored tree ever aliases live state
// - Single logical writer, atomic apply/revert/rollback operations
// - Synchronous lifecycle events for audit and UI collaborators
// - Bounded memory via FIFO eviction and age-based retention
//
// Example Usage:
//
//	manager := mnemosyne.New(mnemosyne.Config{MaxSnapshots: 50})
//	defer manager.Close()
//
//	unsubscribe := manager.Subscribe(func(event mnemosyne.Event) {
//	    log.Printf("%s control=%s snapshot=%s", event.Type, event.ControlID, event.SnapshotID)
//	})
//	defer unsubscribe()
//
//	change, err := manager.ApplyDiscChanges("rate-limit", map[string]interface{}{
//	    "requests_per_second": 100,
//	})
//	if err == nil {
//	    // every apply checkpoints automatically; revert is independent per control
//	    _, _ = manager.RevertControlChanges(change.ControlID)
//	}
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"sync"
	"time"

	"github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// Error codes for Mnemosyne operations
const (
	ErrCodeInvalidConfig      = "MNEMOSYNE_INVALID_CONFIG"
	ErrCodeInvalidControl     = "MNEMOSYNE_INVALID_CONTROL"
	ErrCodeSnapshotNotFound   = "MNEMOSYNE_SNAPSHOT_NOT_FOUND"
	ErrCodeControlNotFound    = "MNEMOSYNE_CONTROL_NOT_FOUND"
	ErrCodeInvalidRetention   = "MNEMOSYNE_INVALID_RETENTION"
	ErrCodeStateFileError     = "MNEMOSYNE_STATE_FILE_ERROR"
	ErrCodeInvalidAuditConfig = "MNEMOSYNE_INVALID_AUDIT_CONFIG"
)

// StateManager is the facade composing the snapshot store, the control
// change tracker, deep clone and the diff engine. It exclusively owns the
// live state cell and both stores; collaborators interact only through its
// operations and the events it emits.
//
// Mutating operations (ApplyDiscChanges, RevertControlChanges,
// RollbackToSnapshot, Cleanup) are serialized by an internal mutex and
// complete as one logical unit: state is never observable mid-mutation.
// Read operations return cloned data, so callers can mutate what they
// receive without corrupting internal collections.
type StateManager struct {
	config Config

	mu   sync.Mutex
	live map[string]interface{}

	snapshots *snapshotStore
	tracker   *controlTracker
	events    *eventBus

	auditLogger      *AuditLogger
	auditUnsubscribe func()
}

// New creates a StateManager with the given configuration. The initial
// state, if any, is deep cloned so the caller's map stays independent.
func New(config Config) *StateManager {
	cfg := config.WithDefaults()

	live := CloneState(cfg.InitialState)
	if live == nil {
		live = make(map[string]interface{})
	}

	manager := &StateManager{
		config:    *cfg,
		live:      live,
		snapshots: newSnapshotStore(cfg.MaxSnapshots),
		tracker:   newControlTracker(),
		events:    newEventBus(),
	}

	if cfg.Audit.Enabled {
		auditLogger, err := NewAuditLogger(cfg.Audit)
		if err != nil {
			// Audit must never prevent engine startup; fall back to disabled.
			auditLogger, _ = NewAuditLogger(AuditConfig{Enabled: false})
		}
		manager.auditLogger = auditLogger
		manager.auditUnsubscribe = manager.events.subscribe(auditLogger.HandleEvent)
	}

	return manager
}

// Subscribe registers a lifecycle event handler and returns its
// unsubscribe function. Handlers run synchronously inside the emitting
// operation, in registration order.
func (m *StateManager) Subscribe(handler EventHandler) func() {
	return m.events.subscribe(handler)
}

// AuditLogger returns the engine's audit logger, or nil when audit is
// disabled. Useful for CLI tools that want to flush or query audit stats.
func (m *StateManager) AuditLogger() *AuditLogger {
	return m.auditLogger
}

// CurrentState returns a deep clone of the live application state.
func (m *StateManager) CurrentState() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CloneState(m.live)
}

// CreateSnapshot captures the current live state into a new snapshot.
// Metadata is stored as given (top-level copy only). The oldest snapshot is
// evicted when the configured maximum is exceeded; eviction order is strict
// FIFO by insertion, independent of timestamps.
func (m *StateManager) CreateSnapshot(metadata map[string]interface{}) *Snapshot {
	m.mu.Lock()
	snapshot, evictedID := m.snapshots.capture(m.live, m.tracker.activeControlIDs(), metadata)
	m.mu.Unlock()

	m.emitSnapshotCreated(snapshot.ID, evictedID)
	return snapshot.clone()
}

// GetSnapshot returns a copy of the snapshot with the given ID, or nil if
// it is unknown. Absence is an empty result, not an error.
func (m *StateManager) GetSnapshot(id string) *Snapshot {
	return m.snapshots.get(id)
}

// ListSnapshots returns copies of all snapshots matching the filter, in
// creation order. A nil filter matches everything.
func (m *StateManager) ListSnapshots(filter *SnapshotFilter) []*Snapshot {
	return m.snapshots.list(filter)
}

// RemoveSnapshot deletes a single snapshot by ID. Unlike reads, a mutating
// call with an unknown reference is an error.
func (m *StateManager) RemoveSnapshot(id string) error {
	if !m.snapshots.remove(id) {
		return errors.New(ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", id)
	}
	m.events.publish(Event{
		Type:         EventSnapshotDeleted,
		Timestamp:    timecache.CachedTime(),
		RemovedIDs:   []string{id},
		RemovedCount: 1,
	})
	return nil
}

// RollbackToSnapshot replaces the live state with a deep clone of the
// snapshot's stored state. Cloning again on restore keeps the snapshot and
// the live tree independent even after rollback.
func (m *StateManager) RollbackToSnapshot(id string) error {
	snapshot := m.snapshots.get(id)
	if snapshot == nil {
		return errors.New(ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", id)
	}

	m.mu.Lock()
	m.live = CloneState(snapshot.State)
	m.mu.Unlock()

	m.events.publish(Event{
		Type:       EventSnapshotRestored,
		Timestamp:  timecache.CachedTime(),
		SnapshotID: id,
	})
	return nil
}

// Diff fetches two snapshots and computes the structural differences
// between their stored states. Both IDs must resolve.
func (m *StateManager) Diff(snapshotIDA, snapshotIDB string) ([]ChangeDiff, error) {
	snapshotA := m.snapshots.get(snapshotIDA)
	if snapshotA == nil {
		return nil, errors.New(ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", snapshotIDA)
	}
	snapshotB := m.snapshots.get(snapshotIDB)
	if snapshotB == nil {
		return nil, errors.New(ErrCodeSnapshotNotFound, "snapshot not found").
			WithContext("snapshot_id", snapshotIDB)
	}
	return CalculateDiff(snapshotA.State, snapshotB.State), nil
}

// ApplyDiscChanges merges the state produced by a control into the live
// tree as one atomic unit: before-clone, merge, after-clone, history
// record, automatic snapshot. The produced map's top-level keys are set
// into the live root, overwriting existing keys; values are cloned on the
// way in so the caller's map stays independent.
func (m *StateManager) ApplyDiscChanges(controlID string, producedState map[string]interface{}) (*StateChange, error) {
	if controlID == "" {
		return nil, errors.New(ErrCodeInvalidControl, "control id cannot be empty")
	}

	m.mu.Lock()

	before := CloneState(m.live)
	for key, value := range producedState {
		m.live[key] = CloneValue(value)
	}
	after := CloneState(m.live)

	change := &StateChange{
		ControlID:  controlID,
		ChangeType: StateChangeApply,
		Before:     before,
		After:      after,
		Timestamp:  timecache.CachedTime(),
	}
	m.tracker.record(change)

	// Automatic checkpoint on every applied change.
	snapshot, evictedID := m.snapshots.capture(m.live, m.tracker.activeControlIDs(), nil)

	m.mu.Unlock()

	m.events.publish(Event{
		Type:      EventStateChanged,
		Timestamp: change.Timestamp,
		ControlID: controlID,
		Change:    change.clone(),
	})
	m.emitSnapshotCreated(snapshot.ID, evictedID)

	return change.clone(), nil
}

// RevertControlChanges restores the live state to the control's last
// recorded before-state and appends a revert record to its history. A
// control with no recorded state is a NotFound error and nothing mutates.
func (m *StateManager) RevertControlChanges(controlID string) (*StateChange, error) {
	if controlID == "" {
		return nil, errors.New(ErrCodeInvalidControl, "control id cannot be empty")
	}

	m.mu.Lock()

	last := m.tracker.latestChange(controlID)
	if last == nil {
		m.mu.Unlock()
		return nil, errors.New(ErrCodeControlNotFound, "control not found").
			WithContext("control_id", controlID)
	}

	m.live = CloneState(last.Before)

	change := &StateChange{
		ControlID:  controlID,
		ChangeType: StateChangeRevert,
		Before:     CloneState(last.After),
		After:      CloneState(last.Before),
		Timestamp:  timecache.CachedTime(),
	}
	m.tracker.record(change)

	m.mu.Unlock()

	m.events.publish(Event{
		Type:      EventStateChanged,
		Timestamp: change.Timestamp,
		ControlID: controlID,
		Change:    change.clone(),
	})

	return change.clone(), nil
}

// GetControlState returns the most recent before/after pair recorded for
// the control, or nil if the control is unknown.
func (m *StateManager) GetControlState(controlID string) *ControlState {
	change := m.tracker.latestChange(controlID)
	if change == nil {
		return nil
	}
	return &ControlState{Before: change.Before, After: change.After}
}

// GetControlHistory returns all change records for the control in
// application order. Unknown controls yield an empty slice.
func (m *StateManager) GetControlHistory(controlID string) []*StateChange {
	return m.tracker.controlHistory(controlID)
}

// DropControl discards all tracked history for a control and reports
// whether any existed. Intended for orchestrators retiring controls.
func (m *StateManager) DropControl(controlID string) bool {
	return m.tracker.dropControl(controlID)
}

// Cleanup removes every snapshot strictly older than now minus the given
// number of whole days and returns the count removed. Removing nothing is
// a successful no-op; the deletion event fires only when at least one
// snapshot was removed.
func (m *StateManager) Cleanup(retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, errors.New(ErrCodeInvalidRetention, "retention days cannot be negative").
			WithContext("retention_days", retentionDays)
	}

	cutoff := timecache.CachedTime().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := m.snapshots.removeOlderThan(cutoff)
	if len(removed) > 0 {
		m.events.publish(Event{
			Type:         EventSnapshotDeleted,
			Timestamp:    timecache.CachedTime(),
			RemovedIDs:   removed,
			RemovedCount: len(removed),
		})
	}
	return len(removed), nil
}

// EngineStats describes the engine's retained footprint for monitoring.
type EngineStats struct {
	Snapshots         int           // Number of retained snapshots
	TrackedControls   int           // Number of controls with history
	OldestSnapshotAge time.Duration // Age of the oldest retained snapshot
	NewestSnapshotAge time.Duration // Age of the newest retained snapshot
}

// Stats returns current engine statistics.
func (m *StateManager) Stats() EngineStats {
	stats := EngineStats{
		Snapshots:       m.snapshots.count(),
		TrackedControls: m.tracker.trackedControlCount(),
	}
	if oldest, newest, ok := m.snapshots.timeRange(); ok {
		now := timecache.CachedTime()
		stats.OldestSnapshotAge = now.Sub(oldest)
		stats.NewestSnapshotAge = now.Sub(newest)
	}
	return stats
}

// Close releases engine resources. With audit enabled this flushes and
// closes the audit logger; the engine itself holds no other resources.
func (m *StateManager) Close() error {
	if m.auditUnsubscribe != nil {
		m.auditUnsubscribe()
		m.auditUnsubscribe = nil
	}
	if m.auditLogger != nil {
		return m.auditLogger.Close()
	}
	return nil
}

// emitSnapshotCreated publishes the creation event and, when FIFO eviction
// displaced an older snapshot, the matching deletion event.
func (m *StateManager) emitSnapshotCreated(snapshotID, evictedID string) {
	m.events.publish(Event{
		Type:       EventSnapshotCreated,
		Timestamp:  timecache.CachedTime(),
		SnapshotID: snapshotID,
	})
	if evictedID != "" {
		m.events.publish(Event{
			Type:         EventSnapshotDeleted,
			Timestamp:    timecache.CachedTime(),
			RemovedIDs:   []string{evictedID},
			RemovedCount: 1,
		})
	}
}
