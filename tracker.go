// tracker.go: Per-control change tracking for Mnemosyne
//
// Each control carries its own append-only log of apply/revert records and
// a latest before/after pair, so a single control can be reverted
// independently of other concurrently applied controls.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"sort"
	"sync"
	"time"
)

// StateChangeType distinguishes apply records from revert records.
type StateChangeType string

const (
	// StateChangeApply records a control producing new state.
	StateChangeApply StateChangeType = "apply"
	// StateChangeRevert records a control being rolled back to its
	// last recorded before-state.
	StateChangeRevert StateChangeType = "revert"
)

// StateChange is an append-only record of one apply or revert event for a
// specific control. Before and After are deep clones bracketing the change;
// records are never mutated once appended.
type StateChange struct {
	ControlID  string                 `json:"control_id"`
	ChangeType StateChangeType        `json:"change_type"`
	Before     map[string]interface{} `json:"before"`
	After      map[string]interface{} `json:"after"`
	Timestamp  time.Time              `json:"timestamp"`
}

// clone returns a defensive copy with cloned state trees.
func (sc *StateChange) clone() *StateChange {
	return &StateChange{
		ControlID:  sc.ControlID,
		ChangeType: sc.ChangeType,
		Before:     CloneState(sc.Before),
		After:      CloneState(sc.After),
		Timestamp:  sc.Timestamp,
	}
}

// ControlState is the most recent before/after pair recorded for a control.
type ControlState struct {
	Before map[string]interface{} `json:"before"`
	After  map[string]interface{} `json:"after"`
}

// controlTracker owns the change history for every control. It is owned
// exclusively by the StateManager facade.
type controlTracker struct {
	mu      sync.RWMutex
	history map[string][]*StateChange
	latest  map[string]*StateChange
}

func newControlTracker() *controlTracker {
	return &controlTracker{
		history: make(map[string][]*StateChange),
		latest:  make(map[string]*StateChange),
	}
}

// record appends a change to the control's history and updates its
// latest-state record. The change is stored as given: callers hand over
// ownership of already-cloned trees.
func (ct *controlTracker) record(change *StateChange) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.history[change.ControlID] = append(ct.history[change.ControlID], change)
	ct.latest[change.ControlID] = change
}

// latestChange returns a copy of the most recent change record for the
// control, or nil if the control has never been recorded.
func (ct *controlTracker) latestChange(controlID string) *StateChange {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	change, exists := ct.latest[controlID]
	if !exists {
		return nil
	}
	return change.clone()
}

// controlHistory returns copies of all change records for the control in
// application order. Unknown controls yield an empty slice, not an error.
func (ct *controlTracker) controlHistory(controlID string) []*StateChange {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	records := ct.history[controlID]
	result := make([]*StateChange, 0, len(records))
	for _, record := range records {
		result = append(result, record.clone())
	}
	return result
}

// activeControlIDs returns the sorted IDs of all controls whose most
// recent change is an apply. A control that was reverted is no longer
// "in effect" and is excluded until it is applied again.
func (ct *controlTracker) activeControlIDs() []string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	ids := make([]string, 0, len(ct.latest))
	for id, change := range ct.latest {
		if change.ChangeType == StateChangeApply {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// trackedControlCount returns how many controls have recorded history.
func (ct *controlTracker) trackedControlCount() int {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return len(ct.history)
}

// dropControl discards all history for a control and reports whether any
// existed. The engine never trims history on its own; this is the hook an
// orchestrator uses to bound memory for retired controls.
func (ct *controlTracker) dropControl(controlID string) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	_, exists := ct.history[controlID]
	if !exists {
		return false
	}
	delete(ct.history, controlID)
	delete(ct.latest, controlID)
	return true
}
