// snapshot.go: Point-in-time state capture store for Mnemosyne
//
// The store owns the ordered collection of snapshots, enforces the
// configured maximum count with strict FIFO eviction, and implements the
// age-based retention cleanup. Insertion order, not timestamps, drives
// eviction so behavior stays correct even when timestamps collide.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/oklog/ulid/v2"
)

// Snapshot is an immutable, timestamped copy of the entire application
// state plus bookkeeping metadata. The stored State never shares references
// with the live tree; mutating live state after capture cannot change it.
type Snapshot struct {
	ID             string                 `json:"id"`
	Timestamp      time.Time              `json:"timestamp"`
	State          map[string]interface{} `json:"state"`
	ActiveControls []string               `json:"active_controls"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// HasControl reports whether the given control was active at capture time.
func (s *Snapshot) HasControl(controlID string) bool {
	for _, id := range s.ActiveControls {
		if id == controlID {
			return true
		}
	}
	return false
}

// clone returns a defensive copy safe to hand to callers. State is deep
// cloned; Metadata is copied at the top level only, matching how it was
// captured.
func (s *Snapshot) clone() *Snapshot {
	copied := &Snapshot{
		ID:        s.ID,
		Timestamp: s.Timestamp,
		State:     CloneState(s.State),
	}
	if s.ActiveControls != nil {
		copied.ActiveControls = make([]string, len(s.ActiveControls))
		copy(copied.ActiveControls, s.ActiveControls)
	}
	if s.Metadata != nil {
		copied.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			copied.Metadata[k] = v
		}
	}
	return copied
}

// SnapshotFilter narrows ListSnapshots results. Zero-valued fields are
// ignored; time bounds are inclusive.
type SnapshotFilter struct {
	ControlID string
	StartTime time.Time
	EndTime   time.Time
}

// newSnapshotID generates a unique, sortable snapshot identifier.
// ULIDs embed a millisecond timestamp prefix, which gives sort stability,
// and crypto-grade entropy, which keeps IDs distinct even for
// near-simultaneous captures.
func newSnapshotID() string {
	return ulid.Make().String()
}

// snapshotStore holds snapshots in insertion order with an ID index.
// It is owned exclusively by the StateManager facade; event emission for
// store mutations happens there.
type snapshotStore struct {
	mu           sync.RWMutex
	maxSnapshots int
	order        []*Snapshot
	byID         map[string]*Snapshot
}

func newSnapshotStore(maxSnapshots int) *snapshotStore {
	return &snapshotStore{
		maxSnapshots: maxSnapshots,
		byID:         make(map[string]*Snapshot),
	}
}

// capture creates and stores a snapshot of the given live state. The state
// is deep cloned on the way in; metadata is captured with a top-level copy
// and otherwise stored verbatim. Returns the stored snapshot and the ID of
// the snapshot evicted to honor maxSnapshots, if any.
func (ss *snapshotStore) capture(state map[string]interface{}, activeControls []string, metadata map[string]interface{}) (*Snapshot, string) {
	snapshot := &Snapshot{
		ID:        newSnapshotID(),
		Timestamp: timecache.CachedTime(),
		State:     CloneState(state),
	}
	if len(activeControls) > 0 {
		snapshot.ActiveControls = make([]string, len(activeControls))
		copy(snapshot.ActiveControls, activeControls)
		sort.Strings(snapshot.ActiveControls)
	}
	if metadata != nil {
		snapshot.Metadata = make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			snapshot.Metadata[k] = v
		}
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()

	ss.order = append(ss.order, snapshot)
	ss.byID[snapshot.ID] = snapshot

	var evictedID string
	if ss.maxSnapshots > 0 && len(ss.order) > ss.maxSnapshots {
		oldest := ss.order[0]
		ss.order = ss.order[1:]
		delete(ss.byID, oldest.ID)
		evictedID = oldest.ID
	}

	return snapshot, evictedID
}

// get returns a defensive copy of the snapshot, or nil if the ID is
// unknown. Absence is not an error at this layer.
func (ss *snapshotStore) get(id string) *Snapshot {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	snapshot, exists := ss.byID[id]
	if !exists {
		return nil
	}
	return snapshot.clone()
}

// list returns copies of all snapshots matching the filter, in insertion
// order. A nil filter matches everything.
func (ss *snapshotStore) list(filter *SnapshotFilter) []*Snapshot {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	results := make([]*Snapshot, 0, len(ss.order))
	for _, snapshot := range ss.order {
		if filter != nil {
			if filter.ControlID != "" && !snapshot.HasControl(filter.ControlID) {
				continue
			}
			if !filter.StartTime.IsZero() && snapshot.Timestamp.Before(filter.StartTime) {
				continue
			}
			if !filter.EndTime.IsZero() && snapshot.Timestamp.After(filter.EndTime) {
				continue
			}
		}
		results = append(results, snapshot.clone())
	}
	return results
}

// remove deletes a single snapshot by ID and reports whether it existed.
func (ss *snapshotStore) remove(id string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if _, exists := ss.byID[id]; !exists {
		return false
	}
	delete(ss.byID, id)
	for i, snapshot := range ss.order {
		if snapshot.ID == id {
			ss.order = append(ss.order[:i], ss.order[i+1:]...)
			break
		}
	}
	return true
}

// removeOlderThan deletes every snapshot with a timestamp strictly before
// the cutoff and returns the removed IDs in insertion order.
func (ss *snapshotStore) removeOlderThan(cutoff time.Time) []string {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	var removed []string
	kept := ss.order[:0]
	for _, snapshot := range ss.order {
		if snapshot.Timestamp.Before(cutoff) {
			delete(ss.byID, snapshot.ID)
			removed = append(removed, snapshot.ID)
			continue
		}
		kept = append(kept, snapshot)
	}
	ss.order = kept
	return removed
}

// count returns the number of retained snapshots.
func (ss *snapshotStore) count() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.order)
}

// timeRange returns the timestamps of the oldest and newest retained
// snapshots. The boolean is false when the store is empty.
func (ss *snapshotStore) timeRange() (oldest, newest time.Time, ok bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()

	if len(ss.order) == 0 {
		return time.Time{}, time.Time{}, false
	}
	oldest = ss.order[0].Timestamp
	newest = oldest
	for _, snapshot := range ss.order[1:] {
		if snapshot.Timestamp.Before(oldest) {
			oldest = snapshot.Timestamp
		}
		if snapshot.Timestamp.After(newest) {
			newest = snapshot.Timestamp
		}
	}
	return oldest, newest, true
}
