// events.go: Lifecycle event fan-out for Mnemosyne
//
// Collaborators (audit log, UI) observe the engine through explicit
// publish/subscribe rather than an event-emitter base class. Fan-out is
// synchronous and in operation order: by the time a mutating call returns,
// every subscriber has seen its events.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies a lifecycle event emitted by the StateManager.
type EventType string

const (
	// EventSnapshotCreated fires after a snapshot is stored.
	EventSnapshotCreated EventType = "snapshot-created"
	// EventSnapshotRestored fires after a rollback replaces live state.
	EventSnapshotRestored EventType = "snapshot-restored"
	// EventStateChanged fires after a control apply or revert.
	EventStateChanged EventType = "state-changed"
	// EventSnapshotDeleted fires after eviction or retention cleanup
	// removes at least one snapshot.
	EventSnapshotDeleted EventType = "snapshot-deleted"
)

// Event is the payload delivered to subscribers. Fields are populated
// depending on Type: SnapshotID for snapshot events, ControlID and Change
// for state changes, RemovedIDs and RemovedCount for deletions.
type Event struct {
	Type         EventType    `json:"type"`
	Timestamp    time.Time    `json:"timestamp"`
	SnapshotID   string       `json:"snapshot_id,omitempty"`
	ControlID    string       `json:"control_id,omitempty"`
	Change       *StateChange `json:"change,omitempty"`
	RemovedIDs   []string     `json:"removed_ids,omitempty"`
	RemovedCount int          `json:"removed_count,omitempty"`
}

// EventHandler receives lifecycle events. Handlers run synchronously on
// the caller's goroutine and must not block; a handler that calls back
// into mutating engine operations will observe the engine after the
// emitting operation completed.
type EventHandler func(event Event)

type eventSubscriber struct {
	id      uint64
	handler EventHandler
}

// eventBus fans events out to subscribers. The subscriber list is held in
// an atomic pointer with copy-on-write updates, so publishing never takes
// a lock: subscriptions are rare, events are not.
type eventBus struct {
	subscribers atomic.Pointer[[]eventSubscriber]
	mu          sync.Mutex
	nextID      uint64
}

func newEventBus() *eventBus {
	bus := &eventBus{}
	initial := make([]eventSubscriber, 0)
	bus.subscribers.Store(&initial)
	return bus
}

// subscribe registers a handler and returns an unsubscribe function.
// Unsubscribing twice is a no-op.
func (eb *eventBus) subscribe(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID

	current := *eb.subscribers.Load()
	updated := make([]eventSubscriber, len(current)+1)
	copy(updated, current)
	updated[len(current)] = eventSubscriber{id: id, handler: handler}
	eb.subscribers.Store(&updated)

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()

		current := *eb.subscribers.Load()
		remaining := make([]eventSubscriber, 0, len(current))
		for _, sub := range current {
			if sub.id != id {
				remaining = append(remaining, sub)
			}
		}
		eb.subscribers.Store(&remaining)
	}
}

// publish delivers the event to every subscriber in registration order.
func (eb *eventBus) publish(event Event) {
	for _, sub := range *eb.subscribers.Load() {
		sub.handler(event)
	}
}
