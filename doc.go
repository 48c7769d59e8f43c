// Package mnemosyne provides the state snapshot, diff and rollback engine
// behind runtime control layers: systems that apply, preview and revert
// configuration or behavior changes against a live application.
//
// # Philosophy: Correctness Under Repeated Apply/Revert
//
// Everything downstream of this engine (audit records, rollback, compliance
// reports) is only as trustworthy as its captures and diffs. Mnemosyne is
// built around three guarantees: snapshots never alias live state, diffs
// never miss a real change, and every control can be reverted independently
// of the others.
//
// # Architecture Overview
//
// Mnemosyne consists of five integrated subsystems:
//  1. **Deep Clone**: value-level copies of arbitrary state trees with
//     cycle breaking, so no capture ever shares references with live state
//  2. **Structural Diff Engine**: deterministic, path-qualified
//     added/removed/modified records between any two state trees
//  3. **Snapshot Store**: ordered point-in-time captures with strict FIFO
//     eviction and age-based retention cleanup
//  4. **Control Change Tracker**: per-control append-only apply/revert
//     history with independent revert
//  5. **Audit Trail**: buffered, checksummed audit logging with SQLite
//     unified storage and JSONL fallback, fed by lifecycle events
//
// # Quick Start
//
// Create a manager, apply a control, inspect and revert:
//
//	manager := mnemosyne.New(mnemosyne.Config{MaxSnapshots: 50})
//	defer manager.Close()
//
//	change, err := manager.ApplyDiscChanges("rate-limit", map[string]interface{}{
//		"requests_per_second": 100,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// every apply checkpoints automatically
//	snapshots := manager.ListSnapshots(&mnemosyne.SnapshotFilter{ControlID: "rate-limit"})
//	diffs, _ := manager.Diff(snapshots[0].ID, snapshots[len(snapshots)-1].ID)
//	for _, d := range diffs {
//		fmt.Printf("%s %s\n", d.Type, d.Path)
//	}
//
//	_, _ = manager.RevertControlChanges(change.ControlID)
//
// # Lifecycle Events
//
// Collaborators (audit log, UI, policy engines) observe the engine through
// synchronous publish/subscribe:
//
//	unsubscribe := manager.Subscribe(func(event mnemosyne.Event) {
//		switch event.Type {
//		case mnemosyne.EventStateChanged:
//			persistAuditRecord(event.ControlID, event.Change)
//		case mnemosyne.EventSnapshotRestored:
//			notifyOperators(event.SnapshotID)
//		}
//	})
//	defer unsubscribe()
//
// Events fire inside the emitting operation, in order, so a subscriber
// never observes the engine mid-mutation.
//
// # Concurrency Model
//
// The engine assumes a single logical writer per control: mutating
// operations are serialized internally and complete atomically, reads are
// lock-cheap and return cloned data. Concurrent snapshot creation is safe
// and always yields distinct snapshot IDs.
//
// # What Mnemosyne Does Not Do
//
// No durable snapshot persistence, no history compression, no multi-level
// undo, no permission checks: policy evaluation belongs to the caller, and
// the audit trail is the only component that touches disk.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package mnemosyne
