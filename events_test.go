// events_test.go: Event bus tests
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"sync"
	"testing"
)

func TestEventBusDeliversInRegistrationOrder(t *testing.T) {
	bus := newEventBus()

	var order []int
	bus.subscribe(func(Event) { order = append(order, 1) })
	bus.subscribe(func(Event) { order = append(order, 2) })
	bus.subscribe(func(Event) { order = append(order, 3) })

	bus.publish(Event{Type: EventSnapshotCreated})

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("expected delivery order [1 2 3], got %v", order)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := newEventBus()

	var calls int
	unsubscribe := bus.subscribe(func(Event) { calls++ })

	bus.publish(Event{Type: EventSnapshotCreated})
	unsubscribe()
	bus.publish(Event{Type: EventSnapshotCreated})

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}

	// Unsubscribing twice is a no-op.
	unsubscribe()
	bus.publish(Event{Type: EventSnapshotCreated})
	if calls != 1 {
		t.Errorf("double unsubscribe changed behavior, got %d calls", calls)
	}
}

func TestEventBusUnsubscribeLeavesOthers(t *testing.T) {
	bus := newEventBus()

	var first, second int
	unsubscribeFirst := bus.subscribe(func(Event) { first++ })
	bus.subscribe(func(Event) { second++ })

	unsubscribeFirst()
	bus.publish(Event{Type: EventStateChanged})

	if first != 0 || second != 1 {
		t.Errorf("expected only the second subscriber called, got first=%d second=%d", first, second)
	}
}

func TestEventBusConcurrentSubscribePublish(t *testing.T) {
	bus := newEventBus()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := bus.subscribe(func(Event) {})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			bus.publish(Event{Type: EventSnapshotCreated})
		}()
	}
	wg.Wait()
}
