// diff.go: Structural diff engine for Mnemosyne
//
// Computes an ordered list of path-qualified changes between two state
// trees. The diff is the raw material for audit records and compliance
// reports, so it must be deterministic and must never miss a real change.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"reflect"
	"sort"
	"strings"
)

// ChangeType classifies a single diff entry.
type ChangeType string

const (
	// ChangeAdded marks a key present only in the "after" tree.
	ChangeAdded ChangeType = "added"
	// ChangeRemoved marks a key present only in the "before" tree.
	ChangeRemoved ChangeType = "removed"
	// ChangeModified marks a key present in both trees with unequal values.
	ChangeModified ChangeType = "modified"
)

// ChangeDiff is one path-addressed difference between two state values.
//
// Path joins the key segments with a literal "." and is convenient for
// display and audit storage. Keys that themselves contain a dot are
// ambiguous in Path; Segments carries the exact key sequence and is the
// authoritative address.
type ChangeDiff struct {
	Path     string      `json:"path"`
	Segments []string    `json:"segments,omitempty"`
	Type     ChangeType  `json:"type"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
}

// CalculateDiff computes the structural differences between two state
// values. Nested string-keyed maps are recursed into; every other value
// (including slices) is compared as an opaque unit with deep equality.
// Output order is deterministic: keys are visited in lexicographic order
// at every level. Identical inputs produce an empty diff.
//
// Values carried in the returned entries are deep clones, so persisting a
// diff (e.g. into an audit record) never aliases either input tree.
func CalculateDiff(before, after interface{}) []ChangeDiff {
	beforeMap, beforeOK := asStateMap(before)
	afterMap, afterOK := asStateMap(after)

	if beforeOK && afterOK {
		var diffs []ChangeDiff
		diffStateMaps(nil, beforeMap, afterMap, &diffs)
		return diffs
	}

	// Non-map roots (or nil vs map) are compared as single values.
	if reflect.DeepEqual(before, after) {
		return nil
	}
	return []ChangeDiff{{
		Path:     "",
		Type:     ChangeModified,
		OldValue: CloneValue(before),
		NewValue: CloneValue(after),
	}}
}

// diffStateMaps walks the union of keys at one nesting level and appends
// diff entries for every divergence.
func diffStateMaps(prefix []string, before, after map[string]interface{}, out *[]ChangeDiff) {
	for _, key := range unionKeys(before, after) {
		beforeVal, inBefore := before[key]
		afterVal, inAfter := after[key]
		segments := appendSegment(prefix, key)

		switch {
		case !inBefore:
			*out = append(*out, ChangeDiff{
				Path:     joinPath(segments),
				Segments: segments,
				Type:     ChangeAdded,
				NewValue: CloneValue(afterVal),
			})

		case !inAfter:
			*out = append(*out, ChangeDiff{
				Path:     joinPath(segments),
				Segments: segments,
				Type:     ChangeRemoved,
				OldValue: CloneValue(beforeVal),
			})

		default:
			beforeChild, beforeIsMap := asStateMap(beforeVal)
			afterChild, afterIsMap := asStateMap(afterVal)
			if beforeIsMap && afterIsMap {
				diffStateMaps(segments, beforeChild, afterChild, out)
				continue
			}
			// nil vs value, scalar vs scalar, array vs array: opaque
			// comparison, a single modified entry at this path.
			if !reflect.DeepEqual(beforeVal, afterVal) {
				*out = append(*out, ChangeDiff{
					Path:     joinPath(segments),
					Segments: segments,
					Type:     ChangeModified,
					OldValue: CloneValue(beforeVal),
					NewValue: CloneValue(afterVal),
				})
			}
		}
	}
}

// asStateMap reports whether a value is a non-nil string-keyed map.
// A nil map is deliberately not a composite here: nil vs a populated map
// must surface as a single modified entry, not as per-key additions.
func asStateMap(value interface{}) (map[string]interface{}, bool) {
	m, ok := value.(map[string]interface{})
	if !ok || m == nil {
		return nil, false
	}
	return m, true
}

// unionKeys returns the sorted union of both key sets. Go map iteration is
// randomized, so lexicographic order is what makes diff output stable.
func unionKeys(before, after map[string]interface{}) []string {
	seen := make(map[string]bool, len(before)+len(after))
	keys := make([]string, 0, len(before)+len(after))
	for key := range before {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for key := range after {
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func appendSegment(prefix []string, key string) []string {
	segments := make([]string, len(prefix)+1)
	copy(segments, prefix)
	segments[len(prefix)] = key
	return segments
}

func joinPath(segments []string) string {
	return strings.Join(segments, ".")
}
