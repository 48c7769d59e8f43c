// clone.go: Deep cloning of dynamic state trees for Mnemosyne
//
// Snapshots and control change records must never alias live application
// state: a mutation of the live tree after capture must not be visible in
// any stored copy. This file implements the value-level copy that every
// capture and restore path goes through.
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package mnemosyne

import (
	"reflect"
	"time"
)

// CloneState deep-clones a state tree rooted at a string-keyed map.
// A nil input yields nil; an empty map yields a distinct empty map.
func CloneState(state map[string]interface{}) map[string]interface{} {
	if state == nil {
		return nil
	}
	cloned := cloneValue(state, make(map[uintptr]bool))
	result, ok := cloned.(map[string]interface{})
	if !ok {
		// cloneValue preserves the map type for map[string]interface{}
		// inputs, so this branch is unreachable in practice.
		return make(map[string]interface{})
	}
	return result
}

// CloneValue deep-clones an arbitrary state value: nested string-keyed maps,
// slices, primitives, time.Time and nil are all supported. Self-referential
// structures do not recurse forever; the reference that closes a cycle is
// replaced with nil in the clone. Values outside the state-tree vocabulary
// (channels, functions, opaque pointers) pass through by reference, which is
// the documented fallback for non-representable handles.
func CloneValue(value interface{}) interface{} {
	return cloneValue(value, make(map[uintptr]bool))
}

// cloneValue walks the value with a visited set of container pointers.
// The set tracks only the current traversal path: an entry is removed once
// its subtree is done, so diamond-shaped sharing clones normally and only
// true cycles are broken.
func cloneValue(value interface{}, visited map[uintptr]bool) interface{} {
	if value == nil {
		return nil
	}

	switch v := value.(type) {
	case map[string]interface{}:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return nil // cycle: break instead of recursing forever
		}
		visited[ptr] = true
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			result[key] = cloneValue(val, visited)
		}
		delete(visited, ptr)
		return result

	case []interface{}:
		ptr := reflect.ValueOf(v).Pointer()
		if visited[ptr] {
			return nil
		}
		visited[ptr] = true
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = cloneValue(val, visited)
		}
		delete(visited, ptr)
		return result

	case time.Time:
		return v

	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, complex64, complex128:
		return v
	}

	return cloneReflect(value, visited)
}

// cloneReflect handles typed containers that are not part of the common
// fast path above (e.g. map[string]string, []int, map[interface{}]interface{}
// from legacy YAML decoders). Anything else passes through unchanged.
func cloneReflect(value interface{}, visited map[uintptr]bool) interface{} {
	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Map:
		ptr := rv.Pointer()
		if visited[ptr] {
			return nil
		}
		visited[ptr] = true
		result := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key := iter.Key()
			val := cloneValue(iter.Value().Interface(), visited)
			if val == nil {
				result.SetMapIndex(key, reflect.Zero(rv.Type().Elem()))
				continue
			}
			result.SetMapIndex(key, reflect.ValueOf(val))
		}
		delete(visited, ptr)
		return result.Interface()

	case reflect.Slice:
		if rv.IsNil() {
			return value
		}
		ptr := rv.Pointer()
		if visited[ptr] {
			return nil
		}
		visited[ptr] = true
		result := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			val := cloneValue(rv.Index(i).Interface(), visited)
			if val != nil {
				result.Index(i).Set(reflect.ValueOf(val))
			}
		}
		delete(visited, ptr)
		return result.Interface()
	}

	// Pass-through fallback for non-representable values (chan, func,
	// pointers to opaque handles). The reference is shared with the input.
	return value
}
