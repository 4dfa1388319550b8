// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package check implements the five reply-validation kinds run after a
// fan-out. A check mutates the Result's failed_checks tree but never
// raises; only the Engine decides what to do about a failure (recurse
// into on_failure.call / call_single_host).
package check

import (
	"sort"

	"coco/internal/endpoint"
	"coco/internal/result"
	"coco/internal/state"
)

// Outcome is what the Engine needs to decide on_failure routing.
type Outcome struct {
	Passed      bool
	FailedHosts []string // host URLs that failed at least one sub-check
}

// Run evaluates rc against fr (the just-completed forward's per-host
// replies), recording failures into r under forwardName, and reading
// any referenced state subtrees from st. forwardName becomes the
// failed_checks top-level key for value/type/state/state_hash kinds;
// "identical" uses each checked field name instead, per spec.
func Run(rc *endpoint.ReplyCheck, forwardName string, fr result.ForwardResult, r *result.Result, st *state.Store) Outcome {
	if rc == nil {
		return Outcome{Passed: true}
	}
	failedSet := map[string]struct{}{}
	passed := true

	if len(rc.Identical) > 0 {
		if !runIdentical(rc.Identical, fr, r, failedSet) {
			passed = false
		}
	}
	if len(rc.Value) > 0 {
		if !runValue(rc.Value, forwardName, fr, r, failedSet) {
			passed = false
		}
	}
	if len(rc.Type) > 0 {
		if !runType(rc.Type, forwardName, fr, r, failedSet) {
			passed = false
		}
	}
	if rc.State != nil {
		if !runState(rc.State, forwardName, fr, r, st, failedSet) {
			passed = false
		}
	}
	if rc.StateHash != nil {
		if !runStateHash(rc.StateHash, forwardName, fr, r, st, failedSet) {
			passed = false
		}
	}

	hosts := make([]string, 0, len(failedSet))
	for h := range failedSet {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return Outcome{Passed: passed, FailedHosts: hosts}
}

// runIdentical passes iff every host's reply carries the same value for
// each listed field. On failure every host is recorded, per spec.
func runIdentical(fields []string, fr result.ForwardResult, r *result.Result, failedSet map[string]struct{}) bool {
	ok := true
	for _, field := range fields {
		values := map[string]any{}
		for host, hr := range fr {
			m, isMap := hr.Reply.(map[string]any)
			if !isMap {
				continue
			}
			values[host] = m[field]
		}
		if !allEqual(values) {
			ok = false
			for host := range fr {
				r.RecordFailedCheck(field, host, "reply.not_identical", []string{"all"})
				failedSet[host] = struct{}{}
			}
		}
	}
	return ok
}

func allEqual(values map[string]any) bool {
	var first any
	seen := false
	for _, v := range values {
		if !seen {
			first = v
			seen = true
			continue
		}
		if !deepEqual(first, v) {
			return false
		}
	}
	return true
}

// runValue passes iff every host's reply contains each configured field
// with the configured value.
func runValue(expected map[string]any, forwardName string, fr result.ForwardResult, r *result.Result, failedSet map[string]struct{}) bool {
	ok := true
	for host, hr := range fr {
		m, isMap := hr.Reply.(map[string]any)
		var missing, mismatched []string
		for field, want := range expected {
			got, present := m[field]
			if !isMap || !present {
				missing = append(missing, field)
				continue
			}
			if !deepEqual(got, want) {
				mismatched = append(mismatched, field)
			}
		}
		if len(missing) > 0 {
			r.RecordFailedCheck(forwardName, host, "reply.missing", missing)
			failedSet[host] = struct{}{}
			ok = false
		}
		if len(mismatched) > 0 {
			r.RecordFailedCheck(forwardName, host, "reply.value", mismatched)
			failedSet[host] = struct{}{}
			ok = false
		}
	}
	return ok
}

// runType passes iff every host's reply contains each configured field
// with the configured type.
func runType(expected map[string]endpoint.ValueType, forwardName string, fr result.ForwardResult, r *result.Result, failedSet map[string]struct{}) bool {
	ok := true
	for host, hr := range fr {
		m, isMap := hr.Reply.(map[string]any)
		var missing, mismatched []string
		for field, vt := range expected {
			got, present := m[field]
			if !isMap || !present {
				missing = append(missing, field)
				continue
			}
			if !vt.Matches(got) {
				mismatched = append(mismatched, field)
			}
		}
		if len(missing) > 0 {
			r.RecordFailedCheck(forwardName, host, "reply.missing", missing)
			failedSet[host] = struct{}{}
			ok = false
		}
		if len(mismatched) > 0 {
			r.RecordFailedCheck(forwardName, host, "reply.type", mismatched)
			failedSet[host] = struct{}{}
			ok = false
		}
	}
	return ok
}

// runState passes iff each host's reply equals the referenced state
// subtree, either as a whole (single path) or field-by-field.
func runState(ref *endpoint.StateRef, forwardName string, fr result.ForwardResult, r *result.Result, st *state.Store, failedSet map[string]struct{}) bool {
	ok := true
	for host, hr := range fr {
		var mismatched []string
		if ref.Path != "" {
			want, err := st.Read(ref.Path)
			if err != nil || !deepEqual(hr.Reply, want) {
				mismatched = []string{"all"}
			}
		} else {
			m, isMap := hr.Reply.(map[string]any)
			for field, path := range ref.Fields {
				want, err := st.Read(path)
				got, present := m[field]
				if !isMap || err != nil || !present || !deepEqual(got, want) {
					mismatched = append(mismatched, field)
				}
			}
		}
		if len(mismatched) > 0 {
			r.RecordFailedCheck(forwardName, host, "reply.mismatch_with_state", mismatched)
			failedSet[host] = struct{}{}
			ok = false
		}
	}
	return ok
}

// runStateHash passes iff each host's per-field reply hash equals the
// hash of the referenced state subtree.
func runStateHash(ref *endpoint.StateRef, forwardName string, fr result.ForwardResult, r *result.Result, st *state.Store, failedSet map[string]struct{}) bool {
	ok := true
	for host, hr := range fr {
		var mismatched []string
		if ref.Path != "" {
			want, err := st.Read(ref.Path)
			if err != nil || state.HashValue(hr.Reply) != state.HashValue(want) {
				mismatched = []string{"all"}
			}
		} else {
			m, isMap := hr.Reply.(map[string]any)
			for field, path := range ref.Fields {
				want, err := st.Read(path)
				got, present := m[field]
				if !isMap || err != nil || !present || state.HashValue(got) != state.HashValue(want) {
					mismatched = append(mismatched, field)
				}
			}
		}
		if len(mismatched) > 0 {
			r.RecordFailedCheck(forwardName, host, "reply.mismatch_with_state_hash", mismatched)
			failedSet[host] = struct{}{}
			ok = false
		}
	}
	return ok
}

func deepEqual(a, b any) bool {
	return state.HashValue(a) == state.HashValue(b)
}
