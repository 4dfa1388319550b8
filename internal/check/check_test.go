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

package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coco/internal/endpoint"
	"coco/internal/result"
	"coco/internal/state"
)

func newTestStore(t *testing.T) *state.Store {
	t.Helper()
	s, err := state.New(t.TempDir(), nil)
	require.NoError(t, err)
	return s
}

func TestRunNilCheckAlwaysPasses(t *testing.T) {
	r := result.New("test")
	outcome := Run(nil, "test", result.ForwardResult{}, r, nil)
	assert.True(t, outcome.Passed)
	assert.Empty(t, outcome.FailedHosts)
}

func TestIdenticalPassesWhenAllHostsAgree(t *testing.T) {
	rc := &endpoint.ReplyCheck{Identical: []string{"rand"}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"rand": float64(7)}, Status: 200},
		"http://h2:2/": {Reply: map[string]any{"rand": float64(7)}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "test", fr, r, nil)
	assert.True(t, outcome.Passed)
	assert.True(t, r.Success)
}

func TestIdenticalFailsAndRecordsEveryHostUnderFieldName(t *testing.T) {
	rc := &endpoint.ReplyCheck{Identical: []string{"rand"}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"rand": float64(7)}, Status: 200},
		"http://h2:2/": {Reply: map[string]any{"rand": float64(8)}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "test", fr, r, nil)
	assert.False(t, outcome.Passed)
	assert.False(t, r.Success)
	assert.Len(t, outcome.FailedHosts, 2)
	assert.Contains(t, r.FailedChecks["rand"]["http://h1:1/"]["reply.not_identical"], "all")
}

func TestValueCheckReportsMissingAndMismatched(t *testing.T) {
	rc := &endpoint.ReplyCheck{Value: map[string]any{"ok": true, "count": float64(3)}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"ok": true, "count": float64(3)}, Status: 200},
		"http://h2:2/": {Reply: map[string]any{"ok": false}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "myforward", fr, r, nil)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.FailedHosts, "http://h2:2/")
	assert.Contains(t, r.FailedChecks["myforward"]["http://h2:2/"]["reply.missing"], "count")
	assert.Contains(t, r.FailedChecks["myforward"]["http://h2:2/"]["reply.value"], "ok")
}

func TestTypeCheckPassesOnMatchingShapes(t *testing.T) {
	rc := &endpoint.ReplyCheck{Type: map[string]endpoint.ValueType{"n": endpoint.TypeInt, "s": endpoint.TypeStr}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"n": float64(4), "s": "x"}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "myforward", fr, r, nil)
	assert.True(t, outcome.Passed)
}

func TestTypeCheckFailsOnWrongShape(t *testing.T) {
	rc := &endpoint.ReplyCheck{Type: map[string]endpoint.ValueType{"n": endpoint.TypeInt}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"n": "not an int"}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "myforward", fr, r, nil)
	assert.False(t, outcome.Passed)
	assert.Contains(t, r.FailedChecks["myforward"]["http://h1:1/"]["reply.type"], "n")
}

func TestStateCheckComparesWholeReplyAgainstPath(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Write("expected", map[string]any{"a": float64(1)}))

	rc := &endpoint.ReplyCheck{State: &endpoint.StateRef{Path: "expected"}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"a": float64(1)}, Status: 200},
		"http://h2:2/": {Reply: map[string]any{"a": float64(2)}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "myforward", fr, r, st)
	assert.False(t, outcome.Passed)
	assert.Contains(t, outcome.FailedHosts, "http://h2:2/")
	assert.NotContains(t, outcome.FailedHosts, "http://h1:1/")
}

func TestStateHashCheckPerField(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.Write("counters/total", float64(42)))

	rc := &endpoint.ReplyCheck{StateHash: &endpoint.StateRef{Fields: map[string]string{"total": "counters/total"}}}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"total": float64(42)}, Status: 200},
		"http://h2:2/": {Reply: map[string]any{"total": float64(43)}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "myforward", fr, r, st)
	assert.False(t, outcome.Passed)
	assert.Contains(t, r.FailedChecks["myforward"]["http://h2:2/"]["reply.mismatch_with_state_hash"], "total")
}

func TestMultipleCheckKindsCombine(t *testing.T) {
	rc := &endpoint.ReplyCheck{
		Identical: []string{"rand"},
		Value:     map[string]any{"ok": true},
	}
	fr := result.ForwardResult{
		"http://h1:1/": {Reply: map[string]any{"rand": float64(1), "ok": true}, Status: 200},
		"http://h2:2/": {Reply: map[string]any{"rand": float64(2), "ok": true}, Status: 200},
	}
	r := result.New("test")
	outcome := Run(rc, "myforward", fr, r, nil)
	assert.False(t, outcome.Passed)
	assert.Contains(t, r.FailedChecks, "rand")
	assert.NotContains(t, r.FailedChecks, "myforward")
}
