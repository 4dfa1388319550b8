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

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coco/internal/endpoint"
	"coco/internal/queue"
	"coco/internal/state"
)

func drain(t *testing.T, q *queue.MemQueue, timeout time.Duration) *queue.Entry {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	e, err := q.Pop(ctx)
	require.NoError(t, err)
	return e
}

func TestSchedulerFiresPeriodicTick(t *testing.T) {
	defs := map[string]*endpoint.Definition{
		"sweep": {Name: "sweep", Method: "POST", Schedule: &endpoint.Schedule{Period: 10 * time.Millisecond}},
	}
	q := queue.NewMem(4)
	s := New(defs, q, nil, nil)
	s.Start()
	defer s.Stop()

	e := drain(t, q, 500*time.Millisecond)
	assert.Equal(t, "sweep", e.Endpoint)
	e.Reply <- queue.Reply{Report: map[string]any{"success": true}}
}

func TestSchedulerCallOnStartFiresImmediately(t *testing.T) {
	defs := map[string]*endpoint.Definition{
		"boot": {Name: "boot", Method: "POST", CallOnStart: true, Schedule: &endpoint.Schedule{Period: time.Hour}},
	}
	q := queue.NewMem(4)
	s := New(defs, q, nil, nil)
	s.Start()
	defer s.Stop()

	e := drain(t, q, 200*time.Millisecond)
	assert.Equal(t, "boot", e.Endpoint)
	e.Reply <- queue.Reply{Report: map[string]any{"success": true}}
}

func TestSchedulerSkipsTickWhenRequireStateUnmet(t *testing.T) {
	st, err := state.New(t.TempDir(), nil)
	require.NoError(t, err)
	defs := map[string]*endpoint.Definition{
		"gated": {
			Name:   "gated",
			Method: "POST",
			Schedule: &endpoint.Schedule{
				Period:       10 * time.Millisecond,
				RequireState: []endpoint.StateCondition{{Path: "ready", Type: endpoint.TypeBool, Value: true}},
			},
		},
	}
	q := queue.NewMem(4)
	s := New(defs, q, st, nil)
	s.Start()
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = q.Pop(ctx)
	assert.Error(t, err, "expected no ticks while require_state is unmet")
}
