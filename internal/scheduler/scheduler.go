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

// Package scheduler fires one timer per endpoint that declares a
// "schedule" block, re-invoking it through the same queue a client
// request would use once its period elapses and its require_state
// gate (if any) is satisfied.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"coco/internal/endpoint"
	"coco/internal/logging"
	"coco/internal/queue"
	"coco/internal/state"
)

// Scheduler owns one ticker goroutine per scheduled endpoint.
type Scheduler struct {
	defs    map[string]*endpoint.Definition
	q       queue.Queue
	st      *state.Store
	log     *logging.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped uint32
}

// New constructs a Scheduler over the loaded endpoint definitions.
func New(defs map[string]*endpoint.Definition, q queue.Queue, st *state.Store, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Default
	}
	return &Scheduler{defs: defs, q: q, st: st, log: log, stopCh: make(chan struct{})}
}

// Start launches one goroutine per scheduled endpoint definition. An
// endpoint with call_on_start fires immediately, before its first tick.
func (s *Scheduler) Start() {
	for _, def := range s.defs {
		if def.Schedule == nil {
			continue
		}
		def := def
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(def)
		}()
	}
}

// Stop signals every scheduled goroutine to exit and waits for them.
func (s *Scheduler) Stop() {
	if !atomic.CompareAndSwapUint32(&s.stopped, 0, 1) {
		return
	}
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) run(def *endpoint.Definition) {
	if def.CallOnStart {
		s.tick(def)
	}
	ticker := time.NewTicker(def.Schedule.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(def)
		case <-s.stopCh:
			return
		}
	}
}

// tick gates on require_state, then enqueues a synthetic invocation
// exactly as a client request would flow through the Frontend.
func (s *Scheduler) tick(def *endpoint.Definition) {
	if len(def.Schedule.RequireState) > 0 && !s.conditionsMet(def.Schedule.RequireState) {
		return
	}
	e := queue.NewEntry(def.Name, def.Method, map[string]any{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.q.Push(ctx, e); err != nil {
		s.log.Warn("scheduled tick for %s: %v", def.Name, err)
		return
	}
	select {
	case reply := <-e.Reply:
		if reply.Err != nil {
			s.log.Warn("scheduled tick for %s failed: %v", def.Name, reply.Err)
		}
	case <-ctx.Done():
		s.log.Warn("scheduled tick for %s: timed out awaiting reply", def.Name)
	}
}

func (s *Scheduler) conditionsMet(conds []endpoint.StateCondition) bool {
	for _, c := range conds {
		v, err := s.st.Read(c.Path)
		if err != nil {
			return false
		}
		if !c.Type.Matches(v) {
			return false
		}
		if c.Value != nil && state.HashValue(v) != state.HashValue(c.Value) {
			return false
		}
	}
	return true
}
