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

// Package worker drains the request queue and serializes every
// invocation through a single Engine, matching spec.md's concurrency
// model: the Engine itself is not safe for concurrent Invoke calls, so
// exactly one goroutine ever calls it.
package worker

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"

	"coco/internal/blocklist"
	"coco/internal/coerr"
	"coco/internal/engine"
	"coco/internal/logging"
	"coco/internal/queue"
	"coco/internal/state"
)

// Worker owns the single goroutine that pops entries off the queue and
// runs them through the Engine. Administrative commands (blocklist
// edits, state save/load/reset) are reserved endpoint names prefixed
// with "@": they still flow through the Queue, so they interleave in
// FIFO order with scheduled and client-triggered endpoint calls, but
// they bypass the Engine entirely.
type Worker struct {
	q       queue.Queue
	eng     *engine.Engine
	bl      *blocklist.Blocklist
	st      *state.Store
	log     *logging.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped uint32
}

// New constructs a Worker over q and eng, with bl and st available for
// the reserved administrative commands.
func New(q queue.Queue, eng *engine.Engine, bl *blocklist.Blocklist, st *state.Store, log *logging.Logger) *Worker {
	if log == nil {
		log = logging.Default
	}
	return &Worker{q: q, eng: eng, bl: bl, st: st, log: log, stopCh: make(chan struct{})}
}

// Start launches the drain loop.
func (w *Worker) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop()
	}()
}

// Stop signals the drain loop to exit and waits for it to finish any
// in-flight invocation.
func (w *Worker) Stop() {
	if !atomic.CompareAndSwapUint32(&w.stopped, 0, 1) {
		return
	}
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) loop() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-w.stopCh
		cancel()
	}()
	for {
		entry, err := w.q.Pop(ctx)
		if err != nil {
			select {
			case <-w.stopCh:
				return
			default:
				continue // Pop timeout with nothing queued; keep polling
			}
		}
		w.handle(ctx, entry)
	}
}

// handle invokes the Engine for one entry and replies with its
// rendered report, or a (nil report, error) pair if the endpoint is
// unknown or the request is otherwise malformed.
func (w *Worker) handle(ctx context.Context, e *queue.Entry) {
	if isAdminCommand(e.Endpoint) {
		report, err := w.handleAdmin(e)
		e.Reply <- queue.Reply{Report: report, Err: err}
		return
	}

	def, ok := w.eng.Lookup(e.Endpoint)
	if !ok {
		e.Reply <- queue.Reply{Err: coerr.InvalidPathError("unknown endpoint %q", e.Endpoint)}
		return
	}
	params := url.Values(e.Params)
	r, err := w.eng.Invoke(ctx, e.Endpoint, e.Body, nil, params, def.ReportType)
	if err != nil {
		w.log.Error("invoke %s: %v", e.Endpoint, err)
		e.Reply <- queue.Reply{Err: err}
		return
	}
	e.Reply <- queue.Reply{Report: r.Report(def.ReportType)}
}
