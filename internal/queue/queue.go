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

// Package queue implements the bounded request queue (spec.md §4.G):
// an admission-controlled FIFO that the Frontend enqueues into and a
// single Worker drains. Two implementations share the Queue interface:
// MemQueue for the common single-process deployment, and RedisQueue
// for a shared, externally-bounded queue across coco replicas.
package queue

import (
	"context"
	"errors"
	"net/url"
)

// ErrFull is returned by Push when the queue is at capacity. Push has
// already counted the drop in coco_dropped_request_total; the Frontend
// maps the error to a 503 response.
var ErrFull = errors.New("queue: at capacity")

// Entry is one queued invocation request awaiting a Worker.
type Entry struct {
	Endpoint string
	Method   string
	Body     map[string]any
	Params   url.Values
	Reply    chan Reply
}

// Reply is what the Worker sends back once Invoke has produced a report.
type Reply struct {
	Report any
	Err    error
}

// Queue is the admission-controlled FIFO contract used by the Frontend
// and Worker. Push never waits for room: it either admits the entry or
// returns ErrFull immediately. MemQueue.Push returns right after
// admission; RedisQueue.Push then also waits for the Worker's reply and
// delivers it on the entry's Reply channel before returning.
type Queue interface {
	Push(ctx context.Context, e *Entry) error
	Pop(ctx context.Context) (*Entry, error)
	Len() int
}

// NewEntry builds a queued entry with a ready-to-receive reply channel.
func NewEntry(endpoint, method string, body map[string]any, params url.Values) *Entry {
	return &Entry{Endpoint: endpoint, Method: method, Body: body, Params: params, Reply: make(chan Reply, 1)}
}
