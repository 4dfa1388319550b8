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

package queue

import (
	"context"
	"sync"

	"coco/internal/metrics"
)

// MemQueue is a single-process bounded FIFO backed by a buffered
// channel. Push/capacity admission happens under one lock so Len and
// the buffered-channel send can never disagree about capacity.
type MemQueue struct {
	mu       sync.Mutex
	entries  chan *Entry
	capacity int
}

// NewMem constructs a MemQueue admitting at most capacity entries
// before Push starts returning ErrFull.
func NewMem(capacity int) *MemQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &MemQueue{entries: make(chan *Entry, capacity), capacity: capacity}
}

func (q *MemQueue) Push(ctx context.Context, e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case q.entries <- e:
		metrics.CocoQueueLength.Set(float64(len(q.entries)))
		return nil
	default:
		metrics.ObserveDrop(e.Endpoint)
		return ErrFull
	}
}

func (q *MemQueue) Pop(ctx context.Context) (*Entry, error) {
	select {
	case e := <-q.entries:
		metrics.CocoQueueLength.Set(float64(len(q.entries)))
		return e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemQueue) Len() int {
	return len(q.entries)
}
