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
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"coco/internal/coerr"
	"coco/internal/metrics"
)

// RedisClient abstracts the minimal surface RedisQueue needs from a
// Redis client: callers wrap github.com/redis/go-redis/v9 (see
// NewGoRedisClient) or any equivalent, and tests substitute a fake.
type RedisClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error)
	BLPop(ctx context.Context, timeout time.Duration, key string) (value string, ok bool, err error)
	RPush(ctx context.Context, key string, value string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	LLen(ctx context.Context, key string) (int64, error)
}

// RedisQueue shares one bounded queue across multiple coco replicas.
// Admission is a single Lua script so the length check and the push
// happen atomically.
// Replies are correlated out of band through a per-entry Redis list:
// the Worker's process RPUSHes the report there and the Push call
// BLPOPs it.
type RedisQueue struct {
	client     RedisClient
	key        string
	capacity   int
	replyTTL   time.Duration
	popTimeout time.Duration
}

// NewRedis constructs a RedisQueue bounded to capacity entries.
func NewRedis(client RedisClient, key string, capacity int) *RedisQueue {
	if capacity <= 0 {
		capacity = 1
	}
	return &RedisQueue{client: client, key: key, capacity: capacity, replyTTL: time.Minute, popTimeout: 5 * time.Second}
}

const admitScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local payload = ARGV[2]
local len = redis.call('LLEN', key)
if len >= capacity then
  return 0
end
redis.call('RPUSH', key, payload)
return 1
`

type wireEntry struct {
	ID       string              `json:"id"`
	Endpoint string              `json:"endpoint"`
	Method   string              `json:"method"`
	Body     map[string]any      `json:"body"`
	Params   map[string][]string `json:"params,omitempty"`
}

func (q *RedisQueue) replyKey(id string) string {
	return fmt.Sprintf("%s:reply:%s", q.key, id)
}

// Push admits e if the shared list has room, then blocks (bounded by
// the caller's context deadline, or by the queue's pop timeout when the
// context has none) waiting for the Worker's reply to land on the
// entry's correlation key.
func (q *RedisQueue) Push(ctx context.Context, e *Entry) error {
	id := fmt.Sprintf("%d", time.Now().UnixNano())
	we := wireEntry{ID: id, Endpoint: e.Endpoint, Method: e.Method, Body: e.Body, Params: map[string][]string(e.Params)}
	payload, err := json.Marshal(we)
	if err != nil {
		return coerr.InternalError("queue: encode entry: %v", err)
	}

	admitted, err := q.client.Eval(ctx, admitScript, []string{q.key}, q.capacity, string(payload))
	if err != nil {
		return coerr.InternalError("queue: admit: %v", err)
	}
	if admitted == 0 {
		metrics.ObserveDrop(e.Endpoint)
		return ErrFull
	}
	metrics.CocoQueueLength.Set(float64(q.Len()))

	wait := q.popTimeout
	if deadline, hasDeadline := ctx.Deadline(); hasDeadline {
		wait = time.Until(deadline)
	}
	if wait <= 0 {
		return coerr.InternalError("queue: timed out awaiting reply for entry %s", id)
	}
	value, ok, err := q.client.BLPop(ctx, wait, q.replyKey(id))
	if err != nil {
		return coerr.InternalError("queue: await reply: %v", err)
	}
	if !ok {
		return coerr.InternalError("queue: timed out awaiting reply for entry %s", id)
	}
	var rr replyWire
	if err := json.Unmarshal([]byte(value), &rr); err != nil {
		return coerr.InternalError("queue: decode reply: %v", err)
	}
	e.Reply <- Reply{Report: rr.Report, Err: rr.errValue()}
	return nil
}

// Pop blocks (bounded by the implementation's pop timeout) until an
// entry is available, and arranges for whatever the caller sends on
// the returned Entry's Reply channel to be published back to the
// matching Push call.
func (q *RedisQueue) Pop(ctx context.Context) (*Entry, error) {
	value, ok, err := q.client.BLPop(ctx, q.popTimeout, q.key)
	if err != nil {
		return nil, coerr.InternalError("queue: pop: %v", err)
	}
	if !ok {
		return nil, context.DeadlineExceeded
	}
	var we wireEntry
	if err := json.Unmarshal([]byte(value), &we); err != nil {
		return nil, coerr.InternalError("queue: decode entry: %v", err)
	}
	e := &Entry{Endpoint: we.Endpoint, Method: we.Method, Body: we.Body, Params: url.Values(we.Params), Reply: make(chan Reply, 1)}

	go q.forwardReply(we.ID, e.Reply)
	return e, nil
}

func (q *RedisQueue) forwardReply(id string, ch chan Reply) {
	reply := <-ch
	payload, err := json.Marshal(replyWire{Report: reply.Report, Err: errString(reply.Err)})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.popTimeout)
	defer cancel()
	key := q.replyKey(id)
	if err := q.client.RPush(ctx, key, string(payload)); err != nil {
		return
	}
	_ = q.client.Expire(ctx, key, q.replyTTL)
}

type replyWire struct {
	Report any    `json:"report"`
	Err    string `json:"err,omitempty"`
}

func (r replyWire) errValue() error {
	if r.Err == "" {
		return nil
	}
	return coerr.InternalError("%s", r.Err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Len reports the current shared queue depth.
func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key)
	if err != nil {
		return 0
	}
	return int(n)
}
