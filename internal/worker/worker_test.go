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

package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coco/internal/blocklist"
	"coco/internal/endpoint"
	"coco/internal/engine"
	"coco/internal/forwarder"
	"coco/internal/host"
	"coco/internal/queue"
	"coco/internal/state"
)

func newTestEngine(t *testing.T, defs map[string]*endpoint.Definition, groups map[string]host.Group) (*engine.Engine, *blocklist.Blocklist, *state.Store) {
	t.Helper()
	bl, err := blocklist.New(t.TempDir()+"/blocklist.json", nil)
	require.NoError(t, err)
	st, err := state.New(t.TempDir(), nil)
	require.NoError(t, err)
	fwd := forwarder.New(groups, bl, 10)
	return engine.New(defs, groups, fwd, st, time.Second), bl, st
}

func TestWorkerRepliesWithRenderedReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	port, _ := strconv.Atoi(u.Port())
	h := host.Host{Hostname: u.Hostname(), Port: port}

	defs := map[string]*endpoint.Definition{
		"ping": {
			Name:   "ping",
			Method: "GET",
			Group:  "g",
			Call:   endpoint.Call{Forward: []endpoint.CallSpec{{Name: "ping"}}},
		},
	}
	groups := map[string]host.Group{"g": {Name: "g", Hosts: []host.Host{h}}}
	eng, bl, st := newTestEngine(t, defs, groups)

	q := queue.NewMem(4)
	w := New(q, eng, bl, st, nil)
	w.Start()
	defer w.Stop()

	e := queue.NewEntry("ping", "GET", map[string]any{}, nil)
	require.NoError(t, q.Push(context.Background(), e))

	select {
	case reply := <-e.Reply:
		require.NoError(t, reply.Err)
		m, ok := reply.Report.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, m["success"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker reply")
	}
}

func TestWorkerRepliesErrorForUnknownEndpoint(t *testing.T) {
	eng, bl, st := newTestEngine(t, map[string]*endpoint.Definition{}, nil)
	q := queue.NewMem(4)
	w := New(q, eng, bl, st, nil)
	w.Start()
	defer w.Stop()

	e := queue.NewEntry("nope", "GET", nil, nil)
	require.NoError(t, q.Push(context.Background(), e))

	select {
	case reply := <-e.Reply:
		assert.Error(t, reply.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for worker reply")
	}
}

func TestWorkerHandlesAdminBlocklistRoundTrip(t *testing.T) {
	hosts := []host.Host{{Hostname: "h1", Port: 1111}}
	eng, bl, st := newTestEngine(t, map[string]*endpoint.Definition{}, nil)
	// newTestEngine's blocklist has no known hosts; rebuild one that knows h1.
	var err error
	bl, err = blocklist.New(blPath(t), hosts)
	require.NoError(t, err)

	q := queue.NewMem(4)
	w := New(q, eng, bl, st, nil)
	w.Start()
	defer w.Stop()

	add := queue.NewEntry(AdminUpdateBlocklist, "POST", map[string]any{
		"command": "add",
		"hosts":   []any{"h1:1111"},
	}, nil)
	require.NoError(t, q.Push(context.Background(), add))
	reply := <-add.Reply
	require.NoError(t, reply.Err)

	list := queue.NewEntry(AdminBlocklist, "GET", nil, nil)
	require.NoError(t, q.Push(context.Background(), list))
	reply = <-list.Reply
	require.NoError(t, reply.Err)
	m := reply.Report.(map[string]any)
	assert.Equal(t, []string{"h1:1111"}, m["blocklist"])
}

func blPath(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/blocklist.json"
}
