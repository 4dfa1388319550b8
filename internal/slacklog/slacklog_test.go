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

package slacklog

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coco/internal/logging"
)

func TestShipperPostsBufferedLinesOnStop(t *testing.T) {
	var mu sync.Mutex
	var posted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		posted = append(posted, "ok")
		mu.Unlock()
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	s := New(srv.URL, nil, 8)
	s.Log(logging.ERROR, "boom: something broke")
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posted, 1)
}

func TestShipperChannelForMatchesLongestRulePrefix(t *testing.T) {
	s := New("http://unused.invalid", []Rule{
		{Prefix: "[ERROR]", Channel: "#alerts"},
		{Prefix: "[WARN]", Channel: "#warnings"},
	}, 8)
	defer s.Stop()

	assert.Equal(t, "#alerts", s.channelFor("[ERROR] disk full"))
	assert.Equal(t, "#warnings", s.channelFor("[WARN] disk 80% full"))
	assert.Equal(t, "", s.channelFor("[INFO] all clear"))
}

func TestLogDropsWhenBufferFullWithoutBlocking(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	s := New(srv.URL, nil, 1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.Log(logging.ERROR, "line")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked instead of dropping under a full buffer")
	}
	close(blocked)
	s.Stop()
}
