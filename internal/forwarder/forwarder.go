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

// Package forwarder implements concurrent HTTP dispatch to host groups,
// consulting the Blocklist before each per-host call and bounding
// in-flight requests to a configured session limit.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coco/internal/blocklist"
	"coco/internal/host"
	"coco/internal/metrics"
	"coco/internal/result"
)

// Forwarder holds the static group topology and the mutable blocklist
// consulted before every per-host dispatch.
type Forwarder struct {
	groups       map[string]host.Group
	blocklist    *blocklist.Blocklist
	client       *http.Client
	sessionLimit int
}

// New constructs a Forwarder over the given groups, bounding concurrent
// in-flight requests within one fan-out to sessionLimit.
func New(groups map[string]host.Group, bl *blocklist.Blocklist, sessionLimit int) *Forwarder {
	if sessionLimit <= 0 {
		sessionLimit = 1000
	}
	return &Forwarder{
		groups:       groups,
		blocklist:    bl,
		sessionLimit: sessionLimit,
		client: &http.Client{
			Timeout: 0, // per-call timeout is applied via context instead
		},
	}
}

// ResolveHosts returns explicit verbatim when it is non-empty (a host
// restriction passed by a caller); otherwise the hosts of the named
// group, or nil if groupOrHosts is not a known group name.
func (f *Forwarder) ResolveHosts(groupOrHosts string, explicit []host.Host) []host.Host {
	if len(explicit) > 0 {
		return explicit
	}
	if g, ok := f.groups[groupOrHosts]; ok {
		return g.Hosts
	}
	return nil
}

// External fans a request out to hosts (after filtering blocklisted
// ones) concurrently, bounded by the session limit, and returns a
// Result whose forward is keyed by host URL.
func (f *Forwarder) External(ctx context.Context, forwardName, endpointName string, req map[string]any, hosts []host.Host, method string, params url.Values, timeout time.Duration) *result.Result {
	r := result.New(endpointName)
	fr := result.ForwardResult{}

	live := make([]host.Host, 0, len(hosts))
	for _, h := range hosts {
		if f.blocklist != nil && f.blocklist.Contains(h) {
			continue
		}
		live = append(live, h)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.sessionLimit)

	for _, h := range live {
		h := h
		g.Go(func() error {
			reply, status := f.dispatch(gctx, endpointName, h, req, method, params, timeout)
			mu.Lock()
			fr[h.URL()] = result.HostReply{Reply: reply, Status: status}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // per-host errors are captured as (reply, status); dispatch never returns an error here

	r.AddForward(forwardName, fr)
	return r
}

// dispatch makes one HTTP call to h and never lets a transport error
// escape: status 0 with the failure text as the reply body encodes
// connection/timeout failures, matching the node contract in spec.md §6.
func (f *Forwarder) dispatch(ctx context.Context, endpointName string, h host.Host, req map[string]any, method string, params url.Values, timeout time.Duration) (any, int) {
	start := time.Now()
	reply, status := f.doDispatch(ctx, h, req, method, params, timeout)
	metrics.ObserveCall(endpointName, h.Hostname, h.Port, status, time.Since(start).Seconds())
	return reply, status
}

func (f *Forwarder) doDispatch(ctx context.Context, h host.Host, req map[string]any, method string, params url.Values, timeout time.Duration) (any, int) {
	body, err := json.Marshal(req)
	if err != nil {
		return err.Error(), 0
	}

	u := h.URL()
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(callCtx, method, u, bytes.NewReader(body))
	if err != nil {
		return err.Error(), 0
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return "Timeout", 0
		}
		return err.Error(), 0
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return err.Error(), 0
	}

	var parsed any
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		// JSON decoding failures fall back to raw text.
		return buf.String(), resp.StatusCode
	}
	return parsed, resp.StatusCode
}
