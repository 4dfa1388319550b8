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

// Package engine executes one endpoint definition through the pipeline
// described in spec.md §4.F:
//
//	START -> BEFORE -> FILTER(ok|reject) -> SAVE_STATE -> SEND_STATE ->
//	FAN_OUT -> INTERNAL_RECURSE -> REPORT_EXTRAS -> AFTER -> GET_STATE ->
//	FINALISE -> DONE
//
// Every step reports failure through the Result, never by raising;
// only an unknown endpoint, an unmet require_state precondition, or a
// failed State Store write produces a typed coerr.Error that the Worker
// converts to an HTTP status. A missing or mistyped declared value is
// reported as an unsuccessful Result, not as an error.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"coco/internal/check"
	"coco/internal/coerr"
	"coco/internal/endpoint"
	"coco/internal/forwarder"
	"coco/internal/host"
	"coco/internal/result"
	"coco/internal/state"
)

// Engine executes endpoint definitions. It is not safe for concurrent
// use by design: spec.md's concurrency model serializes all invocations
// through a single Worker goroutine, so Invoke may recurse into itself
// (internal coco forwards) but is never called from two goroutines.
type Engine struct {
	defs           map[string]*endpoint.Definition
	groups         map[string]host.Group
	fwd            *forwarder.Forwarder
	st             *state.Store
	defaultTimeout time.Duration
}

// New constructs an Engine over the loaded endpoint definitions.
func New(defs map[string]*endpoint.Definition, groups map[string]host.Group, fwd *forwarder.Forwarder, st *state.Store, defaultTimeout time.Duration) *Engine {
	return &Engine{defs: defs, groups: groups, fwd: fwd, st: st, defaultTimeout: defaultTimeout}
}

// Lookup returns the definition for name, or (nil, false) if unknown.
func (e *Engine) Lookup(name string) (*endpoint.Definition, bool) {
	d, ok := e.defs[name]
	return d, ok
}

// Invoke runs one endpoint invocation. hostsOverride is the caller-
// supplied host restriction (nil if none); it is ignored entirely when
// the definition sets enforce_group.
func (e *Engine) Invoke(ctx context.Context, name string, req map[string]any, hostsOverride []host.Host, params url.Values, reportType result.ReportType) (*result.Result, error) {
	def, ok := e.defs[name]
	if !ok {
		return nil, coerr.InvalidPathError("unknown endpoint %q", name)
	}
	return e.invokeDef(ctx, def, req, hostsOverride, params)
}

func (e *Engine) invokeDef(ctx context.Context, def *endpoint.Definition, req map[string]any, hostsOverride []host.Host, params url.Values) (*result.Result, error) {
	r := result.New(def.Name)

	// 0. Schedule-style precondition gate (require_state), reused for
	// both scheduler ticks and direct client calls that declare it.
	if len(def.RequireState) > 0 && !e.evalConditions(def.RequireState) {
		return nil, coerr.PreconditionFailedError("endpoint %q: unmet state precondition", def.Name)
	}

	// 1. Group enforcement.
	effectiveHosts := hostsOverride
	if def.EnforceGroup {
		effectiveHosts = nil
	}

	// 2. Before.
	for i, cs := range def.Before {
		sub, err := e.runCallSpec(ctx, cs, req, nil)
		if err != nil {
			return nil, err
		}
		r.Embed(fmt.Sprintf("before_%d_%s", i, cs.Name), sub)
	}

	// 3. Request filter & typecheck.
	consumed, extras, rejectMsg := filterRequest(def, req)
	if rejectMsg != "" {
		rej := result.Fail(def.Name, rejectMsg)
		r.AddResult(rej)
		return r, nil
	}

	// 4. save_state.
	for _, path := range def.SaveState {
		for key, val := range consumed {
			if err := e.st.Write(path+"/"+key, val); err != nil {
				return nil, err
			}
		}
	}

	// 5. send_state.
	effectiveReq := consumed
	if def.SendState != "" {
		sub, err := e.st.Read(def.SendState)
		if err == nil {
			if m, ok := sub.(map[string]any); ok {
				merged := map[string]any{}
				for k, v := range m {
					merged[k] = v
				}
				for k, v := range consumed {
					if _, declared := def.Values[k]; declared {
						merged[k] = v
					}
				}
				effectiveReq = merged
			}
		}
	}

	// 6. External fan-out.
	for _, cs := range def.Call.Forward {
		hosts := e.fwd.ResolveHosts(def.Group, effectiveHosts)
		timeout := e.defaultTimeout
		if cs.Timeout != nil {
			timeout = *cs.Timeout
		}
		fres := e.fwd.External(ctx, cs.Name, def.Name, effectiveReq, hosts, def.Method, params, timeout)
		r.AddResult(fres)

		fr := fres.Forwards[cs.Name]
		outcome := check.Run(cs.Reply, cs.Name, fr, r, e.st)
		if outcome.Passed && cs.SaveReplyToState != "" {
			saveReplyToState(e.st, cs.SaveReplyToState, fr)
		}
		if !outcome.Passed && cs.OnFailure != nil {
			if err := e.runOnFailure(ctx, cs.OnFailure, outcome.FailedHosts, r); err != nil {
				return nil, err
			}
		}
	}

	// 7. Internal forwards.
	for _, cs := range def.Call.Coco {
		forwardReq := effectiveReq
		if cs.RequestOverride != nil {
			forwardReq = cs.RequestOverride
		}
		sub, err := e.Invoke(ctx, cs.Name, cloneMap(forwardReq), nil, nil, result.Overview)
		if err != nil {
			return nil, err
		}
		r.Embed(cs.Name, sub)

		fr := result.ForwardResult{}
		// Internal forwards have no per-host map; checks over coco results
		// operate over the sub-result's own success state instead.
		if cs.Reply != nil {
			outcome := check.Run(cs.Reply, cs.Name, fr, r, e.st)
			if !sub.Success {
				outcome.Passed = false
			}
			if !outcome.Passed && cs.OnFailure != nil {
				if err := e.runOnFailure(ctx, cs.OnFailure, outcome.FailedHosts, r); err != nil {
					return nil, err
				}
			}
		}
	}

	// 8. Report extras.
	for key := range extras {
		r.AddMessage(fmt.Sprintf("unused request key: %s", key))
	}

	// 9. After.
	for i, cs := range def.After {
		sub, err := e.runCallSpec(ctx, cs, req, nil)
		if err != nil {
			return nil, err
		}
		r.Embed(fmt.Sprintf("after_%d_%s", i, cs.Name), sub)
	}

	// 10. get_state.
	if def.GetState != "" {
		st, err := e.st.Extract(def.GetState)
		if err == nil {
			r.State = st
		}
	}

	// 11. On overall success: set_state + timestamp.
	if r.Success {
		for path, v := range def.SetState {
			if err := e.st.Write(path, v); err != nil {
				return nil, err
			}
		}
		if def.Timestamp != "" {
			if err := e.st.Write(def.Timestamp, float64(time.Now().Unix())); err != nil {
				return nil, err
			}
		}
	}

	return r, nil
}

// runCallSpec executes one before/after item as an internal coco call,
// regardless of whether it names an external forward (before/after
// items are always coco calls per spec.md §4.F step 2/9).
func (e *Engine) runCallSpec(ctx context.Context, cs endpoint.CallSpec, req map[string]any, hosts []host.Host) (*result.Result, error) {
	return e.Invoke(ctx, cs.Name, cloneMap(req), hosts, nil, result.Overview)
}

// runOnFailure invokes on_failure.call (no arguments) and/or
// on_failure.call_single_host restricted to the failing hosts. Per the
// Design Note in spec.md §9: an empty failing-host set means
// call_single_host is skipped entirely.
func (e *Engine) runOnFailure(ctx context.Context, of *endpoint.OnFailure, failedHosts []string, r *result.Result) error {
	if of.Call != "" {
		sub, err := e.Invoke(ctx, of.Call, map[string]any{}, nil, nil, result.Overview)
		if err != nil {
			return err
		}
		r.Embed("on_failure_"+of.Call, sub)
	}
	if of.CallSingleHost != "" && len(failedHosts) > 0 {
		hosts := make([]host.Host, 0, len(failedHosts))
		for _, u := range failedHosts {
			if h, ok := parseHostURL(u); ok {
				hosts = append(hosts, h)
			}
		}
		if len(hosts) > 0 {
			sub, err := e.Invoke(ctx, of.CallSingleHost, map[string]any{}, hosts, nil, result.Overview)
			if err != nil {
				return err
			}
			r.Embed("on_failure_"+of.CallSingleHost, sub)
		}
	}
	return nil
}

// evalConditions reports whether every condition's state subtree
// exists, has the declared type, and (if Value is set) equals it.
func (e *Engine) evalConditions(conds []endpoint.StateCondition) bool {
	for _, c := range conds {
		v, err := e.st.Read(c.Path)
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

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func saveReplyToState(st *state.Store, path string, fr result.ForwardResult) {
	merged := map[string]any{}
	for _, hr := range fr {
		if m, ok := hr.Reply.(map[string]any); ok {
			for k, v := range m {
				merged[k] = v // last-writer-wins across hosts
			}
		}
	}
	_ = st.Write(path, merged)
}

func parseHostURL(u string) (host.Host, bool) {
	parsed, err := url.Parse(u)
	if err != nil {
		return host.Host{}, false
	}
	h, err := host.Parse(parsed.Host)
	if err != nil {
		return host.Host{}, false
	}
	return h, true
}
