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

// Package result implements the structured, composable outcome of an
// endpoint invocation and its four report projections.
package result

import (
	"sort"
	"strconv"
)

// ReportType selects a Result projection.
type ReportType string

const (
	Overview      ReportType = "OVERVIEW"
	Full          ReportType = "FULL"
	Codes         ReportType = "CODES"
	CodesOverview ReportType = "CODES_OVERVIEW"
)

// HostReply is one host's outcome within a single forward.
type HostReply struct {
	Reply  any
	Status int
}

// ForwardResult maps host URL -> reply for one named forward.
type ForwardResult map[string]HostReply

// Result is the outcome of one endpoint invocation, or one sub-call
// embedded within it.
type Result struct {
	Name         string
	Forwards     map[string]ForwardResult // forward name -> host -> reply
	Embedded     map[string]*Result        // name -> sub-result (before/after/coco)
	Messages     []string
	FailedChecks map[string]map[string]map[string][]string // checkField -> host -> failureKind -> fields
	State        any
	Success      bool
	Err          string
}

// New creates an empty, successful Result for the named endpoint/forward.
func New(name string) *Result {
	return &Result{
		Name:     name,
		Forwards: map[string]ForwardResult{},
		Embedded: map[string]*Result{},
		Success:  true,
	}
}

// AddForward records the outcome of one external forward under name,
// merging into any existing forward of the same name (last-writer-wins
// per host, matching spec.md's save_reply_to_state semantics).
func (r *Result) AddForward(name string, fr ForwardResult) {
	existing, ok := r.Forwards[name]
	if !ok {
		existing = ForwardResult{}
		r.Forwards[name] = existing
	}
	for host, reply := range fr {
		existing[host] = reply
	}
}

// AddResult merges another Result's forwards, failed checks, state, and
// messages into r, and propagates success (r.Success becomes false if
// either side failed).
func (r *Result) AddResult(other *Result) {
	if other == nil {
		return
	}
	for name, fr := range other.Forwards {
		r.AddForward(name, fr)
	}
	for k, v := range other.FailedChecks {
		if r.FailedChecks == nil {
			r.FailedChecks = map[string]map[string]map[string][]string{}
		}
		r.FailedChecks[k] = mergeFailedCheck(r.FailedChecks[k], v)
	}
	r.Messages = append(r.Messages, other.Messages...)
	if other.State != nil {
		r.State = other.State
	}
	if other.Err != "" {
		r.Err = other.Err
	}
	if !other.Success {
		r.Success = false
	}
}

func mergeFailedCheck(dst, src map[string]map[string][]string) map[string]map[string][]string {
	if dst == nil {
		dst = map[string]map[string][]string{}
	}
	for host, kinds := range src {
		if dst[host] == nil {
			dst[host] = map[string][]string{}
		}
		for kind, fields := range kinds {
			dst[host][kind] = append(dst[host][kind], fields...)
		}
	}
	return dst
}

// RecordFailedCheck appends a failure entry for checkField/host/kind.
func (r *Result) RecordFailedCheck(checkField, host, kind string, fields []string) {
	if r.FailedChecks == nil {
		r.FailedChecks = map[string]map[string]map[string][]string{}
	}
	if r.FailedChecks[checkField] == nil {
		r.FailedChecks[checkField] = map[string]map[string][]string{}
	}
	r.FailedChecks[checkField][host] = mergeFields(r.FailedChecks[checkField][host], kind, fields)
	r.Success = false
}

func mergeFields(dst map[string][]string, kind string, fields []string) map[string][]string {
	if dst == nil {
		dst = map[string][]string{}
	}
	dst[kind] = append(dst[kind], fields...)
	return dst
}

// Embed keeps a named sub-result (for before/after/coco forwards) and
// merges its effect into r via AddResult.
func (r *Result) Embed(name string, sub *Result) {
	r.Embedded[name] = sub
	r.AddResult(sub)
}

// AddMessage appends an informational message (e.g. a reported extra
// request key).
func (r *Result) AddMessage(msg string) {
	r.Messages = append(r.Messages, msg)
}

// Fail marks the result unsuccessful with a single message, matching
// the Engine's FILTER(reject) step.
func Fail(name, message string) *Result {
	r := New(name)
	r.Success = false
	r.Messages = []string{message}
	return r
}

// Report projects the Result into the requested shape. The projection
// recurses into embedded sub-results under their names.
func (r *Result) Report(t ReportType) any {
	out := map[string]any{"success": r.Success}
	if len(r.Messages) > 0 {
		out["message"] = r.Messages
	}
	if r.State != nil {
		out["state"] = r.State
	}
	if r.Err != "" {
		out["error"] = r.Err
	}

	for name, fr := range r.Forwards {
		out[name] = projectForward(fr, t)
	}
	if len(r.FailedChecks) > 0 {
		out["failed_checks"] = projectFailedChecks(r.FailedChecks, t)
	}
	for name, sub := range r.Embedded {
		out[name] = sub.Report(t)
	}
	return out
}

func projectForward(fr ForwardResult, t ReportType) any {
	switch t {
	case Full:
		out := map[string]any{}
		for host, hr := range fr {
			out[host] = map[string]any{"reply": hr.Reply, "status": hr.Status}
		}
		return out
	case Codes:
		out := map[string]any{}
		for host, hr := range fr {
			out[host] = hr.Status
		}
		return out
	case CodesOverview:
		counts := map[string]int{}
		for _, hr := range fr {
			counts[statusString(hr.Status)]++
		}
		return counts
	default: // Overview
		counts := map[string]int{}
		for _, hr := range fr {
			counts[replyKey(hr.Reply)]++
		}
		return counts
	}
}

func projectFailedChecks(fc map[string]map[string]map[string][]string, t ReportType) any {
	switch t {
	case Full, Codes:
		out := map[string]any{}
		for checkField, byHost := range fc {
			hostOut := map[string]any{}
			for host, kinds := range byHost {
				hostOut[host] = kinds
			}
			out[checkField] = hostOut
		}
		return out
	default: // OVERVIEW, CODES_OVERVIEW
		out := map[string]any{}
		for checkField, byHost := range fc {
			count := 0
			for _, kinds := range byHost {
				for _, fields := range kinds {
					count += len(fields)
				}
			}
			out[checkField] = count
		}
		return out
	}
}

func statusString(status int) string {
	return strconv.Itoa(status)
}

func replyKey(reply any) string {
	switch v := reply.(type) {
	case string:
		return v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "object"
	default:
		return sprintAny(v)
	}
}

func sprintAny(v any) string {
	if v == nil {
		return "null"
	}
	switch t := v.(type) {
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.Itoa(int(t))
	default:
		return "value"
	}
}
