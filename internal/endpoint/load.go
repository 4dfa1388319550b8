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

package endpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"coco/internal/coerr"
	"coco/internal/result"
)

// LoadDir loads every "*.yaml"/"*.yml" file in dir as an endpoint
// definition, using the file stem as the endpoint name. Files whose
// name begins with "_" are ignored.
func LoadDir(dir string) (map[string]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, coerr.ConfigError("endpoint: read dir %s: %v", dir, err)
	}
	defs := map[string]*Definition{}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		if e := lookupEntry(entries, name); e.IsDir() {
			continue
		}
		if strings.HasPrefix(name, "_") {
			continue
		}
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		stem := strings.TrimSuffix(name, ext)
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, coerr.ConfigError("endpoint: read %s: %v", name, err)
		}
		def, err := parseDefinition(stem, data)
		if err != nil {
			return nil, coerr.ConfigError("endpoint: %s: %v", name, err)
		}
		defs[stem] = def
	}
	return defs, nil
}

func lookupEntry(entries []os.DirEntry, name string) os.DirEntry {
	for _, e := range entries {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

func parseDefinition(name string, data []byte) (*Definition, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	def := &Definition{Name: name, ReportType: result.Overview}

	if v, ok := raw["method"].(string); ok {
		m := strings.ToUpper(v)
		if m != "GET" && m != "POST" {
			return nil, fmt.Errorf("unsupported method %q", v)
		}
		def.Method = m
	} else {
		return nil, fmt.Errorf("missing required field 'method'")
	}

	if v, ok := raw["group"].(string); ok {
		def.Group = v
	}

	if v, ok := raw["values"]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("'values' must be a mapping")
		}
		def.Values = map[string]ValueType{}
		for field, typeNameAny := range m {
			typeName, _ := typeNameAny.(string)
			vt, ok := ParseValueType(typeName)
			if !ok {
				return nil, fmt.Errorf("values.%s: unknown type %q", field, typeName)
			}
			def.Values[field] = vt
		}
	}

	var err error
	if def.Before, err = parseCallSpecList(raw["before"]); err != nil {
		return nil, fmt.Errorf("before: %w", err)
	}
	if def.After, err = parseCallSpecList(raw["after"]); err != nil {
		return nil, fmt.Errorf("after: %w", err)
	}

	if callAny, ok := raw["call"]; ok {
		callMap, ok := callAny.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("'call' must be a mapping")
		}
		if def.Call.Forward, err = parseCallSpecList(callMap["forward"]); err != nil {
			return nil, fmt.Errorf("call.forward: %w", err)
		}
		if def.Call.Coco, err = parseCallSpecListCoco(callMap["coco"]); err != nil {
			return nil, fmt.Errorf("call.coco: %w", err)
		}
	}
	if len(def.Call.Forward) == 0 && len(def.Call.Coco) == 0 {
		def.Call.Forward = []CallSpec{{Name: name}}
	}

	if v, ok := raw["save_state"]; ok {
		list, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("'save_state' must be a list")
		}
		for _, p := range list {
			s, _ := p.(string)
			def.SaveState = append(def.SaveState, s)
		}
	}
	if v, ok := raw["send_state"].(string); ok {
		def.SendState = v
	}
	if v, ok := raw["get_state"].(string); ok {
		def.GetState = v
	}
	if v, ok := raw["set_state"]; ok {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("'set_state' must be a mapping")
		}
		def.SetState = m
	}
	if v, ok := raw["timestamp"].(string); ok {
		def.Timestamp = v
	}
	if v, ok := raw["enforce_group"].(bool); ok {
		def.EnforceGroup = v
	}
	if v, ok := raw["call_on_start"].(bool); ok {
		def.CallOnStart = v
	}
	if v, ok := raw["report_type"].(string); ok {
		def.ReportType = result.ReportType(v)
	}

	if v, ok := raw["require_state"]; ok {
		conds, err := parseStateConditions(v)
		if err != nil {
			return nil, fmt.Errorf("require_state: %w", err)
		}
		def.RequireState = conds
	}

	if v, ok := raw["schedule"]; ok {
		schedMap, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("'schedule' must be a mapping")
		}
		period, err := parsePeriod(schedMap["period"])
		if err != nil {
			return nil, fmt.Errorf("schedule.period: %w", err)
		}
		if period == 0 {
			return nil, fmt.Errorf("schedule.period must be non-zero")
		}
		sched := &Schedule{Period: period}
		if rs, ok := schedMap["require_state"]; ok {
			conds, err := parseStateConditions(rs)
			if err != nil {
				return nil, fmt.Errorf("schedule.require_state: %w", err)
			}
			sched.RequireState = conds
		}
		def.Schedule = sched
	}

	return def, nil
}

// parsePeriod parses either a bare integer number of seconds or a
// "<N>h<N>m<N>s"-shaped duration string.
func parsePeriod(v any) (time.Duration, error) {
	switch t := v.(type) {
	case int:
		return time.Duration(t) * time.Second, nil
	case float64:
		return time.Duration(t) * time.Second, nil
	case string:
		if secs, err := strconv.Atoi(t); err == nil {
			return time.Duration(secs) * time.Second, nil
		}
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", t, err)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("period must be an integer or duration string")
	}
}

func parseStateConditions(v any) ([]StateCondition, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be a mapping with path/type/value")
	}
	path, _ := m["path"].(string)
	typeName, _ := m["type"].(string)
	vt, ok := ParseValueType(typeName)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", typeName)
	}
	cond := StateCondition{Path: path, Type: vt}
	if val, ok := m["value"]; ok {
		cond.Value = val
	}
	return []StateCondition{cond}, nil
}

func parseCallSpecList(v any) ([]CallSpec, error) {
	return parseCallSpecListWith(v, false)
}

func parseCallSpecListCoco(v any) ([]CallSpec, error) {
	return parseCallSpecListWith(v, true)
}

func parseCallSpecListWith(v any, isCoco bool) ([]CallSpec, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("must be a list")
	}
	out := make([]CallSpec, 0, len(list))
	for _, item := range list {
		cs, err := parseCallSpec(item, isCoco)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, nil
}

func parseCallSpec(v any, isCoco bool) (CallSpec, error) {
	switch t := v.(type) {
	case string:
		return CallSpec{Name: t, IsCoco: isCoco}, nil
	case map[string]any:
		var name string
		for k := range t {
			if k != "name" && k != "reply" && k != "save_reply_to_state" && k != "on_failure" && k != "timeout" && k != "request" {
				name = k
				break
			}
		}
		cs := CallSpec{Name: name, IsCoco: isCoco}
		if name == "" {
			// call-spec object keyed only by check fields; name comes
			// from an explicit "name" field.
			if n, ok := t["name"].(string); ok {
				cs.Name = n
			} else {
				return CallSpec{}, fmt.Errorf("call-spec object is missing a name")
			}
		}
		if replyAny, ok := t["reply"]; ok {
			rc, err := parseReplyCheck(replyAny)
			if err != nil {
				return CallSpec{}, fmt.Errorf("reply: %w", err)
			}
			cs.Reply = rc
		}
		if s, ok := t["save_reply_to_state"].(string); ok {
			cs.SaveReplyToState = s
		}
		if ofAny, ok := t["on_failure"]; ok {
			ofMap, ok := ofAny.(map[string]any)
			if !ok {
				return CallSpec{}, fmt.Errorf("on_failure must be a mapping")
			}
			of := &OnFailure{}
			of.Call, _ = ofMap["call"].(string)
			of.CallSingleHost, _ = ofMap["call_single_host"].(string)
			cs.OnFailure = of
		}
		if to, ok := t["timeout"]; ok {
			d, err := parsePeriod(to)
			if err != nil {
				return CallSpec{}, fmt.Errorf("timeout: %w", err)
			}
			cs.Timeout = &d
		}
		if req, ok := t["request"].(map[string]any); ok && isCoco {
			cs.RequestOverride = req
		}
		return cs, nil
	default:
		return CallSpec{}, fmt.Errorf("call-spec must be a string or mapping")
	}
}

func parseReplyCheck(v any) (*ReplyCheck, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("must be a mapping")
	}
	rc := &ReplyCheck{}
	if list, ok := m["identical"].([]any); ok {
		for _, f := range list {
			s, _ := f.(string)
			rc.Identical = append(rc.Identical, s)
		}
	}
	if vals, ok := m["value"].(map[string]any); ok {
		rc.Value = vals
	}
	if types, ok := m["type"].(map[string]any); ok {
		rc.Type = map[string]ValueType{}
		for field, tn := range types {
			name, _ := tn.(string)
			vt, ok := ParseValueType(name)
			if !ok {
				return nil, fmt.Errorf("type.%s: unknown type %q", field, name)
			}
			rc.Type[field] = vt
		}
	}
	if s, err := parseStateRef(m["state"]); err != nil {
		return nil, fmt.Errorf("state: %w", err)
	} else {
		rc.State = s
	}
	if s, err := parseStateRef(m["state_hash"]); err != nil {
		return nil, fmt.Errorf("state_hash: %w", err)
	} else {
		rc.StateHash = s
	}
	return rc, nil
}

func parseStateRef(v any) (*StateRef, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case string:
		return &StateRef{Path: t}, nil
	case map[string]any:
		fields := map[string]string{}
		for field, p := range t {
			s, ok := p.(string)
			if !ok {
				return nil, fmt.Errorf("field %q: path must be a string", field)
			}
			fields[field] = s
		}
		return &StateRef{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("must be a string path or a per-field mapping")
	}
}
