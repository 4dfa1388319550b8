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

// Package endpoint defines the immutable endpoint definition loaded
// from YAML and the pre-parsed CallSpec variant the Engine consumes.
//
// Design note: the original implementation reflects on config-specified
// type names ("int", "bool", "dict", ...) at runtime. Here that is a
// fixed tagged enumeration (ValueType) validated once at load time;
// call-specs are likewise parsed once into a CallSpec, whose IsCoco flag
// tells external forwards from internal (coco) ones, instead of being
// dispatched dynamically per-request.
package endpoint

import (
	"time"

	"coco/internal/result"
)

// ValueType is the closed set of scalar/container kinds a "values" field
// may declare.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeStr
	TypeBool
	TypeFloat
	TypeDict
	TypeList
)

// ParseValueType validates a config-specified type name against the
// fixed enumeration. Unknown names are a ConfigError at load time.
func ParseValueType(name string) (ValueType, bool) {
	switch name {
	case "int":
		return TypeInt, true
	case "str", "string":
		return TypeStr, true
	case "bool":
		return TypeBool, true
	case "float":
		return TypeFloat, true
	case "dict":
		return TypeDict, true
	case "list":
		return TypeList, true
	default:
		return 0, false
	}
}

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeStr:
		return "str"
	case TypeBool:
		return "bool"
	case TypeFloat:
		return "float"
	case TypeDict:
		return "dict"
	case TypeList:
		return "list"
	default:
		return "unknown"
	}
}

// Matches reports whether a decoded-JSON value v has the Go shape that
// corresponds to t.
func (t ValueType) Matches(v any) bool {
	switch t {
	case TypeInt:
		f, ok := v.(float64)
		return ok && f == float64(int64(f))
	case TypeFloat:
		_, ok := v.(float64)
		return ok
	case TypeStr:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeDict:
		_, ok := v.(map[string]any)
		return ok
	case TypeList:
		_, ok := v.([]any)
		return ok
	default:
		return false
	}
}

// StateRef names either a single state path (compared against the whole
// reply) or a per-field map of state paths (each compared against that
// field of the reply).
type StateRef struct {
	Path   string
	Fields map[string]string
}

// ReplyCheck is the pre-parsed "reply" block of a call-spec.
type ReplyCheck struct {
	Identical []string
	Value     map[string]any
	Type      map[string]ValueType
	State     *StateRef
	StateHash *StateRef
}

// OnFailure names the endpoints invoked when a call-spec's checks fail.
type OnFailure struct {
	Call           string
	CallSingleHost string
}

// CallSpec is the pre-parsed sum type replacing the original's
// string-or-object call-spec polymorphism.
type CallSpec struct {
	// Name is the forwarded-to endpoint (coco) or forward name (external).
	Name             string
	IsCoco           bool
	Reply            *ReplyCheck
	SaveReplyToState string
	OnFailure        *OnFailure
	Timeout          *time.Duration
	// RequestOverride, if non-nil, replaces the filtered request for this
	// one coco forward instead of passing it through unchanged.
	RequestOverride map[string]any
}

// StateCondition gates a Scheduler tick or a require_state precondition.
type StateCondition struct {
	Path  string
	Type  ValueType
	Value any // nil means "any value of the declared type is acceptable"
}

// Schedule configures periodic re-invocation of an endpoint.
type Schedule struct {
	Period       time.Duration
	RequireState []StateCondition
}

// Call groups the external and internal forward lists of one endpoint.
type Call struct {
	Forward []CallSpec
	Coco    []CallSpec
}

// Definition is one immutable, loaded endpoint definition.
type Definition struct {
	Name          string
	Method        string // GET or POST
	Group         string
	Values        map[string]ValueType
	Before        []CallSpec
	Call          Call
	After         []CallSpec
	SaveState     []string
	SendState     string
	GetState      string
	SetState      map[string]any
	Timestamp     string
	Schedule      *Schedule
	EnforceGroup  bool
	ReportType    result.ReportType
	CallOnStart   bool
	RequireState  []StateCondition
}
