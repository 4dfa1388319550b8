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

package engine

import (
	"fmt"
	"sort"

	"coco/internal/endpoint"
)

// filterRequest splits req into the subset declared by def.Values (type-
// checked) and everything else (extras, reported as messages but not
// rejected). A declared field that is missing or has the wrong shape
// produces a non-empty rejectMsg, which short-circuits the pipeline
// with an unsuccessful Result rather than a transport error.
func filterRequest(def *endpoint.Definition, req map[string]any) (consumed, extras map[string]any, rejectMsg string) {
	consumed = map[string]any{}
	extras = map[string]any{}

	var missing, mistyped []string
	for field, vt := range def.Values {
		v, present := req[field]
		if !present {
			missing = append(missing, field)
			continue
		}
		if !vt.Matches(v) {
			mistyped = append(mistyped, field)
			continue
		}
		consumed[field] = v
	}

	for field, v := range req {
		if _, declared := def.Values[field]; !declared {
			extras[field] = v
		}
	}

	if len(missing) > 0 || len(mistyped) > 0 {
		sort.Strings(missing)
		sort.Strings(mistyped)
		switch {
		case len(missing) > 0 && len(mistyped) > 0:
			rejectMsg = fmt.Sprintf("missing fields %v, mistyped fields %v", missing, mistyped)
		case len(missing) > 0:
			rejectMsg = fmt.Sprintf("missing fields %v", missing)
		default:
			rejectMsg = fmt.Sprintf("mistyped fields %v", mistyped)
		}
	}
	return consumed, extras, rejectMsg
}
