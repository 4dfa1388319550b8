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
	"strings"
	"time"

	"coco/internal/coerr"
	"coco/internal/queue"
)

// Reserved endpoint names for the Frontend's built-in routes. These
// never appear in a loaded endpoint definition (the serve command
// rejects "@"-prefixed names at startup) so there is no collision risk
// with user-authored endpoints.
const (
	AdminBlocklist       = "@blocklist"
	AdminUpdateBlocklist = "@update-blocklist"
	AdminWait            = "@wait"
	AdminResetState      = "@reset-state"
	AdminSaveState       = "@save-state"
	AdminLoadState       = "@load-state"
	AdminSavedStates     = "@saved-states"
)

func isAdminCommand(endpoint string) bool {
	return strings.HasPrefix(endpoint, "@")
}

func (w *Worker) handleAdmin(e *queue.Entry) (any, error) {
	switch e.Endpoint {
	case AdminBlocklist:
		hosts := w.bl.List()
		out := make([]string, 0, len(hosts))
		for _, h := range hosts {
			out = append(out, h.String())
		}
		return map[string]any{"blocklist": out}, nil

	case AdminUpdateBlocklist:
		return w.handleUpdateBlocklist(e.Body)

	case AdminWait:
		raw, _ := e.Body["duration"].(string)
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, coerr.InvalidUsageError("wait: invalid duration %q", raw)
		}
		time.Sleep(d)
		return map[string]any{"success": true}, nil

	case AdminResetState:
		if err := w.st.Reset(map[string]any{}); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil

	case AdminSaveState:
		name, _ := e.Body["name"].(string)
		overwrite, _ := e.Body["overwrite"].(bool)
		if name == "" {
			return nil, coerr.InvalidUsageError("save-state: 'name' is required")
		}
		if err := w.st.Save(name, overwrite); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil

	case AdminLoadState:
		name, _ := e.Body["name"].(string)
		if name == "" {
			return nil, coerr.InvalidUsageError("load-state: 'name' is required")
		}
		if err := w.st.Load(name); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil

	case AdminSavedStates:
		names, err := w.st.ListSaved()
		if err != nil {
			return nil, err
		}
		return map[string]any{"saved_states": names}, nil

	default:
		return nil, coerr.InvalidPathError("unknown administrative command %q", e.Endpoint)
	}
}

func (w *Worker) handleUpdateBlocklist(body map[string]any) (any, error) {
	command, _ := body["command"].(string)
	rawHosts, _ := body["hosts"].([]any)
	hosts := make([]string, 0, len(rawHosts))
	for _, h := range rawHosts {
		s, _ := h.(string)
		hosts = append(hosts, s)
	}

	switch command {
	case "add":
		if err := w.bl.Add(hosts); err != nil {
			return nil, err
		}
	case "remove":
		if err := w.bl.Remove(hosts); err != nil {
			return nil, err
		}
	case "clear":
		if err := w.bl.Clear(); err != nil {
			return nil, err
		}
	default:
		return nil, coerr.InvalidUsageError("update-blocklist: unknown command %q", command)
	}
	return map[string]any{"success": true}, nil
}
