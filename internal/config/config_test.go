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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coco.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: 8080
endpoint_dir: /etc/coco/endpoints
storage_path: /var/lib/coco/state.json
blocklist_path: /var/lib/coco/blocklist.json
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", c.Host)
	assert.Equal(t, 8081, c.MetricsPort)
	assert.Equal(t, "INFO", c.LogLevel)
	assert.Equal(t, 1, c.NWorkers)
	assert.Equal(t, 10, c.SessionLimit)
	assert.Equal(t, 0, c.QueueLength, "0 means unbounded and must not be defaulted away")
}

func TestLoadRejectsMissingRequiredKeys(t *testing.T) {
	path := writeConfig(t, `port: 8080`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMalformedGroupHost(t *testing.T) {
	path := writeConfig(t, `
port: 8080
endpoint_dir: /etc/coco/endpoints
storage_path: /var/lib/coco/state.json
blocklist_path: /var/lib/coco/blocklist.json
groups:
  web:
    - "not-a-host"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestResolveGroupsAndAllHosts(t *testing.T) {
	path := writeConfig(t, `
port: 8080
endpoint_dir: /etc/coco/endpoints
storage_path: /var/lib/coco/state.json
blocklist_path: /var/lib/coco/blocklist.json
groups:
  web:
    - "10.0.0.1:9000"
    - "10.0.0.2:9000"
`)
	c, err := Load(path)
	require.NoError(t, err)

	groups, err := c.ResolveGroups()
	require.NoError(t, err)
	require.Len(t, groups["web"].Hosts, 2)

	hosts := c.AllHosts(groups)
	assert.Len(t, hosts, 2)
}
