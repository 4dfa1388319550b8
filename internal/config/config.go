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

// Package config loads the controller's top-level YAML configuration
// and the static host-group topology it declares.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"coco/internal/coerr"
	"coco/internal/host"
)

// Config is the fully-resolved process configuration, loaded once at
// startup from a YAML file named by the serve command's --config flag
// or, when that flag is unset, by the COCO_CONFIG env var.
type Config struct {
	Host             string              `yaml:"host"`
	Port             int                 `yaml:"port"`
	MetricsPort      int                 `yaml:"metrics_port"`
	LogLevel         string              `yaml:"log_level"`
	EndpointDir      string              `yaml:"endpoint_dir"`
	NWorkers         int                 `yaml:"n_workers"`
	SessionLimit     int                 `yaml:"session_limit"`
	BlocklistPath    string              `yaml:"blocklist_path"`
	StoragePath      string              `yaml:"storage_path"`
	Groups           map[string][]string `yaml:"groups"`
	LoadState        map[string]any      `yaml:"load_state"`
	SlackToken       string              `yaml:"slack_token"`
	SlackRules       map[string]string   `yaml:"slack_rules"`
	QueueLength      int                 `yaml:"queue_length"`
	TimeoutSeconds   int                 `yaml:"timeout"`
	FrontendTimeoutS int                 `yaml:"frontend_timeout"`
	ExcludeFromReset []string            `yaml:"exclude_from_reset"`
	RedisAddr        string              `yaml:"redis_addr"`
}

// Timeout returns the per-forward timeout as a time.Duration, defaulting
// to 10s when unset.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// FrontendTimeout returns the Frontend's enqueue-and-block budget,
// defaulting to 30s when unset.
func (c *Config) FrontendTimeout() time.Duration {
	if c.FrontendTimeoutS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.FrontendTimeoutS) * time.Second
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, coerr.ConfigError("config: read %s: %v", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, coerr.ConfigError("config: parse %s: %v", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) validate() error {
	if c.Port == 0 {
		return coerr.ConfigError("config: 'port' is required")
	}
	if c.EndpointDir == "" {
		return coerr.ConfigError("config: 'endpoint_dir' is required")
	}
	if c.StoragePath == "" {
		return coerr.ConfigError("config: 'storage_path' is required")
	}
	if c.BlocklistPath == "" {
		return coerr.ConfigError("config: 'blocklist_path' is required")
	}
	for name, hosts := range c.Groups {
		for _, h := range hosts {
			if _, err := host.Parse(h); err != nil {
				return coerr.ConfigError("config: groups.%s: %v", name, err)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.MetricsPort == 0 {
		c.MetricsPort = c.Port + 1
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.NWorkers <= 0 {
		c.NWorkers = 1
	}
	if c.SessionLimit <= 0 {
		c.SessionLimit = 10
	}
	// QueueLength is left at 0 when unset: the spec's documented default
	// of "0 = unbounded". Callers that construct a bounded queue.MemQueue
	// must translate 0 into a large sentinel capacity themselves.
}

// ResolveGroups turns the raw "host:port" string lists from YAML into
// the host.Group topology the Forwarder and Engine consume.
func (c *Config) ResolveGroups() (map[string]host.Group, error) {
	groups := make(map[string]host.Group, len(c.Groups))
	for name, raw := range c.Groups {
		hosts := make([]host.Host, 0, len(raw))
		for _, s := range raw {
			h, err := host.Parse(s)
			if err != nil {
				return nil, coerr.ConfigError("config: groups.%s: %v", name, err)
			}
			hosts = append(hosts, h)
		}
		groups[name] = host.Group{Name: name, Hosts: hosts}
	}
	return groups, nil
}

// AllHosts flattens every group's hosts into one slice, used to seed the
// Blocklist's universe of resolvable hosts.
func (c *Config) AllHosts(groups map[string]host.Group) []host.Host {
	var out []host.Host
	for _, g := range groups {
		out = append(out, g.Hosts...)
	}
	return out
}
