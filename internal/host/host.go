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

// Package host defines the downstream node identity and static group
// topology that the forwarder fans requests out to.
package host

import (
	"fmt"
	"strconv"
	"strings"
)

// Host identifies a downstream node by hostname and port. A blocklist
// argument given as a bare hostname is matched against the known hosts
// rather than parsed into a Host.
type Host struct {
	Hostname string
	Port     int
}

// String renders "hostname:port", the form used in blocklist persistence
// and log lines.
func (h Host) String() string {
	return fmt.Sprintf("%s:%d", h.Hostname, h.Port)
}

// URL renders the canonical base URL used for fan-out calls.
func (h Host) URL() string {
	return fmt.Sprintf("http://%s:%d/", h.Hostname, h.Port)
}

// Parse splits a "hostname:port" argument into a Host. It returns an
// error if the port segment is missing or not numeric.
func Parse(s string) (Host, error) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return Host{}, fmt.Errorf("host %q: missing port", s)
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil {
		return Host{}, fmt.Errorf("host %q: invalid port: %w", s, err)
	}
	return Host{Hostname: s[:i], Port: port}, nil
}

// Group is a named, ordered collection of hosts, static for the process
// lifetime.
type Group struct {
	Name  string
	Hosts []Host
}
