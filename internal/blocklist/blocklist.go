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

// Package blocklist maintains the set of downstream hosts temporarily
// excluded from fan-out. It is persisted as its own document, decoupled
// from the main State Store's reset/load semantics, using the same
// atomic-commit discipline.
package blocklist

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"coco/internal/coerr"
	"coco/internal/host"
)

// Blocklist is a persisted, thread-safe set of blocked hosts.
type Blocklist struct {
	mu    sync.RWMutex
	path  string
	known []host.Host // the full universe of hosts, for partial-match resolution
	set   map[host.Host]struct{}
}

type document struct {
	BlacklistHosts []string `json:"blacklist_hosts"`
}

// New loads (or initializes) a Blocklist persisted at path. known is the
// full set of hosts across every configured group, used to resolve
// bare-hostname arguments to add/remove.
func New(path string, known []host.Host) (*Blocklist, error) {
	b := &Blocklist{path: path, known: known, set: map[host.Host]struct{}{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return b, b.persist()
		}
		return nil, coerr.ConfigError("blocklist: read %s: %v", path, err)
	}
	if err := decodeInto(b, data); err != nil {
		return nil, coerr.ConfigError("blocklist: %v", err)
	}
	return b, nil
}

// Contains reports whether h is currently blocklisted. This is the
// hot-path read the Forwarder consults before each per-host dispatch.
func (b *Blocklist) Contains(h host.Host) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.set[h]
	return ok
}

// List returns the current blocklisted hosts, sorted for stable output.
func (b *Blocklist) List() []host.Host {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]host.Host, 0, len(b.set))
	for h := range b.set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Add resolves every argument to a known Host and adds them all, or
// changes nothing if any argument fails to resolve (all-or-nothing).
func (b *Blocklist) Add(args []string) error {
	return b.mutate(args, func(resolved []host.Host) {
		for _, h := range resolved {
			b.set[h] = struct{}{}
		}
	})
}

// Remove resolves every argument to a known Host and removes them all,
// or changes nothing if any argument fails to resolve.
func (b *Blocklist) Remove(args []string) error {
	return b.mutate(args, func(resolved []host.Host) {
		for _, h := range resolved {
			delete(b.set, h)
		}
	})
}

// Clear empties the blocklist unconditionally.
func (b *Blocklist) Clear() error {
	b.mu.Lock()
	b.set = map[host.Host]struct{}{}
	err := b.persistLocked()
	b.mu.Unlock()
	return err
}

func (b *Blocklist) mutate(args []string, apply func(resolved []host.Host)) error {
	resolved := make([]host.Host, 0, len(args))
	for _, a := range args {
		h, err := b.resolve(a)
		if err != nil {
			return err
		}
		resolved = append(resolved, h)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	apply(resolved)
	return b.persistLocked()
}

// resolve turns "hostname:port" or a bare hostname into a known Host.
// A bare hostname resolves only if exactly one known host carries it.
func (b *Blocklist) resolve(arg string) (host.Host, error) {
	if strings.Contains(arg, ":") {
		h, err := host.Parse(arg)
		if err != nil {
			return host.Host{}, coerr.InvalidUsageError("blocklist: %v", err)
		}
		for _, k := range b.known {
			if k == h {
				return h, nil
			}
		}
		return host.Host{}, coerr.InvalidUsageError("blocklist: unknown host %q", arg)
	}
	var matches []host.Host
	for _, k := range b.known {
		if k.Hostname == arg {
			matches = append(matches, k)
		}
	}
	switch len(matches) {
	case 0:
		return host.Host{}, coerr.InvalidUsageError("blocklist: no known host named %q", arg)
	case 1:
		return matches[0], nil
	default:
		return host.Host{}, coerr.InvalidUsageError("blocklist: hostname %q is ambiguous across %d hosts", arg, len(matches))
	}
}

func (b *Blocklist) persist() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.persistLocked()
}

func (b *Blocklist) persistLocked() error {
	hosts := make([]string, 0, len(b.set))
	for h := range b.set {
		hosts = append(hosts, h.String())
	}
	sort.Strings(hosts)
	doc := document{BlacklistHosts: hosts}
	return writeJSONAtomic(b.path, doc)
}
