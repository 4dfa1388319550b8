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

// Package state implements the controller's hierarchical JSON-like
// document: atomic on-disk persistence, deterministic hashing, and
// named snapshot save/load/reset, modeled on the commit-then-publish
// discipline the rest of this codebase's ancestry uses to persist
// accumulator state.
package state

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"coco/internal/coerr"
)

// Tree is a node in the state document: a JSON object, array, or scalar.
type Tree = any

// Store holds the active state tree in memory and persists every
// mutation to <dir>/active via write-to-temp-then-rename.
type Store struct {
	mu               sync.RWMutex
	dir              string
	active           Tree
	excludeFromReset []string
}

const activeName = "active"

// New constructs a Store rooted at dir. If <dir>/active exists it is
// loaded; otherwise the store starts with an empty object.
func New(dir string, excludeFromReset []string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, coerr.ConfigError("state: create storage dir %s: %v", dir, err)
	}
	s := &Store{dir: dir, excludeFromReset: excludeFromReset, active: map[string]any{}}
	if data, err := os.ReadFile(filepath.Join(dir, activeName)); err == nil {
		var tree Tree
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, coerr.ConfigError("state: corrupt active snapshot: %v", err)
		}
		s.active = tree
	} else if !os.IsNotExist(err) {
		return nil, coerr.ConfigError("state: read active snapshot: %v", err)
	}
	return s, nil
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Read resolves path against the active tree and returns its value.
// Missing intermediate segments produce a typed "path not found" error.
func (s *Store) Read(path string) (Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.active, splitPath(path))
}

func lookup(tree Tree, segs []string) (Tree, error) {
	cur := tree
	for i, seg := range segs {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, coerr.InternalError("state: path %q not found (parent is not an object)", strings.Join(segs[:i+1], "/"))
		}
		next, ok := obj[seg]
		if !ok {
			return nil, coerr.InternalError("state: path %q not found", strings.Join(segs[:i+1], "/"))
		}
		cur = next
	}
	return cur, nil
}

// Extract returns a nested object containing only the path-to-value
// spine for path, e.g. Extract("a/b") -> {"a": {"b": <value>}}.
func (s *Store) Extract(path string) (Tree, error) {
	v, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	segs := splitPath(path)
	if len(segs) == 0 {
		return v, nil
	}
	out := v
	for i := len(segs) - 1; i >= 0; i-- {
		out = map[string]any{segs[i]: out}
	}
	return out, nil
}

// Write commits value at path as a single-mutation scope (see Commit).
// It takes no name argument for tagging the mutation.
func (s *Store) Write(path string, value Tree) error {
	return s.Commit(func(draft map[string]any) error {
		return writeInto(draft, splitPath(path), value)
	})
}

// FindOrCreate behaves like Read but auto-creates missing intermediate
// objects (and the leaf, as an empty object) instead of failing.
func (s *Store) FindOrCreate(path string) (Tree, error) {
	segs := splitPath(path)
	var created Tree
	err := s.Commit(func(draft map[string]any) error {
		cur := Tree(draft)
		for _, seg := range segs {
			obj, ok := cur.(map[string]any)
			if !ok {
				return coerr.InternalError("state: find_or_create: %q is not an object", seg)
			}
			next, ok := obj[seg]
			if !ok {
				next = map[string]any{}
				obj[seg] = next
			}
			cur = next
		}
		created = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// writeInto walks segs into tree (a live, mutable map[string]any draft),
// auto-creating missing intermediate objects, and sets the leaf to value.
// Writing into a scalar parent is a misuse error.
func writeInto(tree map[string]any, segs []string, value Tree) error {
	if len(segs) == 0 {
		return coerr.InternalError("state: cannot write to the root path")
	}
	cur := tree
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok {
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return coerr.InternalError("state: write into scalar parent at %q", seg)
		}
		cur = m
	}
	cur[segs[len(segs)-1]] = value
	return nil
}

// Hash returns the deterministic MD5 of the canonical encoding of the
// subtree at path (dict keys sorted recursively, list order preserved).
func (s *Store) Hash(path string) (string, error) {
	v, err := s.Read(path)
	if err != nil {
		return "", err
	}
	return HashValue(v), nil
}

// HashValue hashes an arbitrary decoded-JSON value using the same
// canonical encoding as Hash, for comparing replies against state.
func HashValue(v Tree) string {
	var b strings.Builder
	canonicalEncode(&b, v)
	sum := md5.Sum([]byte(b.String()))
	return fmt.Sprintf("%x", sum)
}

// canonicalEncode writes a length-prefixed, key-sorted encoding of v.
// Any deterministic encoding satisfies the spec; this one is simple and
// avoids ambiguity between e.g. the string "12" and the number 12 by
// tagging each value with its Go-decoded JSON type.
func canonicalEncode(b *strings.Builder, v Tree) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(b, "M%d:", len(keys))
		for _, k := range keys {
			fmt.Fprintf(b, "%d:%s", len(k), k)
			canonicalEncode(b, t[k])
		}
	case []any:
		fmt.Fprintf(b, "L%d:", len(t))
		for _, e := range t {
			canonicalEncode(b, e)
		}
	case string:
		fmt.Fprintf(b, "S%d:%s", len(t), t)
	case nil:
		b.WriteString("N")
	default:
		// numbers, bools: canonical JSON re-encode to normalise types.
		enc, _ := json.Marshal(t)
		fmt.Fprintf(b, "X%d:%s", len(enc), enc)
	}
}

// Commit runs fn against a deep copy of the active tree. If fn returns
// nil, the draft is serialized to <dir>/active via write-to-temp-and-
// rename and, only on success, becomes the new in-memory active tree.
// If fn errors or serialization fails, the in-memory tree is left
// exactly as it was before the call.
func (s *Store) Commit(fn func(draft map[string]any) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, err := deepCopyObject(s.active)
	if err != nil {
		return coerr.InternalError("state: commit: %v", err)
	}
	if err := fn(draft); err != nil {
		return err
	}
	if err := s.persist(draft); err != nil {
		return coerr.InternalError("state: commit: persist failed: %v", err)
	}
	s.active = draft
	return nil
}

func deepCopyObject(t Tree) (map[string]any, error) {
	obj, ok := t.(map[string]any)
	if !ok {
		obj = map[string]any{}
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// persist writes tree to <dir>/active via a temp file + rename so that
// readers never observe a partially-written file.
func (s *Store) persist(tree Tree) error {
	return writeJSONAtomic(filepath.Join(s.dir, activeName), tree)
}

func writeJSONAtomic(path string, v Tree) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Save copies the active tree to <dir>/<name>. name=="active" is
// rejected, as is an existing snapshot unless overwrite is set.
func (s *Store) Save(name string, overwrite bool) error {
	if name == activeName {
		return coerr.InvalidUsageError("state: snapshot name %q is reserved", activeName)
	}
	s.mu.RLock()
	tree := s.active
	s.mu.RUnlock()

	path := filepath.Join(s.dir, name)
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return coerr.InvalidUsageError("state: snapshot %q already exists", name)
		}
	}
	return writeJSONAtomic(path, tree)
}

// ListSaved returns the names of all on-disk snapshots (excluding the
// active file).
func (s *Store) ListSaved() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, coerr.InternalError("state: list saved: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == activeName || strings.HasPrefix(e.Name(), ".tmp-") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load replaces the active tree with the named snapshot, first
// extracting and re-installing the excluded subtrees so they survive
// the load verbatim.
func (s *Store) Load(name string) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return coerr.InvalidUsageError("state: no such snapshot %q", name)
		}
		return coerr.InternalError("state: load %q: %v", name, err)
	}
	var loaded Tree
	if err := json.Unmarshal(data, &loaded); err != nil {
		return coerr.InternalError("state: load %q: corrupt snapshot: %v", name, err)
	}
	return s.replaceActivePreservingExcluded(loaded)
}

// Reset replaces the active tree with defaultState (the caller's
// default document, e.g. an empty tree) while preserving excluded
// subtrees.
func (s *Store) Reset(defaultState Tree) error {
	return s.replaceActivePreservingExcluded(defaultState)
}

// replaceActivePreservingExcluded snapshots the currently-excluded
// subtrees, installs newActive, then re-writes those subtrees over it,
// all inside one commit scope.
func (s *Store) replaceActivePreservingExcluded(newActive Tree) error {
	preserved := map[string]Tree{}
	for _, path := range s.excludeFromReset {
		if v, err := s.Read(path); err == nil {
			preserved[path] = v
		}
	}
	return s.Commit(func(draft map[string]any) error {
		fresh, err := deepCopyObject(newActive)
		if err != nil {
			return coerr.InternalError("state: reset: %v", err)
		}
		for k := range draft {
			delete(draft, k)
		}
		for k, v := range fresh {
			draft[k] = v
		}
		for path, v := range preserved {
			if err := writeInto(draft, splitPath(path), v); err != nil {
				return err
			}
		}
		return nil
	})
}
