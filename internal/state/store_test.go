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

package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, exclude []string) *Store {
	t.Helper()
	s, err := New(t.TempDir(), exclude)
	require.NoError(t, err)
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Write("a/b/c", float64(42)))
	v, err := s.Read("a/b/c")
	require.NoError(t, err)
	assert.Equal(t, float64(42), v)
}

func TestReadMissingPathErrors(t *testing.T) {
	s := newTestStore(t, nil)
	_, err := s.Read("nope/here")
	require.Error(t, err)
}

func TestWriteIntoScalarParentErrors(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Write("a", "scalar"))
	err := s.Write("a/b", 1.0)
	require.Error(t, err)
}

func TestExtractReturnsSpine(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Write("a/b", float64(5)))
	v, err := s.Extract("a/b")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": float64(5)}}, v)
}

func TestHashStableAcrossKeyOrder(t *testing.T) {
	h1 := HashValue(map[string]any{"a": float64(1), "b": float64(2)})
	h2 := HashValue(map[string]any{"b": float64(2), "a": float64(1)})
	assert.Equal(t, h1, h2)

	h3 := HashValue([]any{float64(1), float64(2)})
	h4 := HashValue([]any{float64(2), float64(1)})
	assert.NotEqual(t, h3, h4, "list order must be preserved in the hash")
}

func TestSaveRejectsActiveName(t *testing.T) {
	s := newTestStore(t, nil)
	err := s.Save("active", false)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Write("test_state", float64(1)))
	require.NoError(t, s.Save("backup", false))

	require.NoError(t, s.Write("test_state", float64(2)))
	require.NoError(t, s.Load("backup"))

	v, err := s.Read("test_state")
	require.NoError(t, err)
	assert.Equal(t, float64(1), v)
}

func TestSaveRejectsOverwriteUnlessRequested(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Save("backup", false))
	err := s.Save("backup", false)
	require.Error(t, err)
	require.NoError(t, s.Save("backup", true))
}

func TestResetPreservesExcludedSubtrees(t *testing.T) {
	s := newTestStore(t, []string{"excluded"})
	require.NoError(t, s.Write("excluded", float64(5)))
	require.NoError(t, s.Write("test_state", float64(5)))

	require.NoError(t, s.Reset(map[string]any{}))

	v, err := s.Read("excluded")
	require.NoError(t, err)
	assert.Equal(t, float64(5), v)

	_, err = s.Read("test_state")
	require.Error(t, err)
}

func TestLoadPreservesExcludedSubtreesEvenIfMutatedAfterSave(t *testing.T) {
	s := newTestStore(t, []string{"excluded"})
	require.NoError(t, s.Write("excluded", float64(1)))
	require.NoError(t, s.Save("backup", false))

	require.NoError(t, s.Write("excluded", float64(2)))
	require.NoError(t, s.Load("backup"))

	v, err := s.Read("excluded")
	require.NoError(t, err)
	assert.Equal(t, float64(2), v, "excluded mutations made after save must survive a load")
}

func TestListSavedExcludesActive(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Save("b", false))
	require.NoError(t, s.Save("a", false))
	names, err := s.ListSaved()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}
