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

package blocklist

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coco/internal/host"
)

func testKnown() []host.Host {
	return []host.Host{
		{Hostname: "h1", Port: 11},
		{Hostname: "h2", Port: 22},
		{Hostname: "h2", Port: 33}, // ambiguous hostname on purpose
	}
}

func TestAddRemoveAllOrNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.json")
	b, err := New(path, testKnown())
	require.NoError(t, err)

	err = b.Add([]string{"h1:11", "does-not-exist:99"})
	require.Error(t, err)
	assert.False(t, b.Contains(host.Host{Hostname: "h1", Port: 11}), "partial add must not apply")

	require.NoError(t, b.Add([]string{"h1:11", "h2:22"}))
	assert.True(t, b.Contains(host.Host{Hostname: "h1", Port: 11}))
	assert.True(t, b.Contains(host.Host{Hostname: "h2", Port: 22}))
}

func TestAmbiguousHostnameRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.json")
	b, err := New(path, testKnown())
	require.NoError(t, err)

	err = b.Add([]string{"h2"})
	require.Error(t, err)
}

func TestUniqueHostnameResolves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.json")
	b, err := New(path, testKnown())
	require.NoError(t, err)

	require.NoError(t, b.Add([]string{"h1"}))
	assert.True(t, b.Contains(host.Host{Hostname: "h1", Port: 11}))
}

func TestClearAndPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.json")
	b, err := New(path, testKnown())
	require.NoError(t, err)
	require.NoError(t, b.Add([]string{"h1:11"}))

	b2, err := New(path, testKnown())
	require.NoError(t, err)
	assert.True(t, b2.Contains(host.Host{Hostname: "h1", Port: 11}), "blocklist must persist across loads")

	require.NoError(t, b2.Clear())
	assert.Empty(t, b2.List())
}
