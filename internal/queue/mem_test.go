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

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemQueuePushPopRoundTrip(t *testing.T) {
	q := NewMem(2)
	e := NewEntry("ep", "GET", nil, nil)
	require.NoError(t, q.Push(context.Background(), e))
	assert.Equal(t, 1, q.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ep", got.Endpoint)
	assert.Equal(t, 0, q.Len())
}

func TestMemQueueRejectsWhenFull(t *testing.T) {
	q := NewMem(1)
	require.NoError(t, q.Push(context.Background(), NewEntry("a", "GET", nil, nil)))
	err := q.Push(context.Background(), NewEntry("b", "GET", nil, nil))
	assert.ErrorIs(t, err, ErrFull)
}

func TestMemQueuePopBlocksUntilContextDone(t *testing.T) {
	q := NewMem(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
