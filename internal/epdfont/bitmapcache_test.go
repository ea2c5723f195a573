/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package epdfont

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapCacheGetMiss(t *testing.T) {
	c := newBitmapCache(4)
	_, ok := c.get(7)
	require.False(t, ok)
}

func TestBitmapCachePutThenGet(t *testing.T) {
	c := newBitmapCache(4)
	c.put(1, []byte{0xAA})
	c.put(2, []byte{0xBB})

	b, ok := c.get(1)
	require.True(t, ok)
	require.Equal(t, []byte{0xAA}, b)

	b, ok = c.get(2)
	require.True(t, ok)
	require.Equal(t, []byte{0xBB}, b)
}

func TestBitmapCacheOverwriteExisting(t *testing.T) {
	c := newBitmapCache(4)
	c.put(5, []byte{1})
	c.put(5, []byte{2})

	b, ok := c.get(5)
	require.True(t, ok)
	require.Equal(t, []byte{2}, b)
}

func TestBitmapCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newBitmapCache(2)
	c.put(1, []byte{1})
	c.put(2, []byte{2})

	// touch 1 so 2 becomes the LRU victim
	_, _ = c.get(1)

	c.put(3, []byte{3})

	_, ok := c.get(2)
	require.False(t, ok, "glyph 2 should have been evicted")

	b, ok := c.get(1)
	require.True(t, ok)
	require.Equal(t, []byte{1}, b)

	b, ok = c.get(3)
	require.True(t, ok)
	require.Equal(t, []byte{3}, b)
}

func TestBitmapCacheFillBeyondCapacityStaysBounded(t *testing.T) {
	c := newBitmapCache(BitmapCacheSize)
	for i := uint32(0); i < uint32(BitmapCacheSize)*4; i++ {
		c.put(i, []byte{byte(i)})
	}

	occupiedCount := 0
	for _, occ := range c.occupied {
		if occ {
			occupiedCount++
		}
	}
	require.LessOrEqual(t, occupiedCount, BitmapCacheSize)

	// The most recently inserted keys must still be resolvable.
	for i := uint32(BitmapCacheSize)*3 + 1; i < uint32(BitmapCacheSize)*4; i++ {
		b, ok := c.get(i)
		require.True(t, ok, "expected glyph %d to still be cached", i)
		require.Equal(t, []byte{byte(i)}, b)
	}
}

func TestBitmapCacheRehashClearsTombstonesUnderChurn(t *testing.T) {
	c := newBitmapCache(8)
	// Churn well past the capacity so eviction tombstones accumulate and at
	// least one rehash sweep is forced; the cache must still answer lookups
	// correctly afterwards.
	for round := 0; round < 20; round++ {
		for i := uint32(0); i < 8; i++ {
			c.put(uint32(round)*8+i, []byte{byte(i)})
		}
	}
	require.Less(t, c.tombstones, c.capacity)

	for i := uint32(19)*8 + 0; i < 19*8+8; i++ {
		_, ok := c.get(i)
		require.True(t, ok)
	}
}

func TestBitmapCacheNilBitmapRoundTrips(t *testing.T) {
	c := newBitmapCache(4)
	c.put(9, nil)
	b, ok := c.get(9)
	require.True(t, ok)
	require.Nil(t, b)
}
