/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package epdfont

// bitmapCache is a fixed-capacity glyph-bitmap LRU backed by an open-addressed
// hash table with linear probing, matching the firmware's constant-memory
// cache: a small array of slots holds the actual bitmap bytes, and a
// same-size hash table maps glyph index -> slot so lookups stay O(1) without
// ever growing the slot array. Tombstones left behind by eviction are swept
// by a full rehash once they reach a quarter of capacity, keeping probe
// chains short under churn.
type bitmapCache struct {
	capacity int

	slots    []cacheSlot
	occupied []bool // slots[i] holds live data

	table      []int32 // hash table: index into slots, or one of the sentinels below
	tombstones int

	clock uint64
}

type cacheSlot struct {
	glyphIndex uint32
	bitmap     []byte
	lastUsed   uint64
}

const (
	tableEmpty     int32 = -1
	tableTombstone int32 = -2
)

func newBitmapCache(capacity int) *bitmapCache {
	c := &bitmapCache{
		capacity: capacity,
		slots:    make([]cacheSlot, capacity),
		occupied: make([]bool, capacity),
		table:    make([]int32, capacity),
	}
	for i := range c.table {
		c.table[i] = tableEmpty
	}
	return c
}

func (c *bitmapCache) hash(glyphIndex uint32) int {
	// Fibonacci hashing spreads sequential glyph indices (the common case,
	// since nearby codepoints usually sit in the same interval) across the
	// table instead of clustering them.
	h := glyphIndex * 2654435769
	return int(h) % c.capacity
}

// get returns the cached bitmap for glyphIndex and bumps its recency clock.
func (c *bitmapCache) get(glyphIndex uint32) ([]byte, bool) {
	slot, found := c.find(glyphIndex)
	if !found {
		return nil, false
	}
	c.clock++
	c.slots[slot].lastUsed = c.clock
	return c.slots[slot].bitmap, true
}

// find locates glyphIndex's slot in the hash table via linear probing,
// treating tombstones as pass-through and empty as a definitive miss.
func (c *bitmapCache) find(glyphIndex uint32) (slot int, found bool) {
	start := c.hash(glyphIndex)
	for i := 0; i < c.capacity; i++ {
		pos := (start + i) % c.capacity
		switch c.table[pos] {
		case tableEmpty:
			return 0, false
		case tableTombstone:
			continue
		default:
			s := int(c.table[pos])
			if c.occupied[s] && c.slots[s].glyphIndex == glyphIndex {
				return s, true
			}
		}
	}
	return 0, false
}

// put inserts or replaces the bitmap for glyphIndex, evicting the
// least-recently-used slot when the cache is full.
func (c *bitmapCache) put(glyphIndex uint32, bitmap []byte) {
	if slot, found := c.find(glyphIndex); found {
		c.clock++
		c.slots[slot].bitmap = bitmap
		c.slots[slot].lastUsed = c.clock
		return
	}

	victim := c.selectVictim()
	if c.occupied[victim] {
		c.evictFromTable(c.slots[victim].glyphIndex)
	}

	c.clock++
	c.slots[victim] = cacheSlot{glyphIndex: glyphIndex, bitmap: bitmap, lastUsed: c.clock}
	c.occupied[victim] = true
	c.insertIntoTable(victim, glyphIndex)

	if c.tombstones*4 >= c.capacity {
		c.rehash()
	}
}

// selectVictim picks a free slot if one exists, else the globally
// least-recently-used occupied slot.
func (c *bitmapCache) selectVictim() int {
	for i, occ := range c.occupied {
		if !occ {
			return i
		}
	}
	victim := 0
	oldest := c.slots[0].lastUsed
	for i := 1; i < c.capacity; i++ {
		if c.slots[i].lastUsed < oldest {
			oldest = c.slots[i].lastUsed
			victim = i
		}
	}
	return victim
}

// insertIntoTable places slot index s under key glyphIndex via linear
// probing, landing on the first empty or tombstoned bucket.
func (c *bitmapCache) insertIntoTable(s int, glyphIndex uint32) {
	start := c.hash(glyphIndex)
	for i := 0; i < c.capacity; i++ {
		pos := (start + i) % c.capacity
		if c.table[pos] == tableEmpty || c.table[pos] == tableTombstone {
			if c.table[pos] == tableTombstone {
				c.tombstones--
			}
			c.table[pos] = int32(s)
			return
		}
	}
	// Table is exactly as large as capacity and every put() keeps occupancy
	// <= capacity, so a full scan finding no slot means invariants broke.
	panic("epdfont: bitmap cache hash table unexpectedly full")
}

// evictFromTable removes glyphIndex's entry, leaving a tombstone so later
// probes for other keys that hashed past it still terminate correctly.
func (c *bitmapCache) evictFromTable(glyphIndex uint32) {
	start := c.hash(glyphIndex)
	for i := 0; i < c.capacity; i++ {
		pos := (start + i) % c.capacity
		switch c.table[pos] {
		case tableEmpty:
			return
		case tableTombstone:
			continue
		default:
			s := int(c.table[pos])
			if c.slots[s].glyphIndex == glyphIndex {
				c.table[pos] = tableTombstone
				c.tombstones++
				c.occupied[s] = false
				c.slots[s].bitmap = nil
				return
			}
		}
	}
}

// rehash rebuilds the hash table from the currently occupied slots, clearing
// every tombstone in one pass.
func (c *bitmapCache) rehash() {
	for i := range c.table {
		c.table[i] = tableEmpty
	}
	c.tombstones = 0
	for i, occ := range c.occupied {
		if occ {
			c.insertIntoTable(i, c.slots[i].glyphIndex)
		}
	}
}
