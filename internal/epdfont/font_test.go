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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTestFont assembles a minimal valid .epdfont blob: one interval
// covering 'A'..'C' (3 glyphs), each glyph 1 byte of bitmap data.
func buildTestFont(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	hdr := make([]byte, 34)
	binary.LittleEndian.PutUint32(hdr[0:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:6], fileVersion)
	binary.LittleEndian.PutUint16(hdr[6:8], 0) // flags
	hdr[16] = 18                               // advanceY
	binary.LittleEndian.PutUint16(hdr[18:20], uint16(int16(14)))  // ascender
	binary.LittleEndian.PutUint16(hdr[20:22], uint16(int16(-4)))  // descender
	binary.LittleEndian.PutUint32(hdr[22:26], 1)                  // intervalCount
	binary.LittleEndian.PutUint32(hdr[26:30], 3)                  // glyphCount
	binary.LittleEndian.PutUint32(hdr[30:34], 3)                  // bitmapSize
	buf.Write(hdr)

	interval := make([]byte, 12)
	binary.LittleEndian.PutUint32(interval[0:4], 'A')
	binary.LittleEndian.PutUint32(interval[4:8], 'C')
	binary.LittleEndian.PutUint32(interval[8:12], 0)
	buf.Write(interval)

	for i := 0; i < 3; i++ {
		g := make([]byte, glyphRecordSize)
		g[0] = 5 // width
		g[1] = 8 // height
		g[2] = 6 // advanceX
		binary.LittleEndian.PutUint16(g[4:6], uint16(int16(0)))  // left
		binary.LittleEndian.PutUint16(g[6:8], uint16(int16(8)))  // top
		binary.LittleEndian.PutUint16(g[8:10], 1)                // dataLength
		binary.LittleEndian.PutUint32(g[10:14], uint32(i))       // dataOffset
		buf.Write(g)
	}

	buf.Write([]byte{0xA1, 0xA2, 0xA3}) // bitmap blob, one byte per glyph

	return buf.Bytes()
}

func loadTestFont(t *testing.T) *Font {
	t.Helper()
	f, err := loadFrom(bytes.NewReader(buildTestFont(t)), nil)
	require.NoError(t, err)
	return f
}

func TestLoadValidatesMagic(t *testing.T) {
	data := buildTestFont(t)
	data[0] = 0
	_, err := loadFrom(bytes.NewReader(data), nil)
	require.Error(t, err)
}

func TestGetGlyphResolvesWithinInterval(t *testing.T) {
	f := loadTestFont(t)
	idx, ok := f.GetGlyph('B')
	require.True(t, ok)
	require.Equal(t, 1, idx)
}

func TestGetGlyphOutsideIntervalMisses(t *testing.T) {
	f := loadTestFont(t)
	_, ok := f.GetGlyph('Z')
	require.False(t, ok)
}

func TestGetGlyphCachesOnSecondLookup(t *testing.T) {
	f := loadTestFont(t)
	idx1, ok := f.GetGlyph('A')
	require.True(t, ok)
	idx2, ok := f.GetGlyph('A')
	require.True(t, ok)
	require.Equal(t, idx1, idx2)
	require.True(t, f.lookupCache['A'%glyphCacheSize].valid)
}

func TestGlyphAtReturnsMetrics(t *testing.T) {
	f := loadTestFont(t)
	idx, ok := f.GetGlyph('C')
	require.True(t, ok)
	g, ok := f.GlyphAt(idx)
	require.True(t, ok)
	require.EqualValues(t, 5, g.Width)
	require.EqualValues(t, 8, g.Height)
}

func TestGetGlyphBitmapStreamsFromDisk(t *testing.T) {
	f := loadTestFont(t)
	idx, ok := f.GetGlyph('B')
	require.True(t, ok)

	b, err := f.GetGlyphBitmap(idx)
	require.NoError(t, err)
	require.Equal(t, []byte{0xA2}, b)
}

func TestGetGlyphBitmapIsCached(t *testing.T) {
	f := loadTestFont(t)
	idx, ok := f.GetGlyph('A')
	require.True(t, ok)

	b1, err := f.GetGlyphBitmap(idx)
	require.NoError(t, err)
	b2, ok := f.bitmaps.get(uint32(idx))
	require.True(t, ok)
	require.Equal(t, b1, b2)
}

func TestGetGlyphBitmapRejectsOutOfRangeIndex(t *testing.T) {
	f := loadTestFont(t)
	_, err := f.GetGlyphBitmap(999)
	require.Error(t, err)
}

func TestLoadRejectsCorruptIntervalCount(t *testing.T) {
	data := buildTestFont(t)
	// Corrupt interval count to 2 with only one real interval: the second
	// "interval" is read from the first glyph record's bytes, and its span
	// exceeds the font's glyph count, so loading must fail rather than panic.
	binary.LittleEndian.PutUint32(data[22:26], 2)
	_, err := loadFrom(bytes.NewReader(data), nil)
	require.Error(t, err)
}

func TestMetricsParsed(t *testing.T) {
	f := loadTestFont(t)
	require.EqualValues(t, 18, f.Metrics.AdvanceY)
	require.EqualValues(t, 14, f.Metrics.Ascender)
	require.EqualValues(t, -4, f.Metrics.Descender)
	require.False(t, f.Metrics.Is2Bit)
}
