/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"papyrix/internal/epdfont"
	"papyrix/internal/sdcard"
)

// solidAlpha is a constant-alpha image.Image fixture for packMask tests,
// standing in for a real rasterized glyph mask.
type solidAlpha struct {
	level  uint8
	bounds image.Rectangle
}

func (s *solidAlpha) ColorModel() color.Model { return color.AlphaModel }
func (s *solidAlpha) Bounds() image.Rectangle { return s.bounds }
func (s *solidAlpha) At(x, y int) color.Color { return color.Alpha{A: s.level} }

func rect(x0, y0, x1, y1 int) image.Rectangle { return image.Rect(x0, y0, x1, y1) }

func fixed26_6(px int) fixed.Int26_6 { return fixed.I(px) }

// fixtureGlyphs stands in for a baked TTF, exercising writeFont/buildIntervals
// against the real decoder without needing a font file on disk: 'A','B','C'
// contiguous (one interval) plus a disjoint 'Z' (a second interval).
func fixtureGlyphs() ([]bakedGlyph, []byte) {
	var bitmap []byte
	add := func(cp rune, w, h uint8) bakedGlyph {
		data := bytes.Repeat([]byte{0xAA}, int(w)*int(h)/8+1)
		g := bakedGlyph{
			codepoint:  cp,
			width:      w,
			height:     h,
			advanceX:   w + 1,
			left:       0,
			top:        int16(h),
			dataOffset: uint32(len(bitmap)),
			dataLength: uint16(len(data)),
		}
		bitmap = append(bitmap, data...)
		return g
	}
	glyphs := []bakedGlyph{
		add('A', 6, 8),
		add('B', 6, 8),
		add('C', 6, 8),
		add('Z', 7, 9),
	}
	return glyphs, bitmap
}

func TestWriteFontRoundTripsThroughRealDecoder(t *testing.T) {
	glyphs, bitmap := fixtureGlyphs()
	var buf bytes.Buffer
	require.NoError(t, writeFont(&buf, font.Metrics{Height: fixed26_6(14), Ascent: fixed26_6(11), Descent: fixed26_6(3)}, glyphs, bitmap, 1))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "baked.epdfont"), buf.Bytes(), 0o644))

	sd := sdcard.New(dir)
	f, err := epdfont.Load(sd, "baked.epdfont")
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, 4, f.GlyphCount())
	require.Equal(t, int16(11), f.Metrics.Ascender)
	require.Equal(t, int16(3), f.Metrics.Descender)
	require.False(t, f.Metrics.Is2Bit)

	for _, want := range glyphs {
		idx, ok := f.GetGlyph(want.codepoint)
		require.Truef(t, ok, "codepoint %q not found", want.codepoint)
		g, ok := f.GlyphAt(idx)
		require.True(t, ok)
		require.Equal(t, want.width, g.Width)
		require.Equal(t, want.height, g.Height)
		require.Equal(t, want.advanceX, g.AdvanceX)

		data, err := f.GetGlyphBitmap(idx)
		require.NoError(t, err)
		require.Equal(t, int(want.dataLength), len(data))
	}
}

func TestBuildIntervalsMergesContiguousCodepoints(t *testing.T) {
	glyphs, _ := fixtureGlyphs()
	intervals := buildIntervals(glyphs)
	require.Len(t, intervals, 2)
	require.Equal(t, interval{first: uint32('A'), last: uint32('C'), offset: 0}, intervals[0])
	require.Equal(t, interval{first: uint32('Z'), last: uint32('Z'), offset: 3}, intervals[1])
}

func TestPackMaskThresholdsTo1Bit(t *testing.T) {
	img := &solidAlpha{level: 200, bounds: rect(0, 0, 9, 2)}
	packed := packMask(img, img.bounds, img.bounds.Min, 1)
	require.Len(t, packed, 2*2) // ceil(9/8)=2 bytes per row, 2 rows
	require.Equal(t, byte(0xFF), packed[0])
	require.Equal(t, byte(0x80), packed[1]) // only the 9th bit set
}

func TestParseRangesAcceptsHexAndDecimal(t *testing.T) {
	ranges, err := parseRanges("0x20-0x7E,65")
	require.NoError(t, err)
	require.Equal(t, []glyphRange{{lo: 0x20, hi: 0x7E}, {lo: 65, hi: 65}}, ranges)

	_, err = parseRanges("0x7E-0x20")
	require.Error(t, err)
}
