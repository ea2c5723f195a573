/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package epdfont reads the device's custom ".epdfont" bitmap font format.
// The glyph index (intervals + glyph records) is loaded entirely into RAM on
// open; per-glyph bitmap data stays on disk and is streamed in through a
// fixed-capacity LRU cache on first use, so a 50 KB font costs well under its
// full size in RAM. Grounded on StreamingEpdFont.cpp.
package epdfont

import (
	"io"
	"sort"
	"time"

	applog "papyrix/internal/log"
	"papyrix/internal/papyrixerr"
	"papyrix/internal/sdcard"
)

const (
	magic      = 0x46445045 // "EPDF" little-endian
	fileVersion = 1

	flagIs2Bit = 1 << 0

	maxIntervalCount = 10000
	maxGlyphCount    = 100000
	maxBitmapSize    = 512 * 1024
	maxGlyphDataSize = 4096 // sanity cap per glyph, defends against corruption

	glyphRecordSize = 14

	// glyphCacheSize is the direct-mapped codepoint->glyph index cache size.
	glyphCacheSize = 128

	// BitmapCacheSize is the fixed capacity of the open-addressed bitmap LRU.
	BitmapCacheSize = 64

	bitmapReadRetries = 3
	bitmapReadBackoff = 50 * time.Millisecond
)

// Interval maps a contiguous codepoint range to a region of the glyph table.
type Interval struct {
	First, Last uint32
	Offset      uint32
}

// Glyph is one glyph's metrics plus the location of its bitmap in the font's
// bitmap blob.
type Glyph struct {
	Width, Height uint8
	AdvanceX      uint8
	Left, Top     int16
	DataLength    uint16
	DataOffset    uint32
}

// Metrics are the font-wide vertical metrics from the header.
type Metrics struct {
	AdvanceY           uint8
	Ascender, Descender int16
	Is2Bit             bool
}

type glyphCacheEntry struct {
	valid      bool
	codepoint  uint32
	glyphIndex int32
}

// Font is a loaded, streaming .epdfont reader. Not safe for concurrent use
// from multiple goroutines without external synchronisation — matching the
// single-threaded render model of the device.
type Font struct {
	Metrics Metrics

	intervals []Interval
	glyphs    []Glyph

	file         io.ReadSeeker
	closer       io.Closer
	bitmapOffset int64

	lookupCache [glyphCacheSize]glyphCacheEntry
	bitmaps     *bitmapCache
}

// Load opens path via sd, validates the header, and reads the interval and
// glyph tables into RAM, leaving the bitmap blob on disk.
func Load(sd *sdcard.Facade, path string) (*Font, error) {
	f, err := sd.OpenRead(path)
	if err != nil {
		return nil, err
	}
	font, err := loadFrom(f, f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return font, nil
}

// loadFrom reads a font from an arbitrary ReadSeeker; closer (may be nil) is
// retained so Close releases the underlying resource.
func loadFrom(r io.ReadSeeker, closer io.Closer) (*Font, error) {
	var hdr [34]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epdfont: short header")
	}
	gotMagic := le32(hdr[0:4])
	if gotMagic != magic {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: bad magic %08x", gotMagic)
	}
	version := le16(hdr[4:6])
	if version != fileVersion {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: unsupported version %d", version)
	}
	flags := le16(hdr[6:8])
	// hdr[8:16] reserved
	advanceY := hdr[16]
	// hdr[17] padding
	ascender := int16(le16(hdr[18:20]))
	descender := int16(le16(hdr[20:22]))
	intervalCount := le32(hdr[22:26])
	glyphCount := le32(hdr[26:30])
	bitmapSize := le32(hdr[30:34])

	if intervalCount > maxIntervalCount {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: intervalCount %d exceeds max", intervalCount)
	}
	if glyphCount > maxGlyphCount {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: glyphCount %d exceeds max", glyphCount)
	}
	if bitmapSize > maxBitmapSize {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: bitmapSize %d exceeds max", bitmapSize)
	}

	intervals := make([]Interval, intervalCount)
	var ibuf [12]byte
	for i := range intervals {
		if _, err := io.ReadFull(r, ibuf[:]); err != nil {
			return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epdfont: short interval record %d", i)
		}
		intervals[i] = Interval{First: le32(ibuf[0:4]), Last: le32(ibuf[4:8]), Offset: le32(ibuf[8:12])}
	}
	if !sort.SliceIsSorted(intervals, func(i, j int) bool { return intervals[i].First < intervals[j].First }) {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: intervals not sorted by first")
	}
	for i, iv := range intervals {
		if iv.Last < iv.First {
			return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: interval %d has last < first", i)
		}
		span := iv.Last - iv.First + 1
		if iv.Offset+span > glyphCount {
			return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: interval %d exceeds glyphCount", i)
		}
		if i > 0 && iv.First <= intervals[i-1].Last {
			return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: interval %d overlaps previous", i)
		}
	}

	glyphs := make([]Glyph, glyphCount)
	var gbuf [glyphRecordSize]byte
	for i := range glyphs {
		if _, err := io.ReadFull(r, gbuf[:]); err != nil {
			return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epdfont: short glyph record %d", i)
		}
		glyphs[i] = Glyph{
			Width:      gbuf[0],
			Height:     gbuf[1],
			AdvanceX:   gbuf[2],
			Left:       int16(le16(gbuf[4:6])),
			Top:        int16(le16(gbuf[6:8])),
			DataLength: le16(gbuf[8:10]),
			DataOffset: le32(gbuf[10:14]),
		}
	}

	bitmapOffset, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "epdfont: seek to bitmap blob")
	}

	for i, g := range glyphs {
		if uint32(g.DataLength) > maxGlyphDataSize {
			return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: glyph %d dataLength %d exceeds sanity cap", i, g.DataLength)
		}
		if uint64(g.DataOffset)+uint64(g.DataLength) > uint64(bitmapSize) {
			return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "epdfont: glyph %d bitmap range exceeds blob size", i)
		}
	}

	return &Font{
		Metrics: Metrics{
			AdvanceY:  advanceY,
			Ascender:  ascender,
			Descender: descender,
			Is2Bit:    flags&flagIs2Bit != 0,
		},
		intervals:    intervals,
		glyphs:       glyphs,
		file:         r,
		closer:       closer,
		bitmapOffset: bitmapOffset,
		bitmaps:      newBitmapCache(BitmapCacheSize),
	}, nil
}

// Close releases the underlying file handle.
func (f *Font) Close() error {
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}

// GlyphCount returns the number of glyph records loaded.
func (f *Font) GlyphCount() int { return len(f.glyphs) }

// GetGlyph resolves a codepoint to a glyph index: O(1) via the direct-mapped
// cache on hit, else O(log n) binary search over intervals. Returns
// ok=false (not an error) when the codepoint is outside every interval or
// the interval's derived index is corrupt.
func (f *Font) GetGlyph(codepoint rune) (glyphIndex int, ok bool) {
	cp := uint32(codepoint)
	slot := &f.lookupCache[cp%glyphCacheSize]
	if slot.valid && slot.codepoint == cp {
		return int(slot.glyphIndex), true
	}

	idx, found := sort.Find(len(f.intervals), func(i int) int {
		iv := f.intervals[i]
		switch {
		case cp < iv.First:
			return -1
		case cp > iv.Last:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return 0, false
	}
	iv := f.intervals[idx]
	gi := iv.Offset + (cp - iv.First)
	if gi >= uint32(len(f.glyphs)) {
		applog.WithComponent("epdfont").Warn("corrupt glyph index", "codepoint", cp, "glyphIndex", gi)
		return 0, false
	}

	slot.valid = true
	slot.codepoint = cp
	slot.glyphIndex = int32(gi)
	return int(gi), true
}

// GlyphAt returns the metrics record for a glyph index previously returned by
// GetGlyph. The caller must not construct glyphIndex values itself.
func (f *Font) GlyphAt(glyphIndex int) (Glyph, bool) {
	if glyphIndex < 0 || glyphIndex >= len(f.glyphs) {
		return Glyph{}, false
	}
	return f.glyphs[glyphIndex], true
}

// GetGlyphBitmap returns the raw bitmap bytes for glyphIndex, streaming them
// from disk through the LRU cache on miss. glyphIndex must have come from
// GetGlyph/GlyphAt against this same Font.
func (f *Font) GetGlyphBitmap(glyphIndex int) ([]byte, error) {
	if glyphIndex < 0 || glyphIndex >= len(f.glyphs) {
		return nil, papyrixerr.New(papyrixerr.KindInvalidArg, "epdfont: glyph index %d out of range", glyphIndex)
	}
	if b, ok := f.bitmaps.get(uint32(glyphIndex)); ok {
		return b, nil
	}

	g := f.glyphs[glyphIndex]
	data, err := f.readBitmapBytes(g)
	if err != nil {
		return nil, err
	}
	f.bitmaps.put(uint32(glyphIndex), data)
	return data, nil
}

func (f *Font) readBitmapBytes(g Glyph) ([]byte, error) {
	if g.DataLength == 0 {
		return nil, nil
	}
	l := applog.WithComponent("epdfont")
	var lastErr error
	for attempt := 0; attempt < bitmapReadRetries; attempt++ {
		if _, err := f.file.Seek(f.bitmapOffset+int64(g.DataOffset), io.SeekStart); err != nil {
			lastErr = err
		} else {
			buf := make([]byte, g.DataLength)
			if _, err := io.ReadFull(f.file, buf); err != nil {
				lastErr = err
			} else {
				return buf, nil
			}
		}
		l.Warn("transient glyph bitmap read failure", "attempt", attempt+1, "err", lastErr)
		if attempt < bitmapReadRetries-1 {
			time.Sleep(bitmapReadBackoff)
		}
	}
	return nil, papyrixerr.Wrap(papyrixerr.KindIOError, lastErr, "epdfont: read glyph bitmap after %d attempts", bitmapReadRetries)
}

func le16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
