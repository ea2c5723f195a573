/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pagecache implements PageCache: the versioned, config-validated
// store of rendered domain.Page records a content handle builds once and
// then randomly accesses by index. Grounded on lib/Reader/src/PageCache.cpp
// — header-then-pages-then-LUT layout, hot/cold extend, and the
// write-pages-then-LUT-then-header commit discipline that lets a crash
// mid-append leave the file in a state the next load reads correctly
// (spec.md §4.7/§5).
package pagecache

import (
	"io"
	"os"

	applog "papyrix/internal/log"
	"papyrix/internal/content"
	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
)

// Version is bumped on any breaking schema change; Load deletes the file on
// mismatch rather than attempting to interpret foreign bytes.
const Version uint8 = 17

// HeaderSize is the fixed byte length of the header described in spec.md
// §6.3: version + fontId + lineCompression + 5 render-config bytes + two
// viewport u16s + pageCount + isPartial + lutOffset.
const HeaderSize = 1 + 4 + 4 + 1 + 1 + 1 + 1 + 1 + 2 + 2 + 2 + 1 + 4

// chunkSizeSmall and chunkSizeLarge are the cold-extend chunk sizes: small
// caches grow cautiously, large ones grow in bigger strides once the
// per-extend parse overhead is amortised (spec.md §4.7).
const (
	chunkSizeSmall   = 5
	chunkSizeLarge   = 50
	chunkSizeCutover = 30
	prefetchMargin   = 3
)

// Header is the decoded fixed-size PageCache header.
type Header struct {
	Config     domain.RenderConfig
	PageCount  uint16
	IsPartial  bool
	LUTOffset  uint32
}

// Cache is a handle to one PageCache file on disk. Files are opened for the
// scope of a single operation, never held open across calls (spec.md §3
// ownership rules).
type Cache struct {
	path string
}

// New returns a Cache bound to path. It does not touch the filesystem.
func New(path string) *Cache { return &Cache{path: path} }

// ChunkSize returns the cold-extend chunk size for a cache currently holding
// pageCount pages.
func ChunkSize(pageCount int) int {
	if pageCount < chunkSizeCutover {
		return chunkSizeSmall
	}
	return chunkSizeLarge
}

// ShouldPrefetch reports whether the reader positioned at currentPage
// (0-indexed) against a cache of pageCount pages should trigger an extend,
// per spec.md §4.7's "prefetch when currentPage >= pageCount-3" rule.
func ShouldPrefetch(currentPage, pageCount int) bool {
	return currentPage >= pageCount-prefetchMargin
}

func writeHeader(w io.Writer, h Header) error {
	if err := writeU8(w, Version); err != nil {
		return err
	}
	if err := writeU32(w, h.Config.FontID); err != nil {
		return err
	}
	if err := writeF32(w, h.Config.LineCompression); err != nil {
		return err
	}
	if err := writeU8(w, h.Config.IndentLevel); err != nil {
		return err
	}
	if err := writeU8(w, h.Config.SpacingLevel); err != nil {
		return err
	}
	if err := writeU8(w, uint8(h.Config.ParagraphAlignment)); err != nil {
		return err
	}
	if err := writeBool(w, h.Config.Hyphenation); err != nil {
		return err
	}
	if err := writeBool(w, h.Config.ShowImages); err != nil {
		return err
	}
	if err := writeU16(w, h.Config.ViewportWidth); err != nil {
		return err
	}
	if err := writeU16(w, h.Config.ViewportHeight); err != nil {
		return err
	}
	if err := writeU16(w, h.PageCount); err != nil {
		return err
	}
	if err := writeBool(w, h.IsPartial); err != nil {
		return err
	}
	return writeU32(w, h.LUTOffset)
}

func readHeader(r io.Reader) (Header, uint8, error) {
	var h Header
	version, err := readU8(r)
	if err != nil {
		return h, 0, err
	}
	if h.Config.FontID, err = readU32(r); err != nil {
		return h, version, err
	}
	if h.Config.LineCompression, err = readF32(r); err != nil {
		return h, version, err
	}
	if h.Config.IndentLevel, err = readU8(r); err != nil {
		return h, version, err
	}
	if h.Config.SpacingLevel, err = readU8(r); err != nil {
		return h, version, err
	}
	align, err := readU8(r)
	if err != nil {
		return h, version, err
	}
	h.Config.ParagraphAlignment = domain.Alignment(align)
	if h.Config.Hyphenation, err = readBool(r); err != nil {
		return h, version, err
	}
	if h.Config.ShowImages, err = readBool(r); err != nil {
		return h, version, err
	}
	if h.Config.ViewportWidth, err = readU16(r); err != nil {
		return h, version, err
	}
	if h.Config.ViewportHeight, err = readU16(r); err != nil {
		return h, version, err
	}
	if h.PageCount, err = readU16(r); err != nil {
		return h, version, err
	}
	if h.IsPartial, err = readBool(r); err != nil {
		return h, version, err
	}
	if h.LUTOffset, err = readU32(r); err != nil {
		return h, version, err
	}
	return h, version, nil
}

// Load reads the header and validates it against cfg. Any version or
// render-config mismatch is treated as invalidation, not an ordinary error:
// the file is deleted and a KindInvalidFormat error is returned so the caller rebuilds
// via Create (spec.md §4.7/§7).
func (c *Cache) Load(cfg domain.RenderConfig) (*Header, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, papyrixerr.Wrap(papyrixerr.KindNotFound, err, "pagecache: open %s", c.path)
		}
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: open %s", c.path)
	}
	defer func() { _ = f.Close() }()

	h, version, err := readHeader(f)
	if err != nil {
		c.invalidate()
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "pagecache: short header, invalidating")
	}
	if version != Version {
		c.invalidate()
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: version mismatch (want %d got %d), invalidating", Version, version)
	}
	if !h.Config.Equal(cfg) {
		c.invalidate()
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: render config mismatch, invalidating")
	}
	info, err := f.Stat()
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: stat %s", c.path)
	}
	size := uint32(info.Size())
	if h.LUTOffset < HeaderSize || h.LUTOffset >= size {
		c.invalidate()
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: lutOffset %d out of [%.d,%d), invalidating", h.LUTOffset, HeaderSize, size)
	}
	return &h, nil
}

func (c *Cache) invalidate() {
	applog.WithComponent("pagecache").Warn("invalidating cache", "path", c.path)
	_ = os.Remove(c.path)
}

// Clear removes the cache file. Removing a non-existent cache is success,
// per spec.md §8's idempotence property.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: clear %s", c.path)
	}
	return nil
}

// LoadPage reads page n by seeking through the LUT, retrying up to 3 times
// on any validation or I/O failure before giving up (spec.md §4.7).
func (c *Cache) LoadPage(n int) (domain.Page, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		p, err := c.loadPageOnce(n)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return domain.Page{}, papyrixerr.Wrap(papyrixerr.KindIOError, lastErr, "pagecache: loadPage(%d) failed after retries", n)
}

func (c *Cache) loadPageOnce(n int) (domain.Page, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return domain.Page{}, err
	}
	defer func() { _ = f.Close() }()

	h, version, err := readHeader(f)
	if err != nil {
		return domain.Page{}, err
	}
	if version != Version {
		return domain.Page{}, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: version mismatch")
	}
	if n < 0 || n >= int(h.PageCount) {
		return domain.Page{}, papyrixerr.New(papyrixerr.KindInvalidArg, "pagecache: page %d out of range (count %d)", n, h.PageCount)
	}
	info, err := f.Stat()
	if err != nil {
		return domain.Page{}, err
	}
	size := uint32(info.Size())
	if h.LUTOffset < HeaderSize || h.LUTOffset >= size {
		return domain.Page{}, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: lutOffset out of range")
	}
	lutEntryOffset := int64(h.LUTOffset) + 4*int64(n)
	if _, err := f.Seek(lutEntryOffset, io.SeekStart); err != nil {
		return domain.Page{}, err
	}
	pageOffset, err := readU32(f)
	if err != nil {
		return domain.Page{}, err
	}
	if pageOffset < HeaderSize || pageOffset >= h.LUTOffset {
		return domain.Page{}, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: LUT entry %d out of range", pageOffset)
	}
	if _, err := f.Seek(int64(pageOffset), io.SeekStart); err != nil {
		return domain.Page{}, err
	}
	return readPage(f)
}

// buildResult is what a Create/Extend pass produces for the header rewrite.
type buildResult struct {
	offsets   []uint32
	isPartial bool
	err       error
}

// runParser drives parser.ParsePages, discarding the first skipPages pages
// and appending the rest to w starting at baseOffset, recording each kept
// page's absolute file offset. Stops at maxPages kept pages.
func runParser(w io.Writer, parser content.Parser, baseOffset uint32, skipPages, maxPages int, shouldAbort func() bool) buildResult {
	var res buildResult
	skipped := 0
	offset := baseOffset

	_, err := parser.ParsePages(func(p domain.Page) bool {
		if skipped < skipPages {
			skipped++
			return true
		}
		if len(res.offsets) >= maxPages {
			return false
		}
		res.offsets = append(res.offsets, offset)
		if werr := writePage(w, p); werr != nil {
			res.err = werr
			return false
		}
		// Recompute offset by measuring what was just written; callers pass
		// a counting writer so this stays O(1) instead of re-stat'ing.
		if cw, ok := w.(*countingWriter); ok {
			offset = baseOffset + uint32(cw.n)
		}
		return len(res.offsets) < maxPages
	}, maxPages+skipPages, shouldAbort)
	if res.err == nil {
		res.err = err
	}
	res.isPartial = parser.HasMoreContent()
	return res
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Create parses content from scratch into a fresh PageCache file, stopping
// after maxPages pages (or sooner, if the parser runs out of content or the
// caller cancels via shouldAbort). On abort with zero pages written the
// file is deleted rather than left as a corrupt empty cache (spec.md §4.7
// step 5).
func (c *Cache) Create(cfg domain.RenderConfig, parser content.Parser, maxPages int, shouldAbort func() bool) error {
	return c.createOrExtend(cfg, parser, 0, maxPages, shouldAbort, os.O_CREATE|os.O_TRUNC|os.O_RDWR)
}

func (c *Cache) createOrExtend(cfg domain.RenderConfig, parser content.Parser, skipPages, maxPages int, shouldAbort func() bool, flag int) error {
	f, err := os.OpenFile(c.path, flag, 0o644)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: open %s for build", c.path)
	}
	defer func() { _ = f.Close() }()

	placeholder := Header{Config: cfg}
	if err := writeHeader(f, placeholder); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: write placeholder header")
	}

	cw := &countingWriter{w: f}
	res := runParser(cw, parser, HeaderSize, skipPages, maxPages, shouldAbort)
	if res.err != nil {
		_ = f.Close()
		_ = os.Remove(c.path)
		return papyrixerr.Wrap(papyrixerr.KindParseFailed, res.err, "pagecache: build failed")
	}
	if len(res.offsets) == 0 && skipPages == 0 {
		_ = f.Close()
		_ = os.Remove(c.path)
		return papyrixerr.New(papyrixerr.KindParseFailed, "pagecache: zero pages produced, discarding")
	}

	lutOffset := HeaderSize + uint32(cw.n)
	for _, off := range res.offsets {
		if err := writeU32(f, off); err != nil {
			return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: write LUT")
		}
	}
	// Truncate to the end of the freshly written LUT so the file size
	// matches the content exactly, even when flag omits O_TRUNC.
	if err := f.Truncate(int64(lutOffset) + 4*int64(len(res.offsets))); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: truncate after rebuild")
	}

	h := Header{
		Config:    cfg,
		PageCount: uint16(len(res.offsets)),
		IsPartial: res.isPartial,
		LUTOffset: lutOffset,
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: seek header rewrite")
	}
	if err := writeHeader(f, h); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: rewrite header")
	}
	return nil
}

// Extend grows an existing cache by chunk pages, using the parser's
// CanResume hint to choose the hot path (continue the live parser, append
// in place) or the cold path (reset and reparse, skipping already-cached
// pages) per spec.md §4.7.
func (c *Cache) Extend(cfg domain.RenderConfig, parser content.Parser, chunk int, shouldAbort func() bool) error {
	cur, err := c.Load(cfg)
	if err != nil {
		return err
	}
	if parser.CanResume() {
		return c.extendHot(cur, parser, 0, chunk, shouldAbort)
	}
	parser.Reset()
	before := int(cur.PageCount)
	if err := c.extendHot(cur, parser, before, chunk, shouldAbort); err != nil {
		return err
	}
	// Safety rule: a cold extend that produced nothing and reports no more
	// content must clear isPartial to prevent an infinite extend loop.
	after, err := c.Load(cfg)
	if err != nil {
		return err
	}
	if int(after.PageCount) == before && !parser.HasMoreContent() {
		return c.forceNotPartial(cfg)
	}
	return nil
}

func (c *Cache) extendHot(cur *Header, parser content.Parser, skipPages, chunk int, shouldAbort func() bool) error {
	f, err := os.OpenFile(c.path, os.O_RDWR, 0o644)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: open for hot extend")
	}
	defer func() { _ = f.Close() }()

	// The existing LUT sits between the old pages and EOF; appending new
	// pages must start where the old LUT begins, then the LUT is rewritten
	// past the newly appended pages.
	if _, err := f.Seek(int64(cur.LUTOffset), io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: seek to old LUT")
	}
	oldOffsets := make([]uint32, cur.PageCount)
	for i := range oldOffsets {
		if oldOffsets[i], err = readU32(f); err != nil {
			return papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "pagecache: read existing LUT")
		}
	}
	if err := f.Truncate(int64(cur.LUTOffset)); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: truncate old LUT")
	}
	if _, err := f.Seek(int64(cur.LUTOffset), io.SeekStart); err != nil {
		return err
	}

	cw := &countingWriter{w: f}
	res := runParser(cw, parser, cur.LUTOffset, skipPages, chunk, shouldAbort)
	if res.err != nil {
		return papyrixerr.Wrap(papyrixerr.KindParseFailed, res.err, "pagecache: hot extend failed")
	}

	newLUTOffset := cur.LUTOffset + uint32(cw.n)
	allOffsets := append(oldOffsets, res.offsets...)
	for _, off := range allOffsets {
		if err := writeU32(f, off); err != nil {
			return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: rewrite LUT")
		}
	}

	h := Header{
		Config:    cur.Config,
		PageCount: uint16(len(allOffsets)),
		IsPartial: res.isPartial,
		LUTOffset: newLUTOffset,
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return writeHeader(f, h)
}

func (c *Cache) forceNotPartial(cfg domain.RenderConfig) error {
	f, err := os.OpenFile(c.path, os.O_RDWR, 0o644)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "pagecache: open to clear isPartial")
	}
	defer func() { _ = f.Close() }()
	h, _, err := readHeader(f)
	if err != nil {
		return err
	}
	h.IsPartial = false
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return writeHeader(f, h)
}
