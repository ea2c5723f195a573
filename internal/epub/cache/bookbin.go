/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package cache implements BookMetadataCache: the two-phase spine/TOC writer
// and the "book.bin" reader/builder it bakes into. Grounded on
// lib/Epub/src/Epub/BookMetadataCache.cpp from the original firmware source.
//
// The writer streams spine entries to a temp file during the content.opf
// pass, then TOC entries to a second temp file during the TOC pass (with an
// in-RAM href->spine-index hashmap preloaded from the spine temp file for
// O(1) resolution), then bakes both into a single book.bin with look-up
// tables for O(1) random access from the reader.
package cache

import (
	"io"
	"os"
	"path/filepath"

	applog "papyrix/internal/log"
	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
	"papyrix/internal/strutil"
)

// Version is the on-disk book.bin format version. A mismatch on load
// invalidates (deletes and forces a rebuild of) the whole cache.
const Version uint8 = 6

const (
	bookBinName    = "book.bin"
	tmpSpineName   = "spine.bin.tmp"
	tmpTocName     = "toc.bin.tmp"
	maxTitleLen    = 256
	maxAuthorLen   = 128
	maxLanguageLen = 32
	maxTocTitleLen = 512
)

// Writer builds a book.bin through the two-phase spine/TOC protocol. The
// zero value is not usable; construct with NewWriter.
type Writer struct {
	dir string

	spineFile *os.File
	tocFile   *os.File

	spineCount uint16
	tocCount   uint16

	spineHrefIndex map[string]int
}

// NewWriter returns a Writer that stages its temp files under dir (the
// book's cache directory).
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// BeginContentOpfPass opens the spine temp file for writing. Call once,
// before driving the content.opf parser.
func (w *Writer) BeginContentOpfPass() error {
	f, err := os.Create(filepath.Join(w.dir, tmpSpineName))
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: open spine tempfile")
	}
	w.spineFile = f
	w.spineCount = 0
	return nil
}

// CreateSpineEntry appends one spine entry during the content.opf pass.
// Must be called for every spine item before any TOC pass begins, since the
// TOC pass's href resolution depends on the full spine being present.
func (w *Writer) CreateSpineEntry(href string) error {
	if w.spineFile == nil {
		return papyrixerr.New(papyrixerr.KindInvalidState, "bookcache: CreateSpineEntry outside content.opf pass")
	}
	if err := writeSpineEntry(w.spineFile, domain.SpineEntry{Href: href, TocIndex: -1}); err != nil {
		return err
	}
	w.spineCount++
	return nil
}

// EndContentOpfPass closes the spine temp file.
func (w *Writer) EndContentOpfPass() error {
	if w.spineFile == nil {
		return nil
	}
	err := w.spineFile.Close()
	w.spineFile = nil
	return err
}

// BeginTocPass reopens the spine temp file for read, preloads the
// href->index hashmap, and opens the TOC temp file for write.
func (w *Writer) BeginTocPass() error {
	sf, err := os.Open(filepath.Join(w.dir, tmpSpineName))
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: reopen spine tempfile")
	}
	tf, err := os.Create(filepath.Join(w.dir, tmpTocName))
	if err != nil {
		_ = sf.Close()
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: open toc tempfile")
	}

	w.spineHrefIndex = make(map[string]int, w.spineCount)
	for i := 0; i < int(w.spineCount); i++ {
		entry, err := readSpineEntry(sf)
		if err != nil {
			_ = sf.Close()
			_ = tf.Close()
			return err
		}
		if _, exists := w.spineHrefIndex[entry.Href]; !exists {
			w.spineHrefIndex[entry.Href] = i
		}
	}
	w.spineFile = sf
	w.tocFile = tf
	return nil
}

// CreateTocEntry appends one TOC entry, resolving spineIndex via the
// preloaded hashmap (-1 if the href does not match any spine item).
func (w *Writer) CreateTocEntry(title, href, anchor string, level uint8) error {
	if w.tocFile == nil {
		return papyrixerr.New(papyrixerr.KindInvalidState, "bookcache: CreateTocEntry outside toc pass")
	}
	spineIndex := -1
	if i, ok := w.spineHrefIndex[href]; ok {
		spineIndex = i
	} else {
		applog.WithComponent("epub.cache").Debug("toc href has no matching spine item", "href", href)
	}
	entry := domain.TocEntry{
		Title:      strutil.NormalizeAndTruncate(title, maxTocTitleLen),
		Href:       href,
		Anchor:     anchor,
		Level:      level,
		SpineIndex: int16(spineIndex),
	}
	if err := writeTocEntry(w.tocFile, entry); err != nil {
		return err
	}
	w.tocCount++
	return nil
}

// EndTocPass closes both temp files and frees the hashmap.
func (w *Writer) EndTocPass() error {
	var firstErr error
	if w.tocFile != nil {
		if err := w.tocFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.tocFile = nil
	}
	if w.spineFile != nil {
		if err := w.spineFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.spineFile = nil
	}
	w.spineHrefIndex = nil
	return firstErr
}

// BuildBookBin bakes the staged spine/toc temp files plus metadata into the
// final book.bin, computing the spine->toc reverse mapping in one O(n) pass
// and propagating the last-known TOC index forward onto unlabelled spine
// entries. Temp files are removed on success.
func (w *Writer) BuildBookBin(metadata domain.BookMetadata) error {
	bookFile, err := os.Create(filepath.Join(w.dir, bookBinName))
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: create book.bin")
	}
	defer func() { _ = bookFile.Close() }()

	spineFile, err := os.Open(filepath.Join(w.dir, tmpSpineName))
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: open spine tempfile for bake")
	}
	defer func() { _ = spineFile.Close() }()

	tocFile, err := os.Open(filepath.Join(w.dir, tmpTocName))
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: open toc tempfile for bake")
	}
	defer func() { _ = tocFile.Close() }()

	meta := domain.BookMetadata{
		Title:             strutil.NormalizeAndTruncate(metadata.Title, maxTitleLen),
		Author:            strutil.NormalizeAndTruncate(metadata.Author, maxAuthorLen),
		Language:          strutil.NormalizeAndTruncate(metadata.Language, maxLanguageLen),
		CoverItemHref:     metadata.CoverItemHref,
		TextReferenceHref: metadata.TextReferenceHref,
	}

	headerASize := uint32(1 + 4 + 2 + 2) // version + lutOffset + spineCount + tocCount
	metadataSize := uint32(5*4) +
		uint32(len(meta.Title)) + uint32(len(meta.Author)) + uint32(len(meta.Language)) +
		uint32(len(meta.CoverItemHref)) + uint32(len(meta.TextReferenceHref))
	lutOffset := headerASize + metadataSize
	lutSize := uint32(4)*uint32(w.spineCount) + uint32(4)*uint32(w.tocCount)

	if err := writeHeaderA(bookFile, Version, lutOffset, w.spineCount, w.tocCount); err != nil {
		return err
	}
	if err := writeMetadata(bookFile, meta); err != nil {
		return err
	}

	// First pass over spine temp file: record the absolute book.bin offset
	// each entry will land at (payload region starts right after the LUTs).
	payloadBase := lutOffset + lutSize
	spineOffsets := make([]uint32, w.spineCount)
	if _, err := spineFile.Seek(0, io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek spine tempfile")
	}
	for i := 0; i < int(w.spineCount); i++ {
		pos, err := currentOffset(spineFile)
		if err != nil {
			return err
		}
		if _, err := readSpineEntry(spineFile); err != nil {
			return err
		}
		spineOffsets[i] = payloadBase + uint32(pos)
	}
	spineRegionSize, err := currentOffset(spineFile)
	if err != nil {
		return err
	}

	tocOffsets := make([]uint32, w.tocCount)
	if _, err := tocFile.Seek(0, io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek toc tempfile")
	}
	for i := 0; i < int(w.tocCount); i++ {
		pos, err := currentOffset(tocFile)
		if err != nil {
			return err
		}
		if _, err := readTocEntry(tocFile); err != nil {
			return err
		}
		tocOffsets[i] = payloadBase + uint32(spineRegionSize) + uint32(pos)
	}

	// LUTs.
	for _, off := range spineOffsets {
		if err := writeU32(bookFile, off); err != nil {
			return err
		}
	}
	for _, off := range tocOffsets {
		if err := writeU32(bookFile, off); err != nil {
			return err
		}
	}

	// spineIndex -> first matching tocIndex, O(n).
	spineToToc := make([]int16, w.spineCount)
	for i := range spineToToc {
		spineToToc[i] = -1
	}
	if _, err := tocFile.Seek(0, io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek toc tempfile")
	}
	for j := 0; j < int(w.tocCount); j++ {
		entry, err := readTocEntry(tocFile)
		if err != nil {
			return err
		}
		if entry.SpineIndex >= 0 && int(entry.SpineIndex) < int(w.spineCount) {
			if spineToToc[entry.SpineIndex] == -1 {
				spineToToc[entry.SpineIndex] = int16(j)
			}
		}
	}

	// Write spine entries with the resolved TOC mapping, propagating the
	// last-known index forward onto unlabelled spine items.
	if _, err := spineFile.Seek(0, io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek spine tempfile")
	}
	lastTocIndex := int16(-1)
	for i := 0; i < int(w.spineCount); i++ {
		entry, err := readSpineEntry(spineFile)
		if err != nil {
			return err
		}
		entry.TocIndex = spineToToc[i]
		if entry.TocIndex == -1 {
			entry.TocIndex = lastTocIndex
		}
		lastTocIndex = entry.TocIndex
		if err := writeSpineEntry(bookFile, entry); err != nil {
			return err
		}
	}

	// Write TOC entries verbatim.
	if _, err := tocFile.Seek(0, io.SeekStart); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek toc tempfile")
	}
	for i := 0; i < int(w.tocCount); i++ {
		entry, err := readTocEntry(tocFile)
		if err != nil {
			return err
		}
		if err := writeTocEntry(bookFile, entry); err != nil {
			return err
		}
	}

	return nil
}

// Cleanup removes the spine/toc temp files, idempotently.
func (w *Writer) Cleanup() {
	_ = os.Remove(filepath.Join(w.dir, tmpSpineName))
	_ = os.Remove(filepath.Join(w.dir, tmpTocName))
}

func currentOffset(f *os.File) (int64, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: tell")
	}
	return pos, nil
}
