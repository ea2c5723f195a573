/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package epub is the facade a content handle opens: it owns the EPUB's
// file path and per-book cache directory, orchestrates the streaming
// container/opf/toc parse into a BookMetadataCache when no book.bin exists
// yet (or it is invalidated), and answers spine/TOC/metadata queries
// against the baked cache afterwards. Grounded on lib/Epub/src/Epub.h's
// facade shape (owns path + cache dir, orchestrates build, answers
// queries) combined with the teacher's own "facade over a directory"
// pattern in internal/storage/project.go.
package epub

import (
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"

	applog "papyrix/internal/log"
	"papyrix/internal/domain"
	"papyrix/internal/epub/cache"
	"papyrix/internal/epub/parse"
	"papyrix/internal/papyrixerr"
	"papyrix/internal/zipkit"
)

// Epub owns an EPUB file's path and derived cache directory, and exclusively
// owns the BookMetadataCache reader once loaded.
type Epub struct {
	filePath  string
	cacheDir  string
	zr        *zipkit.Reader
	reader    *cache.Reader
	baseDir   string // directory content.opf lives in, relative to archive root
	cssFiles  []string
}

// CacheDirFor derives a book's cache directory from its SD path: a
// well-known root prefixed with a hash of the path, so the derivation is
// deterministic and collision-resistant without needing to mirror the
// book's own directory structure (which may contain characters unsafe for
// the cache filesystem).
func CacheDirFor(cacheRoot, bookPath string) string {
	h := fnv.New64a()
	_, _ = io.WriteString(h, bookPath)
	return filepath.Join(cacheRoot, fmt.Sprintf("epub_%016x", h.Sum64()))
}

// Open constructs an Epub for filePath, deriving its cache directory under
// cacheRoot. It does not touch the filesystem.
func Open(filePath, cacheRoot string) *Epub {
	return &Epub{filePath: filePath, cacheDir: CacheDirFor(cacheRoot, filePath)}
}

// CacheDir returns the book's cache directory.
func (e *Epub) CacheDir() string { return e.cacheDir }

// Path returns the EPUB's SD path.
func (e *Epub) Path() string { return e.filePath }

// Load opens the ZIP archive and, unless a valid book.bin already exists,
// drives the full container -> content.opf -> toc parse pass and bakes it.
// buildIfMissing controls whether a missing/invalidated cache is rebuilt or
// reported as an error.
func (e *Epub) Load(buildIfMissing bool) error {
	zr, err := zipkit.Open(e.filePath)
	if err != nil {
		return err
	}
	e.zr = zr

	if cache.Exists(e.cacheDir) {
		r, err := cache.Open(e.cacheDir)
		if err == nil {
			e.reader = r
			return nil
		}
		applog.WithComponent("epub").Warn("book.bin invalid, rebuilding", "path", e.filePath, "err", err)
		_ = cache.Delete(e.cacheDir)
	}

	if !buildIfMissing {
		return papyrixerr.New(papyrixerr.KindNotFound, "epub: no cache for %s and buildIfMissing=false", e.filePath)
	}
	if err := e.build(); err != nil {
		return err
	}
	r, err := cache.Open(e.cacheDir)
	if err != nil {
		return err
	}
	e.reader = r
	return nil
}

func (e *Epub) build() error {
	if err := mkdirAll(e.cacheDir); err != nil {
		return err
	}

	rootfilePath, err := e.parseContainer()
	if err != nil {
		return err
	}
	e.baseDir = filepath.ToSlash(filepath.Dir(rootfilePath))
	if e.baseDir == "." {
		e.baseDir = ""
	}

	w := cache.NewWriter(e.cacheDir)
	if err := w.BeginContentOpfPass(); err != nil {
		return err
	}
	opfData, err := e.zr.ReadAll(rootfilePath, false)
	if err != nil {
		_ = w.EndContentOpfPass()
		return err
	}
	res, err := parse.ContentOpf(newByteReader(opfData), e.baseDir, w)
	if err != nil {
		_ = w.EndContentOpfPass()
		return err
	}
	if err := w.EndContentOpfPass(); err != nil {
		return err
	}
	e.cssFiles = res.CSSFiles

	if err := w.BeginTocPass(); err != nil {
		return err
	}
	if res.TocNavPath != "" && e.zr.Has(res.TocNavPath) {
		navData, err := e.zr.ReadAll(res.TocNavPath, false)
		if err == nil {
			if err := parse.TocNav(newByteReader(navData), e.baseDir, w); err != nil {
				applog.WithComponent("epub").Warn("nav.xhtml parse failed, keeping TOC entries parsed before the error", "err", err)
			}
		}
	} else if res.TocNcxPath != "" && e.zr.Has(res.TocNcxPath) {
		ncxData, err := e.zr.ReadAll(res.TocNcxPath, false)
		if err == nil {
			if err := parse.TocNcx(newByteReader(ncxData), e.baseDir, w); err != nil {
				applog.WithComponent("epub").Warn("toc.ncx parse failed, continuing without TOC", "err", err)
			}
		}
	}
	if err := w.EndTocPass(); err != nil {
		return err
	}

	if err := w.BuildBookBin(domain.BookMetadata{
		Title:             res.Metadata.Title,
		Author:            res.Metadata.Author,
		Language:          res.Metadata.Language,
		CoverItemHref:     res.Metadata.CoverItemHref,
		TextReferenceHref: res.TextReferenceHref,
	}); err != nil {
		return err
	}
	w.Cleanup()
	return nil
}

func (e *Epub) parseContainer() (string, error) {
	data, err := e.zr.ReadAll("META-INF/container.xml", false)
	if err != nil {
		return "", err
	}
	return parse.Container(newByteReader(data))
}

// Close releases the ZIP archive and cache reader.
func (e *Epub) Close() error {
	var firstErr error
	if e.reader != nil {
		if err := e.reader.Close(); err != nil {
			firstErr = err
		}
	}
	if e.zr != nil {
		if err := e.zr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ClearCache deletes the book's cache directory entirely.
func (e *Epub) ClearCache() error {
	return removeAll(e.cacheDir)
}

// Title, Author, Language return the cached book metadata.
func (e *Epub) Title() string    { return e.reader.Metadata.Title }
func (e *Epub) Author() string   { return e.reader.Metadata.Author }
func (e *Epub) Language() string { return e.reader.Metadata.Language }
func (e *Epub) CoverItemHref() string { return e.reader.Metadata.CoverItemHref }
func (e *Epub) TextReferenceHref() string { return e.reader.Metadata.TextReferenceHref }

// SpineCount and TocCount return the number of cached entries.
func (e *Epub) SpineCount() int { return int(e.reader.SpineCount) }
func (e *Epub) TocCount() int   { return int(e.reader.TocCount) }

// SpineEntry and TocEntry answer by index through the cache reader's LUT.
func (e *Epub) SpineEntry(i int) (domain.SpineEntry, error) { return e.reader.SpineEntry(i) }
func (e *Epub) TocEntry(i int) (domain.TocEntry, error)     { return e.reader.TocEntry(i) }

// SpineIndexForTextReference resolves the guide's text/start reference (the
// EPUB's suggested "start reading here" point) to a spine index, or -1.
func (e *Epub) SpineIndexForTextReference() int {
	href := e.TextReferenceHref()
	if href == "" {
		return -1
	}
	for i := 0; i < e.SpineCount(); i++ {
		entry, err := e.SpineEntry(i)
		if err != nil {
			break
		}
		if entry.Href == href {
			return i
		}
	}
	return -1
}

// ReadItem inflates a manifest-href item (chapter HTML, CSS, cover image)
// fully into memory.
func (e *Epub) ReadItem(href string, trailingNUL bool) ([]byte, error) {
	return e.zr.ReadAll(href, trailingNUL)
}

// StreamItem inflates a manifest-href item directly into w, for large
// chapter bodies the caller wants to spill to a temp file rather than hold
// fully in RAM.
func (e *Epub) StreamItem(href string, w io.Writer) (int64, error) {
	return e.zr.StreamTo(href, w)
}

// ItemSize reports an item's inflated size without reading it.
func (e *Epub) ItemSize(href string) (uint64, error) {
	return e.zr.UncompressedSize(href)
}

// CSSFiles returns the manifest-discovered stylesheet hrefs from the most
// recent build (empty when the book was loaded from an existing cache,
// since content.opf is not reparsed in that case).
func (e *Epub) CSSFiles() []string { return e.cssFiles }
