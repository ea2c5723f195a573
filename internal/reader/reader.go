/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package reader wires together epub, theme, epdfont, textlayout, content
// and pagecache into the one operation every host surface needs: turn a
// spine index and a page number into a rendered domain.Page. It is the
// shared composition layer behind both cmd/papyrixd's headless "open"
// command and cmd/papyrix-sim's simulator engine, so the two never drift
// on cache file naming or font loading conventions.
package reader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"

	"papyrix/internal/content"
	"papyrix/internal/domain"
	"papyrix/internal/epdfont"
	"papyrix/internal/epub"
	"papyrix/internal/pagecache"
	"papyrix/internal/sdcard"
	"papyrix/internal/textlayout"
	"papyrix/internal/theme"
)

// FontsDirName and ChapterCacheExt are this package's own on-disk
// conventions, not part of any byte-format the device's firmware fixes:
// one PageCache file per spine item, named by spine index, mirrors a
// device pagin the chapter currently open rather than the whole book at
// once, and every baked font lives under one well-known directory.
const (
	FontsDirName    = ".papyrix/fonts"
	ChapterCacheExt = ".pgcache"
)

// FontPath returns the conventional on-device path of a baked font file.
func FontPath(fontID uint32) string {
	return filepath.Join(FontsDirName, strconv.FormatUint(uint64(fontID), 10)+".epdfont")
}

// LoadProvider loads the streaming font named by fontID and wraps it as a
// textlayout.Provider. The caller owns the returned *epdfont.Font and must
// Close it.
func LoadProvider(sd *sdcard.Facade, fontID uint32) (textlayout.Provider, *epdfont.Font, error) {
	f, err := epdfont.Load(sd, FontPath(fontID))
	if err != nil {
		return nil, nil, err
	}
	return textlayout.StreamingFontProvider{Font: f}, f, nil
}

// ChapterCachePath derives the per-chapter PageCache file path from a book's
// epub cache directory and spine index.
func ChapterCachePath(e *epub.Epub, spineIndex int) string {
	return filepath.Join(e.CacheDir(), fmt.Sprintf("chapter_%04d%s", spineIndex, ChapterCacheExt))
}

// OpenChapter opens or (re)builds the PageCache for one spine item so it
// covers wantPage. A fresh process has no resident parser to hand to
// Extend's hot path between invocations, so rebuilding via Create is the
// only correct option here. Nothing in this tree keeps a parser alive
// across calls or calls Extend.
func OpenChapter(e *epub.Epub, spineIndex int, cfg domain.RenderConfig, provider textlayout.Provider, wantPage int) (*pagecache.Cache, *pagecache.Header, error) {
	entry, err := e.SpineEntry(spineIndex)
	if err != nil {
		return nil, nil, err
	}

	cache := pagecache.New(ChapterCachePath(e, spineIndex))
	if hdr, err := cache.Load(cfg); err == nil && (!hdr.IsPartial || wantPage < int(hdr.PageCount)) {
		return cache, hdr, nil
	}

	parser, err := newChapterParser(e, entry.Href, cfg, provider)
	if err != nil {
		return nil, nil, err
	}
	if err := cache.Create(cfg, parser, wantPage+1, nil); err != nil {
		return nil, nil, err
	}
	hdr, err := cache.Load(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cache, hdr, nil
}

func newChapterParser(e *epub.Epub, href string, cfg domain.RenderConfig, provider textlayout.Provider) (content.Parser, error) {
	data, err := e.ReadItem(href, false)
	if err != nil {
		return nil, err
	}
	return content.NewEpubChapterParser(bytes.NewReader(data), cfg, provider), nil
}

// RenderConfigFor projects a named theme onto a concrete viewport.
func RenderConfigFor(themeDir, name string, width, height uint16) (domain.RenderConfig, error) {
	t, err := theme.Load(themeDir, name)
	if err != nil {
		return domain.RenderConfig{}, err
	}
	return t.RenderConfig(width, height), nil
}

// PageText renders a Page's text elements back to a plain string.
func PageText(p domain.Page) string {
	var buf bytes.Buffer
	for _, el := range p.Elements {
		if el.Kind != domain.ElementText {
			continue
		}
		buf.WriteString(el.Text)
		buf.WriteByte('\n')
	}
	return buf.String()
}
