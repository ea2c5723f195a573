/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package content implements the three ContentParser backends
// (EpubChapterParser, PlainTextParser, MarkdownParser) that turn a chapter's
// raw bytes into domain.Page objects, plus the shared Pager that packs
// wrapped lines onto pages against a viewport height. Grounded on the
// firmware's EpubChapterParser.cpp/PlainTextParser.cpp/MarkdownParser.cpp
// page-building loop, expressed with the teacher's textlayout line model.
package content

import (
	"papyrix/internal/domain"
	"papyrix/internal/textlayout"
)

// ParseOutcome reports how a ParsePages call ended.
type ParseOutcome uint8

const (
	OutcomeOK ParseOutcome = iota
	OutcomePartial
	OutcomeErr
)

// Parser is the uniform interface every content backend implements.
type Parser interface {
	// ParsePages delivers 0..maxPages pages via onPage, stopping early if
	// onPage returns false or shouldAbort reports true.
	ParsePages(onPage func(domain.Page) bool, maxPages int, shouldAbort func() bool) (ParseOutcome, error)
	// HasMoreContent reports whether a subsequent ParsePages call would
	// produce additional pages.
	HasMoreContent() bool
	// CanResume reports whether a subsequent call continues from internal
	// state without reparsing already-seen bytes.
	CanResume() bool
	Reset()
	AnchorMap() []domain.AnchorRef
}

// lowMemSoftThreshold and lowMemHardFloor mirror the firmware's
// largest-free-block checks; this Go port has no heap introspection
// equivalent, so callers that care about memory pressure pass their own
// estimate via Pager.NoteFreeBytes.
const (
	lowMemSoftThreshold = 25 * 1024
	lowMemHardFloor     = 12 * 1024
)

// paragraphSpacingFactor is the extra gap added between paragraphs, as a
// multiple of one line height.
const paragraphSpacingFactor = 0.5

// Pager packs WrappedLines onto pages of a fixed viewport size, emitting a
// finished domain.Page each time a line would overflow the viewport height.
type Pager struct {
	cfg      domain.RenderConfig
	provider textlayout.Provider
	lineH    int

	cur      domain.Page
	y        int32
	freeHint int // bytes of free memory the caller last reported, 0 = unknown
}

// NewPager constructs a Pager for the given render configuration and font
// provider.
func NewPager(cfg domain.RenderConfig, provider textlayout.Provider) *Pager {
	return &Pager{
		cfg:      cfg,
		provider: provider,
		lineH:    textlayout.LineHeight(provider, cfg.LineCompression),
	}
}

// NoteFreeBytes records the caller's current free-memory estimate, used to
// decide whether AddLine should allow a mid-block early page break.
func (pg *Pager) NoteFreeBytes(free int) { pg.freeHint = free }

// lowOnMemory reports whether the last-reported free estimate is below the
// soft threshold at which the firmware starts flushing blocks early.
func (pg *Pager) lowOnMemory() bool {
	return pg.freeHint > 0 && pg.freeHint < lowMemSoftThreshold
}

// criticallyLowOnMemory reports the hard floor at which a page must be
// emitted immediately regardless of layout state.
func (pg *Pager) criticallyLowOnMemory() bool {
	return pg.freeHint > 0 && pg.freeHint < lowMemHardFloor
}

// AddLine places one wrapped line onto the current page, returning a
// completed page (ok=true) if placing the line would have overflowed the
// viewport — in which case the line starts the next page instead.
func (pg *Pager) AddLine(line textlayout.WrappedLine) (domain.Page, bool) {
	if pg.y+int32(pg.lineH) > int32(pg.cfg.ViewportHeight) {
		done := pg.cur
		pg.cur = domain.Page{}
		pg.y = 0
		pg.placeLine(line)
		return done, true
	}
	pg.placeLine(line)
	return domain.Page{}, false
}

func (pg *Pager) placeLine(line textlayout.WrappedLine) {
	x := pg.xFor(line)
	el := domain.PageElement{
		Kind:      domain.ElementText,
		Text:      line.Text,
		Style:     line.Style,
		Alignment: pg.cfg.ParagraphAlignment,
		X:         x,
		Y:         pg.y,
		Baseline:  pg.y + int32(pg.provider.Ascender()),
		Width:     int32(line.Width),
		Height:    int32(pg.lineH),
	}
	pg.cur.Elements = append(pg.cur.Elements, el)
	pg.y += int32(pg.lineH)
}

func (pg *Pager) xFor(line textlayout.WrappedLine) int32 {
	indent := int32(pg.cfg.IndentLevel) * 8
	switch pg.cfg.ParagraphAlignment {
	case domain.AlignCenter:
		return (int32(pg.cfg.ViewportWidth) - int32(line.Width)) / 2
	case domain.AlignRight:
		return int32(pg.cfg.ViewportWidth) - int32(line.Width)
	default:
		return indent
	}
}

// AddParagraphSpacing advances the cursor by a fraction of a line height
// between paragraphs, without emitting an element.
func (pg *Pager) AddParagraphSpacing() {
	pg.y += int32(float64(pg.lineH) * paragraphSpacingFactor * float64(pg.cfg.SpacingLevel+1))
}

// CurrentElementIndex returns the element index the next AddLine call would
// occupy on the in-progress page, for anchor-map bookkeeping.
func (pg *Pager) CurrentElementIndex() int { return len(pg.cur.Elements) }

// dividerHeight and imageHeight are the fixed vertical footprints Pager
// advances by when placing a non-text element, since the content parsers
// driving Pager (MarkdownParser) don't have access to real image pixel
// dimensions or a divider glyph to measure against.
const (
	dividerHeight = 4
	imageHeight   = 120
)

// AddDivider places a full-width divider element on the current page,
// completing the page first if the divider would overflow the viewport.
func (pg *Pager) AddDivider() (domain.Page, bool) {
	if pg.y+dividerHeight > int32(pg.cfg.ViewportHeight) {
		done := pg.cur
		pg.cur = domain.Page{}
		pg.y = 0
		pg.placeDivider()
		return done, true
	}
	pg.placeDivider()
	return domain.Page{}, false
}

func (pg *Pager) placeDivider() {
	pg.cur.Elements = append(pg.cur.Elements, domain.PageElement{
		Kind:   domain.ElementDivider,
		X:      0,
		Y:      pg.y,
		Width:  int32(pg.cfg.ViewportWidth),
		Height: dividerHeight,
	})
	pg.y += dividerHeight
}

// AddImage places an image element referencing path, completing the page
// first if it would overflow the viewport. Images are skipped entirely by
// the caller when cfg.ShowImages is false (MarkdownParser/EpubChapterParser
// check this before calling AddImage at all).
func (pg *Pager) AddImage(path string) (domain.Page, bool) {
	if pg.y+imageHeight > int32(pg.cfg.ViewportHeight) {
		done := pg.cur
		pg.cur = domain.Page{}
		pg.y = 0
		pg.placeImage(path)
		return done, true
	}
	pg.placeImage(path)
	return domain.Page{}, false
}

func (pg *Pager) placeImage(path string) {
	pg.cur.Elements = append(pg.cur.Elements, domain.PageElement{
		Kind:      domain.ElementImage,
		ImagePath: path,
		X:         0,
		Y:         pg.y,
		Width:     int32(pg.cfg.ViewportWidth),
		Height:    imageHeight,
	})
	pg.y += imageHeight
}

// Flush returns whatever is accumulated on the current page (possibly
// empty) and resets the cursor, for end-of-content finalisation.
func (pg *Pager) Flush() domain.Page {
	done := pg.cur
	pg.cur = domain.Page{}
	pg.y = 0
	return done
}

// HasPendingContent reports whether the current in-progress page holds any
// elements yet to be flushed.
func (pg *Pager) HasPendingContent() bool { return len(pg.cur.Elements) > 0 }
