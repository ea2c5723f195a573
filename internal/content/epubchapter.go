/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package content

import (
	"encoding/xml"
	"io"
	"strings"

	"papyrix/internal/domain"
	"papyrix/internal/textlayout"
)

// blockElements are the tags that start a new layout block — encountering
// one flushes whatever inline run is in progress, mirroring the firmware's
// chapter parser treating block-level HTML as paragraph boundaries.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// headerElements map a heading tag to bold styling (the device has no
// separate heading font, only style variants — spec.md §4.2's streaming
// font resolves exactly four glyph variants).
var headerElements = map[string]bool{"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true}

// EpubChapterParser streams one EPUB chapter document's XHTML, emitting
// Page objects through the shared Pager and recording an anchor map of
// fragment ids to the page index they land on. Grounded on
// EpubChapterParser.cpp's persistent-parser-across-calls design; the
// source's "spill to temp file, run an HTML5 void-element normalisation
// pass, then parse" pipeline collapses here to encoding/xml.Decoder's own
// lenient streaming mode (HTMLAutoClose/HTMLEntity), which already
// tolerates unclosed void elements directly over the source io.Reader
// without a separate spill step.
type EpubChapterParser struct {
	dec      *xml.Decoder
	provider textlayout.Provider
	cfg      domain.RenderConfig

	pager *Pager

	inBold, inItalic bool
	inHeader         bool
	runs             []textlayout.Run
	word             strings.Builder

	pendingAnchors []string
	anchors        []domain.AnchorRef
	pageIndex      int

	eof bool
}

// NewEpubChapterParser constructs a parser over a chapter's raw XHTML
// bytes. r is typically backed by a temp file the caller spilled the
// chapter into (epub.StreamItem), so construction never holds the whole
// chapter in RAM.
func NewEpubChapterParser(r io.Reader, cfg domain.RenderConfig, provider textlayout.Provider) *EpubChapterParser {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	return &EpubChapterParser{
		dec:      dec,
		provider: provider,
		cfg:      cfg,
		pager:    NewPager(cfg, provider),
	}
}

func (p *EpubChapterParser) textWidth() int {
	w := int(p.cfg.ViewportWidth) - int(p.cfg.IndentLevel)*8
	if w <= 0 {
		return int(p.cfg.ViewportWidth)
	}
	return w
}

// ParsePages implements Parser.
func (p *EpubChapterParser) ParsePages(onPage func(domain.Page) bool, maxPages int, shouldAbort func() bool) (ParseOutcome, error) {
	pagesEmitted := 0
	tokensSeen := 0

	deliver := func(pg domain.Page) bool {
		p.resolvePendingAnchors()
		pagesEmitted++
		p.pageIndex++
		return onPage(pg)
	}

	for !p.eof && pagesEmitted < maxPages {
		tok, err := p.dec.Token()
		if err == io.EOF {
			p.eof = true
			break
		}
		if err != nil {
			return OutcomeErr, err
		}
		tokensSeen++

		switch t := tok.(type) {
		case xml.StartElement:
			name := localTag(t.Name.Local)
			for _, a := range t.Attr {
				if localTag(a.Name.Local) == "id" && a.Value != "" {
					p.pendingAnchors = append(p.pendingAnchors, a.Value)
				}
			}
			switch {
			case name == "b" || name == "strong":
				p.flushWord()
				p.inBold = true
			case name == "i" || name == "em":
				p.flushWord()
				p.inItalic = true
			case headerElements[name]:
				if !p.flushBlock(deliver) {
					return OutcomePartial, nil
				}
				p.inHeader = true
			case name == "br":
				p.flushWord()
			case name == "img":
				if !p.flushBlock(deliver) {
					return OutcomePartial, nil
				}
				if p.cfg.ShowImages {
					for _, a := range t.Attr {
						if localTag(a.Name.Local) == "src" && a.Value != "" {
							if pg, done := p.pager.AddImage(a.Value); done {
								if !deliver(pg) {
									return OutcomePartial, nil
								}
							}
						}
					}
				}
			case blockElements[name]:
				if !p.flushBlock(deliver) {
					return OutcomePartial, nil
				}
			}
		case xml.CharData:
			p.consumeText([]byte(t))
		case xml.EndElement:
			name := localTag(t.Name.Local)
			switch {
			case name == "b" || name == "strong":
				p.flushWord()
				p.inBold = false
			case name == "i" || name == "em":
				p.flushWord()
				p.inItalic = false
			case headerElements[name]:
				p.flushWord()
				if !p.flushBlock(deliver) {
					return OutcomePartial, nil
				}
				p.inHeader = false
			case blockElements[name]:
				p.flushWord()
				if !p.flushBlock(deliver) {
					return OutcomePartial, nil
				}
			}
		}

		if shouldAbort != nil && tokensSeen%abortPollInterval == 0 && shouldAbort() {
			return OutcomePartial, nil
		}
	}

	if p.eof {
		p.flushWord()
		p.flushBlock(deliver)
		if p.pager.HasPendingContent() {
			if !deliver(p.pager.Flush()) {
				return OutcomePartial, nil
			}
		}
		p.resolvePendingAnchors()
	}
	if pagesEmitted >= maxPages && p.HasMoreContent() {
		return OutcomePartial, nil
	}
	return OutcomeOK, nil
}

func (p *EpubChapterParser) consumeText(text []byte) {
	for _, b := range text {
		switch b {
		case ' ', '\t', '\n', '\r':
			p.flushWord()
		default:
			p.word.WriteByte(b)
		}
	}
}

func (p *EpubChapterParser) currentStyle() domain.FontStyle {
	switch {
	case (p.inBold || p.inHeader) && p.inItalic:
		return domain.StyleBoldItalic
	case p.inBold || p.inHeader:
		return domain.StyleBold
	case p.inItalic:
		return domain.StyleItalic
	default:
		return domain.StyleRegular
	}
}

func (p *EpubChapterParser) flushWord() {
	if p.word.Len() == 0 {
		return
	}
	w := p.word.String()
	p.word.Reset()
	style := p.currentStyle()
	if n := len(p.runs); n > 0 && p.runs[n-1].Style == style {
		p.runs[n-1].Text += " " + w
		return
	}
	p.runs = append(p.runs, textlayout.Run{Text: w, Style: style})
}

// flushBlock wraps accumulated runs onto the pager, delivering any
// completed pages through deliver. Returns false if the caller returned
// false from the page callback (stop early).
func (p *EpubChapterParser) flushBlock(deliver func(domain.Page) bool) bool {
	if len(p.runs) == 0 {
		return true
	}
	runs := p.runs
	p.runs = nil
	lines := textlayout.WordWrap(p.provider, runs, p.textWidth())
	for _, line := range lines {
		if pg, done := p.pager.AddLine(line); done {
			if !deliver(pg) {
				return false
			}
		}
	}
	p.pager.AddParagraphSpacing()
	return true
}

// resolvePendingAnchors assigns every fragment id seen since the last page
// boundary to the page index just completed (or, at end of content, the
// final in-progress page).
func (p *EpubChapterParser) resolvePendingAnchors() {
	for _, id := range p.pendingAnchors {
		p.anchors = append(p.anchors, domain.AnchorRef{ID: id, PageIndex: p.pageIndex})
	}
	p.pendingAnchors = nil
}

// HasMoreContent reports unconsumed XML tokens or pending layout state.
func (p *EpubChapterParser) HasMoreContent() bool {
	if !p.eof {
		return true
	}
	return len(p.runs) > 0 || p.word.Len() > 0 || p.pager.HasPendingContent()
}

// CanResume is always true: the xml.Decoder and pager hold all state
// needed to continue a subsequent ParsePages call.
func (p *EpubChapterParser) CanResume() bool { return true }

// Reset is unused in practice since CanResume is always true (cold extend
// never triggers for this parser); present to satisfy Parser.
func (p *EpubChapterParser) Reset() {
	p.runs = nil
	p.word.Reset()
	p.inBold, p.inItalic, p.inHeader = false, false, false
	p.eof = false
	p.pendingAnchors = nil
	p.anchors = nil
	p.pageIndex = 0
	p.pager = NewPager(p.cfg, p.provider)
}

// AnchorMap returns the fragment-id-to-page-index map captured across the
// whole parse, persisted across the parser's lifetime (spec.md §4.5).
func (p *EpubChapterParser) AnchorMap() []domain.AnchorRef { return p.anchors }

func localTag(name string) string { return strings.ToLower(name) }
