/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package content

import (
	"bufio"
	"io"
	"strings"

	"papyrix/internal/domain"
	"papyrix/internal/strutil"
	"papyrix/internal/textlayout"
)

// plainTextChunkSize mirrors the firmware's 4 KiB read granularity for
// PlainTextParser (spec.md §4.5).
const plainTextChunkSize = 4096

// abortPollInterval is how many words PlainTextParser reads between polls
// of the abort callback — coarse granularity, matching spec.md §4.5/§5
// ("poll every ~20 tokens or per blank line").
const abortPollInterval = 20

// PlainTextParser streams a plain-text chapter 4 KiB at a time, wrapping
// words into lines via textlayout.WordWrap and packing them onto pages
// through the shared Pager. Grounded on PlainTextParser.cpp's chunked
// read/word-split/layout loop.
type PlainTextParser struct {
	src      *bufio.Reader
	provider textlayout.Provider
	cfg      domain.RenderConfig
	pager    *Pager

	carry     string // a word fragment split across two 4 KiB reads
	paragraph strings.Builder
	eof       bool
	wordsSeen int
}

// NewPlainTextParser constructs a parser over src, ready to be driven by
// ParsePages.
func NewPlainTextParser(src io.Reader, cfg domain.RenderConfig, provider textlayout.Provider) *PlainTextParser {
	return &PlainTextParser{
		src:      bufio.NewReaderSize(src, plainTextChunkSize),
		provider: provider,
		cfg:      cfg,
		pager:    NewPager(cfg, provider),
	}
}

// ParsePages implements Parser.
func (p *PlainTextParser) ParsePages(onPage func(domain.Page) bool, maxPages int, shouldAbort func() bool) (ParseOutcome, error) {
	pagesEmitted := 0
	emit := func(pg domain.Page) bool {
		pagesEmitted++
		return onPage(pg)
	}

	textWidth := int(p.cfg.ViewportWidth) - int(p.cfg.IndentLevel)*8
	if textWidth <= 0 {
		textWidth = int(p.cfg.ViewportWidth)
	}

	for !p.eof && pagesEmitted < maxPages {
		chunk := make([]byte, plainTextChunkSize)
		n, err := p.src.Read(chunk)
		if n > 0 {
			if p.flushWords(chunk[:n], textWidth, emit, shouldAbort) {
				return OutcomePartial, nil
			}
		}
		if err == io.EOF {
			p.eof = true
			break
		}
		if err != nil {
			return OutcomeErr, err
		}
		if shouldAbort != nil && p.wordsSeen%abortPollInterval == 0 && shouldAbort() {
			return OutcomePartial, nil
		}
		if pagesEmitted >= maxPages {
			break
		}
	}

	if p.eof {
		if p.carry != "" && p.flushWords([]byte("\n"), textWidth, emit, shouldAbort) {
			return OutcomePartial, nil
		}
		p.flushParagraph(textWidth, emit)
		if p.pager.HasPendingContent() {
			if !emit(p.pager.Flush()) {
				return OutcomePartial, nil
			}
		}
	}
	if pagesEmitted >= maxPages && p.HasMoreContent() {
		return OutcomePartial, nil
	}
	return OutcomeOK, nil
}

// flushWords splits a raw chunk into words/paragraph breaks and lays them
// out incrementally, returning true if the caller should stop early
// (callback returned false or cancellation observed).
func (p *PlainTextParser) flushWords(chunk []byte, textWidth int, emit func(domain.Page) bool, shouldAbort func() bool) bool {
	text := p.carry + string(chunk)
	p.carry = ""

	// Keep a trailing partial word for the next chunk instead of splitting
	// it; the last carried word is flushed by ParsePages once EOF is seen.
	if idx := lastBreak(text); idx >= 0 && idx < len(text)-1 {
		p.carry = text[idx+1:]
		text = text[:idx+1]
	}

	lines := strings.Split(text, "\n")
	for li, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if p.flushParagraph(textWidth, emit) {
				return true
			}
			continue
		}
		for _, word := range strings.Fields(trimmed) {
			p.wordsSeen++
			if p.paragraph.Len() > 0 {
				p.paragraph.WriteByte(' ')
			}
			p.paragraph.WriteString(strutil.NormalizeNFC(word))
		}
		if p.pager.lowOnMemory() {
			if p.flushParagraph(textWidth, emit) {
				return true
			}
		}
		if p.pager.criticallyLowOnMemory() {
			if p.pager.HasPendingContent() {
				if !emit(p.pager.Flush()) {
					return true
				}
			}
			return true
		}
		if shouldAbort != nil && p.wordsSeen%abortPollInterval == 0 && shouldAbort() {
			return true
		}
		_ = li
	}
	return false
}

// flushParagraph wraps the accumulated paragraph text and places it onto
// the pager, returning true if the caller should stop early.
func (p *PlainTextParser) flushParagraph(textWidth int, emit func(domain.Page) bool) bool {
	if p.paragraph.Len() == 0 {
		return false
	}
	text := p.paragraph.String()
	p.paragraph.Reset()

	lines := textlayout.WordWrap(p.provider, []textlayout.Run{{Text: text, Style: domain.StyleRegular}}, textWidth)
	for _, line := range lines {
		if pg, done := p.pager.AddLine(line); done {
			if !emit(pg) {
				return true
			}
		}
	}
	p.pager.AddParagraphSpacing()
	return false
}

// HasMoreContent reports whether the underlying reader has unconsumed
// bytes or the pager still holds pending content.
func (p *PlainTextParser) HasMoreContent() bool {
	if !p.eof {
		return true
	}
	return p.paragraph.Len() > 0 || p.pager.HasPendingContent()
}

// CanResume is always true for plain text: the reader and pager carry all
// state needed to continue without reparsing already-consumed bytes.
func (p *PlainTextParser) CanResume() bool { return true }

// Reset discards the parse state (carried word, paragraph, EOF flag, word
// count, pager). It does not rewind the underlying reader: plain text has no
// seekable resume point cheaper than reopening the source, so callers
// performing a cold extend construct a new PlainTextParser over a freshly
// reopened reader instead.
func (p *PlainTextParser) Reset() {
	p.carry = ""
	p.paragraph.Reset()
	p.eof = false
	p.wordsSeen = 0
	p.pager = NewPager(p.cfg, p.provider)
}

// AnchorMap is empty for plain text: there is no addressable structure
// beyond page order.
func (p *PlainTextParser) AnchorMap() []domain.AnchorRef { return nil }

// lastBreak returns the index of the last whitespace rune in s, or -1.
func lastBreak(s string) int {
	return strings.LastIndexAny(s, " \t\n")
}
