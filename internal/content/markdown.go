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
	"fmt"
	"io"
	"strings"

	"papyrix/internal/domain"
	"papyrix/internal/mdparse"
	"papyrix/internal/textlayout"
)

// markdownChunkSize is the read granularity fed to the shared mdparse
// tokenizer, matching PlainTextParser's 4 KiB chunking.
const markdownChunkSize = 4096

// MarkdownParser drives the shared streaming mdparse.Parser over chunks of
// a Markdown chapter, maintaining the small inline-style state machine
// described in spec.md §4.5 and packing finished blocks onto pages through
// the shared Pager. Grounded on MarkdownParser.cpp's token-driven state
// {inBold, inItalic, inCodeBlock, headerLevel, textBlock, ...}.
type MarkdownParser struct {
	src      *bufio.Reader
	tok      *mdparse.Parser
	provider textlayout.Provider
	cfg      domain.RenderConfig
	pager    *Pager

	runs        []textlayout.Run
	word        strings.Builder
	inBold      bool
	inItalic    bool
	inCodeBlock bool
	listPrefix  string
	headerLevel uint8

	emit         func(domain.Page) bool
	aborted      bool
	hitMaxPages  bool
	pagesEmitted int
	maxPages     int
	wordsSeen    int
	shouldAbort  func() bool
	eof          bool
}

// NewMarkdownParser constructs a parser over src.
func NewMarkdownParser(src io.Reader, cfg domain.RenderConfig, provider textlayout.Provider) *MarkdownParser {
	p := &MarkdownParser{
		src:      bufio.NewReaderSize(src, markdownChunkSize),
		provider: provider,
		cfg:      cfg,
		pager:    NewPager(cfg, provider),
	}
	p.tok = mdparse.NewWithConfig(mdparse.Config{Callback: p.onToken, Features: mdparse.FeatAll})
	return p
}

func (p *MarkdownParser) textWidth() int {
	w := int(p.cfg.ViewportWidth) - int(p.cfg.IndentLevel)*8
	if w <= 0 {
		return int(p.cfg.ViewportWidth)
	}
	return w
}

// ParsePages implements Parser.
func (p *MarkdownParser) ParsePages(onPage func(domain.Page) bool, maxPages int, shouldAbort func() bool) (ParseOutcome, error) {
	p.emit = onPage
	p.maxPages = maxPages
	p.shouldAbort = shouldAbort
	p.aborted = false
	p.hitMaxPages = false

	for !p.eof && !p.aborted && p.pagesEmitted < maxPages {
		chunk := make([]byte, markdownChunkSize)
		n, err := p.src.Read(chunk)
		if n > 0 {
			p.tok.ParseChunk(chunk[:n])
		}
		if err == io.EOF {
			p.eof = true
			p.tok.ParseEnd()
			break
		}
		if err != nil {
			return OutcomeErr, err
		}
	}
	if p.eof {
		p.flushWord()
		p.flushBlock()
		if p.pager.HasPendingContent() && !p.aborted {
			if !p.emit(p.pager.Flush()) {
				p.aborted = true
			}
		}
	}
	if p.aborted || (p.pagesEmitted >= maxPages && p.HasMoreContent()) {
		return OutcomePartial, nil
	}
	return OutcomeOK, nil
}

func (p *MarkdownParser) onToken(tok mdparse.Token) bool {
	if p.aborted {
		return false
	}
	switch tok.Type {
	case mdparse.Text:
		p.consumeText(tok.Text)
	case mdparse.CodeInline:
		p.appendWord(string(tok.Text))
	case mdparse.BoldStart:
		p.flushWord()
		p.inBold = true
	case mdparse.BoldEnd:
		p.flushWord()
		p.inBold = false
	case mdparse.ItalicStart:
		p.flushWord()
		p.inItalic = true
	case mdparse.ItalicEnd:
		p.flushWord()
		p.inItalic = false
	case mdparse.HeaderStart:
		p.flushBlock()
		p.headerLevel = tok.Data
	case mdparse.HeaderEnd:
		p.flushWord()
		p.flushBlock()
		p.headerLevel = 0
	case mdparse.ParagraphStart:
		p.flushBlock()
	case mdparse.ParagraphEnd, mdparse.BlockquoteEnd:
		p.flushWord()
		p.flushBlock()
		p.listPrefix = ""
	case mdparse.BlockquoteStart:
		p.flushBlock()
		p.listPrefix = "> "
	case mdparse.ListItemStart:
		p.flushWord()
		p.flushBlock()
		if tok.Data == 0 {
			p.listPrefix = "- "
		} else {
			p.listPrefix = fmt.Sprintf("%d. ", tok.Data)
		}
	case mdparse.ListItemEnd:
		p.flushWord()
		p.flushBlock()
		p.listPrefix = ""
	case mdparse.CodeBlockStart:
		p.flushWord()
		p.flushBlock()
		p.inCodeBlock = true
	case mdparse.CodeBlockEnd:
		// Placeholder italic line keeps layout simple, per spec.md §4.5.
		p.inCodeBlock = false
		if !p.pageBudgetSpent() {
			p.placeLineNow(textlayout.WrappedLine{Text: "[code block]", Style: domain.StyleItalic})
		}
	case mdparse.HR:
		p.flushWord()
		p.flushBlock()
		if !p.pageBudgetSpent() {
			if pg, done := p.pager.AddDivider(); done {
				p.deliver(pg)
			}
		}
	case mdparse.ImageURL:
		if p.cfg.ShowImages && !p.pageBudgetSpent() {
			if pg, done := p.pager.AddImage(string(tok.Text)); done {
				p.deliver(pg)
			}
		}
	case mdparse.Newline:
		p.flushWord()
	}
	p.wordsSeen++
	if p.shouldAbort != nil && p.wordsSeen%abortPollInterval == 0 && p.shouldAbort() {
		p.aborted = true
		return false
	}
	if p.pagesEmitted >= p.maxPages {
		p.hitMaxPages = true
		return false
	}
	return true
}

func (p *MarkdownParser) consumeText(text []byte) {
	if p.inCodeBlock {
		return
	}
	for _, b := range text {
		switch b {
		case ' ', '\t':
			p.flushWord()
		case '\n':
			p.flushWord()
		default:
			p.word.WriteByte(b)
		}
	}
}

func (p *MarkdownParser) appendWord(s string) {
	p.word.WriteString(s)
	p.flushWord()
}

func (p *MarkdownParser) currentStyle() domain.FontStyle {
	switch {
	case p.inBold && p.inItalic:
		return domain.StyleBoldItalic
	case p.inBold:
		return domain.StyleBold
	case p.inItalic:
		return domain.StyleItalic
	default:
		return domain.StyleRegular
	}
}

func (p *MarkdownParser) flushWord() {
	if p.word.Len() == 0 {
		return
	}
	w := p.word.String()
	p.word.Reset()
	style := p.currentStyle()
	if p.headerLevel > 0 {
		style = domain.StyleBold
	}
	if n := len(p.runs); n > 0 && p.runs[n-1].Style == style {
		p.runs[n-1].Text += " " + w
		return
	}
	p.runs = append(p.runs, textlayout.Run{Text: w, Style: style})
}

// flushBlock wraps the accumulated runs (a paragraph, header, list item, or
// blockquote line) and packs them onto the pager.
func (p *MarkdownParser) flushBlock() {
	if len(p.runs) == 0 {
		return
	}
	runs := p.runs
	p.runs = nil
	if p.listPrefix != "" && len(runs) > 0 {
		runs[0].Text = p.listPrefix + runs[0].Text
	}
	lines := textlayout.WordWrap(p.provider, runs, p.textWidth())
	for _, line := range lines {
		if p.pageBudgetSpent() {
			return
		}
		p.placeLineNow(line)
	}
	p.pager.AddParagraphSpacing()
}

func (p *MarkdownParser) placeLineNow(line textlayout.WrappedLine) {
	if pg, done := p.pager.AddLine(line); done {
		p.deliver(pg)
	}
}

func (p *MarkdownParser) deliver(pg domain.Page) {
	if p.aborted {
		return
	}
	if !p.emit(pg) {
		p.aborted = true
		return
	}
	p.pagesEmitted++
}

func (p *MarkdownParser) pageBudgetSpent() bool { return p.aborted || p.pagesEmitted >= p.maxPages }

// HasMoreContent reports unconsumed source bytes or pending layout state.
func (p *MarkdownParser) HasMoreContent() bool {
	if !p.eof {
		return true
	}
	return len(p.runs) > 0 || p.word.Len() > 0 || p.pager.HasPendingContent()
}

// CanResume is always true: the tokenizer and pager hold all state needed
// to continue a subsequent ParsePages call without reparsing.
func (p *MarkdownParser) CanResume() bool { return true }

// Reset restores a fresh parser state, preserving configuration.
func (p *MarkdownParser) Reset() {
	p.tok.Reset()
	p.runs = nil
	p.word.Reset()
	p.inBold, p.inItalic, p.inCodeBlock = false, false, false
	p.headerLevel = 0
	p.listPrefix = ""
	p.eof = false
	p.pagesEmitted = 0
	p.wordsSeen = 0
	p.pager = NewPager(p.cfg, p.provider)
}

// AnchorMap is empty: Markdown chapters carry no addressable anchors.
func (p *MarkdownParser) AnchorMap() []domain.AnchorRef { return nil }
