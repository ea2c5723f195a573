/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package mdparse is a memory-efficient, single-pass streaming Markdown
// tokenizer: no AST, a callback receives tokens as they're recognised.
// Ported from the firmware's md_parser.c state machine (byte-oriented,
// feature-gated by a bitmask) into an idiomatic Go callback API; the state
// machine, token set, and feature flags are unchanged in meaning.
package mdparse

// TokenType identifies the kind of markdown token emitted.
type TokenType uint8

const (
	Text TokenType = iota
	HeaderStart // Data holds the header level (1..6)
	HeaderEnd
	BoldStart
	BoldEnd
	ItalicStart
	ItalicEnd
	StrikeStart
	StrikeEnd
	CodeInline
	CodeBlockStart // Text holds the language hint, if any
	CodeBlockEnd
	LinkTextStart
	LinkTextEnd
	LinkURL
	ImageAltStart
	ImageAltEnd
	ImageURL
	ListItemStart // Data holds the ordered number, or 0 for unordered
	ListItemEnd
	BlockquoteStart
	BlockquoteEnd
	HR
	Newline
	ParagraphStart
	ParagraphEnd
)

var tokenNames = [...]string{
	"TEXT", "HEADER_START", "HEADER_END", "BOLD_START", "BOLD_END",
	"ITALIC_START", "ITALIC_END", "STRIKE_START", "STRIKE_END", "CODE_INLINE",
	"CODE_BLOCK_START", "CODE_BLOCK_END", "LINK_TEXT_START", "LINK_TEXT_END",
	"LINK_URL", "IMAGE_ALT_START", "IMAGE_ALT_END", "IMAGE_URL",
	"LIST_ITEM_START", "LIST_ITEM_END", "BLOCKQUOTE_START", "BLOCKQUOTE_END",
	"HR", "NEWLINE", "PARAGRAPH_START", "PARAGRAPH_END",
}

// String returns the token type's name, for diagnostics and tests.
func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// Token is passed to the Callback. Text aliases into the input chunk the
// parser was fed (not copied) for TEXT tokens and the text-bearing
// code/link/image tokens; callbacks that need to retain it past the
// callback's return must copy it.
type Token struct {
	Type TokenType
	Text []byte
	Data uint8
}

// Feature flags select which constructs the parser recognises; disabling
// unused features lets a resource-constrained caller skip their checks.
const (
	FeatHeaders uint16 = 1 << iota
	FeatBold
	FeatItalic
	FeatStrike
	FeatCodeInline
	FeatCodeBlock
	FeatLinks
	FeatImages
	FeatLists
	FeatBlockquote
	FeatHR

	FeatAll   uint16 = 0xFFFF
	FeatBasic        = FeatHeaders | FeatBold | FeatItalic | FeatCodeInline
)

// Callback receives one token at a time; returning false stops the parse.
type Callback func(tok Token) bool

// Config configures a Parser.
type Config struct {
	Callback Callback
	Features uint16
}

func (c *Config) hasFeat(feat uint16) bool { return c.Features&feat != 0 }

// Parser is a resumable streaming tokenizer; ParseChunk may be called
// repeatedly with successive slices of the same logical document, and
// Reset reuses it for a new one without reallocating.
type Parser struct {
	cfg Config

	lineStart bool

	headerLevel uint8

	inBold       bool
	inItalic     bool
	inStrike     bool
	inCodeBlock  bool
	inBlockquote bool

	spanStart []byte // aliases into the chunk currently being parsed
	spanLen   int
}

// New constructs a Parser with all features enabled.
func New(cb Callback) *Parser { return NewWithConfig(Config{Callback: cb, Features: FeatAll}) }

// NewWithConfig constructs a Parser with an explicit feature set.
func NewWithConfig(cfg Config) *Parser {
	p := &Parser{cfg: cfg}
	p.lineStart = true
	return p
}

// Reset clears parser state for a new document, preserving configuration.
func (p *Parser) Reset() {
	cfg := p.cfg
	*p = Parser{cfg: cfg}
	p.lineStart = true
}

// Parse tokenizes a complete markdown document.
func (p *Parser) Parse(input []byte) int {
	n := p.ParseChunk(input)
	p.ParseEnd()
	return n
}

// ParseChunk tokenizes one chunk of a (possibly multi-chunk) document,
// returning the number of bytes consumed (always len(chunk) barring a
// callback-requested stop). Call ParseEnd after the final chunk.
//
// A text span left open at the end of the previous ParseChunk call is not
// contiguous with this chunk's backing array, so it is flushed up front
// rather than risk gluing unrelated bytes together.
func (p *Parser) ParseChunk(chunk []byte) int {
	p.flushSpan()
	pos := 0
	for pos < len(chunk) {
		var consumed int
		if p.lineStart {
			consumed = p.processLineStart(chunk[pos:])
			if consumed > 0 {
				pos += consumed
				p.lineStart = false
				continue
			}
			p.lineStart = false
		}
		consumed = p.processInline(chunk[pos:])
		if consumed == 0 {
			pos++
		} else {
			pos += consumed
		}
	}
	return pos
}

// ParseEnd flushes any pending text span and force-closes open elements;
// call once after the last ParseChunk of a document.
func (p *Parser) ParseEnd() {
	p.flushSpan()
	if p.headerLevel > 0 {
		p.emit(HeaderEnd, nil, p.headerLevel)
		p.headerLevel = 0
	}
	if p.inBold {
		p.emit(BoldEnd, nil, 0)
		p.inBold = false
	}
	if p.inItalic {
		p.emit(ItalicEnd, nil, 0)
		p.inItalic = false
	}
	if p.inStrike {
		p.emit(StrikeEnd, nil, 0)
		p.inStrike = false
	}
	if p.inCodeBlock {
		p.emit(CodeBlockEnd, nil, 0)
		p.inCodeBlock = false
	}
	if p.inBlockquote {
		p.emit(BlockquoteEnd, nil, 0)
		p.inBlockquote = false
	}
}

func (p *Parser) emit(t TokenType, text []byte, data uint8) bool {
	if p.cfg.Callback == nil {
		return true
	}
	return p.cfg.Callback(Token{Type: t, Text: text, Data: data})
}

func (p *Parser) flushSpan() bool {
	if p.spanLen > 0 {
		ok := p.emit(Text, p.spanStart[:p.spanLen], 0)
		p.spanLen = 0
		p.spanStart = nil
		return ok
	}
	return true
}

func countChar(s []byte, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

func skipSpace(s []byte) int {
	n := 0
	for n < len(s) && (s[n] == ' ' || s[n] == '\t') {
		n++
	}
	return n
}

func isBlankLine(s []byte) bool {
	for _, c := range s {
		if c == '\n' {
			return true
		}
		if c != ' ' && c != '\t' && c != '\r' {
			return false
		}
	}
	return true
}

func findChar(s []byte, c byte) int {
	for i, b := range s {
		if b == c {
			return i
		}
		if b == '\n' {
			return -1
		}
	}
	return -1
}

// processLineStart recognises block-level constructs (headers, HR,
// blockquote, lists, code fences) at the start of a line.
func (p *Parser) processLineStart(input []byte) int {
	spaces := skipSpace(input)
	if spaces >= len(input) {
		return spaces
	}
	s := input[spaces:]

	if p.cfg.hasFeat(FeatCodeBlock) && len(s) >= 3 && s[0] == '`' && s[1] == '`' && s[2] == '`' {
		p.flushSpan()
		if p.inCodeBlock {
			p.emit(CodeBlockEnd, nil, 0)
			p.inCodeBlock = false
			nl := findChar(s, '\n')
			if nl >= 0 {
				return spaces + nl + 1
			}
			return spaces + len(s)
		}
		langStart := 3
		langEnd := findChar(s[3:], '\n')
		if langEnd < 0 {
			langEnd = len(s) - 3
		}
		for langStart < 3+langEnd && s[langStart] == ' ' {
			langStart++
		}
		langLen := langEnd - (langStart - 3)
		for langLen > 0 && s[langStart+langLen-1] == ' ' {
			langLen--
		}
		p.emit(CodeBlockStart, s[langStart:langStart+langLen], 0)
		p.inCodeBlock = true
		nl := findChar(s, '\n')
		if nl >= 0 {
			return spaces + nl + 1
		}
		return spaces + len(s)
	}

	if p.inCodeBlock {
		nl := findChar(input, '\n')
		if nl >= 0 {
			p.emit(Text, input[:nl], 0)
			p.emit(Newline, nil, 0)
			return nl + 1
		}
		p.emit(Text, input, 0)
		return len(input)
	}

	if p.cfg.hasFeat(FeatHeaders) && s[0] == '#' {
		level := countChar(s, '#')
		if level <= 6 && level < len(s) && (s[level] == ' ' || s[level] == '\t') {
			p.flushSpan()
			p.headerLevel = uint8(level)
			p.emit(HeaderStart, nil, uint8(level))
			return spaces + level + 1
		}
	}

	if p.cfg.hasFeat(FeatHR) && len(s) >= 3 {
		c := s[0]
		if c == '-' || c == '*' || c == '_' {
			cnt := 0
			valid := true
			for i := 0; i < len(s) && s[i] != '\n'; i++ {
				switch {
				case s[i] == c:
					cnt++
				case s[i] != ' ' && s[i] != '\t':
					valid = false
				}
				if !valid {
					break
				}
			}
			if valid && cnt >= 3 {
				p.flushSpan()
				p.emit(HR, nil, 0)
				nl := findChar(s, '\n')
				if nl >= 0 {
					return spaces + nl + 1
				}
				return spaces + len(s)
			}
		}
	}

	if p.cfg.hasFeat(FeatBlockquote) && s[0] == '>' {
		p.flushSpan()
		if !p.inBlockquote {
			p.emit(BlockquoteStart, nil, 0)
			p.inBlockquote = true
		}
		consumed := spaces + 1
		if consumed < len(input) && input[consumed] == ' ' {
			consumed++
		}
		return consumed
	} else if p.inBlockquote && !isBlankLine(s) {
		// continue blockquote across non-blank lines
	} else if p.inBlockquote {
		p.emit(BlockquoteEnd, nil, 0)
		p.inBlockquote = false
	}

	if p.cfg.hasFeat(FeatLists) && len(s) >= 2 && (s[0] == '-' || s[0] == '*' || s[0] == '+') && s[1] == ' ' {
		p.flushSpan()
		p.emit(ListItemStart, nil, 0)
		return spaces + 2
	}

	if p.cfg.hasFeat(FeatLists) && s[0] >= '0' && s[0] <= '9' {
		numLen := 0
		num := 0
		for numLen < len(s) && s[numLen] >= '0' && s[numLen] <= '9' {
			// Mirrors the firmware's quirk: once the accumulator exceeds 25
			// it stops updating, so very long digit runs freeze num at the
			// first value above 25 (at most 259, clamped to 255 below)
			// instead of overflowing or saturating per digit. numLen (and so the bytes consumed) still counts every
			// digit, so the list marker is still consumed correctly; only
			// the reported ordinal is affected, by design left unchanged.
			if num <= 25 {
				num = num*10 + int(s[numLen]-'0')
			}
			numLen++
		}
		if num > 255 {
			num = 255
		}
		if numLen > 0 && numLen+1 < len(s) && s[numLen] == '.' && s[numLen+1] == ' ' {
			p.flushSpan()
			p.emit(ListItemStart, nil, uint8(num))
			return spaces + numLen + 2
		}
	}

	return spaces
}

var escapable = [256]bool{
	'*': true, '_': true, '`': true, '[': true, ']': true, '(': true, ')': true,
	'#': true, '~': true, '!': true, '\\': true,
}

// processInline recognises inline spans and the newline that ends a line.
func (p *Parser) processInline(input []byte) int {
	if len(input) == 0 {
		return 0
	}
	c := input[0]

	if c == '\\' && len(input) > 1 && escapable[input[1]] {
		p.flushSpan()
		p.emit(Text, input[1:2], 0)
		return 2
	}

	if p.cfg.hasFeat(FeatCodeInline) && c == '`' {
		if end := findChar(input[1:], '`'); end >= 0 {
			p.flushSpan()
			p.emit(CodeInline, input[1:1+end], 0)
			return end + 2
		}
	}

	if p.cfg.hasFeat(FeatBold) && len(input) >= 2 && ((c == '*' && input[1] == '*') || (c == '_' && input[1] == '_')) {
		p.flushSpan()
		if p.inBold {
			p.emit(BoldEnd, nil, 0)
			p.inBold = false
		} else {
			p.emit(BoldStart, nil, 0)
			p.inBold = true
		}
		return 2
	}

	if p.cfg.hasFeat(FeatStrike) && len(input) >= 2 && c == '~' && input[1] == '~' {
		p.flushSpan()
		if p.inStrike {
			p.emit(StrikeEnd, nil, 0)
			p.inStrike = false
		} else {
			p.emit(StrikeStart, nil, 0)
			p.inStrike = true
		}
		return 2
	}

	if p.cfg.hasFeat(FeatItalic) && (c == '*' || c == '_') {
		if len(input) < 2 || input[1] != c {
			p.flushSpan()
			if p.inItalic {
				p.emit(ItalicEnd, nil, 0)
				p.inItalic = false
			} else {
				p.emit(ItalicStart, nil, 0)
				p.inItalic = true
			}
			return 1
		}
	}

	if p.cfg.hasFeat(FeatImages) && c == '!' && len(input) >= 2 && input[1] == '[' {
		if altEnd := findChar(input[2:], ']'); altEnd >= 0 && altEnd+3 < len(input) && input[altEnd+3] == '(' {
			if urlEnd := findChar(input[altEnd+4:], ')'); urlEnd >= 0 {
				p.flushSpan()
				p.emit(ImageAltStart, nil, 0)
				p.emit(Text, input[2:2+altEnd], 0)
				p.emit(ImageAltEnd, nil, 0)
				p.emit(ImageURL, input[altEnd+4:altEnd+4+urlEnd], 0)
				return altEnd + urlEnd + 5
			}
		}
	}

	if p.cfg.hasFeat(FeatLinks) && c == '[' {
		if textEnd := findChar(input[1:], ']'); textEnd >= 0 && textEnd+2 < len(input) && input[textEnd+2] == '(' {
			if urlEnd := findChar(input[textEnd+3:], ')'); urlEnd >= 0 {
				p.flushSpan()
				p.emit(LinkTextStart, nil, 0)
				p.emit(Text, input[1:1+textEnd], 0)
				p.emit(LinkTextEnd, nil, 0)
				p.emit(LinkURL, input[textEnd+3:textEnd+3+urlEnd], 0)
				return textEnd + urlEnd + 4
			}
		}
	}

	if c == '\n' {
		p.flushSpan()
		if p.headerLevel > 0 {
			p.emit(HeaderEnd, nil, p.headerLevel)
			p.headerLevel = 0
		}
		p.emit(Newline, nil, 0)
		p.lineStart = true
		return 1
	}

	if p.spanStart == nil {
		p.spanStart = input
		p.spanLen = 1
	} else {
		// Every other branch above calls flushSpan before consuming bytes,
		// and this branch only ever advances one byte at a time, so a
		// still-open span is always contiguous with input within one
		// ParseChunk call.
		p.spanLen++
	}
	return 1
}
