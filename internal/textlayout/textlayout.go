/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package textlayout turns runs of styled text into positioned lines of
// domain.PageElement, measuring glyph advances against a streaming
// .epdfont. Adapted from the teacher's internal/textlayout (FontSpec,
// Metrics, Span/Line/TextBox, Provider/Layouter shapes) but re-pointed at a
// single on-device bitmap font instead of a multi-family OpenType library —
// the device has exactly one loaded font, so FontSpec collapses to just a
// FontStyle, and Provider resolves advances from *epdfont.Font rather than
// golang.org/x/image/font.Face.
package textlayout

import (
	"unicode/utf8"

	"papyrix/internal/domain"
	"papyrix/internal/epdfont"
)

// Provider resolves glyph advances and vertical metrics for layout. The
// production implementation is StreamingFontProvider; tests use
// FixedWidthProvider for deterministic, font-file-free measurement.
type Provider interface {
	Advance(r rune) int
	Ascender() int
	Descender() int
	AdvanceY() int
}

// StreamingFontProvider measures against a loaded .epdfont. Bold/italic
// styling affects only how the renderer draws a line (synthetic emboldening
// or slant), not glyph advances, since the format carries a single glyph set.
type StreamingFontProvider struct{ Font *epdfont.Font }

func (p StreamingFontProvider) Advance(r rune) int {
	idx, ok := p.Font.GetGlyph(r)
	if !ok {
		return 0
	}
	g, ok := p.Font.GlyphAt(idx)
	if !ok {
		return 0
	}
	return int(g.AdvanceX)
}

func (p StreamingFontProvider) Ascender() int  { return int(p.Font.Metrics.Ascender) }
func (p StreamingFontProvider) Descender() int { return int(p.Font.Metrics.Descender) }
func (p StreamingFontProvider) AdvanceY() int  { return int(p.Font.Metrics.AdvanceY) }

// FixedWidthProvider is a deterministic stand-in for tests that don't want
// to bake a real .epdfont fixture, mirroring the teacher's BasicProvider
// role for textlayout tests.
type FixedWidthProvider struct {
	GlyphWidth             int
	AscenderV, DescenderV  int
	AdvanceYV              int
}

func (p FixedWidthProvider) Advance(r rune) int {
	if r == ' ' {
		return p.GlyphWidth
	}
	return p.GlyphWidth
}
func (p FixedWidthProvider) Ascender() int  { return p.AscenderV }
func (p FixedWidthProvider) Descender() int { return p.DescenderV }
func (p FixedWidthProvider) AdvanceY() int  { return p.AdvanceYV }

// Run is a span of text carrying one style, the layout input unit —
// analogous to the teacher's Span but tagged with domain.FontStyle instead
// of a FontSpec.
type Run struct {
	Text  string
	Style domain.FontStyle
}

// LineHeight computes the pixel line height for a font's native AdvanceY
// compressed by the configured lineCompression, rounding to nearest — the
// same rounding rule PageCache's layout pass applies.
func LineHeight(p Provider, lineCompression float32) int {
	if lineCompression <= 0 {
		lineCompression = 1
	}
	h := float32(p.AdvanceY()) * lineCompression
	return int(h + 0.5)
}

// WordWrap breaks runs into lines that fit maxWidth, returning each line's
// plain text, its rendering style (the first run's style touching the
// line — runs are not intermixed within a single paragraph call, matching
// PlainTextParser/MarkdownParser's one-style-per-block model), and its
// measured pixel width. A single word wider than maxWidth is placed alone
// on its own line rather than split mid-word.
func WordWrap(p Provider, runs []Run, maxWidth int) []WrappedLine {
	var lines []WrappedLine
	var cur WrappedLine
	cur.Style = styleOf(runs)

	flush := func() {
		if cur.Text != "" {
			lines = append(lines, cur)
		}
		cur = WrappedLine{Style: cur.Style}
	}

	for _, run := range runs {
		words, seps := splitWords(run.Text)
		for i, word := range words {
			w := measure(p, word)
			if cur.Text != "" && cur.Width+spaceWidth(p)+w > maxWidth && maxWidth > 0 {
				flush()
			}
			if cur.Text != "" {
				cur.Text += " "
				cur.Width += spaceWidth(p)
			}
			cur.Text += word
			cur.Width += w
			if i < len(seps) && seps[i] == '\n' {
				flush()
			}
		}
	}
	flush()
	return lines
}

// WrappedLine is one line of wrapped text ready to be positioned onto a
// Page as a domain.PageElement.
type WrappedLine struct {
	Text  string
	Style domain.FontStyle
	Width int
}

func styleOf(runs []Run) domain.FontStyle {
	if len(runs) == 0 {
		return domain.StyleRegular
	}
	return runs[0].Style
}

func spaceWidth(p Provider) int { return p.Advance(' ') }

func measure(p Provider, word string) int {
	w := 0
	for _, r := range word {
		w += p.Advance(r)
	}
	return w
}

// splitWords splits on whitespace, returning the words and, for every word
// but the last, the separator rune that followed it (so callers can detect
// an explicit newline versus an ordinary space).
func splitWords(s string) (words []string, seps []rune) {
	start := -1
	for i, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			if start >= 0 {
				words = append(words, s[start:i])
				seps = append(seps, r)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words, seps
}

// RuneLen is a small helper content parsers use when trimming to a byte
// budget without splitting a multi-byte rune.
func RuneLen(s string, maxBytes int) int {
	if len(s) <= maxBytes {
		return len(s)
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}
