/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the plain-data shapes shared across the content
// pipeline: spine/TOC/metadata records from EPUB ingestion, the serialised
// Page model content parsers emit, and the render configuration PageCache
// validates itself against. Kept dependency-free so every other package can
// import it without cycles.
package domain

// SpineEntry is one item in an EPUB's reading order.
type SpineEntry struct {
	Href          string // path relative to the EPUB root, <= 256 bytes
	TocIndex      int16  // -1 if no TOC entry resolves to this spine item
	CumulativeSize uint32 // running total of inflated byte size up to and including this entry
}

// TocEntry is one table-of-contents node.
type TocEntry struct {
	Title      string // <= 512 bytes, UTF-8 NFC-normalised
	Href       string
	Anchor     string // fragment after '#', may be empty
	Level      uint8  // 0..100
	SpineIndex int16  // -1 if unresolved
}

// BookMetadata is the small set of EPUB-level descriptive fields cached
// alongside the spine/TOC.
type BookMetadata struct {
	Title            string // <= 256 bytes
	Author           string // <= 128 bytes
	Language         string // <= 32 bytes
	CoverItemHref    string
	TextReferenceHref string
}

// Alignment mirrors the small enum of paragraph alignments a Page text run
// can carry.
type Alignment uint8

const (
	AlignLeft Alignment = iota
	AlignCenter
	AlignRight
	AlignJustify
)

// FontStyle selects one of the four glyph variants a streaming font resolves.
type FontStyle uint8

const (
	StyleRegular FontStyle = iota
	StyleBold
	StyleItalic
	StyleBoldItalic
)

// ElementKind tags which variant of PageElement is populated.
type ElementKind uint8

const (
	ElementText ElementKind = iota
	ElementImage
	ElementDivider
)

// PageElement is one drawable item within a Page. Exactly the fields implied
// by Kind are meaningful; this is the Go stand-in for the source's tagged
// union of drawable primitives.
type PageElement struct {
	Kind ElementKind

	// ElementText fields.
	Text      string
	Style     FontStyle
	Alignment Alignment
	Baseline  int32
	X         int32
	Y         int32

	// ElementImage fields.
	ImagePath string

	// Shared.
	Width  int32
	Height int32
}

// Page is a recursive list of drawable elements in the renderer's logical
// screen space, serialised to and from a PageCache file.
type Page struct {
	Elements []PageElement
}

// RenderConfig is the full set of fields a PageCache file's header is
// validated against on load; any mismatch invalidates the cache.
type RenderConfig struct {
	FontID             uint32
	LineCompression    float32
	IndentLevel        uint8
	SpacingLevel       uint8
	ParagraphAlignment Alignment
	Hyphenation        bool
	ShowImages         bool
	ViewportWidth      uint16
	ViewportHeight     uint16
}

// Equal reports whether two RenderConfig values are identical in every field
// PageCache persists — the exact comparison PageCache.Load performs to decide
// invalidation.
func (c RenderConfig) Equal(o RenderConfig) bool {
	return c.FontID == o.FontID &&
		c.LineCompression == o.LineCompression &&
		c.IndentLevel == o.IndentLevel &&
		c.SpacingLevel == o.SpacingLevel &&
		c.ParagraphAlignment == o.ParagraphAlignment &&
		c.Hyphenation == o.Hyphenation &&
		c.ShowImages == o.ShowImages &&
		c.ViewportWidth == o.ViewportWidth &&
		c.ViewportHeight == o.ViewportHeight
}

// AnchorRef maps an EPUB anchor id to the page index it resolves to, the
// shape ContentParser.AnchorMap returns (meaningful only for EPUB content).
type AnchorRef struct {
	ID        string
	PageIndex int
}
