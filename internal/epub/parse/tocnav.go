/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package parse

import (
	"encoding/xml"
	"io"
	"path"
	"strings"

	"papyrix/internal/epub/cache"
	"papyrix/internal/pathkit"
	"papyrix/internal/papyrixerr"
)

const maxNavLabelLen = 512

type navState int

const (
	navStart navState = iota
	navInNavToc
	navInAnchor
)

// TocNav streams an EPUB 3 nav.xhtml navigation document, preferred over
// toc.ncx when a manifest item advertises properties="nav". It walks the
// <nav epub:type="toc"><ol><li><a href="...">label</a><ol>...</ol></li></ol>
// structure, using <ol> nesting depth as TocEntry.Level — nested TOC
// sub-lists are the HTML5 nav document's only nesting signal, there being
// no explicit "level" attribute the way toc.ncx has none either.
func TocNav(r io.Reader, baseContentPath string, w *cache.Writer) error {
	state := navStart
	olDepth := 0
	var label strings.Builder
	var href string

	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epub/parse: nav.xhtml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := localName(t.Name.Local)
			switch {
			case state == navStart && name == "nav" && isTocNav(t.Attr):
				state = navInNavToc
			case state == navInNavToc && name == "ol":
				olDepth++
			case state == navInNavToc && name == "a":
				state = navInAnchor
				label.Reset()
				href = ""
				for _, a := range t.Attr {
					if a.Name.Local == "href" {
						href = a.Value
					}
				}
			}
		case xml.CharData:
			if state == navInAnchor {
				appendTruncated(&label, string(t), maxNavLabelLen)
			}
		case xml.EndElement:
			name := localName(t.Name.Local)
			switch {
			case state == navInAnchor && name == "a":
				state = navInNavToc
				if label.Len() > 0 && href != "" {
					resolved, anchor := splitAnchor(pathkit.Normalize(path.Join(baseContentPath, href)))
					level := uint8(0)
					if olDepth > 1 {
						level = uint8(olDepth - 1)
					}
					if err := w.CreateTocEntry(label.String(), resolved, anchor, level); err != nil {
						return err
					}
				}
			case state == navInNavToc && name == "ol":
				olDepth--
				if olDepth <= 0 {
					olDepth = 0
				}
			case state == navInNavToc && name == "nav":
				state = navStart
			}
		}
	}
	return nil
}

// isTocNav reports whether a <nav> element's epub:type attribute contains
// the "toc" token (space-separated, per the EPUB 3 nav document spec).
func isTocNav(attrs []xml.Attr) bool {
	for _, a := range attrs {
		if localName(a.Name.Local) != "type" {
			continue
		}
		for _, tok := range strings.Fields(a.Value) {
			if tok == "toc" {
				return true
			}
		}
	}
	return false
}
