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

const (
	maxNcxLabelLen = 512
	maxNcxDepth    = 64 // defends against a pathological/corrupt NCX recursing unboundedly
)

type ncxState int

const (
	ncxStart ncxState = iota
	ncxInNcx
	ncxInNavMap
	ncxInNavPoint
	ncxInNavLabel
	ncxInNavLabelText
)

// TocNcx streams an EPUB 2 toc.ncx navMap, calling w.CreateTocEntry for
// each navPoint in document order (pre-order, matching nesting depth to
// TocEntry.Level). Grounded on TocNcxParser.cpp: relies on <navLabel> and
// <content> appearing before any nested <navPoint>, per the NCX spec.
func TocNcx(r io.Reader, baseContentPath string, w *cache.Writer) error {
	state := ncxStart
	depth := uint8(0)
	var label strings.Builder
	var src string

	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epub/parse: toc.ncx")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := localName(t.Name.Local)
			switch {
			case state == ncxStart && name == "ncx":
				state = ncxInNcx
			case state == ncxInNcx && name == "navMap":
				state = ncxInNavMap
			case (state == ncxInNavMap || state == ncxInNavPoint) && name == "navPoint":
				if depth >= maxNcxDepth {
					return papyrixerr.New(papyrixerr.KindInvalidFormat, "epub/parse: toc.ncx nesting exceeds %d", maxNcxDepth)
				}
				state = ncxInNavPoint
				depth++
				label.Reset()
				src = ""
			case state == ncxInNavPoint && name == "navLabel":
				state = ncxInNavLabel
			case state == ncxInNavLabel && name == "text":
				state = ncxInNavLabelText
			case state == ncxInNavPoint && name == "content":
				for _, a := range t.Attr {
					if a.Name.Local == "src" {
						src = a.Value
						break
					}
				}
			}
		case xml.CharData:
			if state == ncxInNavLabelText {
				appendTruncated(&label, string(t), maxNcxLabelLen)
			}
		case xml.EndElement:
			name := localName(t.Name.Local)
			switch {
			case state == ncxInNavLabelText && name == "text":
				state = ncxInNavLabel
			case state == ncxInNavLabel && name == "navLabel":
				state = ncxInNavPoint
			case state == ncxInNavPoint && name == "content":
				if label.Len() > 0 && src != "" {
					href, anchor := splitAnchor(pathkit.Normalize(path.Join(baseContentPath, src)))
					if err := w.CreateTocEntry(label.String(), href, anchor, depth-1); err != nil {
						return err
					}
					label.Reset()
					src = ""
				}
			case state == ncxInNavPoint && name == "navPoint":
				depth--
				if depth == 0 {
					state = ncxInNavMap
				}
			}
		}
	}
	return nil
}

// splitAnchor splits href on its first '#', returning the path and fragment
// separately (TocEntry stores them apart).
func splitAnchor(href string) (path, anchor string) {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		return href[:i], href[i+1:]
	}
	return href, ""
}
