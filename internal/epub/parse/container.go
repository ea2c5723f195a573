/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package parse implements the family of streaming XML/HTML parsers an EPUB
// build drives: container.xml (locate the OPF rootfile), content.opf
// (spine/manifest/metadata), toc.ncx (EPUB 2), and nav.xhtml (EPUB 3 TOC).
// Each is a thin state machine over encoding/xml's streaming Decoder —
// the Go-idiomatic replacement for the source's expat SAX callbacks
// (ContainerParser/ContentOpfParser/TocNcxParser/TocNavParser), same
// per-element state-machine shape, same truncation/normalisation rules.
package parse

import (
	"encoding/xml"
	"io"
	"strings"

	"papyrix/internal/papyrixerr"
)

// Container parses META-INF/container.xml and returns the path of the OPF
// rootfile (relative to the archive root).
func Container(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	inContainer := false
	inRootfiles := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epub/parse: container.xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := localName(t.Name.Local)
			switch {
			case name == "container":
				inContainer = true
			case inContainer && name == "rootfiles":
				inRootfiles = true
			case inContainer && inRootfiles && name == "rootfile":
				for _, a := range t.Attr {
					if a.Name.Local == "full-path" {
						return a.Value, nil
					}
				}
			}
		case xml.EndElement:
			name := localName(t.Name.Local)
			if name == "rootfiles" {
				inRootfiles = false
			}
		}
	}
	return "", papyrixerr.New(papyrixerr.KindInvalidFormat, "epub/parse: container.xml has no rootfile")
}

// localName strips a namespace prefix ("opf:package" -> "package"), matching
// the source's "strcmp(name, ...) || strcmp(name, \"opf:...\") == 0"
// two-way element name checks in one place.
func localName(n string) string {
	if i := strings.IndexByte(n, ':'); i >= 0 {
		return n[i+1:]
	}
	return n
}
