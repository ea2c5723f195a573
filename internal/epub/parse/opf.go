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
	"papyrix/internal/strutil"
)

const (
	maxTitleLen  = 256
	maxAuthorLen = 128
	mediaTypeNCX = "application/x-dtbncx+xml"
)

type opfState int

const (
	opfStart opfState = iota
	opfInPackage
	opfInMetadata
	opfInTitle
	opfInAuthor
	opfInLanguage
	opfInManifest
	opfInSpine
	opfInGuide
)

// OpfResult collects everything a content.opf pass discovers beyond the
// spine entries it streams directly into the cache writer.
type OpfResult struct {
	Metadata          cacheMetadata
	TocNcxPath        string
	TocNavPath        string
	CSSFiles          []string
	TextReferenceHref string
}

type cacheMetadata struct {
	Title, Author, Language, CoverItemHref string
}

// ContentOpf streams content.opf, resolving <spine><itemref idref="..."/>
// against the manifest and calling w.CreateSpineEntry for each in document
// order. baseContentPath is the directory content.opf lives in (OPF hrefs
// are relative to it); it is joined onto every manifest href so later
// lookups against the ZIP archive use archive-root-relative paths.
func ContentOpf(r io.Reader, baseContentPath string, w *cache.Writer) (OpfResult, error) {
	var res OpfResult
	manifestIndex := make(map[string]string)
	var coverItemID string

	state := opfStart
	var titleBuf, authorBuf, langBuf strings.Builder

	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "epub/parse: content.opf")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := localName(t.Name.Local)
			switch {
			case state == opfStart && name == "package":
				state = opfInPackage
			case state == opfInPackage && name == "metadata":
				state = opfInMetadata
			case state == opfInMetadata && name == "title":
				state = opfInTitle
			case state == opfInMetadata && name == "creator":
				if authorBuf.Len() > 0 {
					authorBuf.WriteString(", ")
				}
				state = opfInAuthor
			case state == opfInMetadata && name == "language":
				state = opfInLanguage
			case state == opfInMetadata && name == "meta":
				isCover := false
				content := ""
				for _, a := range t.Attr {
					if a.Name.Local == "name" && a.Value == "cover" {
						isCover = true
					} else if a.Name.Local == "content" {
						content = a.Value
					}
				}
				if isCover {
					coverItemID = content
				}
			case state == opfInPackage && name == "manifest":
				state = opfInManifest
			case state == opfInManifest && name == "item":
				var itemID, href, mediaType, properties string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "id":
						itemID = a.Value
					case "href":
						href = pathkit.Normalize(path.Join(baseContentPath, a.Value))
					case "media-type":
						mediaType = a.Value
					case "properties":
						properties = a.Value
					}
				}
				manifestIndex[itemID] = href
				if itemID == coverItemID {
					res.Metadata.CoverItemHref = href
				}
				if mediaType == mediaTypeNCX && res.TocNcxPath == "" {
					res.TocNcxPath = href
				}
				if res.TocNavPath == "" && hasNavProperty(properties) {
					res.TocNavPath = href
				}
				if strings.Contains(mediaType, "css") {
					res.CSSFiles = append(res.CSSFiles, href)
				}
			case state == opfInPackage && name == "spine":
				state = opfInSpine
			case state == opfInSpine && name == "itemref":
				for _, a := range t.Attr {
					if a.Name.Local == "idref" {
						if href, ok := manifestIndex[a.Value]; ok {
							if err := w.CreateSpineEntry(href); err != nil {
								return res, err
							}
						}
					}
				}
			case state == opfInPackage && name == "guide":
				state = opfInGuide
			case state == opfInGuide && name == "reference":
				var refType, href string
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "type":
						refType = a.Value
					case "href":
						href = pathkit.Normalize(path.Join(baseContentPath, a.Value))
					}
				}
				if (refType == "text" || (refType == "start" && res.TextReferenceHref == "")) && href != "" {
					res.TextReferenceHref = href
				}
			}
		case xml.CharData:
			switch state {
			case opfInTitle:
				appendTruncated(&titleBuf, string(t), maxTitleLen)
			case opfInAuthor:
				appendTruncated(&authorBuf, string(t), maxAuthorLen)
			case opfInLanguage:
				langBuf.Write(t)
			}
		case xml.EndElement:
			name := localName(t.Name.Local)
			switch {
			case state == opfInTitle && name == "title":
				state = opfInMetadata
			case state == opfInAuthor && name == "creator":
				state = opfInMetadata
			case state == opfInLanguage && name == "language":
				state = opfInMetadata
			case state == opfInSpine && name == "spine":
				state = opfInPackage
			case state == opfInGuide && name == "guide":
				state = opfInPackage
			case state == opfInManifest && name == "manifest":
				state = opfInPackage
			case state == opfInMetadata && name == "metadata":
				state = opfInPackage
			case state == opfInPackage && name == "package":
				state = opfStart
			}
		}
	}

	res.Metadata.Title = strutil.NormalizeAndTruncate(titleBuf.String(), maxTitleLen)
	res.Metadata.Author = strutil.NormalizeAndTruncate(authorBuf.String(), maxAuthorLen)
	res.Metadata.Language = strings.TrimSpace(langBuf.String())
	return res, nil
}

// hasNavProperty reports whether a manifest item's space-separated
// "properties" attribute contains the "nav" token, marking it as the EPUB 3
// navigation document.
func hasNavProperty(properties string) bool {
	for _, p := range strings.Fields(properties) {
		if p == "nav" {
			return true
		}
	}
	return false
}

// appendTruncated appends s to buf, stopping at maxLen on a UTF-8 boundary —
// the streaming equivalent of the source's per-chunk findUtf8Boundary
// truncation (title/author text may arrive in several CharData callbacks).
func appendTruncated(buf *strings.Builder, s string, maxLen int) {
	remaining := maxLen - buf.Len()
	if remaining <= 0 {
		return
	}
	if len(s) <= remaining {
		buf.WriteString(s)
		return
	}
	buf.WriteString(strutil.TruncateUTF8(s, remaining))
}
