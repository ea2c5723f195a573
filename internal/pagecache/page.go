/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pagecache

import (
	"io"

	"papyrix/internal/binfmt"
	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
)

// maxElementsPerPage guards a corrupted elementCount prefix from driving an
// enormous allocation on read, mirroring binfmt's MaxStringLen defense.
const maxElementsPerPage = 8192

// writePage self-delimits a Page: an element count followed by each
// element's kind tag and the fields that tag implies. Grounded on
// Page::serialize's recursive-element-list layout (spec.md §3/§6.3).
func writePage(w io.Writer, p domain.Page) error {
	if err := binfmt.WriteU16(w, uint16(len(p.Elements))); err != nil {
		return err
	}
	for _, el := range p.Elements {
		if err := writeElement(w, el); err != nil {
			return err
		}
	}
	return nil
}

func writeElement(w io.Writer, el domain.PageElement) error {
	if err := binfmt.WriteU8(w, uint8(el.Kind)); err != nil {
		return err
	}
	switch el.Kind {
	case domain.ElementText:
		if err := binfmt.WriteString(w, el.Text); err != nil {
			return err
		}
		if err := binfmt.WriteU8(w, uint8(el.Style)); err != nil {
			return err
		}
		if err := binfmt.WriteU8(w, uint8(el.Alignment)); err != nil {
			return err
		}
		if err := binfmt.WriteI32(w, el.Baseline); err != nil {
			return err
		}
	case domain.ElementImage:
		if err := binfmt.WriteString(w, el.ImagePath); err != nil {
			return err
		}
	case domain.ElementDivider:
		// No variant-specific fields beyond the shared geometry below.
	default:
		return papyrixerr.New(papyrixerr.KindInvalidArg, "pagecache: unknown element kind %d", el.Kind)
	}
	if err := binfmt.WriteI32(w, el.X); err != nil {
		return err
	}
	if err := binfmt.WriteI32(w, el.Y); err != nil {
		return err
	}
	if err := binfmt.WriteI32(w, el.Width); err != nil {
		return err
	}
	return binfmt.WriteI32(w, el.Height)
}

// readPage is the exact inverse of writePage: parse(serialize(p)) == p for
// any constructable Page (spec.md §8 round-trip property).
func readPage(r io.Reader) (domain.Page, error) {
	var p domain.Page
	count, err := binfmt.ReadU16(r)
	if err != nil {
		return p, err
	}
	if count > maxElementsPerPage {
		return p, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: element count %d exceeds max %d", count, maxElementsPerPage)
	}
	p.Elements = make([]domain.PageElement, 0, count)
	for i := 0; i < int(count); i++ {
		el, err := readElement(r)
		if err != nil {
			return p, err
		}
		p.Elements = append(p.Elements, el)
	}
	return p, nil
}

func readElement(r io.Reader) (domain.PageElement, error) {
	var el domain.PageElement
	kind, err := binfmt.ReadU8(r)
	if err != nil {
		return el, err
	}
	el.Kind = domain.ElementKind(kind)
	switch el.Kind {
	case domain.ElementText:
		if el.Text, err = binfmt.ReadString(r); err != nil {
			return el, err
		}
		style, err := binfmt.ReadU8(r)
		if err != nil {
			return el, err
		}
		el.Style = domain.FontStyle(style)
		align, err := binfmt.ReadU8(r)
		if err != nil {
			return el, err
		}
		el.Alignment = domain.Alignment(align)
		if el.Baseline, err = binfmt.ReadI32(r); err != nil {
			return el, err
		}
	case domain.ElementImage:
		if el.ImagePath, err = binfmt.ReadString(r); err != nil {
			return el, err
		}
	case domain.ElementDivider:
		// No variant-specific fields.
	default:
		return el, papyrixerr.New(papyrixerr.KindInvalidFormat, "pagecache: unknown element kind %d", kind)
	}
	if el.X, err = binfmt.ReadI32(r); err != nil {
		return el, err
	}
	if el.Y, err = binfmt.ReadI32(r); err != nil {
		return el, err
	}
	if el.Width, err = binfmt.ReadI32(r); err != nil {
		return el, err
	}
	if el.Height, err = binfmt.ReadI32(r); err != nil {
		return el, err
	}
	return el, nil
}
