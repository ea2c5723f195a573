/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cache

import (
	"io"

	"papyrix/internal/binfmt"
	"papyrix/internal/domain"
)

func writeU32(w io.Writer, v uint32) error { return binfmt.WriteU32(w, v) }

func writeHeaderA(w io.Writer, version uint8, lutOffset uint32, spineCount, tocCount uint16) error {
	if err := binfmt.WriteU8(w, version); err != nil {
		return err
	}
	if err := binfmt.WriteU32(w, lutOffset); err != nil {
		return err
	}
	if err := binfmt.WriteU16(w, spineCount); err != nil {
		return err
	}
	return binfmt.WriteU16(w, tocCount)
}

func writeMetadata(w io.Writer, m domain.BookMetadata) error {
	for _, s := range []string{m.Title, m.Author, m.Language, m.CoverItemHref, m.TextReferenceHref} {
		if err := binfmt.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func readMetadata(r io.Reader) (domain.BookMetadata, error) {
	var m domain.BookMetadata
	var err error
	if m.Title, err = binfmt.ReadString(r); err != nil {
		return m, err
	}
	if m.Author, err = binfmt.ReadString(r); err != nil {
		return m, err
	}
	if m.Language, err = binfmt.ReadString(r); err != nil {
		return m, err
	}
	if m.CoverItemHref, err = binfmt.ReadString(r); err != nil {
		return m, err
	}
	if m.TextReferenceHref, err = binfmt.ReadString(r); err != nil {
		return m, err
	}
	return m, nil
}

func writeSpineEntry(w io.Writer, e domain.SpineEntry) error {
	if err := binfmt.WriteString(w, e.Href); err != nil {
		return err
	}
	return binfmt.WriteI16(w, e.TocIndex)
}

func readSpineEntry(r io.Reader) (domain.SpineEntry, error) {
	var e domain.SpineEntry
	href, err := binfmt.ReadString(r)
	if err != nil {
		return e, err
	}
	tocIndex, err := binfmt.ReadI16(r)
	if err != nil {
		return e, err
	}
	e.Href = href
	e.TocIndex = tocIndex
	return e, nil
}

func writeTocEntry(w io.Writer, e domain.TocEntry) error {
	if err := binfmt.WriteString(w, e.Title); err != nil {
		return err
	}
	if err := binfmt.WriteString(w, e.Href); err != nil {
		return err
	}
	if err := binfmt.WriteString(w, e.Anchor); err != nil {
		return err
	}
	if err := binfmt.WriteU8(w, e.Level); err != nil {
		return err
	}
	return binfmt.WriteI16(w, e.SpineIndex)
}

func readTocEntry(r io.Reader) (domain.TocEntry, error) {
	var e domain.TocEntry
	var err error
	if e.Title, err = binfmt.ReadString(r); err != nil {
		return e, err
	}
	if e.Href, err = binfmt.ReadString(r); err != nil {
		return e, err
	}
	if e.Anchor, err = binfmt.ReadString(r); err != nil {
		return e, err
	}
	if e.Level, err = binfmt.ReadU8(r); err != nil {
		return e, err
	}
	if e.SpineIndex, err = binfmt.ReadI16(r); err != nil {
		return e, err
	}
	return e, nil
}
