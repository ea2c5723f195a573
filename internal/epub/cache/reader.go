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
	"os"
	"path/filepath"

	"papyrix/internal/binfmt"
	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
)

// Reader gives O(1) random access into a baked book.bin: the header and
// metadata are read once on Open, spine/TOC entries are fetched on demand
// through the LUT.
type Reader struct {
	file *os.File

	lutOffset  uint32
	SpineCount uint16
	TocCount   uint16
	Metadata   domain.BookMetadata
}

// Open reads a book.bin's header and metadata. A version mismatch or any
// structural read failure is reported as an error; callers are expected to
// delete the file and rebuild (spec.md §4.4/§7: version mismatch
// invalidates, it is not merely an error to retry).
func Open(dir string) (*Reader, error) {
	f, err := os.Open(filepath.Join(dir, bookBinName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, papyrixerr.Wrap(papyrixerr.KindNotFound, err, "bookcache: open %s", dir)
		}
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: open %s", dir)
	}

	version, err := binfmt.ReadU8(f)
	if err != nil {
		_ = f.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "bookcache: short header")
	}
	if version != Version {
		_ = f.Close()
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "bookcache: version mismatch: want %d got %d", Version, version)
	}
	lutOffset, err := binfmt.ReadU32(f)
	if err != nil {
		_ = f.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "bookcache: read lutOffset")
	}
	spineCount, err := binfmt.ReadU16(f)
	if err != nil {
		_ = f.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "bookcache: read spineCount")
	}
	tocCount, err := binfmt.ReadU16(f)
	if err != nil {
		_ = f.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "bookcache: read tocCount")
	}
	meta, err := readMetadata(f)
	if err != nil {
		_ = f.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "bookcache: read metadata")
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: stat")
	}
	if uint64(lutOffset) >= uint64(info.Size()) {
		_ = f.Close()
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "bookcache: lutOffset %d out of range (size %d)", lutOffset, info.Size())
	}

	return &Reader{
		file:       f,
		lutOffset:  lutOffset,
		SpineCount: spineCount,
		TocCount:   tocCount,
		Metadata:   meta,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error { return r.file.Close() }

// SpineEntry returns the spine entry at index via the spine LUT.
func (r *Reader) SpineEntry(index int) (domain.SpineEntry, error) {
	if index < 0 || index >= int(r.SpineCount) {
		return domain.SpineEntry{}, papyrixerr.New(papyrixerr.KindInvalidArg, "bookcache: spine index %d out of range", index)
	}
	off, err := r.lutEntry(int(r.lutOffset) + 4*index)
	if err != nil {
		return domain.SpineEntry{}, err
	}
	if _, err := r.file.Seek(int64(off), io.SeekStart); err != nil {
		return domain.SpineEntry{}, papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek spine entry")
	}
	return readSpineEntry(r.file)
}

// TocEntry returns the TOC entry at index via the TOC LUT.
func (r *Reader) TocEntry(index int) (domain.TocEntry, error) {
	if index < 0 || index >= int(r.TocCount) {
		return domain.TocEntry{}, papyrixerr.New(papyrixerr.KindInvalidArg, "bookcache: toc index %d out of range", index)
	}
	off, err := r.lutEntry(int(r.lutOffset) + 4*int(r.SpineCount) + 4*index)
	if err != nil {
		return domain.TocEntry{}, err
	}
	if _, err := r.file.Seek(int64(off), io.SeekStart); err != nil {
		return domain.TocEntry{}, papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek toc entry")
	}
	return readTocEntry(r.file)
}

func (r *Reader) lutEntry(byteOffset int) (uint32, error) {
	if _, err := r.file.Seek(int64(byteOffset), io.SeekStart); err != nil {
		return 0, papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: seek LUT")
	}
	v, err := binfmt.ReadU32(r.file)
	if err != nil {
		return 0, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "bookcache: read LUT entry")
	}
	if v < uint32(1+4+2+2) {
		return 0, papyrixerr.New(papyrixerr.KindInvalidFormat, "bookcache: LUT entry %d points before payload region", v)
	}
	return v, nil
}

// Delete removes book.bin from dir, used when a version mismatch or
// corruption is detected and the cache must be rebuilt from scratch.
func Delete(dir string) error {
	if err := os.Remove(filepath.Join(dir, bookBinName)); err != nil && !os.IsNotExist(err) {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "bookcache: delete book.bin")
	}
	return nil
}

// Exists reports whether a book.bin is present in dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, bookBinName))
	return err == nil
}
