/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package epub

import (
	"bytes"
	"os"
	"path/filepath"

	"papyrix/internal/coverconv"
	"papyrix/internal/papyrixerr"
)

const (
	coverBmpName = "cover.bmp"
	thumbBmpName = "thumb.bmp"
)

// CoverBmpPath is the cached cover bitmap's path under the book's cache dir.
func (e *Epub) CoverBmpPath() string { return filepath.Join(e.cacheDir, coverBmpName) }

// ThumbBmpPath is the cached thumbnail bitmap's path under the book's cache dir.
func (e *Epub) ThumbBmpPath() string { return filepath.Join(e.cacheDir, thumbBmpName) }

// GenerateCoverBmp decodes the manifest's cover image, dithers it to the
// device's grayscale depth, and writes it to CoverBmpPath.
func (e *Epub) GenerateCoverBmp(use1BitDithering bool) error {
	href := e.CoverItemHref()
	if href == "" {
		return papyrixerr.New(papyrixerr.KindNotFound, "epub: no cover item in manifest")
	}
	raw, err := e.zr.ReadAll(href, false)
	if err != nil {
		return err
	}
	bmp, err := coverconv.ConvertToBMP(bytes.NewReader(raw), use1BitDithering)
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.CoverBmpPath(), bmp, 0o644); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "epub: write cover bmp")
	}
	return nil
}

// GenerateThumbBmp decodes the cover and writes a 2-bit thumbnail bitmap,
// for the file-list view's small cover preview.
func (e *Epub) GenerateThumbBmp() error {
	href := e.CoverItemHref()
	if href == "" {
		return papyrixerr.New(papyrixerr.KindNotFound, "epub: no cover item in manifest")
	}
	raw, err := e.zr.ReadAll(href, false)
	if err != nil {
		return err
	}
	bmp, err := coverconv.ConvertToBMP(bytes.NewReader(raw), false)
	if err != nil {
		return err
	}
	if err := os.WriteFile(e.ThumbBmpPath(), bmp, 0o644); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "epub: write thumb bmp")
	}
	return nil
}
