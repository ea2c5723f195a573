/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package settings persists the small, frequently read/written, cross-reboot
// UI state (theme name, last book, pending transition, button layouts, ...)
// as a tiny fixed-layout binary blob. Grounded on PapyrixSettings.h's field
// list and storage/project.go's transactional write pattern (write to a
// temp file, then rename over the target, so a crash mid-write never
// corrupts the previous good settings file).
package settings

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"papyrix/internal/binfmt"
	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
)

// Version is bumped on any breaking field-order change; Load returns
// defaults (not an error) when the on-disk version doesn't match, mirroring
// PageCache's invalidate-not-error policy for this much smaller format.
const Version uint8 = 1

const (
	themeNameLen  = 32
	lastBookLen   = 256
	lastDirLen    = 256
	lastFileLen   = 128
)

// Settings is the persisted cross-reboot UI state. Field order here is the
// load/save contract (spec.md §6.5) — do not reorder without bumping
// Version.
type Settings struct {
	SleepScreenMode      uint8
	StatusBarMode        uint8
	TextLayoutPreset     uint8
	PowerButtonAction    uint8
	Orientation          uint8
	FontSize             uint8
	PagesPerRefresh      uint8
	SideButtonLayout     uint8
	FrontButtonLayout    uint8
	AutoSleepTimeoutSec  uint16
	ParagraphAlignment   domain.Alignment
	Hyphenation          bool
	AntiAliasing         bool
	ShowImages           bool
	StartupBehaviour     uint8
	CoverDithering       uint8
	LineSpacingPreset    uint8
	ThemeName            string // <= 32 bytes
	LastBookPath         string // <= 256 bytes
	PendingTransition    uint8
	TransitionReturnTo   uint8
	SunlightFading       bool // SSD1677 panel quirk flag
	LastFileListDir      string // <= 256 bytes
	LastSelectedFilename string // <= 128 bytes
	SelectedIndex        uint16
}

// Defaults returns the out-of-box settings a factory-reset or first-boot
// device starts with.
func Defaults() Settings {
	return Settings{
		TextLayoutPreset:    1,
		FontSize:            2,
		PagesPerRefresh:     1,
		AutoSleepTimeoutSec: 300,
		ParagraphAlignment:  domain.AlignLeft,
		ShowImages:          true,
		AntiAliasing:        true,
		ThemeName:           "default",
	}
}

// Load reads settings from path, returning Defaults() (not an error) if the
// file is absent or its version doesn't match — persisted settings are a
// convenience cache of UI state, not an authoritative source truth.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Defaults(), papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: read %s", path)
	}
	s, err := decode(data)
	if err != nil {
		return Defaults(), nil
	}
	return s, nil
}

// Save writes settings to path via a temp-file-then-rename, so a crash
// mid-write leaves the previous settings file intact.
func Save(path string, s Settings) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: mkdir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: create temp")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: write temp")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: close temp")
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: rename into place")
	}
	return nil
}

func encode(s Settings) ([]byte, error) {
	var buf bytes.Buffer
	w := &buf
	writes := []func() error{
		func() error { return binfmt.WriteU8(w, Version) },
		func() error { return binfmt.WriteU8(w, s.SleepScreenMode) },
		func() error { return binfmt.WriteU8(w, s.StatusBarMode) },
		func() error { return binfmt.WriteU8(w, s.TextLayoutPreset) },
		func() error { return binfmt.WriteU8(w, s.PowerButtonAction) },
		func() error { return binfmt.WriteU8(w, s.Orientation) },
		func() error { return binfmt.WriteU8(w, s.FontSize) },
		func() error { return binfmt.WriteU8(w, s.PagesPerRefresh) },
		func() error { return binfmt.WriteU8(w, s.SideButtonLayout) },
		func() error { return binfmt.WriteU8(w, s.FrontButtonLayout) },
		func() error { return binfmt.WriteU16(w, s.AutoSleepTimeoutSec) },
		func() error { return binfmt.WriteU8(w, uint8(s.ParagraphAlignment)) },
		func() error { return binfmt.WriteU8(w, boolByte(s.Hyphenation)) },
		func() error { return binfmt.WriteU8(w, boolByte(s.AntiAliasing)) },
		func() error { return binfmt.WriteU8(w, boolByte(s.ShowImages)) },
		func() error { return binfmt.WriteU8(w, s.StartupBehaviour) },
		func() error { return binfmt.WriteU8(w, s.CoverDithering) },
		func() error { return binfmt.WriteU8(w, s.LineSpacingPreset) },
		func() error { return binfmt.WriteFixedString(w, s.ThemeName, themeNameLen) },
		func() error { return binfmt.WriteFixedString(w, s.LastBookPath, lastBookLen) },
		func() error { return binfmt.WriteU8(w, s.PendingTransition) },
		func() error { return binfmt.WriteU8(w, s.TransitionReturnTo) },
		func() error { return binfmt.WriteU8(w, boolByte(s.SunlightFading)) },
		func() error { return binfmt.WriteFixedString(w, s.LastFileListDir, lastDirLen) },
		func() error { return binfmt.WriteFixedString(w, s.LastSelectedFilename, lastFileLen) },
		func() error { return binfmt.WriteU16(w, s.SelectedIndex) },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "settings: encode")
		}
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (Settings, error) {
	r := bytes.NewReader(data)
	version, err := binfmt.ReadU8(r)
	if err != nil {
		return Settings{}, err
	}
	if version != Version {
		return Settings{}, papyrixerr.New(papyrixerr.KindInvalidFormat, "settings: version %d != %d", version, Version)
	}
	var s Settings
	var align, hyph, aa, show, sunlight uint8
	reads := []func() error{
		func() (err error) { s.SleepScreenMode, err = binfmt.ReadU8(r); return },
		func() (err error) { s.StatusBarMode, err = binfmt.ReadU8(r); return },
		func() (err error) { s.TextLayoutPreset, err = binfmt.ReadU8(r); return },
		func() (err error) { s.PowerButtonAction, err = binfmt.ReadU8(r); return },
		func() (err error) { s.Orientation, err = binfmt.ReadU8(r); return },
		func() (err error) { s.FontSize, err = binfmt.ReadU8(r); return },
		func() (err error) { s.PagesPerRefresh, err = binfmt.ReadU8(r); return },
		func() (err error) { s.SideButtonLayout, err = binfmt.ReadU8(r); return },
		func() (err error) { s.FrontButtonLayout, err = binfmt.ReadU8(r); return },
		func() (err error) { s.AutoSleepTimeoutSec, err = binfmt.ReadU16(r); return },
		func() (err error) { align, err = binfmt.ReadU8(r); return },
		func() (err error) { hyph, err = binfmt.ReadU8(r); return },
		func() (err error) { aa, err = binfmt.ReadU8(r); return },
		func() (err error) { show, err = binfmt.ReadU8(r); return },
		func() (err error) { s.StartupBehaviour, err = binfmt.ReadU8(r); return },
		func() (err error) { s.CoverDithering, err = binfmt.ReadU8(r); return },
		func() (err error) { s.LineSpacingPreset, err = binfmt.ReadU8(r); return },
		func() (err error) { s.ThemeName, err = binfmt.ReadFixedString(r, themeNameLen); return },
		func() (err error) { s.LastBookPath, err = binfmt.ReadFixedString(r, lastBookLen); return },
		func() (err error) { s.PendingTransition, err = binfmt.ReadU8(r); return },
		func() (err error) { s.TransitionReturnTo, err = binfmt.ReadU8(r); return },
		func() (err error) { sunlight, err = binfmt.ReadU8(r); return },
		func() (err error) { s.LastFileListDir, err = binfmt.ReadFixedString(r, lastDirLen); return },
		func() (err error) { s.LastSelectedFilename, err = binfmt.ReadFixedString(r, lastFileLen); return },
		func() (err error) { s.SelectedIndex, err = binfmt.ReadU16(r); return },
	}
	for _, read := range reads {
		if err := read(); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Settings{}, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "settings: truncated file")
			}
			return Settings{}, err
		}
	}
	s.ParagraphAlignment = domain.Alignment(align)
	s.Hyphenation = hyph != 0
	s.AntiAliasing = aa != 0
	s.ShowImages = show != 0
	s.SunlightFading = sunlight != 0
	return s, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
