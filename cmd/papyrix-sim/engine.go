/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command papyrix-sim is the desktop simulator: a Fyne window standing in
// for the e-ink framebuffer, driving the same internal/shell state machine,
// internal/pagecache, and internal/epub packages a real device runs. This
// file holds the simulator engine only; the package contains no window
// front-end and no main function.
package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"papyrix/internal/catalog"
	"papyrix/internal/config"
	applog "papyrix/internal/log"
	"papyrix/internal/domain"
	"papyrix/internal/epdfont"
	"papyrix/internal/epub"
	"papyrix/internal/reader"
	"papyrix/internal/sdcard"
	"papyrix/internal/settings"
	"papyrix/internal/shell"
	"papyrix/internal/textlayout"
	"papyrix/internal/theme"
)

const simCacheDirName = ".papyrix/cache"

// engine owns every piece of device state the simulator UI drives: the
// shell activity machine, the open book and its page cursor, and the baked
// font the current theme names.
type engine struct {
	cfg          config.DeviceRuntimeConfig
	sd           *sdcard.Facade
	cat          *catalog.Catalog
	log          *slog.Logger
	themeDir     string
	settingsPath string

	core    *shell.Core
	machine *shell.Machine

	book       *epub.Epub
	font       *epdfont.Font
	provider   textlayout.Provider
	renderCfg  domain.RenderConfig
	spineIndex int
	page       int
	pageCount  int
}

func newEngine(cfg config.DeviceRuntimeConfig) (*engine, error) {
	log := applog.WithComponent("papyrix-sim")
	sd := sdcard.New(cfg.Device.BooksRoot)

	themeDir := filepath.Join(cfg.Device.BooksRoot, ".papyrix", "themes")
	settingsPath := filepath.Join(cfg.Device.BooksRoot, ".papyrix", "settings.bin")
	if err := sd.Mkdir(".papyrix"); err != nil {
		return nil, err
	}
	if err := theme.EnsureBuiltins(themeDir); err != nil {
		return nil, err
	}

	cat, _, err := catalog.DetectAndRebuildIndex(context.Background(), cfg.Device.BooksRoot)
	if err != nil {
		return nil, err
	}

	st, err := settings.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	core := &shell.Core{Log: log, Settings: st, SettingsPath: settingsPath}
	machine := shell.NewMachine(log)
	machine.Register(shell.StartupState{})
	machine.Register(shell.HomeState{})
	machine.Register(shell.FileListState{})
	machine.Register(shell.ReaderState{})
	machine.Register(shell.SettingsActivityState{})
	machine.Register(&shell.SyncState{})
	machine.Register(&shell.NetworkState{})
	machine.Register(&shell.CalibreSyncState{})
	machine.Register(shell.ErrorActivityState{})
	machine.Register(&shell.SleepActivityState{})
	machine.Init(core, shell.Startup)
	machine.Update(core)

	return &engine{
		cfg:          cfg,
		sd:           sd,
		cat:          cat,
		log:          log,
		themeDir:     themeDir,
		settingsPath: settingsPath,
		core:         core,
		machine:      machine,
	}, nil
}

func (e *engine) close() {
	if e.font != nil {
		_ = e.font.Close()
	}
	if e.book != nil {
		_ = e.book.Close()
	}
	if e.cat != nil {
		_ = e.cat.Close()
	}
	_ = settings.Save(e.settingsPath, e.core.Settings)
}

// library returns the catalog entries the file-list view shows.
func (e *engine) library() ([]catalog.LibraryEntry, error) {
	return e.cat.All(context.Background())
}

// openBook loads path, picks up the reader's themed RenderConfig, and
// resets the page cursor to the book's text start (or spine 0 if the book
// carries no explicit text reference).
func (e *engine) openBook(path string) error {
	if e.font != nil {
		_ = e.font.Close()
		e.font = nil
	}
	if e.book != nil {
		_ = e.book.Close()
	}

	cacheRoot := filepath.Join(e.cfg.Device.BooksRoot, simCacheDirName)
	book := epub.Open(path, cacheRoot)
	if err := book.Load(true); err != nil {
		return err
	}

	renderCfg, err := reader.RenderConfigFor(e.themeDir, "default", uint16(e.cfg.Simulator.WindowWidth), uint16(e.cfg.Simulator.WindowHeight))
	if err != nil {
		_ = book.Close()
		return err
	}
	provider, font, err := reader.LoadProvider(e.sd, renderCfg.FontID)
	if err != nil {
		_ = book.Close()
		return err
	}

	e.book = book
	e.font = font
	e.provider = provider
	e.renderCfg = renderCfg
	e.spineIndex = book.SpineIndexForTextReference()
	if e.spineIndex < 0 || e.spineIndex >= book.SpineCount() {
		e.spineIndex = 0
	}
	e.page = 0
	e.pageCount = 0
	return nil
}

// currentPage renders (building the cache on first visit to a chapter) and
// returns the page the cursor currently points at.
func (e *engine) currentPage() (domain.Page, error) {
	if e.book == nil {
		return domain.Page{}, os.ErrInvalid
	}
	cache, hdr, err := reader.OpenChapter(e.book, e.spineIndex, e.renderCfg, e.provider, e.page)
	if err != nil {
		return domain.Page{}, err
	}
	e.pageCount = int(hdr.PageCount)
	if e.page >= e.pageCount {
		e.page = e.pageCount - 1
	}
	return cache.LoadPage(e.page)
}

// nextPage advances the cursor, rolling into the next spine item at a
// chapter boundary. Returns false once the book has no further content.
func (e *engine) nextPage() bool {
	if e.book == nil {
		return false
	}
	if e.page+1 < e.pageCount {
		e.page++
		return true
	}
	if e.spineIndex+1 < e.book.SpineCount() {
		e.spineIndex++
		e.page = 0
		return true
	}
	return false
}

// prevPage retreats the cursor, rolling into the previous spine item's last
// page at a chapter boundary.
func (e *engine) prevPage() bool {
	if e.book == nil {
		return false
	}
	if e.page > 0 {
		e.page--
		return true
	}
	if e.spineIndex > 0 {
		e.spineIndex--
		_, hdr, err := reader.OpenChapter(e.book, e.spineIndex, e.renderCfg, e.provider, 1<<30)
		if err != nil {
			e.spineIndex++
			return false
		}
		e.page = int(hdr.PageCount) - 1
		if e.page < 0 {
			e.page = 0
		}
		return true
	}
	return false
}
