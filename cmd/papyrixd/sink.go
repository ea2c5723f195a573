/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"papyrix/internal/calibre"
	"papyrix/internal/catalog"
	"papyrix/internal/config"
	applog "papyrix/internal/log"
	"papyrix/internal/epub"
	"papyrix/internal/papyrixerr"
	"papyrix/internal/pathkit"
	"papyrix/internal/sdcard"
)

// defaultFreeSpaceBytes and defaultTotalSpaceBytes stand in for a real
// filesystem capacity query, which needs a platform-specific syscall the
// rest of the corpus never pulls in; they are sent in the TOTAL_SPACE and
// FREE_SPACE replies, whose consumer (Calibre's desktop UI) only uses them
// for a capacity bar, not correctness.
const (
	defaultFreeSpaceBytes  = 4 << 30
	defaultTotalSpaceBytes = 8 << 30
)

// deviceSink is the host-side implementation of calibre.BookSink: it turns
// SEND_BOOK/DELETE_BOOK callbacks into real sdcard writes, book.bin builds,
// and catalog updates.
type deviceSink struct {
	cfg config.DeviceRuntimeConfig
	sd  *sdcard.Facade
	cat *catalog.Catalog
	log *slog.Logger
}

func newDeviceSink(cfg config.DeviceRuntimeConfig, sd *sdcard.Facade, cat *catalog.Catalog) *deviceSink {
	return &deviceSink{cfg: cfg, sd: sd, cat: cat, log: applog.WithComponent("papyrixd.sink")}
}

func (d *deviceSink) Info() calibre.DeviceInfo {
	return calibre.DeviceInfo{
		Name:               d.cfg.Device.Name,
		Kind:               "papyrix",
		AcceptedExtensions: d.cfg.Device.AcceptedExtensions,
		FreeSpaceBytes:     defaultFreeSpaceBytes,
		TotalSpaceBytes:    defaultTotalSpaceBytes,
		PasswordHash:       d.cfg.ResolvedPasswordHash(),
	}
}

// receivedFile adapts *os.File to calibre.WriteCloserPath.
type receivedFile struct {
	*os.File
	path string
}

func (r *receivedFile) Path() string { return r.path }

// Abort closes the file and removes it, for a SEND_BOOK transfer that fails
// or is cancelled partway through (spec.md §4.9) — mirrors the firmware's
// calibre_storage_unlink(full_path) on the receive loop's error branch.
func (r *receivedFile) Abort() error {
	closeErr := r.File.Close()
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}

func (d *deviceSink) OpenForReceive(meta calibre.BookIncoming) (calibre.WriteCloserPath, error) {
	lpath := pathkit.Normalize(meta.Lpath)
	if !pathkit.IsSafeRelative(lpath) {
		return nil, papyrixerr.New(papyrixerr.KindInvalidArg, "papyrixd: unsafe lpath %q", meta.Lpath)
	}
	if !d.cfg.AcceptsExtension(pathkit.Ext(lpath)) {
		return nil, papyrixerr.New(papyrixerr.KindInvalidArg, "papyrixd: extension of %q not accepted", lpath)
	}
	if err := d.sd.Mkdir(filepath.Dir(lpath)); err != nil {
		return nil, err
	}
	f, err := d.sd.OpenWrite(lpath)
	if err != nil {
		return nil, err
	}
	return &receivedFile{File: f, path: filepath.Join(d.cfg.Device.BooksRoot, lpath)}, nil
}

func (d *deviceSink) OnBookReceived(meta calibre.BookIncoming, path string) {
	cacheRoot := filepath.Join(d.cfg.Device.BooksRoot, catalogCacheDirName)
	e := epub.Open(path, cacheRoot)
	if err := e.Load(true); err != nil {
		d.log.Warn("failed to build cache for received book, leaving file on device", "path", path, "err", err)
		return
	}
	defer e.Close()

	title := e.Title()
	if title == "" {
		title = meta.Title
	}
	entry := catalog.LibraryEntry{
		Path:          path,
		Title:         title,
		Author:        e.Author(),
		CoverItemHref: e.CoverItemHref(),
	}
	if err := d.cat.Upsert(context.Background(), entry); err != nil {
		d.log.Warn("failed to index received book", "path", path, "err", err)
	}
}

func (d *deviceSink) OnDeleteBook(lpath string) error {
	norm := pathkit.Normalize(lpath)
	if !pathkit.IsSafeRelative(norm) {
		return papyrixerr.New(papyrixerr.KindInvalidArg, "papyrixd: unsafe lpath %q", lpath)
	}
	full := filepath.Join(d.cfg.Device.BooksRoot, norm)
	if err := d.sd.Remove(norm); err != nil {
		return err
	}
	_ = d.cat.Delete(context.Background(), full)
	_ = epub.Open(full, filepath.Join(d.cfg.Device.BooksRoot, catalogCacheDirName)).ClearCache()
	return nil
}

const catalogCacheDirName = ".papyrix/cache"
