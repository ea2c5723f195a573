/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"context"
	"database/sql"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	applog "papyrix/internal/log"
	"papyrix/internal/epub/cache"
	"papyrix/internal/papyrixerr"
)

// Rebuild walks root, opening every book.bin it finds via the read-only
// cache.Reader and upserting one LibraryEntry per book. It does not touch
// books whose cache directory has no book.bin yet — those simply stay
// absent from the catalog until they are opened for the first time and a
// cache is built for them.
func (c *Catalog) Rebuild(ctx context.Context) (int, error) {
	l := applog.WithComponent("catalog")
	found := 0
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries rather than aborting the whole rescan
		}
		if d.IsDir() || d.Name() != "book.bin" {
			return nil
		}
		dir := filepath.Dir(path)
		if !cache.Exists(dir) {
			return nil
		}
		r, openErr := cache.Open(dir)
		if openErr != nil {
			l.Warn("catalog: skipping unreadable book.bin", slog.String("dir", dir), slog.Any("err", openErr))
			return nil
		}
		meta := r.Metadata
		_ = r.Close()

		entry := LibraryEntry{
			Path:          dir,
			Title:         orDefault(meta.Title, filepath.Base(dir)),
			Author:        meta.Author,
			CoverItemHref: meta.CoverItemHref,
		}
		if upErr := c.Upsert(ctx, entry); upErr != nil {
			return upErr
		}
		found++
		return nil
	})
	if err != nil {
		return found, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: rebuild walk %s", c.root)
	}
	l.Info("catalog rebuild complete", slog.Int("count", found))
	return found, nil
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// DetectAndRebuildIndex opens the catalog at root, verifying it with a
// PRAGMA quick_check and a probe query; on open failure or detected
// corruption it removes the database file and performs a full Rebuild. A
// database file that did not exist before the call is also filled by a full
// Rebuild.
// Mirrors storage/index.go's DetectAndRebuildIndex: the catalog is a cache,
// so corruption is never surfaced to the caller as an unrecoverable error.
func DetectAndRebuildIndex(ctx context.Context, root string) (*Catalog, bool, error) {
	_, statErr := os.Stat(Path(root))
	missing := os.IsNotExist(statErr)
	c, err := Open(root)
	rebuilt := false
	if err != nil {
		_ = os.Remove(Path(root))
		c, err = Open(root)
		if err != nil {
			return nil, false, err
		}
		rebuilt = true
	} else if corrupt(ctx, c.db) {
		_ = c.Close()
		_ = os.Remove(Path(root))
		c, err = Open(root)
		if err != nil {
			return nil, false, err
		}
		rebuilt = true
	} else if missing {
		rebuilt = true
	}
	if rebuilt {
		if _, rerr := c.Rebuild(ctx); rerr != nil {
			return c, true, rerr
		}
	}
	return c, rebuilt, nil
}

func corrupt(ctx context.Context, db *sql.DB) bool {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check;").Scan(&result); err != nil || result != "ok" {
		return true
	}
	var probe int
	row := db.QueryRowContext(ctx, "SELECT 1 FROM books LIMIT 1")
	if err := row.Scan(&probe); err != nil && err != sql.ErrNoRows {
		return true
	}
	return false
}
