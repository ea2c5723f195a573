/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog is the supplemental library index the original flat SD
// directory scan lacked: a SQLite (modernc.org/sqlite, pure Go, no cgo)
// database with an FTS5 virtual table over title/author, used by the file
// list's search box. It is purely a cache over the real source of truth
// (each book's own book.bin) — corruption or absence triggers a full
// rescan, never an error users need to recover from by hand. Grounded on
// storage/index.go's InitOrOpenIndex/ensureIndexSchema/DetectAndRebuildIndex
// pattern (WAL mode, contentless-FTS-via-triggers, corruption probe +
// rebuild).
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	applog "papyrix/internal/log"
	"papyrix/internal/papyrixerr"
)

// DirName and FileName locate the catalog under a books root, per
// SPEC_FULL.md §3: "<booksRoot>/.papyrix/catalog.db".
const (
	DirName  = ".papyrix"
	FileName = "catalog.db"
)

// LibraryEntry is one row of the catalog: a book discovered under the books
// root, indexed for the file list's search box.
type LibraryEntry struct {
	Path              string
	Title             string
	Author            string
	CoverItemHref     string
	LastOpenedUnixSec int64
	LastPageIndex     int
}

// Path returns the catalog database file path under root.
func Path(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Catalog wraps the open database handle.
type Catalog struct {
	db   *sql.DB
	root string
}

// Open opens-or-creates the catalog database at <root>/.papyrix/catalog.db,
// enabling WAL mode and ensuring its schema exists.
func Open(root string) (*Catalog, error) {
	l := applog.WithComponent("catalog")
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: mkdir %s", dir)
	}

	path := Path(root)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: open %s", path)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: enable WAL")
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	l.Info("catalog ready", slog.String("path", path))
	return &Catalog{db: db, root: root}, nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error { return c.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS books (
			path                  TEXT PRIMARY KEY,
			title                 TEXT NOT NULL,
			author                TEXT NOT NULL,
			cover_item_href       TEXT,
			last_opened_unix_sec  INTEGER NOT NULL DEFAULT 0,
			last_page_index       INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_books USING fts5(
			title, author, content='books', content_rowid='rowid'
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: ensure schema")
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS books_ai AFTER INSERT ON books BEGIN
			INSERT INTO fts_books(rowid, title, author) VALUES (new.rowid, new.title, new.author);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS books_ad AFTER DELETE ON books BEGIN
			INSERT INTO fts_books(fts_books, rowid, title, author) VALUES ('delete', old.rowid, old.title, old.author);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS books_au AFTER UPDATE OF title, author ON books BEGIN
			INSERT INTO fts_books(fts_books, rowid, title, author) VALUES ('delete', old.rowid, old.title, old.author);
			INSERT INTO fts_books(rowid, title, author) VALUES (new.rowid, new.title, new.author);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: ensure fts triggers")
		}
	}
	return nil
}

// Upsert inserts or updates one LibraryEntry, preserving lastOpened/lastPage
// when a prior row exists and the new entry leaves them zero.
func (c *Catalog) Upsert(ctx context.Context, e LibraryEntry) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO books(path, title, author, cover_item_href, last_opened_unix_sec, last_page_index)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title=excluded.title, author=excluded.author, cover_item_href=excluded.cover_item_href
	`, e.Path, e.Title, e.Author, e.CoverItemHref, e.LastOpenedUnixSec, e.LastPageIndex)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: upsert %s", e.Path)
	}
	return nil
}

// Touch updates a book's last-opened timestamp and page index, feeding
// "resume last book" in the persisted settings' last-book-path field.
func (c *Catalog) Touch(ctx context.Context, path string, pageIndex int, unixSec int64) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE books SET last_opened_unix_sec=?, last_page_index=? WHERE path=?`,
		unixSec, pageIndex, path)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: touch %s", path)
	}
	return nil
}

// Search runs an FTS5 MATCH query over title/author and returns matching
// entries ordered by relevance.
func (c *Catalog) Search(ctx context.Context, query string) ([]LibraryEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return c.All(ctx)
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT b.path, b.title, b.author, b.cover_item_href, b.last_opened_unix_sec, b.last_page_index
		FROM books b JOIN fts_books f ON b.rowid = f.rowid
		WHERE fts_books MATCH ?
		ORDER BY rank
	`, query)
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: search %q", query)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// All returns every catalog entry, ordered by title.
func (c *Catalog) All(ctx context.Context) ([]LibraryEntry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT path, title, author, cover_item_href, last_opened_unix_sec, last_page_index
		FROM books ORDER BY title
	`)
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: list all")
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]LibraryEntry, error) {
	var out []LibraryEntry
	for rows.Next() {
		var e LibraryEntry
		if err := rows.Scan(&e.Path, &e.Title, &e.Author, &e.CoverItemHref, &e.LastOpenedUnixSec, &e.LastPageIndex); err != nil {
			return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: scan row")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: iterate rows")
	}
	return out, nil
}

// Delete removes one book's row from the catalog (DELETE_BOOK's counterpart
// on the catalog side).
func (c *Catalog) Delete(ctx context.Context, path string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM books WHERE path=?`, path)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "catalog: delete %s", path)
	}
	return nil
}
