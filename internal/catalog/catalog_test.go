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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Catalog, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, dir
}

func TestOpenCreatesDatabaseFile(t *testing.T) {
	_, dir := openTemp(t)
	_, err := os.Stat(Path(dir))
	require.NoError(t, err)
}

func TestUpsertAndSearch(t *testing.T) {
	c, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/dune", Title: "Dune", Author: "Frank Herbert"}))
	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/hobbit", Title: "The Hobbit", Author: "J.R.R. Tolkien"}))

	found, err := c.Search(ctx, "Dune")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "books/dune", found[0].Path)

	found, err = c.Search(ctx, "Tolkien")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "books/hobbit", found[0].Path)

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestUpsertIsIdempotentByPath(t *testing.T) {
	c, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/dune", Title: "Dune", Author: "Frank Herbert"}))
	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/dune", Title: "Dune (Revised)", Author: "Frank Herbert"}))

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Dune (Revised)", all[0].Title)
}

func TestTouchUpdatesProgress(t *testing.T) {
	c, _ := openTemp(t)
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/dune", Title: "Dune", Author: "Frank Herbert"}))
	require.NoError(t, c.Touch(ctx, "books/dune", 42, 1700000000))

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 42, all[0].LastPageIndex)
	require.Equal(t, int64(1700000000), all[0].LastOpenedUnixSec)
}

func TestDeleteRemovesEntry(t *testing.T) {
	c, _ := openTemp(t)
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/dune", Title: "Dune", Author: "Frank Herbert"}))
	require.NoError(t, c.Delete(ctx, "books/dune"))

	all, err := c.All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSearchEmptyQueryReturnsAll(t *testing.T) {
	c, _ := openTemp(t)
	ctx := context.Background()
	require.NoError(t, c.Upsert(ctx, LibraryEntry{Path: "books/dune", Title: "Dune", Author: "Frank Herbert"}))

	got, err := c.Search(ctx, "   ")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestRebuildSkipsDirectoriesWithoutBookBin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "not-a-book"), 0o755))

	c, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	n, err := c.Rebuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestDetectAndRebuildIndexRecoversFromMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	c, rebuilt, err := DetectAndRebuildIndex(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, rebuilt)
	require.NotNil(t, c)
	_ = c.Close()
}

func TestDetectAndRebuildIndexReopensHealthyDatabase(t *testing.T) {
	dir := t.TempDir()
	c1, rebuilt, err := DetectAndRebuildIndex(context.Background(), dir)
	require.NoError(t, err)
	require.True(t, rebuilt)
	require.NoError(t, c1.Upsert(context.Background(), LibraryEntry{Path: "books/dune", Title: "Dune"}))
	require.NoError(t, c1.Close())

	c2, rebuilt2, err := DetectAndRebuildIndex(context.Background(), dir)
	require.NoError(t, err)
	require.False(t, rebuilt2)
	all, err := c2.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	_ = c2.Close()
}
