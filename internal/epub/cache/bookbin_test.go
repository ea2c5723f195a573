/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"papyrix/internal/domain"
)

func buildFixture(t *testing.T, dir string) {
	t.Helper()
	w := NewWriter(dir)
	require.NoError(t, w.BeginContentOpfPass())
	hrefs := []string{"ch01.xhtml", "ch02.xhtml", "ch03.xhtml", "ch04.xhtml"}
	for _, h := range hrefs {
		require.NoError(t, w.CreateSpineEntry(h))
	}
	require.NoError(t, w.EndContentOpfPass())

	require.NoError(t, w.BeginTocPass())
	require.NoError(t, w.CreateTocEntry("Chapter One", "ch01.xhtml", "", 0))
	require.NoError(t, w.CreateTocEntry("Chapter Two", "ch02.xhtml", "", 0))
	require.NoError(t, w.CreateTocEntry("Section 2.1", "ch02.xhtml", "sec1", 1))
	require.NoError(t, w.EndTocPass())

	require.NoError(t, w.BuildBookBin(domain.BookMetadata{
		Title:         "Test Book",
		Author:        "A. Author",
		Language:      "en",
		CoverItemHref: "images/cover.jpg",
	}))
	w.Cleanup()
}

func TestBookBinRoundtrip(t *testing.T) {
	dir := t.TempDir()
	buildFixture(t, dir)

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint16(4), r.SpineCount)
	require.Equal(t, uint16(3), r.TocCount)
	require.Equal(t, "Test Book", r.Metadata.Title)
	require.Equal(t, "A. Author", r.Metadata.Author)
	require.Equal(t, "images/cover.jpg", r.Metadata.CoverItemHref)

	wantSpine := []string{"ch01.xhtml", "ch02.xhtml", "ch03.xhtml", "ch04.xhtml"}
	for i, href := range wantSpine {
		e, err := r.SpineEntry(i)
		require.NoError(t, err)
		require.Equal(t, href, e.Href)
	}

	// Spine entry 0 resolves directly to TOC entry 0; entry 2 ("ch03") has no
	// TOC entry of its own and must inherit the last-known TOC index (1,
	// "Chapter Two", the first TOC entry of ch02) per the forward-propagation
	// rule.
	e0, err := r.SpineEntry(0)
	require.NoError(t, err)
	require.Equal(t, int16(0), e0.TocIndex)

	e2, err := r.SpineEntry(2)
	require.NoError(t, err)
	require.Equal(t, int16(1), e2.TocIndex)

	toc1, err := r.TocEntry(1)
	require.NoError(t, err)
	require.Equal(t, "Chapter Two", toc1.Title)
	require.Equal(t, int16(1), toc1.SpineIndex)

	toc2, err := r.TocEntry(2)
	require.NoError(t, err)
	require.Equal(t, "sec1", toc2.Anchor)
	require.Equal(t, uint8(1), toc2.Level)
}

func TestBookBinNoToc(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.BeginContentOpfPass())
	require.NoError(t, w.CreateSpineEntry("only.xhtml"))
	require.NoError(t, w.EndContentOpfPass())
	require.NoError(t, w.BeginTocPass())
	require.NoError(t, w.EndTocPass())
	require.NoError(t, w.BuildBookBin(domain.BookMetadata{Title: "No TOC"}))
	w.Cleanup()

	r, err := Open(dir)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, uint16(0), r.TocCount)
	e, err := r.SpineEntry(0)
	require.NoError(t, err)
	require.Equal(t, int16(-1), e.TocIndex)
}

func TestBookBinVersionMismatchInvalidates(t *testing.T) {
	dir := t.TempDir()
	buildFixture(t, dir)
	require.True(t, Exists(dir))

	// Corrupt the version byte in place.
	path := filepath.Join(dir, bookBinName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] = Version + 1
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, err = Open(dir)
	require.Error(t, err)
	require.NoError(t, Delete(dir))
	require.False(t, Exists(dir))
}

func TestBookBinIdempotentLoad(t *testing.T) {
	dir := t.TempDir()
	buildFixture(t, dir)
	for i := 0; i < 3; i++ {
		r, err := Open(dir)
		require.NoError(t, err)
		require.Equal(t, uint16(4), r.SpineCount)
		require.NoError(t, r.Close())
	}
}
