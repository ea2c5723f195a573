/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"papyrix/internal/domain"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(filepath.Join(dir, "settings.bin"))
	require.NoError(t, err)
	require.Equal(t, Defaults(), s)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "settings.bin")

	want := Defaults()
	want.ThemeName = "large-print"
	want.LastBookPath = "books/dune/book.bin"
	want.ParagraphAlignment = domain.AlignJustify
	want.Hyphenation = false
	want.SunlightFading = true
	want.SelectedIndex = 7

	require.NoError(t, Save(path, want))
	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveOverwritesPreviousContents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.bin")

	first := Defaults()
	first.ThemeName = "compact"
	require.NoError(t, Save(path, first))

	second := Defaults()
	second.ThemeName = "default"
	require.NoError(t, Save(path, second))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "default", got.ThemeName)
}

func TestLoadVersionMismatchReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.bin")
	require.NoError(t, os.WriteFile(path, []byte{Version + 1, 0, 0}, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestLoadTruncatedFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.bin")
	require.NoError(t, os.WriteFile(path, []byte{Version, 1, 2}, 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Defaults(), got)
}

func TestEncodeTruncatesOverlongStringFields(t *testing.T) {
	s := Defaults()
	s.ThemeName = strings.Repeat("x", themeNameLen*2)

	data, err := encode(s)
	require.NoError(t, err)
	decoded, err := decode(data)
	require.NoError(t, err)
	require.Len(t, decoded.ThemeName, themeNameLen-1)
}

func TestBoolByte(t *testing.T) {
	require.Equal(t, uint8(1), boolByte(true))
	require.Equal(t, uint8(0), boolByte(false))
}
