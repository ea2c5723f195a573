/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package theme

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"papyrix/internal/domain"
)

func TestEnsureBuiltinsInstallsAllThemes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureBuiltins(dir))

	names, err := List(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"compact", "default", "large-print"}, names)
}

func TestEnsureBuiltinsDoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	custom := Theme{Name: "default", FontID: 99, LineCompression: 1.0, ParagraphAlignment: domain.AlignLeft}
	require.NoError(t, Save(dir, custom))

	require.NoError(t, EnsureBuiltins(dir))

	got, err := Load(dir, "default")
	require.NoError(t, err)
	require.Equal(t, uint32(99), got.FontID)
}

func TestSaveAndLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	want := Theme{
		Name:               "custom",
		FontID:             3,
		LineCompression:    1.1,
		IndentLevel:        2,
		SpacingLevel:       1,
		ParagraphAlignment: domain.AlignCenter,
		Hyphenation:        true,
		ShowImages:         false,
	}
	require.NoError(t, Save(dir, want))

	got, err := Load(dir, "custom")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveRejectsEmptyName(t *testing.T) {
	dir := t.TempDir()
	require.Error(t, Save(dir, Theme{}))
}

func TestLoadMissingThemeReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir, "nonexistent")
	require.Error(t, err)
}

func TestListOnMissingDirectoryReturnsEmpty(t *testing.T) {
	names, err := List(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRenderConfigProjectsFields(t *testing.T) {
	th := Theme{FontID: 5, LineCompression: 1.2, IndentLevel: 1, SpacingLevel: 2, ParagraphAlignment: domain.AlignJustify, Hyphenation: true, ShowImages: true}
	cfg := th.RenderConfig(800, 600)
	require.Equal(t, uint32(5), cfg.FontID)
	require.Equal(t, uint16(800), cfg.ViewportWidth)
	require.Equal(t, uint16(600), cfg.ViewportHeight)
	require.Equal(t, domain.AlignJustify, cfg.ParagraphAlignment)
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	require.Error(t, Validate(Theme{Name: "x", LineCompression: 0}))
	require.Error(t, Validate(Theme{Name: "x", LineCompression: 1, IndentLevel: 200}))
	require.NoError(t, Validate(Theme{Name: "x", LineCompression: 1, IndentLevel: 1, ParagraphAlignment: domain.AlignLeft}))
}
