/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package theme manages named bundles of render defaults ("themes") the
// persisted settings blob selects by name at boot. Adapted from the
// teacher's internal/stylepack package, which manages named bundles of a
// comic project's visual style files as installable/exportable packs; here
// a theme has no files of its own (just render-config fields), so the
// zip-archive plumbing collapses to one YAML document per theme directory
// entry, but the open-directory/validate-before-install shape is kept.
package theme

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"papyrix/internal/domain"
	"papyrix/internal/papyrixerr"
)

// Theme bundles the render configuration fields of a PageCache's
// RenderConfig plus a display name, the unit the persisted settings'
// "theme name" field selects.
type Theme struct {
	Name               string            `yaml:"name"`
	FontID             uint32            `yaml:"fontId"`
	LineCompression    float32           `yaml:"lineCompression"`
	IndentLevel        uint8             `yaml:"indentLevel"`
	SpacingLevel       uint8             `yaml:"spacingLevel"`
	ParagraphAlignment domain.Alignment  `yaml:"paragraphAlignment"`
	Hyphenation        bool              `yaml:"hyphenation"`
	ShowImages         bool              `yaml:"showImages"`
}

// RenderConfig projects a Theme onto a domain.RenderConfig for the given
// viewport, the shape PageCache.Load/Create validate against.
func (t Theme) RenderConfig(viewportWidth, viewportHeight uint16) domain.RenderConfig {
	return domain.RenderConfig{
		FontID:             t.FontID,
		LineCompression:    t.LineCompression,
		IndentLevel:        t.IndentLevel,
		SpacingLevel:       t.SpacingLevel,
		ParagraphAlignment: t.ParagraphAlignment,
		Hyphenation:        t.Hyphenation,
		ShowImages:         t.ShowImages,
		ViewportWidth:      viewportWidth,
		ViewportHeight:     viewportHeight,
	}
}

// Builtins returns the small set of themes every device ships with,
// installed into a fresh themes directory by EnsureBuiltins.
func Builtins() []Theme {
	return []Theme{
		{Name: "default", FontID: 0, LineCompression: 1.0, IndentLevel: 1, SpacingLevel: 1, ParagraphAlignment: domain.AlignLeft, Hyphenation: true, ShowImages: true},
		{Name: "compact", FontID: 0, LineCompression: 0.85, IndentLevel: 0, SpacingLevel: 0, ParagraphAlignment: domain.AlignJustify, Hyphenation: true, ShowImages: false},
		{Name: "large-print", FontID: 0, LineCompression: 1.3, IndentLevel: 2, SpacingLevel: 2, ParagraphAlignment: domain.AlignLeft, Hyphenation: false, ShowImages: true},
	}
}

func fileFor(dir, name string) string {
	return filepath.Join(dir, strings.ToLower(name)+".yaml")
}

// EnsureBuiltins installs every Builtins() theme into dir that isn't
// already present — existing files are never overwritten, matching
// stylepack.InstallPack's skip-existing behaviour.
func EnsureBuiltins(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "theme: ensure dir %s", dir)
	}
	for _, t := range Builtins() {
		path := fileFor(dir, t.Name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := Save(dir, t); err != nil {
			return err
		}
	}
	return nil
}

// Save writes t as "<dir>/<name>.yaml", overwriting any existing file for
// that name.
func Save(dir string, t Theme) error {
	if strings.TrimSpace(t.Name) == "" {
		return papyrixerr.New(papyrixerr.KindInvalidArg, "theme: name is required")
	}
	data, err := yaml.Marshal(t)
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "theme: marshal %s", t.Name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "theme: ensure dir %s", dir)
	}
	if err := os.WriteFile(fileFor(dir, t.Name), data, 0o644); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "theme: write %s", t.Name)
	}
	return nil
}

// Load reads the theme named name from dir.
func Load(dir, name string) (Theme, error) {
	path := fileFor(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Theme{}, papyrixerr.New(papyrixerr.KindNotFound, "theme: %s not found in %s", name, dir)
		}
		return Theme{}, papyrixerr.Wrap(papyrixerr.KindIOError, err, "theme: read %s", path)
	}
	var t Theme
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Theme{}, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "theme: parse %s", path)
	}
	return t, nil
}

// List returns the names of every theme file in dir, sorted.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, papyrixerr.Wrap(papyrixerr.KindIOError, err, "theme: list %s", dir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

// Validate reports a descriptive error if t's fields are out of the ranges
// PageCache/RenderConfig require.
func Validate(t Theme) error {
	if strings.TrimSpace(t.Name) == "" {
		return papyrixerr.New(papyrixerr.KindInvalidArg, "theme: name is required")
	}
	if t.LineCompression <= 0 || t.LineCompression > 4 {
		return papyrixerr.New(papyrixerr.KindInvalidArg, "theme %s: lineCompression %v out of range", t.Name, t.LineCompression)
	}
	if t.IndentLevel > 10 {
		return papyrixerr.New(papyrixerr.KindInvalidArg, "theme %s: indentLevel %d out of range", t.Name, t.IndentLevel)
	}
	if t.ParagraphAlignment > domain.AlignJustify {
		return fmt.Errorf("theme %s: invalid paragraphAlignment %d", t.Name, t.ParagraphAlignment)
	}
	return nil
}
