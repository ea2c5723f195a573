/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package calibre

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanLpathsBasic(t *testing.T) {
	raw := []byte(`{"lpaths": ["good.epub", "Fiction/other.epub"]}`)
	require.Equal(t, []string{"good.epub", "Fiction/other.epub"}, scanLpaths(raw))
}

func TestScanLpathsDecodesEscapes(t *testing.T) {
	raw := []byte(`{"lpaths": ["a\\b.epub", "c\/d.epub", "e\"f.epub"]}`)
	require.Equal(t, []string{`a\b.epub`, "c/d.epub", `e"f.epub`}, scanLpaths(raw))
}

func TestScanLpathsMissingKey(t *testing.T) {
	require.Nil(t, scanLpaths([]byte(`{"count": 3}`)))
}

func TestScanLpathsMissingBrackets(t *testing.T) {
	require.Nil(t, scanLpaths([]byte(`{"lpaths": "not-an-array"}`)))
}

func TestHasAcceptedExtension(t *testing.T) {
	accepted := []string{"epub"}
	require.True(t, hasAcceptedExtension("good.epub", accepted))
	require.True(t, hasAcceptedExtension("good.EPUB", accepted))
	require.False(t, hasAcceptedExtension("nope.txt", accepted))
	require.False(t, hasAcceptedExtension("../../etc/passwd", accepted))
	require.False(t, hasAcceptedExtension("noextension", accepted))
}

func TestHasAcceptedExtensionDefaultsWhenUnset(t *testing.T) {
	require.True(t, hasAcceptedExtension("book.epub", nil))
	require.True(t, hasAcceptedExtension("notes.txt", nil))
	require.True(t, hasAcceptedExtension("notes.md", nil))
	require.False(t, hasAcceptedExtension("image.jpg", nil))
}
