/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package zipkit

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReadAllAndStream(t *testing.T) {
	data := buildZip(t, map[string]string{
		"mimetype":          "application/epub+zip",
		"OEBPS/content.opf": "<package/>",
		"OEBPS/ch01.xhtml":  strings.Repeat("x", 4096),
	})
	r, err := OpenBytes(data)
	require.NoError(t, err)
	defer r.Close()

	require.True(t, r.Has("OEBPS/content.opf"))
	require.False(t, r.Has("missing"))

	b, err := r.ReadAll("OEBPS/content.opf", false)
	require.NoError(t, err)
	require.Equal(t, "<package/>", string(b))

	b2, err := r.ReadAll("OEBPS/content.opf", true)
	require.NoError(t, err)
	require.Equal(t, byte(0), b2[len(b2)-1])

	var out bytes.Buffer
	n, err := r.StreamTo("OEBPS/ch01.xhtml", &out)
	require.NoError(t, err)
	require.EqualValues(t, 4096, n)
	require.Equal(t, 4096, out.Len())

	size, err := r.UncompressedSize("OEBPS/ch01.xhtml")
	require.NoError(t, err)
	require.EqualValues(t, 4096, size)
}

func TestFillSizes(t *testing.T) {
	data := buildZip(t, map[string]string{
		"a": "aa",
		"b": "bbbb",
		"c": "cccccc",
	})
	r, err := OpenBytes(data)
	require.NoError(t, err)
	defer r.Close()

	sizes, err := r.FillSizes([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.EqualValues(t, 2, sizes["a"])
	require.EqualValues(t, 4, sizes["b"])
	require.EqualValues(t, 6, sizes["c"])

	_, err = r.FillSizes([]string{"missing"})
	require.Error(t, err)
}

func TestShouldBatch(t *testing.T) {
	require.False(t, ShouldBatch(399))
	require.True(t, ShouldBatch(400))
}
