/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package coverconv

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func gradientImage(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x * 255 / w)})
		}
	}
	return img
}

func TestDitherIdempotent(t *testing.T) {
	img := gradientImage(64, 64)
	a := Dither(img, false)
	b := Dither(img, false)
	require.Equal(t, a.Pix, b.Pix)
}

func TestDitherOneBitTwoLevels(t *testing.T) {
	img := gradientImage(32, 32)
	out := Dither(img, true)
	require.Len(t, out.Palette, 2)
}

func TestConvertToBMPRoundTrip(t *testing.T) {
	img := gradientImage(16, 16)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	bmpBytes, err := ConvertToBMP(&buf, false)
	require.NoError(t, err)
	require.True(t, len(bmpBytes) > 2)
	require.Equal(t, byte('B'), bmpBytes[0])
	require.Equal(t, byte('M'), bmpBytes[1])
}

func TestDecodeRejectsOversize(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, MaxImageWidth+1, 10))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	_, err := Decode(&buf)
	require.Error(t, err)
}
