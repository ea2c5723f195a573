/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package coverconv turns an EPUB's cover image (JPEG or PNG) into the
// device's grayscale BMP cover format: decode via the standard image
// codecs, dither down to the panel's native depth, then encode the result
// as a BMP via github.com/jsummers/gobmp. Replaces the source's hand-rolled
// PngToBmpConverter.cpp, which parsed PNG with pngle and wrote a bespoke
// 1-/2-bit-per-pixel BMP writer by hand; this package keeps its palette and
// bit-depth choices (2-bit 4-level grayscale, or 1-bit when
// use1BitDithering is requested) but leans on real codecs for decode/encode
// instead of a bespoke BMP writer.
package coverconv

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/jsummers/gobmp"

	"papyrix/internal/papyrixerr"
)

// MaxImageWidth and MaxImageHeight cap decoded cover dimensions, mirroring
// the source's MAX_IMAGE_WIDTH/MAX_IMAGE_HEIGHT sanity limits.
const (
	MaxImageWidth  = 2048
	MaxImageHeight = 3072
)

// grayLevels are the four 2-bit gray levels the device's e-ink panel
// distinguishes, in increasing brightness order — matching the source's
// writeBmpHeader2bit palette (0x00, 0x55, 0xAA, 0xFF).
var grayLevels = [4]uint8{0x00, 0x55, 0xAA, 0xFF}

// bayer4x4 is the ordered-dithering threshold matrix used by Dither, holding
// the ranks 0..15; Dither scales each entry to 0..240 (x*256/16) at use.
var bayer4x4 = [4][4]int{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// Decode reads a JPEG or PNG cover image from r and validates it against
// the device's size caps.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, papyrixerr.Wrap(papyrixerr.KindInvalidFormat, err, "coverconv: decode cover image")
	}
	b := img.Bounds()
	if b.Dx() > MaxImageWidth || b.Dy() > MaxImageHeight {
		return nil, papyrixerr.New(papyrixerr.KindInvalidFormat, "coverconv: cover %dx%d exceeds max %dx%d", b.Dx(), b.Dy(), MaxImageWidth, MaxImageHeight)
	}
	return img, nil
}

// Dither converts img to a 2-bit (or, when oneBit is true, 1-bit) grayscale
// image.Paletted using ordered Bayer dithering. Applying Dither twice to the
// same decoded image is idempotent: the threshold matrix is a pure function
// of pixel position and source luminance, so re-dithering an unchanged
// source always produces the same pixel-for-pixel result.
func Dither(img image.Image, oneBit bool) *image.Paletted {
	levels := 4
	if oneBit {
		levels = 2
	}
	b := img.Bounds()
	pal := make(color.Palette, levels)
	for i := 0; i < levels; i++ {
		v := grayLevels[i*(len(grayLevels)-1)/(levels-1)]
		pal[i] = color.Gray{Y: v}
	}
	out := image.NewPaletted(b, pal)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gr := toGray(img.At(x, y))
			threshold := bayer4x4[y%4][x%4] * 256 / 16
			adjusted := int(gr) + threshold - 128
			if adjusted < 0 {
				adjusted = 0
			} else if adjusted > 255 {
				adjusted = 255
			}
			level := adjusted * levels / 256
			if level >= levels {
				level = levels - 1
			}
			out.SetColorIndex(x, y, uint8(level))
		}
	}
	return out
}

// EncodeBMP writes img (already dithered, or any image.Image — gobmp
// handles full-color input too, for the un-dithered preview/thumbnail
// variants) as a BMP to w.
func EncodeBMP(w io.Writer, img image.Image) error {
	if err := gobmp.Encode(w, img); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "coverconv: encode bmp")
	}
	return nil
}

// ConvertToBMP is the end-to-end pipeline: decode, dither, encode.
func ConvertToBMP(src io.Reader, oneBit bool) ([]byte, error) {
	img, err := Decode(src)
	if err != nil {
		return nil, err
	}
	dithered := Dither(img, oneBit)
	var buf bytes.Buffer
	if err := EncodeBMP(&buf, dithered); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toGray(c color.Color) uint8 {
	r, g, b, _ := c.RGBA()
	// Rec. 601 luma, computed from the channels reduced to 8-bit.
	y := (299*uint32(r>>8) + 587*uint32(g>>8) + 114*uint32(b>>8)) / 1000
	return uint8(y)
}
