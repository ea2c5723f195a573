/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command epdfontbake rasterizes a TTF/OTF font into the device's ".epdfont"
// streaming bitmap font format (internal/epdfont): instead of shipping an
// OpenType rasterizer to the device, every glyph the device will ever need
// is baked to a fixed bitmap ahead of time on a desktop machine.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"papyrix/internal/binfmt"
)

const (
	magic       = 0x46445045 // "EPDF" little-endian, must match internal/epdfont
	fileVersion = 1
	flagIs2Bit  = 1 << 0
)

type glyphRange struct{ lo, hi rune }

type bakedGlyph struct {
	codepoint  rune
	width      uint8
	height     uint8
	advanceX   uint8
	left, top  int16
	dataOffset uint32
	dataLength uint16
}

type interval struct{ first, last, offset uint32 }

func main() {
	fontPath := flag.String("font", "", "input TTF/OTF font file")
	outPath := flag.String("out", "", "output .epdfont path")
	sizePt := flag.Float64("size", 12, "point size to bake at")
	dpi := flag.Float64("dpi", 96, "DPI used when rasterizing")
	rangesFlag := flag.String("ranges", "0x20-0x7E", "comma-separated codepoint ranges, e.g. 0x20-0x7E,0xA0-0xFF")
	bits := flag.Int("bits", 1, "bits per pixel for baked glyph bitmaps: 1 or 2")
	flag.Parse()

	if *fontPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: epdfontbake -font <ttf/otf> -out <path.epdfont> [-size pt] [-dpi n] [-ranges spec] [-bits 1|2]")
		os.Exit(2)
	}
	if *bits != 1 && *bits != 2 {
		fmt.Fprintln(os.Stderr, "epdfontbake: -bits must be 1 or 2")
		os.Exit(2)
	}

	ranges, err := parseRanges(*rangesFlag)
	if err != nil {
		die(err)
	}

	data, err := os.ReadFile(*fontPath)
	if err != nil {
		die(fmt.Errorf("read font: %w", err))
	}
	otf, err := opentype.Parse(data)
	if err != nil {
		die(fmt.Errorf("parse font: %w", err))
	}
	face, err := opentype.NewFace(otf, &opentype.FaceOptions{Size: *sizePt, DPI: *dpi, Hinting: font.HintingFull})
	if err != nil {
		die(fmt.Errorf("build face: %w", err))
	}
	defer face.Close()

	glyphs, bitmap, err := bake(face, ranges, *bits)
	if err != nil {
		die(err)
	}
	if len(glyphs) == 0 {
		die(fmt.Errorf("no glyphs found in requested ranges"))
	}

	out, err := os.Create(*outPath)
	if err != nil {
		die(fmt.Errorf("create output: %w", err))
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	if err := writeFont(w, face.Metrics(), glyphs, bitmap, *bits); err != nil {
		die(fmt.Errorf("write output: %w", err))
	}
	if err := w.Flush(); err != nil {
		die(fmt.Errorf("flush output: %w", err))
	}

	fmt.Printf("epdfontbake: wrote %s (%d glyphs, %d bitmap bytes)\n", *outPath, len(glyphs), len(bitmap))
}

func die(err error) {
	fmt.Fprintln(os.Stderr, "epdfontbake:", err)
	os.Exit(1)
}

// bake rasterizes every codepoint named by ranges that the face can render,
// in ascending codepoint order, concatenating their packed bitmaps into one
// blob as it goes so each glyph's dataOffset is already final.
func bake(face font.Face, ranges []glyphRange, bits int) ([]bakedGlyph, []byte, error) {
	var glyphs []bakedGlyph
	var bitmap []byte

	for _, rg := range ranges {
		for cp := rg.lo; cp <= rg.hi; cp++ {
			dr, mask, maskp, advance, ok := face.Glyph(fixed.Point26_6{}, cp)
			if !ok {
				continue
			}
			w, h := dr.Dx(), dr.Dy()
			if w < 0 || h < 0 || w > 255 || h > 255 {
				return nil, nil, fmt.Errorf("glyph U+%04X bitmap %dx%d exceeds 8-bit dimensions", cp, w, h)
			}
			packed := packMask(mask, dr, maskp, bits)
			glyphs = append(glyphs, bakedGlyph{
				codepoint:  cp,
				width:      uint8(w),
				height:     uint8(h),
				advanceX:   clampAdvance(advance),
				left:       int16(dr.Min.X),
				top:        int16(-dr.Min.Y),
				dataOffset: uint32(len(bitmap)),
				dataLength: uint16(len(packed)),
			})
			bitmap = append(bitmap, packed...)
		}
	}
	sort.Slice(glyphs, func(i, j int) bool { return glyphs[i].codepoint < glyphs[j].codepoint })
	return glyphs, bitmap, nil
}

// packMask quantizes a rasterized glyph mask to 1 or 2 bits per pixel,
// packed MSB-first into byte-aligned rows, matching internal/epdfont's
// 2-bit-aware GetGlyphBitmap consumer.
func packMask(mask image.Image, dr image.Rectangle, maskp image.Point, bits int) []byte {
	w, h := dr.Dx(), dr.Dy()
	if w <= 0 || h <= 0 {
		return nil
	}
	alphaAt := func(x, y int) uint8 {
		_, _, _, a := mask.At(maskp.X+x, maskp.Y+y).RGBA()
		return uint8(a >> 8)
	}

	if bits == 2 {
		rowBytes := (w + 3) / 4
		out := make([]byte, rowBytes*h)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				level := alphaAt(x, y) >> 6 // 0..3
				out[y*rowBytes+x/4] |= level << uint((3-(x%4))*2)
			}
		}
		return out
	}

	rowBytes := (w + 7) / 8
	out := make([]byte, rowBytes*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if alphaAt(x, y) >= 128 {
				out[y*rowBytes+x/8] |= 1 << uint(7-(x%8))
			}
		}
	}
	return out
}

func clampAdvance(a fixed.Int26_6) uint8 {
	px := a.Round()
	switch {
	case px < 0:
		return 0
	case px > 255:
		return 255
	default:
		return uint8(px)
	}
}

// buildIntervals merges ascending, already-sorted glyphs into the minimal
// set of contiguous codepoint intervals internal/epdfont's binary-search
// lookup expects.
func buildIntervals(glyphs []bakedGlyph) []interval {
	var out []interval
	for i, g := range glyphs {
		if len(out) > 0 {
			last := &out[len(out)-1]
			if uint32(g.codepoint) == last.last+1 {
				last.last = uint32(g.codepoint)
				continue
			}
		}
		out = append(out, interval{first: uint32(g.codepoint), last: uint32(g.codepoint), offset: uint32(i)})
	}
	return out
}

// writeFont emits the 34-byte header, interval table, glyph table, and
// bitmap blob in exactly the order internal/epdfont.loadFrom reads them.
func writeFont(w io.Writer, m font.Metrics, glyphs []bakedGlyph, bitmap []byte, bits int) error {
	intervals := buildIntervals(glyphs)

	flags := uint16(0)
	if bits == 2 {
		flags |= flagIs2Bit
	}
	if err := binfmt.WriteU32(w, magic); err != nil {
		return err
	}
	if err := binfmt.WriteU16(w, fileVersion); err != nil {
		return err
	}
	if err := binfmt.WriteU16(w, flags); err != nil {
		return err
	}
	var reserved [8]byte
	if _, err := w.Write(reserved[:]); err != nil {
		return err
	}
	if err := binfmt.WriteU8(w, clampAdvance(m.Height)); err != nil {
		return err
	}
	if err := binfmt.WriteU8(w, 0); err != nil { // padding
		return err
	}
	if err := binfmt.WriteI16(w, int16(m.Ascent.Round())); err != nil {
		return err
	}
	if err := binfmt.WriteI16(w, int16(m.Descent.Round())); err != nil {
		return err
	}
	if err := binfmt.WriteU32(w, uint32(len(intervals))); err != nil {
		return err
	}
	if err := binfmt.WriteU32(w, uint32(len(glyphs))); err != nil {
		return err
	}
	if err := binfmt.WriteU32(w, uint32(len(bitmap))); err != nil {
		return err
	}

	for _, iv := range intervals {
		if err := binfmt.WriteU32(w, iv.first); err != nil {
			return err
		}
		if err := binfmt.WriteU32(w, iv.last); err != nil {
			return err
		}
		if err := binfmt.WriteU32(w, iv.offset); err != nil {
			return err
		}
	}
	for _, g := range glyphs {
		if err := binfmt.WriteU8(w, g.width); err != nil {
			return err
		}
		if err := binfmt.WriteU8(w, g.height); err != nil {
			return err
		}
		if err := binfmt.WriteU8(w, g.advanceX); err != nil {
			return err
		}
		if err := binfmt.WriteU8(w, 0); err != nil { // padding
			return err
		}
		if err := binfmt.WriteI16(w, g.left); err != nil {
			return err
		}
		if err := binfmt.WriteI16(w, g.top); err != nil {
			return err
		}
		if err := binfmt.WriteU16(w, g.dataLength); err != nil {
			return err
		}
		if err := binfmt.WriteU32(w, g.dataOffset); err != nil {
			return err
		}
	}
	_, err := w.Write(bitmap)
	return err
}

func parseRanges(spec string) ([]glyphRange, error) {
	var out []glyphRange
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bounds := strings.SplitN(part, "-", 2)
		lo, err := parseCodepoint(bounds[0])
		if err != nil {
			return nil, err
		}
		hi := lo
		if len(bounds) == 2 {
			if hi, err = parseCodepoint(bounds[1]); err != nil {
				return nil, err
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("range %q has high bound below low bound", part)
		}
		out = append(out, glyphRange{lo: lo, hi: hi})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no codepoint ranges given")
	}
	return out, nil
}

func parseCodepoint(s string) (rune, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	v, err := strconv.ParseInt(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("bad codepoint %q: %w", s, err)
	}
	return rune(v), nil
}
