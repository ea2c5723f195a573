/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package binfmt provides the little-endian primitive read/write helpers
// every custom on-disk format in this repository (.epdfont, book.bin,
// PageCache) is built from. It is the Go equivalent of the firmware's
// Serialization.h: writePod/readPod for fixed-size values, writeString/
// readString for length-prefixed UTF-8 strings.
package binfmt

import (
	"encoding/binary"
	"io"
	"math"

	"papyrix/internal/papyrixerr"
)

// MaxStringLen caps a single length-prefixed string to defend against a
// corrupted length prefix driving an enormous allocation.
const MaxStringLen = 1 << 20 // 1 MiB

// WriteU8 writes a single byte.
func WriteU8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// WriteU16 writes a little-endian uint16.
func WriteU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteI16 writes a little-endian int16.
func WriteI16(w io.Writer, v int16) error { return WriteU16(w, uint16(v)) }

// WriteU32 writes a little-endian uint32.
func WriteU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// WriteI32 writes a little-endian int32.
func WriteI32(w io.Writer, v int32) error { return WriteU32(w, uint32(v)) }

// WriteF32 writes a little-endian IEEE-754 float32.
func WriteF32(w io.Writer, v float32) error {
	return WriteU32(w, math.Float32bits(v))
}

// WriteString writes a u32 byte-length prefix followed by raw UTF-8 bytes.
func WriteString(w io.Writer, s string) error {
	if err := WriteU32(w, uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := io.WriteString(w, s)
	return err
}

// ReadU8 reads a single byte.
func ReadU8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadU16 reads a little-endian uint16.
func ReadU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

// ReadI16 reads a little-endian int16.
func ReadI16(r io.Reader) (int16, error) {
	v, err := ReadU16(r)
	return int16(v), err
}

// ReadU32 reads a little-endian uint32.
func ReadU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadI32 reads a little-endian int32.
func ReadI32(r io.Reader) (int32, error) {
	v, err := ReadU32(r)
	return int32(v), err
}

// ReadF32 reads a little-endian IEEE-754 float32.
func ReadF32(r io.Reader) (float32, error) {
	v, err := ReadU32(r)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// WriteFixedString writes s into a fixed-width n-byte field: the string is
// truncated to n-1 bytes (leaving room for a NUL terminator) if longer, and
// the remainder of the field is zero-padded. This is the fixed-size
// char[n]-field shape the persisted settings blob uses, as opposed to
// WriteString's length-prefixed variant used by book.bin/PageCache.
func WriteFixedString(w io.Writer, s string, n int) error {
	buf := make([]byte, n)
	if len(s) > n-1 {
		s = s[:n-1]
	}
	copy(buf, s)
	_, err := w.Write(buf)
	return err
}

// ReadFixedString reads an n-byte fixed-width field and returns the string
// up to its first NUL byte (or the full field if unterminated).
func ReadFixedString(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if i := indexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// ReadString reads a u32 length prefix followed by that many raw bytes.
// A length exceeding MaxStringLen is treated as corruption, matching the
// source's "checked" read variants that return failure instead of
// over-allocating on a garbled header.
func ReadString(r io.Reader) (string, error) {
	n, err := ReadU32(r)
	if err != nil {
		return "", err
	}
	if n > MaxStringLen {
		return "", papyrixerr.New(papyrixerr.KindInvalidFormat, "binfmt: string length %d exceeds max %d", n, MaxStringLen)
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
