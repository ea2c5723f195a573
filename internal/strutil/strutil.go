/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package strutil holds the small set of UTF-8-safe string helpers the EPUB
// and TOC readers need: boundary-safe truncation and NFC normalisation.
package strutil

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// FindUTF8Boundary walks back from maxLen to the last complete multibyte
// start and returns a byte count that never splits a codepoint. Safe to call
// with maxLen >= len(s) (returns len(s)).
func FindUTF8Boundary(s string, maxLen int) int {
	if maxLen >= len(s) {
		return len(s)
	}
	if maxLen <= 0 {
		return 0
	}
	n := maxLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

// TruncateUTF8 truncates s to at most maxLen bytes on a valid UTF-8 boundary.
func TruncateUTF8(s string, maxLen int) string {
	return s[:FindUTF8Boundary(s, maxLen)]
}

// NormalizeNFC applies Unicode NFC normalisation, used on TOC titles and
// book metadata strings before they are persisted to book.bin.
func NormalizeNFC(s string) string {
	return norm.NFC.String(s)
}

// NormalizeAndTruncate composes NormalizeNFC then TruncateUTF8, the exact
// pipeline book.bin metadata strings go through before being written.
func NormalizeAndTruncate(s string, maxLen int) string {
	return TruncateUTF8(NormalizeNFC(s), maxLen)
}
