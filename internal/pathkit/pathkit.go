/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package pathkit normalises and validates the relative paths used inside
// EPUB archives and as Calibre lpaths. Normalisation is idempotent:
// Normalize(Normalize(p)) == Normalize(p).
package pathkit

import "strings"

// Normalize collapses "." and ".." segments and duplicate slashes in a
// forward-slash path, without touching the filesystem. It never escapes
// above the root: leading ".." segments are dropped.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	return strings.Join(stack, "/")
}

// IsSafeRelative reports whether p is a non-empty, non-absolute path with no
// ".." segment anywhere — the validation Calibre's SEND_BOOK/DELETE_BOOK
// lpath handling requires before touching the filesystem.
func IsSafeRelative(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasPrefix(p, "/") || strings.HasPrefix(p, "\\") {
		return false
	}
	for _, part := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

// Ext returns the lowercase file extension of p (without the leading dot),
// or "" if p has none.
func Ext(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i < 0 || i == len(p)-1 {
		return ""
	}
	slash := strings.LastIndexByte(p, '/')
	if slash > i {
		return ""
	}
	return strings.ToLower(p[i+1:])
}
