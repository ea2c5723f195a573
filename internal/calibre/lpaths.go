/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package calibre

import (
	"bytes"
	"strings"
)

// scanLpaths extracts the "lpaths" string array out of a DELETE_BOOK
// payload by bracket scanning rather than a full JSON parse, decoding only
// the \", \\, \/ escapes — kept deliberately byte-oriented rather than
// rewritten onto encoding/json (see DESIGN.md's Open Question resolution).
func scanLpaths(payload []byte) []string {
	key := []byte(`"lpaths"`)
	idx := bytes.Index(payload, key)
	if idx < 0 {
		return nil
	}
	rest := payload[idx+len(key):]

	lb := bytes.IndexByte(rest, '[')
	if lb < 0 {
		return nil
	}
	rb := bytes.IndexByte(rest[lb:], ']')
	if rb < 0 {
		return nil
	}
	arr := rest[lb+1 : lb+rb]

	var out []string
	var cur strings.Builder
	inString := false
	for i := 0; i < len(arr); i++ {
		c := arr[i]
		switch {
		case !inString && c == '"':
			inString = true
		case inString && c == '\\' && i+1 < len(arr):
			switch arr[i+1] {
			case '"':
				cur.WriteByte('"')
				i++
			case '\\':
				cur.WriteByte('\\')
				i++
			case '/':
				cur.WriteByte('/')
				i++
			default:
				cur.WriteByte(c)
			}
		case inString && c == '"':
			inString = false
			out = append(out, cur.String())
			cur.Reset()
		case inString:
			cur.WriteByte(c)
		}
	}
	return out
}
