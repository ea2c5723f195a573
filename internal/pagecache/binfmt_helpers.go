/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package pagecache

import (
	"io"

	"papyrix/internal/binfmt"
)

func writeU8(w io.Writer, v uint8) error   { return binfmt.WriteU8(w, v) }
func writeU16(w io.Writer, v uint16) error { return binfmt.WriteU16(w, v) }
func writeU32(w io.Writer, v uint32) error { return binfmt.WriteU32(w, v) }
func writeF32(w io.Writer, v float32) error { return binfmt.WriteF32(w, v) }

func readU8(r io.Reader) (uint8, error)   { return binfmt.ReadU8(r) }
func readU16(r io.Reader) (uint16, error) { return binfmt.ReadU16(r) }
func readU32(r io.Reader) (uint32, error) { return binfmt.ReadU32(r) }
func readF32(r io.Reader) (float32, error) { return binfmt.ReadF32(r) }

func writeBool(w io.Writer, v bool) error {
	if v {
		return writeU8(w, 1)
	}
	return writeU8(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	v, err := readU8(r)
	if err != nil {
		return false, err
	}
	return v != 0, nil
}
