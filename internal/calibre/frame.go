/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package calibre

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"

	"papyrix/internal/papyrixerr"
)

// Frame is one decoded [opcode, payload] TCP message.
type Frame struct {
	Opcode  Opcode
	Payload json.RawMessage
}

// WriteFrame encodes opcode/payload as the wire's exact
// "<decimal-length>[opcode, payload]" shape and writes it to w.
func WriteFrame(w io.Writer, opcode Opcode, payload any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal([]any{int(opcode), payload})
	if err != nil {
		return papyrixerr.Wrap(papyrixerr.KindJSONParse, err, "calibre: encode opcode %d", opcode)
	}
	prefix := strconv.Itoa(len(data))
	if _, err := io.WriteString(w, prefix); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: write frame length")
	}
	if _, err := w.Write(data); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: write frame body")
	}
	return nil
}

// ReadFrame reads one ascii_decimal_len-prefixed JSON message from r. It
// reads digits until the first non-digit byte, which per the wire format is
// itself the opening '[' of the JSON array and must be retained as part of
// the payload.
func ReadFrame(r *bufio.Reader) (Frame, error) {
	var lenDigits []byte
	var first byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, papyrixerr.Wrap(papyrixerr.KindDisconnected, err, "calibre: read frame length")
		}
		if b < '0' || b > '9' {
			first = b
			break
		}
		lenDigits = append(lenDigits, b)
		if len(lenDigits) > 10 {
			return Frame{}, papyrixerr.New(papyrixerr.KindProtocol, "calibre: frame length digits overflow")
		}
	}
	if len(lenDigits) == 0 {
		return Frame{}, papyrixerr.New(papyrixerr.KindProtocol, "calibre: missing frame length")
	}
	n, err := strconv.Atoi(string(lenDigits))
	if err != nil {
		return Frame{}, papyrixerr.Wrap(papyrixerr.KindProtocol, err, "calibre: malformed frame length")
	}
	if n == 0 || n > MaxMsgLen {
		return Frame{}, papyrixerr.New(papyrixerr.KindProtocol, "calibre: frame length %d out of range", n)
	}

	buf := make([]byte, n)
	buf[0] = first
	if n > 1 {
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return Frame{}, papyrixerr.Wrap(papyrixerr.KindDisconnected, err, "calibre: read frame body")
		}
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(buf, &arr); err != nil {
		return Frame{}, papyrixerr.Wrap(papyrixerr.KindJSONParse, err, "calibre: decode frame")
	}
	if len(arr) != 2 {
		return Frame{}, papyrixerr.New(papyrixerr.KindProtocol, "calibre: frame array has %d elements, want 2", len(arr))
	}
	var opInt int
	if err := json.Unmarshal(arr[0], &opInt); err != nil {
		return Frame{}, papyrixerr.Wrap(papyrixerr.KindJSONParse, err, "calibre: decode opcode")
	}
	if opInt < 0 || opInt > 255 {
		return Frame{}, papyrixerr.New(papyrixerr.KindProtocol, "calibre: opcode %d out of range", opInt)
	}
	return Frame{Opcode: Opcode(opInt), Payload: arr[1]}, nil
}

// isEmptyPayload reports whether raw is JSON "{}" modulo whitespace, the
// shape NOOP uses to distinguish a keep-alive (reply expected) from a
// silent informational ping (no reply).
func isEmptyPayload(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	return len(m) == 0
}
