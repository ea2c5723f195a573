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
	"bytes"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestWriteFrameExactBytes pins spec.md §8's frame invariant: the emitted
// bytes are exactly decimal(len) + the JSON array, with len counting only
// the JSON bytes.
func TestWriteFrameExactBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, OK, map[string]any{"willAccept": true}))

	body, err := json.Marshal([]any{int(OK), map[string]any{"willAccept": true}})
	require.NoError(t, err)
	want := append([]byte(strconv.Itoa(len(body))), body...)
	require.Equal(t, want, buf.Bytes())
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, SendBook, map[string]any{"lpath": "a/b.epub", "length": 42}))

	frame, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	require.Equal(t, SendBook, frame.Opcode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	require.Equal(t, "a/b.epub", payload["lpath"])
	require.EqualValues(t, 42, payload["length"])
}

func TestReadFrameRejectsZeroLength(t *testing.T) {
	_, err := ReadFrame(bufio.NewReader(bytes.NewBufferString("0[]")))
	require.Error(t, err)
}

func TestReadFrameRejectsOverMaxLength(t *testing.T) {
	_, err := ReadFrame(bufio.NewReader(bytes.NewBufferString("99999999999[]")))
	require.Error(t, err)
}

func TestReadFrameRejectsMissingLength(t *testing.T) {
	_, err := ReadFrame(bufio.NewReader(bytes.NewBufferString("[1,{}]")))
	require.Error(t, err)
}

func TestReadFrameRejectsWrongArity(t *testing.T) {
	var buf bytes.Buffer
	data, err := json.Marshal([]any{1})
	require.NoError(t, err)
	buf.WriteString(strconv.Itoa(len(data)))
	buf.Write(data)

	_, err = ReadFrame(bufio.NewReader(&buf))
	require.Error(t, err)
}

func TestIsEmptyPayload(t *testing.T) {
	require.True(t, isEmptyPayload(json.RawMessage(`{}`)))
	require.True(t, isEmptyPayload(json.RawMessage(`  {   }  `)))
	require.False(t, isEmptyPayload(json.RawMessage(`{"count":1}`)))
	require.False(t, isEmptyPayload(json.RawMessage(`{"priKey":5}`)))
}
