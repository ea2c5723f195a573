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
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeWriter is a WriteCloserPath double that records what a real
// *os.File-backed receiver would do, without touching disk.
type fakeWriter struct {
	path    string
	buf     bytes.Buffer
	closed  bool
	aborted bool
}

func (w *fakeWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }
func (w *fakeWriter) Close() error                { w.closed = true; return nil }
func (w *fakeWriter) Path() string                { return w.path }
func (w *fakeWriter) Abort() error                { w.aborted = true; w.closed = true; return nil }

type receivedCall struct {
	meta BookIncoming
	path string
}

// fakeSink is a BookSink double driving the session through SEND_BOOK and
// DELETE_BOOK without a real sdcard/epub dependency.
type fakeSink struct {
	info      DeviceInfo
	openErr   error
	writer    *fakeWriter
	received  []receivedCall
	deleted   []string
	deleteErr map[string]error
}

func newFakeSink(info DeviceInfo) *fakeSink { return &fakeSink{info: info} }

func (s *fakeSink) Info() DeviceInfo { return s.info }

func (s *fakeSink) OpenForReceive(meta BookIncoming) (WriteCloserPath, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.writer = &fakeWriter{path: meta.Lpath}
	return s.writer, nil
}

func (s *fakeSink) OnBookReceived(meta BookIncoming, path string) {
	s.received = append(s.received, receivedCall{meta: meta, path: path})
}

func (s *fakeSink) OnDeleteBook(lpath string) error {
	s.deleted = append(s.deleted, lpath)
	if err, ok := s.deleteErr[lpath]; ok {
		return err
	}
	return nil
}

// TestSendBookByteExactReceptionNoBookDone is spec.md §8 scenario 5: the
// device replies OK({"willAccept":true}), reads exactly length bytes to
// disk byte-for-byte, invokes OnBookReceived, and sends nothing further —
// in particular no BOOK_DONE.
func TestSendBookByteExactReceptionNoBookDone(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sink := newFakeSink(DeviceInfo{AcceptedExtensions: []string{"epub"}})
	session := NewSession(server, sink, nil)

	body := make([]byte, 9000)
	for i := range body {
		body[i] = byte(i % 251)
	}

	type clientResult struct {
		okPayload map[string]any
		err       error
	}
	resultCh := make(chan clientResult, 1)

	go func() {
		var res clientResult
		defer func() { resultCh <- res }()

		if res.err = WriteFrame(client, SendBook, map[string]any{
			"lpath": "Fiction/book.epub", "length": len(body),
		}); res.err != nil {
			return
		}

		cr := bufio.NewReader(client)
		frame, err := ReadFrame(cr)
		if err != nil {
			res.err = err
			return
		}
		if frame.Opcode != OK {
			res.err = errors.New("expected OK reply before binary body")
			return
		}
		if err := json.Unmarshal(frame.Payload, &res.okPayload); err != nil {
			res.err = err
			return
		}

		if _, err := client.Write(body); err != nil {
			res.err = err
			return
		}

		// Confirm no further frame (BOOK_DONE or otherwise) follows the body.
		_ = client.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
		trailing := make([]byte, 1)
		n, err := cr.Read(trailing)
		if n > 0 {
			res.err = errors.New("unexpected byte received after book body")
			return
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return
		}
		if errors.Is(err, io.EOF) {
			return
		}
		res.err = err
	}()

	frame, err := ReadFrame(session.r)
	require.NoError(t, err)
	require.Equal(t, SendBook, frame.Opcode)

	require.NoError(t, session.dispatch(frame, nil))

	res := <-resultCh
	require.NoError(t, res.err)
	require.Equal(t, true, res.okPayload["willAccept"])

	require.Len(t, sink.received, 1)
	require.Equal(t, "Fiction/book.epub", sink.received[0].meta.Lpath)
	require.Equal(t, body, sink.writer.buf.Bytes())
	require.True(t, sink.writer.closed)
	require.False(t, sink.writer.aborted)
}

// TestSendBookRejectsUnacceptedExtension exercises spec.md §8's SEND_BOOK
// boundary behaviours for an lpath whose extension the device does not
// accept: it must be rejected with ERROR and no file opened.
func TestSendBookRejectsUnacceptedExtension(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sink := newFakeSink(DeviceInfo{AcceptedExtensions: []string{"epub"}})
	session := NewSession(server, sink, nil)

	replyCh := make(chan Frame, 1)
	go func() {
		_ = WriteFrame(client, SendBook, map[string]any{"lpath": "notes.txt", "length": 10})
		frame, err := ReadFrame(bufio.NewReader(client))
		if err == nil {
			replyCh <- frame
		}
	}()

	frame, err := ReadFrame(session.r)
	require.NoError(t, err)
	require.NoError(t, session.dispatch(frame, nil))

	select {
	case reply := <-replyCh:
		require.Equal(t, ErrorOpcode, reply.Opcode)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ERROR reply")
	}
	require.Nil(t, sink.writer)
}

// TestSendBookAbortsPartialFileOnDisconnect pins the fix for leaving a
// truncated book on disk: a dropped connection mid-transfer must remove
// the partial file, not just close it (spec.md §4.9).
func TestSendBookAbortsPartialFileOnDisconnect(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	sink := newFakeSink(DeviceInfo{AcceptedExtensions: []string{"epub"}})
	session := NewSession(server, sink, nil)

	go func() {
		_ = WriteFrame(client, SendBook, map[string]any{"lpath": "a.epub", "length": 5000})
		_, _ = ReadFrame(bufio.NewReader(client))
		_, _ = client.Write(make([]byte, 1000))
		client.Close()
	}()

	frame, err := ReadFrame(session.r)
	require.NoError(t, err)

	err = session.dispatch(frame, nil)
	require.Error(t, err)

	require.NotNil(t, sink.writer)
	require.True(t, sink.writer.aborted)
	require.True(t, sink.writer.closed)
	require.Empty(t, sink.received)
}

// TestSendBookAbortsOnCancellation covers the shouldAbort path of
// receiveBook: cancelling mid-transfer must also remove the partial file.
func TestSendBookAbortsOnCancellation(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sink := newFakeSink(DeviceInfo{AcceptedExtensions: []string{"epub"}})
	session := NewSession(server, sink, nil)

	go func() {
		_ = WriteFrame(client, SendBook, map[string]any{"lpath": "a.epub", "length": 5000})
		_, _ = ReadFrame(bufio.NewReader(client))
		_, _ = client.Write(make([]byte, 4096))
	}()

	frame, err := ReadFrame(session.r)
	require.NoError(t, err)

	abort := func() bool { return true }

	err = session.dispatch(frame, abort)
	require.Error(t, err)
	require.True(t, sink.writer.aborted)
}

// TestHandleDeleteBookPathSafety is spec.md §8 scenario 6: of three lpaths
// only the one with an accepted extension and no path traversal is deleted.
func TestHandleDeleteBookPathSafety(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sink := newFakeSink(DeviceInfo{AcceptedExtensions: []string{"epub"}})
	session := NewSession(server, sink, nil)

	payload, err := json.Marshal(map[string]any{
		"lpaths": []string{"good.epub", "../../etc/passwd", "nope.txt"},
	})
	require.NoError(t, err)

	frameCh := make(chan Frame, 1)
	errCh := make(chan error, 1)
	go func() {
		frame, err := ReadFrame(bufio.NewReader(client))
		if err != nil {
			errCh <- err
			return
		}
		frameCh <- frame
	}()

	require.NoError(t, session.handleDeleteBook(payload))

	select {
	case frame := <-frameCh:
		require.Equal(t, OK, frame.Opcode)
		var body map[string]any
		require.NoError(t, json.Unmarshal(frame.Payload, &body))
		require.EqualValues(t, 1, body["count"])
	case err := <-errCh:
		t.Fatalf("read reply frame: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for DELETE_BOOK reply")
	}

	require.Equal(t, []string{"good.epub"}, sink.deleted)
}
