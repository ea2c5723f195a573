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
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"papyrix/internal/papyrixerr"
	"papyrix/internal/pathkit"
)

// Session drives one connected Calibre TCP conversation end to end: framing,
// opcode dispatch, and the state machine of spec.md §4.9. The protocol
// engine is single-threaded and non-blocking on reads via deadlines, matching
// the firmware's select-driven loop — here realised as per-read
// SetReadDeadline calls instead of a select/epoll loop, since net.Conn
// already gives idiomatic Go the same non-blocking-with-deadline behaviour.
type Session struct {
	conn net.Conn
	r    *bufio.Reader
	log  *slog.Logger
	sink BookSink

	state State
	err   *papyrixerr.Error

	libraryName string
	libraryUUID string
	deviceUUID  string
}

// NewSession wraps a connected TCP socket as a Calibre protocol session.
func NewSession(conn net.Conn, sink BookSink, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		conn:       conn,
		r:          bufio.NewReaderSize(conn, JSONBufSize),
		log:        log,
		sink:       sink,
		state:      StateConnecting,
		deviceUUID: uuid.New().String(),
	}
}

// State returns the session's current state machine node.
func (s *Session) State() State { return s.state }

// LastError returns the preserved (kind, message) pair of the Error sink
// state, or nil outside it.
func (s *Session) LastError() *papyrixerr.Error { return s.err }

// Run processes frames until the connection closes, shouldAbort reports
// true, or a fatal protocol error occurs. Any wire error is treated as
// connection-fatal (spec.md §4.9's failure model): the session transitions
// to StateError and Run returns.
func (s *Session) Run(shouldAbort func() bool) error {
	s.state = StateHandshake
	for {
		if shouldAbort != nil && shouldAbort() {
			s.state = StateDisconnecting
			return papyrixerr.New(papyrixerr.KindCancelled, "calibre: session cancelled")
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		frame, err := ReadFrame(s.r)
		if err != nil {
			if ne, ok := errCause(err).(net.Error); ok && ne.Timeout() {
				continue
			}
			s.fail(papyrixerr.Wrap(papyrixerr.KindDisconnected, err, "calibre: session read"))
			return err
		}
		if err := s.dispatch(frame, shouldAbort); err != nil {
			s.fail(papyrixerr.Wrap(papyrixerr.KindProtocol, err, "calibre: dispatch opcode %d", frame.Opcode))
			return err
		}
	}
}

func errCause(err error) error {
	var e *papyrixerr.Error
	if x, ok := err.(*papyrixerr.Error); ok {
		e = x
		if e.Unwrap() != nil {
			return e.Unwrap()
		}
	}
	return err
}

func (s *Session) fail(err *papyrixerr.Error) {
	s.state = StateError
	s.err = err
	s.log.Error("calibre session failed", "kind", err.Kind(), "err", err)
}

func (s *Session) dispatch(f Frame, shouldAbort func() bool) error {
	if err := validateShape(f.Opcode, f.Payload); err != nil {
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": err.Error()})
	}

	switch f.Opcode {
	case GetInitializationInfo:
		return s.handleHandshake()
	case SetLibraryInfo:
		return s.handleSetLibraryInfo(f.Payload)
	case SetCalibreDeviceInfo, SetCalibreDeviceName:
		return s.reply(OK, map[string]any{})
	case SendBooklists, SendBookMetadata:
		s.log.Debug("calibre: silent opcode, no reply", "opcode", f.Opcode)
		return nil
	case Noop:
		if isEmptyPayload(f.Payload) {
			return s.reply(OK, map[string]any{})
		}
		return nil
	case SendBook:
		return s.handleSendBook(f.Payload, shouldAbort)
	case DeleteBook:
		return s.handleDeleteBook(f.Payload)
	case GetDeviceInformation:
		return s.handleGetDeviceInformation()
	case TotalSpace:
		return s.reply(OK, map[string]any{"total_space_on_device": s.sink.Info().TotalSpaceBytes})
	case FreeSpace:
		return s.reply(OK, map[string]any{"free_space_on_device": s.sink.Info().FreeSpaceBytes})
	case GetBookCount:
		return s.reply(OK, map[string]any{"count": 0, "willStream": true, "willScan": true})
	case GetBookFileSegment, GetBookMetadata:
		s.log.Debug("calibre: opcode not supported by this device profile", "opcode", f.Opcode)
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": "not supported"})
	case DisplayMessage, CalibreBusy:
		return nil
	case BookDone, OK, ErrorOpcode:
		return nil
	default:
		s.log.Warn("calibre: unknown opcode", "opcode", f.Opcode)
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": "unknown opcode"})
	}
}

func (s *Session) reply(opcode Opcode, payload any) error {
	return WriteFrame(s.conn, opcode, payload)
}

func (s *Session) handleHandshake() error {
	info := s.sink.Info()
	payload := map[string]any{
		"appName":            "Papyrix",
		"acceptedExtensions": info.AcceptedExtensions,
		"cacheUsesLpaths":     true,
		"canAcceptLibraryInfo":   true,
		"canDeleteMultipleBooks": true,
		"canReceiveBookBinary":   true,
		"canSendOkToSendbook":    true,
		"canStreamBooks":         true,
		"canStreamMetadata":      true,
		"canUseCachedMetadata":   true,
		"ccVersionNumber":     CcVersionNumber,
		"coverHeight":         CoverHeight,
		"deviceKind":          info.Kind,
		"deviceName":          info.Name,
		"extensionPathLengths": map[string]any{},
		"maxBookContentPacketLen": FileChunkSize,
		"passwordHash":        info.PasswordHash,
		"useUuidFileNames":    false,
		"versionOK":           true,
		"device_store_uuid":   s.deviceUUID,
	}
	if err := s.reply(OK, payload); err != nil {
		return err
	}
	s.state = StateConnected
	return nil
}

func (s *Session) handleSetLibraryInfo(raw json.RawMessage) error {
	var body struct {
		LibraryName string `json:"libraryName"`
		LibraryUUID string `json:"libraryUuid"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": "bad SET_LIBRARY_INFO payload"})
	}
	s.libraryName = body.LibraryName
	s.libraryUUID = body.LibraryUUID
	return s.reply(OK, map[string]any{})
}

func (s *Session) handleGetDeviceInformation() error {
	info := s.sink.Info()
	return s.reply(OK, map[string]any{
		"device_info": map[string]any{
			"device_store_uuid": s.deviceUUID,
			"device_name":       info.Name,
		},
		"version": 1,
	})
}

func (s *Session) handleSendBook(raw json.RawMessage, shouldAbort func() bool) error {
	var body struct {
		Lpath     string   `json:"lpath"`
		Length    int64    `json:"length"`
		Title     string   `json:"title"`
		Authors   []string `json:"authors"`
		UUID      string   `json:"uuid"`
		CalibreID any      `json:"calibre_id"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": "bad SEND_BOOK payload"})
	}

	info := s.sink.Info()
	if msg, ok := validateLpath(body.Lpath, info.AcceptedExtensions); !ok {
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": msg})
	}
	if body.Length <= 0 || body.Length > MaxBookSize {
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": "length out of range"})
	}

	meta := BookIncoming{
		Lpath: body.Lpath, Length: body.Length, Title: body.Title,
		Authors: body.Authors, UUID: body.UUID, CalibreID: body.CalibreID,
	}
	w, err := s.sink.OpenForReceive(meta)
	if err != nil {
		return s.reply(ErrorOpcode, map[string]any{"errorMessage": err.Error()})
	}
	if err := s.reply(OK, map[string]any{"willAccept": true}); err != nil {
		if aerr := w.Abort(); aerr != nil {
			s.log.Warn("calibre: failed to remove partial book", "path", w.Path(), "err", aerr)
		}
		return err
	}

	s.state = StateReceivingBook
	err = s.receiveBook(w, meta, shouldAbort)
	s.state = StateConnected
	return err
}

// validateLpath applies spec.md §4.9's SEND_BOOK validation rules.
func validateLpath(lpath string, accepted []string) (string, bool) {
	if !pathkit.IsSafeRelative(lpath) {
		return "lpath must be a non-empty relative path with no ..", false
	}
	if len(lpath) >= MaxPathLen {
		return "lpath too long", false
	}
	if !hasAcceptedExtension(lpath, accepted) {
		return "unsupported extension: " + pathkit.Ext(lpath), false
	}
	return "", true
}

// receiveBook implements the tight receive loop: exactly meta.Length bytes
// in CALIBRE_FILE_CHUNK_SIZE chunks, with the idle timeout raised to
// TransferTimeout for the duration and restored afterward. Critically, no
// BOOK_DONE reply is sent on completion — Calibre's desktop does not expect
// one and a stray reply would desynchronise the next request/response.
func (s *Session) receiveBook(w WriteCloserPath, meta BookIncoming, shouldAbort func() bool) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(TransferTimeout))
	defer func() { _ = s.conn.SetReadDeadline(time.Now().Add(IdleTimeout)) }()

	buf := make([]byte, FileChunkSize)
	var received int64
	for received < meta.Length {
		want := int64(FileChunkSize)
		if remaining := meta.Length - received; remaining < want {
			want = remaining
		}
		n, err := io.ReadFull(s.r, buf[:want])
		if err != nil {
			if aerr := w.Abort(); aerr != nil {
				s.log.Warn("calibre: failed to remove partial book", "path", w.Path(), "err", aerr)
			}
			return papyrixerr.Wrap(papyrixerr.KindDisconnected, err, "calibre: send_book read at %d/%d", received, meta.Length)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			if aerr := w.Abort(); aerr != nil {
				s.log.Warn("calibre: failed to remove partial book", "path", w.Path(), "err", aerr)
			}
			return papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: send_book write")
		}
		received += int64(n)
		if shouldAbort != nil && shouldAbort() {
			if aerr := w.Abort(); aerr != nil {
				s.log.Warn("calibre: failed to remove partial book", "path", w.Path(), "err", aerr)
			}
			return papyrixerr.New(papyrixerr.KindCancelled, "calibre: send_book cancelled at %d/%d", received, meta.Length)
		}
	}
	path := w.Path()
	if err := w.Close(); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "calibre: close received book")
	}
	s.sink.OnBookReceived(meta, path)
	return nil
}

func (s *Session) handleDeleteBook(raw json.RawMessage) error {
	accepted := s.sink.Info().AcceptedExtensions
	paths := scanLpaths(raw)
	count := 0
	for _, p := range paths {
		if !hasAcceptedExtension(p, accepted) {
			continue
		}
		if err := s.sink.OnDeleteBook(p); err == nil {
			count++
		} else {
			s.log.Warn("calibre: delete_book failed", "lpath", p, "err", err)
		}
	}
	return s.reply(OK, map[string]any{"count": count})
}

// hasAcceptedExtension mirrors the firmware's has_valid_book_extension: a
// DELETE_BOOK path is only eligible for the callback if its extension is
// one of the device's configured book extensions (case-insensitive), the
// same set SEND_BOOK validates lpaths against via validateLpath.
func hasAcceptedExtension(lpath string, accepted []string) bool {
	ext := pathkit.Ext(lpath)
	if ext == "" {
		return false
	}
	if len(accepted) == 0 {
		accepted = []string{"epub", "txt", "md"}
	}
	for _, a := range accepted {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
