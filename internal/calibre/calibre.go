/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package calibre implements the device side of the Calibre "Smart Device"
// wireless sync protocol: UDP broadcast discovery, a length-prefixed JSON
// TCP frame codec, and the opcode-driven state machine a connected desktop
// Calibre instance drives. Grounded on the firmware's
// calibre_protocol.c/calibre_network.c/calibre_wireless.c trio, expressed
// with the teacher's internal/backend.Client networking style (context-
// scoped calls, a small typed client struct) adapted from request/response
// HTTP to a persistent framed TCP session.
package calibre

import "time"

// Opcode is the small integer tag every Calibre wire message carries.
type Opcode int

const (
	OK                      Opcode = 0
	SetCalibreDeviceInfo    Opcode = 1
	SetCalibreDeviceName    Opcode = 2
	GetDeviceInformation    Opcode = 3
	TotalSpace              Opcode = 4
	FreeSpace               Opcode = 5
	GetBookCount            Opcode = 6
	SendBooklists           Opcode = 7
	SendBook                Opcode = 8
	GetInitializationInfo   Opcode = 9
	BookDone                Opcode = 11
	Noop                    Opcode = 12
	DeleteBook              Opcode = 13
	GetBookFileSegment      Opcode = 14
	GetBookMetadata         Opcode = 15
	SendBookMetadata        Opcode = 16
	DisplayMessage          Opcode = 17
	CalibreBusy             Opcode = 18
	SetLibraryInfo          Opcode = 19
	ErrorOpcode             Opcode = 20
)

// Wire limits and timing constants (spec.md §6.4/§4.9).
const (
	MaxMsgLen              = 1 << 20 // CALIBRE_MAX_MSG_LEN
	JSONBufSize            = 2048    // CALIBRE_JSON_BUF_SIZE, initial capacity hint
	FileChunkSize          = 4096    // CALIBRE_FILE_CHUNK_SIZE
	MaxPathLen             = 512     // CALIBRE_MAX_PATH_LEN
	MaxBookSize            = 100 * 1024 * 1024
	MaxDiscoveryBroadcasts = 20
	DiscoveryInterval      = 500 * time.Millisecond
	IdleTimeout            = 10 * time.Second
	TransferTimeout        = 30 * time.Second
	DiscoveryBroadcastMsg  = "hello"
	CcVersionNumber        = 128
	CoverHeight            = 240
)

// DiscoveryPorts is the fixed set of UDP ports the device broadcasts
// "hello" to while looking for a desktop Calibre instance.
var DiscoveryPorts = [5]int{54982, 48123, 39001, 44044, 59678}

// State is one node of the session state machine (spec.md §4.9).
type State uint8

const (
	StateIdle State = iota
	StateDiscovery
	StateConnecting
	StateHandshake
	StateConnected
	StateReceivingBook
	StateDisconnecting
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovery:
		return "discovery"
	case StateConnecting:
		return "connecting"
	case StateHandshake:
		return "handshake"
	case StateConnected:
		return "connected"
	case StateReceivingBook:
		return "receiving_book"
	case StateDisconnecting:
		return "disconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DeviceInfo is the small bundle of identity/capacity fields the session
// needs from its host to answer GET_DEVICE_INFORMATION/TOTAL_SPACE/
// FREE_SPACE/GET_INITIALIZATION_INFO without reaching back into config or
// sdcard directly.
type DeviceInfo struct {
	Name               string
	Kind               string
	AcceptedExtensions []string
	FreeSpaceBytes     int64
	TotalSpaceBytes    int64
	PasswordHash       string
}

// BookIncoming is the metadata SEND_BOOK's JSON payload carries ahead of the
// binary body.
type BookIncoming struct {
	Lpath     string
	Length    int64
	Title     string
	Authors   []string
	UUID      string
	CalibreID any
}

// BookSink is the host-provided callback surface a Session drives; it owns
// actual filesystem access so this package stays free of sdcard/epub
// imports.
type BookSink interface {
	// Info returns the device identity/capacity snapshot for this moment.
	Info() DeviceInfo
	// OpenForReceive validates and opens the destination for an incoming
	// book, returning the writer and the final path it writes to.
	OpenForReceive(meta BookIncoming) (WriteCloserPath, error)
	// OnBookReceived is invoked once length bytes have been written
	// successfully.
	OnBookReceived(meta BookIncoming, path string)
	// OnDeleteBook removes one lpath from storage, returning an error only
	// for failures that should NOT count toward DELETE_BOOK's success tally.
	OnDeleteBook(lpath string) error
}

// WriteCloserPath is an io.WriteCloser that also knows the filesystem path
// it is writing to, so the session can delete the partial file on failure.
type WriteCloserPath interface {
	Write(p []byte) (int, error)
	Close() error
	Path() string
	// Abort closes the underlying file and removes it, for a SEND_BOOK
	// transfer that fails or is cancelled partway through (spec.md §4.9:
	// "On any error it closes the file, deletes the partial file, and
	// sets the error state").
	Abort() error
}
