/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package papyrixerr is the Go-idiomatic replacement for the firmware's C
// error-kind union: a small, closed set of Kind values every core package
// returns through, instead of exceptions.
package papyrixerr

import (
	"errors"
	"fmt"
)

// Kind is a coarse error category shared across the core.
type Kind int

const (
	// I/O kinds.
	KindNotFound Kind = iota
	KindIOError
	KindTimeout
	KindDisconnected

	// Parse kinds.
	KindInvalidFormat
	KindParseFailed
	KindJSONParse
	KindProtocol

	// Resource kinds.
	KindNoMem
	KindBusy
	KindCancelled

	// Logic kinds.
	KindInvalidArg
	KindInvalidState
	KindInvalidOperation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindIOError:
		return "io_error"
	case KindTimeout:
		return "timeout"
	case KindDisconnected:
		return "disconnected"
	case KindInvalidFormat:
		return "invalid_format"
	case KindParseFailed:
		return "parse_failed"
	case KindJSONParse:
		return "json_parse"
	case KindProtocol:
		return "protocol"
	case KindNoMem:
		return "no_mem"
	case KindBusy:
		return "busy"
	case KindCancelled:
		return "cancelled"
	case KindInvalidArg:
		return "invalid_arg"
	case KindInvalidState:
		return "invalid_state"
	case KindInvalidOperation:
		return "invalid_operation"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind plus an optional wrapped cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Kind returns the error's category.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindIOError if err is not
// a *Error (e.g. a raw stdlib error that was never wrapped).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindIOError
}
