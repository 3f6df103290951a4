/*
 * Copyright 2024 ScopeDB, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package rerun

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error kinds. Use errors.Is to check which kind an error belongs to.
var (
	// ErrConfiguration is returned when conflicting construction parameters are supplied.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport is returned when the connection failed to open or was interrupted mid-stream.
	ErrTransport = errors.New("transport error")
	// ErrEmptyStream is returned when a schema probe produced zero responses.
	ErrEmptyStream = errors.New("empty stream")
	// ErrMissingPayload is returned when a response arrived without encoded data.
	ErrMissingPayload = errors.New("missing payload")
	// ErrDecode is returned when payload bytes do not parse against the wire format.
	ErrDecode = errors.New("decode error")
	// ErrRuntimeScheduling is returned when an Executor could not schedule or join work.
	ErrRuntimeScheduling = errors.New("runtime scheduling error")
)

var kinds = []error{
	ErrConfiguration,
	ErrTransport,
	ErrEmptyStream,
	ErrMissingPayload,
	ErrDecode,
	ErrRuntimeScheduling,
}

// Error is a failure of a schema or scan operation, tagged with its kind.
//
// The collaborator error that caused it (if any) can be accessed via errors.Unwrap.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error
	// Message describes what failed.
	Message string
	// Err is the underlying cause, may be nil.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func newError(kind error, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapError(kind error, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns a short name for the kind of err, or "unknown".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrEmptyStream):
		return "empty_stream"
	case errors.Is(err, ErrMissingPayload):
		return "missing_payload"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrRuntimeScheduling):
		return "runtime_scheduling"
	default:
		return "unknown"
	}
}

// Retryable reports whether err is a transport failure that may succeed on retry.
//
// Only the transport kind is ever retryable; decode and payload errors are final.
func Retryable(err error) bool {
	if !errors.Is(err, ErrTransport) {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// transportError translates an error returned by the streaming collaborator.
// Errors that already carry a kind pass through unchanged.
func transportError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	return wrapError(ErrTransport, msg, err)
}

// decodeError translates an error returned by the wire decoder.
func decodeError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	return wrapError(ErrDecode, msg, err)
}

func isClassified(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// isEndOfStream reports whether err marks the natural end of a stream.
func isEndOfStream(err error) bool {
	return errors.Is(err, io.EOF)
}

// isCanceled reports whether err was caused by the caller giving up on the stream.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || status.Code(err) == codes.Canceled
}
