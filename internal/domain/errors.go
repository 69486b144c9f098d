package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput rejects blank or oversized user input before any side effect.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable wraps failures of the membership or message store.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUploadFailed means the blob store did not accept a file; no file message exists.
	ErrUploadFailed = errors.New("upload failed")
	// ErrJoinFailed aggregates any failure of the join transition.
	ErrJoinFailed = errors.New("join failed")
	// ErrInvalidState is returned when an operation does not fit the session state.
	ErrInvalidState = errors.New("invalid session state")
	// ErrRateLimited is returned by transports that throttle senders.
	ErrRateLimited = errors.New("rate limited")
	// ErrNotFound is returned by stores for unknown message ids or blobs.
	ErrNotFound = errors.New("not found")
)

var (
	ErrDisplayNameEmpty   = fmt.Errorf("%w: display name empty", ErrInvalidInput)
	ErrDisplayNameTooLong = fmt.Errorf("%w: display name too long", ErrInvalidInput)
	ErrRoomCodeEmpty      = fmt.Errorf("%w: room code empty", ErrInvalidInput)
	ErrRoomCodeTooLong    = fmt.Errorf("%w: room code too long", ErrInvalidInput)
	ErrFileNameEmpty      = fmt.Errorf("%w: file name empty", ErrInvalidInput)
	ErrUnknownKind        = fmt.Errorf("%w: unknown message kind", ErrInvalidInput)
)
