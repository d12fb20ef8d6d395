package domain

import "errors"

// Failure taxonomy for pipeline stages. Every stage operation resolves to
// success or exactly one of these kinds; handlers map each kind to a fixed
// status class regardless of the storage backend in use.
var (
	// ErrNotFound means a required artifact is absent from storage.
	ErrNotFound = errors.New("artifact not found")
	// ErrStorageUnavailable means storage could not be reached or a
	// transfer failed at the transport level.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrValidation means the input was malformed or empty before or at
	// compute time.
	ErrValidation = errors.New("validation failed")
	// ErrSerialization means artifact bytes exist but cannot be decoded.
	ErrSerialization = errors.New("artifact unreadable")
	// ErrCompute means inference, analysis or rendering failed during
	// processing.
	ErrCompute = errors.New("compute failed")
	// ErrBusy means another stage is already running for the same video.
	ErrBusy = errors.New("video busy")
)
