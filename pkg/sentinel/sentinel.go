package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the transport layer
// return these (optionally wrapped) so services can translate them into
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record or remote file does not exist
// - ErrConflict: uniqueness constraint would be violated
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: remote endpoint or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
