// Package session manages the lifecycle of a real-time media-publishing
// session: credential fetch, transport connect, device capture and
// publish, with symmetric teardown.
package session

import (
	"errors"
	"fmt"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// FailureClass tells the caller what kind of thing went wrong so the UI
// can decide between re-auth, retry and giving up. This core never
// retries on its own.
type FailureClass int

const (
	FailureUnknown FailureClass = iota
	// FailureUnauthenticated: no verified identity at credential-fetch time.
	FailureUnauthenticated
	// FailureMalformedCredential: incomplete or invalid token payload.
	// Fatal to the attempt; never retried with the same payload.
	FailureMalformedCredential
	// FailureTransportConnect: the connection could not be established.
	FailureTransportConnect
	// FailureDeviceAcquisition: a capture device could not be opened.
	// Per-track, non-fatal to sibling tracks.
	FailureDeviceAcquisition
	// FailurePublish: a captured track could not be attached. Per-track.
	FailurePublish
	// FailureTeardownPartial: some disconnect step failed; teardown
	// still ran to completion.
	FailureTeardownPartial
)

func (c FailureClass) String() string {
	switch c {
	case FailureUnauthenticated:
		return "unauthenticated"
	case FailureMalformedCredential:
		return "malformed_credential"
	case FailureTransportConnect:
		return "transport_connect"
	case FailureDeviceAcquisition:
		return "device_acquisition"
	case FailurePublish:
		return "publish"
	case FailureTeardownPartial:
		return "teardown_partial"
	}
	return "unknown"
}

// Error is a classified session failure. Track is set for the per-track
// classes so an audio failure can be surfaced as exactly that.
type Error struct {
	Class FailureClass
	Track domain.TrackKind
	Err   error
}

func (e *Error) Error() string {
	if e.Track != "" {
		return fmt.Sprintf("session %s (%s): %v", e.Class, e.Track, e.Err)
	}
	return fmt.Sprintf("session %s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func failf(class FailureClass, format string, args ...any) *Error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}

func trackFail(class FailureClass, kind domain.TrackKind, err error) *Error {
	return &Error{Class: class, Track: kind, Err: err}
}

// Classify extracts the failure class, FailureUnknown when err carries
// none.
func Classify(err error) FailureClass {
	var se *Error
	if errors.As(err, &se) {
		return se.Class
	}
	return FailureUnknown
}
