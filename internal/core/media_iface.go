package core

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// LocalTrack is a locally-captured media track, exclusively owned by the
// session that acquired it. Close releases the capture device.
type LocalTrack interface {
	ID() string
	Kind() domain.TrackKind
	// RTP exposes the underlying track for attachment to a PeerConnection.
	RTP() webrtc.TrackLocal
	Close() error
}

// Publication is one published track; Unpublish detaches it from the
// transport without releasing the track itself.
type Publication interface {
	Track() LocalTrack
	Unpublish() error
}

// MediaTransport is the real-time connection to the media endpoint.
// It does not fetch credentials and never retries on its own.
type MediaTransport interface {
	// Connect dials the credential's endpoint URL and completes the
	// session handshake. Safe to call only from a disconnected state.
	Connect(ctx context.Context, cred domain.Credential) error
	// Publish attaches a local track to the connection.
	Publish(ctx context.Context, track LocalTrack) (Publication, error)
	// Close tears the connection down. Idempotent.
	Close() error
}

// DeviceSource acquires local capture devices. An empty deviceID selects
// the platform default.
type DeviceSource interface {
	Acquire(ctx context.Context, kind domain.TrackKind, deviceID string) (LocalTrack, error)
}
