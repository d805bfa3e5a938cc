// Package capture implements core.DeviceSource on pion/mediadevices.
// Audio and video are acquired independently so a missing or busy
// microphone never blocks the camera and vice versa.
package capture

import (
	"context"
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

type Source struct {
	selector *mediadevices.CodecSelector
}

// NewSource builds a VP8+Opus capture source.
func NewSource() (*Source, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Source{selector: selector}, nil
}

// PopulateEngine registers the source's codecs on a media engine; the
// transport calls this when assembling its webrtc API.
func (s *Source) PopulateEngine(me *webrtc.MediaEngine) error {
	s.selector.Populate(me)
	return nil
}

// Acquire opens one capture device of the given kind. The two kinds use
// separate GetUserMedia calls on purpose: mediadevices fails a combined
// request as a unit if either device can't be opened.
func (s *Source) Acquire(_ context.Context, kind domain.TrackKind, deviceID string) (core.LocalTrack, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: s.selector}
	switch kind {
	case domain.TrackAudio:
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
		}
	case domain.TrackVideo:
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
			// Raw formats only: some cameras expose MJPEG nodes that
			// poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 1280}
			c.Height = prop.IntRanged{Max: 720}
		}
	default:
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media (%s): %w", kind, err)
	}

	var picked mediadevices.Track
	for _, track := range stream.GetTracks() {
		if matchKind(track.Kind(), kind) && picked == nil {
			picked = track
			continue
		}
		_ = track.Close()
	}
	if picked == nil {
		return nil, fmt.Errorf("no %s track in captured stream", kind)
	}

	picked.OnEnded(func(err error) {
		if err != nil {
			log.Warn().Str("module", "capture").Str("track_id", picked.ID()).Err(err).Msg("local track ended")
		}
	})
	log.Info().Str("module", "capture").Str("kind", string(kind)).Str("track_id", picked.ID()).Msg("device acquired")
	return &localTrack{track: picked, kind: kind}, nil
}

func matchKind(k webrtc.RTPCodecType, want domain.TrackKind) bool {
	switch want {
	case domain.TrackAudio:
		return k == webrtc.RTPCodecTypeAudio
	case domain.TrackVideo:
		return k == webrtc.RTPCodecTypeVideo
	}
	return false
}

type localTrack struct {
	track mediadevices.Track
	kind  domain.TrackKind
}

func (t *localTrack) ID() string             { return t.track.ID() }
func (t *localTrack) Kind() domain.TrackKind { return t.kind }
func (t *localTrack) RTP() webrtc.TrackLocal { return t.track }
func (t *localTrack) Close() error           { return t.track.Close() }

var _ core.DeviceSource = (*Source)(nil)
