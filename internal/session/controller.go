package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// Controller is the explicit state machine for one media session:
//
//	Idle -> Connecting -> Connected -> Publishing -> Disconnecting -> Idle
//
// Connect/Publish/Disconnect are idempotent and guarded by state, not by
// caller discipline: redundant calls from a button, an auto-start effect
// and a shutdown hook never double-connect or double-release. Every
// track acquired for the session is released before Disconnect returns.
type Controller struct {
	mu sync.Mutex

	issuer    core.TokenIssuer
	transport core.MediaTransport
	devices   core.DeviceSource

	req core.TokenRequest
	sel domain.DeviceSelection

	state  domain.SessionState
	cred   domain.Credential
	tracks map[string]core.LocalTrack
	pubs   map[string]core.Publication

	publishInFlight bool
}

func NewController(issuer core.TokenIssuer, transport core.MediaTransport, devices core.DeviceSource, req core.TokenRequest, sel domain.DeviceSelection) *Controller {
	return &Controller{
		issuer:    issuer,
		transport: transport,
		devices:   devices,
		req:       req,
		sel:       sel,
		state:     domain.SessionIdle,
		tracks:    make(map[string]core.LocalTrack),
		pubs:      make(map[string]core.Publication),
	}
}

func (c *Controller) State() domain.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Room is the room this session was opened for.
func (c *Controller) Room() domain.RoomID { return c.req.Room }

// TrackCount reports how many capture tracks the session currently owns.
func (c *Controller) TrackCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tracks)
}

// Connect fetches a fresh credential and opens the transport. Calling it
// while the session is already active is a no-op. A failed attempt ends
// in Failed with a classified error; reconnecting is the caller's call.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Active() {
		c.mu.Unlock()
		return nil
	}
	if c.state == domain.SessionDisconnecting {
		c.mu.Unlock()
		return failf(FailureTransportConnect, "session is disconnecting")
	}
	c.state = domain.SessionConnecting
	c.mu.Unlock()

	cred, err := c.issuer.Issue(ctx, c.req)
	if err != nil {
		c.fail(err)
		return err
	}

	if err := c.transport.Connect(ctx, cred); err != nil {
		var se *Error
		if !errors.As(err, &se) {
			err = failf(FailureTransportConnect, "transport connect: %v", err)
		}
		c.fail(err)
		return err
	}

	c.mu.Lock()
	if c.state != domain.SessionConnecting {
		// Disconnect raced the handshake; do not resurrect.
		c.mu.Unlock()
		_ = c.transport.Close()
		return nil
	}
	c.state = domain.SessionConnected
	c.cred = cred
	c.mu.Unlock()

	log.Info().Str("module", "session").Str("room", string(c.req.Room)).Msg("session connected")
	return nil
}

// PublishReport tells the caller per-track how Publish went. Failures
// are independent: a dead microphone never blocks the camera.
type PublishReport struct {
	Published []domain.TrackKind
	Failures  []*Error
}

// Ok reports whether at least one track made it out.
func (r *PublishReport) Ok() bool { return len(r.Published) > 0 }

// Publish acquires audio and video capture devices concurrently and
// attaches every successfully-acquired track to the transport. The
// session must be Connected. With at least one published track the state
// becomes Publishing; with none it stays Connected and the report
// carries every individual failure.
func (c *Controller) Publish(ctx context.Context) (*PublishReport, error) {
	c.mu.Lock()
	switch {
	case c.state == domain.SessionPublishing || c.publishInFlight:
		c.mu.Unlock()
		return &PublishReport{}, nil
	case c.state != domain.SessionConnected:
		st := c.state
		c.mu.Unlock()
		return nil, failf(FailurePublish, "publish requires a connected session, state is %s", st)
	}
	c.publishInFlight = true
	c.mu.Unlock()

	attempts := []struct {
		kind     domain.TrackKind
		deviceID string
	}{
		{domain.TrackAudio, c.sel.AudioDeviceID},
		{domain.TrackVideo, c.sel.VideoDeviceID},
	}
	results := make([]publishOutcome, len(attempts))
	var wg sync.WaitGroup
	for i, a := range attempts {
		wg.Add(1)
		go func(i int, kind domain.TrackKind, deviceID string) {
			defer wg.Done()
			results[i] = c.publishOne(ctx, kind, deviceID)
		}(i, a.kind, a.deviceID)
	}
	wg.Wait()

	report := &PublishReport{}
	c.mu.Lock()
	c.publishInFlight = false
	alive := c.state == domain.SessionConnected
	for _, res := range results {
		if res.err != nil {
			report.Failures = append(report.Failures, res.err)
			log.Warn().Str("module", "session").Str("track", string(res.kind)).Err(res.err).Msg("track publish failed")
			continue
		}
		if !alive {
			continue
		}
		c.tracks[res.track.ID()] = res.track
		c.pubs[res.track.ID()] = res.pub
		report.Published = append(report.Published, res.kind)
	}
	if alive && report.Ok() {
		c.state = domain.SessionPublishing
	}
	c.mu.Unlock()

	if !alive {
		// Disconnect raced the capture; release whatever was acquired.
		for _, res := range results {
			if res.err != nil {
				continue
			}
			if res.pub != nil {
				_ = res.pub.Unpublish()
			}
			_ = res.track.Close()
		}
		return report, nil
	}

	log.Info().Str("module", "session").Int("published", len(report.Published)).Int("failed", len(report.Failures)).Msg("publish complete")
	return report, nil
}

type publishOutcome struct {
	kind  domain.TrackKind
	track core.LocalTrack
	pub   core.Publication
	err   *Error
}

func (c *Controller) publishOne(ctx context.Context, kind domain.TrackKind, deviceID string) (res publishOutcome) {
	res.kind = kind
	if c.devices == nil {
		res.err = trackFail(FailureDeviceAcquisition, kind, errors.New("no device source available"))
		return res
	}
	track, err := c.devices.Acquire(ctx, kind, deviceID)
	if err != nil {
		res.err = trackFail(FailureDeviceAcquisition, kind, err)
		return res
	}
	pub, err := c.transport.Publish(ctx, track)
	if err != nil {
		_ = track.Close()
		res.err = trackFail(FailurePublish, kind, err)
		return res
	}
	res.track = track
	res.pub = pub
	return res
}

// Disconnect tears the session down in order: unpublish every track,
// release every device, close the transport, clear state. Each step
// proceeds past failures; the aggregate is logged and returned as a
// TeardownPartial error. Always ends in Idle. Idempotent.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	if c.state == domain.SessionIdle || c.state == domain.SessionDisconnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = domain.SessionDisconnecting
	pubs := c.pubs
	tracks := c.tracks
	c.pubs = make(map[string]core.Publication)
	c.tracks = make(map[string]core.LocalTrack)
	c.mu.Unlock()

	var errs []error
	for id, pub := range pubs {
		if err := pub.Unpublish(); err != nil {
			errs = append(errs, err)
			log.Warn().Str("module", "session").Str("track_id", id).Err(err).Msg("unpublish failed, continuing teardown")
		}
	}
	for id, track := range tracks {
		if err := track.Close(); err != nil {
			errs = append(errs, err)
			log.Warn().Str("module", "session").Str("track_id", id).Err(err).Msg("track release failed, continuing teardown")
		}
	}
	if err := c.transport.Close(); err != nil {
		errs = append(errs, err)
		log.Warn().Str("module", "session").Err(err).Msg("transport close failed")
	}

	c.mu.Lock()
	c.state = domain.SessionIdle
	c.cred = domain.Credential{}
	c.mu.Unlock()

	log.Info().Str("module", "session").Str("room", string(c.req.Room)).Msg("session torn down")
	if len(errs) > 0 {
		return &Error{Class: FailureTeardownPartial, Err: errors.Join(errs...)}
	}
	return nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = domain.SessionFailed
	c.mu.Unlock()
	log.Warn().Str("module", "session").Str("room", string(c.req.Room)).Str("class", Classify(err).String()).Err(err).Msg("session failed")
}
