package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

type fakeIssuer struct {
	mu    sync.Mutex
	cred  domain.Credential
	err   error
	calls int
}

func (f *fakeIssuer) Issue(context.Context, core.TokenRequest) (domain.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.cred, f.err
}

func (f *fakeIssuer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTrack struct {
	mu       sync.Mutex
	id       string
	kind     domain.TrackKind
	closed   bool
	closeErr error
}

func (f *fakeTrack) ID() string             { return f.id }
func (f *fakeTrack) Kind() domain.TrackKind { return f.kind }
func (f *fakeTrack) RTP() webrtc.TrackLocal { return nil }
func (f *fakeTrack) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.closeErr
}
func (f *fakeTrack) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakePublication struct {
	mu          sync.Mutex
	track       core.LocalTrack
	unpublished bool
	unpubErr    error
}

func (f *fakePublication) Track() core.LocalTrack { return f.track }
func (f *fakePublication) Unpublish() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpublished = true
	return f.unpubErr
}

type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	closed     int
	connectErr error
	publishErr error
	unpubErr   error
	pubs       []*fakePublication
}

func (f *fakeTransport) Connect(context.Context, domain.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, track core.LocalTrack) (core.Publication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	pub := &fakePublication{track: track, unpubErr: f.unpubErr}
	f.pubs = append(f.pubs, pub)
	return pub, nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.closed++
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeDevices struct {
	mu       sync.Mutex
	acquired []*fakeTrack
	errs     map[domain.TrackKind]error
	closeErr map[domain.TrackKind]error
	seq      int
}

func (f *fakeDevices) Acquire(_ context.Context, kind domain.TrackKind, _ string) (core.LocalTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[kind]; err != nil {
		return nil, err
	}
	f.seq++
	track := &fakeTrack{id: string(kind), kind: kind, closeErr: f.closeErr[kind]}
	f.acquired = append(f.acquired, track)
	return track, nil
}

func (f *fakeDevices) openTracks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tr := range f.acquired {
		if !tr.isClosed() {
			n++
		}
	}
	return n
}

func newTestController(issuer *fakeIssuer, transport *fakeTransport, devices *fakeDevices) *Controller {
	if issuer == nil {
		issuer = &fakeIssuer{cred: domain.Credential{Token: "tok", URL: "wss://media/rtc"}}
	}
	return NewController(issuer, transport, devices, core.TokenRequest{
		Room:       "r1",
		Identity:   "u1",
		CanPublish: true,
	}, domain.DeviceSelection{})
}

func TestConnectTransitionsToConnected(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(nil, transport, &fakeDevices{})

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, domain.SessionConnected, c.State())
}

func TestConnectIsReentrant(t *testing.T) {
	issuer := &fakeIssuer{cred: domain.Credential{Token: "tok", URL: "wss://media/rtc"}}
	c := newTestController(issuer, &fakeTransport{}, &fakeDevices{})

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, 1, issuer.callCount(), "redundant connects must not refetch credentials")
}

func TestConnectFailsOnCredentialError(t *testing.T) {
	issuer := &fakeIssuer{err: failf(FailureMalformedCredential, "no token")}
	transport := &fakeTransport{}
	c := newTestController(issuer, transport, &fakeDevices{})

	err := c.Connect(context.Background())
	require.Equal(t, FailureMalformedCredential, Classify(err))
	require.Equal(t, domain.SessionFailed, c.State())
	require.False(t, transport.connected, "must not connect with a malformed credential")
}

func TestConnectClassifiesTransportFailure(t *testing.T) {
	transport := &fakeTransport{connectErr: errors.New("dial tcp: connection refused")}
	c := newTestController(nil, transport, &fakeDevices{})

	err := c.Connect(context.Background())
	require.Equal(t, FailureTransportConnect, Classify(err))
	require.Equal(t, domain.SessionFailed, c.State())
}

func TestPublishRequiresConnectedSession(t *testing.T) {
	c := newTestController(nil, &fakeTransport{}, &fakeDevices{})
	_, err := c.Publish(context.Background())
	require.Error(t, err)
	require.Equal(t, domain.SessionIdle, c.State())
}

func TestPublishBothTracks(t *testing.T) {
	transport := &fakeTransport{}
	devices := &fakeDevices{}
	c := newTestController(nil, transport, devices)

	require.NoError(t, c.Connect(context.Background()))
	report, err := c.Publish(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []domain.TrackKind{domain.TrackAudio, domain.TrackVideo}, report.Published)
	require.Empty(t, report.Failures)
	require.Equal(t, domain.SessionPublishing, c.State())
	require.Equal(t, 2, c.TrackCount())
}

func TestIndependentTrackFailure(t *testing.T) {
	transport := &fakeTransport{}
	devices := &fakeDevices{errs: map[domain.TrackKind]error{
		domain.TrackAudio: errors.New("microphone busy"),
	}}
	c := newTestController(nil, transport, devices)

	require.NoError(t, c.Connect(context.Background()))
	report, err := c.Publish(context.Background())
	require.NoError(t, err)

	require.Equal(t, []domain.TrackKind{domain.TrackVideo}, report.Published)
	require.Len(t, report.Failures, 1)
	require.Equal(t, domain.TrackAudio, report.Failures[0].Track)
	require.Equal(t, FailureDeviceAcquisition, report.Failures[0].Class)
	require.Equal(t, domain.SessionPublishing, c.State(), "video alone still publishes")
	require.Equal(t, 1, c.TrackCount())
}

func TestAllTracksFailingKeepsConnected(t *testing.T) {
	devices := &fakeDevices{errs: map[domain.TrackKind]error{
		domain.TrackAudio: errors.New("no mic"),
		domain.TrackVideo: errors.New("no camera"),
	}}
	c := newTestController(nil, &fakeTransport{}, devices)

	require.NoError(t, c.Connect(context.Background()))
	report, err := c.Publish(context.Background())
	require.NoError(t, err)
	require.False(t, report.Ok())
	require.Len(t, report.Failures, 2)
	require.Equal(t, domain.SessionConnected, c.State())
}

func TestPublishFailureReleasesAcquiredTrack(t *testing.T) {
	transport := &fakeTransport{publishErr: errors.New("sender rejected")}
	devices := &fakeDevices{}
	c := newTestController(nil, transport, devices)

	require.NoError(t, c.Connect(context.Background()))
	report, err := c.Publish(context.Background())
	require.NoError(t, err)
	require.False(t, report.Ok())
	for _, f := range report.Failures {
		require.Equal(t, FailurePublish, f.Class)
	}
	require.Zero(t, devices.openTracks(), "tracks that failed to publish must be released")
}

func TestNilDeviceSourceFailsPerTrack(t *testing.T) {
	c := NewController(
		&fakeIssuer{cred: domain.Credential{Token: "tok", URL: "wss://media/rtc"}},
		&fakeTransport{}, nil,
		core.TokenRequest{Room: "r1", Identity: "u1", CanPublish: true},
		domain.DeviceSelection{},
	)
	require.NoError(t, c.Connect(context.Background()))
	report, err := c.Publish(context.Background())
	require.NoError(t, err)
	require.False(t, report.Ok())
	require.Len(t, report.Failures, 2)
	require.Equal(t, domain.SessionConnected, c.State())
}

// connect -> publish(audio, video) -> disconnect: nothing survives.
func TestTeardownCompleteness(t *testing.T) {
	transport := &fakeTransport{}
	devices := &fakeDevices{}
	c := newTestController(nil, transport, devices)

	require.NoError(t, c.Connect(context.Background()))
	report, err := c.Publish(context.Background())
	require.NoError(t, err)
	require.True(t, report.Ok())

	require.NoError(t, c.Disconnect())
	require.Equal(t, domain.SessionIdle, c.State())
	require.Zero(t, c.TrackCount())
	require.Zero(t, devices.openTracks())
	require.Equal(t, 1, transport.closeCount())
	for _, pub := range transport.pubs {
		require.True(t, pub.unpublished)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(nil, transport, &fakeDevices{})

	require.NoError(t, c.Disconnect()) // from Idle: no-op
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Disconnect())
	require.Equal(t, 1, transport.closeCount())
	require.Equal(t, domain.SessionIdle, c.State())
}

func TestTeardownProceedsPastFailures(t *testing.T) {
	transport := &fakeTransport{unpubErr: errors.New("unpublish refused")}
	devices := &fakeDevices{closeErr: map[domain.TrackKind]error{
		domain.TrackAudio: errors.New("device wedged"),
	}}
	c := newTestController(nil, transport, devices)

	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Publish(context.Background())
	require.NoError(t, err)

	err = c.Disconnect()
	require.Error(t, err)
	require.Equal(t, FailureTeardownPartial, Classify(err))

	// Every step still ran: transport closed, state cleared.
	require.Equal(t, 1, transport.closeCount())
	require.Equal(t, domain.SessionIdle, c.State())
	require.Zero(t, c.TrackCount())
}

func TestReconnectAfterDisconnectFetchesFreshCredential(t *testing.T) {
	issuer := &fakeIssuer{cred: domain.Credential{Token: "tok", URL: "wss://media/rtc"}}
	c := newTestController(issuer, &fakeTransport{}, &fakeDevices{})

	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, 2, issuer.callCount(), "credentials are never reused across reconnects")
}
