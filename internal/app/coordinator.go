// Package app turns UI intents ("I am watching", "I want to go live")
// into presence rows and media sessions, and owns their teardown.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/session"
)

// TransportFactory builds a fresh transport per session; transports are
// never reused across connects.
type TransportFactory func() core.MediaTransport

type Options struct {
	Identity    domain.UserID
	DisplayName string

	HeartbeatInterval  time.Duration
	StalenessThreshold time.Duration
	// LivenessCache limits how often the room heartbeat re-queries the
	// broadcast check; zero re-queries every beat.
	LivenessCache time.Duration
}

// Coordinator wires publishers and session controllers together and
// keeps the intents idempotent. It is the single owner of every session
// on this client. Heartbeats run on the coordinator's own lifetime
// context, never the caller's: a watch must outlive the HTTP request
// that started it.
type Coordinator struct {
	opts      Options
	client    *presence.Client
	beacon    *presence.Beacon
	issuer    core.TokenIssuer
	transport TransportFactory
	devices   core.DeviceSource

	ctx      context.Context
	cancel   context.CancelFunc
	registry *Registry
	shutOnce sync.Once
}

func NewCoordinator(opts Options, client *presence.Client, beacon *presence.Beacon, issuer core.TokenIssuer, transport TransportFactory, devices core.DeviceSource) *Coordinator {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = presence.DefaultInterval
	}
	if opts.StalenessThreshold <= 0 {
		opts.StalenessThreshold = presence.DefaultStaleness
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		opts:      opts,
		client:    client,
		beacon:    beacon,
		issuer:    issuer,
		transport: transport,
		devices:   devices,
		ctx:       ctx,
		cancel:    cancel,
		registry:  NewRegistry(),
	}
}

func (c *Coordinator) subject() domain.SubjectID { return domain.SubjectID(c.opts.Identity) }

// WatchStream begins publishing viewer presence for a stream. Starting
// an already-watched stream is a no-op.
func (c *Coordinator) WatchStream(stream domain.StreamID, flags presence.ViewerFlags) {
	scope := domain.StreamScope(stream)
	pub := presence.NewViewerPublisher(c.client, c.beacon, c.opts.Identity, stream, flags, c.opts.HeartbeatInterval)
	e := &entry{Publisher: pub}
	if !c.registry.bind(c.subject(), scope, e) {
		return
	}
	pub.Start(c.ctx)
}

// UpdateViewerFlags applies new flags to an active watch; the next
// heartbeat carries them. Unknown streams are ignored.
func (c *Coordinator) UpdateViewerFlags(stream domain.StreamID, flags presence.ViewerFlags) {
	if e, ok := c.registry.get(c.subject(), domain.StreamScope(stream)); ok && e.Publisher != nil {
		presence.UpdateViewerFlags(e.Publisher, flags)
	}
}

// StopWatching deletes the viewer row and cancels the heartbeat.
// Idempotent.
func (c *Coordinator) StopWatching(stream domain.StreamID) {
	if e, ok := c.registry.unbind(c.subject(), domain.StreamScope(stream)); ok {
		e.stop()
	}
}

// JoinRoom begins publishing room presence, with the is_live_available
// flag recomputed from this client's own session state each heartbeat.
func (c *Coordinator) JoinRoom(room domain.RoomID) {
	scope := domain.RoomScope(room)
	liveness := presence.CachedLiveness(func() bool {
		return c.registry.IsBroadcasting(c.subject(), scope)
	}, c.opts.LivenessCache)
	pub := presence.NewRoomPublisher(c.client, c.beacon, c.opts.Identity, room, liveness, c.opts.HeartbeatInterval)
	e := &entry{Publisher: pub}
	if !c.registry.bind(c.subject(), scope, e) {
		return
	}
	pub.Start(c.ctx)
}

// LeaveRoom stops any live session in the room, then removes the
// presence row. Idempotent.
func (c *Coordinator) LeaveRoom(room domain.RoomID) {
	if e, ok := c.registry.unbind(c.subject(), domain.RoomScope(room)); ok {
		e.stop()
	}
}

// GoLive opens a publishing media session for the room and, once
// connected, publishes capture tracks. The room presence entry picks up
// the broadcast on its next heartbeat. A second GoLive for the same
// room while a session is active is a no-op. ctx bounds only the
// synchronous connect and publish work.
func (c *Coordinator) GoLive(ctx context.Context, room domain.RoomID) (*session.PublishReport, error) {
	scope := domain.RoomScope(room)
	c.JoinRoom(room)

	e, ok := c.registry.get(c.subject(), scope)
	if !ok {
		// LeaveRoom raced us; treat as intent withdrawn.
		return &session.PublishReport{}, nil
	}
	ctrl := c.attachController(e, session.NewController(
		c.issuer,
		c.transport(),
		c.devices,
		core.TokenRequest{
			Room:         room,
			Identity:     c.opts.Identity,
			Name:         c.opts.DisplayName,
			CanPublish:   true,
			CanSubscribe: true,
		},
		domain.DeviceSelection{},
	))
	if _, still := c.registry.get(c.subject(), scope); !still {
		// LeaveRoom raced the attach; the intent is withdrawn.
		_ = ctrl.Disconnect()
		return &session.PublishReport{}, nil
	}

	if err := ctrl.Connect(ctx); err != nil {
		log.Warn().Str("module", "app").Str("room", string(room)).Str("class", session.Classify(err).String()).Err(err).Msg("go-live connect failed")
		return nil, err
	}
	return ctrl.Publish(ctx)
}

// attachController installs ctrl on the entry unless a concurrent
// GoLive already did; the installed one wins either way.
func (c *Coordinator) attachController(e *entry, ctrl *session.Controller) *session.Controller {
	c.registry.mu.Lock()
	defer c.registry.mu.Unlock()
	if e.Controller == nil {
		e.Controller = ctrl
	}
	return e.Controller
}

// StopLive tears the media session down but keeps room presence alive;
// the liveness flag clears on the next heartbeat. Idempotent.
func (c *Coordinator) StopLive(room domain.RoomID) error {
	ctrl := c.registry.controller(c.subject(), domain.RoomScope(room))
	if ctrl == nil {
		return nil
	}
	return ctrl.Disconnect()
}

// IsBroadcasting reports whether this client holds an active session in
// the room.
func (c *Coordinator) IsBroadcasting(room domain.RoomID) bool {
	return c.registry.IsBroadcasting(c.subject(), domain.RoomScope(room))
}

// SessionState exposes the room session state, SessionIdle when none.
func (c *Coordinator) SessionState(room domain.RoomID) domain.SessionState {
	ctrl := c.registry.controller(c.subject(), domain.RoomScope(room))
	if ctrl == nil {
		return domain.SessionIdle
	}
	return ctrl.State()
}

// RoomRoster serves readers: fresh presence rows for a room.
func (c *Coordinator) RoomRoster(ctx context.Context, room domain.RoomID) ([]domain.PresenceRecord, error) {
	return c.client.Roster(ctx, domain.RoomScope(room), c.opts.StalenessThreshold)
}

// StreamViewers serves readers: fresh viewer rows for a stream.
func (c *Coordinator) StreamViewers(ctx context.Context, stream domain.StreamID) ([]domain.PresenceRecord, error) {
	return c.client.Roster(ctx, domain.StreamScope(stream), c.opts.StalenessThreshold)
}

// Shutdown is the process-exit teardown hook: every session disconnects
// and every presence row is deleted, exactly once even if intents also
// fired their own stops.
func (c *Coordinator) Shutdown() {
	c.shutOnce.Do(func() {
		entries := c.registry.drain()
		for _, e := range entries {
			e.stop()
		}
		c.cancel()
		log.Info().Str("module", "app").Int("entries", len(entries)).Msg("coordinator shut down")
	})
}
