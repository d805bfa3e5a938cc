package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/heartbeat"
)

const (
	// DefaultInterval keeps LastSeenAt well inside the staleness
	// threshold under normal jitter (interval <= threshold/2).
	DefaultInterval = 15 * time.Second
	// DefaultStaleness is the reader-side cutoff: ~2x the heartbeat.
	DefaultStaleness = 30 * time.Second

	writeTimeout = 5 * time.Second
)

// ComputeFunc supplies flags evaluated at each heartbeat, on top of the
// static ones (e.g. the room publisher's "is broadcasting" check).
type ComputeFunc func() domain.Flags

// Publisher maintains one presence row on a heartbeat. It is the generic
// pattern behind both the viewer and room publishers: immediate upsert
// on Start, refresh per tick, delete on Stop, beacon on the way out.
//
// The active flag is sampled under the same lock that performs the store
// write, so a tick racing Stop can never resurrect a deleted row.
type Publisher struct {
	mu      sync.Mutex
	client  *Client
	beacon  *Beacon
	timer   heartbeat.Timer
	subject domain.SubjectID
	scope   domain.ScopeID
	flags   domain.Flags
	compute ComputeFunc
	ctx     context.Context

	interval time.Duration
	active   bool
	module   string
}

// NewPublisher builds a publisher for one (subject, scope) row.
// compute may be nil. interval <= 0 selects DefaultInterval.
func NewPublisher(client *Client, beacon *Beacon, subject domain.SubjectID, scope domain.ScopeID, flags domain.Flags, compute ComputeFunc, interval time.Duration, module string) *Publisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Publisher{
		client:   client,
		beacon:   beacon,
		subject:  subject,
		scope:    scope,
		flags:    flags.Clone(),
		compute:  compute,
		interval: interval,
		module:   module,
	}
}

// Start performs one immediate upsert, then begins the heartbeat.
// Starting an already-started publisher is a no-op.
func (p *Publisher) Start(ctx context.Context) {
	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return
	}
	p.active = true
	p.ctx = ctx
	p.mu.Unlock()

	log.Info().Str("module", p.module).Str("subject", string(p.subject)).Str("scope", string(p.scope)).Msg("presence started")
	p.beat()
	p.timer.Start(p.interval, p.beat)
}

// UpdateFlags replaces the static flag set; the next heartbeat carries
// the new values.
func (p *Publisher) UpdateFlags(flags domain.Flags) {
	p.mu.Lock()
	p.flags = flags.Clone()
	p.mu.Unlock()
}

// Stop cancels the heartbeat, deletes the row and fires the beacon.
// Idempotent; safe before Start.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return
	}
	p.active = false
	p.timer.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	p.client.Delete(ctx, p.subject, p.scope)
	cancel()
	p.mu.Unlock()

	p.beacon.Notify(p.subject, p.scope)
	log.Info().Str("module", p.module).Str("subject", string(p.subject)).Str("scope", string(p.scope)).Msg("presence stopped")
}

// beat refreshes the row. It holds the publisher lock across the write:
// ticks, flag updates and Stop are serialized with respect to the row.
func (p *Publisher) beat() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}
	flags := p.flags.Clone()
	if p.compute != nil {
		if flags == nil {
			flags = make(domain.Flags)
		}
		for k, v := range p.compute() {
			flags[k] = v
		}
	}
	ctx, cancel := context.WithTimeout(p.ctx, writeTimeout)
	defer cancel()
	p.client.Upsert(ctx, domain.PresenceRecord{
		SubjectID:  p.subject,
		ScopeID:    p.scope,
		Flags:      flags,
		LastSeenAt: time.Now().UTC(),
	})
}
