// Package presence publishes and reads soft-state presence rows against
// the shared store. Presence is an enhancement: nothing here may fail
// the watch/broadcast path, so every store error is recovered locally.
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// Client wraps a PresenceStore with the degrade-gracefully policy:
//   - unknown attribute: retry once without it, remember it for the process
//   - missing table: disable the store for the process, later calls no-op
//   - anything else: log and swallow
type Client struct {
	store core.PresenceStore
	caps  *Capabilities
}

// NewClient wraps a store. caps may be nil for a fresh cache. A nil
// store is allowed only together with pre-disabled capabilities.
func NewClient(store core.PresenceStore, caps *Capabilities) *Client {
	if caps == nil {
		caps = NewCapabilities()
	}
	if store == nil {
		caps.Disable()
	}
	return &Client{store: store, caps: caps}
}

// Upsert writes or refreshes a row. Best effort: it never returns an
// error to the heartbeat path.
func (c *Client) Upsert(ctx context.Context, rec domain.PresenceRecord) {
	if c.caps.Disabled() {
		return
	}
	rec.Flags = c.supportedFlags(rec.Flags)
	if err := c.store.Upsert(ctx, rec); err != nil {
		c.recoverUpsert(ctx, rec, err)
	}
}

func (c *Client) recoverUpsert(ctx context.Context, rec domain.PresenceRecord, err error) {
	if errors.Is(err, ErrStoreMissing) {
		c.caps.Disable()
		log.Warn().Str("module", "presence.client").Err(err).Msg("presence store unavailable, disabling for process")
		return
	}
	if attr, ok := UnknownAttribute(err); ok {
		c.caps.MarkUnsupported(attr)
		log.Warn().Str("module", "presence.client").Str("attr", attr).Msg("presence attribute unsupported, retrying without it")
		rec.Flags = c.supportedFlags(rec.Flags)
		if retryErr := c.store.Upsert(ctx, rec); retryErr != nil {
			// A second unknown attribute is remembered as well; the next
			// heartbeat omits both.
			if attr2, ok2 := UnknownAttribute(retryErr); ok2 {
				c.caps.MarkUnsupported(attr2)
				return
			}
			if errors.Is(retryErr, ErrStoreMissing) {
				c.caps.Disable()
				return
			}
			log.Debug().Str("module", "presence.client").Err(retryErr).Msg("presence upsert retry failed")
		}
		return
	}
	log.Debug().Str("module", "presence.client").Err(err).Msg("presence upsert failed")
}

// Delete removes the subject's row(s). Idempotent and best effort.
func (c *Client) Delete(ctx context.Context, subject domain.SubjectID, scope domain.ScopeID) {
	if c.caps.Disabled() {
		return
	}
	if err := c.store.Delete(ctx, subject, scope); err != nil {
		if errors.Is(err, ErrStoreMissing) {
			c.caps.Disable()
			return
		}
		log.Debug().Str("module", "presence.client").Err(err).Msg("presence delete failed")
	}
}

// Roster scans a scope and keeps only fresh rows. This is the reader
// contract: a row older than threshold is absent even if still stored.
func (c *Client) Roster(ctx context.Context, scope domain.ScopeID, threshold time.Duration) ([]domain.PresenceRecord, error) {
	if c.caps.Disabled() {
		return nil, nil
	}
	recs, err := c.store.Scan(ctx, scope)
	if err != nil {
		if errors.Is(err, ErrStoreMissing) {
			c.caps.Disable()
			return nil, nil
		}
		return nil, err
	}
	return FilterFresh(recs, threshold, time.Now()), nil
}

func (c *Client) supportedFlags(flags domain.Flags) domain.Flags {
	if len(flags) == 0 {
		return flags
	}
	out := make(domain.Flags, len(flags))
	for k, v := range flags {
		if c.caps.Supports(k) {
			out[k] = v
		}
	}
	return out
}

// FilterFresh drops rows whose LastSeenAt is older than threshold.
func FilterFresh(recs []domain.PresenceRecord, threshold time.Duration, now time.Time) []domain.PresenceRecord {
	out := make([]domain.PresenceRecord, 0, len(recs))
	cutoff := now.Add(-threshold)
	for _, r := range recs {
		if r.LastSeenAt.Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}
