package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/presence"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/session"
)

type entryKey struct {
	Subject domain.SubjectID
	Scope   domain.ScopeID
}

// entry is one live (subject, scope) binding: a presence publisher,
// optionally a media session, and a once so teardown from any trigger
// (API call, shutdown hook) runs a single time.
type entry struct {
	Publisher  *presence.Publisher
	Controller *session.Controller
	stopOnce   sync.Once
}

func (e *entry) stop() {
	e.stopOnce.Do(func() {
		if e.Controller != nil {
			_ = e.Controller.Disconnect()
		}
		if e.Publisher != nil {
			e.Publisher.Stop()
		}
	})
}

// Registry tracks every live binding for this client. It enforces the
// at-most-one rule: a second start for the same (subject, scope) finds
// the existing entry instead of creating a duplicate.
type Registry struct {
	mu      sync.RWMutex
	entries map[entryKey]*entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[entryKey]*entry)}
}

// bind stores a new entry unless one already exists; it reports whether
// the caller's entry won.
func (r *Registry) bind(subject domain.SubjectID, scope domain.ScopeID, e *entry) bool {
	key := entryKey{subject, scope}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = e
	log.Info().Str("module", "app.registry").Str("subject", string(subject)).Str("scope", string(scope)).Msg("bound")
	return true
}

func (r *Registry) get(subject domain.SubjectID, scope domain.ScopeID) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[entryKey{subject, scope}]
	return e, ok
}

func (r *Registry) unbind(subject domain.SubjectID, scope domain.ScopeID) (*entry, bool) {
	key := entryKey{subject, scope}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
		log.Info().Str("module", "app.registry").Str("subject", string(subject)).Str("scope", string(scope)).Msg("unbound")
	}
	return e, ok
}

// IsBroadcasting is the liveness check the room publisher samples each
// heartbeat: does this subject hold an active session for the scope.
func (r *Registry) IsBroadcasting(subject domain.SubjectID, scope domain.ScopeID) bool {
	r.mu.RLock()
	e, ok := r.entries[entryKey{subject, scope}]
	r.mu.RUnlock()
	if !ok || e.Controller == nil {
		return false
	}
	return e.Controller.State().Active()
}

// controller returns the subject's session controller for a scope, nil
// when none is attached.
func (r *Registry) controller(subject domain.SubjectID, scope domain.ScopeID) *session.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[entryKey{subject, scope}]; ok {
		return e.Controller
	}
	return nil
}

// drain removes and returns every entry; used at shutdown.
func (r *Registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.entries = make(map[entryKey]*entry)
	return out
}
