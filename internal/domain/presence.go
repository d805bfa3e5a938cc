package domain

import "time"

type (
	// SubjectID identifies the present entity, usually a UserID.
	SubjectID string
	// ScopeID is what the subject is present in: a room or a stream.
	ScopeID string

	RoomID   string
	StreamID string
)

// Well-known presence attribute names. Stores may not know all of them;
// the client degrades per attribute (see presence.Client).
const (
	FlagLiveAvailable = "is_live_available"
	FlagUnmuted       = "is_unmuted"
	FlagTabVisible    = "is_tab_visible"
	FlagSubscribed    = "is_subscribed"
)

// Flags is the attribute set carried by a presence row.
type Flags map[string]bool

func (f Flags) Clone() Flags {
	if f == nil {
		return nil
	}
	out := make(Flags, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// PresenceRecord is one row in the shared presence store.
// At most one exists per (SubjectID, ScopeID); writes are idempotent upserts.
type PresenceRecord struct {
	SubjectID  SubjectID `json:"subject_id"`
	ScopeID    ScopeID   `json:"scope_id"`
	Flags      Flags     `json:"flags,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// RoomScope and StreamScope keep scope ids distinguishable in a shared table.
func RoomScope(id RoomID) ScopeID     { return ScopeID("room:" + id) }
func StreamScope(id StreamID) ScopeID { return ScopeID("stream:" + id) }
