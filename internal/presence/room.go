package presence

import (
	"sync"
	"time"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// LivenessFunc answers "is this user currently broadcasting": an
// existence check against local session state, queried each heartbeat.
type LivenessFunc func() bool

// NewRoomPublisher maintains the (user, room) "present in room" row. The
// is_live_available flag is recomputed per beat via liveness.
func NewRoomPublisher(client *Client, beacon *Beacon, user domain.UserID, room domain.RoomID, liveness LivenessFunc, interval time.Duration) *Publisher {
	var compute ComputeFunc
	if liveness != nil {
		compute = func() domain.Flags {
			return domain.Flags{domain.FlagLiveAvailable: liveness()}
		}
	}
	return NewPublisher(
		client, beacon,
		domain.SubjectID(user), domain.RoomScope(room),
		nil, compute, interval,
		"presence.room",
	)
}

// CachedLiveness memoizes a liveness check for ttl. Whether the check
// should be cached within the heartbeat interval or re-queried every
// beat is a deployment tunable; ttl <= 0 disables caching.
func CachedLiveness(fn LivenessFunc, ttl time.Duration) LivenessFunc {
	if ttl <= 0 {
		return fn
	}
	var (
		mu      sync.Mutex
		last    bool
		checked time.Time
	)
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		if now := time.Now(); now.Sub(checked) >= ttl {
			last = fn()
			checked = now
		}
		return last
	}
}
