package domain

// SessionState is the lifecycle of a local media session.
// Only Connecting, Connected and Publishing count as active.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionConnected
	SessionPublishing
	SessionDisconnecting
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionPublishing:
		return "publishing"
	case SessionDisconnecting:
		return "disconnecting"
	case SessionFailed:
		return "failed"
	}
	return "unknown"
}

// Active reports whether the session holds (or is acquiring) a connection.
func (s SessionState) Active() bool {
	return s == SessionConnecting || s == SessionConnected || s == SessionPublishing
}

// Credential is a short-lived signed token plus the transport endpoint.
// Fetched fresh per connection attempt, never reused across reconnects.
type Credential struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// DeviceSelection optionally pins capture devices. Empty ids mean
// platform default.
type DeviceSelection struct {
	AudioDeviceID string
	VideoDeviceID string
}
