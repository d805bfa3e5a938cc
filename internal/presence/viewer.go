package presence

import (
	"time"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// ViewerFlags are the attributes attached to a "viewer is watching" row.
type ViewerFlags struct {
	Unmuted    bool `json:"unmuted"`
	TabVisible bool `json:"tab_visible"`
	Subscribed bool `json:"subscribed"`
}

func (f ViewerFlags) flags() domain.Flags {
	return domain.Flags{
		domain.FlagUnmuted:    f.Unmuted,
		domain.FlagTabVisible: f.TabVisible,
		domain.FlagSubscribed: f.Subscribed,
	}
}

// NewViewerPublisher maintains the (viewer, stream) "actively watching"
// row.
func NewViewerPublisher(client *Client, beacon *Beacon, viewer domain.UserID, stream domain.StreamID, flags ViewerFlags, interval time.Duration) *Publisher {
	return NewPublisher(
		client, beacon,
		domain.SubjectID(viewer), domain.StreamScope(stream),
		flags.flags(), nil, interval,
		"presence.viewer",
	)
}

// UpdateViewerFlags is the typed form of Publisher.UpdateFlags.
func UpdateViewerFlags(p *Publisher, flags ViewerFlags) {
	p.UpdateFlags(flags.flags())
}
