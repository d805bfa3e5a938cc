package core

import (
	"context"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// TokenRequest asks the issuance endpoint for a room-scoped credential.
// Room is the bare room name; store key prefixes stay internal.
type TokenRequest struct {
	Room         domain.RoomID `json:"room_name"`
	Identity     domain.UserID `json:"identity"`
	Name         string        `json:"participant_name"`
	CanPublish   bool          `json:"can_publish"`
	CanSubscribe bool          `json:"can_subscribe"`
}

// TokenIssuer fetches a fresh connection credential.
type TokenIssuer interface {
	Issue(ctx context.Context, req TokenRequest) (domain.Credential, error)
}
