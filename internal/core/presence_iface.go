package core

import (
	"context"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

// PresenceStore is the shared key/value presence table.
// Implementations classify schema errors with the presence package's
// error classes; anything else is treated as transient by callers.
type PresenceStore interface {
	// Upsert writes or refreshes the row for (SubjectID, ScopeID).
	Upsert(ctx context.Context, rec domain.PresenceRecord) error
	// Delete removes the subject's row in the given scope. An empty scope
	// removes the subject's rows in every scope. Deleting an absent row
	// is success.
	Delete(ctx context.Context, subject domain.SubjectID, scope domain.ScopeID) error
	// Scan returns every row in a scope, stale ones included.
	// Readers must apply the staleness filter before trusting a row.
	Scan(ctx context.Context, scope domain.ScopeID) ([]domain.PresenceRecord, error)
}
