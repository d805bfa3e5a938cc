package presence

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

const beaconTimeout = 2 * time.Second

// Beacon is the best-effort "remove me" notification fired at teardown.
// Delivery is not guaranteed; the staleness threshold is the backstop,
// this only shortens how long a dead row lingers.
type Beacon struct {
	url    string
	client *http.Client
}

// NewBeacon returns a beacon posting to sinkURL. An empty URL yields a
// no-op beacon, which keeps call sites unconditional.
func NewBeacon(sinkURL string) *Beacon {
	return &Beacon{
		url:    sinkURL,
		client: &http.Client{Timeout: beaconTimeout},
	}
}

// Notify fires and forgets. It never blocks the caller and never
// surfaces a failure.
func (b *Beacon) Notify(subject domain.SubjectID, scope domain.ScopeID) {
	if b == nil || b.url == "" {
		return
	}
	body, err := json.Marshal(map[string]string{
		"subject_id": string(subject),
		"scope_id":   string(scope),
	})
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := b.client.Do(req)
		if err != nil {
			log.Debug().Str("module", "presence.beacon").Err(err).Msg("unload beacon failed")
			return
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
}
