// Package rtc implements core.MediaTransport on pion/webrtc with a
// websocket signaling channel to the session endpoint.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

const signalTimeout = 15 * time.Second

// EngineOption lets the capture layer register its codecs on the media
// engine the transport builds per connection.
type EngineOption func(*webrtc.MediaEngine) error

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// Transport dials the credential's wss endpoint, negotiates a
// PeerConnection over it, and publishes local tracks. One Transport
// serves one session; Close is idempotent.
type Transport struct {
	mu     sync.Mutex
	engine EngineOption
	ws     *websocket.Conn
	pc     *webrtc.PeerConnection
	closed bool
}

func NewTransport(engine EngineOption) *Transport {
	return &Transport{engine: engine}
}

type signalEnvelope struct {
	Type string `json:"type"`
	SDP  string `json:"sdp,omitempty"`
}

func (t *Transport) Connect(ctx context.Context, cred domain.Credential) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cred.Token)

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, cred.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cred.URL, err)
	}

	pc, err := t.newPeerConnection()
	if err != nil {
		_ = ws.Close()
		return err
	}

	if err := t.negotiate(ctx, ws, pc); err != nil {
		_ = ws.Close()
		_ = pc.Close()
		return err
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
	})

	t.mu.Lock()
	t.ws = ws
	t.pc = pc
	t.closed = false
	t.mu.Unlock()
	return nil
}

func (t *Transport) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if t.engine != nil {
		if err := t.engine(mediaEngine); err != nil {
			return nil, fmt.Errorf("populate media engine: %w", err)
		}
	} else if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)
	return api.NewPeerConnection(DefaultWebRTCConfig())
}

// negotiate sends a full-ICE offer over the socket and applies the
// answer. The endpoint speaks a one-shot offer/answer exchange.
func (t *Transport) negotiate(ctx context.Context, ws *websocket.Conn, pc *webrtc.PeerConnection) error {
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	local := pc.LocalDescription()
	payload, err := json.Marshal(signalEnvelope{Type: "offer", SDP: local.SDP})
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}
	deadline := time.Now().Add(signalTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	if err := ws.SetReadDeadline(deadline); err != nil {
		return err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	var env signalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if env.Type != "answer" || env.SDP == "" {
		return fmt.Errorf("unexpected signal message %q", env.Type)
	}
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}
	if err := pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

type publication struct {
	pc     *webrtc.PeerConnection
	sender *webrtc.RTPSender
	track  core.LocalTrack
	once   sync.Once
}

func (p *publication) Track() core.LocalTrack { return p.track }

func (p *publication) Unpublish() error {
	var err error
	p.once.Do(func() {
		err = p.pc.RemoveTrack(p.sender)
	})
	return err
}

func (t *Transport) Publish(ctx context.Context, track core.LocalTrack) (core.Publication, error) {
	t.mu.Lock()
	pc := t.pc
	t.mu.Unlock()
	if pc == nil {
		return nil, fmt.Errorf("transport not connected")
	}
	sender, err := pc.AddTrack(track.RTP())
	if err != nil {
		return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
	}
	log.Info().Str("module", "rtc").Str("kind", string(track.Kind())).Str("track_id", track.ID()).Msg("track published")
	return &publication{pc: pc, sender: sender, track: track}, nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var wsErr, pcErr error
	if t.ws != nil {
		wsErr = t.ws.Close()
		t.ws = nil
	}
	if t.pc != nil {
		pcErr = t.pc.Close()
		t.pc = nil
	}
	if wsErr != nil || pcErr != nil {
		log.Error().Str("module", "rtc").AnErr("ws", wsErr).AnErr("pc", pcErr).Msg("close error")
		if pcErr != nil {
			return pcErr
		}
		return wsErr
	}
	log.Info().Str("module", "rtc").Msg("closed")
	return nil
}

var _ core.MediaTransport = (*Transport)(nil)
