package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
)

func tokenRequest() core.TokenRequest {
	return core.TokenRequest{
		Room:         "r1",
		Identity:     "u1",
		Name:         "Broadcaster",
		CanPublish:   true,
		CanSubscribe: true,
	}
}

func tokenServer(t *testing.T, status int, body map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Decode raw: the endpoint must see the bare room name, not an
		// internal store key.
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "r1", req["room_name"])
		require.Equal(t, "u1", req["identity"])
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIssueReturnsCredential(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, map[string]string{
		"token": "signed-token",
		"url":   "wss://media.example.com/rtc",
	})
	cred, err := NewTokenClient(srv.URL, false).Issue(context.Background(), tokenRequest())
	require.NoError(t, err)
	require.Equal(t, "signed-token", cred.Token)
	require.Equal(t, "wss://media.example.com/rtc", cred.URL)
}

func TestIssueRequiresIdentity(t *testing.T) {
	req := tokenRequest()
	req.Identity = ""
	_, err := NewTokenClient("http://unused", false).Issue(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, FailureUnauthenticated, Classify(err))
}

func TestIssueClassifiesRejectedIdentity(t *testing.T) {
	srv := tokenServer(t, http.StatusUnauthorized, nil)
	_, err := NewTokenClient(srv.URL, false).Issue(context.Background(), tokenRequest())
	require.Equal(t, FailureUnauthenticated, Classify(err))
}

func TestIssueClassifiesMissingFields(t *testing.T) {
	cases := map[string]map[string]string{
		"missing token": {"url": "wss://media.example.com/rtc"},
		"missing url":   {"token": "signed-token"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := tokenServer(t, http.StatusOK, body)
			_, err := NewTokenClient(srv.URL, false).Issue(context.Background(), tokenRequest())
			require.Equal(t, FailureMalformedCredential, Classify(err))
		})
	}
}

func TestIssueRejectsWrongScheme(t *testing.T) {
	srv := tokenServer(t, http.StatusOK, map[string]string{
		"token": "signed-token",
		"url":   "https://media.example.com/rtc",
	})
	_, err := NewTokenClient(srv.URL, false).Issue(context.Background(), tokenRequest())
	require.Equal(t, FailureMalformedCredential, Classify(err))
}

func TestIssueInsecureSchemeGating(t *testing.T) {
	body := map[string]string{"token": "signed-token", "url": "ws://localhost:7880/rtc"}

	srv := tokenServer(t, http.StatusOK, body)
	_, err := NewTokenClient(srv.URL, false).Issue(context.Background(), tokenRequest())
	require.Equal(t, FailureMalformedCredential, Classify(err))

	srv2 := tokenServer(t, http.StatusOK, body)
	cred, err := NewTokenClient(srv2.URL, true).Issue(context.Background(), tokenRequest())
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:7880/rtc", cred.URL)
}

func TestIssueUnreachableEndpoint(t *testing.T) {
	_, err := NewTokenClient("http://127.0.0.1:1/token", false).Issue(context.Background(), tokenRequest())
	require.Equal(t, FailureTransportConnect, Classify(err))
}
