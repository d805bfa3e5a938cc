package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/core"
	"github.com/LiveStak-Brad/mylivelinks-sub009/internal/domain"
)

const tokenTimeout = 10 * time.Second

// TokenClient fetches signed connection credentials from the issuance
// endpoint. Each call is a fresh fetch; credentials are never cached.
type TokenClient struct {
	endpoint      string
	httpc         *http.Client
	allowInsecure bool
}

func NewTokenClient(endpoint string, allowInsecure bool) *TokenClient {
	return &TokenClient{
		endpoint:      endpoint,
		httpc:         &http.Client{Timeout: tokenTimeout},
		allowInsecure: allowInsecure,
	}
}

func (t *TokenClient) Issue(ctx context.Context, req core.TokenRequest) (domain.Credential, error) {
	if req.Identity == "" {
		return domain.Credential{}, failf(FailureUnauthenticated, "no caller identity")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.Credential{}, failf(FailureMalformedCredential, "encode token request: %v", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.Credential{}, failf(FailureMalformedCredential, "build token request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(httpReq)
	if err != nil {
		return domain.Credential{}, failf(FailureTransportConnect, "token endpoint unreachable: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.Credential{}, failf(FailureUnauthenticated, "token endpoint rejected identity %q: %s", req.Identity, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return domain.Credential{}, failf(FailureTransportConnect, "token endpoint returned %s", resp.Status)
	}

	var cred domain.Credential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return domain.Credential{}, failf(FailureMalformedCredential, "decode token response: %v", err)
	}
	if err := t.validate(cred); err != nil {
		return domain.Credential{}, err
	}
	return cred, nil
}

// validate enforces the credential contract: both fields present and a
// websocket endpoint scheme, secure unless explicitly allowed.
func (t *TokenClient) validate(cred domain.Credential) error {
	if cred.Token == "" {
		return failf(FailureMalformedCredential, "token response missing token")
	}
	if cred.URL == "" {
		return failf(FailureMalformedCredential, "token response missing endpoint url")
	}
	u, err := url.Parse(cred.URL)
	if err != nil {
		return failf(FailureMalformedCredential, "invalid endpoint url %q: %v", cred.URL, err)
	}
	switch u.Scheme {
	case "wss":
	case "ws":
		if !t.allowInsecure {
			return failf(FailureMalformedCredential, "insecure endpoint scheme %q in %q", u.Scheme, cred.URL)
		}
	default:
		return failf(FailureMalformedCredential, "unexpected endpoint scheme %q in %q", u.Scheme, cred.URL)
	}
	return nil
}

var _ core.TokenIssuer = (*TokenClient)(nil)
