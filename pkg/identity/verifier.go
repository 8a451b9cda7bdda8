// Package identity verifies bearer tokens presented by connecting clients
// and resolves them to a stable subject identity.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Identity is the verified owner of a connection. SubjectID is the stable
// key for sessions and stored goals.
type Identity struct {
	SubjectID string
	Email     string
	Name      string
}

// Verifier validates a raw token and resolves the identity behind it.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

const googleTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// GoogleVerifier validates Google ID tokens against the tokeninfo endpoint
// and checks that the token was issued for this application.
type GoogleVerifier struct {
	audience string
	endpoint string
	client   *http.Client
	logger   zerolog.Logger
}

// GoogleConfig holds Google verifier configuration.
type GoogleConfig struct {
	Audience string
	Endpoint string
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// NewGoogleVerifier creates a Google ID token verifier.
func NewGoogleVerifier(cfg GoogleConfig) (*GoogleVerifier, error) {
	if cfg.Audience == "" {
		return nil, fmt.Errorf("audience is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = googleTokenInfoURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &GoogleVerifier{
		audience: cfg.Audience,
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   cfg.Logger,
	}, nil
}

// Verify resolves a Google ID token to an identity. The token's audience
// must match the configured client ID.
func (v *GoogleVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("token is empty")
	}

	reqURL := v.endpoint + "?id_token=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("failed to build tokeninfo request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Warn().Int("status", resp.StatusCode).Msg("Token rejected by tokeninfo")
		return Identity{}, fmt.Errorf("invalid token: tokeninfo returned %d", resp.StatusCode)
	}

	var claims struct {
		Sub   string `json:"sub"`
		Aud   string `json:"aud"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return Identity{}, fmt.Errorf("failed to decode tokeninfo response: %w", err)
	}

	if claims.Aud != v.audience {
		return Identity{}, fmt.Errorf("token audience mismatch")
	}
	if claims.Sub == "" {
		return Identity{}, fmt.Errorf("token has no subject")
	}

	return Identity{
		SubjectID: claims.Sub,
		Email:     claims.Email,
		Name:      claims.Name,
	}, nil
}

// StaticVerifier accepts any non-empty token and uses it verbatim as the
// subject id. Intended for local development with auth disabled.
type StaticVerifier struct{}

// Verify implements Verifier.
func (StaticVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("token is empty")
	}
	return Identity{SubjectID: token}, nil
}
