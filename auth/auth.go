// Package auth implements the AuthRefresher collaborator (spec.md §4.6):
// deciding, per job, whether an OAuth token is near expiry and invoking
// the external refresh capability.
package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	sce "github.com/ossf/gitlab-crawler/errors"
	"github.com/ossf/gitlab-crawler/job"
)

// RefreshResult is what a successful refresh round-trip yields.
type RefreshResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshFunc performs the external refresh-token grant round-trip
// (spec.md §1's AuthProvider collaborator). Implementations must be safe
// for concurrent use only insofar as the Refresher itself serializes calls
// per AuthConfig (spec.md §5).
type RefreshFunc func(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error)

// Refresher decides per-job whether an AuthConfig is near expiry and
// refreshes it in place (spec.md §4.6).
type Refresher struct {
	refresh RefreshFunc
	buffer  time.Duration
}

// New creates a Refresher. buffer is how close to expiry (spec.md §4.6
// "buffer (minutes)") triggers a refresh; refresh performs the actual
// token exchange.
func New(refresh RefreshFunc, buffer time.Duration) *Refresher {
	if buffer <= 0 {
		buffer = 5 * time.Minute
	}
	return &Refresher{refresh: refresh, buffer: buffer}
}

// Refresh mutates cfg in place if refreshToken/client credentials are
// present and tokenExpiresAt is within buffer of now, invoking cfg.OnRefresh
// on success. A cfg with no RefreshToken/ClientID/ClientSecret, or with no
// expiry set, is left untouched (nothing to refresh against).
func (r *Refresher) Refresh(ctx context.Context, cfg *job.AuthConfig) error {
	if cfg == nil {
		return nil
	}
	if cfg.RefreshToken == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil
	}
	if cfg.TokenExpiresAt.IsZero() {
		return nil
	}
	if time.Until(cfg.TokenExpiresAt) > r.buffer {
		return nil
	}

	result, err := r.refresh(ctx, *cfg)
	if err != nil {
		return sce.WithMessage(sce.ErrAuthRefresh, err.Error())
	}

	cfg.OAuthToken = result.AccessToken
	if result.RefreshToken != "" {
		cfg.RefreshToken = result.RefreshToken
	}
	if !result.ExpiresAt.IsZero() {
		cfg.TokenExpiresAt = result.ExpiresAt
	}

	if cfg.OnRefresh != nil {
		cfg.OnRefresh(cfg.OAuthToken)
	}
	return nil
}

// OAuthRefresher performs the refresh_token grant against a GitLab
// instance's /oauth/token endpoint using golang.org/x/oauth2, the OAuth2
// library already present in the teacher's dependency graph (SPEC_FULL.md
// DOMAIN STACK, auth section).
type OAuthRefresher struct {
	baseURL string
}

// NewOAuthRefresher creates a RefreshFunc bound to baseURL (the GitLab
// instance root, e.g. "https://gitlab.example.com").
func NewOAuthRefresher(baseURL string) RefreshFunc {
	o := &OAuthRefresher{baseURL: baseURL}
	return o.Refresh
}

// Refresh implements RefreshFunc via oauth2.Config.TokenSource.
func (o *OAuthRefresher) Refresh(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error) {
	oconf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: fmt.Sprintf("%s/oauth/token", o.baseURL),
		},
	}

	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	src := oconf.TokenSource(ctx, tok)

	newTok, err := src.Token()
	if err != nil {
		return RefreshResult{}, fmt.Errorf("oauth2 refresh: %w", err)
	}

	return RefreshResult{
		AccessToken:  newTok.AccessToken,
		RefreshToken: newTok.RefreshToken,
		ExpiresAt:    newTok.Expiry,
	}, nil
}
