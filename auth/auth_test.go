package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	sce "github.com/ossf/gitlab-crawler/errors"
	"github.com/ossf/gitlab-crawler/job"
)

func TestRefreshSkipsWhenNoRefreshCredentials(t *testing.T) {
	t.Parallel()

	called := false
	r := New(func(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error) {
		called = true
		return RefreshResult{}, nil
	}, time.Minute)

	cfg := &job.AuthConfig{OAuthToken: "tok"}
	if err := r.Refresh(context.Background(), cfg); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if called {
		t.Error("Refresh must not invoke refresh func without refresh credentials")
	}
}

func TestRefreshSkipsWhenNotNearExpiry(t *testing.T) {
	t.Parallel()

	called := false
	r := New(func(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error) {
		called = true
		return RefreshResult{}, nil
	}, time.Minute)

	cfg := &job.AuthConfig{
		OAuthToken:     "tok",
		RefreshToken:   "rt",
		ClientID:       "id",
		ClientSecret:   "secret",
		TokenExpiresAt: time.Now().Add(time.Hour),
	}
	if err := r.Refresh(context.Background(), cfg); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if called {
		t.Error("Refresh must not invoke refresh func when far from expiry")
	}
}

func TestRefreshInvokesWhenNearExpiry(t *testing.T) {
	t.Parallel()

	var gotCfg job.AuthConfig
	var refreshedToken string

	r := New(func(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error) {
		gotCfg = cfg
		return RefreshResult{
			AccessToken:  "new-token",
			RefreshToken: "new-refresh",
			ExpiresAt:    time.Now().Add(2 * time.Hour),
		}, nil
	}, 5*time.Minute)

	cfg := &job.AuthConfig{
		OAuthToken:     "old-token",
		RefreshToken:   "old-refresh",
		ClientID:       "id",
		ClientSecret:   "secret",
		TokenExpiresAt: time.Now().Add(time.Minute),
		OnRefresh:      func(token string) { refreshedToken = token },
	}

	if err := r.Refresh(context.Background(), cfg); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if gotCfg.ClientID != "id" {
		t.Errorf("refresh func received ClientID = %q, want id", gotCfg.ClientID)
	}
	if cfg.OAuthToken != "new-token" {
		t.Errorf("cfg.OAuthToken = %q, want new-token", cfg.OAuthToken)
	}
	if cfg.RefreshToken != "new-refresh" {
		t.Errorf("cfg.RefreshToken = %q, want new-refresh", cfg.RefreshToken)
	}
	if refreshedToken != "new-token" {
		t.Errorf("OnRefresh callback got %q, want new-token", refreshedToken)
	}
}

func TestRefreshWrapsErrAuthRefresh(t *testing.T) {
	t.Parallel()

	r := New(func(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error) {
		return RefreshResult{}, errors.New("token endpoint returned 401")
	}, time.Minute)

	cfg := &job.AuthConfig{
		RefreshToken:   "rt",
		ClientID:       "id",
		ClientSecret:   "secret",
		TokenExpiresAt: time.Now().Add(time.Second),
	}

	err := r.Refresh(context.Background(), cfg)
	if err == nil {
		t.Fatal("Refresh() error = nil, want non-nil")
	}
	if !errors.Is(err, sce.ErrAuthRefresh) {
		t.Errorf("Refresh() error = %v, want it to wrap ErrAuthRefresh", err)
	}
}

func TestRefreshNilConfigIsNoop(t *testing.T) {
	t.Parallel()

	r := New(func(ctx context.Context, cfg job.AuthConfig) (RefreshResult, error) {
		t.Fatal("refresh func must not be called for a nil config")
		return RefreshResult{}, nil
	}, time.Minute)

	if err := r.Refresh(context.Background(), nil); err != nil {
		t.Fatalf("Refresh(nil) error = %v", err)
	}
}
