package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const tokenURL = "https://id.twitch.tv/oauth2/token"

// AccessTokenSource yields a bearer token for Helix. Invalidate is called after a 401
// so the next Get fetches a fresh token where the source can.
type AccessTokenSource interface {
	Get(ctx context.Context) (string, error)
	Invalidate()
}

// TokenSource fetches and caches an app access (client credentials) token.
// App tokens cannot ban users or create websocket EventSub subscriptions; those need a user token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// Get returns a valid (fresh or cached) app access token.
func (ts *TokenSource) Get(ctx context.Context) (string, error) {
	ts.mu.RLock()
	if ts.token != "" && time.Until(ts.expiresAt) > 60*time.Second {
		tok := ts.token
		ts.mu.RUnlock()
		return tok, nil
	}
	ts.mu.RUnlock()
	return ts.refresh(ctx)
}

// SetToken seeds the cache.
func (ts *TokenSource) SetToken(tok string, expiresAt time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token, ts.expiresAt = tok, expiresAt
}

func (ts *TokenSource) Invalidate() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.token = ""
}

func (ts *TokenSource) refresh(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.token != "" && time.Until(ts.expiresAt) > 60*time.Second {
		return ts.token, nil
	}
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	form := url.Values{}
	form.Set("client_id", ts.ClientID)
	form.Set("client_secret", ts.ClientSecret)
	form.Set("grant_type", "client_credentials")
	var at struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := postForm(ctx, ts.HTTPClient, form, &at); err != nil {
		return "", fmt.Errorf("twitch app token: %w", err)
	}
	if at.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	ts.token = at.AccessToken
	ts.expiresAt = ComputeExpiry(at.ExpiresIn)
	return ts.token, nil
}

// StaticTokenSource always returns the same user token (the bot's chat token).
type StaticTokenSource string

func (s StaticTokenSource) Get(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no twitch user token configured")
	}
	return string(s), nil
}

func (StaticTokenSource) Invalidate() {}

// TokenReader is the read side of the oauth token table.
type TokenReader interface {
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, raw string, err error)
}

// StoreTokenSource reads the user token kept fresh by the oauth refresher and falls
// back to a static token when the store has none.
type StoreTokenSource struct {
	Store    TokenReader
	Provider string
	Fallback string
}

func (s *StoreTokenSource) Get(ctx context.Context) (string, error) {
	if s.Store != nil {
		access, _, expiry, _, err := s.Store.GetOAuthToken(ctx, s.Provider)
		switch {
		case err != nil:
			slog.Debug("token store read failed; using fallback", slog.Any("err", err), slog.String("provider", s.Provider))
		case access != "" && (expiry.IsZero() || time.Until(expiry) > 0):
			return access, nil
		}
	}
	return StaticTokenSource(s.Fallback).Get(ctx)
}

func (s *StoreTokenSource) Invalidate() {}

func postForm(ctx context.Context, hc *http.Client, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
