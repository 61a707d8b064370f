// Package oauth keeps stored user tokens fresh. A Refresher wakes up on a
// jittered interval and refreshes a provider's token when its expiry falls
// inside the configured window.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/onnwee/streambot/twitchapi"
)

// Store is the oauth_tokens table. db.DB implements it.
type Store interface {
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (access, refresh string, expiry time.Time, scope string, err error)
}

// RefreshFunc performs provider-specific refresh and returns (access, refresh, expiry, scope)
type RefreshFunc func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error)

// TwitchRefresh adapts the Twitch OAuth app to a RefreshFunc.
func TwitchRefresh(app *twitchapi.OAuthApp) RefreshFunc {
	return func(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		res, err := app.Refresh(ctx, refreshToken)
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return res.AccessToken, res.RefreshToken, twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " "), nil
	}
}

// ErrNoRefreshToken means the stored row cannot be refreshed.
var ErrNoRefreshToken = errors.New("no refresh token stored")

// Refresher refreshes one provider's token.
type Refresher struct {
	Store    Store
	Provider string
	Refresh  RefreshFunc
	// Interval between checks; default 5m.
	Interval time.Duration
	// Window: refresh when remaining lifetime <= Window; default 15m.
	Window time.Duration
}

// Check refreshes the token if it is inside the window and reports whether it did.
func (r *Refresher) Check(ctx context.Context) (bool, error) {
	window := r.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	_, rt, exp, scope, err := r.Store.GetOAuthToken(ctx, r.Provider)
	if err != nil {
		return false, err
	}
	if rt == "" {
		return false, ErrNoRefreshToken
	}
	if !exp.IsZero() && time.Until(exp) > window {
		return false, nil
	}

	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	newAT, newRT, newExp, newScope, err := r.Refresh(ctx2, rt)
	cancel()
	if err != nil {
		return false, err
	}
	if newRT == "" {
		newRT = rt
	}
	if newScope == "" {
		newScope = scope
	}
	if err := r.Store.UpsertOAuthToken(ctx, r.Provider, newAT, newRT, newExp, strings.TrimSpace(newScope)); err != nil {
		return false, err
	}
	return true, nil
}

// Run checks immediately and then on a jittered interval until ctx is canceled.
func (r *Refresher) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log := slog.With(slog.String("provider", r.Provider), slog.String("component", "oauth_refresh"))
	for {
		refreshed, err := r.Check(ctx)
		switch {
		case errors.Is(err, ErrNoRefreshToken):
			log.Debug("no refresh token stored")
		case err != nil:
			log.Warn("token refresh failed", slog.Any("err", err))
		case refreshed:
			log.Info("token refreshed")
		}

		// ±20% jitter so several instances do not refresh in lockstep
		jitterRange := int64(interval / 5)
		//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
		next := interval + time.Duration(rand.Int63n(jitterRange*2+1)-jitterRange)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next):
		}
	}
}
