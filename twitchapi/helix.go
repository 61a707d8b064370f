// Package twitchapi contains the Helix REST calls the bot needs (user lookup,
// bans, EventSub subscriptions) and the token sources that authorize them.
package twitchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/streambot/telemetry"
)

const (
	helixBase = "https://api.twitch.tv/helix"
	// MaxBanSeconds is the longest timeout Helix accepts (two weeks).
	MaxBanSeconds = 1209600
	maxAttempts   = 3
)

// ErrUserNotFound is returned when a login does not resolve.
var ErrUserNotFound = errors.New("user not found")

// APIError is a non-2xx Helix response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("helix status %d: %s", e.Status, e.Message)
}

// HelixClient calls Helix with the token from Tokens.
type HelixClient struct {
	Tokens     AccessTokenSource
	ClientID   string
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// do sends one Helix request, retrying 429/5xx with a short backoff and a 401 once
// after invalidating the token. out may be nil.
func (hc *HelixClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix "+method+" "+path, telemetry.HTTPMethodAttr(method), telemetry.HTTPRouteAttr(path))
	defer span.End()

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
	}
	u := helixBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	refreshed := false
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tok, err := hc.Tokens.Get(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Client-Id", hc.ClientID)
		req.Header.Set("Authorization", "Bearer "+tok)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := hc.http().Do(req)
		if err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		status := resp.StatusCode
		telemetry.SetSpanHTTPStatus(span, status)
		if status >= 200 && status < 300 {
			err := decodeBody(resp, out)
			if err != nil {
				telemetry.RecordError(span, err)
			} else {
				telemetry.SetSpanSuccess(span)
			}
			return err
		}
		lastErr = &APIError{Status: status, Message: readMessage(resp)}

		var wait time.Duration
		switch {
		case status == http.StatusUnauthorized && !refreshed:
			refreshed = true
			hc.Tokens.Invalidate()
		case status == http.StatusTooManyRequests:
			wait = retryAfter(resp.Header)
		case status >= 500:
			wait = time.Duration(attempt+1) * 200 * time.Millisecond
		default:
			telemetry.RecordError(span, lastErr)
			return lastErr
		}
		slog.Warn("helix request retry", slog.String("path", path), slog.Int("status", status), slog.Int("attempt", attempt+1), slog.Duration("wait", wait), slog.String("component", "helix"))
		if wait > 0 && attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	telemetry.RecordError(span, lastErr)
	return lastErr
}

func decodeBody(resp *http.Response, out any) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func readMessage(resp *http.Response) string {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(b, &e) == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(b))
}

// retryAfter honors Retry-After, then Ratelimit-Reset, capped at 5s.
func retryAfter(h http.Header) time.Duration {
	const maxWait = 5 * time.Second
	if s, err := strconv.Atoi(h.Get("Retry-After")); err == nil && s >= 0 {
		return min(time.Duration(s)*time.Second, maxWait)
	}
	if reset, err := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64); err == nil {
		return min(max(time.Until(time.Unix(reset, 0)), 0), maxWait)
	}
	return time.Second
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.do(ctx, http.MethodGet, "/users", url.Values{"login": {strings.ToLower(login)}}, nil, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", ErrUserNotFound
	}
	return body.Data[0].ID, nil
}

// BanUser bans userID in the broadcaster's channel. seconds <= 0 is a permanent
// ban; longer timeouts are capped at MaxBanSeconds.
func (hc *HelixClient) BanUser(ctx context.Context, broadcasterID, moderatorID, userID string, seconds int, reason string) error {
	if broadcasterID == "" || moderatorID == "" || userID == "" {
		return fmt.Errorf("ban: broadcaster, moderator and user ids are required")
	}
	type banData struct {
		UserID   string `json:"user_id"`
		Duration int    `json:"duration,omitempty"`
		Reason   string `json:"reason,omitempty"`
	}
	data := banData{UserID: userID, Reason: reason}
	if seconds > 0 {
		data.Duration = min(seconds, MaxBanSeconds)
	}
	q := url.Values{"broadcaster_id": {broadcasterID}, "moderator_id": {moderatorID}}
	if err := hc.do(ctx, http.MethodPost, "/moderation/bans", q, map[string]banData{"data": data}, nil); err != nil {
		return fmt.Errorf("ban user %s: %w", userID, err)
	}
	return nil
}

// SubscriptionRequest is the body of POST /eventsub/subscriptions.
type SubscriptionRequest struct {
	Type      string                `json:"type"`
	Version   string                `json:"version"`
	Condition map[string]string     `json:"condition"`
	Transport SubscriptionTransport `json:"transport"`
}

type SubscriptionTransport struct {
	Method    string `json:"method"`
	SessionID string `json:"session_id,omitempty"`
}

// CreateEventSubSubscription registers a subscription and returns its id.
func (hc *HelixClient) CreateEventSubSubscription(ctx context.Context, req SubscriptionRequest) (string, error) {
	var body struct {
		Data []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := hc.do(ctx, http.MethodPost, "/eventsub/subscriptions", nil, req, &body); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", req.Type, err)
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("subscribe %s: empty response", req.Type)
	}
	return body.Data[0].ID, nil
}
