// Package tts fetches synthesized speech from an HTTP text-to-speech endpoint.
package tts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/onnwee/streambot/telemetry"
)

const maxAudioBytes = 8 << 20

// Client calls GET <BaseURL>?voice=<voice>&text=<text> and returns the audio body.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: timeout}}
}

// Synthesize returns nil on any failure; callers drop the phrase.
func (c *Client) Synthesize(ctx context.Context, voice, text string) []byte {
	audio, err := c.fetch(ctx, voice, text)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("speech synthesis failed", slog.String("voice", voice), slog.Any("err", err), slog.String("component", "tts"))
		return nil
	}
	return audio
}

func (c *Client) fetch(ctx context.Context, voice, text string) ([]byte, error) {
	ctx, span := telemetry.StartSpan(ctx, "tts", "tts.synthesize", telemetry.HTTPMethodAttr(http.MethodGet))
	defer span.End()

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("tts url: %w", err)
	}
	q := u.Query()
	q.Set("voice", voice)
	q.Set("text", text)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tts status %d", resp.StatusCode)
	}
	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("tts body: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("tts returned no audio")
	}
	telemetry.SetSpanSuccess(span)
	return audio, nil
}
