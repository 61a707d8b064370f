package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/option"

	"github.com/onnwee/streambot/config"
)

// mockTokenStore implements TokenStore for testing
type mockTokenStore struct {
	tokens map[string]tokenData
}

type tokenData struct {
	access  string
	refresh string
	expiry  time.Time
	raw     string
}

func newMockTokenStore() *mockTokenStore {
	return &mockTokenStore{tokens: make(map[string]tokenData)}
}

func (m *mockTokenStore) UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, raw string) error {
	m.tokens[provider] = tokenData{access: accessToken, refresh: refreshToken, expiry: expiry, raw: raw}
	return nil
}

func (m *mockTokenStore) GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, raw string, err error) {
	if data, ok := m.tokens[provider]; ok {
		return data.access, data.refresh, data.expiry, data.raw, nil
	}
	return "", "", time.Time{}, "", nil
}

func TestNewOAuth_ScopeParsing(t *testing.T) {
	tests := []struct {
		name       string
		scopesConf string
		wantLen    int
	}{
		{"default single scope", "", 1},
		{"comma separated", "scope1,scope2,scope3", 3},
		{"mixed separators", "scope1, scope2 scope3", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOAuth(&config.Config{YTClientID: "id", YTScopes: tt.scopesConf}, newMockTokenStore())
			if len(o.oauth.Scopes) != tt.wantLen {
				t.Errorf("scopes length = %d, want %d", len(o.oauth.Scopes), tt.wantLen)
			}
		})
	}
}

func TestAuthCodeURL(t *testing.T) {
	o := NewOAuth(&config.Config{YTClientID: "test-client-id", YTRedirectURI: "http://localhost/callback"}, newMockTokenStore())
	url := o.AuthCodeURL("test-state")
	for _, want := range []string{"client_id=test-client-id", "state=test-state", "access_type=offline"} {
		if !strings.Contains(url, want) {
			t.Errorf("URL missing %s: %s", want, url)
		}
	}
}

func TestRefreshIfNeeded(t *testing.T) {
	store := newMockTokenStore()
	o := NewOAuth(&config.Config{YTClientID: "id"}, store)

	if _, err := o.refreshIfNeeded(context.Background()); err == nil || !strings.Contains(err.Error(), "no youtube token") {
		t.Fatalf("expected missing token error, got %v", err)
	}

	_ = store.UpsertOAuthToken(context.Background(), "youtube", "valid-token", "refresh-token", time.Now().Add(10*time.Minute), "")
	tok, err := o.refreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("refreshIfNeeded() error = %v", err)
	}
	if tok.AccessToken != "valid-token" {
		t.Errorf("AccessToken = %s, want valid-token", tok.AccessToken)
	}
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"PT4M13S", 4*time.Minute + 13*time.Second, false},
		{"PT1H", time.Hour, false},
		{"P1DT2H3M4S", 26*time.Hour + 3*time.Minute + 4*time.Second, false},
		{"P0D", 0, false},
		{"PT45S", 45 * time.Second, false},
		{"P1W", 7 * 24 * time.Hour, false},
		{"", 0, true},
		{"4M13S", 0, true},
		{"PTXS", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseISODuration(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseISODuration(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseISODuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVideoID(t *testing.T) {
	tests := []struct {
		link string
		want string
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://youtube.com/watch?v=dQw4w9WgXcQ&t=42", "dQw4w9WgXcQ", true},
		{"youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://m.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"https://vimeo.com/123456", "", false},
		{"https://youtube.com/watch?v=short", "", false},
		{"not a link", "", false},
	}
	for _, tt := range tests {
		got, ok := VideoID(tt.link)
		if got != tt.want || ok != tt.ok {
			t.Errorf("VideoID(%q) = %q,%v want %q,%v", tt.link, got, ok, tt.want, tt.ok)
		}
	}
}

func newTestLookup(t *testing.T, body string, status int) *Lookup {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/videos") {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("id"); got != "dQw4w9WgXcQ" {
			t.Errorf("id query = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	l, err := NewLookup(context.Background(), time.Second, option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewLookup: %v", err)
	}
	return l
}

func TestLookupVideo(t *testing.T) {
	l := newTestLookup(t, `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"Never Gonna"},"contentDetails":{"duration":"PT3M33S"},"statistics":{"viewCount":"1500","likeCount":"42"}}]}`, http.StatusOK)
	v, err := l.Video(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if v.Title != "Never Gonna" || v.Seconds() != 213 || v.Likes != 42 || v.Views != 1500 {
		t.Errorf("unexpected video %+v", v)
	}
}

func TestLookupHiddenStatistics(t *testing.T) {
	l := newTestLookup(t, `{"items":[{"id":"dQw4w9WgXcQ","snippet":{"title":"T"},"contentDetails":{"duration":"PT10S"}}]}`, http.StatusOK)
	v, err := l.Video(context.Background(), "dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if v.Likes != -1 || v.Views != -1 {
		t.Errorf("hidden stats should be -1, got likes=%d views=%d", v.Likes, v.Views)
	}
}

func TestLookupFailures(t *testing.T) {
	l := newTestLookup(t, `{"items":[]}`, http.StatusOK)
	if _, err := l.Video(context.Background(), "dQw4w9WgXcQ"); !errors.Is(err, ErrVideoNotFound) {
		t.Errorf("empty items err = %v, want ErrVideoNotFound", err)
	}
	if _, err := l.Video(context.Background(), "https://example.com"); !errors.Is(err, ErrInvalidLink) {
		t.Errorf("bad link err = %v, want ErrInvalidLink", err)
	}
	l = newTestLookup(t, `{"error":{"code":403,"message":"quota"}}`, http.StatusForbidden)
	if _, err := l.Video(context.Background(), "dQw4w9WgXcQ"); err == nil {
		t.Error("expected API error")
	}
}
