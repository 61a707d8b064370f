package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func tokenServer(t *testing.T, calls *int, body map[string]interface{}, status int) *http.Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: server.URL}}
}

func TestTokenSource_GetCached(t *testing.T) {
	calls := 0
	hc := tokenServer(t, &calls, map[string]interface{}{"access_token": "test-token-123", "expires_in": 3600}, http.StatusOK)
	ts := &TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: hc}

	for i := 0; i < 3; i++ {
		tok, err := ts.Get(context.Background())
		if err != nil || tok != "test-token-123" {
			t.Fatalf("Get() = %q, %v", tok, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 API call, got %d", calls)
	}

	ts.Invalidate()
	if _, err := ts.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("Invalidate should force a refetch, calls = %d", calls)
	}
}

func TestTokenSource_Errors(t *testing.T) {
	if _, err := (&TokenSource{}).Get(context.Background()); err == nil || !strings.Contains(err.Error(), "missing client id") {
		t.Errorf("missing credentials err = %v", err)
	}

	calls := 0
	hc := tokenServer(t, &calls, map[string]interface{}{"message": "invalid client"}, http.StatusForbidden)
	if _, err := (&TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: hc}).Get(context.Background()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("server error err = %v", err)
	}

	hc = tokenServer(t, &calls, map[string]interface{}{"expires_in": 3600}, http.StatusOK)
	if _, err := (&TokenSource{ClientID: "c", ClientSecret: "s", HTTPClient: hc}).Get(context.Background()); err == nil {
		t.Error("expected error for empty access_token")
	}
}

func TestStaticTokenSource(t *testing.T) {
	if tok, err := StaticTokenSource("abc").Get(context.Background()); err != nil || tok != "abc" {
		t.Errorf("Get() = %q, %v", tok, err)
	}
	if _, err := StaticTokenSource("").Get(context.Background()); err == nil {
		t.Error("empty static token should error")
	}
}

type fakeReader struct {
	access string
	expiry time.Time
	err    error
}

func (f fakeReader) GetOAuthToken(context.Context, string) (string, string, time.Time, string, error) {
	return f.access, "", f.expiry, "", f.err
}

func TestStoreTokenSource(t *testing.T) {
	tests := []struct {
		name   string
		reader fakeReader
		want   string
	}{
		{"stored token", fakeReader{access: "db-token", expiry: time.Now().Add(time.Hour)}, "db-token"},
		{"expired stored token", fakeReader{access: "old", expiry: time.Now().Add(-time.Minute)}, "env-token"},
		{"store error", fakeReader{err: errors.New("db down")}, "env-token"},
		{"no stored token", fakeReader{}, "env-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &StoreTokenSource{Store: tt.reader, Provider: "twitch", Fallback: "env-token"}
			got, err := s.Get(context.Background())
			if err != nil || got != tt.want {
				t.Errorf("Get() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestOAuthApp_AuthorizeURL(t *testing.T) {
	app := &OAuthApp{ClientID: "cid", RedirectURI: "http://localhost/cb"}
	raw, err := app.AuthorizeURL("chat:read, chat:edit  moderator:manage:banned_users", "xyz")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("client_id") != "cid" || q.Get("state") != "xyz" || q.Get("response_type") != "code" {
		t.Errorf("query = %v", q)
	}
	if q.Get("scope") != "chat:read chat:edit moderator:manage:banned_users" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
	if _, err := (&OAuthApp{}).AuthorizeURL("", ""); err == nil {
		t.Error("expected error without client id")
	}
}

func TestOAuthApp_Refresh(t *testing.T) {
	calls := 0
	hc := tokenServer(t, &calls, map[string]interface{}{"access_token": "new", "refresh_token": "r2", "expires_in": 100, "scope": []string{"chat:read"}}, http.StatusOK)
	app := &OAuthApp{ClientID: "c", ClientSecret: "s", HTTPClient: hc}
	res, err := app.Refresh(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if res.AccessToken != "new" || res.RefreshToken != "r2" || len(res.Scope) != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := app.Refresh(context.Background(), ""); err == nil {
		t.Error("expected error without refresh token")
	}
}

func TestComputeExpiry(t *testing.T) {
	before := time.Now()
	if got := ComputeExpiry(0); got.Sub(before) < 59*time.Minute {
		t.Errorf("default expiry too short: %v", got.Sub(before))
	}
	if got := ComputeExpiry(30); got.Sub(before) > 31*time.Second {
		t.Errorf("expiry = %v", got.Sub(before))
	}
}
