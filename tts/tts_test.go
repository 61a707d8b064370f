package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("voice") != "Brian" || r.URL.Query().Get("text") != "hello chat & friends" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3fakeaudio"))
	}))
	defer srv.Close()

	got := New(srv.URL+"/speech", time.Second).Synthesize(context.Background(), "Brian", "hello chat & friends")
	if string(got) != "ID3fakeaudio" {
		t.Errorf("audio = %q", got)
	}
}

func TestSynthesizeFailuresReturnEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "boom", http.StatusInternalServerError) }},
		{"empty body", func(w http.ResponseWriter, r *http.Request) {}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) { time.Sleep(300 * time.Millisecond) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			if got := New(srv.URL, 50*time.Millisecond).Synthesize(context.Background(), "Amy", "x"); len(got) != 0 {
				t.Errorf("expected empty audio, got %q", got)
			}
		})
	}
}

func TestSynthesizeBadURL(t *testing.T) {
	if got := New("://bad", time.Second).Synthesize(context.Background(), "Amy", "x"); got != nil {
		t.Errorf("expected nil, got %q", got)
	}
}
