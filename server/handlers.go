// Package server exposes the bot's HTTP surface: health, readiness, status,
// Prometheus metrics, admin actions and the OAuth authorization flows.
package server

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/streambot/twitchapi"
	"github.com/onnwee/streambot/youtubeapi"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// Status is the JSON body of /status.
type Status struct {
	Channel       string           `json:"channel"`
	Joined        bool             `json:"joined"`
	EventSub      string           `json:"eventsub"`
	MailboxDepth  int              `json:"mailbox_depth"`
	MusicQueue    int              `json:"music_queue"`
	NowPlaying    string           `json:"now_playing,omitempty"`
	RequestedBy   string           `json:"requested_by,omitempty"`
	SoundQueue    int              `json:"sound_queue"`
	SoundsPlaying int              `json:"sounds_playing"`
	Users         int              `json:"users"`
	Commands      []string         `json:"commands"`
	Counters      map[string]int64 `json:"counters,omitempty"`
}

// Bot is the running bot as seen by the HTTP surface.
type Bot interface {
	Status() Status
	Joined() bool
	Save(ctx context.Context) error
	SkipSound() int
	SkipSong() bool
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenSaver stores tokens obtained through the authorization code flow.
type TokenSaver interface {
	UpsertOAuthToken(ctx context.Context, provider, access, refresh string, expiry time.Time, scope string) error
}

// Options wires the handlers. DB, Tokens, TwitchApp and YouTube are optional;
// leave them nil (not typed-nil) when the backing service is not configured.
type Options struct {
	Bot          Bot
	DB           Pinger
	Tokens       TokenSaver
	TwitchApp    *twitchapi.OAuthApp
	TwitchScopes string
	YouTube      *youtubeapi.OAuth
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	opts       Options
	stateStore map[string]time.Time
	stateMu    sync.Mutex
}

func NewHandlers(opts Options) *Handlers {
	return &Handlers{opts: opts, stateStore: make(map[string]time.Time)}
}

// addOAuthState records a state for the callback. It refuses new states past
// maxOAuthStates so the map cannot grow without bound.
func (h *Handlers) addOAuthState(state string, expiry time.Time) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if len(h.stateStore)%100 == 0 {
		now := time.Now()
		for st, exp := range h.stateStore {
			if now.After(exp) {
				delete(h.stateStore, st)
			}
		}
	}
	if len(h.stateStore) >= maxOAuthStates {
		return false
	}
	h.stateStore[state] = expiry
	return true
}

// consumeOAuthState deletes state and reports whether it was valid.
func (h *Handlers) consumeOAuthState(state string) bool {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	exp, ok := h.stateStore[state]
	delete(h.stateStore, state)
	return ok && time.Now().Before(exp)
}
