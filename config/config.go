// Package config loads environment variables and provides a typed Config used across the bot.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required chat credentials, use ValidateChatReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultIRCURL is the plain websocket endpoint for Twitch chat.
	DefaultIRCURL = "ws://irc-ws.chat.twitch.tv:80"
	// DefaultEventSubURL is the EventSub websocket endpoint.
	DefaultEventSubURL = "wss://eventsub.wss.twitch.tv/ws"
	// DefaultWelcome is sent once after the first JOIN confirmation.
	DefaultWelcome = "coffee481Happy BatChest coffee481Happy"
)

type Config struct {
	// Twitch
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchScopes       string
	TwitchRedirectURI  string
	IRCURL             string
	EventSubURL        string

	// Bot behavior
	Experimental     bool
	Welcome          string
	TickInterval     time.Duration
	PersistInterval  time.Duration
	WorkerPoolSize   int
	CommandRate      float64 // per-user invocations per second
	CommandBurst     int
	CelebrateKeyword string
	TablesPath       string
	TraceFrames      bool

	// Music
	MaxSongSeconds int
	MinSongLikes   int64
	MinSongViews   int64
	PlayerCommand  string

	// Sound / TTS
	TTSURL       string
	DefaultVoice string

	// Economy
	GambleWinChance float64
	FollowBonus     int64
	BanPenalty      int64
	StartingBalance int64

	// HTTP
	HTTPAddr string

	// Storage
	DataDir     string
	LedgerPath  string
	ThankedPath string
	DBDsn       string

	// External APIs
	HTTPTimeout time.Duration
	YTAPIKey    string

	// YouTube OAuth (fallback when no API key is set)
	YTClientID     string
	YTClientSecret string
	YTRedirectURI  string
	YTScopes       string
}

// Load reads environment variables and applies defaults. It doesn't fail if Twitch creds are missing;
// use ValidateChatReady() before connecting. Malformed numeric values are reported as errors.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = strings.TrimPrefix(strings.ToLower(os.Getenv("TWITCH_CHANNEL")), "#")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	if cfg.TwitchBotUsername == "" {
		// the original bot logs in as the broadcaster
		cfg.TwitchBotUsername = cfg.TwitchChannel
	}
	cfg.TwitchOAuthToken = strings.TrimPrefix(os.Getenv("TWITCH_OAUTH_TOKEN"), "oauth:")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		cfg.TwitchScopes = "chat:read chat:edit moderator:manage:banned_users moderator:read:followers channel:read:subscriptions"
	}
	cfg.TwitchRedirectURI = os.Getenv("TWITCH_REDIRECT_URI")
	cfg.IRCURL = envOr("TWITCH_IRC_URL", DefaultIRCURL)
	cfg.EventSubURL = envOr("TWITCH_EVENTSUB_URL", DefaultEventSubURL)

	cfg.Experimental = os.Getenv("BOT_EXPERIMENTAL") == "1"
	cfg.Welcome = envOr("BOT_WELCOME", DefaultWelcome)
	cfg.CelebrateKeyword = strings.ToLower(envOr("BOT_CELEBRATE_KEYWORD", "pog"))
	cfg.TablesPath = envOr("BOT_TABLES_PATH", "bot.yaml")
	cfg.TraceFrames = os.Getenv("TRACE_FRAMES") == "1"
	cfg.PlayerCommand = envOr("PLAYER_COMMAND", "mpv")
	cfg.TTSURL = envOr("TTS_URL", "https://api.streamelements.com/kappa/v2/speech")
	cfg.DefaultVoice = envOr("TTS_DEFAULT_VOICE", "Brian")

	var err error
	if cfg.TickInterval, err = durationEnv("BOT_TICK_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.PersistInterval, err = durationEnv("BOT_PERSIST_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = durationEnv("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.WorkerPoolSize, err = intEnv("BOT_WORKERS", 8); err != nil {
		return nil, err
	}
	if cfg.CommandBurst, err = intEnv("BOT_COMMAND_BURST", 3); err != nil {
		return nil, err
	}
	if cfg.CommandRate, err = floatEnv("BOT_COMMAND_RATE", 0.5); err != nil {
		return nil, err
	}
	if cfg.MaxSongSeconds, err = intEnv("MUSIC_MAX_SECONDS", 600); err != nil {
		return nil, err
	}
	minLikes, err := intEnv("MUSIC_MIN_LIKES", 0)
	if err != nil {
		return nil, err
	}
	cfg.MinSongLikes = int64(minLikes)
	minViews, err := intEnv("MUSIC_MIN_VIEWS", 0)
	if err != nil {
		return nil, err
	}
	cfg.MinSongViews = int64(minViews)

	if cfg.GambleWinChance, err = floatEnv("GAMBLE_WIN_CHANCE", 0.5); err != nil {
		return nil, err
	}
	if cfg.GambleWinChance < 0 || cfg.GambleWinChance > 1 {
		return nil, fmt.Errorf("invalid GAMBLE_WIN_CHANCE %v: must be within [0,1]", cfg.GambleWinChance)
	}
	bonus, err := intEnv("FOLLOW_BONUS", 100)
	if err != nil {
		return nil, err
	}
	cfg.FollowBonus = int64(bonus)
	penalty, err := intEnv("BAN_PENALTY", 10)
	if err != nil {
		return nil, err
	}
	cfg.BanPenalty = int64(penalty)
	start, err := intEnv("GAMBLE_FLOOR", 500)
	if err != nil {
		return nil, err
	}
	cfg.StartingBalance = int64(start)

	// HTTP_ADDR=off disables the status server
	cfg.HTTPAddr = envOr("HTTP_ADDR", ":8080")

	// Storage
	cfg.DataDir = envOr("DATA_DIR", "data")
	cfg.LedgerPath = envOr("LEDGER_PATH", cfg.DataDir+"/ledger.txt")
	cfg.ThankedPath = envOr("THANKED_PATH", cfg.DataDir+"/thanked.txt")
	// Postgres is optional; flat files are used when DB_DSN is empty.
	cfg.DBDsn = os.Getenv("DB_DSN")

	cfg.YTAPIKey = os.Getenv("YT_API_KEY")
	cfg.YTClientID = os.Getenv("YT_CLIENT_ID")
	cfg.YTClientSecret = os.Getenv("YT_CLIENT_SECRET")
	cfg.YTRedirectURI = os.Getenv("YT_REDIRECT_URI")
	cfg.YTScopes = os.Getenv("YT_SCOPES")
	if cfg.YTScopes == "" {
		cfg.YTScopes = "https://www.googleapis.com/auth/youtube.readonly"
	}

	return cfg, nil
}

// ValidateChatReady checks required fields before the chat session is opened.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// HelixReady reports whether REST calls (bans, EventSub subscriptions) can be made.
func (c *Config) HelixReady() bool { return c.TwitchClientID != "" && c.TwitchOAuthToken != "" }

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want positive duration", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
