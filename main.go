// Command streambot is the Twitch chat bot.
// It:
//   - Loads configuration and the static tables, and initializes structured logging.
//   - Optionally connects to Postgres (DB_DSN) and runs migrations; flat files are
//     used for the ledger and the thanked-followers set otherwise.
//   - Joins chat over IRC-over-websocket and dispatches commands, runs the music and
//     sound queues, persists the ledger, and listens on EventSub for follows and subs.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics and admin actions.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/onnwee/streambot/bot"
	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/config"
	"github.com/onnwee/streambot/crypto"
	"github.com/onnwee/streambot/db"
	"github.com/onnwee/streambot/economy"
	"github.com/onnwee/streambot/eventsub"
	"github.com/onnwee/streambot/music"
	"github.com/onnwee/streambot/oauth"
	"github.com/onnwee/streambot/server"
	"github.com/onnwee/streambot/sound"
	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/tts"
	"github.com/onnwee/streambot/twitchapi"
	"github.com/onnwee/streambot/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("chat credentials missing", slog.Any("err", err))
		os.Exit(1)
	}
	tables, err := config.LoadTables(cfg.TablesPath)
	if err != nil {
		slog.Error("tables load failed", slog.Any("err", err), slog.String("path", cfg.TablesPath))
		os.Exit(1)
	}

	telemetry.Init()
	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("streambot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	enc, err := crypto.FromEnv(os.Getenv)
	if err != nil {
		slog.Error("invalid ENCRYPTION_KEY", slog.Any("err", err))
		os.Exit(1)
	}

	// DB (optional)
	var database *db.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(ctx, cfg.DBDsn, enc)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer database.Close()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		sqlDB := database.SQL()
		err = db.RunMigrations(sqlDB)
		_ = sqlDB.Close()
		if err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
	}

	// Ledger
	ledger := economy.NewLedger(economy.Config{
		WinChance:   cfg.GambleWinChance,
		FollowBonus: cfg.FollowBonus,
		BanPenalty:  cfg.BanPenalty,
		Floor:       cfg.StartingBalance,
	})
	var ledgerStore economy.Store = &economy.FileStore{Path: cfg.LedgerPath}
	var thankedStore eventsub.ThankedStore = &eventsub.FileThankedStore{Path: cfg.ThankedPath}
	if database != nil {
		ledgerStore = &db.LedgerStore{DB: database}
		thankedStore = &db.ThankedStore{DB: database}
	}
	if snap, err := ledgerStore.Load(ctx); err != nil {
		slog.Warn("ledger load failed; starting empty", slog.Any("err", err), slog.String("component", "economy"))
	} else {
		ledger.Restore(snap)
		slog.Info("ledger loaded", slog.Int("users", len(snap.Users)), slog.String("component", "economy"))
	}

	// Queues
	mailbox := chat.NewMailbox(cfg.TwitchChannel)
	songs := music.NewQueue(music.NewMPVPlayer(cfg.PlayerCommand), mailbox)
	sounds := sound.NewQueue(sound.NewMPVPlayer(cfg.PlayerCommand, filepath.Join(cfg.DataDir, "tts")))
	synth := tts.New(cfg.TTSURL, cfg.HTTPTimeout)
	speaker := &bot.Speaker{Synth: synth, Sounds: sounds, Voice: cfg.DefaultVoice}

	deps := bot.Deps{
		Config:  cfg,
		Tables:  tables,
		Mailbox: mailbox,
		Ledger:  ledger,
		Store:   ledgerStore,
		Music:   songs,
		Sounds:  sounds,
		Library: sound.NewLibrary(tables.Clips, tables.Voices),
		Synth:   synth,
	}
	if videos := newVideoLookup(ctx, cfg, database); videos != nil {
		deps.Videos = videos
	}

	// Helix: bans and EventSub need the broadcaster's user token
	if cfg.HelixReady() {
		tokens := &twitchapi.StoreTokenSource{Provider: "twitch", Fallback: cfg.TwitchOAuthToken}
		if database != nil {
			tokens.Store = database
		}
		helix := &twitchapi.HelixClient{Tokens: tokens, ClientID: cfg.TwitchClientID, HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout}}
		broadcasterID, moderatorID, err := resolveIDs(ctx, helix, cfg)
		if err != nil {
			slog.Warn("helix user lookup failed; bans and eventsub disabled", slog.Any("err", err))
		} else {
			deps.Banner = helix
			deps.BroadcasterID = broadcasterID
			deps.ModeratorID = moderatorID

			thanked, err := eventsub.NewThankedSet(ctx, thankedStore)
			if err != nil {
				slog.Warn("thanked followers load failed", slog.Any("err", err), slog.String("component", "eventsub"))
			}
			listener := eventsub.NewListener(eventsub.Config{BroadcasterID: broadcasterID, ModeratorID: moderatorID}, helix, thanked, mailbox, speaker, ledger)
			deps.EventSub = &eventsub.Client{URL: cfg.EventSubURL, Listener: listener}
		}
	} else {
		slog.Info("helix disabled (missing TWITCH_CLIENT_ID); bans and eventsub are off")
	}

	// Centralized OAuth token refreshers
	var twitchApp *twitchapi.OAuthApp
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		twitchApp = &twitchapi.OAuthApp{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, RedirectURI: cfg.TwitchRedirectURI, HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout}}
	}
	if database != nil {
		if twitchApp != nil {
			deps.Refreshers = append(deps.Refreshers, &oauth.Refresher{Store: database, Provider: "twitch", Refresh: oauth.TwitchRefresh(twitchApp)})
		}
		if cfg.YTClientID != "" {
			deps.Refreshers = append(deps.Refreshers, &oauth.Refresher{Store: database, Provider: "youtube", Interval: 10 * time.Minute, Window: 20 * time.Minute, Refresh: youtubeRefresh(cfg)})
		}
	}

	b, err := bot.New(deps)
	if err != nil {
		slog.Error("bot init failed", slog.Any("err", err))
		os.Exit(1)
	}

	startPprof()

	// HTTP server (health/status/metrics/admin)
	if cfg.HTTPAddr != "off" {
		opts := server.Options{Bot: b, TwitchScopes: cfg.TwitchScopes}
		if database != nil {
			opts.DB = database
			opts.Tokens = database
			if twitchApp != nil && twitchApp.RedirectURI != "" {
				opts.TwitchApp = twitchApp
			}
			if cfg.YTClientID != "" && cfg.YTRedirectURI != "" {
				opts.YouTube = youtubeapi.NewOAuth(cfg, database)
			}
		}
		go func() {
			if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(ctx, server.NewHandlers(opts)), nil); err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	slog.Info("bot starting", slog.String("channel", cfg.TwitchChannel), slog.String("nick", cfg.TwitchBotUsername), slog.Int("commands", b.Registry().Len()), slog.Bool("tracing", telemetry.IsTracingEnabled()))
	if err := b.Run(ctx); err != nil {
		slog.Error("bot stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// setupLogging configures the default logger from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// newVideoLookup prefers an API key and falls back to the stored YouTube OAuth token.
// It returns nil when neither is available; song requests are then rejected.
func newVideoLookup(ctx context.Context, cfg *config.Config, database *db.DB) bot.VideoLookup {
	if cfg.YTAPIKey != "" {
		l, err := youtubeapi.NewLookup(ctx, cfg.HTTPTimeout, option.WithAPIKey(cfg.YTAPIKey))
		if err != nil {
			slog.Warn("youtube lookup init failed", slog.Any("err", err))
			return nil
		}
		return l
	}
	if cfg.YTClientID != "" && database != nil {
		svc, err := youtubeapi.NewOAuth(cfg, database).Service(ctx)
		if err != nil {
			slog.Warn("youtube oauth not ready; authorize via /auth/youtube/start and restart", slog.Any("err", err))
			return nil
		}
		return youtubeapi.NewLookupFromService(svc, cfg.HTTPTimeout)
	}
	slog.Info("song requests disabled (set YT_API_KEY or YouTube OAuth)")
	return nil
}

func resolveIDs(ctx context.Context, helix *twitchapi.HelixClient, cfg *config.Config) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*cfg.HTTPTimeout)
	defer cancel()
	broadcasterID, err := helix.GetUserID(ctx, cfg.TwitchChannel)
	if err != nil {
		return "", "", err
	}
	moderatorID := broadcasterID
	if cfg.TwitchBotUsername != cfg.TwitchChannel {
		if moderatorID, err = helix.GetUserID(ctx, cfg.TwitchBotUsername); err != nil {
			return "", "", err
		}
	}
	return broadcasterID, moderatorID, nil
}

func youtubeRefresh(cfg *config.Config) oauth.RefreshFunc {
	return func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		if cfg.YTClientID == "" {
			return "", "", time.Time{}, "", errors.New("youtube oauth not configured")
		}
		oc := &oauth2.Config{ClientID: cfg.YTClientID, ClientSecret: cfg.YTClientSecret, Endpoint: google.Endpoint, RedirectURL: cfg.YTRedirectURI}
		newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
	}
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}
