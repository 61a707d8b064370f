// Package bot assembles the chat core, the queues and the economy into the
// running bot: it registers the fixed command table, adapts the moderation and
// EventSub collaborators, and runs the periodic tasks.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/config"
	"github.com/onnwee/streambot/economy"
	"github.com/onnwee/streambot/eventsub"
	"github.com/onnwee/streambot/music"
	"github.com/onnwee/streambot/oauth"
	"github.com/onnwee/streambot/server"
	"github.com/onnwee/streambot/sound"
	"github.com/onnwee/streambot/youtubeapi"
)

// VideoLookup resolves a song request link. youtubeapi.Lookup implements it.
type VideoLookup interface {
	Video(ctx context.Context, link string) (youtubeapi.Video, error)
}

// Deps are the collaborators the bot is built from. Videos, Banner, EventSub and
// Refreshers are optional.
type Deps struct {
	Config  *config.Config
	Tables  *config.Tables
	Mailbox *chat.Mailbox
	Ledger  *economy.Ledger
	Store   economy.Store
	Music   *music.Queue
	Sounds  *sound.Queue
	Library *sound.Library
	Synth   sound.Synthesizer
	Videos  VideoLookup

	// Banner issues timeouts and bans. BroadcasterID and ModeratorID are the
	// Helix ids the bans are issued for.
	Banner        Banner
	BroadcasterID string
	ModeratorID   string

	EventSub   *eventsub.Client
	Refreshers []*oauth.Refresher
}

// Bot is the assembled bot.
type Bot struct {
	deps       Deps
	cfg        *config.Config
	registry   *chat.Registry
	dispatcher *chat.Dispatcher
	pool       *chat.Pool
	session    *chat.Session
	transport  *chat.Transport
}

// New builds the registry, dispatcher and chat session from deps.
func New(deps Deps) (*Bot, error) {
	if deps.Config == nil || deps.Mailbox == nil || deps.Ledger == nil || deps.Music == nil || deps.Sounds == nil {
		return nil, errors.New("bot: config, mailbox, ledger and queues are required")
	}
	if deps.Tables == nil {
		deps.Tables = config.DefaultTables()
	}
	if deps.Library == nil {
		deps.Library = sound.NewLibrary(deps.Tables.Clips, deps.Tables.Voices)
	}
	cfg := deps.Config
	b := &Bot{deps: deps, cfg: cfg}

	b.registry = chat.NewRegistry(cfg.Experimental)
	b.registerCommands()

	b.pool = chat.NewPool(cfg.WorkerPoolSize)
	b.dispatcher = chat.NewDispatcher(b.registry, deps.Mailbox, b.pool, cfg.CommandRate, cfg.CommandBurst)
	b.dispatcher.Filter = chat.Filter{Words: bannedWords(deps.Tables), Keyword: cfg.CelebrateKeyword}
	b.dispatcher.Users = deps.Ledger
	b.dispatcher.Moderator = &Moderator{
		Banner:        deps.Banner,
		Ledger:        deps.Ledger,
		BroadcasterID: deps.BroadcasterID,
		ModeratorID:   deps.ModeratorID,
	}

	var tracer *chat.FrameTracer
	if cfg.TraceFrames {
		tracer = chat.NewFrameTracer(os.Stderr)
	}
	b.session = chat.NewSession(chat.SessionConfig{
		Channel: cfg.TwitchChannel,
		Nick:    cfg.TwitchBotUsername,
		Token:   cfg.TwitchOAuthToken,
		Welcome: cfg.Welcome,
	}, b.dispatcher, tracer)
	b.transport = &chat.Transport{URL: cfg.IRCURL, Hooks: b.session, Tracer: tracer}
	return b, nil
}

func bannedWords(t *config.Tables) []chat.BannedWord {
	out := make([]chat.BannedWord, 0, len(t.BannedWords))
	for _, w := range t.BannedWords {
		out = append(out, chat.BannedWord{Word: w.Word, Seconds: int(w.Seconds)})
	}
	return out
}

// Registry exposes the command table.
func (b *Bot) Registry() *chat.Registry { return b.registry }

// Dispatcher exposes the dispatcher, mostly for tests that feed events directly.
func (b *Bot) Dispatcher() *chat.Dispatcher { return b.dispatcher }

// Speaker returns the adapter EventSub uses to queue thank-you speech.
func (b *Bot) Speaker() *Speaker {
	return &Speaker{Synth: b.deps.Synth, Sounds: b.deps.Sounds, Voice: b.cfg.DefaultVoice}
}

// Run starts every background task and blocks until ctx is canceled or the chat
// transport gives up. On the way out the ledger is saved once more.
func (b *Bot) Run(ctx context.Context) error {
	tick := b.cfg.TickInterval
	done := make(chan struct{})
	running := 0
	start := func(name string, fn func()) {
		running++
		go func() {
			defer func() { done <- struct{}{} }()
			fn()
			slog.Debug("task stopped", slog.String("task", name), slog.String("component", "bot"))
		}()
	}

	start("mailbox", func() { b.deps.Mailbox.Run(ctx, tick, b.transport.Send) })
	start("music", func() { b.deps.Music.Run(ctx, tick) })
	start("sound", func() { b.deps.Sounds.Run(ctx, tick) })
	if b.deps.Store != nil {
		start("persistence", func() { b.deps.Ledger.RunPersistence(ctx, b.deps.Store, b.cfg.PersistInterval) })
	}
	if b.deps.EventSub != nil {
		start("eventsub", func() {
			if err := b.deps.EventSub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("eventsub client stopped", slog.Any("err", err), slog.String("component", "eventsub"))
			}
		})
	}
	for _, r := range b.deps.Refreshers {
		start("oauth_refresh", func() { r.Run(ctx) })
	}

	err := b.transport.Run(ctx)
	for i := 0; i < running; i++ {
		<-done
	}
	b.pool.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Joined reports whether the chat session has joined the channel.
func (b *Bot) Joined() bool { return b.session.Joined() }

// Status snapshots the bot for the HTTP status endpoint.
func (b *Bot) Status() server.Status {
	st := server.Status{
		Channel:       b.cfg.TwitchChannel,
		Joined:        b.session.Joined(),
		EventSub:      "disabled",
		MailboxDepth:  b.deps.Mailbox.Len(),
		MusicQueue:    b.deps.Music.Len(),
		SoundQueue:    b.deps.Sounds.Len(),
		SoundsPlaying: b.deps.Sounds.Playing(),
		Users:         b.deps.Ledger.Len(),
		Commands:      b.registry.Names(),
		Counters:      b.deps.Ledger.Snapshot().Counters,
	}
	if b.deps.EventSub != nil && b.deps.EventSub.Listener != nil {
		st.EventSub = b.deps.EventSub.Listener.State().String()
	}
	if song, ok := b.deps.Music.NowPlaying(); ok {
		st.NowPlaying = song.Video.Title
		st.RequestedBy = song.Requester
	}
	return st
}

// Save flushes the ledger to its store.
func (b *Bot) Save(ctx context.Context) error {
	if b.deps.Store == nil {
		return errors.New("no ledger store configured")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return b.deps.Ledger.Flush(ctx, b.deps.Store)
}

// SkipSound drops the sound group at the head of the queue.
func (b *Bot) SkipSound() int { return b.deps.Sounds.SkipGroup() }

// SkipSong stops the playing song whoever requested it.
func (b *Bot) SkipSong() bool { return b.deps.Music.ForceSkip() }

var _ server.Bot = (*Bot)(nil)
