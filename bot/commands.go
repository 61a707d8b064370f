package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/economy"
	"github.com/onnwee/streambot/music"
	"github.com/onnwee/streambot/sound"
	"github.com/onnwee/streambot/telemetry"
)

var (
	ttsBadges = []string{"subscriber", "vip", "moderator", "broadcaster"}
	modBadges = []string{"moderator", "broadcaster"}
)

const (
	replyInvalidLink = "pepeLoser invalid link"
	replyTooLong     = "AwkwardMonkey video too long"
	replyNotPopular  = "pepeLoser not popular enough"
	replySongAdded   = "FeelsOkayMan song added to the queue"
	replyNoMusic     = "Aware no music is playing"
	replyNotYourSong = "Clueless can't skip other people's songs"
	replyUnknownUser = "pepeLoser who is that?"
	replyGambleUsage = "usage: !gamble <all|half|amount>"
	replyCreditUsage = "usage: !credit <nick> <amount>"
	replyNewHere     = "welcome to the stream peepoHappy make yourself at home"
)

// registerCommands fills the registry in the order the commands are listed by !commands.
func (b *Bot) registerCommands() {
	r := b.registry
	r.Register("commands", b.cmdCommands, nil, false)
	for _, name := range b.deps.Tables.InfoNames() {
		r.Register(name, b.cmdInfo(b.deps.Tables.Info[name]), nil, false)
	}
	r.Register("sr", b.cmdSongRequest, nil, false)
	r.Register("skip", b.cmdSkip, nil, false)
	r.Register("sc", b.cmdSongCount, nil, false)
	r.Register("song", b.cmdSong, nil, false)
	r.Register("tts", b.cmdTTS, ttsBadges, false)
	r.Register("skiptts", b.cmdSkipTTS, modBadges, false)
	r.Register("gamble", b.cmdGamble, nil, false)
	r.Register("points", b.cmdPoints, nil, false)
	r.Register("socialcredit", b.cmdSocialCredit, nil, false)
	r.Register("credit", b.cmdCredit, modBadges, false)
	r.Register("newhere", b.cmdNewHere, nil, true)
}

func (b *Bot) reply(req chat.Request, msg string) { b.deps.Mailbox.Reply(req.Nick(), msg) }

func (b *Bot) cmdCommands(_ context.Context, req chat.Request) {
	b.reply(req, strings.Join(b.registry.Names(), " "))
}

func (b *Bot) cmdInfo(text string) chat.Handler {
	return func(_ context.Context, req chat.Request) { b.reply(req, text) }
}

func (b *Bot) cmdSongRequest(ctx context.Context, req chat.Request) {
	params := req.Params()
	if len(params) == 0 || b.deps.Videos == nil {
		b.reply(req, replyInvalidLink)
		return
	}
	link := params[0]
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "music"), slog.String("nick", req.Nick()))

	video, err := b.deps.Videos.Video(ctx, link)
	if err != nil {
		log.Info("song lookup failed", slog.String("link", link), slog.Any("err", err))
		b.reply(req, replyInvalidLink)
		return
	}
	limits := music.Limits{
		MaxDuration: time.Duration(b.cfg.MaxSongSeconds) * time.Second,
		MinLikes:    b.cfg.MinSongLikes,
		MinViews:    b.cfg.MinSongViews,
	}
	switch err := limits.Check(video); {
	case errors.Is(err, music.ErrInvalidDuration):
		b.reply(req, replyInvalidLink)
		return
	case errors.Is(err, music.ErrTooLong):
		b.reply(req, replyTooLong)
		return
	case errors.Is(err, music.ErrNotPopular):
		b.reply(req, replyNotPopular)
		return
	}
	b.reply(req, replySongAdded)
	b.deps.Music.Enqueue(music.Song{Video: video, URL: video.WatchURL(), Args: req.Args, Requester: req.Nick()})
	log.Info("song queued", slog.String("title", video.Title), slog.Int("seconds", video.Seconds()))
}

func (b *Bot) cmdSkip(_ context.Context, req chat.Request) {
	switch err := b.deps.Music.Skip(req.Nick()); {
	case errors.Is(err, music.ErrNothingPlaying):
		b.reply(req, replyNoMusic)
	case errors.Is(err, music.ErrNotRequester):
		b.reply(req, replyNotYourSong)
	}
}

func (b *Bot) cmdSongCount(_ context.Context, req chat.Request) {
	b.reply(req, strconv.Itoa(b.deps.Music.Len())+" song(s) in the queue")
}

func (b *Bot) cmdSong(_ context.Context, req chat.Request) {
	if song, ok := b.deps.Music.NowPlaying(); ok {
		b.reply(req, "Song : "+song.Video.Title)
	}
}

func (b *Bot) cmdTTS(ctx context.Context, req chat.Request) {
	params := req.Params()
	if len(params) == 0 || b.deps.Synth == nil {
		return
	}
	events := sound.Compile(ctx, params, b.deps.Library, b.deps.Synth, b.cfg.DefaultVoice)
	if len(events) == 0 {
		return
	}
	b.deps.Sounds.Submit(ctx, events)
}

func (b *Bot) cmdSkipTTS(ctx context.Context, req chat.Request) {
	n := b.deps.Sounds.SkipGroup()
	telemetry.LoggerWithCorr(ctx).Info("sound group skipped", slog.String("nick", req.Nick()), slog.Int("events", n), slog.String("component", "sound"))
}

func (b *Bot) cmdGamble(_ context.Context, req chat.Request) {
	params := req.Params()
	if len(params) == 0 {
		b.reply(req, replyGambleUsage)
		return
	}
	res, err := b.deps.Ledger.Gamble(req.Event.UserID, params[0])
	switch {
	case errors.Is(err, economy.ErrInvalidStake):
		b.reply(req, replyGambleUsage)
		return
	case errors.Is(err, economy.ErrInsufficientBalance):
		if u, ok := b.deps.Ledger.ByID(req.Event.UserID); ok {
			b.reply(req, fmt.Sprintf("you only have %d to gamble", u.Gamble))
		}
		return
	case err != nil:
		b.reply(req, replyUnknownUser)
		return
	}
	b.reply(req, gambleMessage(res))
}

func gambleMessage(res economy.GambleResult) string {
	switch {
	case res.Won:
		return fmt.Sprintf("EZ you won %d (x%d), balance %d", res.Stake*res.Multiplier, res.Multiplier, res.Balance)
	case res.Reset:
		return fmt.Sprintf("Sadge you lost %d and went broke, balance reset to %d", res.Stake, res.Balance)
	default:
		return fmt.Sprintf("Sadge you lost %d, balance %d", res.Stake, res.Balance)
	}
}

func (b *Bot) cmdPoints(_ context.Context, req chat.Request) {
	u, ok := b.deps.Ledger.ByID(req.Event.UserID)
	if !ok {
		b.reply(req, replyUnknownUser)
		return
	}
	b.reply(req, fmt.Sprintf("%d points, %d to gamble", u.Points, u.Gamble))
}

func (b *Bot) cmdSocialCredit(_ context.Context, req chat.Request) {
	target := req.Nick()
	if params := req.Params(); len(params) > 0 {
		target = params[0]
	}
	u, ok := b.deps.Ledger.ByNick(target)
	if !ok {
		b.reply(req, replyUnknownUser)
		return
	}
	b.reply(req, fmt.Sprintf("%s has %d social credit", u.Nick, u.SocialCredit))
}

func (b *Bot) cmdCredit(ctx context.Context, req chat.Request) {
	params := req.Params()
	if len(params) < 2 {
		b.reply(req, replyCreditUsage)
		return
	}
	delta, err := strconv.ParseInt(params[1], 10, 64)
	if err != nil {
		b.reply(req, replyCreditUsage)
		return
	}
	u, err := b.deps.Ledger.AdjustSocialCredit(params[0], delta)
	if err != nil {
		b.reply(req, replyUnknownUser)
		return
	}
	telemetry.LoggerWithCorr(ctx).Info("social credit adjusted", slog.String("by", req.Nick()), slog.String("target", u.Nick), slog.Int64("delta", delta), slog.String("component", "economy"))
	b.reply(req, fmt.Sprintf("%s now has %d social credit", u.Nick, u.SocialCredit))
}

func (b *Bot) cmdNewHere(_ context.Context, req chat.Request) {
	b.reply(req, replyNewHere)
}
