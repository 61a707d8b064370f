package bot

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/economy"
	"github.com/onnwee/streambot/sound"
	"github.com/onnwee/streambot/telemetry"
)

// Banner issues a Helix ban. seconds == 0 is a permanent ban.
// twitchapi.HelixClient implements it.
type Banner interface {
	BanUser(ctx context.Context, broadcasterID, moderatorID, userID string, seconds int, reason string) error
}

const banReason = "banned word"

// Moderator carries out moderation verdicts: it records the ban in the ledger and
// times the user out through Helix when a Banner is configured.
type Moderator struct {
	Banner        Banner
	Ledger        *economy.Ledger
	BroadcasterID string
	ModeratorID   string
}

func (m *Moderator) Ban(ctx context.Context, ev chat.ChatEvent, v chat.Verdict) {
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("nick", ev.Nick), slog.String("component", "moderation"))

	seconds := v.Seconds
	if v.Permanent {
		seconds = -1
	}
	if m.Ledger != nil {
		m.Ledger.RecordBan(ev.UserID, seconds)
	}
	if m.Banner == nil || m.BroadcasterID == "" {
		log.Warn("ban not issued: helix not configured", slog.Int("seconds", seconds))
		return
	}
	if ev.UserID == "" {
		log.Warn("ban not issued: message has no user id")
		return
	}
	if !v.Permanent && seconds <= 0 {
		return
	}
	helixSeconds := seconds
	if v.Permanent {
		helixSeconds = 0
	}
	moderator := m.ModeratorID
	if moderator == "" {
		moderator = m.BroadcasterID
	}
	if err := m.Banner.BanUser(ctx, m.BroadcasterID, moderator, ev.UserID, helixSeconds, banReason); err != nil {
		log.Error("ban failed", slog.Any("err", err))
		return
	}
	log.Info("user banned", slog.Int("seconds", helixSeconds), slog.Bool("permanent", v.Permanent))
}

var _ chat.Moderator = (*Moderator)(nil)

// Speaker synthesizes a phrase with one voice and queues it as a single sound group.
type Speaker struct {
	Synth  sound.Synthesizer
	Sounds *sound.Queue
	Voice  string
}

func (s *Speaker) Speak(ctx context.Context, text string) {
	if s.Synth == nil || text == "" {
		return
	}
	audio := s.Synth.Synthesize(ctx, s.Voice, text)
	if len(audio) == 0 {
		slog.Warn("speech synthesis returned no audio", slog.String("voice", s.Voice), slog.String("component", "sound"))
		return
	}
	s.Sounds.Enqueue(sound.Event{Speech: audio, Volume: 1, Group: uuid.NewString()})
}
