package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/streambot/telemetry"
)

// SessionConfig holds the login identity for the chat connection.
type SessionConfig struct {
	Channel string
	Nick    string
	Token   string // without the "oauth:" prefix
	Welcome string // sent once after the first JOIN; empty disables
}

// Session implements the transport hooks: it performs the login handshake,
// splits frames into lines and feeds them to the dispatcher.
type Session struct {
	cfg        SessionConfig
	dispatcher *Dispatcher
	tracer     *FrameTracer

	open      atomic.Bool
	joined    atomic.Bool
	welcomed  atomic.Bool
	reconnect chan struct{}
}

func NewSession(cfg SessionConfig, d *Dispatcher, tracer *FrameTracer) *Session {
	cfg.Channel = strings.TrimPrefix(strings.ToLower(cfg.Channel), "#")
	return &Session{cfg: cfg, dispatcher: d, tracer: tracer, reconnect: make(chan struct{}, 1)}
}

// Handshake returns the login lines sent when the connection opens.
func (s *Session) Handshake() []string {
	return []string{
		"CAP REQ :twitch.tv/membership twitch.tv/tags twitch.tv/commands\r\n",
		"PASS oauth:" + s.cfg.Token + "\r\n",
		"NICK " + s.cfg.Nick + "\r\n",
		"JOIN #" + s.cfg.Channel + "\r\n",
	}
}

// OnOpen writes the handshake directly on the fresh connection.
func (s *Session) OnOpen(send func(line string) error) error {
	s.joined.Store(false)
	for _, line := range s.Handshake() {
		if err := send(line); err != nil {
			return err
		}
	}
	s.open.Store(true)
	telemetry.SetSessionUp("irc", true)
	slog.Info("chat session opened", slog.String("channel", s.cfg.Channel), slog.String("nick", s.cfg.Nick), slog.String("component", "chat"))
	return nil
}

// OnFrame handles one websocket text frame, which may carry several CRLF separated lines.
func (s *Session) OnFrame(ctx context.Context, frame string) {
	for _, line := range strings.Split(frame, "\r\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.tracer.Inbound(line)
		ev := ParseLine(line)
		telemetry.IncLine(ev.Kind.String())
		switch ev.Kind {
		case KindJoin:
			s.onJoin()
		case KindIgnored:
			s.classify(line)
		default:
			s.dispatcher.Dispatch(ctx, ev)
		}
	}
}

// OnClose marks the session down. Reconnecting is the transport's job.
func (s *Session) OnClose(reason string) {
	s.open.Store(false)
	s.joined.Store(false)
	telemetry.SetSessionUp("irc", false)
	slog.Warn("chat session closed", slog.String("reason", reason), slog.String("component", "chat"))
}

func (s *Session) Open() bool   { return s.open.Load() }
func (s *Session) Joined() bool { return s.joined.Load() }

// ReconnectRequested fires when the server asks the client to reconnect.
func (s *Session) ReconnectRequested() <-chan struct{} { return s.reconnect }

func (s *Session) onJoin() {
	s.joined.Store(true)
	if s.cfg.Welcome != "" && s.welcomed.CompareAndSwap(false, true) {
		s.dispatcher.Mailbox.Say(s.cfg.Welcome)
	}
}

// classify inspects lines the core parser ignores: server reconnect requests,
// notices (login failures land here) and user notices.
func (s *Session) classify(line string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("unparseable line", slog.String("line", line), slog.Any("err", r), slog.String("component", "chat"))
		}
	}()
	switch m := twitch.ParseMessage(line).(type) {
	case *twitch.ReconnectMessage:
		slog.Info("server requested reconnect", slog.String("component", "chat"))
		select {
		case s.reconnect <- struct{}{}:
		default:
		}
	case *twitch.NoticeMessage:
		slog.Warn("chat notice", slog.String("msg_id", m.MsgID), slog.String("message", m.Message), slog.String("component", "chat"))
	case *twitch.UserNoticeMessage:
		slog.Info("user notice", slog.String("msg_id", m.MsgID), slog.String("system_msg", m.SystemMsg), slog.String("component", "chat"))
	case *twitch.ClearChatMessage:
		slog.Debug("chat cleared", slog.String("target", m.TargetUsername), slog.Int("duration", m.BanDuration), slog.String("component", "chat"))
	}
}
