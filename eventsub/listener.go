// Package eventsub listens on the Twitch EventSub websocket for follow and
// subscribe notifications and turns them into chat thank-yous and TTS.
package eventsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/twitchapi"
)

// State of the listener's subscription handshake.
type State int

const (
	AwaitingSessionID State = iota
	Subscribed
)

func (s State) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "awaiting_session_id"
}

// Message types of the EventSub websocket protocol.
const (
	TypeWelcome    = "session_welcome"
	TypeKeepalive  = "session_keepalive"
	TypeReconnect  = "session_reconnect"
	TypeNotify     = "notification"
	TypeRevocation = "revocation"

	SubFollow    = "channel.follow"
	SubSubscribe = "channel.subscribe"
)

// Subscriber registers EventSub subscriptions. twitchapi.HelixClient implements it.
type Subscriber interface {
	CreateEventSubSubscription(ctx context.Context, req twitchapi.SubscriptionRequest) (string, error)
}

// Announcer writes chat replies.
type Announcer interface {
	Reply(nick, msg string)
}

// Speaker turns a phrase into queued speech.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// Bonus credits the economy for a new follower.
type Bonus interface {
	CreditFollowBonus(id, nick string) int64
}

// Config names the channel the subscriptions are created for.
type Config struct {
	BroadcasterID string
	ModeratorID   string // defaults to BroadcasterID
	FollowReply   string
	SubReply      string
}

// Listener is the EventSub state machine. The websocket loop lives in Client.
type Listener struct {
	cfg     Config
	subs    Subscriber
	thanked *ThankedSet
	out     Announcer
	speaker Speaker
	bonus   Bonus

	mu           sync.Mutex
	state        State
	sessionID    string
	keepalive    time.Duration
	resume       bool
	reconnectURL string
}

func NewListener(cfg Config, subs Subscriber, thanked *ThankedSet, out Announcer, speaker Speaker, bonus Bonus) *Listener {
	if cfg.ModeratorID == "" {
		cfg.ModeratorID = cfg.BroadcasterID
	}
	if cfg.FollowReply == "" {
		cfg.FollowReply = "thanks for the follow peepoHappy"
	}
	if cfg.SubReply == "" {
		cfg.SubReply = "thanks for the sub peepoHappy"
	}
	return &Listener{cfg: cfg, subs: subs, thanked: thanked, out: out, speaker: speaker, bonus: bonus}
}

type envelope struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

type sessionPayload struct {
	Session struct {
		ID                      string `json:"id"`
		Status                  string `json:"status"`
		KeepaliveTimeoutSeconds int    `json:"keepalive_timeout_seconds"`
		ReconnectURL            string `json:"reconnect_url"`
	} `json:"session"`
}

type notificationPayload struct {
	Subscription struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// UserEvent carries the fields shared by follow and subscribe events.
type UserEvent struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	Tier      string `json:"tier,omitempty"`
	IsGift    bool   `json:"is_gift,omitempty"`
}

func (e UserEvent) display() string {
	if e.UserName != "" {
		return e.UserName
	}
	return e.UserLogin
}

// HandleFrame processes one websocket text frame. An error means the session
// cannot continue and the connection should be recycled.
func (l *Listener) HandleFrame(ctx context.Context, frame []byte) error {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		slog.Debug("eventsub: undecodable frame", slog.Any("err", err), slog.String("component", "eventsub"))
		return nil
	}

	if l.State() == AwaitingSessionID {
		if env.Metadata.MessageType != TypeWelcome {
			return nil
		}
		return l.welcome(ctx, env.Payload)
	}

	switch env.Metadata.MessageType {
	case TypeKeepalive:
	case TypeNotify:
		l.notification(ctx, env.Payload)
	case TypeReconnect:
		var p sessionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil || p.Session.ReconnectURL == "" {
			return errors.New("eventsub: reconnect message without url")
		}
		l.mu.Lock()
		l.reconnectURL = p.Session.ReconnectURL
		l.mu.Unlock()
		slog.Info("eventsub: server requested reconnect", slog.String("component", "eventsub"))
	case TypeRevocation:
		var p notificationPayload
		_ = json.Unmarshal(env.Payload, &p)
		slog.Warn("eventsub: subscription revoked", slog.String("type", p.Subscription.Type), slog.String("status", p.Subscription.Status), slog.String("component", "eventsub"))
	case TypeWelcome:
		// a second welcome on the same connection carries nothing new
	default:
		slog.Debug("eventsub: unhandled message type", slog.String("type", env.Metadata.MessageType), slog.String("component", "eventsub"))
	}
	return nil
}

func (l *Listener) welcome(ctx context.Context, raw json.RawMessage) error {
	var p sessionPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Session.ID == "" {
		return nil
	}
	l.mu.Lock()
	resume := l.resume
	l.sessionID = p.Session.ID
	if p.Session.KeepaliveTimeoutSeconds > 0 {
		l.keepalive = time.Duration(p.Session.KeepaliveTimeoutSeconds) * time.Second
	}
	l.mu.Unlock()

	// subscriptions survive a server-initiated reconnect
	if !resume {
		if err := l.subscribe(ctx, p.Session.ID); err != nil {
			return err
		}
	}

	l.mu.Lock()
	l.state = Subscribed
	l.resume = false
	l.mu.Unlock()
	slog.Info("eventsub: session subscribed", slog.String("session", p.Session.ID), slog.Bool("resumed", resume), slog.String("component", "eventsub"))
	return nil
}

func (l *Listener) subscribe(ctx context.Context, sessionID string) error {
	if l.subs == nil {
		return errors.New("eventsub: no subscriber configured")
	}
	transport := twitchapi.SubscriptionTransport{Method: "websocket", SessionID: sessionID}
	reqs := []twitchapi.SubscriptionRequest{
		{
			Type:      SubFollow,
			Version:   "2",
			Condition: map[string]string{"broadcaster_user_id": l.cfg.BroadcasterID, "moderator_user_id": l.cfg.ModeratorID},
			Transport: transport,
		},
		{
			Type:      SubSubscribe,
			Version:   "1",
			Condition: map[string]string{"broadcaster_user_id": l.cfg.BroadcasterID},
			Transport: transport,
		},
	}
	for _, req := range reqs {
		id, err := l.subs.CreateEventSubSubscription(ctx, req)
		if err != nil {
			return fmt.Errorf("eventsub: %w", err)
		}
		slog.Debug("eventsub: subscription created", slog.String("type", req.Type), slog.String("id", id), slog.String("component", "eventsub"))
	}
	return nil
}

func (l *Listener) notification(ctx context.Context, raw json.RawMessage) {
	var p notificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		slog.Warn("eventsub: bad notification payload", slog.Any("err", err), slog.String("component", "eventsub"))
		return
	}
	var ev UserEvent
	if err := json.Unmarshal(p.Event, &ev); err != nil || ev.UserID == "" {
		slog.Warn("eventsub: notification without user", slog.String("type", p.Subscription.Type), slog.String("component", "eventsub"))
		return
	}
	telemetry.IncEventSub(p.Subscription.Type)

	switch p.Subscription.Type {
	case SubFollow:
		l.follow(ctx, ev)
	case SubSubscribe:
		l.announce(ctx, ev, l.cfg.SubReply)
	default:
		slog.Debug("eventsub: ignoring notification", slog.String("type", p.Subscription.Type), slog.String("component", "eventsub"))
	}
}

func (l *Listener) follow(ctx context.Context, ev UserEvent) {
	if l.thanked != nil {
		added, err := l.thanked.Add(ctx, ev.UserID)
		if err != nil {
			slog.Warn("eventsub: thanked set not persisted", slog.Any("err", err), slog.String("component", "eventsub"))
		}
		if !added {
			return
		}
	}
	l.announce(ctx, ev, l.cfg.FollowReply)
	if l.bonus != nil {
		l.bonus.CreditFollowBonus(ev.UserID, ev.UserLogin)
	}
}

func (l *Listener) announce(ctx context.Context, ev UserEvent, msg string) {
	if l.out != nil {
		l.out.Reply(ev.UserLogin, msg)
	}
	if l.speaker != nil {
		l.speaker.Speak(ctx, msg+" "+ev.display())
	}
}

// State reports the current handshake state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SessionID is the id from the last welcome message.
func (l *Listener) SessionID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Keepalive is the server's keepalive window, zero before the first welcome.
func (l *Listener) Keepalive() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keepalive
}

// TakeReconnectURL returns and clears a pending server-requested reconnect URL.
func (l *Listener) TakeReconnectURL() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.reconnectURL
	l.reconnectURL = ""
	return u
}

// Reset returns to AwaitingSessionID for a new connection. With resume set the
// next welcome reuses the existing subscriptions.
func (l *Listener) Reset(resume bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = AwaitingSessionID
	l.sessionID = ""
	l.resume = resume
}
