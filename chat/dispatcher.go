package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/onnwee/streambot/telemetry"
)

const (
	commandSigil  = "!"
	rejectionText = "you don't have permission to use that command"
)

// Moderator carries out the ban decided by the moderation filter.
type Moderator interface {
	Ban(ctx context.Context, ev ChatEvent, v Verdict)
}

// UserTable records every observed chatter and counts celebrations.
type UserTable interface {
	Observe(id, nick, badges string)
	Incr(counter string, n int64)
}

// Dispatcher routes parsed events: commands go to the handler pool, plain chat
// goes through the moderation filter, pings are answered.
type Dispatcher struct {
	Registry  *Registry
	Mailbox   *Mailbox
	Pool      *Pool
	Filter    Filter
	Moderator Moderator // optional
	Users     UserTable // optional

	limiter *userLimiter
}

// NewDispatcher wires a dispatcher. perUser/burst configure the per-user command rate;
// a zero perUser disables limiting.
func NewDispatcher(reg *Registry, mb *Mailbox, pool *Pool, perUser float64, burst int) *Dispatcher {
	d := &Dispatcher{Registry: reg, Mailbox: mb, Pool: pool}
	if perUser > 0 {
		d.limiter = newUserLimiter(rate.Limit(perUser), burst)
	}
	return d
}

// Dispatch handles one parsed event. It never blocks on handler work.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	switch ev.Kind {
	case KindPing:
		d.Mailbox.Add(Pong(ev.Raw))
	case KindChatMessage:
		d.dispatchChat(ctx, ev.Chat)
	}
}

func (d *Dispatcher) dispatchChat(ctx context.Context, ev ChatEvent) {
	if d.Users != nil && ev.UserID != "" {
		d.Users.Observe(ev.UserID, ev.Nick, ev.BadgeString)
	}
	tokens := Tokenize(ev.Message)
	if len(tokens) == 0 || tokens[0] == "" {
		return
	}
	if strings.HasPrefix(tokens[0], commandSigil) {
		if cmd, ok := d.Registry.Lookup(strings.TrimPrefix(tokens[0], commandSigil)); ok {
			d.invoke(ctx, cmd, ev, tokens)
			return
		}
	}
	d.moderate(ctx, ev)
}

// invoke spends a limiter token before the permission check so rejection replies
// are paced like any other command.
func (d *Dispatcher) invoke(ctx context.Context, cmd *Command, ev ChatEvent, tokens []string) {
	if d.limiter != nil && !d.limiter.Allow(ev.Nick) {
		telemetry.IncRejected(cmd.Name, "rate_limited")
		slog.Debug("command rate limited", slog.String("command", cmd.Name), slog.String("nick", ev.Nick), slog.String("component", "dispatch"))
		return
	}
	if !cmd.Authorizes(ev.Badges) {
		telemetry.IncRejected(cmd.Name, "unauthorized")
		d.Mailbox.Reply(ev.Nick, rejectionText)
		return
	}
	args := make([]string, 0, len(tokens))
	args = append(args, ev.Nick)
	args = append(args, tokens[1:]...)
	req := Request{Args: args, Event: ev}

	hctx := telemetry.WithCorrelation(context.WithoutCancel(ctx), uuid.NewString())
	handler := cmd.Handler
	name := cmd.Name
	ok := d.Pool.TrySubmit(hctx, name, func(ctx context.Context) {
		ctx, span := telemetry.StartSpan(ctx, "dispatch", "command "+name, telemetry.CommandAttr(name), telemetry.UserAttr(ev.Nick))
		defer span.End()
		telemetry.TimeFunc(telemetry.HandlerDuration, func() { handler(ctx, req) })
	})
	if !ok {
		telemetry.IncRejected(name, "pool_full")
		slog.Warn("handler pool saturated; dropping command", slog.String("command", name), slog.String("nick", ev.Nick), slog.String("component", "dispatch"))
		return
	}
	telemetry.IncDispatched(name)
}

func (d *Dispatcher) moderate(ctx context.Context, ev ChatEvent) {
	v := d.Filter.Scan(ev.Message)
	if v.Celebrations > 0 && d.Users != nil {
		d.Users.Incr(d.Filter.Keyword, int64(v.Celebrations))
	}
	if !v.ShouldBan() || d.Moderator == nil {
		return
	}
	telemetry.IncBan()
	slog.Info("banned words detected", slog.String("nick", ev.Nick), slog.Int("hits", v.Hits), slog.Int("seconds", v.Seconds), slog.Bool("permanent", v.Permanent), slog.String("component", "moderation"))
	// Ban calls hit the network; keep them off the ingestion loop.
	if !d.Pool.TrySubmit(context.WithoutCancel(ctx), "ban", func(ctx context.Context) { d.Moderator.Ban(ctx, ev, v) }) {
		slog.Warn("handler pool saturated; ban not issued", slog.String("nick", ev.Nick), slog.String("component", "moderation"))
	}
}

// userLimiter keeps one token bucket per nick and forgets idle ones.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
}

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func newUserLimiter(r rate.Limit, burst int) *userLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &userLimiter{limit: r, burst: burst, limiters: map[string]*limiterEntry{}}
}

func (u *userLimiter) Allow(nick string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	now := time.Now()
	e, ok := u.limiters[nick]
	if !ok {
		if len(u.limiters) >= 1024 {
			for k, v := range u.limiters {
				if now.Sub(v.lastSeen) > limiterIdle {
					delete(u.limiters, k)
				}
			}
		}
		e = &limiterEntry{lim: rate.NewLimiter(u.limit, u.burst)}
		u.limiters[nick] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}
