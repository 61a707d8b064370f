package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onnwee/streambot/telemetry"
)

// Twitch allows 20 PRIVMSGs per 30 seconds for regular accounts.
const (
	privmsgBurst = 20
	privmsgEvery = 30 * time.Second / privmsgBurst
)

// Mailbox is the outbound FIFO of complete protocol lines.
type Mailbox struct {
	mu      sync.Mutex
	lines   []string
	channel string
	limiter *rate.Limiter
}

// NewMailbox returns a mailbox whose reply helpers target #channel.
func NewMailbox(channel string) *Mailbox {
	return &Mailbox{
		channel: strings.TrimPrefix(channel, "#"),
		limiter: rate.NewLimiter(rate.Every(privmsgEvery), privmsgBurst),
	}
}

// Add queues a raw line. A missing CRLF terminator is appended.
func (m *Mailbox) Add(line string) {
	if !strings.HasSuffix(line, "\r\n") {
		line += "\r\n"
	}
	m.mu.Lock()
	m.lines = append(m.lines, line)
	n := len(m.lines)
	m.mu.Unlock()
	telemetry.SetMailboxDepth(n)
}

// Say queues a plain channel message.
func (m *Mailbox) Say(msg string) { m.Add("PRIVMSG #" + m.channel + " :" + msg) }

// Reply queues "@nick msg".
func (m *Mailbox) Reply(nick, msg string) { m.Add("PRIVMSG #" + m.channel + " :@" + nick + " " + msg) }

// ReplyTrailing queues "msg @nick".
func (m *Mailbox) ReplyTrailing(msg, nick string) {
	m.Add("PRIVMSG #" + m.channel + " :" + msg + " @" + nick)
}

// Drain removes and returns all queued lines.
func (m *Mailbox) Drain() []string {
	m.mu.Lock()
	out := m.lines
	m.lines = nil
	m.mu.Unlock()
	telemetry.SetMailboxDepth(0)
	return out
}

// requeue puts unsent lines back at the head, ahead of anything queued meanwhile.
func (m *Mailbox) requeue(lines []string) {
	if len(lines) == 0 {
		return
	}
	m.mu.Lock()
	m.lines = append(append([]string(nil), lines...), m.lines...)
	n := len(m.lines)
	m.mu.Unlock()
	telemetry.SetMailboxDepth(n)
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines)
}

// Run flushes the mailbox through send every interval until ctx is done.
// PRIVMSG lines are paced by the chat rate limit; other lines go out immediately.
// Lines that fail to send are kept for the next flush.
func (m *Mailbox) Run(ctx context.Context, interval time.Duration, send func(line string) error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.flush(ctx, send)
		}
	}
}

func (m *Mailbox) flush(ctx context.Context, send func(string) error) {
	lines := m.Drain()
	for i, line := range lines {
		if strings.HasPrefix(line, "PRIVMSG ") {
			if err := m.limiter.Wait(ctx); err != nil {
				m.requeue(lines[i:])
				return
			}
		}
		if err := send(line); err != nil {
			slog.Debug("outbound send failed; keeping lines", slog.Any("err", err), slog.Int("pending", len(lines)-i), slog.String("component", "mailbox"))
			m.requeue(lines[i:])
			return
		}
		telemetry.AddSent(1)
	}
}
