// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	LinesReceived      *prometheus.CounterVec // by parsed kind
	CommandsDispatched *prometheus.CounterVec
	CommandsRejected   *prometheus.CounterVec // by reason
	HandlerPanics      prometheus.Counter
	BansIssued         prometheus.Counter
	MessagesSent       prometheus.Counter
	GambleOutcomes     *prometheus.CounterVec
	EventSubEvents     *prometheus.CounterVec
	Reconnects         *prometheus.CounterVec

	// Histograms (seconds)
	HandlerDuration prometheus.Observer

	// Gauges
	MailboxDepthGauge prometheus.Gauge
	MusicQueueGauge   prometheus.Gauge
	SoundQueueGauge   prometheus.Gauge
	SessionUpGauge    *prometheus.GaugeVec // 1=connected,0=down
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LinesReceived = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_lines_received_total", Help: "Inbound protocol lines by parsed kind"}, []string{"kind"})
		CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_commands_dispatched_total", Help: "Command invocations handed to the worker pool"}, []string{"command"})
		CommandsRejected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_commands_rejected_total", Help: "Command invocations not executed"}, []string{"command", "reason"})
		HandlerPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_handler_panics_total", Help: "Recovered panics in command handlers"})
		BansIssued = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_bans_issued_total", Help: "Ban actions triggered by the moderation filter"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "bot_messages_sent_total", Help: "Outbound lines written to the chat connection"})
		GambleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_gamble_outcomes_total", Help: "Gamble results"}, []string{"outcome"})
		EventSubEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_eventsub_notifications_total", Help: "EventSub notifications by subscription type"}, []string{"type"})
		Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{Name: "bot_reconnects_total", Help: "Websocket reconnect attempts"}, []string{"stream"})
		HandlerDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "bot_handler_duration_seconds", Help: "Command handler run time", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10}})
		MailboxDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_mailbox_depth", Help: "Lines waiting in the outbound mailbox"})
		MusicQueueGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_music_queue_depth", Help: "Songs waiting in the request queue"})
		SoundQueueGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "bot_sound_queue_depth", Help: "Sound events waiting in the FIFO lane"})
		SessionUpGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "bot_session_up", Help: "Websocket session connected=1 down=0"}, []string{"stream"})
	})
}

func IncLine(kind string) { if LinesReceived != nil { LinesReceived.WithLabelValues(kind).Inc() } }

func IncDispatched(cmd string) { if CommandsDispatched != nil { CommandsDispatched.WithLabelValues(cmd).Inc() } }

func IncRejected(cmd, reason string) { if CommandsRejected != nil { CommandsRejected.WithLabelValues(cmd, reason).Inc() } }

func IncPanic() { if HandlerPanics != nil { HandlerPanics.Inc() } }

func IncBan() { if BansIssued != nil { BansIssued.Inc() } }

func AddSent(n int) { if MessagesSent != nil { MessagesSent.Add(float64(n)) } }

func IncGamble(outcome string) { if GambleOutcomes != nil { GambleOutcomes.WithLabelValues(outcome).Inc() } }

func IncEventSub(typ string) { if EventSubEvents != nil { EventSubEvents.WithLabelValues(typ).Inc() } }

func IncReconnect(stream string) { if Reconnects != nil { Reconnects.WithLabelValues(stream).Inc() } }

// SetSessionUp sets the connection gauge for a stream ("irc" or "eventsub").
func SetSessionUp(stream string, up bool) {
	if SessionUpGauge == nil {
		return
	}
	if up {
		SessionUpGauge.WithLabelValues(stream).Set(1)
	} else {
		SessionUpGauge.WithLabelValues(stream).Set(0)
	}
}

func SetMailboxDepth(n int) { if MailboxDepthGauge != nil { MailboxDepthGauge.Set(float64(n)) } }

func SetMusicQueueDepth(n int) { if MusicQueueGauge != nil { MusicQueueGauge.Set(float64(n)) } }

func SetSoundQueueDepth(n int) { if SoundQueueGauge != nil { SoundQueueGauge.Set(float64(n)) } }

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
