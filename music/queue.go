// Package music holds the song-request queue and the player that runs it.
package music

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/streambot/telemetry"
	"github.com/onnwee/streambot/youtubeapi"
)

var (
	ErrNothingPlaying = errors.New("no music is playing")
	ErrNotRequester   = errors.New("song belongs to another user")
	ErrTooLong        = errors.New("video too long")
	ErrNotPopular     = errors.New("video not popular enough")
	// ErrInvalidDuration covers live streams and durations that could not be parsed.
	ErrInvalidDuration = errors.New("video has no playable duration")
)

// Song is one accepted request.
type Song struct {
	Video     youtubeapi.Video
	URL       string
	Args      []string
	Requester string
}

// Player starts playback of a url in the background and can stop it.
type Player interface {
	Play(ctx context.Context, url string) error
	Stop()
}

// Announcer is the chat side the queue reports to.
type Announcer interface {
	Reply(nick, msg string)
	ReplyTrailing(msg, nick string)
}

// Limits are the acceptance rules for a request.
type Limits struct {
	MaxDuration time.Duration
	MinLikes    int64
	MinViews    int64
}

// Check validates a looked-up video. Unknown (-1) statistics pass the popularity check.
func (l Limits) Check(v youtubeapi.Video) error {
	if v.Duration <= 0 {
		return ErrInvalidDuration
	}
	if l.MaxDuration > 0 && v.Duration > l.MaxDuration {
		return ErrTooLong
	}
	if l.MinLikes > 0 && v.Likes >= 0 && v.Likes < l.MinLikes {
		return ErrNotPopular
	}
	if l.MinViews > 0 && v.Views >= 0 && v.Views < l.MinViews {
		return ErrNotPopular
	}
	return nil
}

// Queue is the FIFO of requested songs plus the now-playing slot.
type Queue struct {
	mu        sync.Mutex
	songs     []Song
	now       *Song
	startedAt time.Time

	player Player
	out    Announcer
	clock  func() time.Time
}

func NewQueue(player Player, out Announcer) *Queue {
	return &Queue{player: player, out: out, clock: time.Now}
}

func (q *Queue) Enqueue(s Song) {
	q.mu.Lock()
	q.songs = append(q.songs, s)
	n := len(q.songs)
	q.mu.Unlock()
	telemetry.SetMusicQueueDepth(n)
}

// Tick starts the head song when nothing is playing. The head is removed whether
// or not the player manages to start it.
func (q *Queue) Tick(ctx context.Context) {
	q.mu.Lock()
	if q.playingLocked() || len(q.songs) == 0 {
		q.mu.Unlock()
		return
	}
	head := q.songs[0]
	q.songs = q.songs[1:]
	n := len(q.songs)
	q.now = nil
	q.mu.Unlock()
	telemetry.SetMusicQueueDepth(n)

	if err := q.player.Play(ctx, head.URL); err != nil {
		slog.Warn("song playback failed", slog.String("url", head.URL), slog.String("requester", head.Requester), slog.Any("err", err), slog.String("component", "music"))
		q.out.Reply(head.Requester, "something went wrong...")
		return
	}
	q.mu.Lock()
	q.now = &head
	q.startedAt = q.clock()
	q.mu.Unlock()
	slog.Info("song started", slog.String("title", head.Video.Title), slog.String("requester", head.Requester), slog.String("component", "music"))
	q.out.ReplyTrailing("Song : "+head.Video.Title+" requested ->", head.Requester)
}

// IsPlaying reports whether a song started and its duration has not yet elapsed.
func (q *Queue) IsPlaying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playingLocked()
}

func (q *Queue) playingLocked() bool {
	return q.now != nil && q.clock().Sub(q.startedAt) < q.now.Video.Duration
}

// NowPlaying returns the current song, if any.
func (q *Queue) NowPlaying() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.playingLocked() {
		return Song{}, false
	}
	return *q.now, true
}

// Skip stops the current song if nick requested it.
func (q *Queue) Skip(nick string) error {
	q.mu.Lock()
	if !q.playingLocked() {
		q.mu.Unlock()
		return ErrNothingPlaying
	}
	if q.now.Requester != nick {
		q.mu.Unlock()
		return ErrNotRequester
	}
	q.now = nil
	q.mu.Unlock()
	q.player.Stop()
	return nil
}

// ForceSkip stops whatever is playing regardless of requester.
func (q *Queue) ForceSkip() bool {
	q.mu.Lock()
	playing := q.playingLocked()
	q.now = nil
	q.mu.Unlock()
	if playing {
		q.player.Stop()
	}
	return playing
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.songs)
}

// Run ticks the queue every interval until ctx is done, then stops playback.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.player.Stop()
			return
		case <-ticker.C:
			q.Tick(ctx)
		}
	}
}
