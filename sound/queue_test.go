package sound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayback struct {
	mu      sync.Mutex
	done    bool
	stopped bool
}

func (p *fakePlayback) Done() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func (p *fakePlayback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	p.done = true
}

func (p *fakePlayback) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
}

type fakePlayer struct {
	mu      sync.Mutex
	started []Event
	pbs     []*fakePlayback
	fail    bool
}

func (f *fakePlayer) Start(_ context.Context, ev Event) (Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("no audio device")
	}
	pb := &fakePlayback{}
	f.started = append(f.started, ev)
	f.pbs = append(f.pbs, pb)
	return pb, nil
}

func newTestQueue() (*Queue, *fakePlayer, *time.Time) {
	p := &fakePlayer{}
	q := NewQueue(p)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q.clock = func() time.Time { return now }
	return q, p, &now
}

func TestSkipGroupRemovesContiguousHead(t *testing.T) {
	q, p, _ := newTestQueue()
	q.Enqueue(Event{Clip: "a1", Group: "A"}, Event{Clip: "a2", Group: "A"}, Event{Clip: "b1", Group: "B"})
	q.Tick(context.Background()) // arms a1

	assert.Equal(t, 2, q.SkipGroup())
	assert.Equal(t, 1, q.Len())
	assert.True(t, p.pbs[0].stopped)

	q.Tick(context.Background())
	require.Len(t, p.started, 2)
	assert.Equal(t, "b1", p.started[1].Clip)
}

func TestSkipGroupEmpty(t *testing.T) {
	q, _, _ := newTestQueue()
	assert.Equal(t, 0, q.SkipGroup())
}

func TestFIFOArmsOneAtATime(t *testing.T) {
	q, p, _ := newTestQueue()
	q.Enqueue(Event{Clip: "one"}, Event{Clip: "two"})

	q.Tick(context.Background())
	q.Tick(context.Background())
	require.Len(t, p.started, 1, "second event must wait for the first")

	p.pbs[0].finish()
	q.Tick(context.Background()) // retire one
	assert.Equal(t, 1, q.Len())
	q.Tick(context.Background()) // arm two
	require.Len(t, p.started, 2)
	assert.Equal(t, "two", p.started[1].Clip)
}

func TestPauseHoldsTheLane(t *testing.T) {
	q, p, now := newTestQueue()
	q.Enqueue(Event{IsPause: true, Pause: 2 * time.Second}, Event{Clip: "after"})

	q.Tick(context.Background()) // timer starts
	*now = now.Add(time.Second)
	q.Tick(context.Background())
	assert.Equal(t, 2, q.Len())

	*now = now.Add(time.Second)
	q.Tick(context.Background()) // pause elapsed
	assert.Equal(t, 1, q.Len())
	assert.Empty(t, p.started)

	q.Tick(context.Background())
	require.Len(t, p.started, 1)
}

func TestFailedStartMakesProgress(t *testing.T) {
	q, p, _ := newTestQueue()
	p.fail = true
	q.Enqueue(Event{Clip: "broken"}, Event{Clip: "next"})
	q.Tick(context.Background())
	assert.Equal(t, 1, q.Len())
}

func TestElevatedLane(t *testing.T) {
	q, p, _ := newTestQueue()
	require.NoError(t, q.PlayNow(context.Background(), Event{Clip: "now"}))
	assert.Equal(t, 1, q.Playing())
	assert.Equal(t, 0, q.Len())

	q.Tick(context.Background())
	assert.Equal(t, 1, q.Playing())
	p.pbs[0].finish()
	q.Tick(context.Background())
	assert.Equal(t, 0, q.Playing())
}

func TestSubmitRoutesByLane(t *testing.T) {
	q, p, _ := newTestQueue()
	q.Submit(context.Background(), []Event{
		{Clip: "queued"},
		{Clip: "instant", Immediate: true},
		{IsPause: true, Pause: time.Second, Immediate: true},
	})
	assert.Equal(t, 2, q.Len(), "pauses always use the FIFO lane")
	assert.Equal(t, 1, q.Playing())
	require.Len(t, p.started, 1)
	assert.Equal(t, "instant", p.started[0].Clip)
}

func TestMPVArgs(t *testing.T) {
	p := NewMPVPlayer("", "")
	assert.Equal(t, "mpv", p.Command)
	args := p.Args(Event{Volume: 1.5, Loops: 3}, "/tmp/x.mp3")
	assert.Equal(t, []string{"/tmp/x.mp3", "--no-video", "--really-quiet", "--volume-max=200", "--volume=150", "--loop-file=3"}, args)
	args = p.Args(Event{Volume: 1}, "clip.wav")
	assert.Contains(t, args, "--volume=100")
	assert.NotContains(t, args, "--loop-file=0")
	assert.Contains(t, p.Args(Event{Volume: 0}, "clip.wav"), "--volume=0", "explicit zero mutes")
	assert.Contains(t, p.Args(Event{Volume: 7}, "clip.wav"), "--volume=200")
}

func TestMPVStartNothingToPlay(t *testing.T) {
	_, err := NewMPVPlayer("mpv", t.TempDir()).Start(context.Background(), Event{})
	assert.Error(t, err)
}
