// Package sound plays clips and synthesized speech on two lanes: a FIFO lane that
// plays one event at a time and an elevated lane that plays immediately.
package sound

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/streambot/telemetry"
)

// Event is one unit of sound work. Exactly one of Clip, Speech or IsPause is meaningful.
type Event struct {
	Clip    string  // path of a pre-recorded clip
	Speech  []byte  // synthesized audio
	Loops   int     // extra repetitions, 0-5
	Volume  float64 // playback factor 0-2; 0 is muted
	Pause   time.Duration
	IsPause bool
	Group   string
	// Immediate events belong on the elevated lane.
	Immediate bool
}

// Playback is a running sound.
type Playback interface {
	Done() bool
	Stop()
}

// Player starts native playback of an event.
type Player interface {
	Start(ctx context.Context, ev Event) (Playback, error)
}

type entry struct {
	ev         Event
	armed      bool
	pb         Playback
	pauseStart time.Time
}

// Queue is safe for concurrent use; Tick is expected to run on a single loop.
type Queue struct {
	mu       sync.Mutex
	fifo     []*entry
	elevated []*entry

	player Player
	clock  func() time.Time
}

func NewQueue(player Player) *Queue {
	return &Queue{player: player, clock: time.Now}
}

// Enqueue appends events to the FIFO lane in order.
func (q *Queue) Enqueue(events ...Event) {
	q.mu.Lock()
	for _, ev := range events {
		q.fifo = append(q.fifo, &entry{ev: ev})
	}
	n := len(q.fifo)
	q.mu.Unlock()
	telemetry.SetSoundQueueDepth(n)
}

// PlayNow starts ev on the elevated lane right away.
func (q *Queue) PlayNow(ctx context.Context, ev Event) error {
	pb, err := q.player.Start(ctx, ev)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.elevated = append(q.elevated, &entry{ev: ev, armed: true, pb: pb})
	q.mu.Unlock()
	return nil
}

// Submit routes compiled events: immediate ones to PlayNow, the rest to the FIFO lane.
func (q *Queue) Submit(ctx context.Context, events []Event) {
	var queued []Event
	for _, ev := range events {
		if ev.Immediate && !ev.IsPause {
			if err := q.PlayNow(ctx, ev); err != nil {
				slog.Warn("immediate sound failed", slog.Any("err", err), slog.String("group", ev.Group), slog.String("component", "sound"))
			}
			continue
		}
		queued = append(queued, ev)
	}
	if len(queued) > 0 {
		q.Enqueue(queued...)
	}
}

// Tick advances both lanes by at most one step each.
func (q *Queue) Tick(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tickFIFO(ctx)

	kept := q.elevated[:0]
	for _, e := range q.elevated {
		if !e.pb.Done() {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(q.elevated); i++ {
		q.elevated[i] = nil
	}
	q.elevated = kept
}

func (q *Queue) tickFIFO(ctx context.Context) {
	if len(q.fifo) == 0 {
		return
	}
	head := q.fifo[0]
	switch {
	case head.ev.IsPause:
		if head.pauseStart.IsZero() {
			head.pauseStart = q.clock()
			return
		}
		if q.clock().Sub(head.pauseStart) >= head.ev.Pause {
			q.popLocked()
		}
	case !head.armed:
		pb, err := q.player.Start(ctx, head.ev)
		if err != nil {
			slog.Warn("sound playback failed", slog.Any("err", err), slog.String("group", head.ev.Group), slog.String("component", "sound"))
			q.popLocked()
			return
		}
		head.pb = pb
		head.armed = true
	case head.pb.Done():
		q.popLocked()
	}
}

func (q *Queue) popLocked() {
	q.fifo[0] = nil
	q.fifo = q.fifo[1:]
	telemetry.SetSoundQueueDepth(len(q.fifo))
}

// SkipGroup removes every contiguous head entry sharing the head's group id and
// stops whatever of it is playing. It returns the number of entries removed.
func (q *Queue) SkipGroup() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fifo) == 0 {
		return 0
	}
	group := q.fifo[0].ev.Group
	n := 0
	for len(q.fifo) > 0 && q.fifo[0].ev.Group == group {
		if e := q.fifo[0]; e.armed && e.pb != nil {
			e.pb.Stop()
		}
		q.popLocked()
		n++
	}
	return n
}

// Len is the FIFO lane length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fifo)
}

// Playing is the number of elevated sounds still running.
func (q *Queue) Playing() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elevated)
}

// Run ticks the queue every interval until ctx is done, then stops all playback.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.stopAll()
			return
		case <-ticker.C:
			q.Tick(ctx)
		}
	}
}

func (q *Queue) stopAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range append(q.fifo, q.elevated...) {
		if e.armed && e.pb != nil {
			e.pb.Stop()
		}
	}
	q.fifo, q.elevated = nil, nil
}
