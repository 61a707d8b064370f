package chat

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/onnwee/streambot/telemetry"
)

// Pool runs command handlers off the ingestion loop with a fixed number of slots.
// Submissions never block: when every slot is busy the task is refused.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool with size concurrent slots (minimum 1).
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	slog.Info("handler pool initialized", slog.Int("max_concurrent", size), slog.String("component", "dispatch"))
	return &Pool{slots: make(chan struct{}, size)}
}

// TrySubmit starts fn in its own goroutine if a slot is free and reports whether it did.
// A panic inside fn is recovered, logged with its stack and counted.
func (p *Pool) TrySubmit(ctx context.Context, name string, fn func(ctx context.Context)) bool {
	select {
	case p.slots <- struct{}{}:
	default:
		return false
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.slots }()
		defer func() {
			if r := recover(); r != nil {
				telemetry.IncPanic()
				telemetry.LoggerWithCorr(ctx).Error("handler panic recovered",
					slog.String("task", name),
					slog.Any("err", fmt.Errorf("panic: %v", r)),
					slog.String("stack", string(debug.Stack())),
					slog.String("component", "dispatch"))
			}
		}()
		fn(ctx)
	}()
	return true
}

// Wait blocks until all submitted tasks have returned.
func (p *Pool) Wait() { p.wg.Wait() }

// Active returns the number of busy slots.
func (p *Pool) Active() int { return len(p.slots) }

// Cap returns the configured slot count.
func (p *Pool) Cap() int { return cap(p.slots) }
