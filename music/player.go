package music

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
)

// MPVPlayer plays audio through an external mpv process, one at a time.
type MPVPlayer struct {
	Command string
	Extra   []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewMPVPlayer(command string) *MPVPlayer {
	if command == "" {
		command = "mpv"
	}
	return &MPVPlayer{Command: command}
}

// Play starts mpv on url and returns once the process is running. A previous
// process is stopped first.
func (p *MPVPlayer) Play(ctx context.Context, url string) error {
	p.Stop()
	args := append([]string{url, "--no-video", "--really-quiet"}, p.Extra...)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Command, err)
	}
	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		if p.cmd == cmd {
			p.cmd = nil
		}
		p.mu.Unlock()
		if err != nil {
			slog.Debug("player exited", slog.String("url", url), slog.Any("err", err), slog.String("component", "music"))
		}
	}()
	return nil
}

// Stop kills the running process, if any.
func (p *MPVPlayer) Stop() {
	p.mu.Lock()
	cmd := p.cmd
	p.cmd = nil
	p.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Running reports whether a process is alive.
func (p *MPVPlayer) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}
