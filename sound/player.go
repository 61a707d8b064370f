package sound

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync/atomic"
)

// MPVPlayer plays each event in its own mpv process.
type MPVPlayer struct {
	Command string
	TempDir string // speech buffers are written here; empty uses os.TempDir
}

func NewMPVPlayer(command, tempDir string) *MPVPlayer {
	if command == "" {
		command = "mpv"
	}
	return &MPVPlayer{Command: command, TempDir: tempDir}
}

// Args builds the mpv command line for ev playing from path.
func (p *MPVPlayer) Args(ev Event, path string) []string {
	vol := min(max(ev.Volume, 0), maxVolume)
	args := []string{path, "--no-video", "--really-quiet", "--volume-max=200", "--volume=" + strconv.Itoa(int(vol*100))}
	if ev.Loops > 0 {
		args = append(args, "--loop-file="+strconv.Itoa(ev.Loops))
	}
	return args
}

func (p *MPVPlayer) Start(ctx context.Context, ev Event) (Playback, error) {
	path := ev.Clip
	var tmp string
	if len(ev.Speech) > 0 {
		f, err := os.CreateTemp(p.TempDir, "tts-*.mp3")
		if err != nil {
			return nil, fmt.Errorf("speech temp file: %w", err)
		}
		if _, err := f.Write(ev.Speech); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return nil, fmt.Errorf("write speech: %w", err)
		}
		_ = f.Close()
		tmp, path = f.Name(), f.Name()
	}
	if path == "" {
		return nil, fmt.Errorf("sound event has nothing to play")
	}
	cmd := exec.CommandContext(ctx, p.Command, p.Args(ev, path)...)
	if err := cmd.Start(); err != nil {
		if tmp != "" {
			_ = os.Remove(tmp)
		}
		return nil, fmt.Errorf("start %s: %w", p.Command, err)
	}
	pb := &process{cmd: cmd}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("sound process exited", slog.Any("err", err), slog.String("component", "sound"))
		}
		if tmp != "" {
			_ = os.Remove(tmp)
		}
		pb.done.Store(true)
	}()
	return pb, nil
}

type process struct {
	cmd  *exec.Cmd
	done atomic.Bool
}

func (p *process) Done() bool { return p.done.Load() }

func (p *process) Stop() {
	if !p.done.Load() && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}
