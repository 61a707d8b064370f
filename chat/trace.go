package chat

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// FrameTracer echoes raw protocol traffic: "<<" for inbound, ">>" for outbound.
// A nil tracer is valid and prints nothing.
type FrameTracer struct {
	mu  sync.Mutex
	w   io.Writer
	in  *color.Color
	out *color.Color
}

func NewFrameTracer(w io.Writer) *FrameTracer {
	return &FrameTracer{w: w, in: color.New(color.FgCyan), out: color.New(color.FgYellow)}
}

func (t *FrameTracer) Inbound(line string) {
	if t == nil {
		return
	}
	t.print(t.in, "<< ", line)
}

func (t *FrameTracer) Outbound(line string) {
	if t == nil {
		return
	}
	// never echo credentials
	if strings.HasPrefix(line, "PASS ") {
		line = "PASS oauth:***"
	}
	t.print(t.out, ">> ", line)
}

func (t *FrameTracer) print(c *color.Color, dir, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = c.Fprintln(t.w, dir+strings.TrimRight(line, "\r\n"))
}
