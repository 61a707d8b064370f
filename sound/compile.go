package sound

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	maxLoops  = 5
	maxVolume = 2.0
	maxPause  = 10 * time.Second
)

// Synthesizer turns a phrase into audio. It returns nil when synthesis fails.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice, text string) []byte
}

// Library resolves clip and voice names, case-insensitively.
type Library struct {
	clips  map[string]string
	voices map[string]string
}

// NewLibrary indexes clip paths by name and voices by their lower-cased id.
func NewLibrary(clips map[string]string, voices []string) *Library {
	l := &Library{clips: map[string]string{}, voices: map[string]string{}}
	for name, path := range clips {
		l.clips[strings.ToLower(name)] = path
	}
	for _, v := range voices {
		l.voices[strings.ToLower(v)] = v
	}
	return l
}

func (l *Library) Clip(name string) (string, bool) {
	p, ok := l.clips[strings.ToLower(name)]
	return p, ok
}

func (l *Library) Voice(name string) (string, bool) {
	v, ok := l.voices[strings.ToLower(name)]
	return v, ok
}

// selector is a parsed "-name|volume|loops" token.
type selector struct {
	name      string
	immediate bool
	volume    float64
	loops     int
}

func parseSelector(tok string) (selector, bool) {
	if len(tok) < 2 || (tok[0] != '-' && tok[0] != '+') {
		return selector{}, false
	}
	parts := strings.Split(tok[1:], "|")
	s := selector{name: strings.ToLower(parts[0]), immediate: tok[0] == '+', volume: 1}
	if len(parts) > 1 {
		if v, err := strconv.ParseFloat(parts[1], 64); err == nil {
			s.volume = min(max(v, 0), maxVolume)
		}
	}
	if len(parts) > 2 {
		if n, err := strconv.Atoi(parts[2]); err == nil {
			s.loops = min(max(n, 0), maxLoops)
		}
	}
	return s, s.name != ""
}

// pauseLength reports whether name is a pause selector ("p<seconds>").
func pauseLength(name string) (time.Duration, bool) {
	if len(name) < 2 || name[0] != 'p' {
		return 0, false
	}
	secs, err := strconv.ParseFloat(name[1:], 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	d := time.Duration(secs * float64(time.Second))
	return min(d, maxPause), true
}

// Compile turns the arguments of a tts command into sound events sharing one group id.
//
// Tokens beginning with '-' (queue) or '+' (play now) are selectors. A selector
// first flushes the pending phrase, then resolves, in order, as a pause, a clip
// or a voice; unknown selectors are ignored. A voice selector changes the voice,
// volume, loops and lane used for the following phrase text. Other tokens
// accumulate into the phrase, which is synthesized at the next selector or at
// the end of input. A phrase whose synthesis fails is dropped.
func Compile(ctx context.Context, tokens []string, lib *Library, synth Synthesizer, defaultVoice string) []Event {
	group := uuid.NewString()
	var (
		out    []Event
		phrase []string
		voice  = selector{name: defaultVoice, volume: 1}
	)
	flush := func() {
		if len(phrase) == 0 {
			return
		}
		text := strings.Join(phrase, " ")
		phrase = phrase[:0]
		audio := synth.Synthesize(ctx, voice.name, text)
		if len(audio) == 0 {
			return
		}
		out = append(out, Event{Speech: audio, Volume: voice.volume, Loops: voice.loops, Immediate: voice.immediate, Group: group})
	}

	for _, tok := range tokens {
		sel, ok := parseSelector(tok)
		if !ok {
			if tok != "" {
				phrase = append(phrase, tok)
			}
			continue
		}
		flush()
		if d, ok := pauseLength(sel.name); ok {
			out = append(out, Event{IsPause: true, Pause: d, Group: group})
			continue
		}
		if path, ok := lib.Clip(sel.name); ok {
			out = append(out, Event{Clip: path, Volume: sel.volume, Loops: sel.loops, Immediate: sel.immediate, Group: group})
			continue
		}
		if v, ok := lib.Voice(sel.name); ok {
			sel.name = v
			voice = sel
		}
	}
	flush()
	return out
}
