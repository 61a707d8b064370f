package chat

import (
	"strings"
	"unicode"
)

// Kind discriminates the result of ParseLine.
type Kind int

const (
	KindIgnored Kind = iota
	KindChatMessage
	KindPing
	KindJoin
)

func (k Kind) String() string {
	switch k {
	case KindChatMessage:
		return "chat"
	case KindPing:
		return "ping"
	case KindJoin:
		return "join"
	default:
		return "ignored"
	}
}

const (
	chatMarker  = "PRIVMSG"
	pingKeyword = "PING"
	joinCommand = "JOIN"
)

// ChatEvent is one chat line from a user. It is immutable once parsed.
type ChatEvent struct {
	Host    string
	Nick    string
	UserID  string
	Channel string
	Badges  []string
	// BadgeString is the raw badges tag value, kept for the user table.
	BadgeString string
	Message     string
	ReplyTo     string
}

// HasAnyBadge reports whether the sender holds at least one of the given badges.
func (e ChatEvent) HasAnyBadge(badges []string) bool {
	for _, want := range badges {
		for _, have := range e.Badges {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Event is the discriminated result of parsing a raw protocol line.
type Event struct {
	Kind Kind
	Chat ChatEvent
	// Raw is the cleaned source line; for pings it is the line to echo back.
	Raw string
}

// ParseLine classifies one raw protocol line. It never fails: anything it cannot
// make sense of is KindIgnored, and missing segments come back as empty strings.
func ParseLine(raw string) Event {
	line := clean(raw)
	if line == "" {
		return Event{Kind: KindIgnored}
	}
	tagSegment, prefix, command, params := splitLine(line)

	switch {
	case command == chatMarker:
		ev := ChatEvent{Host: clean(prefix)}
		if nick, _, ok := strings.Cut(prefix, "!"); ok {
			ev.Nick = clean(nick)
		} else {
			ev.Nick = ev.Host
		}
		target, body, _ := strings.Cut(params, " :")
		if strings.HasPrefix(params, ":") {
			// no target, body only
			target, body = "", params[1:]
		}
		ev.Channel = strings.TrimPrefix(clean(target), "#")
		ev.Message = clean(body)

		tags := ParseTags(tagSegment)
		ev.UserID = tags.UserID()
		ev.Badges = tags.Badges()
		ev.BadgeString = tags.Get("badges")
		ev.ReplyTo = tags.ReplyTarget()
		return Event{Kind: KindChatMessage, Chat: ev, Raw: line}
	case firstToken(line) == pingKeyword:
		return Event{Kind: KindPing, Raw: line}
	case command == joinCommand:
		return Event{Kind: KindJoin, Raw: line}
	}
	return Event{Kind: KindIgnored, Raw: line}
}

// Pong turns a PING line into the PONG reply by replacing its second character.
func Pong(pingLine string) string {
	b := []byte(pingLine)
	if len(b) < 2 {
		return pingLine
	}
	b[1] = 'O'
	return string(b)
}

// splitLine separates an IRC line into its optional tag segment (without '@'),
// optional prefix (without ':'), command and remaining parameters.
func splitLine(line string) (tags, prefix, command, params string) {
	rest := line
	if strings.HasPrefix(rest, "@") {
		var ok bool
		tags, rest, ok = strings.Cut(rest[1:], " ")
		if !ok {
			return tags, "", "", ""
		}
		rest = strings.TrimLeft(rest, " ")
	}
	if strings.HasPrefix(rest, ":") {
		var ok bool
		prefix, rest, ok = strings.Cut(rest[1:], " ")
		if !ok {
			return tags, prefix, "", ""
		}
		rest = strings.TrimLeft(rest, " ")
	}
	command, params, _ = strings.Cut(rest, " ")
	return tags, prefix, command, strings.TrimLeft(params, " ")
}

func firstToken(s string) string {
	toks := Tokenize(s)
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}

// Tokenize splits s on ASCII spaces and trims whitespace and control characters
// from each token. Runs of spaces are collapsed: empty tokens are never returned.
func Tokenize(s string) []string {
	parts := strings.Split(s, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = clean(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func clean(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) })
}
