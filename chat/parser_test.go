package chat

import (
	"reflect"
	"strings"
	"testing"
)

const taggedPrivmsg = "@badge-info=subscriber/8;badges=moderator/1,subscriber/6;color=#FF0000;display-name=Viewer;user-id=4242;reply-parent-user-login=other;reply-parent-msg-id=abc :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #streamer :!sr https://youtu.be/dQw4w9WgXcQ\r\n"

func TestParseLineChatMessage(t *testing.T) {
	ev := ParseLine(taggedPrivmsg)
	if ev.Kind != KindChatMessage {
		t.Fatalf("kind = %v, want chat", ev.Kind)
	}
	c := ev.Chat
	if c.Nick != "viewer" {
		t.Errorf("nick = %q", c.Nick)
	}
	if c.Host != "viewer!viewer@viewer.tmi.twitch.tv" {
		t.Errorf("host = %q", c.Host)
	}
	if c.Channel != "streamer" {
		t.Errorf("channel = %q", c.Channel)
	}
	if c.Message != "!sr https://youtu.be/dQw4w9WgXcQ" {
		t.Errorf("message = %q", c.Message)
	}
	if c.UserID != "4242" {
		t.Errorf("user id = %q", c.UserID)
	}
	if !reflect.DeepEqual(c.Badges, []string{"moderator", "subscriber"}) {
		t.Errorf("badges = %v", c.Badges)
	}
	if c.BadgeString != "moderator/1,subscriber/6" {
		t.Errorf("badge string = %q", c.BadgeString)
	}
	if c.ReplyTo != "other" {
		t.Errorf("reply target = %q", c.ReplyTo)
	}
}

func TestParseLineUntaggedMessage(t *testing.T) {
	ev := ParseLine(":someone!someone@someone.tmi.twitch.tv PRIVMSG #chan :hello there  \r\n")
	if ev.Kind != KindChatMessage {
		t.Fatalf("kind = %v, want chat", ev.Kind)
	}
	if ev.Chat.Nick != "someone" || ev.Chat.Message != "hello there" {
		t.Errorf("got nick=%q message=%q", ev.Chat.Nick, ev.Chat.Message)
	}
	if len(ev.Chat.Badges) != 0 || ev.Chat.UserID != "" {
		t.Errorf("expected no tag data, got %+v", ev.Chat)
	}
}

func TestParseLineKinds(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"ping", "PING :tmi.twitch.tv\r\n", KindPing},
		{"join", ":bot!bot@bot.tmi.twitch.tv JOIN #chan", KindJoin},
		{"cap ack", ":tmi.twitch.tv CAP * ACK :twitch.tv/membership", KindIgnored},
		{"welcome numeric", ":tmi.twitch.tv 001 bot :Welcome, GLHF!", KindIgnored},
		{"notice", "@msg-id=msg_banned :tmi.twitch.tv NOTICE #chan :You are banned", KindIgnored},
		{"empty", "", KindIgnored},
		{"whitespace", " \r\n\t", KindIgnored},
		{"tags only", "@badges=moderator/1", KindIgnored},
		{"prefix only", ":nick!nick@host", KindIgnored},
		{"marker in body of other command", ":tmi.twitch.tv NOTICE #chan :PRIVMSG is fun", KindIgnored},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLine(tt.line).Kind; got != tt.want {
				t.Errorf("ParseLine(%q).Kind = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseLineNeverPanicsWithoutMarker(t *testing.T) {
	inputs := []string{
		"@", ":", "@ :", "@;;;= :x", "::::", "PRIVMS", "@a=b", "\x00\x01", "PONG :x",
		strings.Repeat(" :", 50), "@badges=/,/,/ :a!b PRIVMSG",
	}
	for _, in := range inputs {
		ev := ParseLine(in)
		if !strings.Contains(in, "PRIVMSG") && ev.Kind == KindChatMessage {
			t.Errorf("line without marker parsed as chat: %q", in)
		}
	}
}

func TestParseLineMissingSegments(t *testing.T) {
	ev := ParseLine("@badges=/,/,/ :a!b PRIVMSG")
	if ev.Kind != KindChatMessage {
		t.Fatalf("kind = %v, want chat", ev.Kind)
	}
	if ev.Chat.Message != "" || ev.Chat.Channel != "" {
		t.Errorf("expected empty segments, got %+v", ev.Chat)
	}
	if len(ev.Chat.Badges) != 0 {
		t.Errorf("badges = %v, want none", ev.Chat.Badges)
	}
}

func TestPong(t *testing.T) {
	if got := Pong("PING :tmi.twitch.tv"); got != "PONG :tmi.twitch.tv" {
		t.Errorf("Pong = %q", got)
	}
	if got := Pong("P"); got != "P" {
		t.Errorf("short line should be unchanged, got %q", got)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"!sr  url\r\n", []string{"!sr", "url"}},
		{"   ", []string{}},
		{"a b\tc", []string{"a", "b\tc"}},
		{"\x01ACTION waves\x01", []string{"ACTION", "waves"}},
		{"one", []string{"one"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestTokenizeRejoinEqualsCollapsed(t *testing.T) {
	inputs := []string{"  hello   world  ", "a", "x  y z", "", "!tts -brian  hi  there"}
	for _, in := range inputs {
		joined := strings.Join(Tokenize(in), " ")
		want := strings.Join(strings.Fields(in), " ")
		if joined != want {
			t.Errorf("rejoin(%q) = %q, want %q", in, joined, want)
		}
	}
}
