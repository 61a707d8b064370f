package chat

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestMailboxFormats(t *testing.T) {
	mb := NewMailbox("#Chan")
	mb.Add("PONG :tmi.twitch.tv")
	mb.Say("hello")
	mb.Reply("bob", "your song was added to the queue")
	mb.ReplyTrailing("Thanks for the follow!", "alice")

	want := []string{
		"PONG :tmi.twitch.tv\r\n",
		"PRIVMSG #Chan :hello\r\n",
		"PRIVMSG #Chan :@bob your song was added to the queue\r\n",
		"PRIVMSG #Chan :Thanks for the follow! @alice\r\n",
	}
	if got := mb.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("Drain() = %q\nwant %q", got, want)
	}
	if mb.Len() != 0 {
		t.Errorf("mailbox not empty after drain")
	}
}

func TestMailboxAddKeepsExistingTerminator(t *testing.T) {
	mb := NewMailbox("c")
	mb.Add("PING :x\r\n")
	if got := mb.Drain(); got[0] != "PING :x\r\n" {
		t.Errorf("terminator doubled: %q", got[0])
	}
}

func TestMailboxFlushRequeuesOnFailure(t *testing.T) {
	mb := NewMailbox("c")
	mb.Add("PONG :a")
	mb.Add("PONG :b")
	mb.Add("PONG :c")

	var sent []string
	calls := 0
	mb.flush(context.Background(), func(line string) error {
		calls++
		if calls == 2 {
			return errors.New("broken pipe")
		}
		sent = append(sent, line)
		return nil
	})
	if !reflect.DeepEqual(sent, []string{"PONG :a\r\n"}) {
		t.Errorf("sent = %q", sent)
	}
	mb.Add("PONG :d")
	want := []string{"PONG :b\r\n", "PONG :c\r\n", "PONG :d\r\n"}
	if got := mb.Drain(); !reflect.DeepEqual(got, want) {
		t.Errorf("after failure = %q, want %q", got, want)
	}
}

func TestMailboxRunPreservesOrder(t *testing.T) {
	mb := NewMailbox("c")
	for _, s := range []string{"one", "two", "three"} {
		mb.Say(s)
	}
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		mb.Run(ctx, 5*time.Millisecond, func(line string) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, line)
			if len(got) == 3 {
				close(done)
			}
			return nil
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mailbox was not flushed")
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"PRIVMSG #c :one\r\n", "PRIVMSG #c :two\r\n", "PRIVMSG #c :three\r\n"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("flushed = %q, want %q", got, want)
	}
}
