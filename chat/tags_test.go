package chat

import (
	"reflect"
	"testing"
)

func TestParseTags(t *testing.T) {
	tags := ParseTags("@badges=broadcaster/1,vip/1;user-id=99;system-msg=hello\\sworld\\:yes;flag;=novalue")
	if got := tags.UserID(); got != "99" {
		t.Errorf("UserID = %q", got)
	}
	if got := tags.Badges(); !reflect.DeepEqual(got, []string{"broadcaster", "vip"}) {
		t.Errorf("Badges = %v", got)
	}
	if got := tags.Get("system-msg"); got != "hello world;yes" {
		t.Errorf("unescaped value = %q", got)
	}
	if _, ok := tags["flag"]; !ok {
		t.Errorf("key without value should be present")
	}
	if _, ok := tags[""]; ok {
		t.Errorf("empty key should be skipped")
	}
	if tags.IsReply() {
		t.Errorf("IsReply should be false without reply-parent-msg-id")
	}
}

func TestParseTagsEmpty(t *testing.T) {
	tags := ParseTags("")
	if len(tags) != 0 || tags.Badges() != nil || tags.UserID() != "" {
		t.Errorf("expected empty tags, got %v", tags)
	}
}

func TestTagsFromLine(t *testing.T) {
	tags := TagsFromLine("@reply-parent-msg-id=1;reply-parent-user-login=bob :a!a@a PRIVMSG #c :@bob hi")
	if !tags.IsReply() || tags.ReplyTarget() != "bob" {
		t.Errorf("reply tags not parsed: %v", tags)
	}
	if got := TagsFromLine(":a!a@a PRIVMSG #c :hi"); len(got) != 0 {
		t.Errorf("untagged line produced tags: %v", got)
	}
}
