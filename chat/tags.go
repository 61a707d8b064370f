package chat

import "strings"

// Tags is the IRCv3 message-tag map of a line (key -> unescaped value).
type Tags map[string]string

var tagUnescaper = strings.NewReplacer(`\:`, ";", `\s`, " ", `\\`, `\`, `\r`, "\r", `\n`, "\n")

// ParseTags parses a "k=v;k2=v2" tag segment. A leading '@' is tolerated.
// Keys without '=' map to the empty string; empty keys are skipped.
func ParseTags(segment string) Tags {
	segment = strings.TrimPrefix(segment, "@")
	t := Tags{}
	if segment == "" {
		return t
	}
	for _, kv := range strings.Split(segment, ";") {
		k, v, _ := strings.Cut(kv, "=")
		if k == "" {
			continue
		}
		t[k] = tagUnescaper.Replace(v)
	}
	return t
}

// TagsFromLine extracts and parses the tag segment of a full protocol line.
func TagsFromLine(line string) Tags {
	if !strings.HasPrefix(line, "@") {
		return Tags{}
	}
	seg, _, _ := strings.Cut(line, " ")
	return ParseTags(seg)
}

func (t Tags) Get(key string) string { return t[key] }

func (t Tags) UserID() string { return t["user-id"] }

// Badges returns the badge names of the "badges" tag (moderator/1,subscriber/12 -> moderator, subscriber).
func (t Tags) Badges() []string {
	raw := t["badges"]
	if raw == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(raw, ",") {
		name, _, _ := strings.Cut(b, "/")
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// IsReply reports whether the message replies to another chat message.
func (t Tags) IsReply() bool { return t["reply-parent-msg-id"] != "" }

// ReplyTarget is the login of the user being replied to, if any.
func (t Tags) ReplyTarget() string { return t["reply-parent-user-login"] }
