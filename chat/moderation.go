package chat

import "strings"

// BannedWord is one entry of the moderation table. Seconds < 0 means permanent.
type BannedWord struct {
	Word    string
	Seconds int
}

// Filter scans plain chat for banned substrings and the celebration keyword.
type Filter struct {
	Words   []BannedWord
	Keyword string
}

// Verdict is the outcome of scanning one chat line.
type Verdict struct {
	Seconds      int // cumulative over every occurrence
	Permanent    bool
	Hits         int
	Celebrations int
}

// ShouldBan reports whether any banned word occurred.
func (v Verdict) ShouldBan() bool { return v.Hits > 0 }

// Scan lower-cases text and accumulates the ban contribution of every
// non-overlapping occurrence of every banned word.
func (f Filter) Scan(text string) Verdict {
	lower := strings.ToLower(text)
	var v Verdict
	if f.Keyword != "" {
		v.Celebrations = strings.Count(lower, strings.ToLower(f.Keyword))
	}
	for _, w := range f.Words {
		if w.Word == "" {
			continue
		}
		n := strings.Count(lower, strings.ToLower(w.Word))
		if n == 0 {
			continue
		}
		v.Hits += n
		if w.Seconds < 0 {
			v.Permanent = true
			continue
		}
		v.Seconds += n * w.Seconds
	}
	return v
}
