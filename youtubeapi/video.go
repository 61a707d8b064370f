package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var (
	ErrInvalidLink   = errors.New("not a youtube link")
	ErrVideoNotFound = errors.New("video not found")
)

// Video is the subset of video metadata the song queue needs.
// Likes and Views are -1 when the statistics are hidden.
type Video struct {
	ID       string
	Title    string
	Duration time.Duration
	Likes    int64
	Views    int64
}

// Seconds returns the video length in whole seconds.
func (v Video) Seconds() int { return int(v.Duration / time.Second) }

// WatchURL is the canonical watch page for the video, whatever link form was requested.
func (v Video) WatchURL() string { return "https://www.youtube.com/watch?v=" + v.ID }

// Lookup resolves video metadata through the Data API.
type Lookup struct {
	svc     *yt.Service
	timeout time.Duration
}

// NewLookup builds a lookup from client options (API key, endpoint, http client).
func NewLookup(ctx context.Context, timeout time.Duration, opts ...option.ClientOption) (*Lookup, error) {
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &Lookup{svc: svc, timeout: timeout}, nil
}

// NewLookupFromService wraps an already authorized service (OAuth fallback).
func NewLookupFromService(svc *yt.Service, timeout time.Duration) *Lookup {
	return &Lookup{svc: svc, timeout: timeout}
}

// Video fetches the metadata for the video referenced by link.
func (l *Lookup) Video(ctx context.Context, link string) (Video, error) {
	id, ok := VideoID(link)
	if !ok {
		return Video{}, ErrInvalidLink
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	res, err := l.svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).Id(id).Context(ctx).Do()
	if err != nil {
		return Video{}, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(res.Items) == 0 {
		return Video{}, ErrVideoNotFound
	}
	item := res.Items[0]
	v := Video{ID: item.Id, Likes: -1, Views: -1}
	if item.Snippet != nil {
		v.Title = item.Snippet.Title
	}
	if v.Title == "" {
		return Video{}, ErrVideoNotFound
	}
	if item.ContentDetails != nil {
		v.Duration, _ = ParseISODuration(item.ContentDetails.Duration)
	}
	if s := item.Statistics; s != nil {
		v.Likes = int64(s.LikeCount)
		v.Views = int64(s.ViewCount)
	}
	return v, nil
}

var isoDuration = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseISODuration parses the ISO-8601 durations the Data API returns
// (PT4M13S, P1DT2H3M4S, P0D).
func ParseISODuration(s string) (time.Duration, error) {
	m := isoDuration.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || s == "P" || s == "PT" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", s)
	}
	units := []time.Duration{7 * 24 * time.Hour, 24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, u := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0, fmt.Errorf("invalid ISO-8601 duration %q: %w", s, err)
		}
		d += time.Duration(n) * u
	}
	return d, nil
}

var bareID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// VideoID extracts the video id from the usual link shapes:
// watch?v=, youtu.be/, /shorts/, /embed/, /live/ and a bare id.
func VideoID(link string) (string, bool) {
	link = strings.TrimSpace(link)
	if bareID.MatchString(link) {
		return link, true
	}
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com":
		if v := u.Query().Get("v"); v != "" {
			id = v
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			id = parts[1]
		}
	}
	if !bareID.MatchString(id) {
		return "", false
	}
	return id, true
}
