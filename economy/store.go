package economy

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Store persists ledger snapshots.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, s Snapshot) error
}

// FileStore keeps a snapshot as flat "key:value" lines:
//
//	counter.pog:12
//	user.1234.nick:someone
//	user.1234.gamble:500
//
// The file is rewritten wholesale on every save.
type FileStore struct {
	Path string
}

func (f *FileStore) Load(_ context.Context) (Snapshot, error) {
	s := Snapshot{Counters: map[string]int64{}}
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read ledger: %w", err)
	}
	users := map[string]*User{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, "counter."):
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				s.Counters[strings.TrimPrefix(key, "counter.")] = n
			}
		case strings.HasPrefix(key, "user."):
			rest := strings.TrimPrefix(key, "user.")
			dot := strings.LastIndex(rest, ".")
			if dot <= 0 {
				continue
			}
			id, field := rest[:dot], rest[dot+1:]
			u, ok := users[id]
			if !ok {
				u = &User{ID: id}
				users[id] = u
			}
			setField(u, field, value)
		}
	}
	if err := sc.Err(); err != nil {
		return s, fmt.Errorf("scan ledger: %w", err)
	}
	for _, u := range users {
		s.Users = append(s.Users, *u)
	}
	sort.Slice(s.Users, func(i, j int) bool { return s.Users[i].ID < s.Users[j].ID })
	return s, nil
}

func setField(u *User, field, value string) {
	num := func() int64 {
		n, _ := strconv.ParseInt(value, 10, 64)
		return n
	}
	switch field {
	case "nick":
		u.Nick = value
	case "badges":
		u.Badges = value
	case "points":
		u.Points = num()
	case "gamble":
		u.Gamble = num()
	case "social_credit":
		u.SocialCredit = num()
	}
}

func (f *FileStore) Save(_ context.Context, s Snapshot) error {
	var buf bytes.Buffer
	names := make([]string, 0, len(s.Counters))
	for k := range s.Counters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&buf, "counter.%s:%d\n", k, s.Counters[k])
	}
	for _, u := range s.Users {
		fmt.Fprintf(&buf, "user.%s.nick:%s\n", u.ID, u.Nick)
		fmt.Fprintf(&buf, "user.%s.badges:%s\n", u.ID, u.Badges)
		fmt.Fprintf(&buf, "user.%s.points:%d\n", u.ID, u.Points)
		fmt.Fprintf(&buf, "user.%s.gamble:%d\n", u.ID, u.Gamble)
		fmt.Fprintf(&buf, "user.%s.social_credit:%d\n", u.ID, u.SocialCredit)
	}
	return writeFileAtomic(f.Path, buf.Bytes())
}

// writeFileAtomic writes through a temp file in the same directory and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Flush saves the current snapshot once.
func (l *Ledger) Flush(ctx context.Context, store Store) error {
	if err := store.Save(ctx, l.Snapshot()); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

// RunPersistence saves the ledger every interval and once more when ctx is done.
// Failures are logged; the bot keeps running.
func (l *Ledger) RunPersistence(ctx context.Context, store Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := l.Flush(sctx, store); err != nil {
				slog.Error("final ledger save failed", slog.Any("err", err), slog.String("component", "economy"))
			} else {
				slog.Info("ledger saved", slog.Int("users", l.Len()), slog.String("component", "economy"))
			}
			cancel()
			return
		case <-ticker.C:
			if err := l.Flush(ctx, store); err != nil {
				slog.Warn("ledger save failed", slog.Any("err", err), slog.String("component", "economy"))
			}
		}
	}
}
