package eventsub

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ThankedStore persists the ids of followers that were already thanked.
type ThankedStore interface {
	Load(ctx context.Context) ([]string, error)
	Append(ctx context.Context, id string) error
}

// ThankedSet is the in-memory view of the thanked followers, written through to a store.
type ThankedSet struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	store ThankedStore
}

// NewThankedSet loads the persisted ids. A nil store keeps the set in memory only.
func NewThankedSet(ctx context.Context, store ThankedStore) (*ThankedSet, error) {
	s := &ThankedSet{ids: map[string]struct{}{}, store: store}
	if store == nil {
		return s, nil
	}
	ids, err := store.Load(ctx)
	if err != nil {
		return s, fmt.Errorf("load thanked followers: %w", err)
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s, nil
}

func (s *ThankedSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Add records id and reports whether it was new. The id stays in memory even when
// persisting fails so a flaky store never causes a second thank-you.
func (s *ThankedSet) Add(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	if _, ok := s.ids[id]; ok {
		s.mu.Unlock()
		return false, nil
	}
	s.ids[id] = struct{}{}
	s.mu.Unlock()
	if s.store == nil {
		return true, nil
	}
	if err := s.store.Append(ctx, id); err != nil {
		return true, fmt.Errorf("persist thanked follower %s: %w", id, err)
	}
	return true, nil
}

func (s *ThankedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// FileThankedStore keeps one user id per line.
type FileThankedStore struct {
	Path string

	mu sync.Mutex
}

func (f *FileThankedStore) Load(ctx context.Context) ([]string, error) {
	file, err := os.Open(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var ids []string
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, sc.Err()
}

func (f *FileThankedStore) Append(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(f.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.WriteString(id + "\n"); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
