// Package economy keeps the per-user points, gamble balance and social credit
// plus a few process counters, all behind one mutex.
package economy

import (
	"errors"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/onnwee/streambot/telemetry"
)

var (
	ErrUnknownUser         = errors.New("unknown user")
	ErrInvalidStake        = errors.New("invalid stake")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// User is one chatter's ledger row.
type User struct {
	ID           string
	Nick         string
	Badges       string
	Points       int64
	Gamble       int64
	SocialCredit int64
}

// Config holds the economy rules.
type Config struct {
	WinChance   float64
	FollowBonus int64
	BanPenalty  int64
	// Floor is both the starting gamble balance and the reset value.
	Floor int64
}

// GambleResult describes one resolved gamble.
type GambleResult struct {
	Stake      int64
	Multiplier int64
	Won        bool
	Before     int64
	Balance    int64
	// Reset is set when the balance fell to zero or below and was restored to the floor.
	Reset bool
}

type Ledger struct {
	mu       sync.Mutex
	users    map[string]*User
	byNick   map[string]string // lower-cased nick -> id
	counters map[string]int64
	cfg      Config
	coin     func() bool
}

func NewLedger(cfg Config) *Ledger {
	if cfg.Floor <= 0 {
		cfg.Floor = 500
	}
	l := &Ledger{
		users:    map[string]*User{},
		byNick:   map[string]string{},
		counters: map[string]int64{},
		cfg:      cfg,
	}
	l.coin = func() bool { return rand.Float64() < l.cfg.WinChance }
	return l
}

// SetCoin replaces the random win decision.
func (l *Ledger) SetCoin(coin func() bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coin = coin
}

// Observe creates the user on first sight and refreshes nick and badges afterwards.
func (l *Ledger) Observe(id, nick, badges string) {
	if id == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.ensureLocked(id, nick)
	u.Badges = badges
}

func (l *Ledger) ensureLocked(id, nick string) *User {
	u, ok := l.users[id]
	if !ok {
		u = &User{ID: id, Gamble: l.cfg.Floor}
		l.users[id] = u
	}
	if nick != "" && u.Nick != nick {
		if u.Nick != "" {
			delete(l.byNick, strings.ToLower(u.Nick))
		}
		u.Nick = nick
		l.byNick[strings.ToLower(nick)] = id
	}
	return u
}

func (l *Ledger) ByID(id string) (User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// ByNick finds a user by nick, ignoring case and a leading '@'.
func (l *Ledger) ByNick(nick string) (User, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.byNickLocked(nick)
	if u == nil {
		return User{}, false
	}
	return *u, true
}

func (l *Ledger) byNickLocked(nick string) *User {
	id, ok := l.byNick[strings.ToLower(strings.TrimPrefix(nick, "@"))]
	if !ok {
		return nil
	}
	return l.users[id]
}

// Gamble stakes part of the user's balance. arg is "all" (10x), "half" (5x) or a
// positive amount (1x). A win adds stake*multiplier on top of the balance; a loss
// removes the stake. A balance at or below zero resets to the floor.
func (l *Ledger) Gamble(id, arg string) (GambleResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return GambleResult{}, ErrUnknownUser
	}
	if u.Gamble <= 0 {
		u.Gamble = l.cfg.Floor
	}
	res := GambleResult{Before: u.Gamble}
	switch strings.ToLower(arg) {
	case "all":
		res.Stake, res.Multiplier = u.Gamble, 10
	case "half":
		res.Stake, res.Multiplier = u.Gamble/2, 5
	default:
		n, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return GambleResult{}, ErrInvalidStake
		}
		res.Stake, res.Multiplier = n, 1
	}
	if res.Stake <= 0 {
		return GambleResult{}, ErrInvalidStake
	}
	if res.Stake > u.Gamble {
		return GambleResult{}, ErrInsufficientBalance
	}

	res.Won = l.coin()
	if res.Won {
		u.Gamble += res.Stake * res.Multiplier
		telemetry.IncGamble("win")
	} else {
		u.Gamble -= res.Stake
		telemetry.IncGamble("loss")
	}
	if u.Gamble <= 0 {
		u.Gamble = l.cfg.Floor
		res.Reset = true
		telemetry.IncGamble("reset")
	}
	res.Balance = u.Gamble
	return res, nil
}

// CreditFollowBonus adds the follow bonus to a user's points, creating the user if needed.
func (l *Ledger) CreditFollowBonus(id, nick string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.ensureLocked(id, nick)
	u.Points += l.cfg.FollowBonus
	return u.Points
}

// RecordBan charges the ban penalty against social credit. Unknown users are ignored.
func (l *Ledger) RecordBan(id string, seconds int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.users[id]
	if !ok {
		return
	}
	u.SocialCredit -= l.cfg.BanPenalty
	l.counters["bans"]++
	if seconds < 0 {
		l.counters["permanent_bans"]++
	}
}

// AdjustSocialCredit changes a user's social credit by delta.
func (l *Ledger) AdjustSocialCredit(nick string, delta int64) (User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.byNickLocked(nick)
	if u == nil {
		return User{}, ErrUnknownUser
	}
	u.SocialCredit += delta
	return *u, nil
}

func (l *Ledger) Counter(name string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[name]
}

func (l *Ledger) Incr(name string, n int64) {
	if name == "" || n == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[name] += n
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// Snapshot is a point-in-time copy of the ledger, users sorted by id.
type Snapshot struct {
	Users    []User
	Counters map[string]int64
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Snapshot{Users: make([]User, 0, len(l.users)), Counters: make(map[string]int64, len(l.counters))}
	for _, u := range l.users {
		s.Users = append(s.Users, *u)
	}
	sort.Slice(s.Users, func(i, j int) bool { return s.Users[i].ID < s.Users[j].ID })
	for k, v := range l.counters {
		s.Counters[k] = v
	}
	return s
}

// Restore replaces the ledger contents with s. Balances at or below zero come
// back at the floor.
func (l *Ledger) Restore(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = make(map[string]*User, len(s.Users))
	l.byNick = make(map[string]string, len(s.Users))
	l.counters = make(map[string]int64, len(s.Counters))
	for _, u := range s.Users {
		if u.ID == "" {
			continue
		}
		u := u
		if u.Gamble <= 0 {
			u.Gamble = l.cfg.Floor
		}
		l.users[u.ID] = &u
		if u.Nick != "" {
			l.byNick[strings.ToLower(u.Nick)] = u.ID
		}
	}
	for k, v := range s.Counters {
		l.counters[k] = v
	}
}
