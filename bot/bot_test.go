package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onnwee/streambot/chat"
	"github.com/onnwee/streambot/config"
	"github.com/onnwee/streambot/economy"
	"github.com/onnwee/streambot/music"
	"github.com/onnwee/streambot/sound"
	"github.com/onnwee/streambot/youtubeapi"
)

type fakeLookup struct {
	videos map[string]youtubeapi.Video
}

func (f *fakeLookup) Video(_ context.Context, link string) (youtubeapi.Video, error) {
	v, ok := f.videos[link]
	if !ok {
		return youtubeapi.Video{}, youtubeapi.ErrVideoNotFound
	}
	return v, nil
}

type fakeSongPlayer struct {
	stopped int
	played  []string
}

func (p *fakeSongPlayer) Play(_ context.Context, url string) error {
	p.played = append(p.played, url)
	return nil
}

func (p *fakeSongPlayer) Stop() { p.stopped++ }

type fakePlayback struct{}

func (fakePlayback) Done() bool { return false }
func (fakePlayback) Stop()      {}

type fakeSoundPlayer struct {
	mu      sync.Mutex
	started []sound.Event
}

func (p *fakeSoundPlayer) Start(_ context.Context, ev sound.Event) (sound.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = append(p.started, ev)
	return fakePlayback{}, nil
}

type fakeSynth struct{ fail bool }

func (s fakeSynth) Synthesize(_ context.Context, voice, text string) []byte {
	if s.fail {
		return nil
	}
	return []byte(voice + ":" + text)
}

type banCall struct {
	broadcaster, moderator, user string
	seconds                      int
}

type fakeBanner struct {
	mu    sync.Mutex
	calls []banCall
	err   error
}

func (f *fakeBanner) BanUser(_ context.Context, broadcasterID, moderatorID, userID string, seconds int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, banCall{broadcasterID, moderatorID, userID, seconds})
	return f.err
}

type memStore struct {
	saved []economy.Snapshot
}

func (m *memStore) Load(context.Context) (economy.Snapshot, error) { return economy.Snapshot{}, nil }
func (m *memStore) Save(_ context.Context, s economy.Snapshot) error {
	m.saved = append(m.saved, s)
	return nil
}

type harness struct {
	bot     *Bot
	mailbox *chat.Mailbox
	ledger  *economy.Ledger
	music   *music.Queue
	sounds  *sound.Queue
	player  *fakeSongPlayer
	store   *memStore
}

func newHarness(t *testing.T, mutate func(*Deps)) *harness {
	t.Helper()
	cfg := &config.Config{
		TwitchChannel:     "forsen",
		TwitchBotUsername: "forsen",
		TwitchOAuthToken:  "tok",
		IRCURL:            config.DefaultIRCURL,
		TickInterval:      10 * time.Millisecond,
		PersistInterval:   time.Minute,
		WorkerPoolSize:    4,
		CelebrateKeyword:  "pog",
		MaxSongSeconds:    600,
		MinSongLikes:      100,
		DefaultVoice:      "Brian",
	}
	h := &harness{
		mailbox: chat.NewMailbox(cfg.TwitchChannel),
		ledger:  economy.NewLedger(economy.Config{WinChance: 0.5, FollowBonus: 100, Floor: 500}),
		player:  &fakeSongPlayer{},
		store:   &memStore{},
	}
	h.music = music.NewQueue(h.player, h.mailbox)
	h.sounds = sound.NewQueue(&fakeSoundPlayer{})
	deps := Deps{
		Config:  cfg,
		Tables:  config.DefaultTables(),
		Mailbox: h.mailbox,
		Ledger:  h.ledger,
		Store:   h.store,
		Music:   h.music,
		Sounds:  h.sounds,
		Synth:   fakeSynth{},
		Videos: &fakeLookup{videos: map[string]youtubeapi.Video{
			"https://youtu.be/short000001": {ID: "short000001", Title: "short one", Duration: 3 * time.Minute, Likes: 500, Views: 10000},
			"https://youtu.be/long0000001": {ID: "long0000001", Title: "long one", Duration: 11 * time.Minute, Likes: 500, Views: 10000},
			"https://youtu.be/unpopular01": {ID: "unpopular01", Title: "meh", Duration: time.Minute, Likes: 3, Views: 10},
			"https://youtu.be/hidden00001": {ID: "hidden00001", Title: "hidden stats", Duration: time.Minute, Likes: -1, Views: -1},
			"https://youtu.be/livestream1": {ID: "livestream1", Title: "live now", Duration: 0, Likes: 500, Views: 10000},
			"dQw4w9WgXcQ":                  {ID: "dQw4w9WgXcQ", Title: "bare id", Duration: 3 * time.Minute, Likes: 500, Views: 10000},
		}},
	}
	if mutate != nil {
		mutate(&deps)
	}
	b, err := New(deps)
	require.NoError(t, err)
	h.bot = b
	return h
}

// run invokes a command synchronously the way the dispatcher would and returns the queued replies.
func (h *harness) run(t *testing.T, nick, userID, line string) []string {
	t.Helper()
	tokens := chat.Tokenize(line)
	require.NotEmpty(t, tokens)
	cmd, ok := h.bot.Registry().Lookup(strings.TrimPrefix(tokens[0], "!"))
	require.True(t, ok, "command %s not registered", tokens[0])
	req := chat.Request{
		Args:  append([]string{nick}, tokens[1:]...),
		Event: chat.ChatEvent{Nick: nick, UserID: userID, Message: line},
	}
	cmd.Handler(context.Background(), req)
	return h.replies()
}

func (h *harness) replies() []string {
	var out []string
	for _, line := range h.mailbox.Drain() {
		out = append(out, strings.TrimSuffix(strings.TrimPrefix(line, "PRIVMSG #forsen :"), "\r\n"))
	}
	return out
}

func TestNewRequiresCore(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestCommandTable(t *testing.T) {
	h := newHarness(t, nil)
	names := h.bot.Registry().Names()
	for _, want := range []string{"commands", "discord", "os", "sr", "skip", "sc", "song", "tts", "skiptts", "gamble", "points", "socialcredit", "credit", "newhere"} {
		assert.Contains(t, names, want)
	}
	assert.Equal(t, "commands", names[0])

	tts, _ := h.bot.Registry().Lookup("tts")
	assert.False(t, tts.Authorizes(nil))
	assert.True(t, tts.Authorizes([]string{"vip"}))
	newhere, _ := h.bot.Registry().Lookup("newhere")
	assert.True(t, newhere.Authorizes(nil))
	assert.False(t, newhere.Authorizes([]string{"subscriber"}))

	replies := h.run(t, "alice", "1", "!commands")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0], "@alice commands "))
}

func TestExperimentalAliases(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Config.Experimental = true })
	names := h.bot.Registry().Names()
	assert.Equal(t, []string{"commands", "_commands"}, names[:2])
	_, ok := h.bot.Registry().Lookup("_sr")
	assert.True(t, ok)
}

func TestInfoCommand(t *testing.T) {
	h := newHarness(t, nil)
	replies := h.run(t, "alice", "1", "!editor")
	assert.Equal(t, []string{"@alice Editor : neovim baseg"}, replies)
}

func TestSongRequest(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		wantReply string
		wantQueue int
	}{
		{"accepted", "!sr https://youtu.be/short000001", "@bob FeelsOkayMan song added to the queue", 1},
		{"hidden statistics pass", "!sr https://youtu.be/hidden00001", "@bob FeelsOkayMan song added to the queue", 1},
		{"too long", "!sr https://youtu.be/long0000001", "@bob AwkwardMonkey video too long", 0},
		{"not popular", "!sr https://youtu.be/unpopular01", "@bob pepeLoser not popular enough", 0},
		{"lookup fails", "!sr https://example.com/nope", "@bob pepeLoser invalid link", 0},
		{"missing link", "!sr", "@bob pepeLoser invalid link", 0},
		{"live stream", "!sr https://youtu.be/livestream1", "@bob pepeLoser invalid link", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			replies := h.run(t, "bob", "2", tt.line)
			assert.Equal(t, []string{tt.wantReply}, replies)
			assert.Equal(t, tt.wantQueue, h.music.Len())
		})
	}
}

func TestSongRequestPlaysWatchURL(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, []string{"@bob FeelsOkayMan song added to the queue"}, h.run(t, "bob", "2", "!sr dQw4w9WgXcQ"))

	h.music.Tick(context.Background())
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}, h.player.played)
}

func TestSongLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	assert.Equal(t, []string{"@bob Aware no music is playing"}, h.run(t, "bob", "2", "!skip"))
	assert.Empty(t, h.run(t, "bob", "2", "!song"))

	h.run(t, "bob", "2", "!sr https://youtu.be/short000001")
	h.run(t, "bob", "2", "!sr https://youtu.be/hidden00001")
	assert.Equal(t, []string{"@carol 2 song(s) in the queue"}, h.run(t, "carol", "3", "!sc"))

	h.music.Tick(ctx)
	assert.Equal(t, []string{"Song : short one requested -> @bob"}, h.replies())
	assert.Equal(t, []string{"@carol Song : short one"}, h.run(t, "carol", "3", "!song"))
	assert.Equal(t, []string{"@carol Clueless can't skip other people's songs"}, h.run(t, "carol", "3", "!skip"))

	assert.Empty(t, h.run(t, "bob", "2", "!skip"))
	assert.Equal(t, 1, h.player.stopped)
	_, playing := h.music.NowPlaying()
	assert.False(t, playing)
}

func TestTTS(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t, "sub", "4", "!tts hello there -p2 general kenobi")
	assert.Equal(t, 3, h.sounds.Len())

	h.run(t, "mod", "5", "!skiptts")
	assert.Equal(t, 0, h.sounds.Len())
}

func TestTTSNoAudio(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Synth = fakeSynth{fail: true} })
	h.run(t, "sub", "4", "!tts hello")
	assert.Equal(t, 0, h.sounds.Len())
}

func TestGamble(t *testing.T) {
	h := newHarness(t, nil)
	h.ledger.Observe("9", "gambler", "")

	h.ledger.SetCoin(func() bool { return true })
	assert.Equal(t, []string{"@gambler EZ you won 100 (x1), balance 600"}, h.run(t, "gambler", "9", "!gamble 100"))

	h.ledger.SetCoin(func() bool { return false })
	assert.Equal(t, []string{"@gambler Sadge you lost 600 and went broke, balance reset to 500"}, h.run(t, "gambler", "9", "!gamble all"))

	assert.Equal(t, []string{"@gambler you only have 500 to gamble"}, h.run(t, "gambler", "9", "!gamble 9000"))
	assert.Equal(t, []string{"@gambler " + replyGambleUsage}, h.run(t, "gambler", "9", "!gamble lots"))
	assert.Equal(t, []string{"@gambler " + replyGambleUsage}, h.run(t, "gambler", "9", "!gamble"))
	assert.Equal(t, []string{"@ghost " + replyUnknownUser}, h.run(t, "ghost", "404", "!gamble 10"))
}

func TestPointsAndSocialCredit(t *testing.T) {
	h := newHarness(t, nil)
	h.ledger.Observe("1", "alice", "")
	h.ledger.Observe("2", "Bob", "")
	h.ledger.CreditFollowBonus("1", "alice")

	assert.Equal(t, []string{"@alice 100 points, 500 to gamble"}, h.run(t, "alice", "1", "!points"))
	assert.Equal(t, []string{"@ghost " + replyUnknownUser}, h.run(t, "ghost", "404", "!points"))

	assert.Equal(t, []string{"@mod Bob now has -15 social credit"}, h.run(t, "mod", "3", "!credit bob -15"))
	assert.Equal(t, []string{"@mod " + replyCreditUsage}, h.run(t, "mod", "3", "!credit bob lots"))
	assert.Equal(t, []string{"@mod " + replyUnknownUser}, h.run(t, "mod", "3", "!credit nobody 5"))

	assert.Equal(t, []string{"@alice Bob has -15 social credit"}, h.run(t, "alice", "1", "!socialcredit @bob"))
	assert.Equal(t, []string{"@alice alice has 0 social credit"}, h.run(t, "alice", "1", "!socialcredit"))
}

func TestNewHere(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, []string{"@fresh " + replyNewHere}, h.run(t, "fresh", "77", "!newhere"))
}

func TestModeratorBan(t *testing.T) {
	tests := []struct {
		name        string
		banner      bool
		verdict     chat.Verdict
		wantCalls   []banCall
		wantCredit  int64
		wantPermBan int64
	}{
		{
			name:       "timeout",
			banner:     true,
			verdict:    chat.Verdict{Seconds: 40, Hits: 3},
			wantCalls:  []banCall{{"100", "200", "7", 40}},
			wantCredit: -10,
		},
		{
			name:        "permanent",
			banner:      true,
			verdict:     chat.Verdict{Seconds: 10, Hits: 2, Permanent: true},
			wantCalls:   []banCall{{"100", "200", "7", 0}},
			wantCredit:  -10,
			wantPermBan: 1,
		},
		{
			name:       "zero second words only",
			banner:     true,
			verdict:    chat.Verdict{Hits: 1},
			wantCredit: -10,
		},
		{
			name:       "no helix",
			verdict:    chat.Verdict{Seconds: 40, Hits: 3},
			wantCredit: -10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := economy.NewLedger(economy.Config{BanPenalty: 10, Floor: 500})
			ledger.Observe("7", "spammer", "")
			banner := &fakeBanner{}
			m := &Moderator{Ledger: ledger, BroadcasterID: "100", ModeratorID: "200"}
			if tt.banner {
				m.Banner = banner
			}
			m.Ban(context.Background(), chat.ChatEvent{Nick: "spammer", UserID: "7"}, tt.verdict)

			assert.Equal(t, tt.wantCalls, banner.calls)
			u, ok := ledger.ByID("7")
			require.True(t, ok)
			assert.Equal(t, tt.wantCredit, u.SocialCredit)
			assert.Equal(t, int64(1), ledger.Counter("bans"))
			assert.Equal(t, tt.wantPermBan, ledger.Counter("permanent_bans"))
		})
	}
}

func TestModeratorBanError(t *testing.T) {
	banner := &fakeBanner{err: errors.New("helix status 403: missing scope")}
	m := &Moderator{Banner: banner, BroadcasterID: "100"}
	m.Ban(context.Background(), chat.ChatEvent{Nick: "x", UserID: "7"}, chat.Verdict{Seconds: 5, Hits: 1})
	require.Len(t, banner.calls, 1)
	assert.Equal(t, "100", banner.calls[0].moderator, "moderator defaults to broadcaster")
}

func TestDispatchedBanWord(t *testing.T) {
	banner := &fakeBanner{}
	h := newHarness(t, func(d *Deps) {
		d.Tables.BannedWords = []config.BannedWord{{Word: "foo", Seconds: 10}, {Word: "bar", Seconds: 20}}
		d.Banner = banner
		d.BroadcasterID = "100"
	})
	ev := chat.ParseLine("@badges=;user-id=7 :spammer!spammer@spammer.tmi.twitch.tv PRIVMSG #forsen :foo bar foo")
	h.bot.Dispatcher().Dispatch(context.Background(), ev)

	require.Eventually(t, func() bool {
		banner.mu.Lock()
		defer banner.mu.Unlock()
		return len(banner.calls) == 1
	}, time.Second, 5*time.Millisecond)
	banner.mu.Lock()
	defer banner.mu.Unlock()
	assert.Equal(t, banCall{"100", "100", "7", 40}, banner.calls[0])
}

func TestSpeaker(t *testing.T) {
	h := newHarness(t, nil)
	sp := h.bot.Speaker()
	sp.Speak(context.Background(), "thanks for the follow peepoHappy alice")
	assert.Equal(t, 1, h.sounds.Len())

	sp.Synth = fakeSynth{fail: true}
	sp.Speak(context.Background(), "nothing")
	assert.Equal(t, 1, h.sounds.Len())
}

func TestStatusAndAdminActions(t *testing.T) {
	h := newHarness(t, nil)
	h.ledger.Observe("1", "alice", "")
	h.ledger.Incr("pog", 2)
	h.run(t, "alice", "1", "!sr https://youtu.be/short000001")
	h.music.Tick(context.Background())
	h.run(t, "alice", "1", "!tts hi")

	st := h.bot.Status()
	assert.Equal(t, "forsen", st.Channel)
	assert.False(t, st.Joined)
	assert.Equal(t, "disabled", st.EventSub)
	assert.Equal(t, "short one", st.NowPlaying)
	assert.Equal(t, "alice", st.RequestedBy)
	assert.Equal(t, 1, st.SoundQueue)
	assert.Equal(t, 1, st.Users)
	assert.Equal(t, int64(2), st.Counters["pog"])
	assert.Contains(t, st.Commands, "gamble")

	assert.Equal(t, 1, h.bot.SkipSound())
	assert.True(t, h.bot.SkipSong())
	assert.False(t, h.bot.SkipSong())

	require.NoError(t, h.bot.Save(context.Background()))
	require.Len(t, h.store.saved, 1)
	assert.Len(t, h.store.saved[0].Users, 1)
}

func TestSaveWithoutStore(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Store = nil })
	assert.Error(t, h.bot.Save(context.Background()))
}
