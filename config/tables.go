package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Permanent marks a banned word whose hit results in a permanent ban.
const Permanent = -1

// BanSeconds is a per-occurrence ban contribution. It accepts an integer or the literal "permanent".
type BanSeconds int

func (b *BanSeconds) UnmarshalYAML(n *yaml.Node) error {
	if strings.EqualFold(strings.TrimSpace(n.Value), "permanent") {
		*b = Permanent
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: ban seconds %q: %w", n.Line, n.Value, err)
	}
	if v < 0 {
		v = Permanent
	}
	*b = BanSeconds(v)
	return nil
}

type BannedWord struct {
	Word    string     `yaml:"word"`
	Seconds BanSeconds `yaml:"seconds"`
}

// Tables holds the static lookup tables loaded once at startup and read-only afterwards.
type Tables struct {
	BannedWords []BannedWord      `yaml:"banned_words"`
	Info        map[string]string `yaml:"info"`
	Clips       map[string]string `yaml:"clips"`
	Voices      []string          `yaml:"voices"`
}

// DefaultTables mirrors the reply table the bot shipped with.
func DefaultTables() *Tables {
	return &Tables{
		Info: map[string]string{
			"stack":     "stack deez nuts in your mouth GOTTEM",
			"drop":      "drop deez nuts in your mouth GOTTEM",
			"discord":   "join my discord https://discord.gg/9xVKDekJtg",
			"game":      "Steam : working on a roguelike called Morphus! https://store.steampowered.com/app/2371310/Morphus/",
			"editor":    "Editor : neovim baseg",
			"engine":    "Engine : c++ and SDL2",
			"font":      "Font : https://github.com/nathco/Office-Code-Pro",
			"keyboard":  "Keyboard : keychron k8 + kailh white switches",
			"vimconfig": "Vim Config : https://github.com/mrnoob17/my-nvim-init/blob/main/init.lua",
			"friends":   "Friends : twitch.tv/azenris twitch.tv/tk_dev twitch.tv/tkap1 twitch.tv/athano twitch.tv/cakez77 twitch.tv/tapir2342",
			"os":        "OS : not linux baseg",
			"bot":       "Twitch Bot : https://github.com/mrnoob17/twitch_bot",
		},
		Clips:  map[string]string{},
		Voices: []string{"Brian", "Amy", "Emma", "Joey", "Justin", "Matthew"},
	}
}

// LoadTables reads the YAML tables file at path. A missing file yields DefaultTables;
// sections absent from the file keep their defaults.
func LoadTables(path string) (*Tables, error) {
	t := DefaultTables()
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	var fromFile Tables
	if err := yaml.Unmarshal(b, &fromFile); err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", path, err)
	}
	if fromFile.BannedWords != nil {
		t.BannedWords = fromFile.BannedWords
	}
	if fromFile.Info != nil {
		t.Info = fromFile.Info
	}
	if fromFile.Clips != nil {
		t.Clips = fromFile.Clips
	}
	if fromFile.Voices != nil {
		t.Voices = fromFile.Voices
	}
	for i, w := range t.BannedWords {
		w.Word = strings.ToLower(strings.TrimSpace(w.Word))
		if w.Word == "" {
			return nil, fmt.Errorf("banned_words[%d]: empty word", i)
		}
		t.BannedWords[i] = w
	}
	return t, nil
}

// InfoNames returns the static reply command names in a stable order.
func (t *Tables) InfoNames() []string {
	names := make([]string, 0, len(t.Info))
	for k := range t.Info {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
