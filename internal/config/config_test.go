package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validCfg returns a fully-valid Config for mutation testing.
func validCfg() *Config {
	return &Config{
		Catalog: CatalogConfig{Root: "/memes", AliasFile: "react.txt", MaxDepth: 2, Debounce: time.Second},
		Memeifiers: []Memeifier{
			{ID: "42", Folder: "alice"},
			{ID: "43", Folder: "bob"},
		},
		Reactions: []ReactionScore{
			{Emote: "👍", Score: 1},
			{Emote: "👎", Score: -2},
		},
		Persistence: PersistenceConfig{Backend: BackendFile, Path: "/tmp/w.yaml", Interval: time.Minute},
		Policy:      PolicyConfig{DefaultChance: 0.9, MinChance: 0.01, Growth: 0.1},
		Tracker:     TrackerConfig{Capacity: 100},
		Commands:    CommandsConfig{Markers: []string{"!"}},
		Telegram:    TelegramConfig{PollTimeout: 30},
		API:         APIConfig{ListenAddr: ":8080"},
		Logging:     LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	require.NoError(t, validCfg().Validate())
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"empty root", func(c *Config) { c.Catalog.Root = "" }, "catalog.root"},
		{"zero depth", func(c *Config) { c.Catalog.MaxDepth = 0 }, "catalog.max_depth"},
		{"negative debounce", func(c *Config) { c.Catalog.Debounce = -time.Second }, "catalog.debounce"},
		{"memeifier without folder", func(c *Config) { c.Memeifiers[0].Folder = "" }, "memeifiers[0]"},
		{"memeifier nested folder", func(c *Config) { c.Memeifiers[1].Folder = "a/b" }, "plain subfolder"},
		{"memeifier hidden folder", func(c *Config) { c.Memeifiers[1].Folder = ".git" }, "plain subfolder"},
		{"duplicate memeifier", func(c *Config) { c.Memeifiers[1].ID = "42" }, "duplicate id"},
		{"empty emote", func(c *Config) { c.Reactions[0].Emote = "" }, "reactions[0]"},
		{"duplicate emote", func(c *Config) { c.Reactions[1].Emote = "👍" }, "duplicate emote"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "redis" }, "persistence.backend"},
		{"file without path", func(c *Config) { c.Persistence.Path = "" }, "persistence.path"},
		{"zero interval", func(c *Config) { c.Persistence.Interval = 0 }, "persistence.interval"},
		{"zero default chance", func(c *Config) { c.Policy.DefaultChance = 0 }, "policy.default_chance"},
		{"default chance above one", func(c *Config) { c.Policy.DefaultChance = 1.2 }, "policy.default_chance"},
		{"min chance above default", func(c *Config) { c.Policy.MinChance = 0.95 }, "policy.min_chance"},
		{"min chance above one", func(c *Config) { c.Policy.MinChance = 1.5 }, "policy.min_chance"},
		{"negative growth", func(c *Config) { c.Policy.Growth = -0.1 }, "policy.growth"},
		{"zero capacity", func(c *Config) { c.Tracker.Capacity = 0 }, "tracker.capacity"},
		{"blank marker", func(c *Config) { c.Commands.Markers = []string{" "} }, "commands.markers[0]"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true }, "telegram.token"},
		{"negative poll timeout", func(c *Config) { c.Telegram.PollTimeout = -1 }, "telegram.poll_timeout"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validCfg()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidate_MemoryBackendNeedsNoPath(t *testing.T) {
	cfg := validCfg()
	cfg.Persistence.Backend = BackendMemory
	cfg.Persistence.Path = ""
	assert.NoError(t, cfg.Validate())
}

func TestHelpers(t *testing.T) {
	cfg := validCfg()
	cfg.Memeifiers = append(cfg.Memeifiers, Memeifier{ID: "44", Folder: "alice"})

	assert.Equal(t, map[string]int64{"👍": 1, "👎": -2}, cfg.ReactionScores())
	assert.Equal(t, map[string]string{"42": "alice", "43": "bob", "44": "alice"}, cfg.MemeifierFolders())
	assert.Equal(t, []string{"alice", "bob"}, cfg.Contributors())
}

func TestTelegramConfig_StringMasksToken(t *testing.T) {
	c := TelegramConfig{Token: "123456:ABCDEFGHIJKLMNOP"}
	s := c.String()
	assert.NotContains(t, s, "ABCDEFGHIJKLMNOP")
	assert.Contains(t, s, "1234****MNOP")
	assert.Contains(t, TelegramConfig{Token: "short"}.String(), "***")
}

func TestLoadFile_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memes", cfg.Catalog.Root)
	assert.Equal(t, 2, cfg.Catalog.MaxDepth)
	assert.Equal(t, BackendFile, cfg.Persistence.Backend)
	assert.Equal(t, DefaultFlushInterval, cfg.Persistence.Interval)
	assert.Equal(t, 0.9, cfg.Policy.DefaultChance)
	assert.Equal(t, DefaultTrackerCapacity, cfg.Tracker.Capacity)
	assert.Equal(t, []string{"sudo ", "!", "`", `\`}, cfg.Commands.Markers)
	assert.False(t, cfg.Telegram.Enabled)
}

func TestLoadFile_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog:
  root: /srv/memes
  debounce: 500ms
memeifiers:
  - id: 1001
    folder: alice
reactions:
  - emote: "PogChamp"
    score: 1
  - emote: "pogchamp"
    score: -1
persistence:
  backend: sqlite
  path: /var/lib/memereact/weights.db
  interval: 30s
tracker:
  capacity: 50
`), 0o644))

	t.Setenv("MEMEREACT_LOGGING_LEVEL", "debug")
	t.Setenv("TELEGRAM_BOT_TOKEN", "secret-token-value")
	t.Setenv("MEMEREACT_API_AUTH_TOKEN", "api-secret")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/memes", cfg.Catalog.Root)
	assert.Equal(t, 500*time.Millisecond, cfg.Catalog.Debounce)
	assert.Equal(t, []Memeifier{{ID: "1001", Folder: "alice"}}, cfg.Memeifiers)
	assert.Equal(t, map[string]int64{"PogChamp": 1, "pogchamp": -1}, cfg.ReactionScores(), "emote names keep their case")
	assert.Equal(t, BackendSQLite, cfg.Persistence.Backend)
	assert.Equal(t, 30*time.Second, cfg.Persistence.Interval)
	assert.Equal(t, 50, cfg.Tracker.Capacity)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "secret-token-value", cfg.Telegram.Token)
	assert.Equal(t, "api-secret", cfg.API.AuthToken)
}

func TestLoadFile_MissingExplicitFileFails(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFile_InvalidValuesFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tracker:\n  capacity: -1\n"), 0o644))
	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker.capacity")
}
