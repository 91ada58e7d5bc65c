package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultTrackerCapacity is how many posts are remembered for reaction attribution.
	DefaultTrackerCapacity = 100

	// DefaultFlushInterval is how often weights are written to the snapshot.
	DefaultFlushInterval = 2 * time.Minute

	// DefaultPollTimeout is the Telegram long-poll timeout in seconds.
	DefaultPollTimeout = 30
)

// Persistence backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config holds all configuration for memereact.
type Config struct {
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Memeifiers  []Memeifier       `mapstructure:"memeifiers"`
	Reactions   []ReactionScore   `mapstructure:"reactions"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Commands    CommandsConfig    `mapstructure:"commands"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	API         APIConfig         `mapstructure:"api"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CatalogConfig locates the meme folder tree.
type CatalogConfig struct {
	Root      string        `mapstructure:"root"`
	AliasFile string        `mapstructure:"alias_file"`
	MaxDepth  int           `mapstructure:"max_depth"`
	Watch     bool          `mapstructure:"watch"`
	Debounce  time.Duration `mapstructure:"debounce"`
}

// Memeifier allows a chat user to add aliases to the memes in one folder.
type Memeifier struct {
	ID     string `mapstructure:"id"`
	Folder string `mapstructure:"folder"`
}

// ReactionScore is the weight change one emote applies to a meme. Emote names
// are case sensitive, which is why reactions are a list and not a map.
type ReactionScore struct {
	Emote string `mapstructure:"emote"`
	Score int64  `mapstructure:"score"`
}

// PersistenceConfig selects where learned weights are kept.
type PersistenceConfig struct {
	Backend  string        `mapstructure:"backend"`
	Path     string        `mapstructure:"path"`
	Interval time.Duration `mapstructure:"interval"`
}

// PolicyConfig tunes the posting probability curve.
type PolicyConfig struct {
	DefaultChance float64 `mapstructure:"default_chance"`
	MinChance     float64 `mapstructure:"min_chance"`
	Growth        float64 `mapstructure:"growth"`
}

// TrackerConfig sizes the feedback attribution cache.
type TrackerConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// CommandsConfig holds chat command settings.
type CommandsConfig struct {
	Markers []string `mapstructure:"markers"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	PollTimeout int    `mapstructure:"poll_timeout"`
	// LogChatID receives the startup notice when set.
	LogChatID string `mapstructure:"log_chat_id"`
}

// String returns a safe representation of TelegramConfig with the token masked.
func (c TelegramConfig) String() string {
	return fmt.Sprintf("TelegramConfig{Enabled:%t, Token:%s, PollTimeout:%d, LogChatID:%s}",
		c.Enabled, maskToken(c.Token), c.PollTimeout, c.LogChatID)
}

// maskToken shows first 4 + last 4 chars, replacing the middle with asterisks.
func maskToken(key string) string {
	const visible = 4
	if len(key) <= visible*2 {
		return "***"
	}
	return key[:visible] + "****" + key[len(key)-visible:]
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
	// Channel is the channel API-triggered posts go to when a request names none.
	Channel string `mapstructure:"channel"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the default locations and environment variables.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default locations when
// path is empty, overlaid with environment variables.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("catalog.root", "memes")
	v.SetDefault("catalog.alias_file", "react.txt")
	v.SetDefault("catalog.max_depth", 2)
	v.SetDefault("catalog.watch", true)
	v.SetDefault("catalog.debounce", 2*time.Second)

	v.SetDefault("persistence.backend", BackendFile)
	v.SetDefault("persistence.path", filepath.Join(homeDir(), ".memereact", "weights.yaml"))
	v.SetDefault("persistence.interval", DefaultFlushInterval)

	v.SetDefault("policy.default_chance", 0.9)
	v.SetDefault("policy.min_chance", 0.01)
	v.SetDefault("policy.growth", 0.1)

	v.SetDefault("tracker.capacity", DefaultTrackerCapacity)

	v.SetDefault("commands.markers", []string{"sudo ", "!", "`", `\`})

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.poll_timeout", DefaultPollTimeout)

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")
	v.SetDefault("api.channel", "api")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(homeDir(), ".memereact"))
		v.AddConfigPath(".")
	}

	// Environment variables
	v.SetEnvPrefix("MEMEREACT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("telegram.token", "TELEGRAM_BOT_TOKEN", "MEMEREACT_TELEGRAM_TOKEN")
	_ = v.BindEnv("api.auth_token", "MEMEREACT_API_AUTH_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK; use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Catalog.Root == "" {
		return fmt.Errorf("catalog.root must not be empty")
	}
	if c.Catalog.MaxDepth < 1 {
		return fmt.Errorf("catalog.max_depth must be at least 1")
	}
	if c.Catalog.Debounce < 0 {
		return fmt.Errorf("catalog.debounce must be >= 0")
	}

	seenIDs := make(map[string]bool, len(c.Memeifiers))
	for i, m := range c.Memeifiers {
		if m.ID == "" || m.Folder == "" {
			return fmt.Errorf("memeifiers[%d]: id and folder must not be empty", i)
		}
		if strings.ContainsAny(m.Folder, `/\`) || strings.HasPrefix(m.Folder, ".") {
			return fmt.Errorf("memeifiers[%d]: folder %q must be a plain subfolder name", i, m.Folder)
		}
		if seenIDs[m.ID] {
			return fmt.Errorf("memeifiers[%d]: duplicate id %q", i, m.ID)
		}
		seenIDs[m.ID] = true
	}

	seenEmotes := make(map[string]bool, len(c.Reactions))
	for i, r := range c.Reactions {
		if r.Emote == "" {
			return fmt.Errorf("reactions[%d]: emote must not be empty", i)
		}
		if seenEmotes[r.Emote] {
			return fmt.Errorf("reactions[%d]: duplicate emote %q", i, r.Emote)
		}
		seenEmotes[r.Emote] = true
	}

	switch c.Persistence.Backend {
	case BackendFile, BackendSQLite:
		if c.Persistence.Path == "" {
			return fmt.Errorf("persistence.path must not be empty for backend %q", c.Persistence.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("persistence.backend must be one of file, sqlite, memory (got %q)", c.Persistence.Backend)
	}
	if c.Persistence.Interval <= 0 {
		return fmt.Errorf("persistence.interval must be greater than 0")
	}

	if c.Policy.DefaultChance <= 0 || c.Policy.DefaultChance > 1 {
		return fmt.Errorf("policy.default_chance must be in (0, 1]")
	}
	if c.Policy.MinChance <= 0 || c.Policy.MinChance > c.Policy.DefaultChance {
		return fmt.Errorf("policy.min_chance must be in (0, policy.default_chance]")
	}
	if c.Policy.Growth < 0 {
		return fmt.Errorf("policy.growth must be >= 0")
	}

	if c.Tracker.Capacity <= 0 {
		return fmt.Errorf("tracker.capacity must be greater than 0")
	}

	for i, m := range c.Commands.Markers {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("commands.markers[%d] must not be blank", i)
		}
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token must be set when telegram.enabled is true")
	}
	if c.Telegram.PollTimeout < 0 {
		return fmt.Errorf("telegram.poll_timeout must be >= 0")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}
	return nil
}

// ReactionScores returns the emote score table.
func (c *Config) ReactionScores() map[string]int64 {
	out := make(map[string]int64, len(c.Reactions))
	for _, r := range c.Reactions {
		out[r.Emote] = r.Score
	}
	return out
}

// MemeifierFolders maps memeifier IDs to their folders.
func (c *Config) MemeifierFolders() map[string]string {
	out := make(map[string]string, len(c.Memeifiers))
	for _, m := range c.Memeifiers {
		out[m.ID] = m.Folder
	}
	return out
}

// Contributors returns the distinct memeifier folders in configuration order.
// Each must exist under the catalog root.
func (c *Config) Contributors() []string {
	seen := make(map[string]bool, len(c.Memeifiers))
	var out []string
	for _, m := range c.Memeifiers {
		if !seen[m.Folder] {
			seen[m.Folder] = true
			out = append(out, m.Folder)
		}
	}
	return out
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
