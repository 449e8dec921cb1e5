// Package config resolves console settings from flags, STATION_*
// environment variables and an optional YAML file, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FallbackBackendURL is used when neither settings nor the persisted slot
// name a backend.
const FallbackBackendURL = "https://station-backend-xdfe.onrender.com"

const (
	defaultPollInterval   = 3 * time.Second
	defaultRequestTimeout = 20 * time.Second
	defaultMessageLimit   = 80
	defaultRoomID         = "9001"
	defaultRoomTitle      = "Room 9001"
	defaultWorker         = "dynamo"
)

type Config struct {
	BackendURL       string        `mapstructure:"backend_url"`
	DataDir          string        `mapstructure:"data_dir"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MessageLimit     int           `mapstructure:"message_limit"`
	DefaultRoom      string        `mapstructure:"default_room"`
	DefaultRoomTitle string        `mapstructure:"default_room_title"`
	DefaultWorker    string        `mapstructure:"default_worker"`
	AltScreen        bool          `mapstructure:"alt_screen"`
	Log              LogConfig     `mapstructure:"log"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"backend-url":     "backend_url",
	"data-dir":        "data_dir",
	"poll-interval":   "poll_interval",
	"request-timeout": "request_timeout",
	"message-limit":   "message_limit",
	"room":            "default_room",
	"room-title":      "default_room_title",
	"worker":          "default_worker",
	"alt-screen":      "alt_screen",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
}

// RegisterFlags adds the console's persistent flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "YAML config file")
	fs.String("backend-url", "", "Station backend base URL (default: saved URL, then "+FallbackBackendURL+")")
	fs.String("data-dir", "", "Directory for the local key store and logs (default ~/.station)")
	fs.Duration("poll-interval", defaultPollInterval, "Status poll interval")
	fs.Duration("request-timeout", defaultRequestTimeout, "Per-request timeout")
	fs.Int("message-limit", defaultMessageLimit, "Messages loaded per room")
	fs.String("room", defaultRoomID, "Room opened at start")
	fs.String("room-title", defaultRoomTitle, "Title used when ensuring the start room")
	fs.String("worker", defaultWorker, "Default worker for ops actions (dynamo|loop)")
	fs.Bool("alt-screen", true, "Use alternate screen buffer")
	fs.String("log-level", "info", "Log level (debug|info|warn|error)")
	fs.String("log-format", "text", "Log format (text|json)")
	fs.String("log-file", "", "Log file (default <data-dir>/console.log)")
}

// Load resolves the configuration. fs may be nil; flags that were not
// registered are skipped.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetDefault("poll_interval", defaultPollInterval)
	v.SetDefault("request_timeout", defaultRequestTimeout)
	v.SetDefault("message_limit", defaultMessageLimit)
	v.SetDefault("default_room", defaultRoomID)
	v.SetDefault("default_room_title", defaultRoomTitle)
	v.SetDefault("default_worker", defaultWorker)
	v.SetDefault("alt_screen", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("STATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only covers keys viper already knows about.
	for _, key := range []string{"backend_url", "data_dir", "log.file"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if flag := fs.Lookup("config"); flag != nil && flag.Value.String() != "" {
			v.SetConfigFile(flag.Value.String())
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", flag.Value.String(), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.BackendURL = strings.TrimSpace(c.BackendURL)
	if strings.TrimSpace(c.DataDir) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		c.DataDir = filepath.Join(home, ".station")
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MessageLimit <= 0 {
		c.MessageLimit = defaultMessageLimit
	}
	c.DefaultRoom = strings.TrimSpace(c.DefaultRoom)
	if c.DefaultRoom == "" {
		c.DefaultRoom = defaultRoomID
	}
	if strings.TrimSpace(c.DefaultRoomTitle) == "" {
		c.DefaultRoomTitle = "Room " + c.DefaultRoom
	}
	c.DefaultWorker = strings.ToLower(strings.TrimSpace(c.DefaultWorker))
	if c.DefaultWorker != "dynamo" && c.DefaultWorker != "loop" {
		return fmt.Errorf("unknown worker %q (want dynamo or loop)", c.DefaultWorker)
	}
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if strings.TrimSpace(c.Log.File) == "" {
		c.Log.File = filepath.Join(c.DataDir, "console.log")
	}
	return nil
}

// StorePath is the SQLite slot store location.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "station.db")
}

// ResolveBackendURL picks the explicit setting, then the persisted slot
// value, then FallbackBackendURL.
func (c *Config) ResolveBackendURL(persisted string) string {
	if c.BackendURL != "" {
		return c.BackendURL
	}
	if p := strings.TrimSpace(persisted); p != "" {
		return p
	}
	return FallbackBackendURL
}
