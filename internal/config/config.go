// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	configDirName  = "statsbot"
	configFileName = "config.toml"
	databaseName   = "messages.db"

	defaultHTTPAddr = "127.0.0.1:8080"
)

var (
	// ErrNoHome means the user config directory could not be resolved.
	ErrNoHome = errors.New("unable to locate user config directory")
	// ErrExists is returned by Init when a config file is already present.
	ErrExists = errors.New("config file already exists")

	ErrInvalidSpec      = errors.New("invalid tracked channel spec")
	ErrInvalidGuildID   = errors.New("invalid guild id")
	ErrInvalidChannelID = errors.New("invalid channel id")
)

// Config represents the main configuration for statsbot.
type Config struct {
	// Token is passed to the gateway as-is; prefix it with "Bot " when
	// logging in with a bot account.
	Token    string `toml:"token"`
	Database string `toml:"database"`
	HTTPAddr string `toml:"http_addr"`

	// TrackedChannels lists channels logged regardless of author, as
	// "guildId|channelId" specifiers or a bare "channelId" for direct
	// message channels.
	TrackedChannels []string `toml:"tracked_channels"`
}

// TrackedChannel identifies one explicitly tracked channel. GuildID is empty
// for direct message channels.
type TrackedChannel struct {
	GuildID   string
	ChannelID string
}

// ParseChannelSpec parses a "guildId|channelId" or bare "channelId"
// specifier. Each part must be a decimal 64-bit integer.
func ParseChannelSpec(spec string) (TrackedChannel, error) {
	parts := strings.Split(spec, "|")
	switch len(parts) {
	case 1:
		if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
			return TrackedChannel{}, fmt.Errorf("%w: %q", ErrInvalidChannelID, parts[0])
		}
		return TrackedChannel{ChannelID: parts[0]}, nil
	case 2:
		if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
			return TrackedChannel{}, fmt.Errorf("%w: %q", ErrInvalidGuildID, parts[0])
		}
		if _, err := strconv.ParseUint(parts[1], 10, 64); err != nil {
			return TrackedChannel{}, fmt.Errorf("%w: %q", ErrInvalidChannelID, parts[1])
		}
		return TrackedChannel{GuildID: parts[0], ChannelID: parts[1]}, nil
	default:
		return TrackedChannel{}, fmt.Errorf("%w: %q", ErrInvalidSpec, spec)
	}
}

// Tracked parses all configured specifiers into an ordered slice.
func (c *Config) Tracked() ([]TrackedChannel, error) {
	out := make([]TrackedChannel, 0, len(c.TrackedChannels))
	for _, spec := range c.TrackedChannels {
		tc, err := ParseChannelSpec(spec)
		if err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, nil
}

// TrackedSet parses all configured specifiers into the allowlist set the
// identity filter consumes.
func (c *Config) TrackedSet() (map[TrackedChannel]struct{}, error) {
	tracked, err := c.Tracked()
	if err != nil {
		return nil, err
	}
	set := make(map[TrackedChannel]struct{}, len(tracked))
	for _, tc := range tracked {
		set[tc] = struct{}{}
	}
	return set, nil
}

// NewConfig creates a Config populated with default paths under dir.
func NewConfig(dir string) *Config {
	return &Config{
		Database: filepath.Join(dir, databaseName),
		HTTPAddr: defaultHTTPAddr,
	}
}

// DefaultDir resolves the statsbot config directory.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoHome, err)
	}
	return filepath.Join(base, configDirName), nil
}

// DefaultPath resolves the default config file path.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes a starter config file at path, refusing to overwrite one that
// already exists.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	return m.Write(f, cfg)
}
