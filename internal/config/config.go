// Package config provides configuration management for agent-dashboard.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	// DefaultPort is the HTTP port of the read surface.
	DefaultPort = 4242
	// DefaultHost is the interface the read surface binds to.
	DefaultHost = "127.0.0.1"

	DefaultDebounceMS = 300
	DefaultTailLines  = 60
	DefaultHeadLines  = 20

	dataDirName      = ".agent-dashboard"
	settingsFileName = "settings.json"
	dismissedName    = "dismissed.json"
)

// Settings keys. They double as environment variable names.
const (
	KeyPort          = "AGENT_DASHBOARD_PORT"
	KeyHost          = "AGENT_DASHBOARD_HOST"
	KeyStores        = "AGENT_DASHBOARD_STORES"
	KeyOrgPath       = "AGENT_DASHBOARD_ORG_PATH"
	KeyIdentityPath  = "AGENT_DASHBOARD_IDENTITY_PATH"
	KeyDismissedPath = "AGENT_DASHBOARD_DISMISSED_PATH"
	KeyDebounceMS    = "AGENT_DASHBOARD_DEBOUNCE_MS"
	KeyTailLines     = "AGENT_DASHBOARD_TAIL_LINES"
	KeyHeadLines     = "AGENT_DASHBOARD_HEAD_LINES"
)

// Config holds the resolved settings.
type Config struct {
	Host          string   `json:"AGENT_DASHBOARD_HOST"`
	Stores        []string `json:"AGENT_DASHBOARD_STORES"`
	OrgPath       string   `json:"AGENT_DASHBOARD_ORG_PATH"`
	IdentityPath  string   `json:"AGENT_DASHBOARD_IDENTITY_PATH"`
	DismissedPath string   `json:"AGENT_DASHBOARD_DISMISSED_PATH"`
	Port          int      `json:"AGENT_DASHBOARD_PORT"`
	DebounceMS    int      `json:"AGENT_DASHBOARD_DEBOUNCE_MS"`
	TailLines     int      `json:"AGENT_DASHBOARD_TAIL_LINES"`
	HeadLines     int      `json:"AGENT_DASHBOARD_HEAD_LINES"`
}

// Debounce returns the watcher quiet window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

var (
	global     *Config
	globalOnce sync.Once
	// settingsOverride replaces SettingsPath when set through SetSettingsPath.
	settingsOverride string
)

// homeDir returns the user's home directory, preferring $HOME.
func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// DataDir returns the directory holding dashboard-owned state.
func DataDir() string {
	return filepath.Join(homeDir(), dataDirName)
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	if settingsOverride != "" {
		return settingsOverride
	}
	return filepath.Join(DataDir(), settingsFileName)
}

// SetSettingsPath points Load at an alternate settings file. An empty path
// restores the default.
func SetSettingsPath(path string) {
	settingsOverride = path
}

// DefaultStores returns the default store pattern.
func DefaultStores() []string {
	return []string{filepath.Join(homeDir(), ".openclaw", "agents", "*", "sessions")}
}

// Default returns the default configuration.
func Default() *Config {
	home := homeDir()
	return &Config{
		Port:          DefaultPort,
		Host:          DefaultHost,
		Stores:        DefaultStores(),
		OrgPath:       filepath.Join(home, ".openclaw", "org.yaml"),
		IdentityPath:  filepath.Join(home, ".openclaw", "workspace", "IDENTITY.md"),
		DismissedPath: filepath.Join(DataDir(), dismissedName),
		DebounceMS:    DefaultDebounceMS,
		TailLines:     DefaultTailLines,
		HeadLines:     DefaultHeadLines,
	}
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0750)
}

// EnsureSettings writes a settings file with the defaults if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	data, err := json.MarshalIndent(Default(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// EnsureAll creates the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// newViper sets up defaults and environment lookup. Environment beats the
// settings file, which beats the defaults.
func newViper(def *Config) *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPort, def.Port)
	v.SetDefault(KeyHost, def.Host)
	v.SetDefault(KeyStores, def.Stores)
	v.SetDefault(KeyOrgPath, def.OrgPath)
	v.SetDefault(KeyIdentityPath, def.IdentityPath)
	v.SetDefault(KeyDismissedPath, def.DismissedPath)
	v.SetDefault(KeyDebounceMS, def.DebounceMS)
	v.SetDefault(KeyTailLines, def.TailLines)
	v.SetDefault(KeyHeadLines, def.HeadLines)
	v.AutomaticEnv()
	return v
}

// Load reads the settings file and environment. A missing settings file is
// not an error; an unreadable or invalid one is logged and ignored.
func Load() (*Config, error) {
	def := Default()
	v := newViper(def)

	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		file := viper.New()
		file.SetConfigFile(path)
		file.SetConfigType("json")
		if err := file.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Invalid settings file, using defaults")
		} else if err := v.MergeConfigMap(file.AllSettings()); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to merge settings")
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("Cannot stat settings file")
	}

	cfg := &Config{
		Port:          positiveOr(v.GetInt(KeyPort), def.Port),
		Host:          stringOr(v.GetString(KeyHost), def.Host),
		Stores:        expandAll(stringList(v.Get(KeyStores))),
		OrgPath:       expandHome(stringOr(v.GetString(KeyOrgPath), def.OrgPath)),
		IdentityPath:  expandHome(stringOr(v.GetString(KeyIdentityPath), def.IdentityPath)),
		DismissedPath: expandHome(stringOr(v.GetString(KeyDismissedPath), def.DismissedPath)),
		DebounceMS:    positiveOr(v.GetInt(KeyDebounceMS), def.DebounceMS),
		TailLines:     positiveOr(v.GetInt(KeyTailLines), def.TailLines),
		HeadLines:     positiveOr(v.GetInt(KeyHeadLines), def.HeadLines),
	}
	if len(cfg.Stores) == 0 {
		cfg.Stores = def.Stores
	}
	return cfg, nil
}

// Get returns the configuration, loading it on first use.
func Get() *Config {
	globalOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		global = cfg
	})
	return global
}

// GetPort returns the HTTP port, honouring AGENT_DASHBOARD_PORT even after
// Get has cached the configuration.
func GetPort() int {
	if s := os.Getenv(KeyPort); s != "" {
		if port, err := strconv.Atoi(s); err == nil && port > 0 {
			return port
		}
	}
	return Get().Port
}

// GetHost returns the HTTP host, honouring AGENT_DASHBOARD_HOST even after
// the configuration has been cached.
func GetHost() string {
	if s := strings.TrimSpace(os.Getenv(KeyHost)); s != "" {
		return s
	}
	return Get().Host
}

// stringList accepts a list, a JSON array string or a comma-separated string.
func stringList(raw any) []string {
	switch val := raw.(type) {
	case nil:
		return nil
	case []string:
		return splitTrim(strings.Join(val, ","))
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "[") {
			var list []string
			if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
				return splitTrim(strings.Join(list, ","))
			}
		}
		return splitTrim(val)
	default:
		return nil
	}
}

// splitTrim splits a comma-separated string and trims whitespace from each element.
func splitTrim(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func expandAll(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, expandHome(p))
	}
	return out
}

// expandHome replaces a leading "~" with the home directory.
func expandHome(path string) string {
	if path == "~" {
		return homeDir()
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return def
}
