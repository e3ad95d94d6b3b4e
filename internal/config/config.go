package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/airwatch-iot/gasmon/internal/poll"
)

// Config holds the client settings.
type Config struct {
	APIURL         string
	WSURL          string
	RequestTimeout time.Duration

	DevicesPoll       time.Duration
	DetailPoll        time.Duration
	NotificationsPoll time.Duration

	LogFile   string
	LogLevel  string
	LogFormat string
	TokenFile string
	CacheDir  string
}

const (
	defaultConfigPath     = "~/.config/gasmon/config.toml"
	defaultAPIURL         = "http://127.0.0.1:3000"
	defaultRequestTimeout = 10 * time.Second
	defaultLogFile        = "~/.local/state/gasmon/gasmon.log"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultTokenFile      = "~/.config/gasmon/tokens.toml"
	defaultCacheDir       = "~/.cache/gasmon"

	// livePath is appended to the API host when ws_url is not set.
	livePath = "/ws"

	envPrefix = "gasmon"
)

// fileConfig mirrors config.toml. Durations are Go duration strings.
type fileConfig struct {
	APIURL            string `toml:"api_url"`
	WSURL             string `toml:"ws_url"`
	RequestTimeout    string `toml:"request_timeout"`
	DevicesPoll       string `toml:"devices_poll"`
	DetailPoll        string `toml:"detail_poll"`
	NotificationsPoll string `toml:"notifications_poll"`
	LogFile           string `toml:"log_file"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
	TokenFile         string `toml:"token_file"`
	CacheDir          string `toml:"cache_dir"`
}

// envConfig holds GASMON_* overrides; empty values leave the file setting.
type envConfig struct {
	APIURL         string        `envconfig:"API_URL"`
	WSURL          string        `envconfig:"WS_URL"`
	RequestTimeout time.Duration `split_words:"true"`
	LogFile        string        `split_words:"true"`
	LogLevel       string        `split_words:"true"`
	LogFormat      string        `split_words:"true"`
	TokenFile      string        `split_words:"true"`
	CacheDir       string        `split_words:"true"`
}

// Default returns the built-in configuration with paths expanded.
func Default() Config {
	return Config{
		APIURL:            defaultAPIURL,
		RequestTimeout:    defaultRequestTimeout,
		DevicesPoll:       poll.DevicesInterval,
		DetailPoll:        poll.DeviceDetailInterval,
		NotificationsPoll: poll.NotificationsInterval,
		LogFile:           mustExpand(defaultLogFile),
		LogLevel:          defaultLogLevel,
		LogFormat:         defaultLogFormat,
		TokenFile:         mustExpand(defaultTokenFile),
		CacheDir:          mustExpand(defaultCacheDir),
	}
}

// Load reads the config file, falling back to defaults when it is missing,
// then applies GASMON_* environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	raw, err := readFile(resolved)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.applyFile(raw); err != nil {
		return Config{}, err
	}

	var env envConfig
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.applyEnv(env)

	if cfg.WSURL == "" {
		cfg.WSURL, err = DeriveWSURL(cfg.APIURL)
		if err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func readFile(path string) (fileConfig, error) {
	var raw fileConfig
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return raw, nil
		}
		return raw, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return raw, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return raw, fmt.Errorf("parse config: %w", err)
	}
	return raw, nil
}

func (c *Config) applyFile(raw fileConfig) error {
	setString(&c.APIURL, raw.APIURL)
	setString(&c.WSURL, raw.WSURL)
	setString(&c.LogLevel, raw.LogLevel)
	setString(&c.LogFormat, raw.LogFormat)
	setPath(&c.LogFile, raw.LogFile)
	setPath(&c.TokenFile, raw.TokenFile)
	setPath(&c.CacheDir, raw.CacheDir)

	durations := []struct {
		key   string
		value string
		dst   *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &c.RequestTimeout},
		{"devices_poll", raw.DevicesPoll, &c.DevicesPoll},
		{"detail_poll", raw.DetailPoll, &c.DetailPoll},
		{"notifications_poll", raw.NotificationsPoll, &c.NotificationsPoll},
	}
	for _, d := range durations {
		value := strings.TrimSpace(d.value)
		if value == "" {
			continue
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse config: %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("parse config: %s must be positive", d.key)
		}
		*d.dst = parsed
	}
	return nil
}

func (c *Config) applyEnv(env envConfig) {
	setString(&c.APIURL, env.APIURL)
	setString(&c.WSURL, env.WSURL)
	setString(&c.LogLevel, env.LogLevel)
	setString(&c.LogFormat, env.LogFormat)
	setPath(&c.LogFile, env.LogFile)
	setPath(&c.TokenFile, env.TokenFile)
	setPath(&c.CacheDir, env.CacheDir)
	if env.RequestTimeout > 0 {
		c.RequestTimeout = env.RequestTimeout
	}
}

// DeriveWSURL maps the API root onto the live endpoint on the same host:
// http becomes ws, https becomes wss.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiURL))
	if err != nil {
		return "", fmt.Errorf("parse api_url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("api_url %q: unsupported scheme %q", apiURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("api_url %q: missing host", apiURL)
	}
	u.Path = livePath
	u.RawQuery = ""
	return u.String(), nil
}

// LogDir returns the directory holding the log file.
func (c Config) LogDir() string {
	if strings.TrimSpace(c.LogFile) == "" {
		return filepath.Dir(mustExpand(defaultLogFile))
	}
	return filepath.Dir(c.LogFile)
}

func setString(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func setPath(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = mustExpand(v)
	}
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
