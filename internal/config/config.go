package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dshills/focus/internal/cache"
)

// ProjectFileName is the per-repository config file read from the project root.
const ProjectFileName = ".focus.toml"

// Config represents the focus configuration.
type Config struct {
	Baseline           string        `json:"baseline" toml:"baseline"`
	MaxTokensPerFile   int           `json:"maxTokensPerFile" toml:"maxTokensPerFile"`
	ContextWindowLines int           `json:"contextWindowLines" toml:"contextWindowLines"`
	DiffContextLines   int           `json:"diffContextLines" toml:"diffContextLines"`
	Include            []string      `json:"include" toml:"include"`
	Exclude            []string      `json:"exclude" toml:"exclude"`
	Format             string        `json:"format" toml:"format"`
	Concurrency        int           `json:"concurrency" toml:"concurrency"`
	FileTimeoutSeconds int           `json:"fileTimeoutSeconds" toml:"fileTimeoutSeconds"`
	LogLevel           string        `json:"logLevel" toml:"logLevel"`
	Cache              CacheConfig   `json:"cache" toml:"cache"`
	Privacy            PrivacyConfig `json:"privacy" toml:"privacy"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled        bool   `json:"enabled" toml:"enabled"`
	Dir            string `json:"dir,omitempty" toml:"dir,omitempty"`
	Strategy       string `json:"strategy" toml:"strategy"`
	TTLSeconds     int    `json:"ttlSeconds" toml:"ttlSeconds"`
	MaxBytes       int64  `json:"maxBytes" toml:"maxBytes"`
	MaxEntries     int    `json:"maxEntries" toml:"maxEntries"`
	SweepSeconds   int    `json:"sweepSeconds" toml:"sweepSeconds"`
	Persist        bool   `json:"persist" toml:"persist"`
	PersistSeconds int    `json:"persistSeconds" toml:"persistSeconds"`
	Backend        string `json:"backend" toml:"backend"`
}

// PrivacyConfig controls redaction of extracted text.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redactSecrets" toml:"redactSecrets"`
	RedactPaths   []string `json:"redactPaths,omitempty" toml:"redactPaths,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Baseline:           "HEAD",
		MaxTokensPerFile:   4000,
		ContextWindowLines: 20,
		DiffContextLines:   3,
		Include:            []string{"**/*"},
		Exclude:            []string{"vendor/**", "**/node_modules/**", "**/*.gen.go", "**/dist/**"},
		Format:             "text",
		Concurrency:        4,
		FileTimeoutSeconds: 30,
		LogLevel:           "info",
		Cache: CacheConfig{
			Enabled:        true,
			Strategy:       "lru",
			TTLSeconds:     86400,
			MaxBytes:       64 << 20,
			MaxEntries:     10000,
			SweepSeconds:   60,
			Persist:        true,
			PersistSeconds: 300,
			Backend:        "json",
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
	}
}

// FileTimeout is the per-file processing limit. Zero means none.
func (c Config) FileTimeout() time.Duration {
	return time.Duration(c.FileTimeoutSeconds) * time.Second
}

// TTL is the default entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }

// SweepInterval is the period of the background expiry sweep.
func (c CacheConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepSeconds) * time.Second
}

// PersistInterval is the period of background snapshots. Zero when
// persistence is off.
func (c CacheConfig) PersistInterval() time.Duration {
	if !c.Persist {
		return 0
	}
	return time.Duration(c.PersistSeconds) * time.Second
}

// ResolveDir returns Dir, or the per-user cache directory when Dir is empty.
func (c CacheConfig) ResolveDir() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine cache directory: %w", err)
	}
	return filepath.Join(base, "focus"), nil
}

// ConfigDir returns the platform-appropriate config directory for focus.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "focus"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "focus"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "focus"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "focus"), nil
	default:
		return filepath.Join(home, ".config", "focus"), nil
	}
}

// ConfigPath returns the full path to the user config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile returns the defaults overlaid with the user config file. A
// missing file yields the defaults.
func LoadFile() (Config, error) {
	cfg := Default()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	if err := mergeJSONFile(&cfg, path); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes cfg to the user config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// SaveProject writes cfg as the project file under root.
func SaveProject(root string, cfg Config) (string, error) {
	path := filepath.Join(root, ProjectFileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return "", fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// Load builds the effective config by merging:
// defaults <- user file <- project file <- env <- overrides.
// projectRoot may be empty to skip the project file. Override keys are the
// SetField keys; empty values are ignored.
func Load(projectRoot string, overrides map[string]string) (Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	if projectRoot != "" {
		if err := mergeProjectFile(&cfg, filepath.Join(projectRoot, ProjectFileName)); err != nil {
			return Config{}, err
		}
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeJSONFile decodes path over cfg, so keys absent from the file keep
// their current values.
func mergeJSONFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func mergeProjectFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("parsing project config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// envKeys maps environment variables to SetField keys.
var envKeys = []struct{ env, key string }{
	{"FOCUS_BASELINE", "baseline"},
	{"FOCUS_MAX_TOKENS", "maxTokensPerFile"},
	{"FOCUS_CONTEXT_WINDOW", "contextWindowLines"},
	{"FOCUS_FORMAT", "format"},
	{"FOCUS_CONCURRENCY", "concurrency"},
	{"FOCUS_FILE_TIMEOUT", "fileTimeoutSeconds"},
	{"FOCUS_LOG_LEVEL", "logLevel"},
	{"FOCUS_CACHE", "cache.enabled"},
	{"FOCUS_CACHE_DIR", "cache.dir"},
	{"FOCUS_CACHE_STRATEGY", "cache.strategy"},
	{"FOCUS_CACHE_BACKEND", "cache.backend"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("invalid %s: %w", e.env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			return err
		}
	}
	return nil
}

// SetField sets a single config field by key name. Nested fields use dotted
// keys such as "cache.strategy". List values are comma-separated.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "baseline":
		cfg.Baseline = value
	case "maxTokensPerFile":
		cfg.MaxTokensPerFile, err = atoi(key, value)
	case "contextWindowLines":
		cfg.ContextWindowLines, err = atoi(key, value)
	case "diffContextLines":
		cfg.DiffContextLines, err = atoi(key, value)
	case "include":
		cfg.Include = splitList(value)
	case "exclude":
		cfg.Exclude = splitList(value)
	case "format":
		cfg.Format = value
	case "concurrency":
		cfg.Concurrency, err = atoi(key, value)
	case "fileTimeoutSeconds":
		cfg.FileTimeoutSeconds, err = atoi(key, value)
	case "logLevel":
		cfg.LogLevel = strings.ToLower(value)
	case "cache.enabled":
		cfg.Cache.Enabled, err = parseBool(key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.strategy":
		cfg.Cache.Strategy = strings.ToLower(value)
	case "cache.ttlSeconds":
		cfg.Cache.TTLSeconds, err = atoi(key, value)
	case "cache.maxBytes":
		cfg.Cache.MaxBytes, err = strconv.ParseInt(value, 10, 64)
		if err != nil {
			err = fmt.Errorf("%s must be an integer: %w", key, err)
		}
	case "cache.maxEntries":
		cfg.Cache.MaxEntries, err = atoi(key, value)
	case "cache.sweepSeconds":
		cfg.Cache.SweepSeconds, err = atoi(key, value)
	case "cache.persist":
		cfg.Cache.Persist, err = parseBool(key, value)
	case "cache.persistSeconds":
		cfg.Cache.PersistSeconds, err = atoi(key, value)
	case "cache.backend":
		cfg.Cache.Backend = strings.ToLower(value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = parseBool(key, value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return err
}

var (
	validFormats   = []string{"text", "json", "markdown"}
	validBackends  = []string{"json", "sqlite"}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.MaxTokensPerFile <= 0 {
		errs = append(errs, fmt.Errorf("maxTokensPerFile must be positive, got %d", c.MaxTokensPerFile))
	}
	if c.ContextWindowLines < 0 {
		errs = append(errs, fmt.Errorf("contextWindowLines must not be negative, got %d", c.ContextWindowLines))
	}
	if c.DiffContextLines < 0 {
		errs = append(errs, fmt.Errorf("diffContextLines must not be negative, got %d", c.DiffContextLines))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.FileTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("fileTimeoutSeconds must not be negative, got %d", c.FileTimeoutSeconds))
	}
	if !oneOf(c.Format, validFormats) {
		errs = append(errs, fmt.Errorf("format must be one of %s, got %q", strings.Join(validFormats, "|"), c.Format))
	}
	if !oneOf(c.LogLevel, validLogLevels) {
		errs = append(errs, fmt.Errorf("logLevel must be one of %s, got %q", strings.Join(validLogLevels, "|"), c.LogLevel))
	}
	if _, err := cache.ParsePolicy(c.Cache.Strategy); err != nil {
		errs = append(errs, fmt.Errorf("cache.strategy: %w", err))
	}
	if !oneOf(c.Cache.Backend, validBackends) {
		errs = append(errs, fmt.Errorf("cache.backend must be one of %s, got %q", strings.Join(validBackends, "|"), c.Cache.Backend))
	}
	if c.Cache.MaxBytes < 0 || c.Cache.MaxEntries < 0 || c.Cache.TTLSeconds < 0 ||
		c.Cache.SweepSeconds < 0 || c.Cache.PersistSeconds < 0 {
		errs = append(errs, errors.New("cache limits and intervals must not be negative"))
	}
	return errors.Join(errs...)
}

func atoi(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
