package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is the browser identity sent with every platform request
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0"

// Comment sort orders understood by the legacy reply endpoint
const (
	SortByTime    = 0
	SortByLikes   = 1
	SortByReplies = 2
)

// Config holds all configuration options for bicodown
type Config struct {
	Bilibili   BilibiliConfig   `yaml:"bilibili" json:"bilibili"`
	Harvest    HarvestConfig    `yaml:"harvest" json:"harvest"`
	Output     OutputConfig     `yaml:"output" json:"output"`
	Download   DownloadConfig   `yaml:"download" json:"download"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
	Geo        GeoConfig        `yaml:"geo" json:"geo"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`
}

// BilibiliConfig holds the session and transport settings
type BilibiliConfig struct {
	Cookie         string  `yaml:"cookie" json:"cookie"`
	UserAgent      string  `yaml:"user_agent" json:"user_agent"`
	RequestTimeout float64 `yaml:"request_timeout" json:"request_timeout"`
}

// HarvestConfig is the pacing and termination policy of a harvesting run.
// Delays are in seconds.
type HarvestConfig struct {
	SortOrder             int     `yaml:"sort_order" json:"sort_order"`
	RequestDelayMin       float64 `yaml:"request_delay_min" json:"request_delay_min"`
	RequestDelayMax       float64 `yaml:"request_delay_max" json:"request_delay_max"`
	RequestRetryDelay     float64 `yaml:"request_retry_delay" json:"request_retry_delay"`
	MaxRetries            int     `yaml:"max_retries" json:"max_retries"`
	ConsecutiveEmptyLimit int     `yaml:"consecutive_empty_limit" json:"consecutive_empty_limit"`
	MaxFailedPages        int     `yaml:"max_failed_pages" json:"max_failed_pages"`
	Mapping               bool    `yaml:"mapping" json:"mapping"`
	VideoOrder            string  `yaml:"video_order" json:"video_order"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory   string `yaml:"base_directory" json:"base_directory"`
	Overwrite       bool   `yaml:"overwrite" json:"overwrite"`
	SaveContentInfo bool   `yaml:"save_content_info" json:"save_content_info"`
}

// DownloadConfig controls picture downloads
type DownloadConfig struct {
	Images          bool          `yaml:"images" json:"images"`
	Workers         int           `yaml:"workers" json:"workers"`
	ImagesPerMinute int           `yaml:"images_per_minute" json:"images_per_minute"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	File        string `yaml:"file" json:"file"`
	MaxLogFiles int    `yaml:"max_log_files" json:"max_log_files"`
	MaxSizeMB   int    `yaml:"max_size_mb" json:"max_size_mb"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// GeoConfig points at the GeoJSON FeatureCollection used for region matching
type GeoConfig struct {
	Template string `yaml:"template" json:"template"`
}

// CheckpointConfig toggles persisted resume state
type CheckpointConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// HomeDir is the per-user directory holding output, logs and the config file
func HomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".bicodown")
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Bilibili: BilibiliConfig{
			UserAgent:      DefaultUserAgent,
			RequestTimeout: 10,
		},
		Harvest: HarvestConfig{
			SortOrder:             SortByLikes,
			RequestDelayMin:       1.0,
			RequestDelayMax:       2.0,
			RequestRetryDelay:     5.0,
			MaxRetries:            2,
			ConsecutiveEmptyLimit: 1,
			MaxFailedPages:        3,
			Mapping:               true,
			VideoOrder:            "pubdate",
		},
		Output: OutputConfig{
			BaseDirectory:   filepath.Join(HomeDir(), "output"),
			SaveContentInfo: true,
		},
		Download: DownloadConfig{
			Images:          false,
			Workers:         3,
			ImagesPerMinute: 120,
			Timeout:         10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			MaxLogFiles: 10,
			MaxSizeMB:   10,
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
		},
	}
}

// Seconds converts a float second count from the config surface
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RequestTimeout is the per-call HTTP timeout
func (c *Config) RequestTimeout() time.Duration {
	return Seconds(c.Bilibili.RequestTimeout)
}

// LoadFromEnv loads configuration from BICODOWN_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = strings.EqualFold(v, "true") || v == "1"
		}
	}

	str("BICODOWN_COOKIE", &c.Bilibili.Cookie)
	str("BICODOWN_USER_AGENT", &c.Bilibili.UserAgent)
	num("BICODOWN_SORT_ORDER", &c.Harvest.SortOrder)
	float("BICODOWN_REQUEST_DELAY_MIN", &c.Harvest.RequestDelayMin)
	float("BICODOWN_REQUEST_DELAY_MAX", &c.Harvest.RequestDelayMax)
	float("BICODOWN_REQUEST_RETRY_DELAY", &c.Harvest.RequestRetryDelay)
	num("BICODOWN_MAX_RETRIES", &c.Harvest.MaxRetries)
	num("BICODOWN_CONSECUTIVE_EMPTY_LIMIT", &c.Harvest.ConsecutiveEmptyLimit)
	str("BICODOWN_OUTPUT_DIR", &c.Output.BaseDirectory)
	boolean("BICODOWN_DOWNLOAD_IMAGES", &c.Download.Images)
	num("BICODOWN_WORKERS", &c.Download.Workers)
	str("BICODOWN_LOG_LEVEL", &c.Logging.Level)
	str("BICODOWN_LOG_FILE", &c.Logging.File)
	str("BICODOWN_METRICS_ADDR", &c.Metrics.Addr)
	str("BICODOWN_GEO_TEMPLATE", &c.Geo.Template)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file. An empty path searches
// the default locations; finding nothing is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// DefaultPath is where `config init` writes
func DefaultPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

func findConfigFile() string {
	locations := []string{
		".bicodown.yaml",
		".bicodown.yml",
		DefaultPath(),
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		locations = append(locations, filepath.Join(xdg, "bicodown", "config.yaml"))
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	h := c.Harvest
	if h.SortOrder < SortByTime || h.SortOrder > SortByReplies {
		errs = append(errs, fmt.Errorf("sort order must be 0, 1 or 2, got %d", h.SortOrder))
	}
	if h.RequestDelayMin < 0 || h.RequestDelayMax < 0 {
		errs = append(errs, errors.New("request delays cannot be negative"))
	}
	if h.RequestDelayMax < h.RequestDelayMin {
		errs = append(errs, errors.New("request_delay_max must not be below request_delay_min"))
	}
	if h.RequestRetryDelay < 0 {
		errs = append(errs, errors.New("request_retry_delay cannot be negative"))
	}
	if h.MaxRetries < 1 {
		errs = append(errs, errors.New("max_retries must be at least 1"))
	}
	if h.ConsecutiveEmptyLimit < 1 {
		errs = append(errs, errors.New("consecutive_empty_limit must be at least 1"))
	}
	if h.MaxFailedPages < 1 {
		errs = append(errs, errors.New("max_failed_pages must be at least 1"))
	}
	switch h.VideoOrder {
	case "pubdate", "click", "stow":
	default:
		errs = append(errs, fmt.Errorf("invalid video order %q", h.VideoOrder))
	}

	if c.Bilibili.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("download workers must be positive"))
	}
	if c.Download.Workers > 10 {
		errs = append(errs, errors.New("download workers should not exceed 10"))
	}
	if c.Download.ImagesPerMinute <= 0 {
		errs = append(errs, errors.New("images per minute must be positive"))
	}
	if c.Download.Timeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "warning": true, "error": true, "critical": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	if c.Logging.MaxLogFiles < 0 {
		errs = append(errs, errors.New("max_log_files cannot be negative"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold a session cookie
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges flags collected by the CLI. Only flags the
// user actually set should be present in the map.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["cookie"].(string); ok && v != "" {
		c.Bilibili.Cookie = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["sort"].(int); ok {
		c.Harvest.SortOrder = v
	}
	if v, ok := flags["overwrite"].(bool); ok {
		c.Output.Overwrite = v
	}
	if v, ok := flags["images"].(bool); ok {
		c.Download.Images = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Download.Workers = v
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Harvest.MaxRetries = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["log-file"].(string); ok && v != "" {
		c.Logging.File = v
	}
	if v, ok := flags["metrics-addr"].(string); ok && v != "" {
		c.Metrics.Addr = v
	}
	if v, ok := flags["geo-template"].(string); ok && v != "" {
		c.Geo.Template = v
	}
	if v, ok := flags["no-mapping"].(bool); ok && v {
		c.Harvest.Mapping = false
	}
}

// Load loads configuration from all sources with proper precedence:
// flags > environment (.env included) > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(HomeDir(), ".env"))

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}
