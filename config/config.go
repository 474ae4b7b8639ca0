// Package config loads ainews settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robertmeta/ainews/classify"
	"github.com/robertmeta/ainews/feed"
	"github.com/robertmeta/ainews/htmltext"
	"github.com/robertmeta/ainews/logging"
	"github.com/robertmeta/ainews/segment"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoDBPath         = errors.New("db_path is required")
	ErrInvalidTimeout   = errors.New("fetch.timeout_sec must be positive")
	ErrInvalidWorkers   = errors.New("fetch.workers must be positive")
	ErrInvalidThreshold = errors.New("segmenter thresholds must not be negative")
	ErrInvalidSchedule  = errors.New("invalid schedule")
	ErrNoServerAddr     = errors.New("server.addr is required")
)

// Config holds all application configuration.
type Config struct {
	DBPath         string          `yaml:"db_path"`
	LogLevel       string          `yaml:"log_level"`
	Fetch          FetchConfig     `yaml:"fetch"`
	Schedule       string          `yaml:"schedule"`
	Server         ServerConfig    `yaml:"server"`
	VocabularyPath string          `yaml:"vocabulary_path"`
	Segmenter      SegmenterConfig `yaml:"segmenter"`

	// Path is the file the configuration was read from, empty when only
	// defaults and environment overrides apply.
	Path string `yaml:"-"`
}

// FetchConfig controls feed retrieval.
type FetchConfig struct {
	TimeoutSec int    `yaml:"timeout_sec"`
	UserAgent  string `yaml:"user_agent"`
	Workers    int    `yaml:"workers"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SegmenterConfig tunes the segmentation thresholds. Pictographs lists
// code point ranges like "1F300-1F9FF"; empty keeps the built-in set.
type SegmenterConfig struct {
	MinToolChars      int      `yaml:"min_tool_chars"`
	MinQuickNewsChars int      `yaml:"min_quick_news_chars"`
	MinStoryChars     int      `yaml:"min_story_chars"`
	MinTitleChars     int      `yaml:"min_title_chars"`
	MaxListItems      int      `yaml:"max_list_items"`
	Pictographs       []string `yaml:"pictographs"`
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := segment.DefaultOptions()
	return &Config{
		DBPath:   DefaultDBPath(),
		LogLevel: "info",
		Fetch: FetchConfig{
			TimeoutSec: 30,
			UserAgent:  feed.DefaultUserAgent,
			Workers:    8,
		},
		Schedule: "0 */6 * * *",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Segmenter: SegmenterConfig{
			MinToolChars:      opts.MinToolChars,
			MinQuickNewsChars: opts.MinQuickNewsChars,
			MinStoryChars:     opts.MinStoryChars,
			MinTitleChars:     opts.MinTitleChars,
			MaxListItems:      opts.MaxListItems,
		},
	}
}

// DefaultDBPath returns the database location under the user's config dir.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ainews.db"
	}
	return filepath.Join(home, ".config", "ainews", "ainews.db")
}

// DefaultPath returns the config file location, honouring AINEWS_CONFIG.
func DefaultPath() string {
	if path := os.Getenv("AINEWS_CONFIG"); path != "" {
		return path
	}
	return filepath.Join(filepath.Dir(DefaultDBPath()), "config.yaml")
}

// Load reads the configuration at path on top of the defaults, then applies
// environment overrides and validates the result. A missing file is not an
// error; the returned Config has an empty Path in that case.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			cfg.Path = path
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *Config) {
	if dbPath := os.Getenv("AINEWS_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if level := os.Getenv("AINEWS_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if addr := os.Getenv("AINEWS_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
}

// Validate checks the configuration for values the application cannot run with.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return ErrNoDBPath
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Fetch.TimeoutSec <= 0 {
		return ErrInvalidTimeout
	}
	if c.Fetch.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Server.Addr == "" {
		return ErrNoServerAddr
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, c.Schedule, err)
	}

	s := c.Segmenter
	for _, v := range []int{s.MinToolChars, s.MinQuickNewsChars, s.MinStoryChars, s.MinTitleChars, s.MaxListItems} {
		if v < 0 {
			return ErrInvalidThreshold
		}
	}
	if _, err := htmltext.ParsePictographSet(s.Pictographs); err != nil {
		return fmt.Errorf("invalid segmenter.pictographs: %w", err)
	}
	return nil
}

// FetchTimeout returns the per-request fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSec) * time.Second
}

// SegmenterOptions builds segmenter options from the configured thresholds.
func (c *Config) SegmenterOptions() (segment.Options, error) {
	pictographs, err := htmltext.ParsePictographSet(c.Segmenter.Pictographs)
	if err != nil {
		return segment.Options{}, fmt.Errorf("invalid segmenter.pictographs: %w", err)
	}

	opts := segment.DefaultOptions()
	opts.MinToolChars = c.Segmenter.MinToolChars
	opts.MinQuickNewsChars = c.Segmenter.MinQuickNewsChars
	opts.MinStoryChars = c.Segmenter.MinStoryChars
	opts.MinTitleChars = c.Segmenter.MinTitleChars
	opts.MaxListItems = c.Segmenter.MaxListItems
	opts.Pictographs = pictographs
	return opts, nil
}

// Classifier builds the classifier from vocabulary_path, or the built-in
// vocabulary when none is set.
func (c *Config) Classifier() (*classify.Classifier, error) {
	if c.VocabularyPath == "" {
		return classify.NewDefault(), nil
	}
	v, err := classify.LoadVocabulary(c.VocabularyPath)
	if err != nil {
		return nil, err
	}
	return classify.New(v), nil
}
