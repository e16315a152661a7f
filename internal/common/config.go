package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level application configuration, loaded from a TOML
// file and then overridden by JOBTRAWL_* environment variables.
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	State       StateConfig     `toml:"state"`
	Queue       QueueConfig     `toml:"queue"`
	Content     ContentConfig   `toml:"content"`
	Crawler     CrawlerConfig   `toml:"crawler"`
	SimHash     SimHashConfig   `toml:"simhash"`
	Progress    ProgressConfig  `toml:"progress"`
	Logging     LoggingConfig   `toml:"logging"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Companies   []CompanyEntry  `toml:"companies"`
}

// CompanyEntry configures one company's adapter and title filters. Kind
// selects which generic Adapter implementation to build: "json_api" for
// ATS-hosted JSON listing endpoints, "html_index" for a scraped career
// page indexed by CSS selectors.
type CompanyEntry struct {
	Company  string   `toml:"company"`
	Kind     string   `toml:"kind"`
	ListURL  string   `toml:"list_url"`
	Include  []string `toml:"include"`
	Exclude  []string `toml:"exclude"`

	// json_api field mapping
	FieldExternalID   string `toml:"field_external_id"`
	FieldTitle        string `toml:"field_title"`
	FieldLocation     string `toml:"field_location"`
	FieldURL          string `toml:"field_url"`
	FieldDescription  string `toml:"field_description"`
	FieldRequirements string `toml:"field_requirements"`

	// html_index selectors
	ListingSelector      string `toml:"listing_selector"`
	TitleSelector        string `toml:"title_selector"`
	LocationSelector     string `toml:"location_selector"`
	LinkSelector         string `toml:"link_selector"`
	DescriptionSelector  string `toml:"description_selector"`
	RequirementsSelector string `toml:"requirements_selector"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// StateConfig points at the SQLite-backed state store.
type StateConfig struct {
	Path string `toml:"path"` // file path, or ":memory:" for tests
}

// QueueConfig tunes both the crawl and extract goqite queues.
type QueueConfig struct {
	PollInterval       string `toml:"poll_interval"`       // e.g. "1s"
	VisibilityTimeout  string `toml:"visibility_timeout"`  // e.g. "5m"
	MaxReceive         int    `toml:"max_receive"`         // dead-letter threshold
	CrawlConcurrency   int    `toml:"crawl_concurrency"`   // global crawler worker count
	ExtractConcurrency int    `toml:"extract_concurrency"` // extractor worker ceiling
	InitializerFanout  int    `toml:"initializer_fanout"`  // concurrent per-company list_jobs calls
}

// ContentConfig controls the filesystem-backed raw content store.
type ContentConfig struct {
	Path            string `toml:"path"`
	RetentionPeriod string `toml:"retention_period"` // e.g. "168h"
	SweepInterval   string `toml:"sweep_interval"`   // e.g. "1h"
}

// CrawlerConfig controls per-company politeness.
type CrawlerConfig struct {
	UserAgent         string  `toml:"user_agent"`
	RequestTimeout    string  `toml:"request_timeout"`
	DefaultRatePerSec float64 `toml:"default_rate_per_sec"`
	DefaultBurst      int     `toml:"default_burst"`
	MaxAttempts       int     `toml:"max_attempts"`
}

// SimHashConfig exposes the change-detection threshold as config, per the
// open question around whether it should be a hardcoded constant.
type SimHashConfig struct {
	HammingThreshold int `toml:"hamming_threshold"`
}

// ProgressConfig tunes the SSE progress streamer poll cadence.
type ProgressConfig struct {
	PollInterval   string `toml:"poll_interval"`    // e.g. "3s"
	PingInterval   string `toml:"ping_interval"`    // e.g. "15s"
	LogBufferLines int    `toml:"log_buffer_lines"` // per-run ring buffer size
	StaleRunAfter  string `toml:"stale_run_after"`  // e.g. "15m"
}

type LoggingConfig struct {
	Level      string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format     string   `toml:"format"` // "json" or "text"
	Output     []string `toml:"output"` // "stdout", "file"
	TimeFormat string   `toml:"time_format"`
}

// SchedulerConfig controls the optional cron-triggered recurring ingestion.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression
}

// Default returns the built-in configuration used when no TOML file is
// supplied, and as the base that LoadFromFile overlays onto.
func Default() *Config {
	return &Config{
		Environment: "development",
		Server:      ServerConfig{Port: 8089, Host: "0.0.0.0"},
		State:       StateConfig{Path: "./data/jobtrawl.db"},
		Queue: QueueConfig{
			PollInterval:       "1s",
			VisibilityTimeout:  "5m",
			MaxReceive:         3,
			CrawlConcurrency:   8,
			ExtractConcurrency: 5,
			InitializerFanout:  8,
		},
		Content: ContentConfig{
			Path:            "./data/content",
			RetentionPeriod: "168h",
			SweepInterval:   "1h",
		},
		Crawler: CrawlerConfig{
			UserAgent:         "jobtrawl/1.0",
			RequestTimeout:    "30s",
			DefaultRatePerSec: 1.0,
			DefaultBurst:      2,
			MaxAttempts:       3,
		},
		SimHash:   SimHashConfig{HammingThreshold: 3},
		Progress:  ProgressConfig{PollInterval: "3s", PingInterval: "15s", LogBufferLines: 2000, StaleRunAfter: "15m"},
		Logging:   LoggingConfig{Level: "info", Format: "text", Output: []string{"stdout"}, TimeFormat: "15:04:05.000"},
		Scheduler: SchedulerConfig{Enabled: false, Schedule: "0 */6 * * *"},
	}
}

// LoadFromFile reads a TOML config file, overlays it onto Default, then
// applies environment variable overrides. A missing file is not an error:
// callers can run entirely off defaults + env vars.
func LoadFromFile(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else {
			if err := toml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv("JOBTRAWL_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("JOBTRAWL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("JOBTRAWL_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("JOBTRAWL_STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("JOBTRAWL_QUEUE_POLL_INTERVAL"); v != "" {
		c.Queue.PollInterval = v
	}
	if v := os.Getenv("JOBTRAWL_QUEUE_CRAWL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.CrawlConcurrency = n
		}
	}
	if v := os.Getenv("JOBTRAWL_QUEUE_EXTRACT_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.ExtractConcurrency = n
		}
	}
	if v := os.Getenv("JOBTRAWL_CONTENT_PATH"); v != "" {
		c.Content.Path = v
	}
	if v := os.Getenv("JOBTRAWL_SIMHASH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.SimHash.HammingThreshold = n
		}
	}
	if v := os.Getenv("JOBTRAWL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("JOBTRAWL_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}
