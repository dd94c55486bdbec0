package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cardcat configuration.
type Config struct {
	// Spreadsheet endpoints
	Source SourceConfig `yaml:"source"`

	// Timeouts and UX timings
	Net NetConfig `yaml:"net"`

	// Durable local storage
	Storage StorageConfig `yaml:"storage"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Local HTTP server
	Server ServerConfig `yaml:"server"`

	// Duplicate handling on add
	Duplicates DuplicatesConfig `yaml:"duplicates"`

	// Prefix for generated record ids
	IDPrefix string `yaml:"id_prefix"`
}

// SourceConfig locates the read and write endpoints.
type SourceConfig struct {
	// TSVURL is the published TSV export. file:// URLs and plain paths are
	// read from disk.
	TSVURL string `yaml:"tsv_url"`
	// APIURL receives add/update posts.
	APIURL string `yaml:"api_url"`
	// WordBoundaryHeaders tightens header alias substring matching.
	WordBoundaryHeaders bool `yaml:"word_boundary_headers"`
}

// NetConfig configures network behavior.
type NetConfig struct {
	FetchTimeout   string `yaml:"fetch_timeout"`
	RetryDelay     string `yaml:"retry_delay"`
	NoticeDuration string `yaml:"notice_duration"`
	SearchDebounce string `yaml:"search_debounce"`
	// ProbeURL is checked before saving; empty means the write endpoint host.
	ProbeURL string `yaml:"probe_url"`
	// Offline forces the offline state, refusing saves.
	Offline bool `yaml:"offline"`
}

// StorageConfig configures the SQLite key-value store.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures `cardcat serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AssetUpstream, when set, is proxied on / with offline fallback.
	AssetUpstream string `yaml:"asset_upstream"`
	// ExemptHosts are never intercepted by the asset proxy in addition to
	// the source endpoints.
	ExemptHosts []string `yaml:"exempt_hosts"`
}

// DuplicatesConfig configures collision handling.
type DuplicatesConfig struct {
	// OnCollision is prompt, discard, duplicate or merge.
	OnCollision string `yaml:"on_collision"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{},

		Net: NetConfig{
			FetchTimeout:   "12s",
			RetryDelay:     "180ms",
			NoticeDuration: "2400ms",
			SearchDebounce: "120ms",
		},

		Storage: StorageConfig{
			Path: filepath.Join(".cardcat", "cardcat.db"),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},

		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			ExemptHosts: []string{"script.google.com", "script.googleusercontent.com", "docs.google.com"},
		},

		Duplicates: DuplicatesConfig{
			OnCollision: "prompt",
		},

		IDPrefix: "pkm_",
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CARDCAT_TSV_URL"); v != "" {
		c.Source.TSVURL = v
	}
	if v := os.Getenv("CARDCAT_API_URL"); v != "" {
		c.Source.APIURL = v
	}
	if v := os.Getenv("CARDCAT_DB"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CARDCAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
		c.Logging.DebugMode = true
	}
	if v := os.Getenv("CARDCAT_SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetFetchTimeout bounds the dataset fetch and the save POST.
func (c *Config) GetFetchTimeout() time.Duration {
	return parseDuration(c.Net.FetchTimeout, 12*time.Second)
}

// GetRetryDelay is the pause before the single dataset fetch retry.
func (c *Config) GetRetryDelay() time.Duration {
	return parseDuration(c.Net.RetryDelay, 180*time.Millisecond)
}

// GetNoticeDuration is how long a notice stays visible.
func (c *Config) GetNoticeDuration() time.Duration {
	return parseDuration(c.Net.NoticeDuration, 2400*time.Millisecond)
}

// GetSearchDebounce is the keystroke debounce of the interactive table.
func (c *Config) GetSearchDebounce() time.Duration {
	return parseDuration(c.Net.SearchDebounce, 120*time.Millisecond)
}

// ValidCollisionModes lists the accepted duplicates.on_collision values.
var ValidCollisionModes = []string{"prompt", "discard", "duplicate", "merge"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source.TSVURL == "" {
		return fmt.Errorf("dataset source not configured (set source.tsv_url or CARDCAT_TSV_URL)")
	}
	if err := checkURL("source.tsv_url", c.Source.TSVURL, true); err != nil {
		return err
	}
	if c.Source.APIURL != "" {
		if err := checkURL("source.api_url", c.Source.APIURL, false); err != nil {
			return err
		}
	}

	valid := false
	for _, m := range ValidCollisionModes {
		if c.Duplicates.OnCollision == m {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid duplicates.on_collision: %s (valid: %v)", c.Duplicates.OnCollision, ValidCollisionModes)
	}

	if strings.TrimSpace(c.IDPrefix) != c.IDPrefix {
		return fmt.Errorf("id_prefix must not contain surrounding whitespace")
	}
	return nil
}

func checkURL(field, raw string, allowFile bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("invalid %s: missing host", field)
		}
		return nil
	case "file", "":
		if allowFile {
			return nil
		}
	}
	return fmt.Errorf("invalid %s: unsupported scheme %q", field, u.Scheme)
}

// HasWriteEndpoint reports whether saves can be sent anywhere.
func (c *Config) HasWriteEndpoint() bool {
	return c.Source.APIURL != ""
}
