package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither config file nor env provide a value.
const (
	DefaultMaxMessages       = 300
	DefaultQueueCapacity     = 4096
	DefaultSendTimeoutMs     = 10_000
	DefaultNoticeToleranceMs = 3_000
	DefaultHighlightMs       = 1_800
	DefaultRemovalDays       = 45
	DefaultJanitorCron       = "0 2 * * *"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		// Engine selects the HTTP adapter: "nethttp" (default) or "fasthttp".
		Engine string `yaml:"engine"`
		TLS    struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Storage struct {
		// CachePath is the pebble directory for the offline window mirror.
		// Empty disables the offline cache entirely.
		CachePath string `yaml:"cache_path"`
	} `yaml:"storage"`
	Sync struct {
		// MaxMessages is the per-thread retention window.
		MaxMessages int `yaml:"max_messages"`
		// QueueCapacity bounds the inbound event queue.
		QueueCapacity int `yaml:"queue_capacity"`
		// SendTimeoutMs is how long an optimistic send may stay pending
		// before it is rolled back.
		SendTimeoutMs int `yaml:"send_timeout_ms"`
		// NoticeToleranceMs collapses identical consecutive system notices
		// closer together than this.
		NoticeToleranceMs int64 `yaml:"notice_tolerance_ms"`
		// HighlightMs is the transient highlight duration for reply jumps.
		HighlightMs int `yaml:"highlight_ms"`
	} `yaml:"sync"`
	Suppress struct {
		// RemovalRetentionDays bounds how long filter-removal records (and
		// the suppression windows they seed) are kept.
		RemovalRetentionDays int `yaml:"removal_retention_days"`
	} `yaml:"suppress"`
	Janitor struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"janitor"`
	Transport struct {
		// URL is the websocket event source; empty disables the socket.
		URL string `yaml:"url"`
	} `yaml:"transport"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// ApplyDefaults fills zero-valued tunables with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Sync.MaxMessages <= 0 {
		c.Sync.MaxMessages = DefaultMaxMessages
	}
	if c.Sync.QueueCapacity <= 0 {
		c.Sync.QueueCapacity = DefaultQueueCapacity
	}
	if c.Sync.SendTimeoutMs <= 0 {
		c.Sync.SendTimeoutMs = DefaultSendTimeoutMs
	}
	if c.Sync.NoticeToleranceMs <= 0 {
		c.Sync.NoticeToleranceMs = DefaultNoticeToleranceMs
	}
	if c.Sync.HighlightMs <= 0 {
		c.Sync.HighlightMs = DefaultHighlightMs
	}
	if c.Suppress.RemovalRetentionDays <= 0 {
		c.Suppress.RemovalRetentionDays = DefaultRemovalDays
	}
	if c.Janitor.Cron == "" {
		c.Janitor.Cron = DefaultJanitorCron
	}
	if c.Server.Engine == "" {
		c.Server.Engine = "nethttp"
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, cachePath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	cachePtr := flag.String("cache", "./.chatsync", "Offline cache path (pebble directory)")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *cachePtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies CHATSYNC_* environment overrides onto cfg and
// reports whether any env var was used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	if v := os.Getenv("CHATSYNC_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("CHATSYNC_CACHE_PATH"); v != "" {
		envUsed = true
		cfg.Storage.CachePath = v
	}
	if v := os.Getenv("CHATSYNC_HTTP_ENGINE"); v != "" {
		envUsed = true
		cfg.Server.Engine = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("CHATSYNC_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			envUsed = true
			cfg.Sync.MaxMessages = n
		}
	}
	if v := os.Getenv("CHATSYNC_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			envUsed = true
			cfg.Sync.QueueCapacity = n
		}
	}
	if v := os.Getenv("CHATSYNC_SEND_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			envUsed = true
			cfg.Sync.SendTimeoutMs = n
		}
	}
	if v := os.Getenv("CHATSYNC_TRANSPORT_URL"); v != "" {
		envUsed = true
		cfg.Transport.URL = v
	}
	if v := os.Getenv("CHATSYNC_JANITOR_CRON"); v != "" {
		envUsed = true
		cfg.Janitor.Cron = v
	}
	if v := os.Getenv("CHATSYNC_JANITOR_ENABLED"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Janitor.Enabled = vl == "1" || vl == "true" || vl == "yes"
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	if c := os.Getenv("CHATSYNC_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("CHATSYNC_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	return envUsed
}

// LoadEffective loads config from the given path and applies environment
// overrides plus defaults. A missing file yields a default config.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	cfg.ApplyDefaults()
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value and CHATSYNC_CONFIG when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("CHATSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
