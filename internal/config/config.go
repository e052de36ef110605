// Package config loads the cache cluster's runtime configuration: a YAML
// file layered with environment-variable overrides, following the teacher's
// Config-struct-plus-getEnv* pattern (see applyEnvOverrides, getEnv*).
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Cache Cluster Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Node      NodeConfig      `yaml:"node"`
	Cache     CacheConfig     `yaml:"cache"`
	Ring      RingConfig      `yaml:"ring"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// ServerConfig covers the router/node process's own listening concerns --
// explicitly out of scope for the core (spec §1) but still part of the
// ambient bootstrap surface.
type ServerConfig struct {
	Port            string `yaml:"port"`
	Env             string `yaml:"env"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	IdleTimeoutSec  int    `yaml:"idle_timeout_sec"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
	MetricsAddr     string `yaml:"metrics_addr"`
}

// NodeConfig carries the identification a storage node advertises when it
// connects to a router (spec §6: ROLE, MASTER_IPS/CACHE_IPS collaborator
// inputs).
type NodeConfig struct {
	Role      string   `yaml:"role"`
	MasterIPs []string `yaml:"master_ips"`
	CacheIPs  []string `yaml:"cache_ips"`
}

// CacheConfig sizes a storage node's cache engine (spec §4.5).
type CacheConfig struct {
	Capacity         int    `yaml:"capacity"`
	WheelSize        int    `yaml:"wheel_size"`
	WheelTickMillis  uint64 `yaml:"wheel_tick_ms"`
	ReaperPeriodMs   int    `yaml:"reaper_period_ms"`
	IdentifyTimeoutS int    `yaml:"identify_timeout_sec"`
}

// RingConfig sizes the router's consistent-hash ring (spec §4.6).
type RingConfig struct {
	VirtualNodes int `yaml:"virtual_nodes"`
}

// DispatchConfig bounds how long the router waits on a fan-out race before
// giving up (spec §4.2's max_duration, spec §5's per-request hard bound).
type DispatchConfig struct {
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
}

// BootstrapConfig is the process-wiring surface explicitly excluded from the
// core (spec §1) but still needed to stand a process up.
type BootstrapConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading it on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		cfg.applyDefaults()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnvOverrides layers environment variables over whatever the YAML
// file set, matching the collaborator contract in spec §6 (PORT,
// MASTER_IPS, CACHE_IPS, ROLE).
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("CACHE_ENV", c.Server.Env)
	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)

	c.Node.Role = getEnv("ROLE", c.Node.Role)
	if ips := getEnv("MASTER_IPS", ""); ips != "" {
		c.Node.MasterIPs = splitHostList(ips)
	}
	if ips := getEnv("CACHE_IPS", ""); ips != "" {
		c.Node.CacheIPs = splitHostList(ips)
	}

	if v := getEnvInt("CACHE_CAPACITY", 0); v > 0 {
		c.Cache.Capacity = v
	}
	if v := getEnvInt("CACHE_WHEEL_SIZE", 0); v > 0 {
		c.Cache.WheelSize = v
	}
	if v := getEnvInt("CACHE_WHEEL_TICK_MS", 0); v > 0 {
		c.Cache.WheelTickMillis = uint64(v)
	}
	if v := getEnvInt("CACHE_REAPER_PERIOD_MS", 0); v > 0 {
		c.Cache.ReaperPeriodMs = v
	}

	if v := getEnvInt("RING_VIRTUAL_NODES", 0); v > 0 {
		c.Ring.VirtualNodes = v
	}

	if v := getEnvInt("DISPATCH_REQUEST_TIMEOUT_MS", 0); v > 0 {
		c.Dispatch.RequestTimeoutMs = v
	}

	c.Bootstrap.ListenAddr = getEnv("LISTEN_ADDR", c.Bootstrap.ListenAddr)
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "9000"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = ":9100"
	}
	if c.Node.Role == "" {
		c.Node.Role = "client"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 10_000
	}
	if c.Cache.WheelSize == 0 {
		c.Cache.WheelSize = 1024
	}
	if c.Cache.WheelTickMillis == 0 {
		c.Cache.WheelTickMillis = 100
	}
	if c.Cache.ReaperPeriodMs == 0 {
		c.Cache.ReaperPeriodMs = int(c.Cache.WheelTickMillis)
	}
	if c.Cache.IdentifyTimeoutS == 0 {
		c.Cache.IdentifyTimeoutS = 5
	}
	if c.Ring.VirtualNodes == 0 {
		c.Ring.VirtualNodes = 128
	}
	if c.Dispatch.RequestTimeoutMs == 0 {
		c.Dispatch.RequestTimeoutMs = 2000
	}
	if c.Bootstrap.ListenAddr == "" {
		c.Bootstrap.ListenAddr = ":" + c.Server.Port
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// splitHostList accepts comma- or space-separated host:port lists, per
// spec §6's MASTER_IPS/CACHE_IPS contract.
func splitHostList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
