package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override (KUBELUMA_PORT, ...).
const EnvPrefix = "KUBELUMA"

// ErrInvalidConfig wraps every validation failure so callers can map it to a usage exit code.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	PodPattern string `mapstructure:"pod_pattern"` // Initial filter; empty = wait for the admin API
	Namespace  string `mapstructure:"namespace"`   // Empty = all namespaces
	Kubeconfig string `mapstructure:"kubeconfig"`
	Context    string `mapstructure:"context"`

	PodRefreshSec      int     `mapstructure:"pod_refresh_sec"`
	DetailRefreshSec   int     `mapstructure:"detail_refresh_sec"`
	MetricsIntervalSec float64 `mapstructure:"metrics_interval_sec"`
	EventsIntervalSec  int     `mapstructure:"events_interval_sec"`

	CPULimitRedPct int `mapstructure:"cpu_limit_red_pct"`
	MemLimitRedPct int `mapstructure:"mem_limit_red_pct"`

	LogTailLines        int `mapstructure:"log_tail_lines"`
	EventBufferCapacity int `mapstructure:"event_buffer_capacity"`
	SeenEventsMax       int `mapstructure:"seen_events_max"`
	SeenEventsTTLSec    int `mapstructure:"seen_events_ttl_sec"`

	K8sTimeoutSec      int     `mapstructure:"k8s_timeout_sec"`
	K8sRateLimitPerSec float64 `mapstructure:"k8s_rate_limit_per_sec"` // 0 = no limit
	K8sRateLimitBurst  int     `mapstructure:"k8s_rate_limit_burst"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // json or console
	LogFile   string `mapstructure:"log_file"`   // Rotated file sink in addition to stderr

	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	ShutdownTimeoutSec int      `mapstructure:"shutdown_timeout_sec"`

	OTelEndpoint     string  `mapstructure:"otel_endpoint"` // Empty disables tracing
	OTelSamplingRate float64 `mapstructure:"otel_sampling_rate"`
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("pod_pattern", "")
	v.SetDefault("namespace", "")
	v.SetDefault("kubeconfig", "")
	v.SetDefault("context", "")
	v.SetDefault("pod_refresh_sec", 5)
	v.SetDefault("detail_refresh_sec", 5)
	v.SetDefault("metrics_interval_sec", 5.0)
	v.SetDefault("events_interval_sec", 6)
	v.SetDefault("cpu_limit_red_pct", 90)
	v.SetDefault("mem_limit_red_pct", 80)
	v.SetDefault("log_tail_lines", 200)
	v.SetDefault("event_buffer_capacity", 300)
	v.SetDefault("seen_events_max", 5000)
	v.SetDefault("seen_events_ttl_sec", 3600)
	v.SetDefault("k8s_timeout_sec", 10)
	v.SetDefault("k8s_rate_limit_per_sec", 0)
	v.SetDefault("k8s_rate_limit_burst", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("log_file", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("shutdown_timeout_sec", 10)
	v.SetDefault("otel_endpoint", "")
	v.SetDefault("otel_sampling_rate", 1.0)
}

// Load reads defaults, an optional config.yaml and KUBELUMA_* environment variables into a
// validated Config. v may carry bound command-line flags; nil uses a fresh instance.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/kubeluma/")
	v.AddConfigPath("$HOME/.kubeluma")
	v.AddConfigPath(".")

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Host = strings.TrimSpace(cfg.Host)
	cfg.PodPattern = strings.TrimSpace(cfg.PodPattern)
	cfg.Namespace = strings.TrimSpace(cfg.Namespace)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bind address, intervals and buffer sizes.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidConfig, c.Port)
	}
	if c.Host == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidConfig)
	}
	if len(c.Host) > 253 {
		return fmt.Errorf("%w: host is too long (max 253 characters)", ErrInvalidConfig)
	}
	if c.MetricsIntervalSec < 1 {
		return fmt.Errorf("%w: metrics interval must be at least 1 second, got %v", ErrInvalidConfig, c.MetricsIntervalSec)
	}
	for name, val := range map[string]int{
		"pod_refresh_sec":     c.PodRefreshSec,
		"detail_refresh_sec":  c.DetailRefreshSec,
		"events_interval_sec": c.EventsIntervalSec,
	} {
		if val < 1 {
			return fmt.Errorf("%w: %s must be at least 1, got %d", ErrInvalidConfig, name, val)
		}
	}
	if c.EventBufferCapacity < 1 {
		return fmt.Errorf("%w: event_buffer_capacity must be positive, got %d", ErrInvalidConfig, c.EventBufferCapacity)
	}
	if c.SeenEventsMax < 1 {
		return fmt.Errorf("%w: seen_events_max must be positive, got %d", ErrInvalidConfig, c.SeenEventsMax)
	}
	if c.LogTailLines < 0 {
		return fmt.Errorf("%w: log_tail_lines cannot be negative, got %d", ErrInvalidConfig, c.LogTailLines)
	}
	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) PodRefreshInterval() time.Duration {
	return time.Duration(c.PodRefreshSec) * time.Second
}

func (c *Config) DetailRefreshInterval() time.Duration {
	return time.Duration(c.DetailRefreshSec) * time.Second
}

func (c *Config) MetricsInterval() time.Duration {
	return time.Duration(c.MetricsIntervalSec * float64(time.Second))
}

func (c *Config) EventsInterval() time.Duration {
	return time.Duration(c.EventsIntervalSec) * time.Second
}

func (c *Config) SeenEventsTTL() time.Duration {
	return time.Duration(c.SeenEventsTTLSec) * time.Second
}

func (c *Config) K8sTimeout() time.Duration {
	return time.Duration(c.K8sTimeoutSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}
