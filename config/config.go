package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the report service
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Report    ReportConfig    `mapstructure:"report"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
	// CORSAllowOrigin is a comma separated origin list, "*" for any.
	CORSAllowOrigin string `mapstructure:"cors_allow_origin"`
}

// Origins splits CORSAllowOrigin.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.CORSAllowOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// LLMConfig selects and tunes the model backend
type LLMConfig struct {
	Provider  string `mapstructure:"provider"` // auto, openai, ollama, none, ...
	Endpoint  string `mapstructure:"endpoint"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens"`
	// Temperature is nil when unset so the backend default applies.
	Temperature *float64 `mapstructure:"temperature"`
	TimeoutS    float64  `mapstructure:"timeout_s"`
	InDocker    bool     `mapstructure:"in_docker"`
}

func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutS * float64(time.Second))
}

// ReportConfig configures widget collection and report synthesis
type ReportConfig struct {
	FetchBase         string  `mapstructure:"fetch_base"`
	QueryPath         string  `mapstructure:"query_path"`
	Discovery         string  `mapstructure:"discovery"` // static or openapi
	Workers           int     `mapstructure:"workers"`
	RowCap            int     `mapstructure:"row_cap"`
	BucketCap         int     `mapstructure:"bucket_cap"`
	FetchTimeoutS     float64 `mapstructure:"fetch_timeout_s"`
	RetryPrefixChars  int     `mapstructure:"retry_prefix_chars"`
	TrendThresholdPct float64 `mapstructure:"trend_threshold_pct"`
	BackfillSections  bool    `mapstructure:"backfill_sections"`
}

func (r ReportConfig) FetchTimeout() time.Duration {
	return time.Duration(r.FetchTimeoutS * float64(time.Second))
}

// CacheConfig configures the aggregate cache. A zero TTL disables it.
type CacheConfig struct {
	Backend    string  `mapstructure:"backend"` // memory or redis
	TTLS       float64 `mapstructure:"ttl_s"`
	MaxEntries int     `mapstructure:"max_entries"`
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLS * float64(time.Second))
}

// StorageConfig contains storage backends
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if r.Port <= 0 {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// TelemetryConfig toggles the Prometheus metrics
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// legacyEnv are the environment names the widget service has always read.
var legacyEnv = map[string][]string{
	"llm.provider":             {"LLM_PROVIDER"},
	"llm.endpoint":             {"LLM_ENDPOINT"},
	"llm.model":                {"LLM_MODEL"},
	"llm.api_key":              {"LLM_API_KEY"},
	"llm.max_tokens":           {"LLM_MAX_TOKENS"},
	"llm.temperature":          {"LLM_TEMPERATURE"},
	"llm.timeout_s":            {"LLM_TIMEOUT_S", "LLM_TIMEOUT"},
	"llm.in_docker":            {"RUNNING_IN_DOCKER"},
	"report.fetch_base":        {"AI_REPORT_FETCH_BASE"},
	"cache.ttl_s":              {"AI_INSIGHTS_CACHE_TTL"},
	"server.cors_allow_origin": {"CORS_ALLOW_ORIGIN"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors_allow_origin", "*")
	v.SetDefault("llm.provider", "auto")
	v.SetDefault("llm.endpoint", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout_s", 60)
	v.SetDefault("llm.in_docker", false)
	v.SetDefault("report.fetch_base", "http://127.0.0.1:8000")
	v.SetDefault("report.query_path", "/api/query")
	v.SetDefault("report.discovery", "static")
	v.SetDefault("report.workers", 4)
	v.SetDefault("report.row_cap", 80)
	v.SetDefault("report.bucket_cap", 60)
	v.SetDefault("report.fetch_timeout_s", 20)
	v.SetDefault("report.retry_prefix_chars", 4000)
	v.SetDefault("report.trend_threshold_pct", 6)
	v.SetDefault("report.backfill_sections", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_s", 60)
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")
	v.SetDefault("telemetry.enabled", true)
}

// LoadConfig reads config.json (./config or . unless path is given), then
// APILOG_* and the legacy environment names. A missing config file is fine
// when no path was given; a malformed one is an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("APILOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := "APILOG_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	config = config.Normalize()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Normalize trims names and replaces out-of-range numbers with defaults.
func (c Config) Normalize() Config {
	c.Server.Address = strings.TrimSpace(c.Server.Address)
	if c.Server.Address != "" && !strings.Contains(c.Server.Address, ":") {
		c.Server.Address = ":" + c.Server.Address
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.Endpoint = strings.TrimSpace(c.LLM.Endpoint)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.TimeoutS <= 0 {
		c.LLM.TimeoutS = 60
	}
	if c.LLM.MaxTokens < 0 {
		c.LLM.MaxTokens = 0
	}

	c.Report.FetchBase = strings.TrimRight(strings.TrimSpace(c.Report.FetchBase), "/")
	c.Report.Discovery = strings.ToLower(strings.TrimSpace(c.Report.Discovery))
	if c.Report.Discovery == "" {
		c.Report.Discovery = "static"
	}
	if c.Report.Workers <= 0 {
		c.Report.Workers = 4
	}
	if c.Report.RowCap <= 0 {
		c.Report.RowCap = 80
	}
	if c.Report.BucketCap <= 0 {
		c.Report.BucketCap = 60
	}
	if c.Report.FetchTimeoutS <= 0 {
		c.Report.FetchTimeoutS = 20
	}
	if c.Report.RetryPrefixChars <= 0 {
		c.Report.RetryPrefixChars = 4000
	}
	if c.Report.TrendThresholdPct <= 0 {
		c.Report.TrendThresholdPct = 6
	}

	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.TTLS < 0 {
		c.Cache.TTLS = 0
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 256
	}
	c.Storage.Redis.Host = strings.TrimSpace(c.Storage.Redis.Host)
	return c
}

func (c Config) Validate() error {
	switch c.Report.Discovery {
	case "static", "openapi":
	default:
		return fmt.Errorf("report.discovery must be static or openapi, got %q", c.Report.Discovery)
	}
	if c.Report.FetchBase != "" {
		u, err := url.Parse(c.Report.FetchBase)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("report.fetch_base must be an absolute url, got %q", c.Report.FetchBase)
		}
	}
	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if err := c.Storage.Redis.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	return nil
}
