// Package config provides configuration management for the discovery service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the discovery service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Sources contains the per-source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Orchestrator contains search orchestration settings.
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	// Cache contains search result cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Dedup contains deduplication settings.
	Dedup DedupConfig `mapstructure:"dedup"`
	// FullText contains full-text resolution settings.
	FullText FullTextConfig `mapstructure:"fulltext"`
	// Store contains outcome persistence settings.
	Store StoreConfig `mapstructure:"store"`
	// Breaker contains per-source circuit breaker settings.
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace is the Prometheus metric namespace.
	Namespace string `mapstructure:"namespace"`
}

// SourcesConfig holds configuration for all search sources.
type SourcesConfig struct {
	// GEO contains NCBI GEO DataSets API settings.
	GEO SourceConfig `mapstructure:"geo"`
	// EuropePMC contains Europe PMC API settings.
	EuropePMC SourceConfig `mapstructure:"europepmc"`
	// Crossref contains Crossref API settings.
	Crossref SourceConfig `mapstructure:"crossref"`
}

// SourceConfig holds configuration for a single search source API.
type SourceConfig struct {
	// Enabled controls whether this source is queried.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from an environment variable,
	// e.g. DISCOVERY_SOURCES_GEO_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is a contact email included in requests where the API
	// operators ask for one (Crossref polite pool, Europe PMC).
	Email string `mapstructure:"email"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the maximum burst of requests allowed.
	BurstSize int `mapstructure:"burst_size"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// OrchestratorConfig holds search orchestration settings.
type OrchestratorConfig struct {
	// Deadline bounds one orchestration pass end to end.
	Deadline time.Duration `mapstructure:"deadline"`
	// MaxResults caps the ranked result list per search.
	MaxResults int `mapstructure:"max_results"`
	// ResolveFullText runs the full-text waterfall on results.
	ResolveFullText bool `mapstructure:"resolve_full_text"`
}

// CacheConfig holds search result cache settings.
type CacheConfig struct {
	// TTL is how long a cached outcome stays fresh.
	TTL time.Duration `mapstructure:"ttl"`
	// MaxEntries bounds the cache size; least recently used entries
	// are evicted first.
	MaxEntries int `mapstructure:"max_entries"`
}

// DedupConfig holds deduplication settings.
type DedupConfig struct {
	// TitleSimilarityThreshold is the normalized title similarity
	// (0.0-1.0) above which records without a shared identifier merge.
	TitleSimilarityThreshold float64 `mapstructure:"title_similarity_threshold"`
	// SourcePriority orders sources for field resolution, most
	// trusted first.
	SourcePriority []string `mapstructure:"source_priority"`
}

// FullTextConfig holds full-text resolution settings.
type FullTextConfig struct {
	// StrategyOrder lists strategy names in waterfall order.
	StrategyOrder []string `mapstructure:"strategy_order"`
	// GlobalConcurrency caps in-flight strategy attempts across all records.
	GlobalConcurrency int64 `mapstructure:"global_concurrency"`
	// StrategyTimeout bounds each strategy attempt.
	StrategyTimeout time.Duration `mapstructure:"strategy_timeout"`
	// RetryBackoff is the delay before retrying a transient failure.
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// HTTPTimeout is the HTTP client timeout shared by the strategies.
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	// UnpaywallBaseURL is the Unpaywall API base URL.
	UnpaywallBaseURL string `mapstructure:"unpaywall_base_url"`
	// UnpaywallEmail is the contact email the Unpaywall API requires.
	UnpaywallEmail string `mapstructure:"unpaywall_email"`
	// EuropePMCRenderURL is the PMC PDF render URL template.
	EuropePMCRenderURL string `mapstructure:"europepmc_render_url"`
	// DOIResolverURL is the DOI resolver base URL.
	DOIResolverURL string `mapstructure:"doi_resolver_url"`
	// RateLimits maps strategy name to requests per second.
	RateLimits map[string]float64 `mapstructure:"rate_limits"`
}

// StoreConfig holds outcome persistence settings.
type StoreConfig struct {
	// Enabled controls whether outcomes are persisted.
	Enabled bool `mapstructure:"enabled"`
	// Path is the SQLite database path (":memory:" for in-memory).
	Path string `mapstructure:"path"`
}

// BreakerConfig holds per-source circuit breaker settings.
type BreakerConfig struct {
	// Enabled wraps every source client in a circuit breaker.
	Enabled bool `mapstructure:"enabled"`
	// FailureThreshold is consecutive failures before the circuit opens.
	FailureThreshold uint32 `mapstructure:"failure_threshold"`
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// ProbeRequests is the number of requests allowed while half-open.
	ProbeRequests uint32 `mapstructure:"probe_requests"`
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/discovery-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.Sources.GEO.APIKey = os.Getenv("DISCOVERY_SOURCES_GEO_API_KEY")
	cfg.Sources.EuropePMC.APIKey = os.Getenv("DISCOVERY_SOURCES_EUROPEPMC_API_KEY")
	cfg.Sources.Crossref.APIKey = os.Getenv("DISCOVERY_SOURCES_CROSSREF_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "discovery")

	// Source defaults - NCBI GEO DataSets
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("sources.geo.enabled", true)
	v.SetDefault("sources.geo.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.geo.timeout", "30s")
	v.SetDefault("sources.geo.rate_limit", 3.0) // NCBI allows max 3 req/sec without API key
	v.SetDefault("sources.geo.burst_size", 3)
	v.SetDefault("sources.geo.max_results", 100)

	// Source defaults - Europe PMC
	v.SetDefault("sources.europepmc.enabled", true)
	v.SetDefault("sources.europepmc.base_url", "https://www.ebi.ac.uk/europepmc/webservices/rest")
	v.SetDefault("sources.europepmc.timeout", "30s")
	v.SetDefault("sources.europepmc.rate_limit", 5.0)
	v.SetDefault("sources.europepmc.burst_size", 5)
	v.SetDefault("sources.europepmc.max_results", 100)

	// Source defaults - Crossref
	v.SetDefault("sources.crossref.enabled", true)
	v.SetDefault("sources.crossref.base_url", "https://api.crossref.org")
	v.SetDefault("sources.crossref.timeout", "30s")
	v.SetDefault("sources.crossref.rate_limit", 5.0)
	v.SetDefault("sources.crossref.burst_size", 5)
	v.SetDefault("sources.crossref.max_results", 100)

	// Orchestrator defaults
	v.SetDefault("orchestrator.deadline", "30s")
	v.SetDefault("orchestrator.max_results", 50)
	v.SetDefault("orchestrator.resolve_full_text", false)

	// Cache defaults
	v.SetDefault("cache.ttl", "15m")
	v.SetDefault("cache.max_entries", 1024)

	// Dedup defaults
	v.SetDefault("dedup.title_similarity_threshold", 0.90)
	v.SetDefault("dedup.source_priority", []string{"geo", "europepmc", "crossref"})

	// Full-text defaults
	v.SetDefault("fulltext.strategy_order", []string{"metadata", "unpaywall", "europepmc", "scrape"})
	v.SetDefault("fulltext.global_concurrency", 8)
	v.SetDefault("fulltext.strategy_timeout", "20s")
	v.SetDefault("fulltext.retry_backoff", "500ms")
	v.SetDefault("fulltext.http_timeout", "30s")
	v.SetDefault("fulltext.unpaywall_base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("fulltext.unpaywall_email", "")
	v.SetDefault("fulltext.europepmc_render_url", "https://europepmc.org/articles/%s?pdf=render")
	v.SetDefault("fulltext.doi_resolver_url", "https://doi.org")
	v.SetDefault("fulltext.rate_limits", map[string]float64{
		"metadata":  2.0,
		"unpaywall": 5.0,
		"europepmc": 5.0,
		"scrape":    1.0,
	})

	// Store defaults
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", "discovery.db")

	// Breaker defaults
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.probe_requests", 1)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if !c.Sources.GEO.Enabled && !c.Sources.EuropePMC.Enabled && !c.Sources.Crossref.Enabled {
		return fmt.Errorf("at least one source must be enabled")
	}
	for name, src := range map[string]SourceConfig{
		"geo":       c.Sources.GEO,
		"europepmc": c.Sources.EuropePMC,
		"crossref":  c.Sources.Crossref,
	} {
		if !src.Enabled {
			continue
		}
		if src.RateLimit <= 0 {
			return fmt.Errorf("source %s: rate_limit must be positive", name)
		}
		if src.MaxResults <= 0 {
			return fmt.Errorf("source %s: max_results must be positive", name)
		}
	}

	if c.Orchestrator.Deadline <= 0 {
		return fmt.Errorf("orchestrator deadline must be positive")
	}
	if c.Orchestrator.MaxResults <= 0 {
		return fmt.Errorf("orchestrator max_results must be positive")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive")
	}

	if c.Dedup.TitleSimilarityThreshold < 0 || c.Dedup.TitleSimilarityThreshold > 1 {
		return fmt.Errorf("dedup title_similarity_threshold must be between 0 and 1")
	}

	if c.FullText.GlobalConcurrency <= 0 {
		return fmt.Errorf("fulltext global_concurrency must be positive")
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store path is required when store is enabled")
	}

	return nil
}
