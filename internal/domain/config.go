package domain

import "time"

// Config holds the complete risk service configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  int    `mapstructure:"read_timeout" validate:"gte=0"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout" validate:"gte=0"` // seconds
	BasePath     string `mapstructure:"base_path" validate:"startswith=/"`
}

// GatewayConfig holds settings for the remote business partner API.
type GatewayConfig struct {
	// Type is the gateway type: "odata" or "sandbox"
	Type string `mapstructure:"type" validate:"oneof=odata sandbox"`

	// BaseURL of the API_BUSINESS_PARTNER service (odata)
	BaseURL string `mapstructure:"base_url" validate:"required_if=Type odata"`

	// APIKey is sent in the apikey header of every request.
	// Read once at startup, usually from the apikey environment variable.
	APIKey string `mapstructure:"apikey"`

	Timeout time.Duration `mapstructure:"timeout"`

	// SandboxFixture is a YAML file with partner records (sandbox)
	SandboxFixture string `mapstructure:"sandbox_fixture"`

	// Response caching, off unless the cache is configured too
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`

	// Endpoint is the OTLP gRPC collector address (host:port)
	Endpoint      string  `mapstructure:"endpoint"`
	Insecure      bool    `mapstructure:"insecure"`
	SamplingRatio float64 `mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns a configuration that runs without external systems:
// SQLite storage, no cache and the sandbox partner gateway.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         4004,
			ReadTimeout:  30,
			WriteTimeout: 30,
			BasePath:     "/odata/v4/risk",
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./riskservice.db",
		},
		Cache: CacheConfig{
			Type:         "none",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		Gateway: GatewayConfig{
			Type:     "sandbox",
			Timeout:  30 * time.Second,
			CacheTTL: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:       false,
			ServiceName:   "riskservice",
			Endpoint:      "localhost:4317",
			Insecure:      true,
			SamplingRatio: 1.0,
		},
	}
}

// ProductionConfig returns a configuration backed by PostgreSQL, Redis and
// the remote API_BUSINESS_PARTNER service.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "riskservice",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       30 * time.Second,
	}
	cfg.Gateway.Type = "odata"
	cfg.Gateway.BaseURL = "https://sandbox.api.sap.com/s4hanacloud/sap/opu/odata/sap/API_BUSINESS_PARTNER"
	cfg.Tracing.Enabled = true
	cfg.Tracing.Insecure = false
	cfg.Tracing.SamplingRatio = 0.1
	return cfg
}
