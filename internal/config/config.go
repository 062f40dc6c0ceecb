// Package config loads and validates the platform's runtime configuration:
// database connection, background worker-pool tuning, the memory-service
// client, and the HTTP/WS server. Values come from an optional YAML file,
// environment variables override them, then defaults are applied and
// validated.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// JobEngineConfig tunes the JobEngine worker pool.
type JobEngineConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	JobTimeoutMinutes int           `yaml:"job_timeout_minutes"`
	MaxWorkers        int           `yaml:"max_workers"`
}

func (c *JobEngineConfig) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.JobTimeoutMinutes == 0 {
		c.JobTimeoutMinutes = 30
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 5
	}
}

// PollerConfig tunes the InstancePoller worker pool.
type PollerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWorkers   int           `yaml:"max_workers"`
}

func (c *PollerConfig) SetDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 3
	}
}

// MemoryConfig configures the external episodic-memory service client.
type MemoryConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *MemoryConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:1995"
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// ServerConfig configures the thin HTTP/WS transport.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	AdminSecretKey  string `yaml:"admin_secret_key"`
	BaseWorkingPath string `yaml:"base_working_path"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.BaseWorkingPath == "" {
		c.BaseWorkingPath = "./workspaces"
	}
}

// VectorStoreConfig selects and configures the optional similarity-search
// accelerator in front of Store.SemanticSearch.
type VectorStoreConfig struct {
	Backend string `yaml:"backend"` // "chromem" (default) or "qdrant"
	Qdrant  struct {
		Host   string `yaml:"host"`
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
		UseTLS bool   `yaml:"use_tls"`
	} `yaml:"qdrant"`
	Chromem struct {
		PersistPath string `yaml:"persist_path"`
		Compress    bool   `yaml:"compress"`
	} `yaml:"chromem"`
}

func (c *VectorStoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "chromem"
	}
	if c.Qdrant.Host == "" {
		c.Qdrant.Host = "localhost"
	}
	if c.Qdrant.Port == 0 {
		c.Qdrant.Port = 6334
	}
}

// QueueConfig configures the optional Redis-backed durable mirror of the
// JobEngine's in-flight claim set.
type QueueConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c *QueueConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "localhost:6379"
	}
}

// ObservabilityConfig configures tracing export and the Prometheus
// metrics endpoint.
type ObservabilityConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"` // not read by any component; spans go to stdout only at log_level debug
	MetricsAddr  string `yaml:"metrics_addr"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "agentctx-platform"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
}

// Config is the top-level, fully-resolved configuration object.
type Config struct {
	LogLevel      string              `yaml:"log_level"`
	LogFormat     string              `yaml:"log_format"`
	Database      DatabaseConfig      `yaml:"database"`
	JobEngine     JobEngineConfig     `yaml:"job_engine"`
	Poller        PollerConfig        `yaml:"poller"`
	Memory        MemoryConfig        `yaml:"memory"`
	Server        ServerConfig        `yaml:"server"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	Queue         QueueConfig         `yaml:"queue"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// SetDefaults applies defaults to every nested section.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	c.Database.SetDefaults()
	c.JobEngine.SetDefaults()
	c.Poller.SetDefaults()
	c.Memory.SetDefaults()
	c.Server.SetDefaults()
	c.VectorStore.SetDefaults()
	c.Queue.SetDefaults()
	c.Observability.SetDefaults()
}

// Validate checks the assembled config, short-circuiting on the first error.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	return nil
}

// Load reads an optional .env file (never failing if absent), then loads an
// optional YAML config file, then applies environment overrides, then
// applies defaults and validates the result.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	cfg := &Config{}
	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}
	applyEnvOverrides(cfg)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		// A full DSN overrides discrete fields entirely; callers that set
		// DATABASE_URL are expected to use a postgres-style DSN.
		cfg.Database.Driver = "postgres"
		cfg.Database.Database = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Database = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.Username = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("MEMORY_BASE_URL"); v != "" {
		cfg.Memory.BaseURL = v
	}
	if v := os.Getenv("ADMIN_SECRET_KEY"); v != "" {
		cfg.Server.AdminSecretKey = v
	}
	if v := os.Getenv("BASE_WORKING_PATH"); v != "" {
		cfg.Server.BaseWorkingPath = v
	}
}
