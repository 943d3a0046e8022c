// Package config provides configuration management for the HAI-Net seed node.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the seed node.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Runtime  RuntimeConfig  `mapstructure:"runtime"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Guardian GuardianConfig `mapstructure:"guardian"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Prompts  PromptsConfig  `mapstructure:"prompts"`
	Peers    PeersConfig    `mapstructure:"peers"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// RuntimeConfig holds the agent orchestration runtime limits.
type RuntimeConfig struct {
	MaxAgents           int `mapstructure:"maxAgents"`
	CycleTimeout        int `mapstructure:"cycleTimeout"`        // in seconds
	ToolTimeout         int `mapstructure:"toolTimeout"`         // in seconds
	HistoryCap          int `mapstructure:"historyCap"`          // messages retained per agent
	HeartbeatInterval   int `mapstructure:"heartbeatInterval"`   // in seconds
	MaxConcurrentCycles int `mapstructure:"maxConcurrentCycles"` // across all agents
}

// LLMConfig holds the local LLM backend configuration.
// The default base URL targets an OpenAI-compatible local server (Ollama, LM Studio).
type LLMConfig struct {
	BaseURL         string  `mapstructure:"baseUrl"`
	APIKey          string  `mapstructure:"apiKey"`
	Model           string  `mapstructure:"model"`
	Temperature     float64 `mapstructure:"temperature"`
	MaxTokens       int     `mapstructure:"maxTokens"`       // completion budget
	MaxPromptTokens int     `mapstructure:"maxPromptTokens"` // history trim budget, 0 disables
	Timeout         int     `mapstructure:"timeout"`         // per-request, in seconds
}

// DatabaseConfig holds persistent storage configuration.
// The sqlite driver is the local-first default; postgres is opt-in.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite, postgres
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// GuardianConfig holds constitutional compliance configuration.
type GuardianConfig struct {
	PolicyPath      string `mapstructure:"policyPath"`      // deny-pattern policy file
	ReviewTimeout   int    `mapstructure:"reviewTimeout"`   // in milliseconds
	MonitorInterval int    `mapstructure:"monitorInterval"` // in seconds
	AutoRemediate   bool   `mapstructure:"autoRemediate"`
}

// MemoryConfig holds the agent memory store configuration.
type MemoryConfig struct {
	Backend         string `mapstructure:"backend"`         // store, vector
	VectorPath      string `mapstructure:"vectorPath"`      // chromem persistence directory
	EmbeddingModel  string `mapstructure:"embeddingModel"`  // embeddings model on the LLM server
	CleanupInterval int    `mapstructure:"cleanupInterval"` // in seconds
}

// PromptsConfig holds the prompt table location.
type PromptsConfig struct {
	Path string `mapstructure:"path"`
}

// PeersConfig holds local-network peer discovery consumption settings.
type PeersConfig struct {
	Enabled               bool       `mapstructure:"enabled"`
	ConstitutionalVersion string     `mapstructure:"constitutionalVersion"`
	Static                []PeerSeed `mapstructure:"static"`
}

// PeerSeed declares one neighbor in the config file. The static provider
// announces these at startup.
type PeerSeed struct {
	ID                    string   `mapstructure:"id"`
	Address               string   `mapstructure:"address"`
	Port                  int      `mapstructure:"port"`
	Role                  string   `mapstructure:"role"`
	Capabilities          []string `mapstructure:"capabilities"`
	ConstitutionalVersion string   `mapstructure:"constitutionalVersion"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// CycleTimeoutDuration returns the per-cycle wall-clock bound as a time.Duration.
func (r *RuntimeConfig) CycleTimeoutDuration() time.Duration {
	return time.Duration(r.CycleTimeout) * time.Second
}

// ToolTimeoutDuration returns the per-tool-call bound as a time.Duration.
func (r *RuntimeConfig) ToolTimeoutDuration() time.Duration {
	return time.Duration(r.ToolTimeout) * time.Second
}

// HeartbeatIntervalDuration returns the agent heartbeat period as a time.Duration.
func (r *RuntimeConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(r.HeartbeatInterval) * time.Second
}

// TimeoutDuration returns the LLM request timeout as a time.Duration.
func (l *LLMConfig) TimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// ReviewTimeoutDuration returns the guardian review ceiling as a time.Duration.
func (g *GuardianConfig) ReviewTimeoutDuration() time.Duration {
	return time.Duration(g.ReviewTimeout) * time.Millisecond
}

// MonitorIntervalDuration returns the guardian monitor period as a time.Duration.
func (g *GuardianConfig) MonitorIntervalDuration() time.Duration {
	return time.Duration(g.MonitorInterval) * time.Second
}

// CleanupIntervalDuration returns the memory cleanup period as a time.Duration.
func (m *MemoryConfig) CleanupIntervalDuration() time.Duration {
	return time.Duration(m.CleanupInterval) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
// Returns "json" if running in Kubernetes or other production environments.
// Returns "text" for terminal/development use (human-readable console format).
func detectDefaultLogFormat() string {
	// Check if running in Kubernetes
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}

	// Check for explicit production environment
	if env := os.Getenv("HAINET_ENV"); env == "production" || env == "prod" {
		return "json"
	}

	// Default to text format for terminal use (more readable than JSON)
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Runtime defaults
	v.SetDefault("runtime.maxAgents", 20)
	v.SetDefault("runtime.cycleTimeout", 120)
	v.SetDefault("runtime.toolTimeout", 30)
	v.SetDefault("runtime.historyCap", 1000)
	v.SetDefault("runtime.heartbeatInterval", 30)
	v.SetDefault("runtime.maxConcurrentCycles", 8)

	// LLM defaults - local-first, OpenAI-compatible server
	v.SetDefault("llm.baseUrl", "http://localhost:11434/v1")
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.model", "llama3.2")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.maxTokens", 2048)
	v.SetDefault("llm.maxPromptTokens", 8192)
	v.SetDefault("llm.timeout", 120)

	// Database defaults - sqlite keeps all data on the node
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "hainet.db")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "hainet")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "hainet")
	v.SetDefault("database.sslMode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "hainet-seed")
	v.SetDefault("nats.maxReconnects", 10)

	// Guardian defaults
	v.SetDefault("guardian.policyPath", "config/guardian.yaml")
	v.SetDefault("guardian.reviewTimeout", 1000)
	v.SetDefault("guardian.monitorInterval", 60)
	v.SetDefault("guardian.autoRemediate", true)

	// Memory defaults
	v.SetDefault("memory.backend", "store")
	v.SetDefault("memory.vectorPath", "")
	v.SetDefault("memory.embeddingModel", "nomic-embed-text")
	v.SetDefault("memory.cleanupInterval", 3600)

	// Prompts defaults
	v.SetDefault("prompts.path", "config/prompts.json")

	// Peers defaults
	v.SetDefault("peers.enabled", false)
	v.SetDefault("peers.constitutionalVersion", "1.0")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix HAINET_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory or /etc/hainet/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("HAINET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for snake_case env vars (camelCase config keys)
	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so we explicitly bind keys where env var naming differs from config key naming.
	_ = v.BindEnv("llm.baseUrl", "HAINET_LLM_BASE_URL")
	_ = v.BindEnv("llm.apiKey", "HAINET_LLM_API_KEY")
	_ = v.BindEnv("runtime.maxAgents", "HAINET_RUNTIME_MAX_AGENTS")
	_ = v.BindEnv("guardian.policyPath", "HAINET_GUARDIAN_POLICY_PATH")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/hainet/")

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
// In development mode (default), most fields are optional.
func validate(cfg *Config) error {
	var errs []string

	// Server validation - always required
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	// Runtime validation - the bounds the orchestrator relies on
	if cfg.Runtime.MaxAgents <= 0 {
		errs = append(errs, "runtime.maxAgents must be positive")
	}
	if cfg.Runtime.CycleTimeout <= 0 {
		errs = append(errs, "runtime.cycleTimeout must be positive")
	}
	if cfg.Runtime.ToolTimeout <= 0 {
		errs = append(errs, "runtime.toolTimeout must be positive")
	}
	if cfg.Runtime.HistoryCap <= 0 {
		errs = append(errs, "runtime.historyCap must be positive")
	}
	if cfg.Runtime.HeartbeatInterval <= 0 {
		errs = append(errs, "runtime.heartbeatInterval must be positive")
	}
	if cfg.Runtime.MaxConcurrentCycles <= 0 {
		errs = append(errs, "runtime.maxConcurrentCycles must be positive")
	}

	// LLM validation
	if cfg.LLM.BaseURL == "" {
		errs = append(errs, "llm.baseUrl is required")
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, "llm.model is required")
	}

	// Database validation
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Host == "" {
			errs = append(errs, "database.host is required for the postgres driver")
		}
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.User == "" {
			errs = append(errs, "database.user is required for the postgres driver")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the postgres driver")
		}
	default:
		errs = append(errs, "database.driver must be one of: sqlite, postgres")
	}

	// Memory validation
	validBackends := map[string]bool{"store": true, "vector": true}
	if !validBackends[cfg.Memory.Backend] {
		errs = append(errs, "memory.backend must be one of: store, vector")
	}
	if cfg.Memory.Backend == "vector" && cfg.Memory.EmbeddingModel == "" {
		errs = append(errs, "memory.embeddingModel is required for the vector backend")
	}

	// NATS validation - optional (uses in-memory event bus if not set)
	// No validation needed - empty URL means use in-memory

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
