// Package config provides configuration management for the orchestration bus.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Transport    TransportConfig    `mapstructure:"transport"`
	Bridge       BridgeConfig       `mapstructure:"bridge"`
	Manager      ManagerConfig      `mapstructure:"manager"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Store        StoreConfig        `mapstructure:"store"`
	NATS         NATSConfig         `mapstructure:"nats"`
	LLM          LLMConfig          `mapstructure:"llm"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig holds the orchestrator HTTP surface configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// TransportConfig holds the unix-socket transport configuration.
type TransportConfig struct {
	SocketPath     string `mapstructure:"socketPath"`
	MaxFrameSize   int    `mapstructure:"maxFrameSize"`   // in bytes
	ConnectTimeout int    `mapstructure:"connectTimeout"` // in seconds
}

// BridgeConfig holds worker-bridge configuration.
type BridgeConfig struct {
	ServiceName        string `mapstructure:"serviceName"`
	ServicePort        int    `mapstructure:"servicePort"`
	HeartbeatInterval  int    `mapstructure:"heartbeatInterval"`  // in seconds
	HeartbeatRetryWait int    `mapstructure:"heartbeatRetryWait"` // in seconds
	MaxConcurrentTasks int    `mapstructure:"maxConcurrentTasks"` // 0 = unbounded
}

// ManagerConfig holds in-process agent manager configuration.
type ManagerConfig struct {
	MaxConcurrentTasks int `mapstructure:"maxConcurrentTasks"`
}

// ToolsConfig holds tool registry configuration.
type ToolsConfig struct {
	CodeExecTimeout int `mapstructure:"codeExecTimeout"` // in seconds
	DisplayWidth    int `mapstructure:"displayWidth"`
	DisplayHeight   int `mapstructure:"displayHeight"`
}

// ConversationConfig holds conversation cache configuration.
type ConversationConfig struct {
	MaxConversations int `mapstructure:"maxConversations"`
	ResponseTTL      int `mapstructure:"responseTtl"` // in seconds
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"` // memory, sqlite, postgres
	SQLitePath  string `mapstructure:"sqlitePath"`
	PostgresDSN string `mapstructure:"postgresDsn"`
}

// NATSConfig holds NATS messaging configuration. An empty URL selects the
// in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	APIKey  string `mapstructure:"apiKey"`
	BaseURL string `mapstructure:"baseUrl"`
	Model   string `mapstructure:"model"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// ConnectTimeoutDuration returns the transport connect timeout as a time.Duration.
func (t *TransportConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(t.ConnectTimeout) * time.Second
}

// HeartbeatIntervalDuration returns the heartbeat interval as a time.Duration.
func (b *BridgeConfig) HeartbeatIntervalDuration() time.Duration {
	return time.Duration(b.HeartbeatInterval) * time.Second
}

// HeartbeatRetryWaitDuration returns the heartbeat retry pause as a time.Duration.
func (b *BridgeConfig) HeartbeatRetryWaitDuration() time.Duration {
	return time.Duration(b.HeartbeatRetryWait) * time.Second
}

// CodeExecTimeoutDuration returns the code execution timeout as a time.Duration.
func (t *ToolsConfig) CodeExecTimeoutDuration() time.Duration {
	return time.Duration(t.CodeExecTimeout) * time.Second
}

// ResponseTTLDuration returns the response-cache TTL as a time.Duration.
func (c *ConversationConfig) ResponseTTLDuration() time.Duration {
	return time.Duration(c.ResponseTTL) * time.Second
}

// detectDefaultLogFormat returns "json" in production environments and
// "text" for terminal/development use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CARTRITA_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8002)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Transport defaults
	v.SetDefault("transport.socketPath", "/tmp/cartrita_mcp.sock")
	v.SetDefault("transport.maxFrameSize", 10*1024*1024)
	v.SetDefault("transport.connectTimeout", 10)

	// Bridge defaults
	v.SetDefault("bridge.serviceName", "worker-bridge")
	v.SetDefault("bridge.servicePort", 8003)
	v.SetDefault("bridge.heartbeatInterval", 30)
	v.SetDefault("bridge.heartbeatRetryWait", 5)
	v.SetDefault("bridge.maxConcurrentTasks", 0)

	// Manager defaults
	v.SetDefault("manager.maxConcurrentTasks", 10)

	// Tools defaults
	v.SetDefault("tools.codeExecTimeout", 30)
	v.SetDefault("tools.displayWidth", 1920)
	v.SetDefault("tools.displayHeight", 1080)

	// Conversation defaults
	v.SetDefault("conversation.maxConversations", 1000)
	v.SetDefault("conversation.responseTtl", 3600)

	// Store defaults
	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.sqlitePath", "cartrita.db")
	v.SetDefault("store.postgresDsn", "")

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "cartrita-orchestrator")
	v.SetDefault("nats.maxReconnects", 10)

	// LLM defaults
	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseUrl", "")
	v.SetDefault("llm.model", "gpt-4o")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the prefix CARTRITA_ with snake_case
// naming.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CARTRITA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings for env vars whose names differ from config keys.
	_ = v.BindEnv("llm.apiKey", "OPENAI_API_KEY", "CARTRITA_LLM_API_KEY")
	_ = v.BindEnv("transport.socketPath", "CARTRITA_SOCKET_PATH", "CARTRITA_TRANSPORT_SOCKET_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/cartrita/")

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
func validate(cfg *Config) error {
	var errs []string

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if cfg.Transport.SocketPath == "" {
		errs = append(errs, "transport.socketPath is required")
	}
	if cfg.Transport.MaxFrameSize <= 0 {
		errs = append(errs, "transport.maxFrameSize must be positive")
	}
	if cfg.Transport.ConnectTimeout <= 0 {
		errs = append(errs, "transport.connectTimeout must be positive")
	}

	if cfg.Bridge.HeartbeatInterval <= 0 {
		errs = append(errs, "bridge.heartbeatInterval must be positive")
	}
	if cfg.Manager.MaxConcurrentTasks <= 0 {
		errs = append(errs, "manager.maxConcurrentTasks must be positive")
	}
	if cfg.Conversation.MaxConversations <= 0 {
		errs = append(errs, "conversation.maxConversations must be positive")
	}

	switch cfg.Store.Backend {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, "store.backend must be one of: memory, sqlite, postgres")
	}
	if cfg.Store.Backend == "postgres" && cfg.Store.PostgresDSN == "" {
		errs = append(errs, "store.postgresDsn is required when store.backend is postgres")
	}

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
