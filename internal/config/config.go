// Package config loads and validates the gateway's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the Cratos gateway.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	LLM       LLMConfig       `yaml:"llm"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Tools     ToolsConfig     `yaml:"tools"`
	Policy    PolicyConfig    `yaml:"policy"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Memory    MemoryConfig    `yaml:"memory"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Personas  []PersonaConfig `yaml:"personas"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type DatabaseConfig struct {
	// URL selects the store: a postgres:// DSN uses lib/pq, a file path
	// uses the embedded sqlite driver, empty keeps everything in memory
	// (refused in production unless explicitly allowed, see Validate).
	URL             string        `yaml:"url"`
	MaxConnections  int           `yaml:"max_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type AuthConfig struct {
	JWTSecret   string         `yaml:"jwt_secret"`
	TokenExpiry time.Duration  `yaml:"token_expiry"`
	APIKeys     []APIKeyConfig `yaml:"api_keys"`
}

type APIKeyConfig struct {
	Key    string   `yaml:"key"` // stored value; compared as SHA-256
	UserID string   `yaml:"user_id"`
	Name   string   `yaml:"name"`
	Scopes []string `yaml:"scopes"`
}

type SessionConfig struct {
	DefaultAgentID string `yaml:"default_agent_id"`
	HistoryLimit   int    `yaml:"history_limit"`
}

type LLMConfig struct {
	DefaultProvider  string                    `yaml:"default_provider"`
	FallbackProvider string                    `yaml:"fallback_provider"`
	Providers        map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type ChannelsConfig struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Discord    DiscordConfig    `yaml:"discord"`
	Slack      SlackConfig      `yaml:"slack"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Mattermost MattermostConfig `yaml:"mattermost"`
	Nostr      NostrConfig      `yaml:"nostr"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

type DiscordConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	AppToken string `yaml:"app_token"`
}

type WhatsAppConfig struct {
	Enabled     bool   `yaml:"enabled"`
	SessionPath string `yaml:"session_path"`
}

type MatrixConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Homeserver  string `yaml:"homeserver"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	DeviceID    string `yaml:"device_id"`
}

type MattermostConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
}

type NostrConfig struct {
	Enabled    bool     `yaml:"enabled"`
	PrivateKey string   `yaml:"private_key"`
	Relays     []string `yaml:"relays"`
}

type ToolsConfig struct {
	Exec ExecToolConfig `yaml:"exec"`
}

type ExecToolConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Workspace      string        `yaml:"workspace"`
	MaxTimeoutSecs int           `yaml:"max_timeout_secs"`
	Sandbox        SandboxConfig `yaml:"sandbox"`
}

type SandboxConfig struct {
	// Backend routes exec through a container runtime when set (e.g.
	// "docker"); empty runs on the host.
	Backend string `yaml:"backend"`
	Image   string `yaml:"image"`
}

type PolicyConfig struct {
	Rules []PolicyRuleConfig `yaml:"rules"`
}

type PolicyRuleConfig struct {
	Level       string `yaml:"level"`        // sandbox|agent|global|provider|group|user
	Scope       string `yaml:"scope"`        // "*" or a literal
	ToolPattern string `yaml:"tool_pattern"` // literal, "prefix_*", or "*"
	Action      string `yaml:"action"`       // allow|deny|require_approval
}

type ApprovalConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type SchedulerConfig struct {
	Enabled           bool          `yaml:"enabled"`
	CheckInterval     time.Duration `yaml:"check_interval"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	DrainTimeout      time.Duration `yaml:"drain_timeout"`
	OneShotGraceSkew  time.Duration `yaml:"one_shot_grace"`
	DefaultMaxRetries int           `yaml:"default_max_retries"`
}

type MemoryConfig struct {
	Enabled    bool             `yaml:"enabled"`
	IndexPath  string           `yaml:"index_path"` // on-disk vector index location
	TopK       int              `yaml:"top_k"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

type EmbeddingsConfig struct {
	Provider string `yaml:"provider"` // openai or ollama
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

type DispatchConfig struct {
	MaxParallel int   `yaml:"max_parallel"`
	MaxDepth    int   `yaml:"max_depth"`
	TokenBudget int64 `yaml:"token_budget"`
}

type PersonaConfig struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"system_prompt"`
	Model        string `yaml:"model"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|text
}

type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"` // OTLP gRPC collector, e.g. localhost:4317
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Load reads, expands, parses, defaults, and validates the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses raw YAML config bytes, applying env expansion, defaults,
// and validation.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(expanded))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Auth.TokenExpiry == 0 {
		c.Auth.TokenExpiry = 24 * time.Hour
	}
	if c.Session.DefaultAgentID == "" {
		c.Session.DefaultAgentID = "main"
	}
	if c.Session.HistoryLimit == 0 {
		c.Session.HistoryLimit = 50
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "anthropic"
	}
	if c.Approval.Timeout == 0 {
		c.Approval.Timeout = 5 * time.Minute
	}
	if c.Scheduler.CheckInterval == 0 {
		c.Scheduler.CheckInterval = time.Minute
	}
	if c.Scheduler.MaxConcurrent == 0 {
		c.Scheduler.MaxConcurrent = 4
	}
	if c.Scheduler.RetryDelay == 0 {
		c.Scheduler.RetryDelay = 30 * time.Second
	}
	if c.Scheduler.DrainTimeout == 0 {
		c.Scheduler.DrainTimeout = 30 * time.Second
	}
	if c.Scheduler.OneShotGraceSkew == 0 {
		c.Scheduler.OneShotGraceSkew = 5 * time.Minute
	}
	if c.Scheduler.DefaultMaxRetries == 0 {
		c.Scheduler.DefaultMaxRetries = 2
	}
	if c.Memory.TopK == 0 {
		c.Memory.TopK = 5
	}
	if c.Tools.Exec.MaxTimeoutSecs == 0 {
		c.Tools.Exec.MaxTimeoutSecs = 60
	}
	if c.Dispatch.MaxParallel == 0 {
		c.Dispatch.MaxParallel = 4
	}
	if c.Dispatch.MaxDepth == 0 {
		c.Dispatch.MaxDepth = 3
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate rejects configurations that cannot start. In production
// (CRATOS_ENV=production) the ephemeral in-memory store is refused
// unless CRATOS_ALLOW_MEMORY_STORE_IN_PRODUCTION=1 explicitly allows it.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort)
	}
	for i, rule := range c.Policy.Rules {
		switch rule.Action {
		case "allow", "deny", "require_approval":
		default:
			return fmt.Errorf("policy.rules[%d].action %q is not allow/deny/require_approval", i, rule.Action)
		}
	}
	if os.Getenv("CRATOS_ENV") == "production" && c.Database.URL == "" {
		if os.Getenv("CRATOS_ALLOW_MEMORY_STORE_IN_PRODUCTION") != "1" {
			return fmt.Errorf("database.url is required in production; set CRATOS_ALLOW_MEMORY_STORE_IN_PRODUCTION=1 to override (data will not survive restarts)")
		}
	}
	return nil
}
