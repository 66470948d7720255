package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath       = "config.toml"
	DefaultHTTPAddr         = ":8080"
	DefaultBodyLimitBytes   = 1 << 20
	DefaultPGHost           = "127.0.0.1"
	DefaultPGPort           = 5432
	DefaultPGUser           = "postgres"
	DefaultPGDatabase       = "chatgate"
	DefaultPGSSLMode        = "disable"
	DefaultChatModel        = "gpt-4o-mini"
	DefaultChatTimeout      = 30 * time.Second
	DefaultChatMaxTokens    = 1000
	DefaultChatTemperature  = 0.7
	DefaultSettingsTTL      = 5 * time.Minute
	DefaultKnowledgeTTL     = 10 * time.Minute
	DefaultTokenMargin      = 5 * time.Minute
	DefaultKnowledgeLength  = 12000
	DefaultSourceLimit      = 10
	DefaultQueueBaseURL     = "https://qstash.upstash.io"
	DefaultQueueRetries     = 3
	DefaultQueueTimeout     = 60 * time.Second
	DefaultPublishTimeout   = 5 * time.Second
	DefaultInlineTimeout    = 90 * time.Second
	DefaultTrackingTimeout  = 10 * time.Second
	DefaultPublicChatRate   = "60-M"
	DefaultJWTExpiresIn     = "24h"
	DefaultSweepSpec        = "@every 1m"
	DefaultMessengerVersion = "v18.0"
	DefaultWhatsAppVersion  = "v21.0"
)

type Config struct {
	Log       LogConfig       `toml:"log"`
	Server    ServerConfig    `toml:"server"`
	Admin     AdminConfig     `toml:"admin"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Store     StoreConfig     `toml:"store"`
	Cache     CacheConfig     `toml:"cache"`
	Knowledge KnowledgeConfig `toml:"knowledge"`
	Chat      ChatConfig      `toml:"chat"`
	Queue     QueueConfig     `toml:"queue"`
	Security  SecurityConfig  `toml:"security"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Tracking  TrackingConfig  `toml:"tracking"`
	Inline    InlineConfig    `toml:"inline"`
	Graph     GraphConfig     `toml:"graph"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr           string `toml:"addr"`
	PublicBaseURL  string `toml:"public_base_url"`
	BodyLimitBytes int64  `toml:"body_limit_bytes"`
}

type AdminConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
	// Disabled keeps bots and conversation records in memory.
	Disabled bool `toml:"disabled"`
}

// DSN renders the connection in URL form, accepted by both pgx and golang-migrate.
func (c PostgresConfig) DSN(scheme string) string {
	if scheme == "" {
		scheme = "postgres"
	}
	auth := c.User
	if c.Password != "" {
		auth += ":" + c.Password
	}
	return fmt.Sprintf("%s://%s@%s:%d/%s?sslmode=%s", scheme, auth, c.Host, c.Port, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type StoreConfig struct {
	SeedFile string `toml:"seed_file"`
}

type CacheConfig struct {
	SettingsTTL        Duration `toml:"settings_ttl"`
	KnowledgeTTL       Duration `toml:"knowledge_ttl"`
	TokenRefreshMargin Duration `toml:"token_refresh_margin"`
	SweepSpec          string   `toml:"sweep_spec"`
	// ChannelTTL overrides settings_ttl per channel, e.g. zalo = "30s".
	ChannelTTL map[string]Duration `toml:"channel_ttl"`
}

// ChannelTTLs returns the positive per-channel overrides.
func (c CacheConfig) ChannelTTLs() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.ChannelTTL))
	for kind, ttl := range c.ChannelTTL {
		if ttl.Duration > 0 {
			out[kind] = ttl.Duration
		}
	}
	return out
}

type KnowledgeConfig struct {
	MaxLength     int `toml:"max_length"`
	MaxDocuments  int `toml:"max_documents"`
	MaxURLs       int `toml:"max_urls"`
	MaxStructured int `toml:"max_structured"`
}

type ChatConfig struct {
	APIKey      string   `toml:"api_key"`
	Model       string   `toml:"model"`
	BaseURL     string   `toml:"base_url"`
	Timeout     Duration `toml:"timeout"`
	MaxTokens   int      `toml:"max_tokens"`
	Temperature float32  `toml:"temperature"`
}

type QueueConfig struct {
	Token             string   `toml:"token"`
	BaseURL           string   `toml:"base_url"`
	Retries           int      `toml:"retries"`
	Timeout           Duration `toml:"timeout"`
	PublishTimeout    Duration `toml:"publish_timeout"`
	Channels          []string `toml:"channels"`
	CurrentSigningKey string   `toml:"current_signing_key"`
	NextSigningKey    string   `toml:"next_signing_key"`
}

// UsesQueue reports whether inbound traffic of the channel goes through the queue.
func (c QueueConfig) UsesQueue(channel string) bool {
	channel = strings.ToLower(strings.TrimSpace(channel))
	for _, item := range c.Channels {
		if strings.ToLower(strings.TrimSpace(item)) == channel {
			return true
		}
	}
	return false
}

type SecurityConfig struct {
	// StrictSignatures rejects unsigned webhooks for bots that have no secret.
	StrictSignatures bool `toml:"strict_signatures"`
}

type RateLimitConfig struct {
	PublicChat string `toml:"public_chat"`
}

type TrackingConfig struct {
	Timeout Duration `toml:"timeout"`
}

type InlineConfig struct {
	Timeout Duration `toml:"timeout"`
}

// GraphConfig overrides third-party API endpoints, mostly for staging setups.
type GraphConfig struct {
	MessengerBaseURL string `toml:"messenger_base_url"`
	WhatsAppBaseURL  string `toml:"whatsapp_base_url"`
	ZaloAPIBaseURL   string `toml:"zalo_api_base_url"`
	ZaloOAuthURL     string `toml:"zalo_oauth_url"`
}

// Duration decodes TOML strings such as "5m" or "90s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Or returns the duration, or fallback when it is not positive.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d.Duration <= 0 {
		return fallback
	}
	return d.Duration
}

func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:           DefaultHTTPAddr,
			BodyLimitBytes: DefaultBodyLimitBytes,
		},
		Admin: AdminConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Redis: RedisConfig{
			Prefix: "chatgate:",
		},
		Cache: CacheConfig{
			SettingsTTL:        Duration{DefaultSettingsTTL},
			KnowledgeTTL:       Duration{DefaultKnowledgeTTL},
			TokenRefreshMargin: Duration{DefaultTokenMargin},
			SweepSpec:          DefaultSweepSpec,
		},
		Knowledge: KnowledgeConfig{
			MaxLength:     DefaultKnowledgeLength,
			MaxDocuments:  DefaultSourceLimit,
			MaxURLs:       DefaultSourceLimit,
			MaxStructured: DefaultSourceLimit,
		},
		Chat: ChatConfig{
			Model:       DefaultChatModel,
			Timeout:     Duration{DefaultChatTimeout},
			MaxTokens:   DefaultChatMaxTokens,
			Temperature: DefaultChatTemperature,
		},
		Queue: QueueConfig{
			BaseURL:        DefaultQueueBaseURL,
			Retries:        DefaultQueueRetries,
			Timeout:        Duration{DefaultQueueTimeout},
			PublishTimeout: Duration{DefaultPublishTimeout},
			Channels:       []string{"telegram"},
		},
		RateLimit: RateLimitConfig{
			PublicChat: DefaultPublicChatRate,
		},
		Tracking: TrackingConfig{
			Timeout: Duration{DefaultTrackingTimeout},
		},
		Inline: InlineConfig{
			Timeout: Duration{DefaultInlineTimeout},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	applyEnv(&cfg)

	return cfg, nil
}

// applyEnv lets deployments keep provider secrets out of the config file.
func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" && cfg.Chat.APIKey == "" {
		cfg.Chat.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QSTASH_TOKEN")); v != "" && cfg.Queue.Token == "" {
		cfg.Queue.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("QSTASH_CURRENT_SIGNING_KEY")); v != "" && cfg.Queue.CurrentSigningKey == "" {
		cfg.Queue.CurrentSigningKey = v
	}
	if v := strings.TrimSpace(os.Getenv("QSTASH_NEXT_SIGNING_KEY")); v != "" && cfg.Queue.NextSigningKey == "" {
		cfg.Queue.NextSigningKey = v
	}
}
