package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	InstanceID        string        `mapstructure:"instance_id" yaml:"instance_id"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	Auth   AuthConfig   `mapstructure:"auth" yaml:"auth"`
	WS     WSConfig     `mapstructure:"ws" yaml:"ws"`
	Broker BrokerConfig `mapstructure:"broker" yaml:"broker"`
	Typing TypingConfig `mapstructure:"typing" yaml:"typing"`
}

// AuthConfig configures handshake authentication.
type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	// JWTRequired rejects handshakes that carry no token at all.
	JWTRequired bool   `mapstructure:"jwt_required" yaml:"jwt_required"`
	CookieName  string `mapstructure:"cookie_name" yaml:"cookie_name"`
}

// WSConfig configures the WebSocket transport.
type WSConfig struct {
	MaxMessageBytes   int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	PingInterval      time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout" yaml:"pong_timeout"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	InboundRatePerSec float64       `mapstructure:"inbound_rate_per_sec" yaml:"inbound_rate_per_sec"`
	InboundBurst      int           `mapstructure:"inbound_burst" yaml:"inbound_burst"`
}

// Broker kinds.
const (
	BrokerNone  = ""
	BrokerRedis = "redis"
	BrokerNATS  = "nats"
)

// BrokerConfig selects the cross-instance fan-out broker.
// Kind is one of "", "redis", "nats"; empty keeps delivery in-process.
type BrokerConfig struct {
	Kind      string `mapstructure:"kind" yaml:"kind"`
	RedisAddr string `mapstructure:"redis_addr" yaml:"redis_addr"`
	NATSURL   string `mapstructure:"nats_url" yaml:"nats_url"`
	Channel   string `mapstructure:"channel" yaml:"channel"`
}

// TypingConfig limits typing signals per sender/receiver pair.
// A zero RatePerSec disables limiting.
type TypingConfig struct {
	RatePerSec float64 `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
	Burst      int     `mapstructure:"burst" yaml:"burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		DatabasePath:      "wirechat.db",
		Auth: AuthConfig{
			JWTIssuer:  "wirechat",
			CookieName: "token",
		},
		WS: WSConfig{
			MaxMessageBytes:   1 << 16,
			PingInterval:      25 * time.Second,
			PongTimeout:       20 * time.Second,
			InboundRatePerSec: 20,
			InboundBurst:      40,
		},
		Broker: BrokerConfig{
			RedisAddr: "localhost:6379",
			NATSURL:   "nats://localhost:4222",
			Channel:   "wirechat.events",
		},
		Typing: TypingConfig{
			RatePerSec: 2,
			Burst:      3,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.InstanceID != "" {
		c.InstanceID = other.InstanceID
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Auth.JWTSecret != "" {
		c.Auth.JWTSecret = other.Auth.JWTSecret
	}
	if other.Broker.Kind != "" {
		c.Broker.Kind = other.Broker.Kind
	}
}
