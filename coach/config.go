package coach

import (
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/vovakirdan/coachstream/retry"
)

// Config controls how the SDK connects.
type Config struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	Token            string        `mapstructure:"token" yaml:"token,omitempty"` // sent as a bearer token on dial
	ConversationID   string        `mapstructure:"conversation_id" yaml:"conversation_id,omitempty"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	ReadLimit        int64         `mapstructure:"read_limit" yaml:"read_limit,omitempty"` // max inbound frame bytes, 0 for the default
	Retry            RetryConfig   `mapstructure:"retry" yaml:"retry"`
	SignalTypes      []string      `mapstructure:"signal_types" yaml:"signal_types,omitempty"`
	StrictTypes      bool          `mapstructure:"strict_types" yaml:"strict_types"`
}

// RetryConfig mirrors retry.Options for dialing.
type RetryConfig struct {
	MaxRetries int             `mapstructure:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration   `mapstructure:"base_delay" yaml:"base_delay"`
	Delays     []time.Duration `mapstructure:"delays" yaml:"delays,omitempty"`
}

// Options converts the config into retry options.
func (r RetryConfig) Options() []retry.Option {
	opts := []retry.Option{
		retry.WithMaxRetries(r.MaxRetries),
		retry.WithBaseDelay(r.BaseDelay),
	}
	if len(r.Delays) > 0 {
		opts = append(opts, retry.WithDelays(r.Delays...))
	}
	return opts
}

// DefaultConfig returns sensible defaults.
// Set a timeout to 0 to disable it.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      0, // replies can pause for a long time between chunks
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		Retry: RetryConfig{
			MaxRetries: retry.DefaultMaxRetries,
			BaseDelay:  retry.DefaultBaseDelay,
		},
	}
}

// Validate checks that the config can be used to connect.
func (c Config) Validate() error {
	if c.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return WrapError(ErrorInvalidConfig, "invalid URL", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return NewError(ErrorInvalidConfig, "unsupported URL scheme "+u.Scheme)
	}
	if c.Retry.MaxRetries < 0 {
		return NewError(ErrorInvalidConfig, "retry.max_retries must not be negative")
	}
	if c.HandshakeTimeout < 0 || c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.PingInterval < 0 {
		return NewError(ErrorInvalidConfig, "timeouts must not be negative")
	}
	return nil
}

// LoadConfig reads configuration from an optional YAML file and COACH_*
// environment variables on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("coach")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("url", cfg.URL)
	v.SetDefault("token", cfg.Token)
	v.SetDefault("conversation_id", cfg.ConversationID)
	v.SetDefault("handshake_timeout", cfg.HandshakeTimeout)
	v.SetDefault("read_timeout", cfg.ReadTimeout)
	v.SetDefault("write_timeout", cfg.WriteTimeout)
	v.SetDefault("ping_interval", cfg.PingInterval)
	v.SetDefault("read_limit", cfg.ReadLimit)
	v.SetDefault("retry.max_retries", cfg.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", cfg.Retry.BaseDelay)
	v.SetDefault("retry.delays", cfg.Retry.Delays)
	v.SetDefault("signal_types", cfg.SignalTypes)
	v.SetDefault("strict_types", cfg.StrictTypes)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}
