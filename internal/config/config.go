package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "HEALTHBOX"

	BoostPolicyFail = "fail"
	BoostPolicyOmit = "omit"
)

type Config struct {
	Port     string        `mapstructure:"port"`
	LogLevel string        `mapstructure:"log_level"`
	DB       DBConfig      `mapstructure:"db"`
	Device   DeviceConfig  `mapstructure:"device"`
	Poll     PollConfig    `mapstructure:"poll"`
	History  HistoryConfig `mapstructure:"history"`
	Auth     AuthConfig    `mapstructure:"auth"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type DeviceConfig struct {
	Host   string `mapstructure:"host"`
	APIKey string `mapstructure:"api_key"`
}

type PollConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	BoostFailurePolicy string        `mapstructure:"boost_failure_policy"`
}

type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Retention bounds how long readings are kept; zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

type AuthConfig struct {
	SigningKey  string        `mapstructure:"signing_key"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	AllowSignUp bool          `mapstructure:"allow_sign_up"`
}

type MQTTConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Broker          string `mapstructure:"broker"`
	ClientID        string `mapstructure:"client_id"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	DiscoveryPrefix string `mapstructure:"discovery_prefix"`
	TopicPrefix     string `mapstructure:"topic_prefix"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("db.path", "healthbox.db")
	v.SetDefault("device.host", "")
	v.SetDefault("device.api_key", "")
	v.SetDefault("poll.interval", 5*time.Second)
	v.SetDefault("poll.boost_failure_policy", BoostPolicyFail)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.retention", 7*24*time.Hour)
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", time.Hour)
	v.SetDefault("auth.allow_sign_up", true)
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "healthbox-bridge")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.discovery_prefix", "homeassistant")
	v.SetDefault("mqtt.topic_prefix", "healthbox")
	v.SetDefault("metrics.enabled", true)
}

// Load reads the config file (configs/config.yml when path is empty) and
// applies HEALTHBOX_* environment overrides, e.g. HEALTHBOX_DEVICE_HOST.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("configs")
		v.SetConfigName("config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	return cfg, cfg.Validate()
}

func (c *Config) normalize() {
	c.Device.Host = strings.TrimSpace(c.Device.Host)
	c.Device.APIKey = strings.TrimSpace(c.Device.APIKey)
	c.Poll.BoostFailurePolicy = strings.ToLower(strings.TrimSpace(c.Poll.BoostFailurePolicy))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

func (c Config) Validate() error {
	if c.Device.Host == "" {
		return errors.New("device.host is required")
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval)
	}
	switch c.Poll.BoostFailurePolicy {
	case BoostPolicyFail, BoostPolicyOmit:
	default:
		return fmt.Errorf("poll.boost_failure_policy must be %q or %q, got %q", BoostPolicyFail, BoostPolicyOmit, c.Poll.BoostFailurePolicy)
	}
	if strings.TrimSpace(c.Auth.SigningKey) == "" {
		return errors.New("auth.signing_key is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative, got %s", c.History.Retention)
	}
	if c.MQTT.Enabled && strings.TrimSpace(c.MQTT.Broker) == "" {
		return errors.New("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}
