package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Addr         string        `mapstructure:"addr"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
	} `mapstructure:"server"`

	Backend struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"backend"`

	Auth struct {
		Enable bool   `mapstructure:"enable"`
		Token  string `mapstructure:"token"`
	} `mapstructure:"auth"`

	App struct {
		ExternalURL string `mapstructure:"external_url"`
		PublicDir   string `mapstructure:"public_dir"`
		DBPath      string `mapstructure:"db_path"`
	} `mapstructure:"app"`

	Generator struct {
		PixelWidth int  `mapstructure:"pixel_width"`
		Border     bool `mapstructure:"border"`
	} `mapstructure:"generator"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
}

// Load reads the optional yaml config file and applies QRGATE_* environment
// overrides (QRGATE_BACKEND_BASE_URL and friends). A missing file is fine,
// the defaults describe a localhost deployment.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.addr", ":8088")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 15*time.Second)
	v.SetDefault("auth.enable", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("app.external_url", "")
	v.SetDefault("app.public_dir", "./temp")
	v.SetDefault("app.db_path", "qrgate.db")
	v.SetDefault("generator.pixel_width", 256)
	v.SetDefault("generator.border", true)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("QRGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("qrgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Auth.Enable && c.Auth.Token == "" {
		return fmt.Errorf("auth.token is required when auth is enabled")
	}
	if c.Generator.PixelWidth <= 0 {
		return fmt.Errorf("generator.pixel_width must be positive")
	}
	return nil
}

// PublicBaseURL is the prefix for published image URLs, the external URL when
// configured, otherwise the local listen address.
func (c *Config) PublicBaseURL() string {
	if c.App.ExternalURL != "" {
		return strings.TrimRight(c.App.ExternalURL, "/")
	}
	return "http://localhost" + c.Server.Addr
}
