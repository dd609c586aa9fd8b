package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config captures runtime settings for the exray client.
type Config struct {
	APIBaseURL      string        `mapstructure:"api_base_url"`
	DataDir         string        `mapstructure:"data_dir"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	LogInterval     time.Duration `mapstructure:"log_interval"`
	LogTail         int           `mapstructure:"log_tail"`
	AutoRefresh     bool          `mapstructure:"auto_refresh"`
}

// Load reads configuration from defaults, an optional exray.yaml in
// the working directory or ~/.exray, and EXRAY_* environment
// variables. A .env file in the working directory is honored first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("exray")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(homeDir, ".exray"))
	v.SetEnvPrefix("EXRAY")
	v.AutomaticEnv()

	v.SetDefault("api_base_url", "http://localhost:8000")
	v.SetDefault("data_dir", filepath.Join(homeDir, ".exray"))
	v.SetDefault("request_timeout", 10*time.Second)
	v.SetDefault("refresh_interval", 20*time.Second)
	v.SetDefault("log_interval", 12*time.Second)
	v.SetDefault("log_tail", 200)
	v.SetDefault("auto_refresh", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o755)
}

// DBPath is the local submission-history database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "exray.db")
}

// LogPath is where the TUI writes its debug log; the terminal itself
// belongs to the UI.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "exray.log")
}
