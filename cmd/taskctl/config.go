package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      string        `mapstructure:"server"`
	SessionFile string        `mapstructure:"session_file"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Refresh     time.Duration `mapstructure:"refresh"`
}

func defaultSessionFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskctl-session.yaml"
	}
	return filepath.Join(home, ".taskctl", "session.yaml")
}

// LoadConfig reads ~/.taskctl.yaml (or path when given) and TASKCTL_*
// environment variables over the defaults. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server", "http://localhost:8080")
	v.SetDefault("session_file", defaultSessionFile())
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("refresh", 30*time.Second)

	v.SetEnvPrefix("TASKCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".taskctl.yaml")
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
