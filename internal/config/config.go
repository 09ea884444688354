// Package config loads settings from environment variables and an optional
// config file.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "PUNCHCLOCK"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Database struct {
		Driver string
		Path   string
		DSN    string
	}
	Server struct {
		Addr string
	}
	Auth struct {
		JWTSecret string
	}
	User struct {
		ID string
	}
	Log struct {
		Level string
		File  string
	}
	Storage struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
	Stats struct {
		Days int
	}
	Goal struct {
		Daily int64
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	loadDotEnv(".env")
	return load(viper.New(), ".")
}

func load(v *viper.Viper, configDir string) (Config, error) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir := defaultDataDir()
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", filepath.Join(dataDir, "punchclock.db"))
	v.SetDefault("database.dsn", "")
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("user.id", "local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", filepath.Join(dataDir, "punchclock.log"))
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "punchclock-exports")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("stats.days", 7)
	v.SetDefault("goal.daily", 8*3600)

	v.SetConfigName("config")
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that every mode depends on.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "mysql":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Stats.Days <= 0 {
		return fmt.Errorf("stats.days must be positive")
	}
	if c.Goal.Daily < 0 {
		return fmt.Errorf("goal.daily must not be negative")
	}
	return nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(dir, "punchclock")
}

// loadDotEnv exports KEY=VALUE lines from path without overriding variables
// that are already set.
func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}

		key := strings.TrimSpace(line[:i])
		value := strings.Trim(strings.TrimSpace(line[i+1:]), `"'`)
		if key == "" {
			continue
		}

		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
}
