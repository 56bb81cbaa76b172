// Package config resolves service settings from flags, environment, an
// optional .env file and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"nemprice.org/internal/obs"
)

// Name is used for the config file name and the env prefix.
const Name = "nemprice"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the resolved service configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	GRPCAddr   string `mapstructure:"grpc_addr"`

	JWTSecret string `mapstructure:"jwt_secret"`
	Users     string `mapstructure:"users"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`

	DataPath  string `mapstructure:"data_path"`
	WatchData bool   `mapstructure:"watch_data"`
	Preload   bool   `mapstructure:"preload"`

	LoginRateBurst  int     `mapstructure:"login_rate_burst"`
	LoginRatePerSec float64 `mapstructure:"login_rate_per_sec"`
	MaxBodyBytes    int64   `mapstructure:"max_body_bytes"`
}

var defaults = map[string]any{
	"listen_addr":        ":8080",
	"grpc_addr":          "",
	"jwt_secret":         "",
	"users":              "",
	"username":           "",
	"password":           "",
	"data_path":          "data/prices.csv",
	"watch_data":         false,
	"preload":            true,
	"login_rate_burst":   10,
	"login_rate_per_sec": 1.0,
	"max_body_bytes":     int64(1 << 20),
}

// InstallFlags adds the non-secret settings as flags on cmd. Secrets are
// only read from the environment or a config file.
func InstallFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("config", "", "use a specific configuration file")
	f.String("env-file", "", "load environment variables from this file (default .env if present)")
	f.String("listen-addr", defaults["listen_addr"].(string), "HTTP listen address")
	f.String("grpc-addr", "", "gRPC health listen address (disabled when empty)")
	f.String("data-path", defaults["data_path"].(string), "price dataset CSV file")
	f.Bool("watch-data", false, "reload the dataset when its file changes")
	f.Bool("preload", true, "load the dataset at startup")
	f.Int("login-rate-burst", defaults["login_rate_burst"].(int), "login attempts allowed in a burst per client IP")
	f.Float64("login-rate-per-sec", defaults["login_rate_per_sec"].(float64), "login attempts refilled per second per client IP")
	f.Int64("max-body-bytes", defaults["max_body_bytes"].(int64), "maximum request body size")
}

// Load resolves the configuration for cmd. Precedence is flags, then
// environment (including .env), then the config file, then defaults.
func Load(cmd *cobra.Command, vip *viper.Viper) (Config, error) {
	if err := loadDotEnv(cmd); err != nil {
		return Config{}, err
	}

	for k, v := range defaults {
		vip.SetDefault(k, v)
	}

	if err := readConfigFile(cmd, vip); err != nil {
		return Config{}, err
	}

	prefix := strings.ToUpper(Name) + "_"
	for k := range defaults {
		if err := vip.BindEnv(k, prefix+strings.ToUpper(k)); err != nil {
			return Config{}, fmt.Errorf("could not bind environment variable: %w", err)
		}
		if fl := cmd.Flags().Lookup(strings.ReplaceAll(k, "_", "-")); fl != nil {
			if err := vip.BindPFlag(k, fl); err != nil {
				return Config{}, fmt.Errorf("could not bind flag %s: %w", fl.Name, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode configuration: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func readConfigFile(cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(Name)
		vip.AddConfigPath(".")
		vip.AddConfigPath("/etc/" + Name)
	}
	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if errors.As(err, &e) {
			return nil
		}
		return fmt.Errorf("invalid configuration file: %w", err)
	}
	obs.LogEvent("info", "config_file_loaded", map[string]any{"file": vip.ConfigFileUsed()})
	return nil
}

func (c *Config) normalize() {
	c.ListenAddr = strings.TrimSpace(c.ListenAddr)
	c.GRPCAddr = strings.TrimSpace(c.GRPCAddr)
	c.DataPath = strings.TrimSpace(c.DataPath)
}

// Validate checks the settings that do not belong to a specific service.
// Credentials and the signing secret are validated by auth.New.
func (c Config) Validate() error {
	switch {
	case c.ListenAddr == "":
		return fmt.Errorf("%w: listen_addr is required", ErrInvalid)
	case c.DataPath == "":
		return fmt.Errorf("%w: data_path is required", ErrInvalid)
	case c.LoginRateBurst <= 0:
		return fmt.Errorf("%w: login_rate_burst must be > 0", ErrInvalid)
	case c.LoginRatePerSec <= 0:
		return fmt.Errorf("%w: login_rate_per_sec must be > 0", ErrInvalid)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be > 0", ErrInvalid)
	}
	return nil
}
