package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	InstallFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

// clearEnv unsets every NEMPRICE_ variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for k := range defaults {
		key := "NEMPRICE_" + strings.ToUpper(k)
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(newCmd(t), viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Empty(t, cfg.GRPCAddr)
	assert.Equal(t, "data/prices.csv", cfg.DataPath)
	assert.True(t, cfg.Preload)
	assert.False(t, cfg.WatchData)
	assert.Equal(t, 10, cfg.LoginRateBurst)
	assert.InDelta(t, 1.0, cfg.LoginRatePerSec, 1e-9)
	assert.EqualValues(t, 1<<20, cfg.MaxBodyBytes)
}

func TestEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEMPRICE_JWT_SECRET", "s3cret")
	t.Setenv("NEMPRICE_USERS", "admin:secret,bob:pw")
	t.Setenv("NEMPRICE_DATA_PATH", "/srv/prices.csv")
	t.Setenv("NEMPRICE_WATCH_DATA", "true")
	t.Setenv("NEMPRICE_LOGIN_RATE_BURST", "3")

	cfg, err := Load(newCmd(t), viper.New())
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, "admin:secret,bob:pw", cfg.Users)
	assert.Equal(t, "/srv/prices.csv", cfg.DataPath)
	assert.True(t, cfg.WatchData)
	assert.Equal(t, 3, cfg.LoginRateBurst)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEMPRICE_LISTEN_ADDR", ":9000")

	cfg, err := Load(newCmd(t, "--listen-addr", ":7000", "--preload=false"), viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.False(t, cfg.Preload)
}

func TestConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nemprice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("jwt_secret: from-file\ndata_path: /data/file.csv\nlogin_rate_per_sec: 2.5\n"), 0o600))
	t.Setenv("NEMPRICE_DATA_PATH", "/data/env.csv")

	cfg, err := Load(newCmd(t, "--config", path), viper.New())
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, "/data/env.csv", cfg.DataPath, "environment wins over the file")
	assert.InDelta(t, 2.5, cfg.LoginRatePerSec, 1e-9)
}

func TestMissingConfigFileIsAnError(t *testing.T) {
	clearEnv(t)

	_, err := Load(newCmd(t, "--config", filepath.Join(t.TempDir(), "absent.yaml")), viper.New())
	require.Error(t, err)
}

func TestEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("NEMPRICE_JWT_SECRET=dotenv\nNEMPRICE_USERNAME=admin\n"), 0o600))

	cfg, err := Load(newCmd(t, "--env-file", path), viper.New())
	require.NoError(t, err)

	assert.Equal(t, "dotenv", cfg.JWTSecret)
	assert.Equal(t, "admin", cfg.Username)

	_, err = Load(newCmd(t, "--env-file", filepath.Join(t.TempDir(), "nope.env")), viper.New())
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{ListenAddr: ":8080", DataPath: "x.csv", LoginRateBurst: 1, LoginRatePerSec: 1, MaxBodyBytes: 1}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"listen":   func(c *Config) { c.ListenAddr = "" },
		"data":     func(c *Config) { c.DataPath = "" },
		"burst":    func(c *Config) { c.LoginRateBurst = 0 },
		"rate":     func(c *Config) { c.LoginRatePerSec = -1 },
		"max body": func(c *Config) { c.MaxBodyBytes = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}

	clearEnv(t)
	t.Setenv("NEMPRICE_LOGIN_RATE_BURST", "0")
	_, err := Load(newCmd(t), viper.New())
	require.ErrorIs(t, err, ErrInvalid)
}
