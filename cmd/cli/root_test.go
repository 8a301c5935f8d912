package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/logging"
)

// resetViper restores the global viper state after a test.
func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestGetConfigFilePath(t *testing.T) {
	tests := []struct {
		name       string
		configFile string
		expected   string
	}{
		{
			name:     "no config file returns default",
			expected: defaultConfigFile,
		},
		{
			name:       "custom config file",
			configFile: "/etc/portrisk/custom.yaml",
			expected:   "/etc/portrisk/custom.yaml",
		},
		{
			name:       "relative config file",
			configFile: "./configs/dev.yaml",
			expected:   "./configs/dev.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			if tt.configFile != "" {
				viper.SetConfigFile(tt.configFile)
			}
			assert.Equal(t, tt.expected, getConfigFilePath())
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	v := viper.New()
	v.Set("scanning.default_ports", "20-30")
	v.Set("scanning.default_concurrency", 25)
	v.Set("scanning.probe_timeout", "250ms")
	v.Set("api.port", 9191)
	v.Set("logging.level", "debug")
	v.Set("logging.format", "")
	v.Set("metrics.enabled", false)

	cfg := config.Default()
	applyOverrides(cfg, v)

	assert.Equal(t, "20-30", cfg.Scanning.DefaultPorts)
	assert.Equal(t, 25, cfg.Scanning.DefaultConcurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Scanning.ProbeTimeout)
	assert.Equal(t, 9191, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format, "empty values keep the file value")
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.API.ListenAddr)
}

func TestApplyOverrides_Environment(t *testing.T) {
	t.Setenv("PORTRISK_API_PORT", "9292")
	t.Setenv("PORTRISK_SCANNING_DEFAULT_PORTS", "443")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer())
	v.AutomaticEnv()

	cfg := config.Default()
	applyOverrides(cfg, v)

	assert.Equal(t, 9292, cfg.API.Port)
	assert.Equal(t, "443", cfg.Scanning.DefaultPorts)
	assert.Equal(t, 100, cfg.Scanning.DefaultConcurrency)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads the file viper found", func(t *testing.T) {
		resetViper(t)
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
scanning:
  default_ports: "1-100"
  default_concurrency: 10
api:
  port: 9000
schedules:
  - name: nightly
    cron: "0 2 * * *"
    target: localhost
`), 0o600))
		viper.SetConfigFile(path)
		require.NoError(t, viper.ReadInConfig())

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, "1-100", cfg.Scanning.DefaultPorts)
		assert.Equal(t, 10, cfg.Scanning.DefaultConcurrency)
		assert.Equal(t, 9000, cfg.API.Port)
		require.Len(t, cfg.Schedules, 1)
		assert.Equal(t, "nightly", cfg.Schedules[0].Name)
	})

	t.Run("missing file yields defaults", func(t *testing.T) {
		resetViper(t)
		viper.SetConfigFile(filepath.Join(dir, "absent.yaml"))

		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, config.Default().Scanning, cfg.Scanning)
	})

	t.Run("invalid override fails validation", func(t *testing.T) {
		resetViper(t)
		viper.SetConfigFile(filepath.Join(dir, "absent.yaml"))
		viper.Set("logging.level", "chatty")

		_, err := loadConfig()
		assert.Error(t, err)
	})
}

func TestSetVersion(t *testing.T) {
	origVersion, origCommit, origBuild := version, commit, buildTime
	t.Cleanup(func() { SetVersion(origVersion, origCommit, origBuild) })

	SetVersion("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, "1.2.3 (commit: abc123, built: 2026-01-01)", rootCmd.Version)
}

func TestBindFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantAddr string
		wantPort int
	}{
		{"unchanged flags keep config", nil, "127.0.0.1", 8080},
		{"port flag", []string{"--port", "9000"}, "127.0.0.1", 9000},
		{"both flags", []string{"--host", "0.0.0.0", "--port", "9001"}, "0.0.0.0", 9001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
			fs.String("host", "", "")
			fs.Int("port", 0, "")
			v := viper.New()
			bindFlags(v, fs, map[string]string{"api.listen_addr": "host", "api.port": "port"})
			require.NoError(t, fs.Parse(tt.args))

			cfg := config.Default()
			applyOverrides(cfg, v)
			assert.Equal(t, tt.wantAddr, cfg.API.ListenAddr)
			assert.Equal(t, tt.wantPort, cfg.API.Port)
		})
	}
}

func TestInitConfig_LogsConfigFileUsed(t *testing.T) {
	resetViper(t)
	origLogger, origCfgFile, origVerbose := logging.Default(), cfgFile, verbose
	t.Cleanup(func() {
		logging.SetDefault(origLogger)
		cfgFile, verbose = origCfgFile, origVerbose
	})

	dir := t.TempDir()
	logPath := filepath.Join(dir, "portrisk.log")
	cfgFile = filepath.Join(dir, "config.yaml")
	verbose = true
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
logging:
  level: info
  format: text
  output: `+logPath+`
`), 0o600))

	initConfig()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Using config file")
	assert.Contains(t, string(data), cfgFile)
}
