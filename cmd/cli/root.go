// Package cli provides the command-line interface for portrisk.
// It implements the Cobra-based command tree: one-off scans, port risk
// classification, the risk table, and the long-running API server.
package cli

import (
	stderrors "errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anstrom/portrisk/internal/api/handlers"
	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/logging"
)

const (
	envPrefix         = "PORTRISK"
	defaultConfigFile = "config.yaml"
)

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "portrisk",
	Short: "TCP port scanner with risk classification",
	Long: `portrisk probes a host for open TCP ports with a bounded number of
concurrent connection attempts and classifies the open ports against a table
of well-known services to produce an overall exposure verdict.

Scans can be run once from the command line or submitted to the API server,
which also runs recurring scans from the configured schedules.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	// Bind flags to viper
	bindFlags(viper.GetViper(), rootCmd.PersistentFlags(), map[string]string{
		"verbose":        "verbose",
		"logging.level":  "log-level",
		"logging.format": "log-format",
	})
}

// bindFlags binds each named flag of fs to its config key in v.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", name, err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// PORTRISK_API_PORT overrides api.port, and so on.
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(envKeyReplacer())
	viper.AutomaticEnv()

	readErr := viper.ReadInConfig()

	initLogging()

	var notFound viper.ConfigFileNotFoundError
	switch {
	case readErr == nil:
		if verbose {
			logging.Info("Using config file", "file", viper.ConfigFileUsed())
		}
	case !stderrors.As(readErr, &notFound):
		logging.Warn("Failed to read config file", "error", readErr)
	}
}

func envKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// getConfigFilePath returns the config file viper settled on, or the
// default name when none was found.
func getConfigFilePath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return defaultConfigFile
}

// overridableKeys are config keys that PORTRISK_* variables and global flags
// may override after the YAML file is loaded.
var overridableKeys = []string{
	"scanning.default_ports",
	"scanning.default_concurrency",
	"scanning.max_concurrency",
	"scanning.probe_timeout",
	"scanning.scan_timeout",
	"workers.pool_size",
	"workers.queue_size",
	"api.listen_addr",
	"api.port",
	"logging.level",
	"logging.format",
	"logging.output",
	"metrics.enabled",
}

// loadConfig loads the YAML configuration, applies environment and flag
// overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, viper.GetViper())
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every key set in v onto cfg. Empty string values
// are treated as unset so unset flags keep the file value.
func applyOverrides(cfg *config.Config, v *viper.Viper) {
	for _, key := range overridableKeys {
		if !v.IsSet(key) {
			continue
		}
		if s, ok := v.Get(key).(string); ok && s == "" {
			continue
		}
		switch key {
		case "scanning.default_ports":
			cfg.Scanning.DefaultPorts = v.GetString(key)
		case "scanning.default_concurrency":
			cfg.Scanning.DefaultConcurrency = v.GetInt(key)
		case "scanning.max_concurrency":
			cfg.Scanning.MaxConcurrency = v.GetInt(key)
		case "scanning.probe_timeout":
			cfg.Scanning.ProbeTimeout = v.GetDuration(key)
		case "scanning.scan_timeout":
			cfg.Scanning.ScanTimeout = v.GetDuration(key)
		case "workers.pool_size":
			cfg.Workers.PoolSize = v.GetInt(key)
		case "workers.queue_size":
			cfg.Workers.QueueSize = v.GetInt(key)
		case "api.listen_addr":
			cfg.API.ListenAddr = v.GetString(key)
		case "api.port":
			cfg.API.Port = v.GetInt(key)
		case "logging.level":
			cfg.Logging.Level = v.GetString(key)
		case "logging.format":
			cfg.Logging.Format = v.GetString(key)
		case "logging.output":
			cfg.Logging.Output = v.GetString(key)
		case "metrics.enabled":
			cfg.Metrics.Enabled = v.GetBool(key)
		}
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
	handlers.SetBuildInfo(v, c, bt)
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := config.Load(getConfigFilePath())
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return
	}
	applyOverrides(cfg, viper.GetViper())

	logConfig := cfg.LoggerConfig()
	if verbose && cfg.Logging.Level == string(logging.LevelInfo) {
		logConfig.Level = logging.LevelDebug
	}
	logConfig.AddSource = logConfig.AddSource || logConfig.Level == logging.LevelDebug

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Debug("Structured logging initialized", "level", logConfig.Level, "format", logConfig.Format)
	}
}
