// Package cmd holds the cardsmith command line.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/cardsmith/internal/config"
	"github.com/zjrosen/cardsmith/internal/log"
)

func init() {
	// Query the terminal background before any Bubble Tea program starts so
	// the OSC 11 reply cannot race the progress view's input loop.
	_ = lipgloss.HasDarkBackground()
}

// localConfig is the project config looked up before the user config.
const localConfig = ".cardsmith/config.yaml"

var (
	version   = "dev"
	cfgFile   string
	debugFlag bool
	cfg       config.Config

	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "cardsmith",
	Short: "Render trading card proxies from art files",
	Long: `cardsmith renders card proxies from art images. Each art file name
identifies a card ("Name (Artist) [SET] {number}.png"); card data is looked
up online, a template draws the card into a document and the result is saved
to the output directory.`,
	Version:            version,
	SilenceUsage:       true,
	PersistentPreRunE:  initLogging,
	PersistentPostRunE: closeLogging,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .cardsmith/config.yaml, then ~/.config/cardsmith/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"write a debug log (path from CARDSMITH_LOG, default debug.log)")
}

func initConfig() {
	setDefaults(config.Defaults())
	viper.SetEnvPrefix("CARDSMITH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .cardsmith/config.yaml (current directory)
		// 2. ~/.config/cardsmith/config.yaml (user config)
		if _, err := os.Stat(localConfig); err == nil {
			viper.SetConfigFile(localConfig)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "cardsmith"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// No config anywhere: write the commented default locally.
			if writeErr := config.WriteDefaultConfig(localConfig); writeErr == nil {
				viper.SetConfigFile(localConfig)
				_ = viper.ReadInConfig()
			}
		} else {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: decoding config: %v\n", err)
	}
}

// setDefaults seeds viper with every default so environment variables can
// override keys that no config file sets.
func setDefaults(d config.Config) {
	viper.SetDefault("paths.art_dir", d.Paths.ArtDir)
	viper.SetDefault("paths.out_dir", d.Paths.OutDir)
	viper.SetDefault("paths.plugins_dir", d.Paths.PluginsDir)
	viper.SetDefault("paths.settings_dir", d.Paths.SettingsDir)

	viper.SetDefault("data.base_url", d.Data.BaseURL)
	viper.SetDefault("data.user_agent", d.Data.UserAgent)
	viper.SetDefault("data.requests_per_second", d.Data.RequestsPerSecond)
	viper.SetDefault("data.burst", d.Data.Burst)
	viper.SetDefault("data.max_attempts", d.Data.MaxAttempts)
	viper.SetDefault("data.attempt_timeout", d.Data.AttemptTimeout)
	viper.SetDefault("data.backoff_initial", d.Data.BackoffInitial)
	viper.SetDefault("data.backoff_max", d.Data.BackoffMax)
	viper.SetDefault("data.cache_ttl", d.Data.CacheTTL)
	viper.SetDefault("data.concurrency", d.Data.Concurrency)
	viper.SetDefault("data.fallback_language", d.Data.FallbackLanguage)

	viper.SetDefault("templates.hot_reload", d.Templates.HotReload)
	viper.SetDefault("render.stop_on_failure", d.Render.StopOnFailure)
	viper.SetDefault("render.skip_failed", d.Render.SkipFailed)
	viper.SetDefault("render.queue_size", d.Render.QueueSize)

	viper.SetDefault("editor.backend", d.Editor.Backend)
	viper.SetDefault("editor.timeout", d.Editor.Timeout)

	viper.SetDefault("history.db_path", d.History.DBPath)

	viper.SetDefault("tracing.enabled", d.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", d.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", d.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)

	viper.SetDefault("flags", d.Flags)
}

// configPath is the file that config edits are written to.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return localConfig
}

func initLogging(_ *cobra.Command, _ []string) error {
	if os.Getenv("CARDSMITH_DEBUG") == "" && !debugFlag {
		return nil
	}
	logPath := os.Getenv("CARDSMITH_LOG")
	if logPath == "" {
		logPath = "debug.log"
	}
	cleanup, err := log.Init(logPath)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	logCleanup = cleanup
	log.Info(log.CatCLI, "cardsmith starting", "version", version, "config", viper.ConfigFileUsed())
	return nil
}

func closeLogging(_ *cobra.Command, _ []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
