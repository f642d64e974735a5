package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/otiai10/ssobridge/internal/config"
	"github.com/otiai10/ssobridge/internal/logging"
	"github.com/otiai10/ssobridge/internal/version"
)

// global flags
var (
	configPath string
	logLevel   string
	logFormat  string
	noColor    bool
)

// loadedConfig is populated by the root PersistentPreRunE
var loadedConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "ssobridge",
	Short: fmt.Sprintf("SSO token exchange (version: %s, commit: %s)", version.Version, version.CommitHash),
	Long: `ssobridge exchanges a verified Firebase ID token for a custom token
the caller can use to sign in to another app of the same project.`,
	Version: version.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Local development only; production sets real env vars.
		_ = godotenv.Load(".env.localdev")

		cfg, cfgErr := loadConfig()
		if cfgErr != nil {
			// still initialize logging so the error is rendered
			_ = logging.Init(logging.Config{Level: logLevel, Format: logFormat, NoColor: noColor})
			return cfgErr
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Log.Format = logFormat
		}
		if err := logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, NoColor: noColor}); err != nil {
			return err
		}

		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		loadedConfig = cfg
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("execution failed")
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"YAML configuration file (environment variables override its values)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (console, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable color output")

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.LoadFromEnv()
}
