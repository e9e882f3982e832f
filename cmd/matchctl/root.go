package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/app"
	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/logger"
)

const cliName = "matchctl"

var rootCmd = &cobra.Command{
	Use:           cliName,
	Short:         "matchctl runs CV to job matches and manages the match cache",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("driver", "", "match cache store: memory, sqlite or postgres (default from DB_DRIVER)")
	rootCmd.PersistentFlags().String("sqlite-path", "", "sqlite database file (default from SQLITE_PATH)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("driver", rootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("sqlite-path", rootCmd.PersistentFlags().Lookup("sqlite-path"))

	rootCmd.AddCommand(matchCmd, cacheCmd, skillsCmd)
}

// loadConfig reads the environment and applies the persistent flags on top.
func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg := config.Load()

	if viper.IsSet("debug") {
		cfg.Log.Debug = viper.GetBool("debug")
	}
	if viper.IsSet("json") {
		cfg.Log.JSON = viper.GetBool("json")
	}
	if driver := viper.GetString("driver"); driver != "" {
		cfg.Database.Driver = driver
	}
	if path := viper.GetString("sqlite-path"); path != "" {
		cfg.Database.SQLitePath = path
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise logger: %w", err)
	}
	return cfg, log, nil
}

func buildApp(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return app.Build(ctx, cfg, log)
}
