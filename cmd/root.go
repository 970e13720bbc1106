package cmd

import (
	"os"
	"time"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	"github.com/AzielCF/az-publisher/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "az-publisher",
	Short: "Scheduled publishing of posts to LinkedIn and X",
	Long: `az-publisher keeps a queue of posts scheduled for LinkedIn and X and publishes
them when they fall due, honoring per-platform rate limits and retrying transient failures.`,
}

func init() {
	// Load environment variables first
	utils.LoadEnvFile(".", "..")

	time.Local = time.UTC

	rootCmd.CompletionOptions.DisableDefaultCmd = true

	initFlags()

	cobra.OnInitialize(initEnvConfig)
}

func initFlags() {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging | example: --debug=true")
	rootCmd.PersistentFlags().String("db-driver", "", `database driver --db-driver <sqlite|postgres> | example: --db-driver=postgres`)
	rootCmd.PersistentFlags().String("db-name", "", `sqlite file path or postgres database name | example: --db-name=storages/publisher.db`)

	_ = viper.BindPFlag("app_debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("db_driver", rootCmd.PersistentFlags().Lookup("db-driver"))
	_ = viper.BindPFlag("db_name", rootCmd.PersistentFlags().Lookup("db-name"))
}

// initEnvConfig loads configuration from the environment, then applies flag overrides.
func initEnvConfig() {
	viper.AutomaticEnv()

	cfg, err := coreconfig.LoadConfig()
	if err != nil {
		logrus.Fatalf("[CONFIG] failed to load configuration: %v", err)
	}

	if viper.GetBool("app_debug") {
		cfg.App.Debug = true
	}
	if v := viper.GetString("db_driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := viper.GetString("db_name"); v != "" {
		cfg.Database.Name = v
	}

	if viper.GetString("log_format") == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.App.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg.App.ServerID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
