package cmd

import (
	"context"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		app, err := openStores(ctx, coreconfig.Global)
		if err != nil {
			logrus.Fatalf("[MIGRATION] failed: %v", err)
		}
		defer app.Close()
		logrus.Infof("[MIGRATION] schema is up to date (%s)", coreconfig.Global.Database.Driver)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
