package cmd

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run only the scheduler loop that publishes due posts",
	Long: `Run the scheduler without the HTTP API. Several workers may run against the same
database; claims are exclusive and Valkey-backed rate limits keep the platforms' quotas shared.`,
	Run: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) {
	// Running a worker is an explicit request to publish, even in CI.
	coreconfig.Global.Scheduler.Enabled = true

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		logrus.Fatalf("[APP] failed to start: %v", err)
	}
	defer app.Close()

	app.scheduler.Start(ctx)
	<-ctx.Done()
	logrus.Info("[SCHEDULER] Reception of termination signal, finishing in-flight attempts...")
}
