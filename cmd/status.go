package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	"github.com/AzielCF/az-publisher/publishing/domain/platform"
	"github.com/AzielCF/az-publisher/publishing/domain/scheduledpost"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the publishing queue status",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().Bool("json", false, "print the raw queue status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) {
	ctx := context.Background()
	app, err := openStores(ctx, coreconfig.Global)
	if err != nil {
		logrus.Fatalf("[STATUS] %v", err)
	}
	defer app.Close()

	status, err := app.schedules.QueueStatus(ctx)
	if err != nil {
		logrus.Fatalf("[STATUS] %v", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(status)
		return
	}
	printQueueStatus(os.Stdout, status, time.Now())
}

func printQueueStatus(w io.Writer, status scheduledpost.QueueStatus, now time.Time) {
	fmt.Fprintf(w, "pending     %s\n", humanize.Comma(status.PendingCount))
	fmt.Fprintf(w, "retry       %s\n", humanize.Comma(status.RetryCount))
	fmt.Fprintf(w, "processing  %s\n", humanize.Comma(status.ProcessingCount))
	fmt.Fprintf(w, "published   %s\n", humanize.Comma(status.PublishedCount))
	fmt.Fprintf(w, "failed      %s\n", humanize.Comma(status.FailedCount))
	fmt.Fprintf(w, "cancelled   %s\n", humanize.Comma(status.CancelledCount))

	if status.NextScheduledTime != nil {
		fmt.Fprintf(w, "next        %s (%s)\n",
			status.NextScheduledTime.Format(time.RFC3339), humanize.RelTime(*status.NextScheduledTime, now, "ago", "from now"))
	} else {
		fmt.Fprintln(w, "next        -")
	}

	platforms := make([]platform.Platform, 0, len(status.PerPlatformCounts))
	for p := range status.PerPlatformCounts {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	for _, p := range platforms {
		counts := status.PerPlatformCounts[p]
		fmt.Fprintf(w, "%-10s  pending=%d retry=%d processing=%d published=%d failed=%d cancelled=%d\n", p,
			counts[scheduledpost.StatusPending], counts[scheduledpost.StatusRetry], counts[scheduledpost.StatusProcessing],
			counts[scheduledpost.StatusPublished], counts[scheduledpost.StatusFailed], counts[scheduledpost.StatusCancelled])
	}
}
