package cmd

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	"github.com/AzielCF/az-publisher/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the publishing MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server over Server-Sent Events so AI agents can schedule, cancel and publish posts.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("port", "", "Port for the SSE MCP server")
	mcpCmd.Flags().String("host", "", "Host for the SSE MCP server")
	mcpCmd.Flags().Bool("with-scheduler", false, "Also run the scheduler loop in this process")
}

func mcpServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.MCP.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.MCP.Host = host
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		logrus.Fatalf("[APP] failed to start: %v", err)
	}
	defer app.Close()

	if withScheduler, _ := cmd.Flags().GetBool("with-scheduler"); withScheduler {
		app.scheduler.Start(ctx)
	}

	mcpServer := server.NewMCPServer(
		"az-publisher MCP Server",
		cfg.App.Version,
		server.WithToolCapabilities(true),
	)

	publishingHandler := mcp.InitMcpPublishing(app.publishing)
	publishingHandler.AddPublishingTools(mcpServer)

	sseServer := server.NewSSEServer(
		mcpServer,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("[MCP] Starting SSE server on %s", addr)
	logrus.Printf("[MCP] SSE endpoint: http://%s/sse", addr)
	logrus.Printf("[MCP] Message endpoint: http://%s/message", addr)

	go func() {
		<-ctx.Done()
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("[MCP] Error during shutdown: %v", err)
		}
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Errorf("[MCP] SSE server stopped: %v", err)
	}
}
