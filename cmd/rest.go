package cmd

import (
	"context"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-publisher/core/config"
	"github.com/AzielCF/az-publisher/ui/rest"
	"github.com/AzielCF/az-publisher/ui/rest/middleware"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"rest"},
	Short:   "Serve the publishing API over http and run the scheduler",
	Run:     restServer,
}

func init() {
	restCmd.Flags().StringP("port", "p", "", "change port number with --port <number> | example: --port=8080")
	restCmd.Flags().String("basic-auth", "", "Basic auth for API (format: user:pass,user2:pass2)")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.App.Port = port
	}
	if baFlag, _ := cmd.Flags().GetString("basic-auth"); baFlag != "" {
		cfg.App.BasicAuth = strings.Split(baFlag, ",")
	}

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}
	account := make(map[string]string)
	for _, basicAuth := range cfg.App.BasicAuth {
		ba := strings.SplitN(basicAuth, ":", 2)
		if len(ba) != 2 {
			logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
		}
		account[ba[0]] = ba[1]
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap(ctx)
	if err != nil {
		logrus.Fatalf("[APP] failed to start: %v", err)
	}
	defer app.Close()

	server := newFiberApp(cfg)

	apiGroup := server.Group(cfg.App.BasePath + "/api")
	rest.InitRestHealth(apiGroup, rest.Health{
		ServerID:  cfg.App.ServerID,
		Version:   cfg.App.Version,
		Checks:    app.healthChecks(),
		Scheduler: app.scheduler.Running,
	})

	// Health stays public for probes; everything else needs credentials.
	apiGroup.Use(basicauth.New(basicauth.Config{
		Users: account,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
	}))
	rest.InitRestScheduledPost(apiGroup, app.publishing)

	apiGroup.All("/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API Endpoint not found",
			"path":  c.Path(),
		})
	})

	app.scheduler.Start(ctx)

	go func() {
		<-ctx.Done()
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
	}()

	if err := server.Listen(":" + cfg.App.Port); err != nil {
		logrus.Errorf("[REST] Failed to start: %v", err)
	}
}

func newFiberApp(cfg *coreconfig.Config) *fiber.App {
	server := fiber.New(fiber.Config{
		AppName:               "az-publisher",
		Network:               "tcp",
		ServerHeader:          "Hidden",
		DisableStartupMessage: !cfg.App.Debug,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	server.Use(requestid.New())

	origins := strings.Join(cfg.App.CorsAllowedOrigins, ", ")
	if cfg.App.BaseUrl != "" && !strings.Contains(origins, cfg.App.BaseUrl) {
		origins += ", " + cfg.App.BaseUrl
	}
	server.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	server.Use(middleware.Recovery())
	server.Use(helmet.New())
	server.Use(limiter.New(limiter.Config{
		Max:        600,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))

	if cfg.App.Debug {
		server.Use(logger.New())
	}
	return server
}
