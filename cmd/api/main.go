package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"opledger/docs"
	"opledger/internal/audit"
	"opledger/internal/bootstrap"
	"opledger/internal/config"
	handlers "opledger/internal/http/handler"
	"opledger/internal/http/middleware"
	"opledger/internal/otel"
	"opledger/internal/worker"
)

// @title Operation Ledger API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	sink := audit.NewJSONSink(os.Stdout, cfg.Location())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, sink)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	deps, err := bootstrap.Open(ctx, cfg, sink, bootstrap.Options{})
	if err != nil {
		log.Fatalf("failed to start: %v", err)
	}
	defer deps.Close()

	reg := prometheus.DefaultRegisterer
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	if cfg.Ledger.PollerEnabled {
		poller := worker.NewPoller(deps.Service, worker.NewHTTPExecutor(cfg.Ledger.ExecutorTimeout), worker.Config{
			Interval:   cfg.Ledger.PollInterval,
			BatchSize:  cfg.Ledger.BatchSize,
			Sink:       sink,
			Registerer: reg,
		})
		pollerDone := poller.Start(ctx)
		// Registered after deps.Close, so it runs first: the database stays
		// open until the last poll cycle has finished writing.
		defer func() {
			stop()
			<-pollerDone
		}()
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	app.Use(otelfiber.Middleware())
	// RequestID adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(sink))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, deps.DB, deps.Service)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := ":" + cfg.Port
	sink.Record(ctx, audit.LevelInfo, "server_starting", map[string]any{
		"addr":           addr,
		"db_driver":      cfg.Database.Driver,
		"poller_enabled": cfg.Ledger.PollerEnabled,
		"archive":        cfg.MinIO.Enabled(),
	})
	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
