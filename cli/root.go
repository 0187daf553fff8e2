// Package cli provides the receipt engine's command-line interface: a
// root command carrying global flags and a serve command that wires the
// object store, write pipeline, query engine, and REST surface into an
// HTTP server with graceful shutdown.
package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/voltgrid/receipt-engine/api"
	"github.com/voltgrid/receipt-engine/common"
	"github.com/voltgrid/receipt-engine/config"
	"github.com/voltgrid/receipt-engine/index"
	"github.com/voltgrid/receipt-engine/pipeline"
	"github.com/voltgrid/receipt-engine/query"
	"github.com/voltgrid/receipt-engine/storage"
	"github.com/voltgrid/receipt-engine/version"
)

// cfgFile holds the --config flag value; empty means the default
// search paths (./receipts.yaml, /etc/receipts/receipts.yaml).
var cfgFile string

// RootCmd is the base command.
var RootCmd = &cobra.Command{
	Use:   "receiptd",
	Short: "Receipt indexing and query engine",
	Long: `receiptd stores EV-charging receipts in an S3-compatible object
store and serves filtered, paginated queries over them. Each receipt is
persisted as a PDF, a metadata sidecar, and a date-partitioned index
part in one logical transaction.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.String())
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./receipts.yaml)")
	RootCmd.AddCommand(serveCmd, versionCmd)
}

// Execute runs the CLI.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := common.ConfigureLogger(common.LoggerConfig{
		Level:  common.LogLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:   cfg.S3.Endpoint,
		Region:     cfg.S3.Region,
		Bucket:     cfg.S3.Bucket,
		AccessKey:  cfg.S3.AccessKey,
		SecretKey:  cfg.S3.SecretKey,
		PathStyle:  cfg.S3.PathStyle,
		MaxRetries: cfg.S3.MaxRetries,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	idx := index.NewManager(store, log)
	writer := pipeline.NewWriter(store, idx, log)

	cacheEnabled := cfg.Query.CacheEnabled
	engine, err := query.NewEngine(store, idx, query.EngineOptions{
		Workers:      cfg.Query.Workers,
		CacheEnabled: &cacheEnabled,
		CacheMaxSize: cfg.Query.CacheMaxSize,
		CacheTTL:     cfg.Query.CacheTTL,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	api.NewService(writer, engine, storage.NewPDFStore(store), log).Register(e)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.WithField("addr", addr).Info("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return e.Shutdown(shutdownCtx)
}
