// Command kartserver hosts the authoritative kart simulation over
// websockets and records every session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kartsync/kartsync/internal/bot"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/internal/dispatcher"
	"github.com/kartsync/kartsync/internal/geo"
	"github.com/kartsync/kartsync/internal/influx"
	"github.com/kartsync/kartsync/internal/logging"
	"github.com/kartsync/kartsync/internal/monitor"
	intOtel "github.com/kartsync/kartsync/internal/otel"
	"github.com/kartsync/kartsync/internal/server"
	"github.com/kartsync/kartsync/internal/session"
	"github.com/kartsync/kartsync/internal/storage"
	"github.com/kartsync/kartsync/internal/worker"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const programName = "kartserver"

const shutdownTimeout = 10 * time.Second

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 && strings.ToLower(args[0]) == "verify" {
		if err := config.Load(*configDir); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config, using defaults: %v\n", err)
		}
		if err := runVerify(args[1:], os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	sessionStart := time.Now()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		logger.Info("Loaded config")
	}
	level := config.GetString("logLevel")

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, programName, sessionStart)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:        otelCfg.Enabled,
		ServiceName:    otelCfg.ServiceName,
		BatchTimeout:   otelCfg.BatchTimeout,
		MetricInterval: otelCfg.MetricInterval,
		LogWriter:      logFile,
		Endpoint:       otelCfg.Endpoint,
		Insecure:       otelCfg.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialize OTel provider", "error", err)
		otelProvider, _ = intOtel.New(intOtel.Config{})
	}
	var otelLogProvider *sdklog.LoggerProvider
	if otelProvider.Enabled() {
		otelLogProvider = otelProvider.LoggerProvider()
	}

	var sinks []io.Writer
	if config.GetBool("graylog.enabled") {
		gelfWriter, err := logging.NewGELFWriter(config.GetString("graylog.address"))
		if err != nil {
			logger.Warn("Graylog disabled", "error", err)
		} else {
			sinks = append(sinks, gelfWriter)
		}
	}

	sessionCtx := session.NewContext()
	slogManager.WithContext(sessionCtx.LogAttrs).Setup(logFile, level, otelLogProvider, sinks...)
	logger = slogManager.Logger()
	logger.Info("Starting up", "version", Version, "buildDate", BuildDate, "log", logPath)

	backend, err := createStorageBackend(config.GetStorageConfig(), storageDeps{
		LogManager:   slogManager,
		DBLogger:     logging.NewZerolog(logFile, level, "database"),
		SessionStart: sessionStart,
	})
	if err != nil {
		return err
	}
	if err := backend.Init(); err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	logger.Info("Storage backend initialized", "type", config.GetStorageConfig().Type)

	eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(logging.NewZerolog(logFile, level, "dispatcher")))
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	workerManager := worker.NewManager(worker.Dependencies{LogManager: slogManager}, backend)
	workerManager.RegisterHandlers(eventDispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	influxManager := influx.NewManager(
		config.GetInfluxConfig(),
		logging.NewZerolog(logFile, level, "influx"),
		filepath.Join(logsDir, fmt.Sprintf("influx_%s.lp.gz", sessionStart.Format("20060102_150405"))),
	)
	var metrics *influx.Manager
	switch err := influxManager.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		logger.Warn("InfluxDB unavailable", "error", err)
	default:
		metrics = influxManager
	}

	hub, err := newHub(sessionCtx, eventDispatcher, logger)
	if err != nil {
		return err
	}
	if err := hub.Start(); err != nil {
		return err
	}

	var recorder monitor.PerformanceRecorder
	if r, ok := backend.(monitor.PerformanceRecorder); ok {
		recorder = r
	}
	monitorService := monitor.NewService(monitor.Dependencies{
		LogManager:     slogManager,
		SessionContext: sessionCtx,
		WorkerManager:  workerManager,
		HubStats:       hubStats(hub),
		Influx:         metrics,
		Recorder:       recorder,
		StatusDir:      logsDir,
		Interval:       config.GetDuration("monitor.interval"),
	})
	if err := monitorService.Start(); err != nil {
		logger.Warn("Status monitor not started", "error", err)
	}

	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	mux := http.NewServeMux()
	mux.Handle(config.GetString("server.path"), server.NewHandler(hub, logger))
	httpServer := &http.Server{
		Addr:              config.GetString("server.listen"),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()
	logger.Info("Listening", "addr", httpServer.Addr, "path", config.GetString("server.path"))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("serving: %w", err)
		}
		stop()
	}

	<-hubDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	shutdown(shutdownCtx, logger, httpServer, eventDispatcher, monitorService, backend, influxManager, otelProvider)
	return runErr
}

func newHub(sessionCtx *session.Context, d *dispatcher.Dispatcher, logger *slog.Logger) (*server.Hub, error) {
	var hostDriver server.Driver
	if config.GetBool("server.hostVehicle") {
		driver, err := bot.FromConfig(config.GetBotConfig())
		if err != nil {
			return nil, fmt.Errorf("configuring host vehicle: %w", err)
		}
		hostDriver = driver
	}

	cfg := server.Config{
		Name:         config.GetString("server.name"),
		Sim:          config.GetSimConfig(),
		Params:       config.GetVehicleParams(),
		World:        collision.FromConfig(config.GetArenaConfig()),
		SpawnSpacing: config.GetFloat64("server.spawnSpacing"),
		HostDriver:   hostDriver,
		Session:      sessionCtx,
		Dispatcher:   d,
		Logger:       logger,
	}
	if raw := config.GetString("server.spawnPoints"); raw != "" {
		points, err := geo.ParseTrack(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing server.spawnPoints: %w", err)
		}
		cfg.SpawnPoints = points
	}
	return server.NewHub(cfg)
}

func hubStats(hub *server.Hub) func() monitor.HubStats {
	return func() monitor.HubStats {
		s := hub.Stats()
		return monitor.HubStats{
			Vehicles:      s.Vehicles,
			Connections:   s.Connections,
			MovesAccepted: s.MovesAccepted,
			MovesRejected: s.MovesRejected,
			TickDuration:  s.TickDuration,
			Inbox:         s.Inbox,
		}
	}
}

// shutdown stops everything downstream of the hub, in dependency order:
// the dispatcher drains into storage before storage closes.
func shutdown(
	ctx context.Context,
	logger *slog.Logger,
	httpServer *http.Server,
	d *dispatcher.Dispatcher,
	monitorService *monitor.Service,
	backend storage.Backend,
	influxManager *influx.Manager,
	otelProvider *intOtel.Provider,
) {
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Error stopping HTTP server", "error", err)
	}
	if err := d.Shutdown(ctx); err != nil {
		logger.Error("Error draining dispatcher", "error", err)
	}
	monitorService.Stop()
	if err := backend.Close(); err != nil {
		logger.Error("Error closing storage", "error", err)
	}
	if exp, ok := backend.(storage.Exportable); ok && exp.ExportedFilePath() != "" {
		logger.Info("Session recorded", "path", exp.ExportedFilePath())
	}
	if err := influxManager.Close(); err != nil {
		logger.Error("Error closing InfluxDB", "error", err)
	}
	logger.Info("Shutdown complete")
	if err := otelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error shutting down OTel: %v\n", err)
	}
}
