// Command kartclient is a headless participant: it joins a kartserver,
// predicts its own kart from a bot driver and logs every correction.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kartsync/kartsync/internal/bot"
	"github.com/kartsync/kartsync/internal/client"
	"github.com/kartsync/kartsync/internal/collision"
	"github.com/kartsync/kartsync/internal/config"
	"github.com/kartsync/kartsync/internal/influx"
	"github.com/kartsync/kartsync/internal/logging"
)

const programName = "kartclient"

// statsInterval is how often correction totals are logged.
const statsInterval = 5 * time.Second

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	url := flag.String("url", "", "server websocket URL, overrides client.serverUrl")
	name := flag.String("name", "", "driver name, overrides client.name")
	flag.Parse()

	if err := run(*configDir, *url, *name); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir, url, name string) error {
	start := time.Now()

	slogManager := logging.NewSlogManager()
	slogManager.Setup(nil, "info", nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	if url == "" {
		url = config.GetString("client.serverUrl")
	}
	if name == "" {
		name = config.GetString("client.name")
	}
	level := config.GetString("logLevel")

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}
	logFile, err := os.OpenFile(logging.LogFilePath(logsDir, programName+"_"+name, start), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()
	slogManager.Setup(logFile, level, nil)
	logger = slogManager.Logger()

	driver, err := bot.FromConfig(config.GetBotConfig())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	influxManager := influx.NewManager(
		config.GetInfluxConfig(),
		logging.NewZerolog(logFile, level, "influx"),
		filepath.Join(logsDir, fmt.Sprintf("influx_%s_%s.lp.gz", name, start.Format("20060102_150405"))),
	)
	defer func() { _ = influxManager.Close() }()
	var metrics *influx.Manager
	switch err := influxManager.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		logger.Warn("InfluxDB unavailable", "error", err)
	default:
		metrics = influxManager
	}

	c, err := client.New(client.Config{
		URL:    url,
		Name:   name,
		Sim:    config.GetSimConfig(),
		World:  collision.FromConfig(config.GetArenaConfig()),
		Driver: driver,
		Logger: logger,
		Influx: metrics,

		MaxReconnects: config.GetInt("client.maxReconnects"),
	})
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return err
	}

	go logStats(ctx, c, logger)
	runErr := c.Run(ctx)

	s := c.Stats()
	logger.Info("Disconnected",
		"vehicleId", s.VehicleID,
		"movesSent", s.MovesSent,
		"statesApplied", s.StatesApplied,
		"staleStates", s.StaleStates,
		"maxCorrection", s.MaxCorrection,
		"lost", s.Lost,
	)
	if runErr != nil {
		return fmt.Errorf("connection to %s: %w", url, runErr)
	}
	return nil
}

func logStats(ctx context.Context, c *client.Client, logger *slog.Logger) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := c.Stats()
			if !s.Welcomed {
				logger.Info("Waiting for welcome")
				continue
			}
			logger.Info("Client status",
				"vehicleId", s.VehicleID,
				"proxies", s.Proxies,
				"movesSent", s.MovesSent,
				"statesApplied", s.StatesApplied,
				"staleStates", s.StaleStates,
				"lastCorrection", s.LastCorrection,
				"maxCorrection", s.MaxCorrection,
			)
		}
	}
}

