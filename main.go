// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Command delock-energy-collector polls a Tasmota smart plug for its energy
// readings and writes them to InfluxDB until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soothill/delock-energy-collector/app"
	"github.com/soothill/delock-energy-collector/config"
	"github.com/soothill/delock-energy-collector/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Initialize("error")
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(cfg.Logging.Level)

	logger.Info().Msg("Starting energy collector")
	logger.Info().
		Str("device_url", cfg.Device.URL).
		Str("device_id", cfg.Device.ID).
		Str("influx_url", cfg.InfluxDB.URL).
		Str("bucket", cfg.InfluxDB.Bucket).
		Dur("poll_interval", cfg.Collector.PollInterval).
		Dur("retry_interval", cfg.Collector.RetryInterval).
		Msg("Configuration loaded")

	application, err := app.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupDebugSignalHandlers(application)

	state := application.Run(ctx)
	logger.Info().Object("state", state).Msg("Energy collector stopped")
}
