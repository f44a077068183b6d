package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vinste/airzone-local/db"
	"github.com/vinste/airzone-local/internal/airzone"
	"github.com/vinste/airzone-local/internal/api"
	"github.com/vinste/airzone-local/internal/climate"
	"github.com/vinste/airzone-local/internal/config"
	"github.com/vinste/airzone-local/internal/datadog"
	"github.com/vinste/airzone-local/internal/env"
	"github.com/vinste/airzone-local/internal/logging"
	"github.com/vinste/airzone-local/internal/model"
	"github.com/vinste/airzone-local/internal/notifications"
	"github.com/vinste/airzone-local/internal/poller"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)
	env.Cfg = &cfg

	log.Info().
		Str("controller", cfg.ControllerHost).
		Int("port", cfg.ControllerPort).
		Int("master_zone", cfg.MasterZoneID).
		Msg("Starting Airzone bridge")

	datadog.InitMetrics()
	notifications.Init()

	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	client := airzone.New(cfg.ControllerHost, cfg.ControllerPort, cfg.MasterZoneID, timeout)

	// Initial load is all-or-nothing: a bridge that cannot see the
	// controller at startup must not come up with a partial zone set.
	loadCtx, cancel := context.WithTimeout(context.Background(), timeout)
	err := client.Refresh(loadCtx)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Initial zone load failed, aborting setup")
	}
	if cfg.MasterZoneID > client.ZoneCount() {
		log.Fatal().
			Int("master_zone", cfg.MasterZoneID).
			Int("zones", client.ZoneCount()).
			Msg("Configured master zone does not exist on controller")
	}

	var database *sql.DB
	database, err = db.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.HistoryDBPath).Msg("History database unavailable, recording disabled")
		database = nil
	} else {
		defer database.Close()
	}

	unit := model.TemperatureUnit(cfg.TemperatureUnit)
	devices := make([]*climate.Device, 0, client.ZoneCount())
	for i, z := range client.Snapshot() {
		name := cfg.ZoneName(z.SystemID, z.ZoneID)
		devices = append(devices, climate.NewDevice(client, i, name, unit))
		log.Info().
			Int("zone_idx", i).
			Str("name", name).
			Int("system_id", z.SystemID).
			Int("zone_id", z.ZoneID).
			Msg("Registered zone device")
	}
	system := climate.NewSystem(client, cfg.MasterZoneID-1)

	server := api.NewServer(devices, system, database)

	p := poller.New(
		client,
		database,
		time.Duration(cfg.PollIntervalSeconds)*time.Second,
		timeout,
		cfg.ZoneName,
		server.StreamState,
	)
	go p.Run(context.Background())

	if err := server.Start(cfg.APIPort); err != nil {
		log.Fatal().Err(err).Msg("REST API server failed")
	}
}
