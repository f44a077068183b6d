package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Config is the bridge configuration, loaded from a JSON file with flag
// overrides for the file path and log level.
type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	ControllerHost     string `json:"controller_host"`
	ControllerPort     int    `json:"controller_port"`
	HTTPTimeoutSeconds int    `json:"http_timeout_seconds"`

	MasterZoneID        int               `json:"master_zone_id"`
	ZoneNames           map[string]string `json:"zone_names"` // zone id -> display name
	PollIntervalSeconds int               `json:"poll_interval_seconds"`
	TemperatureUnit     string            `json:"temperature_unit"`

	APIPort       int    `json:"api_port"`
	HistoryDBPath string `json:"history_db_path"`
	LogFile       string `json:"log_file"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic"`
}

func Load() Config {
	var configFile string
	var logLevel string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to bridge config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg := FromFile(configFile)
	cfg.LogLevel = parseLogLevel(logLevel)
	return cfg
}

// FromFile loads and validates a config file, panicking on anything that
// would leave the bridge unable to talk to the controller.
func FromFile(path string) Config {
	var cfg Config
	cfg.ConfigFile = path
	cfg.LogLevel = zerolog.InfoLevel

	file, err := os.Open(path)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.ControllerPort == 0 {
		cfg.ControllerPort = 3000
	}
	if cfg.HTTPTimeoutSeconds == 0 {
		cfg.HTTPTimeoutSeconds = 10
	}
	if cfg.MasterZoneID == 0 {
		cfg.MasterZoneID = 1
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = 60
	}
	if cfg.TemperatureUnit == "" {
		cfg.TemperatureUnit = "celsius"
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = 8090
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = "data/history.db"
	}
}

func (cfg *Config) validate() {
	if cfg.ControllerHost == "" {
		panic("Missing required config field: controller_host")
	}
	if cfg.MasterZoneID < 1 {
		panic("Invalid master_zone_id: must be >= 1, got " + strconv.Itoa(cfg.MasterZoneID))
	}
	if cfg.PollIntervalSeconds < 1 {
		panic("Invalid poll_interval_seconds: must be >= 1")
	}
	if cfg.TemperatureUnit != "celsius" && cfg.TemperatureUnit != "fahrenheit" {
		panic("Invalid temperature_unit: " + cfg.TemperatureUnit)
	}
	for id := range cfg.ZoneNames {
		if _, err := strconv.Atoi(id); err != nil {
			panic("Invalid zone_names key (must be a zone id): " + id)
		}
	}
}

// ZoneName resolves the display name for a zone. Zones without a configured
// name fall back to a generated one.
func (cfg *Config) ZoneName(systemID, zoneID int) string {
	if name, ok := cfg.ZoneNames[strconv.Itoa(zoneID)]; ok {
		return name
	}
	return fmt.Sprintf("Zone %d.%d", systemID, zoneID)
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
