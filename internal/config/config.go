package config

import (
	"fmt"
	"time"

	"github.com/kartsync/kartsync/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "kartsync.cfg.json"

// SimConfig holds tick and replication rates.
type SimConfig struct {
	TickHz          int `json:"tickHz" mapstructure:"tickHz"`
	CatchupMaxTicks int `json:"catchupMaxTicks" mapstructure:"catchupMaxTicks"`
	ReplicationHz   int `json:"replicationHz" mapstructure:"replicationHz"`
}

// ArenaConfig bounds the driving area. A disabled arena is an open world.
type ArenaConfig struct {
	Enabled bool    `json:"enabled" mapstructure:"enabled"`
	MinX    float64 `json:"minX" mapstructure:"minX"`
	MinY    float64 `json:"minY" mapstructure:"minY"`
	MaxX    float64 `json:"maxX" mapstructure:"maxX"`
	MaxY    float64 `json:"maxY" mapstructure:"maxY"`
}

// BotConfig selects the driver used for host and headless vehicles.
type BotConfig struct {
	Mode   string `json:"mode" mapstructure:"mode"` // "lap", "script" or "wander"
	Seed   uint64 `json:"seed" mapstructure:"seed"`
	Script string `json:"script" mapstructure:"script"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// StorageConfig selects and configures the recording backend.
type StorageConfig struct {
	Type          string        `json:"type" mapstructure:"type"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
	Memory        MemoryConfig  `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig  `json:"sqlite" mapstructure:"sqlite"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./kartlogs")

	viper.SetDefault("server.listen", ":8420")
	viper.SetDefault("server.path", "/ws")
	viper.SetDefault("server.hostVehicle", false)
	viper.SetDefault("server.name", "kartsync")
	viper.SetDefault("server.spawnSpacing", 500.0)
	viper.SetDefault("server.spawnPoints", "")

	viper.SetDefault("client.serverUrl", "ws://localhost:8420/ws")
	viper.SetDefault("client.name", "driver")
	viper.SetDefault("client.maxReconnects", 10)

	viper.SetDefault("bot.mode", "lap")
	viper.SetDefault("bot.seed", 1)
	viper.SetDefault("bot.script", "")

	viper.SetDefault("sim.tickHz", 60)
	viper.SetDefault("sim.catchupMaxTicks", 5)
	viper.SetDefault("sim.replicationHz", 20)

	viper.SetDefault("vehicle.mass", 1000.0)
	viper.SetDefault("vehicle.maxDrivingForce", 10000.0)
	viper.SetDefault("vehicle.minTurningRadius", 10.0)
	viper.SetDefault("vehicle.dragCoefficient", 16.0)
	viper.SetDefault("vehicle.rollingResistanceCoefficient", 0.015)
	viper.SetDefault("vehicle.gravity", 9.81)
	viper.SetDefault("vehicle.distanceScale", 100.0)

	viper.SetDefault("arena.enabled", true)
	viper.SetDefault("arena.minX", -50000.0)
	viper.SetDefault("arena.minY", -50000.0)
	viper.SetDefault("arena.maxX", 50000.0)
	viper.SetDefault("arena.maxY", 50000.0)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "kartsync")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushInterval", "2s")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "./recordings/kartsync.db")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "kartsync-metrics")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "kartsync")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "15s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("monitor.interval", "10s")

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetFloat64 returns a float config value.
func GetFloat64(key string) float64 {
	return viper.GetFloat64(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetVehicleParams returns the physics tuning.
func GetVehicleParams() core.VehicleParams {
	return core.VehicleParams{
		Mass:                         viper.GetFloat64("vehicle.mass"),
		MaxDrivingForce:              viper.GetFloat64("vehicle.maxDrivingForce"),
		MinTurningRadius:             viper.GetFloat64("vehicle.minTurningRadius"),
		DragCoefficient:              viper.GetFloat64("vehicle.dragCoefficient"),
		RollingResistanceCoefficient: viper.GetFloat64("vehicle.rollingResistanceCoefficient"),
		Gravity:                      viper.GetFloat64("vehicle.gravity"),
		DistanceScale:                viper.GetFloat64("vehicle.distanceScale"),
	}
}

// GetSimConfig returns tick and replication rates.
func GetSimConfig() SimConfig {
	return SimConfig{
		TickHz:          viper.GetInt("sim.tickHz"),
		CatchupMaxTicks: viper.GetInt("sim.catchupMaxTicks"),
		ReplicationHz:   viper.GetInt("sim.replicationHz"),
	}
}

// GetArenaConfig returns the arena bounds.
func GetArenaConfig() ArenaConfig {
	return ArenaConfig{
		Enabled: viper.GetBool("arena.enabled"),
		MinX:    viper.GetFloat64("arena.minX"),
		MinY:    viper.GetFloat64("arena.minY"),
		MaxX:    viper.GetFloat64("arena.maxX"),
		MaxY:    viper.GetFloat64("arena.maxY"),
	}
}

// GetBotConfig returns the bot driver settings.
func GetBotConfig() BotConfig {
	return BotConfig{
		Mode:   viper.GetString("bot.mode"),
		Seed:   viper.GetUint64("bot.seed"),
		Script: viper.GetString("bot.script"),
	}
}

// GetStorageConfig returns the recording backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB connection settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}
