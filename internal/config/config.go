// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"contourtrack/internal/contour"
	"contourtrack/internal/transport"
)

// SamplingConfig is the sampling setup the station starts with before any
// mote reports a newer one.
type SamplingConfig struct {
	Interval  uint16 `yaml:"interval"`
	Threshold uint16 `yaml:"threshold"`
}

// SinkConfig selects where reports go besides stdout.
type SinkConfig struct {
	LogFile          string `yaml:"log_file"`
	SQLitePath       string `yaml:"sqlite_path"`
	GreptimeEndpoint string `yaml:"greptime_endpoint"`
	GreptimeDatabase string `yaml:"greptime_database"`
	InfluxURL        string `yaml:"influx_url"`
	InfluxToken      string `yaml:"influx_token"`
	InfluxOrg        string `yaml:"influx_org"`
	InfluxBucket     string `yaml:"influx_bucket"`
	RecordPath       string `yaml:"record_path"`
}

// SimulationConfig describes the simulated mote field.
type SimulationConfig struct {
	Rows    int     `yaml:"rows"`
	Cols    int     `yaml:"cols"`
	Sources int     `yaml:"sources"`
	Base    float64 `yaml:"base"`
	Peak    float64 `yaml:"peak"`
	Radius  float64 `yaml:"radius"`
	Noise   float64 `yaml:"noise"`
	Step    float64 `yaml:"step"`
	Seed    int64   `yaml:"seed"`
	// ListenSF exposes the simulated field as a serial forwarder.
	ListenSF string `yaml:"listen_sf"`
}

// StationConfig is the root configuration of a base station.
type StationConfig struct {
	StationID    string                `yaml:"station_id"`
	Variant      string                `yaml:"variant"`
	Addr         uint16                `yaml:"addr"`
	Group        uint8                 `yaml:"group"`
	Link         transport.LinkOptions `yaml:"link"`
	Sampling     SamplingConfig        `yaml:"sampling"`
	BeaconPeriod time.Duration         `yaml:"beacon_period"`
	Order        []uint16              `yaml:"order"`
	StatsWindow  int                   `yaml:"stats_window"`
	LogLevel     string                `yaml:"log_level"`
	AdminAddr    string                `yaml:"admin_addr"`
	Sinks        SinkConfig            `yaml:"sinks"`
	Simulation   SimulationConfig      `yaml:"simulation"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() *StationConfig {
	cfg := &StationConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *StationConfig) applyDefaults() {
	if c.StationID == "" {
		c.StationID = "station-01"
	}
	if c.Variant == "" {
		c.Variant = contour.VariantPlain.String()
	}
	if c.Link.Kind == "" {
		c.Link.Kind = transport.LinkSim
	}
	if c.Sampling.Interval == 0 {
		c.Sampling.Interval = contour.DefaultInterval
	}
	if c.Sampling.Threshold == 0 {
		c.Sampling.Threshold = contour.DefaultThreshold
	}
	if c.BeaconPeriod <= 0 {
		c.BeaconPeriod = time.Second
	}
	if c.StatsWindow <= 0 {
		c.StatsWindow = 100
	}
	if c.Sinks.GreptimeDatabase == "" {
		c.Sinks.GreptimeDatabase = "public"
	}
	s := &c.Simulation
	if s.Rows <= 0 {
		s.Rows = 3
	}
	if s.Cols <= 0 {
		s.Cols = 3
	}
	if s.Sources <= 0 {
		s.Sources = 1
	}
	if s.Peak == 0 {
		s.Peak = 900
	}
	if s.Base == 0 {
		s.Base = 100
	}
	if s.Radius == 0 {
		s.Radius = 1.5
	}
	if s.Step == 0 {
		s.Step = 0.05
	}
}

// applyEnv lets the environment override the station id, beacon period,
// GreptimeDB endpoint and InfluxDB token.
func (c *StationConfig) applyEnv() error {
	if id := os.Getenv("STATION_ID"); id != "" {
		c.StationID = id
	}
	if ep := os.Getenv("GREPTIMEDB_ENDPOINT"); ep != "" {
		c.Sinks.GreptimeEndpoint = ep
	}
	if tok := os.Getenv("INFLUX_TOKEN"); tok != "" {
		c.Sinks.InfluxToken = tok
	}
	if env := os.Getenv("BEACON_PERIOD"); env != "" {
		d, err := time.ParseDuration(env)
		if err != nil {
			return fmt.Errorf("BEACON_PERIOD: %w", err)
		}
		c.BeaconPeriod = d
	}
	return nil
}

// ParsedVariant returns the configured wire variant.
func (c *StationConfig) ParsedVariant() (contour.Variant, error) {
	return contour.ParseVariant(c.Variant)
}

// Load loads YAML config and validates it against a CUE schema. An empty
// configPath yields the defaults; an empty cueSchemaPath skips validation.
func Load(configPath, cueSchemaPath string) (*StationConfig, error) {
	var cfg StationConfig
	if configPath != "" {
		if cueSchemaPath != "" {
			if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
				return nil, err
			}
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", configPath, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if _, err := cfg.ParsedVariant(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
