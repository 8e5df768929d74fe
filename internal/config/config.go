// Package config loads the per-profile configuration of the bias
// estimation pipeline. A profile is a directory under the config root
// holding a config.yaml; credentials and endpoints can be overridden
// through environment variables (optionally loaded from a .env file by
// the CLI).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/kalman"
)

// Config holds all pipeline settings for one profile.
type Config struct {
	Radar         RadarConfig   `yaml:"radar"`
	Gauge         GaugeConfig   `yaml:"gauge"`
	BBox          BBoxConfig    `yaml:"bbox"`
	Thresholds    Thresholds    `yaml:"thresholds"`
	MissingValues MissingValues `yaml:"missing_values"`
	Attributes    []string      `yaml:"attributes"`
	Kalman        kalman.Params `yaml:"kalman"`
	Kafka         KafkaConfig   `yaml:"kafka"`
	Log           LogConfig     `yaml:"log"`
	HTTPAddr      string        `yaml:"http_addr"`
}

// RadarConfig describes the radar archive and grid geometry.
type RadarConfig struct {
	Importer    string        `yaml:"importer"`
	Timestep    int           `yaml:"timestep"`     // minutes between archive files
	AccumPeriod int           `yaml:"accum_period"` // minutes represented by one frame
	Archive     ArchiveConfig `yaml:"archive"`
	Projection  string        `yaml:"projection"`
	BBox        BBoxConfig    `yaml:"bbox"`     // geographic corners of the composite
	YOrigin     string        `yaml:"y_origin"` // "upper" or "lower"

	// Locations maps radar names to "lon,lat" strings, used for the
	// optional nearest-distance pair attribute.
	Locations map[string]string `yaml:"locations"`
}

// ArchiveConfig is the radar archive naming template.
type ArchiveConfig struct {
	RootPath  string `yaml:"root_path"`
	PathFmt   string `yaml:"path_fmt"`
	FnPattern string `yaml:"fn_pattern"`
	FnExt     string `yaml:"fn_ext"`
}

// GaugeConfig selects and configures the gauge observation source.
type GaugeConfig struct {
	Source      string `yaml:"source"` // "http", "postgres", or "file"
	AccumPeriod int    `yaml:"accum_period"`
	URL         string `yaml:"url"`
	Quantity    string `yaml:"quantity"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	FixturePath string `yaml:"fixture_path"`
	DatabaseURL string `yaml:"-"` // from GAUGE_DB_URL only
}

// BBoxConfig is a lon/lat rectangle.
type BBoxConfig struct {
	LLLon float64 `yaml:"ll_lon"`
	LLLat float64 `yaml:"ll_lat"`
	URLon float64 `yaml:"ur_lon"`
	URLat float64 `yaml:"ur_lat"`
}

// Thresholds are the minimum accepted values for a pair to be kept.
type Thresholds struct {
	Radar float64 `yaml:"radar"`
	Gauge float64 `yaml:"gauge"`
}

// MissingValues is the missing-data tolerance policy.
type MissingValues struct {
	MaxMissingRadarTimestamps int `yaml:"max_missing_radar_timestamps"`
}

// KafkaConfig configures the optional bias update publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Topic   string   `yaml:"topic"`
	Brokers []string `yaml:"-"` // from KAFKA_BROKERS only
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RadarSite is one parsed radar location.
type RadarSite struct {
	Name string
	Lon  float64
	Lat  float64
}

// Load reads config.yaml for the profile and applies environment
// overrides. Validation failures wrap domain.ErrConfiguration.
func Load(configDir, profile string) (*Config, error) {
	path := filepath.Join(configDir, profile, "config.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read profile %q: %v", domain.ErrConfiguration, profile, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrConfiguration, path, err)
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Radar: RadarConfig{
			Importer:    "json",
			Timestep:    5,
			AccumPeriod: 5,
			YOrigin:     string(domain.YOriginUpper),
		},
		Gauge: GaugeConfig{
			Source:      "http",
			AccumPeriod: 60,
			TimeoutSecs: 30,
		},
		Kalman: kalman.DefaultParams(),
		Kafka:  KafkaConfig{Topic: "radar-bias-updates"},
		Log:    LogConfig{Level: "info", Format: "json"},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GAUGE_DB_URL"); v != "" {
		cfg.Gauge.DatabaseURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		parts := strings.Split(v, ",")
		brokers := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				brokers = append(brokers, p)
			}
		}
		cfg.Kafka.Brokers = brokers
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

func (c *Config) validate() error {
	if c.Radar.AccumPeriod <= 0 || c.Gauge.AccumPeriod <= 0 {
		return fmt.Errorf("%w: accumulation periods must be positive (radar %d, gauge %d)",
			domain.ErrConfiguration, c.Radar.AccumPeriod, c.Gauge.AccumPeriod)
	}
	if c.Gauge.AccumPeriod%c.Radar.AccumPeriod != 0 {
		return fmt.Errorf("%w: gauge accumulation period %d not divisible by radar accumulation period %d",
			domain.ErrConfiguration, c.Gauge.AccumPeriod, c.Radar.AccumPeriod)
	}
	if c.Thresholds.Radar < 0 || c.Thresholds.Gauge < 0 {
		return fmt.Errorf("%w: thresholds must be non-negative", domain.ErrConfiguration)
	}
	if c.MissingValues.MaxMissingRadarTimestamps < 0 {
		return fmt.Errorf("%w: max_missing_radar_timestamps must be non-negative", domain.ErrConfiguration)
	}
	switch c.Gauge.Source {
	case "http":
		if c.Gauge.URL == "" {
			return fmt.Errorf("%w: gauge source %q requires gauge.url", domain.ErrConfiguration, c.Gauge.Source)
		}
	case "postgres":
		if c.Gauge.DatabaseURL == "" {
			return fmt.Errorf("%w: gauge source %q requires GAUGE_DB_URL", domain.ErrConfiguration, c.Gauge.Source)
		}
	case "file":
		if c.Gauge.FixturePath == "" {
			return fmt.Errorf("%w: gauge source %q requires gauge.fixture_path", domain.ErrConfiguration, c.Gauge.Source)
		}
	default:
		return fmt.Errorf("%w: unknown gauge source %q", domain.ErrConfiguration, c.Gauge.Source)
	}
	if yo := domain.YOrigin(c.Radar.YOrigin); yo != domain.YOriginUpper && yo != domain.YOriginLower {
		return fmt.Errorf("%w: y_origin must be %q or %q, got %q",
			domain.ErrConfiguration, domain.YOriginUpper, domain.YOriginLower, c.Radar.YOrigin)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.enabled is true but KAFKA_BROKERS is not set", domain.ErrConfiguration)
	}
	if err := c.Kalman.Validate(); err != nil {
		return err
	}
	return nil
}

// HasAttribute reports whether an optional pair attribute was requested.
func (c *Config) HasAttribute(name string) bool {
	for _, a := range c.Attributes {
		if strings.EqualFold(strings.TrimSpace(a), name) {
			return true
		}
	}
	return false
}

// RadarSites parses the configured "lon,lat" radar locations.
func (c *Config) RadarSites() ([]RadarSite, error) {
	sites := make([]RadarSite, 0, len(c.Radar.Locations))
	for name, loc := range c.Radar.Locations {
		parts := strings.Split(loc, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: radar location %q must be \"lon,lat\", got %q",
				domain.ErrConfiguration, name, loc)
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%w: radar location %q has non-numeric coordinates %q",
				domain.ErrConfiguration, name, loc)
		}
		sites = append(sites, RadarSite{Name: name, Lon: lon, Lat: lat})
	}
	return sites, nil
}
