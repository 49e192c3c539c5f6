package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-spot/pkg/spot"
)

// RobotConfig describes how to reach the robot.
type RobotConfig struct {
	Name       string   `yaml:"name"`        // prefix for frame ids, e.g. "spot"
	GatewayURL string   `yaml:"gateway_url"` // image gateway base URL
	HasArm     bool     `yaml:"has_arm"`     // request hand camera images
	Timeout    Duration `yaml:"timeout"`     // per-request timeout
}

// ImagesConfig selects which images are requested and how often.
type ImagesConfig struct {
	Interval        Duration `yaml:"interval"`         // time between requests
	QualityPercent  float64  `yaml:"quality_percent"`  // JPEG quality requested from the robot
	Depth           bool     `yaml:"depth"`            // also request depth images
	DepthRegistered bool     `yaml:"depth_registered"` // also request depth registered to the RGB frame
}

// TimeSyncConfig controls clock skew estimation.
type TimeSyncConfig struct {
	Interval Duration `yaml:"interval"` // time between round trips
	Window   int      `yaml:"window"`   // samples kept by the estimator
	// StaticSkew replaces estimation with a fixed skew (replay, testing).
	StaticSkew *Duration `yaml:"static_skew,omitempty"`
}

// ServerConfig configures the publishing server.
type ServerConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           string `yaml:"port"`
	PreviewQuality int    `yaml:"preview_quality"` // JPEG quality of previews, 1-100
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config aggregates all application configuration.
type Config struct {
	Robot    RobotConfig    `yaml:"robot"`
	Images   ImagesConfig   `yaml:"images"`
	TimeSync TimeSyncConfig `yaml:"time_sync"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Robot: RobotConfig{
			Name:       "spot",
			GatewayURL: GatewayURL("192.168.80.3"),
			Timeout:    Duration(5 * time.Second),
		},
		Images: ImagesConfig{
			Interval:       Duration(100 * time.Millisecond),
			QualityPercent: 75,
			Depth:          true,
		},
		TimeSync: TimeSyncConfig{
			Interval: Duration(time.Second),
			Window:   25,
		},
		Server: ServerConfig{
			Enabled:        true,
			Port:           DefaultServerPort,
			PreviewQuality: 80,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("apply env: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %v", errs)
	}
	return &cfg, nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Robot.GatewayURL == "" {
		errors = append(errors, "robot.gateway_url is required")
	}
	if c.Robot.Timeout.Std() <= 0 {
		errors = append(errors, "robot.timeout must be positive")
	}
	if c.Images.Interval.Std() <= 0 {
		errors = append(errors, "images.interval must be positive")
	}
	if c.Images.QualityPercent <= 0 || c.Images.QualityPercent > 100 {
		errors = append(errors, "images.quality_percent must be between 0 and 100")
	}
	if c.TimeSync.StaticSkew == nil && c.TimeSync.Interval.Std() <= 0 {
		errors = append(errors, "time_sync.interval must be positive")
	}
	if c.TimeSync.Window < 0 {
		errors = append(errors, "time_sync.window must not be negative")
	}
	if c.Server.Enabled {
		if c.Server.Port == "" {
			errors = append(errors, "server.port is required when the server is enabled")
		}
		if c.Server.PreviewQuality < 1 || c.Server.PreviewQuality > 100 {
			errors = append(errors, "server.preview_quality must be between 1 and 100")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errors = append(errors, "log.level must be debug, info, warn, or error")
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errors = append(errors, "log.format must be text or json")
	}

	return errors
}

// Sources returns the image sources selected by the config.
func (c *Config) Sources() []spot.ImageSource {
	types := []spot.SourceType{spot.SourceRGB}
	if c.Images.Depth {
		types = append(types, spot.SourceDepth)
	}
	if c.Images.DepthRegistered {
		types = append(types, spot.SourceDepthRegistered)
	}
	return spot.DefaultSources(c.Robot.HasArm, types...)
}

// ImageRequests returns the requests to send for each batch.
func (c *Config) ImageRequests() []spot.ImageRequest {
	return spot.NewImageRequests(c.Sources(), c.Images.QualityPercent)
}
