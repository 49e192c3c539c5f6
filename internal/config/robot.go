// Package config provides configuration helpers for go-spot commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default robot configuration.
const (
	DefaultGatewayPort = "50080"
	DefaultServerPort  = "8080"
)

// Environment variables that override the config file.
const (
	EnvGatewayURL = "SPOT_GATEWAY_URL"
	EnvRobotIP    = "SPOT_IP"
	EnvHasArm     = "SPOT_HAS_ARM"
	EnvLogLevel   = "SPOT_LOG_LEVEL"
	EnvPort       = "PORT"
)

// GatewayURL returns the image gateway URL for a robot address.
func GatewayURL(robotIP string) string {
	return fmt.Sprintf("http://%s:%s", robotIP, DefaultGatewayPort)
}

// ApplyEnv overrides cfg with any environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if ip := os.Getenv(EnvRobotIP); ip != "" {
		cfg.Robot.GatewayURL = GatewayURL(ip)
	}
	if url := os.Getenv(EnvGatewayURL); url != "" {
		cfg.Robot.GatewayURL = url
	}
	if v := os.Getenv(EnvHasArm); v != "" {
		hasArm, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHasArm, err)
		}
		cfg.Robot.HasArm = hasArm
	}
	if lvl := os.Getenv(EnvLogLevel); lvl != "" {
		cfg.Log.Level = lvl
	}
	if port := os.Getenv(EnvPort); port != "" {
		cfg.Server.Port = port
	}
	return nil
}

// Duration is a time.Duration that reads from YAML strings like "250ms".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
