// Package config loads runtime-tunable parameters: defaults, an optional
// TOML file, then environment variables, each layer overriding the last,
// grounded on config.py's environment-override pattern.
package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every knob server.go and client.go need.
type Config struct {
	Host             string        `toml:"host"`
	Port             int           `toml:"port"`
	ShotClock        time.Duration `toml:"-"`
	ShotClockSeconds float64       `toml:"shot_clock_seconds"`
	ReconnectWindow  time.Duration `toml:"-"`
	ReconnectSeconds float64       `toml:"reconnect_window_seconds"`
	PlacementTimeout time.Duration `toml:"-"`
	PlacementSeconds float64       `toml:"placement_timeout_seconds"`
	BoardSize        int           `toml:"board_size"`
	Secure           bool          `toml:"secure"`
	PresharedKeyHex  string        `toml:"preshared_key"`
	Debug            bool          `toml:"debug"`
	Quiet            bool          `toml:"quiet"`
	OneShip          bool          `toml:"one_ship"`
	MetricsAddr      string        `toml:"metrics_addr"`
}

// Defaults matches the reference implementation's out-of-the-box values.
func Defaults() Config {
	return Config{
		Host:             "127.0.0.1",
		Port:             5000,
		ShotClockSeconds: 60,
		ReconnectSeconds: 60,
		PlacementSeconds: 30,
		BoardSize:        10,
		MetricsAddr:      ":9090",
	}
}

// Load applies an optional TOML file at path (ignored if empty or missing)
// over the defaults, then environment variables over that.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, err
			}
		}
	}
	applyEnv(&cfg)
	cfg.ShotClock = secondsToDuration(cfg.ShotClockSeconds)
	cfg.ReconnectWindow = secondsToDuration(cfg.ReconnectSeconds)
	cfg.PlacementTimeout = secondsToDuration(cfg.PlacementSeconds)
	return cfg, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("SHOT_CLOCK"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ShotClockSeconds = f
		}
	}
	if v := os.Getenv("RECONNECT_WINDOW"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ReconnectSeconds = f
		}
	}
	if v := os.Getenv("PLACEMENT_TIMEOUT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.PlacementSeconds = f
		}
	}
	if v := os.Getenv("BOARD_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BoardSize = n
		}
	}
	if v := os.Getenv("BEER_KEY"); v != "" {
		if _, err := hex.DecodeString(v); err == nil {
			cfg.PresharedKeyHex = v
			cfg.Secure = true
		}
	}
	if os.Getenv("BEER_DEBUG") == "1" {
		cfg.Debug = true
	}
	if os.Getenv("BEER_QUIET") == "1" {
		cfg.Quiet = true
	}
}
