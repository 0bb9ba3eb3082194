// SPDX-License-Identifier: MIT

// Package config loads myth2dsv configuration with precedence
// environment > YAML file > defaults, and supports hot reload.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"time"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MYTH2DSV_"

// Config is the complete runtime configuration.
type Config struct {
	Backend    BackendConfig    `yaml:"backend"`
	Thumbnails ThumbnailsConfig `yaml:"thumbnails"`
	Encoder    EncoderConfig    `yaml:"encoder"`
	API        APIConfig        `yaml:"api"`
	Log        LogConfig        `yaml:"log"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// BackendConfig addresses the MythTV backend.
type BackendConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// ThumbnailsConfig controls the preview cache.
type ThumbnailsConfig struct {
	Dir    string `yaml:"dir"`
	Prefix string `yaml:"prefix"`
	Height int    `yaml:"height"`
	// FetchRate is backend preview requests per second; zero is unlimited.
	FetchRate float64 `yaml:"fetch_rate"`
}

// EncoderConfig describes the external encoder.
type EncoderConfig struct {
	Dir    string `yaml:"dir"`
	Binary string `yaml:"binary"`
	// Args is a template; "{output}" is replaced by the output path.
	Args          []string      `yaml:"args"`
	OutputDir     string        `yaml:"output_dir"`
	Extension     string        `yaml:"extension"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	ReapOrphans   bool          `yaml:"reap_orphans"`
}

// APIConfig configures the control surface.
type APIConfig struct {
	Listen string `yaml:"listen"`
	// RateLimit is requests per minute per client IP; zero disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			Port:    6544,
			Timeout: 30 * time.Second,
		},
		Thumbnails: ThumbnailsConfig{
			Dir:       os.TempDir(),
			Prefix:    "myth2dsv_thumb_",
			Height:    64,
			FetchRate: 10,
		},
		Encoder: EncoderConfig{
			Binary:        "dsvideo",
			Args:          []string{"-n", "30000", "-s", "-o", "{output}"},
			OutputDir:     defaultOutputDir(),
			Extension:     "dsv",
			ShutdownGrace: 2 * time.Second,
		},
		API: APIConfig{
			Listen:    "127.0.0.1:8650",
			RateLimit: 120,
		},
		Log: LogConfig{
			Level:   "info",
			Service: "myth2dsv",
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// defaultOutputDir is the user's Desktop, falling back to the working directory.
func defaultOutputDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "Desktop")
}

// Clone returns a deep copy of cfg.
func (c Config) Clone() Config {
	c.Encoder.Args = slices.Clone(c.Encoder.Args)
	return c
}
