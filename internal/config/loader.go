// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownConfigField classifies strict YAML parse failures caused by unknown keys.
	ErrUnknownConfigField = errors.New("unknown config field")
	// ErrMultipleDocuments is returned for files with more than one YAML document.
	ErrMultipleDocuments = errors.New("config file contains multiple documents or trailing content")
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath string
	// ConsumedEnvKeys records every environment key the last Load consulted.
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a loader. An empty path skips the file layer.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath:      configPath,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, which may be empty.
func (l *Loader) Path() string {
	return l.configPath
}

// Load applies defaults, then the YAML file, then environment overrides,
// and validates the result.
func (l *Loader) Load() (Config, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", l.configPath, err)
		}
	}

	l.mergeEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes path onto cfg with strict parsing. Unknown fields are
// rejected to catch typos.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrMultipleDocuments
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	cfg.Backend.Host = l.envString("BACKEND_HOST", cfg.Backend.Host)
	cfg.Backend.Port = l.envInt("BACKEND_PORT", cfg.Backend.Port)
	cfg.Backend.Timeout = l.envDuration("BACKEND_TIMEOUT", cfg.Backend.Timeout)

	cfg.Thumbnails.Dir = l.envString("THUMBNAILS_DIR", cfg.Thumbnails.Dir)
	cfg.Thumbnails.Prefix = l.envString("THUMBNAILS_PREFIX", cfg.Thumbnails.Prefix)
	cfg.Thumbnails.Height = l.envInt("THUMBNAILS_HEIGHT", cfg.Thumbnails.Height)
	cfg.Thumbnails.FetchRate = l.envFloat("THUMBNAILS_FETCH_RATE", cfg.Thumbnails.FetchRate)

	cfg.Encoder.Dir = l.envString("ENCODER_DIR", cfg.Encoder.Dir)
	cfg.Encoder.Binary = l.envString("ENCODER_BINARY", cfg.Encoder.Binary)
	if args := l.envString("ENCODER_ARGS", ""); args != "" {
		cfg.Encoder.Args = strings.Fields(args)
	}
	cfg.Encoder.OutputDir = l.envString("ENCODER_OUTPUT_DIR", cfg.Encoder.OutputDir)
	cfg.Encoder.Extension = l.envString("ENCODER_EXTENSION", cfg.Encoder.Extension)
	cfg.Encoder.ShutdownGrace = l.envDuration("ENCODER_SHUTDOWN_GRACE", cfg.Encoder.ShutdownGrace)
	cfg.Encoder.ReapOrphans = l.envBool("ENCODER_REAP_ORPHANS", cfg.Encoder.ReapOrphans)

	cfg.API.Listen = l.envString("API_LISTEN", cfg.API.Listen)
	cfg.API.RateLimit = l.envInt("API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// Wrapper methods for mechanical key tracking.

func (l *Loader) envString(key, defaultVal string) string {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	key = EnvPrefix + key
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}
