// SPDX-License-Identifier: MIT

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ManuGH/myth2dsv/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(Defaults()))
}

func TestValidate_Fields(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notDir, nil, 0600))

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"port zero", func(c *Config) { c.Backend.Port = 0 }, "backend.port"},
		{"timeout zero", func(c *Config) { c.Backend.Timeout = 0 }, "backend.timeout"},
		{"thumb dir is file", func(c *Config) { c.Thumbnails.Dir = notDir }, "thumbnails.dir"},
		{"height too small", func(c *Config) { c.Thumbnails.Height = 4 }, "thumbnails.height"},
		{"negative fetch rate", func(c *Config) { c.Thumbnails.FetchRate = -1 }, "thumbnails.fetch_rate"},
		{"prefix with slash", func(c *Config) { c.Thumbnails.Prefix = "a/b" }, "thumbnails.prefix"},
		{"no binary", func(c *Config) { c.Encoder.Binary = "" }, "encoder.binary"},
		{"args without output", func(c *Config) { c.Encoder.Args = []string{"-s"} }, "encoder.args"},
		{"dotted extension", func(c *Config) { c.Encoder.Extension = ".dsv" }, "encoder.extension"},
		{"grace zero", func(c *Config) { c.Encoder.ShutdownGrace = 0 }, "encoder.shutdown_grace"},
		{"bad listen", func(c *Config) { c.API.Listen = "nope" }, "api.listen"},
		{"negative rate limit", func(c *Config) { c.API.RateLimit = -5 }, "api.rate_limit"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Exporter = "zipkin"
		}, "telemetry.exporter"},
		{"sampling out of range", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.SamplingRate = 2
		}, "telemetry.sampling_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)

			var verr validate.ValidationError
			require.True(t, errors.As(err, &verr))
			fields := make([]string, 0, len(verr.Errors()))
			for _, e := range verr.Errors() {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidate_TelemetryIgnoredWhenDisabled(t *testing.T) {
	cfg := Defaults()
	cfg.Telemetry.Exporter = "zipkin"
	assert.NoError(t, Validate(cfg))
}
