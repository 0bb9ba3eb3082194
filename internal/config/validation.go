// SPDX-License-Identifier: MIT

package config

import (
	"strings"

	"github.com/ManuGH/myth2dsv/internal/validate"
	"github.com/rs/zerolog"
)

// Validate checks cfg and reports every problem found.
func Validate(cfg Config) error {
	v := validate.New()

	v.Port("backend.port", cfg.Backend.Port)
	v.Positive("backend.timeout", cfg.Backend.Timeout)

	v.NotEmpty("thumbnails.dir", cfg.Thumbnails.Dir)
	v.Directory("thumbnails.dir", cfg.Thumbnails.Dir, false)
	v.Range("thumbnails.height", cfg.Thumbnails.Height, 16, 1080)
	if cfg.Thumbnails.FetchRate < 0 {
		v.AddError("thumbnails.fetch_rate", "must not be negative", cfg.Thumbnails.FetchRate)
	}
	if strings.ContainsAny(cfg.Thumbnails.Prefix, `/\`) {
		v.AddError("thumbnails.prefix", "must not contain path separators", cfg.Thumbnails.Prefix)
	}

	v.NotEmpty("encoder.binary", cfg.Encoder.Binary)
	if !argsHaveOutput(cfg.Encoder.Args) {
		v.AddError("encoder.args", `must contain the "{output}" placeholder`, cfg.Encoder.Args)
	}
	v.NotEmpty("encoder.output_dir", cfg.Encoder.OutputDir)
	v.NotEmpty("encoder.extension", cfg.Encoder.Extension)
	if strings.ContainsAny(cfg.Encoder.Extension, `/\.`) {
		v.AddError("encoder.extension", "must be a bare extension without dots or separators", cfg.Encoder.Extension)
	}
	v.Positive("encoder.shutdown_grace", cfg.Encoder.ShutdownGrace)

	v.ListenAddr("api.listen", cfg.API.Listen)
	if cfg.API.RateLimit < 0 {
		v.AddError("api.rate_limit", "must not be negative", cfg.API.RateLimit)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		v.AddError("log.level", err.Error(), cfg.Log.Level)
	}

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}

func argsHaveOutput(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, "{output}") {
			return true
		}
	}
	return false
}
