// SPDX-License-Identifier: MIT

package validate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidator_Valid(t *testing.T) {
	v := New()
	v.Port("port", 6544)
	v.Range("height", 64, 1, 1024)
	v.FloatRange("rate", 0.5, 0, 1)
	v.Positive("grace", 2*time.Second)
	v.NotEmpty("binary", "dsvideo")
	v.OneOf("exporter", "GRPC", []string{"grpc", "http"})
	v.ListenAddr("listen", ":8650")
	v.Directory("dir", t.TempDir(), true)

	require.True(t, v.IsValid())
	require.NoError(t, v.Err())
}

func TestValidator_CollectsEveryFailure(t *testing.T) {
	v := New()
	v.Port("backend.port", 0)
	v.Range("thumbnails.height", 0, 1, 1024)
	v.FloatRange("telemetry.sampling_rate", 1.5, 0, 1)
	v.Positive("encoder.shutdown_grace", 0)
	v.NotEmpty("encoder.binary", "  ")
	v.OneOf("telemetry.exporter", "zipkin", []string{"grpc", "http"})
	v.ListenAddr("api.listen", "localhost")

	err := v.Err()
	require.Error(t, err)

	var verr ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors(), 7)
	require.Equal(t, "backend.port", verr.Errors()[0].Field)
	require.Contains(t, err.Error(), "validation failed for api.listen")
}

func TestValidator_Directory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name      string
		path      string
		mustExist bool
		valid     bool
	}{
		{"existing", dir, true, true},
		{"missing optional", filepath.Join(dir, "nope"), false, true},
		{"missing required", filepath.Join(dir, "nope"), true, false},
		{"file", file, false, false},
		{"empty optional", "", false, true},
		{"empty required", "", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New()
			v.Directory("dir", tt.path, tt.mustExist)
			require.Equal(t, tt.valid, v.IsValid())
		})
	}
}
