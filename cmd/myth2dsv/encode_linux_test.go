// SPDX-License-Identifier: MIT

//go:build linux

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunEncode_WritesOutput(t *testing.T) {
	srv := newBackend(t)
	cfg := testConfig(t)
	cfg.Encoder.Binary = "/bin/sh"
	cfg.Encoder.Args = []string{"-c", `cat > "$0"`, "{output}"}

	var out bytes.Buffer
	err := runEncode(context.Background(), &out, cfg, srv.Host(), "1001_20240304200000.ts", nil)
	require.NoError(t, err)

	path := filepath.Join(cfg.Encoder.OutputDir, "Monday_s_Game_Live_.dsv")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, 3*65536+17, info.Size())
	assert.Contains(t, out.String(), "wrote "+path)
	assert.Contains(t, out.String(), "100.00% complete")
}
