// SPDX-License-Identifier: MIT

package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.HandlerFunc, target string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestEvaluate_NoCheckers(t *testing.T) {
	resp := NewManager("v1").Evaluate(t.Context())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestEvaluate_DegradedStaysReady(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(BackendChecker(func() string { return "" }))
	m.RegisterChecker(EncoderChecker(func() error { return errors.New("missing") }))
	m.RegisterChecker(DirChecker("output", t.TempDir()))

	resp := m.Evaluate(t.Context())
	assert.True(t, resp.Ready)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "not connected", resp.Checks["backend"].Message)
	assert.Equal(t, "missing", resp.Checks["encoder"].Error)
	assert.Equal(t, StatusHealthy, resp.Checks["output"].Status)
}

func TestServeReady_UnhealthyDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0600))

	m := NewManager("v1")
	m.RegisterChecker(BackendChecker(func() string { return "mythbox" }))
	m.RegisterChecker(DirChecker("thumbnails", file))

	code, resp := serve(t, m.ServeReady, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, resp.Ready)
	assert.Equal(t, StatusUnhealthy, resp.Status)

	// liveness stays green and only evaluates checks on request
	code, resp = serve(t, m.ServeHealth, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Checks)

	code, resp = serve(t, m.ServeHealth, "/healthz?verbose=true")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusUnhealthy, resp.Status)
}
