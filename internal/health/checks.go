// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"os"
	"path/filepath"
)

// BackendChecker reports whether the session holds a backend connection.
// Being disconnected is degraded, not unhealthy: the user may not have
// picked a backend yet.
func BackendChecker(host func() string) Checker {
	return CheckerFunc{CheckName: "backend", Fn: func(context.Context) CheckResult {
		if h := host(); h != "" {
			return CheckResult{Status: StatusHealthy, Message: "connected to " + h}
		}
		return CheckResult{Status: StatusDegraded, Message: "not connected"}
	}}
}

// EncoderChecker reports a missing encoder binary as degraded.
func EncoderChecker(check func() error) Checker {
	return CheckerFunc{CheckName: "encoder", Fn: func(context.Context) CheckResult {
		if err := check(); err != nil {
			return CheckResult{Status: StatusDegraded, Error: err.Error()}
		}
		return CheckResult{Status: StatusHealthy}
	}}
}

// DirChecker reports dir as unhealthy unless it is an existing, writable directory.
func DirChecker(name, dir string) Checker {
	return CheckerFunc{CheckName: name, Fn: func(context.Context) CheckResult {
		info, err := os.Stat(dir)
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		if !info.IsDir() {
			return CheckResult{Status: StatusUnhealthy, Error: dir + " is not a directory"}
		}
		f, err := os.CreateTemp(dir, ".myth2dsv_probe_*")
		if err != nil {
			return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
		}
		probe := f.Name()
		_ = f.Close()
		_ = os.Remove(filepath.Clean(probe))
		return CheckResult{Status: StatusHealthy, Message: dir}
	}}
}
