// SPDX-License-Identifier: MIT

package encode

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ManuGH/myth2dsv/internal/procgroup"
	"github.com/rs/zerolog"
)

// OutputPlaceholder is replaced by the output path in encoder arguments.
const OutputPlaceholder = "{output}"

// DefaultArgs is the argument template for the dsvideo encoder.
var DefaultArgs = []string{"-n", "30000", "-s", "-o", OutputPlaceholder}

// Process is a running encoder.
type Process interface {
	// Stdin receives the recording bytes. Closing it signals end of input.
	Stdin() io.WriteCloser
	// Wait blocks until the encoder exits. It may be called once.
	Wait() error
	// Terminate signals the encoder's process group, escalating after grace.
	Terminate(grace time.Duration) error
	PID() int
}

// Launcher starts encoder processes.
type Launcher interface {
	Launch(ctx context.Context, output string) (Process, error)
}

// ExecLauncher runs a local encoder binary.
type ExecLauncher struct {
	// Dir holds the encoder binary. Empty means Binary is resolved via PATH.
	Dir    string
	Binary string
	// Args is a template; OutputPlaceholder is substituted with the output path.
	Args   []string
	Logger zerolog.Logger
}

// Path returns the binary that will be executed.
func (l *ExecLauncher) Path() string {
	if l.Dir == "" || filepath.IsAbs(l.Binary) {
		return l.Binary
	}
	return filepath.Join(l.Dir, l.Binary)
}

// Launch starts the encoder with stdin piped and stdout/stderr discarded.
// The encoder gets its own process group. ctx only bounds the launch; the
// process outlives it.
func (l *ExecLauncher) Launch(ctx context.Context, output string) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpl := l.Args
	if len(tmpl) == 0 {
		tmpl = DefaultArgs
	}
	args := make([]string, len(tmpl))
	for i, a := range tmpl {
		args[i] = strings.ReplaceAll(a, OutputPlaceholder, output)
	}

	// #nosec G204 -- binary and arguments come from local configuration
	cmd := exec.Command(l.Path(), args...)
	if l.Dir != "" {
		cmd.Dir = l.Dir
	}
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start %s: %w", l.Path(), err)
	}

	l.Logger.Debug().
		Str("binary", l.Path()).
		Strs("args", args).
		Int("pid", cmd.Process.Pid).
		Msg("encoder started")

	return &execProcess{cmd: cmd, stdin: stdin, exited: make(chan struct{})}, nil
}

type execProcess struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	exited   chan struct{}
	waitOnce sync.Once
	waitErr  error
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *execProcess) PID() int { return p.cmd.Process.Pid }

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		close(p.exited)
	})
	return p.waitErr
}

func (p *execProcess) Terminate(grace time.Duration) error {
	return procgroup.Terminate(p.cmd, p.exited, grace)
}
