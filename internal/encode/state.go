// SPDX-License-Identifier: MIT

package encode

import (
	"errors"
	"regexp"
)

// State is the lifecycle position of the pipeline.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateStreaming
	StateFinishing
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStreaming:
		return "streaming"
	case StateFinishing:
		return "finishing"
	default:
		return "idle"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome tells the caller of Start what happened.
type Outcome int

const (
	// OutcomeStarted means a new job was launched.
	OutcomeStarted Outcome = iota
	// OutcomeCancelRequested means a job was already running and has been
	// asked to stop instead.
	OutcomeCancelRequested
)

func (o Outcome) String() string {
	if o == OutcomeCancelRequested {
		return "cancel_requested"
	}
	return "started"
}

// Result is how a job ended.
type Result string

const (
	ResultFinished  Result = "finished"
	ResultCancelled Result = "cancelled"
	ResultFailed    Result = "failed"
)

var (
	ErrSubprocessLaunch = errors.New("encode: failed to launch encoder")
	ErrStreamIO         = errors.New("encode: streaming into encoder failed")
	ErrEmptyRecording   = errors.New("encode: recording has zero size")
	ErrEncoderExit      = errors.New("encode: encoder exited with error")
)

var unsafeRun = regexp.MustCompile(`[^A-Za-z0-9]+`)

// BaseName derives the output file stem from a recording's title and
// subtitle: the subtitle is appended after "_" when present, then every run
// of characters outside [A-Za-z0-9] collapses to a single "_".
func BaseName(title, subtitle string) string {
	name := title
	if subtitle != "" {
		name += "_" + subtitle
	}
	return unsafeRun.ReplaceAllString(name, "_")
}
