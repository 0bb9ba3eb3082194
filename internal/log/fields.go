// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldRecording = "recording"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldPID       = "pid"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Progress fields
	FieldBytes      = "bytes"
	FieldTotalBytes = "total_bytes"
	FieldPercent    = "percent"
	FieldIndex      = "index"
	FieldTotal      = "total"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
	FieldHost    = "host"
	FieldOutput  = "output"
)
