// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by the spans myth2dsv records.
const (
	// Recording attributes
	RecordingFilenameKey = "recording.filename"
	RecordingTitleKey    = "recording.title"
	RecordingSizeKey     = "recording.size_bytes"

	// Encode attributes
	EncodeJobIDKey   = "encode.job_id"
	EncodeOutputKey  = "encode.output"
	EncodeBytesKey   = "encode.bytes"
	EncodeOutcomeKey = "encode.outcome"

	// Prefetch attributes
	PrefetchHostKey    = "prefetch.host"
	PrefetchTotalKey   = "prefetch.total"
	PrefetchFetchedKey = "prefetch.fetched"
	PrefetchFailedKey  = "prefetch.failed"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// RecordingAttributes describes the recording a span works on.
func RecordingAttributes(filename, title string, size int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(RecordingFilenameKey, filename),
		attribute.Int64(RecordingSizeKey, size),
	}
	if title != "" {
		attrs = append(attrs, attribute.String(RecordingTitleKey, title))
	}
	return attrs
}

// EncodeAttributes creates encode job span attributes.
func EncodeAttributes(jobID, output string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EncodeJobIDKey, jobID),
		attribute.String(EncodeOutputKey, output),
	}
}

// EncodeResultAttributes are recorded when an encode job ends.
func EncodeResultAttributes(outcome string, bytes int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EncodeOutcomeKey, outcome),
		attribute.Int64(EncodeBytesKey, bytes),
	}
}

// PrefetchAttributes summarises a thumbnail prefetch walk.
func PrefetchAttributes(host string, total, fetched, failed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PrefetchHostKey, host),
		attribute.Int(PrefetchTotalKey, total),
		attribute.Int(PrefetchFetchedKey, fetched),
		attribute.Int(PrefetchFailedKey, failed),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
