// Package tracer provides a lightweight tracing abstraction so services can
// emit spans without importing OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: for tests
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"strings"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, recording err when non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span; the returned context carries it to child calls.
	//
	// Example:
	//   ctx, span := t.Start(ctx, tracer.SpanVerify,
	//       tracer.String(tracer.AttrRecordID, recordID.String()),
	//   )
	//   defer func() { span.End(err) }()
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// ShortFingerprint trims a "sha256:<hex>" fingerprint to 16 hex chars for span
// attributes.
func ShortFingerprint(fp string) string {
	fp = strings.TrimPrefix(fp, "sha256:")
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}

const (
	SpanVerify       = "verification.verify"
	SpanLedgerAnchor = "ledger.anchor"
	SpanLedgerCheck  = "ledger.check"
)

const (
	AttrRecordID    = "record.id"
	AttrAnchorRef   = "ledger.anchor_ref"
	AttrFingerprint = "ledger.fingerprint"
	AttrOutcome     = "verification.outcome"
	AttrCircuitOpen = "ledger.circuit_open"
	AttrErrCategory = "ledger.error_category"
)
