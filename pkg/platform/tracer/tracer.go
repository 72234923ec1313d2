// Package tracer provides a small tracing abstraction so the exchange engine
// can emit spans without importing OpenTelemetry everywhere.
//
// Implementations:
//   - NoopTracer: for tests and when tracing is disabled
//   - OTelTracer: OpenTelemetry adapter for production
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it failed.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Float64 creates a float64 attribute.
func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashDID returns a short SHA-256 digest of a holder DID so traces can be
// correlated without carrying the identifier itself.
func HashDID(did string) string {
	if did == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(did))
	return hex.EncodeToString(sum[:8])
}

// Span names used by the exchange engine.
const (
	SpanOffer        = "exchange.offer"
	SpanTransition   = "exchange.transition"
	SpanOpenSession  = "exchange.open_session"
	SpanPresentation = "exchange.submit_presentation"
	SpanSweep        = "exchange.sweep"
	SpanForgetHolder = "exchange.forget_holder"
)

// Attribute keys used by the exchange engine.
const (
	AttrCredentialID = "credential.id"
	AttrAction       = "credential.action"
	AttrStatus       = "credential.status"
	AttrScope        = "scope"
	AttrSessionID    = "session.id"
	AttrHolderHash   = "holder.hash"
	AttrFieldCount   = "fields.count"
	AttrErrorCode    = "error.code"
)

// Event names used by the exchange engine.
const (
	EventSwept        = "sweep.applied"
	EventAuditEmitted = "audit.emitted"
)
