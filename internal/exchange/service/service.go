// Package service is the selective-disclosure credential engine. It composes
// the pure domain packages with the store and runs every multi-step operation
// inside one store transaction. Signing, analytics, audit, metrics and logging
// happen after the transaction returns.
package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"medssi/internal/exchange/domain/credential"
	"medssi/internal/exchange/metrics"
	"medssi/internal/exchange/store"
	"medssi/pkg/platform/tracer"
	"medssi/pkg/requestcontext"
)

const (
	defaultSessionTTL  = 5 * time.Minute
	defaultMaxOfferTTL = 5 * time.Minute
)

// Service is the engine's entry point.
type Service struct {
	store         store.Store
	signer        Signer
	analytics     Analytics
	auditor       AuditPublisher
	metrics       *metrics.Metrics
	tracer        tracer.Tracer
	logger        *slog.Logger
	clock         func(ctx context.Context) time.Time
	retention     credential.RetentionPolicy
	sessionTTL    time.Duration
	maxOfferTTL   time.Duration
	sweepOnAccess bool
}

type Option func(*Service)

// WithClock replaces the request-scoped clock. Used by tests and replays.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = func(context.Context) time.Time { return now() }
		}
	}
}

func WithSigner(signer Signer) Option {
	return func(s *Service) {
		s.signer = signer
	}
}

func WithAnalytics(a Analytics) Option {
	return func(s *Service) {
		s.analytics = a
	}
}

func WithAuditor(a AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLogger sets the logger instance for the service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRetention overrides the per-scope retention windows. Zero windows keep
// their defaults.
func WithRetention(r credential.RetentionPolicy) Option {
	return func(s *Service) {
		if r.Pickup > 0 {
			s.retention.Pickup = r.Pickup
		}
		if r.Medical > 0 {
			s.retention.Medical = r.Medical
		}
		if r.Default > 0 {
			s.retention.Default = r.Default
		}
	}
}

// WithSessionTTL configures the default verification session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithMaxOfferTTL bounds how long an offer may stay acceptable.
func WithMaxOfferTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.maxOfferTTL = ttl
		}
	}
}

// WithSweepOnAccess controls whether every entry point first runs a
// retention sweep. Deployments with the sweeper worker may turn it off.
func WithSweepOnAccess(enabled bool) Option {
	return func(s *Service) {
		s.sweepOnAccess = enabled
	}
}

func New(st store.Store, opts ...Option) *Service {
	svc := &Service{
		store:         st,
		tracer:        tracer.NewNoop(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:         requestcontext.Now,
		retention:     credential.DefaultRetention(),
		sessionTTL:    defaultSessionTTL,
		maxOfferTTL:   defaultMaxOfferTTL,
		sweepOnAccess: true,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) now(ctx context.Context) time.Time {
	return s.clock(ctx).UTC()
}
