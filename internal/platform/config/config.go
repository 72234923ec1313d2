package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	IssuerToken   string
	VerifierToken string
	WalletToken   string
	SigningKey    string

	OfferMaxTTL time.Duration
	SessionTTL  time.Duration

	RetentionPickup  time.Duration
	RetentionMedical time.Duration
	RetentionDefault time.Duration

	// SweepInterval drives the background sweeper; zero disables it.
	SweepInterval  time.Duration
	SweepOnRequest bool

	KafkaBrokers string
	AuditTopic   string
}

var (
	DefaultOfferMaxTTL      = 5 * time.Minute
	DefaultSessionTTL       = 5 * time.Minute
	DefaultRetentionPickup  = 72 * time.Hour
	DefaultRetentionMedical = 30 * 24 * time.Hour
	DefaultRetentionDefault = 180 * 24 * time.Hour
	DefaultSweepInterval    = time.Minute
)

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed values are reported together rather than silently defaulted.
func FromEnv() (Server, error) {
	var errs []error
	duration := func(key string, def time.Duration) time.Duration {
		d, err := durationEnv(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := Server{
		Addr:        envOr("MEDSSI_ADDR", ":8080"),
		Environment: envOr("ENVIRONMENT", "sandbox"),
		LogLevel:    envOr("LOG_LEVEL", "info"),

		IssuerToken:   os.Getenv("MEDSSI_ISSUER_TOKEN"),
		VerifierToken: os.Getenv("MEDSSI_VERIFIER_TOKEN"),
		WalletToken:   os.Getenv("MEDSSI_WALLET_TOKEN"),
		// Development default; sandboxes exposed beyond localhost must override it.
		SigningKey: envOr("MEDSSI_SIGNING_KEY", "medssi-sandbox-signing-key"),

		OfferMaxTTL:      duration("OFFER_MAX_TTL", DefaultOfferMaxTTL),
		SessionTTL:       duration("SESSION_TTL", DefaultSessionTTL),
		RetentionPickup:  duration("RETENTION_PICKUP", DefaultRetentionPickup),
		RetentionMedical: duration("RETENTION_MEDICAL", DefaultRetentionMedical),
		RetentionDefault: duration("RETENTION_DEFAULT", DefaultRetentionDefault),
		SweepInterval:    duration("SWEEP_INTERVAL", DefaultSweepInterval),

		KafkaBrokers: strings.TrimSpace(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:   envOr("AUDIT_TOPIC", "medssi.audit"),
	}

	sweepOnRequest, err := boolEnv("SWEEP_ON_REQUEST", true)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.SweepOnRequest = sweepOnRequest

	if cfg.SweepInterval == 0 && !cfg.SweepOnRequest {
		errs = append(errs, errors.New("SWEEP_INTERVAL=0 with SWEEP_ON_REQUEST=false disables retention"))
	}
	return cfg, errors.Join(errs...)
}

// IsProduction reports whether the process runs outside a sandbox.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return def, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
